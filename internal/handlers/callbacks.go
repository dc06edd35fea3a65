package handlers

import (
	"context"
	"log"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HandleLicenseChoice answers the license offer made after a download that
// came without its license.
func (bh *Handlers) HandleLicenseChoice(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender, data string) {
	_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")

	st := bh.loadState(ctx, sender.UserID)
	pending := st.PendingLicense
	st.PendingLicense = nil
	bh.saveState(ctx, st)

	if data == utils.CallbackLicenseNo {
		bh.edit(ctx, b, update, sender.ChatID, messages.LicenseDeclined(), keyboard(utils.BackToMainKeyboard()))
		return
	}
	if pending == nil || pending.URL == "" {
		bh.edit(ctx, b, update, sender.ChatID, messages.LicenseMissingURL(), keyboard(utils.BackToMainKeyboard()))
		return
	}

	job := *pending
	job.UserID = sender.UserID
	job.ChatID = sender.ChatID
	job.LicenseOnly = true
	if id := callbackMessageID(update); id != 0 {
		job.MessageID = id
	}

	job, _, err := bh.gate.Admit(ctx, job)
	if err != nil {
		// Keep the offer so the user can try again once the queue frees up.
		st.PendingLicense = pending
		bh.saveState(ctx, st)
		bh.sendAdmissionError(ctx, b, sender, err)
		return
	}
	log.Printf("Added license-only job %s to queue for user %d", job.ID, sender.UserID)

	bh.edit(ctx, b, update, sender.ChatID, messages.LicenseQueued(), nil)
	bh.send(ctx, b, sender.ChatID, messages.LicensePatience(), nil)
}
