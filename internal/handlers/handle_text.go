package handlers

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"

	"github.com/BatmanBruc/bat-bot-freepik/internal/admission"
	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

var freepikURLPattern = regexp.MustCompile(`https?://(?:www\.)?freepik\.com/(?:[a-zA-Z0-9_-]+/)+[a-zA-Z0-9_-]+(?:\.[a-zA-Z0-9]+)*(?:#[^#\s]*)?(?:\?[^\s]*)?`)

// ExtractFreepikURL finds the first resource link in text. A fragment or
// query that the pattern stopped short of is reattached from the message.
func ExtractFreepikURL(text string) (string, bool) {
	u := freepikURLPattern.FindString(text)
	if u == "" {
		return "", false
	}
	if strings.Contains(text, "#") && !strings.Contains(u, "#") {
		u += "#" + strings.SplitN(text, "#", 2)[1]
	}
	if strings.Contains(text, "?") && !strings.Contains(u, "?") {
		u += "?" + strings.SplitN(text, "?", 2)[1]
	}
	return u, true
}

// HandleText takes a resource link, but only right after the user asked to
// send one from the menu.
func (bh *Handlers) HandleText(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	st := bh.loadState(ctx, sender.UserID)
	if !st.AwaitingURL {
		bh.send(ctx, b, sender.ChatID, messages.UseMenu(),
			keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "Go to Main Menu", CallbackData: utils.CallbackMainMenu}}, 1)))
		return
	}
	st.AwaitingURL = false
	bh.saveState(ctx, st)

	url, ok := ExtractFreepikURL(update.Message.Text)
	if !ok {
		bh.send(ctx, b, sender.ChatID, messages.InvalidURL(), keyboard(utils.BuildInlineKeyboard([]utils.Button{
			{Text: "Try Again", CallbackData: utils.CallbackSendURL},
			{Text: "Back to Freepik Menu", CallbackData: utils.CallbackFreepik},
		}, 1)))
		return
	}
	log.Printf("Extracted complete URL for user %d: %s", sender.UserID, url)

	job, pos, err := bh.gate.Admit(ctx, types.Job{
		UserID:    sender.UserID,
		ChatID:    sender.ChatID,
		URL:       url,
		MessageID: update.Message.ID,
		Service:   types.ServiceFreepik,
	})
	if err != nil {
		bh.sendAdmissionError(ctx, b, sender, err)
		return
	}
	log.Printf("Job %s queued for user %d at position %d", job.ID, sender.UserID, pos)
	bh.send(ctx, b, sender.ChatID, messages.Enqueued(url, pos), keyboard(utils.BackToFreepikKeyboard()))
}

func (bh *Handlers) sendAdmissionError(ctx context.Context, b *bot.Bot, sender contextkeys.Sender, err error) {
	var ae *admission.Error
	if !errors.As(err, &ae) {
		log.Printf("Error admitting job for user %d: %v", sender.UserID, err)
		reporting.CaptureUserError(err, sender.UserID, "admit job")
		bh.send(ctx, b, sender.ChatID, messages.ErrorDefault(), keyboard(utils.BackToFreepikKeyboard()))
		return
	}

	switch ae.Reason {
	case admission.NoSubscription:
		bh.send(ctx, b, sender.ChatID, messages.NoSubscription(), keyboard(utils.NoSubscriptionKeyboard()))
	case admission.QuotaExceeded:
		bh.send(ctx, b, sender.ChatID, messages.DailyLimitReached(ae.Count, ae.Limit), keyboard(utils.BackToFreepikKeyboard()))
	case admission.AlreadyRunning:
		bh.send(ctx, b, sender.ChatID, messages.AlreadyRunning(), keyboard(utils.CheckStatusKeyboard()))
	case admission.AlreadyQueued:
		bh.send(ctx, b, sender.ChatID, messages.AlreadyQueued(), keyboard(utils.CheckStatusKeyboard()))
	case admission.QueueFull:
		bh.send(ctx, b, sender.ChatID, messages.QueueFull(), keyboard(utils.BackToFreepikKeyboard()))
	default:
		bh.send(ctx, b, sender.ChatID, messages.ErrorDefault(), nil)
	}
}
