package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch strings.ToLower(cmd) {
	case "/start":
		st := bh.loadState(ctx, sender.UserID)
		st.AwaitingURL = false
		st.Service = ""
		st.PlanID = ""
		bh.saveState(ctx, st)

		bh.send(ctx, b, sender.ChatID, messages.Welcome(sender.FirstName, sender.UserID),
			keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "Continue →", CallbackData: utils.CallbackMainMenu}}, 1)))
	case "/help":
		bh.send(ctx, b, sender.ChatID, messages.Help(), keyboard(utils.BackToMainKeyboard()))
	case "/status":
		bh.send(ctx, b, sender.ChatID, bh.statusText(sender.UserID), keyboard(utils.BackToMainKeyboard()))
	case "/queue":
		bh.send(ctx, b, sender.ChatID, messages.QueueOverview(bh.queue.Len()), keyboard(utils.BackToMainKeyboard()))
	case "/subscriptions":
		subs, err := bh.store.ListUserSubscriptions(ctx, sender.UserID)
		if err != nil {
			log.Printf("Error listing subscriptions for user %d: %v", sender.UserID, err)
			bh.send(ctx, b, sender.ChatID, messages.ErrorDefault(), nil)
			return
		}
		bh.send(ctx, b, sender.ChatID, messages.SubscriptionList(subs), keyboard(utils.BuildInlineKeyboard([]utils.Button{
			{Text: "View Available Plans", CallbackData: utils.CallbackPlans},
			{Text: "Back to Main Menu", CallbackData: utils.CallbackMainMenu},
		}, 1)))
	default:
		bh.send(ctx, b, sender.ChatID, messages.UnknownCommand(), nil)
	}
}

func (bh *Handlers) statusText(userID int64) string {
	st := bh.queue.Status(userID)
	switch st.Kind {
	case types.StatusRunning:
		return messages.StatusRunning(st.Phase)
	case types.StatusQueued:
		return messages.StatusQueued(st.Position, st.Length)
	default:
		return messages.StatusIdle()
	}
}
