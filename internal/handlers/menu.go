package handlers

import (
	"context"
	"log"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const recentPayments = 3

func (bh *Handlers) HandleMenuClick(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender, data string) {
	if update == nil || update.CallbackQuery == nil {
		return
	}
	_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")

	switch data {
	case utils.CallbackMainMenu:
		bh.resetFlow(ctx, sender.UserID, true, true)
		bh.edit(ctx, b, update, sender.ChatID, messages.MainMenu(), keyboard(utils.MainMenuKeyboard()))
	case utils.CallbackMyInfo:
		bh.showMyInfo(ctx, b, update, sender)
	case utils.CallbackFreepik:
		bh.resetFlow(ctx, sender.UserID, true, false)
		bh.showFreepikMenu(ctx, b, update, sender)
	case utils.CallbackFreepikInfo:
		plans, err := bh.servicePlans(ctx, types.ServiceFreepik)
		if err != nil {
			log.Printf("Error listing plans: %v", err)
		}
		bh.edit(ctx, b, update, sender.ChatID, messages.FreepikAbout(plans), keyboard(utils.BackToFreepikKeyboard()))
	case utils.CallbackDownloads:
		bh.showDownloads(ctx, b, update, sender)
	case utils.CallbackSendURL:
		bh.promptForURL(ctx, b, sender)
	case utils.CallbackSubscriptions:
		bh.resetFlow(ctx, sender.UserID, false, true)
		bh.showSubscriptions(ctx, b, update, sender)
	case utils.CallbackPlans:
		bh.showPlans(ctx, b, update, sender)
	case utils.CallbackHelp:
		bh.edit(ctx, b, update, sender.ChatID, messages.Help(), keyboard(utils.BackToMainKeyboard()))
	case utils.CallbackStatus:
		bh.send(ctx, b, sender.ChatID, bh.statusText(sender.UserID), keyboard(utils.BackToMainKeyboard()))
	default:
		log.Printf("Unknown menu item %q from user %d", data, sender.UserID)
	}
}

// resetFlow drops a pending URL prompt and/or plan selection when the user
// navigates away from it.
func (bh *Handlers) resetFlow(ctx context.Context, userID int64, url, plan bool) {
	st := bh.loadState(ctx, userID)
	changed := false
	if url && st.AwaitingURL {
		st.AwaitingURL = false
		changed = true
	}
	if plan && st.PlanID != "" {
		st.PlanID = ""
		st.Service = ""
		changed = true
	}
	if changed {
		bh.saveState(ctx, st)
	}
}

func (bh *Handlers) showMyInfo(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	info := messages.UserInfo{
		UserID:   sender.UserID,
		Username: sender.Username,
		Name:     types.User{FirstName: sender.FirstName, LastName: sender.LastName, Username: sender.Username}.FullName(),
		Now:      bh.now(),
	}

	if u, err := bh.store.GetUser(ctx, sender.UserID); err == nil {
		info.User = u
	}
	subs, err := bh.store.ListUserSubscriptions(ctx, sender.UserID)
	if err != nil {
		log.Printf("Error listing subscriptions for user %d: %v", sender.UserID, err)
	}
	info.Subscriptions = subs
	if _, quota, err := bh.activeSubscription(ctx, sender.UserID, types.ServiceFreepik); err != nil {
		log.Printf("Error reading quota for user %d: %v", sender.UserID, err)
	} else {
		info.Quota = quota
	}
	payments, err := bh.store.ListUserPayments(ctx, sender.UserID, recentPayments)
	if err != nil {
		log.Printf("Error getting payment history for user %d: %v", sender.UserID, err)
	}
	info.Payments = payments

	bh.edit(ctx, b, update, sender.ChatID, messages.MyInfo(info), keyboard(utils.BuildInlineKeyboard([]utils.Button{
		{Text: "Manage Subscriptions", CallbackData: utils.CallbackSubscriptions},
		{Text: "⬅️ Back to Main Menu", CallbackData: utils.CallbackMainMenu},
	}, 1)))
}

func (bh *Handlers) showFreepikMenu(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	sub, quota, err := bh.activeSubscription(ctx, sender.UserID, types.ServiceFreepik)
	if err != nil {
		log.Printf("Error checking subscription for user %d: %v", sender.UserID, err)
	}
	bh.edit(ctx, b, update, sender.ChatID, messages.FreepikMenu(sub, quota), keyboard(utils.FreepikMenuKeyboard()))
}

func (bh *Handlers) showDownloads(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	all, err := bh.store.ListUserDownloads(ctx, sender.UserID, 10)
	if err != nil {
		log.Printf("Error listing downloads for user %d: %v", sender.UserID, err)
	}
	today := types.Day(bh.now())
	downloads := make([]types.Download, 0, len(all))
	for _, d := range all {
		if d.Service == types.ServiceFreepik && !d.CreatedAt.Before(today) {
			downloads = append(downloads, d)
		}
	}
	_, quota, err := bh.activeSubscription(ctx, sender.UserID, types.ServiceFreepik)
	if err != nil {
		log.Printf("Error reading quota for user %d: %v", sender.UserID, err)
	}
	bh.edit(ctx, b, update, sender.ChatID, messages.DownloadsToday(downloads, quota), keyboard(utils.BackToFreepikKeyboard()))
}

// promptForURL asks for a link when the user may download now and arms the
// URL intake.
func (bh *Handlers) promptForURL(ctx context.Context, b *bot.Bot, sender contextkeys.Sender) {
	sub, quota, err := bh.activeSubscription(ctx, sender.UserID, types.ServiceFreepik)
	if err != nil {
		log.Printf("Error checking subscription for user %d: %v", sender.UserID, err)
		bh.send(ctx, b, sender.ChatID, messages.ErrorDefault(), keyboard(utils.BackToFreepikKeyboard()))
		return
	}
	if sub == nil {
		bh.send(ctx, b, sender.ChatID, messages.NoSubscription(), keyboard(utils.NoSubscriptionKeyboard()))
		return
	}
	if quota != nil && !quota.Allows() {
		bh.send(ctx, b, sender.ChatID, messages.DailyLimitReached(quota.Count, quota.Limit), keyboard(utils.BackToFreepikKeyboard()))
		return
	}

	st := bh.loadState(ctx, sender.UserID)
	st.AwaitingURL = true
	st.Service = types.ServiceFreepik
	bh.saveState(ctx, st)

	count, limit := 0, 0
	if quota != nil {
		count, limit = quota.Count, quota.Limit
	}
	bh.send(ctx, b, sender.ChatID, messages.AskForURL(count, limit),
		keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "⬅️ Cancel", CallbackData: utils.CallbackFreepik}}, 1)))
}

func (bh *Handlers) showSubscriptions(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	subs, err := bh.store.ListUserSubscriptions(ctx, sender.UserID)
	if err != nil {
		log.Printf("Error listing subscriptions for user %d: %v", sender.UserID, err)
	}
	bh.edit(ctx, b, update, sender.ChatID, messages.SubscriptionOverview(subs, bh.now()), keyboard(utils.BuildInlineKeyboard([]utils.Button{
		{Text: "📋 Available Plans", CallbackData: utils.CallbackPlans},
		{Text: "⬅️ Back to Main Menu", CallbackData: utils.CallbackMainMenu},
	}, 1)))
}

func (bh *Handlers) showPlans(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	plans, err := bh.store.ListPlans(ctx, false)
	if err != nil {
		log.Printf("Error listing plans: %v", err)
		bh.edit(ctx, b, update, sender.ChatID, messages.ErrorDefault(), keyboard(utils.BackToMainKeyboard()))
		return
	}
	buttons := make([]utils.Button, 0, len(plans)+1)
	for _, p := range plans {
		buttons = append(buttons, utils.Button{Text: messages.PlanButton(p), CallbackData: utils.PlanCallback(p.Service, p.PlanID)})
	}
	buttons = append(buttons, utils.Button{Text: "⬅️ Back", CallbackData: utils.CallbackSubscriptions})
	bh.edit(ctx, b, update, sender.ChatID, messages.PlanList(plans), keyboard(utils.BuildInlineKeyboard(buttons, 1)))
}

func (bh *Handlers) servicePlans(ctx context.Context, service string) ([]types.Plan, error) {
	plans, err := bh.store.ListPlans(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]types.Plan, 0, len(plans))
	for _, p := range plans {
		if p.Service == service {
			out = append(out, p)
		}
	}
	return out, nil
}
