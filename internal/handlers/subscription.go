package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/payments"
	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HandlePlanSelection shows bank transfer instructions for the chosen plan
// and waits for the receipt photo.
func (bh *Handlers) HandlePlanSelection(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender, data string) {
	_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
	backToPlans := keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "⬅️ Back to Plans", CallbackData: utils.CallbackPlans}}, 1))

	service, planID, ok := utils.ParsePlanCallback(data)
	if !ok {
		bh.edit(ctx, b, update, sender.ChatID, messages.InvalidPlan(), backToPlans)
		return
	}
	log.Printf("Processing subscription selection %s/%s for user %d", service, planID, sender.UserID)

	plan, err := bh.store.GetActivePlan(ctx, service, planID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			log.Printf("Error loading plan %s/%s: %v", service, planID, err)
		}
		bh.edit(ctx, b, update, sender.ChatID, messages.PlanNotFound(), backToPlans)
		return
	}

	st := bh.loadState(ctx, sender.UserID)
	st.AwaitingURL = false
	st.Service = plan.Service
	st.PlanID = plan.PlanID
	bh.saveState(ctx, st)

	bh.edit(ctx, b, update, sender.ChatID, messages.PaymentInstructions(*plan, bh.cfg.Bank, sender.UserID),
		keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "❌ Cancel", CallbackData: utils.CallbackSubscriptions}}, 1)))
}

// HandleAdminAction approves or rejects a payment from the buttons sent to
// admins along with the receipt.
func (bh *Handlers) HandleAdminAction(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender, data string) {
	action, paymentID, ok := utils.ParseAdminCallback(data)
	if !ok {
		_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		bh.edit(ctx, b, update, sender.ChatID, "Invalid callback data format.", nil)
		return
	}
	if !bh.cfg.IsAdmin(sender.UserID) {
		log.Printf("User %d tried to %s payment %s without admin rights", sender.UserID, action, paymentID)
		_ = bh.answerCallbackAlert(ctx, b, update.CallbackQuery.ID, messages.AdminOnly())
		return
	}
	_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")

	payment, err := bh.store.GetPayment(ctx, paymentID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			log.Printf("Error loading payment %s: %v", paymentID, err)
		}
		bh.edit(ctx, b, update, sender.ChatID, messages.PaymentNotFound(paymentID), nil)
		return
	}
	if payment.Status.Terminal() {
		bh.edit(ctx, b, update, sender.ChatID, messages.PaymentAlreadyProcessed(paymentID, payment.Status), nil)
		return
	}

	switch action {
	case utils.AdminApprove:
		note := fmt.Sprintf("Approved by admin %d via Telegram", sender.UserID)
		if _, err := payments.Approve(ctx, bh.store, paymentID, note, bh.now()); err != nil {
			bh.decisionFailed(ctx, b, update, sender, paymentID, err)
			return
		}
		bh.send(ctx, b, payment.UserID, messages.UserPaymentApproved(payment.Service, payment.PlanID), nil)
		log.Printf("Payment %s approved by admin %d", paymentID, sender.UserID)
		bh.edit(ctx, b, update, sender.ChatID, messages.AdminApproved(paymentID, payment.UserID), nil)
	case utils.AdminReject:
		note := fmt.Sprintf("Rejected by admin %d via Telegram", sender.UserID)
		if _, err := payments.Reject(ctx, bh.store, paymentID, note); err != nil {
			bh.decisionFailed(ctx, b, update, sender, paymentID, err)
			return
		}
		bh.send(ctx, b, payment.UserID, messages.UserPaymentRejected(payment.Service, payment.PlanID), nil)
		log.Printf("Payment %s rejected by admin %d", paymentID, sender.UserID)
		bh.edit(ctx, b, update, sender.ChatID, messages.AdminRejected(paymentID, payment.UserID), nil)
	default:
		bh.edit(ctx, b, update, sender.ChatID, "Unknown action type.", nil)
	}
}

func (bh *Handlers) decisionFailed(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender, paymentID string, err error) {
	if errors.Is(err, payments.ErrAlreadyProcessed) {
		status := types.PaymentStatus("processed")
		if p, gerr := bh.store.GetPayment(ctx, paymentID); gerr == nil {
			status = p.Status
		}
		bh.edit(ctx, b, update, sender.ChatID, messages.PaymentAlreadyProcessed(paymentID, status), nil)
		return
	}
	log.Printf("Error deciding payment %s: %v", paymentID, err)
	reporting.CaptureErrorf(err, "decide payment %s", paymentID)
	bh.edit(ctx, b, update, sender.ChatID, messages.ErrorDefault(), nil)
}
