package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	ReceiptsDir     = "payment_receipts"
	receiptTimeout  = 30 * time.Second
	receiptAttempts = 3
)

var errReceiptTimeout = errors.New("receipt download timed out")

// HandleFile treats a photo as the payment proof for the plan the user
// picked last.
func (bh *Handlers) HandleFile(ctx context.Context, b *bot.Bot, update *models.Update, sender contextkeys.Sender) {
	st := bh.loadState(ctx, sender.UserID)
	if st.PlanID == "" {
		bh.send(ctx, b, sender.ChatID, messages.SelectPlanFirst(),
			keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "View Plans", CallbackData: utils.CallbackPlans}}, 1)))
		return
	}
	file, ok := contextkeys.GetAttachment(ctx)
	if !ok {
		bh.send(ctx, b, sender.ChatID, messages.SendReceiptPhoto(),
			keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "Cancel", CallbackData: utils.CallbackSubscriptions}}, 1)))
		return
	}

	plan, err := bh.store.GetActivePlan(ctx, st.Service, st.PlanID)
	if err != nil {
		log.Printf("Error loading plan %s/%s for payment proof: %v", st.Service, st.PlanID, err)
		bh.send(ctx, b, sender.ChatID, messages.PlanNotFound(),
			keyboard(utils.BuildInlineKeyboard([]utils.Button{{Text: "⬅️ Back to Plans", CallbackData: utils.CallbackPlans}}, 1)))
		return
	}

	bh.send(ctx, b, sender.ChatID, messages.ReceiptReceived(), nil)

	localPath, remotePath, err := bh.saveReceipt(ctx, b, file.FileID, sender.UserID)
	if errors.Is(err, errReceiptTimeout) {
		log.Printf("Timeout downloading payment receipt for user %d", sender.UserID)
		bh.send(ctx, b, sender.ChatID, messages.ReceiptTimedOut(), keyboard(utils.BackToMainKeyboard()))
		return
	}
	if err != nil {
		// The provider file id is still recorded, so admins can review it.
		log.Printf("Error downloading payment receipt for user %d: %v", sender.UserID, err)
	} else {
		log.Printf("Payment receipt saved locally at: %s", localPath)
	}

	payment, err := bh.store.CreatePayment(ctx, types.Payment{
		UserID:      sender.UserID,
		Amount:      plan.Price,
		Currency:    plan.Currency,
		Service:     plan.Service,
		PlanID:      plan.PlanID,
		UserNotes:   update.Message.Caption,
		ImageFileID: file.FileID,
		ImagePath:   localPath,
		ImageURL:    remotePath,
		PaymentDate: bh.now(),
	})
	if err != nil {
		bh.paymentFailed(ctx, b, sender, fmt.Errorf("create payment: %w", err))
		return
	}
	if _, err := bh.store.CreateSubscription(ctx, sender.UserID, plan.Service, plan.PlanID, payment.ID); err != nil {
		bh.paymentFailed(ctx, b, sender, fmt.Errorf("create subscription: %w", err))
		return
	}

	st.PlanID = ""
	st.Service = ""
	bh.saveState(ctx, st)

	bh.send(ctx, b, sender.ChatID, messages.PaymentProofAccepted(), keyboard(utils.BackToMainKeyboard()))
	bh.notifyAdmins(ctx, b, *payment, file)
}

func (bh *Handlers) paymentFailed(ctx context.Context, b *bot.Bot, sender contextkeys.Sender, err error) {
	log.Printf("Error processing payment proof for user %d: %v", sender.UserID, err)
	reporting.CaptureUserError(err, sender.UserID, "payment proof")
	bh.send(ctx, b, sender.ChatID, messages.PaymentProofFailed(), keyboard(utils.BackToMainKeyboard()))
}

// saveReceipt stores the photo under <download dir>/payment_receipts and
// returns the local path and the provider's file path.
func (bh *Handlers) saveReceipt(ctx context.Context, b *bot.Bot, fileID string, userID int64) (string, string, error) {
	f, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", "", fmt.Errorf("get file: %w", err)
	}

	dir := filepath.Join(bh.cfg.DownloadDir, ReceiptsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", f.FilePath, err
	}
	name := fmt.Sprintf("payment_receipt_%d_%s.jpg", userID, bh.now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	link := b.FileDownloadLink(f)
	for attempt := 1; ; attempt++ {
		err = bh.downloadFile(ctx, link, path)
		if err == nil {
			return path, f.FilePath, nil
		}
		var re *retryableError
		if !errors.As(err, &re) || attempt >= receiptAttempts {
			break
		}
		log.Printf("Receipt download attempt %d failed: %v", attempt, err)
		select {
		case <-ctx.Done():
			return "", f.FilePath, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	_ = os.Remove(path)
	return "", f.FilePath, err
}

type retryableError struct {
	status int
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("download failed: status %d", e.status)
}

func (bh *Handlers) downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := bh.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return errReceiptTimeout
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &retryableError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		if isTimeout(err) {
			return errReceiptTimeout
		}
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// notifyAdmins sends the payment summary with approve/reject buttons to
// every admin chat, followed by the receipt itself.
func (bh *Handlers) notifyAdmins(ctx context.Context, b *bot.Bot, payment types.Payment, file contextkeys.Attachment) {
	if len(bh.cfg.AdminChatIDs) == 0 {
		log.Printf("No admin chats configured, payment %s awaits review via CLI", payment.ID)
		return
	}
	user, err := bh.store.GetUser(ctx, payment.UserID)
	if err != nil {
		user = nil
	}
	text := messages.AdminNewPayment(payment, user)
	kb := utils.AdminPaymentKeyboard(payment.ID)

	for _, adminID := range bh.cfg.AdminChatIDs {
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      adminID,
			Text:        text,
			ParseMode:   messages.ParseModeHTML,
			ReplyMarkup: &kb,
		})
		if err != nil {
			log.Printf("Failed to send payment notification to admin %d: %v", adminID, err)
			continue
		}
		log.Printf("Payment notification sent to admin %d", adminID)

		if file.FileID == "" {
			continue
		}
		caption := messages.AdminReceiptCaption(payment.ID)
		if file.Kind == contextkeys.MessageTypeDocument {
			_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
				ChatID:   adminID,
				Document: &models.InputFileString{Data: file.FileID},
				Caption:  caption,
			})
		} else {
			_, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID:  adminID,
				Photo:   &models.InputFileString{Data: file.FileID},
				Caption: caption,
			})
		}
		if err != nil {
			log.Printf("Error sending payment image to admin %d: %v", adminID, err)
			bh.send(ctx, b, adminID, "Failed to send payment receipt image: "+messages.Escape(err.Error()), nil)
		}
	}
}
