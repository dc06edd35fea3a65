package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	defaultUploadTimeout = 300 * time.Second
	largeFileBytes       = 10 << 20
)

// Error is a failed upload. Timeout separates a slow upload from a
// rejected one.
type Error struct {
	File    string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("upload %s: timed out", e.File)
	}
	return fmt.Sprintf("upload %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sender is the part of *bot.Bot used for delivery.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

type Telegram struct {
	bot           Sender
	chats         types.ChatStateStore
	uploadTimeout time.Duration
	now           func() time.Time
}

func NewTelegram(b Sender, chats types.ChatStateStore) *Telegram {
	return &Telegram{
		bot:           b,
		chats:         chats,
		uploadTimeout: defaultUploadTimeout,
		now:           time.Now,
	}
}

func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	return err
}

// Deliver uploads every file, continuing past failures. The returned error
// joins one *Error per failed file.
func (t *Telegram) Deliver(ctx context.Context, chatID int64, files []types.DeliveryFile) error {
	log.Printf("Delivery: uploading %d files to chat %d", len(files), chatID)

	var errs []error
	for i, f := range files {
		name := filepath.Base(f.Path)
		info, err := os.Stat(f.Path)
		if err != nil {
			log.Printf("Delivery: file %s doesn't exist, skipping", f.Path)
			errs = append(errs, &Error{File: name, Err: err})
			continue
		}

		sizeMB := float64(info.Size()) / (1 << 20)
		log.Printf("Delivery: uploading file %d/%d: %s (%.1f MB)", i+1, len(files), name, sizeMB)
		if info.Size() > largeFileBytes {
			if err := t.Notify(ctx, chatID, messages.UploadingLarge(name, sizeMB)); err != nil {
				log.Printf("Delivery: failed to warn chat %d about large upload: %v", chatID, err)
			}
		}

		if err := t.upload(ctx, chatID, f, name); err != nil {
			log.Printf("Delivery: failed to upload %s: %v", name, err)
			errs = append(errs, err)
			continue
		}
		log.Printf("Delivery: uploaded %s to chat %d", name, chatID)
	}
	return errors.Join(errs...)
}

func (t *Telegram) upload(ctx context.Context, chatID int64, f types.DeliveryFile, name string) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return &Error{File: name, Err: err}
	}
	defer file.Close()

	caption := messages.CaptionResource()
	if f.License || strings.Contains(strings.ToLower(name), "license") {
		caption = messages.CaptionLicense()
	}

	uctx, cancel := context.WithTimeout(ctx, t.uploadTimeout)
	defer cancel()

	_, err = t.bot.SendDocument(uctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &models.InputFileUpload{
			Filename: name,
			Data:     file,
		},
		Caption: caption,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || (uctx.Err() != nil && ctx.Err() == nil) {
		return &Error{File: name, Timeout: true, Err: err}
	}
	return &Error{File: name, Err: err}
}

// OfferLicense remembers job as the user's pending license follow-up and
// asks whether to fetch it.
func (t *Telegram) OfferLicense(ctx context.Context, job types.Job) error {
	if t.chats != nil {
		state, err := t.chats.GetChatState(ctx, job.UserID)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("load chat state: %w", err)
			}
			state = &types.ChatState{UserID: job.UserID}
		}
		pending := job
		pending.LicenseOnly = true
		pending.ID = ""
		state.PendingLicense = &pending
		state.UpdatedAt = t.now().UTC()
		if err := t.chats.SetChatState(ctx, state); err != nil {
			return fmt.Errorf("save chat state: %w", err)
		}
	}

	keyboard := utils.LicensePromptKeyboard()
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      job.ChatID,
		Text:        messages.LicenseOffer(),
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: &keyboard,
	})
	return err
}
