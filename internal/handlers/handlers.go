package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/utils"
	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Gate admits download jobs into the queue.
type Gate interface {
	Admit(ctx context.Context, job types.Job) (types.Job, int, error)
}

// QueueStatus is the read side of the download queue.
type QueueStatus interface {
	Status(userID int64) types.Status
	Len() int
}

type Handlers struct {
	store  types.EntitlementStore
	chats  types.ChatStateStore
	gate   Gate
	queue  QueueStatus
	cfg    *config.Config
	client *http.Client
	now    func() time.Time
}

func NewHandlers(store types.EntitlementStore, chats types.ChatStateStore, gate Gate, queue QueueStatus, cfg *config.Config) *Handlers {
	return &Handlers{
		store:  store,
		chats:  chats,
		gate:   gate,
		queue:  queue,
		cfg:    cfg,
		client: &http.Client{Timeout: receiptTimeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	sender, ok := contextkeys.GetSender(ctx)
	if !ok {
		log.Printf("Error: sender not found in context")
		return
	}
	messageType, _ := contextkeys.GetMessageType(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update, sender)
	case contextkeys.MessageTypePhoto, contextkeys.MessageTypeDocument:
		bh.HandleFile(ctx, b, update, sender)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, b, update, sender)
	case contextkeys.MessageTypeClickButton:
		data, _ := contextkeys.GetCallbackData(ctx)
		if data == "" && update.CallbackQuery != nil {
			data = update.CallbackQuery.Data
		}
		data = strings.TrimSpace(data)
		switch {
		case strings.HasPrefix(data, utils.MenuPrefix):
			bh.HandleMenuClick(ctx, b, update, sender, data)
		case strings.HasPrefix(data, utils.PlanPrefix):
			bh.HandlePlanSelection(ctx, b, update, sender, data)
		case strings.HasPrefix(data, utils.AdminPrefix):
			bh.HandleAdminAction(ctx, b, update, sender, data)
		case data == utils.CallbackLicenseYes || data == utils.CallbackLicenseNo:
			bh.HandleLicenseChoice(ctx, b, update, sender, data)
		default:
			log.Printf("Unknown callback %q from user %d", data, sender.UserID)
			_ = bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		}
	default:
		bh.send(ctx, b, sender.ChatID, messages.UnsupportedMessage(), nil)
	}
}

// send posts an HTML message. A nil keyboard sends none.
func (bh *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
}

// edit replaces the text of the message a button was pressed on, falling
// back to a new message when that one can no longer be edited.
func (bh *Handlers) edit(ctx context.Context, b *bot.Bot, update *models.Update, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	if update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil {
		msg := update.CallbackQuery.Message.Message
		params := &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      text,
			ParseMode: messages.ParseModeHTML,
		}
		if keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		_, err := b.EditMessageText(ctx, params)
		if err == nil {
			return
		}
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		log.Printf("Error editing message %d in chat %d: %v", msg.ID, msg.Chat.ID, err)
	}
	bh.send(ctx, b, chatID, text, keyboard)
}

func (bh *Handlers) answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string) error {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func (bh *Handlers) answerCallbackAlert(ctx context.Context, b *bot.Bot, callbackID, text string) error {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       true,
	})
	return err
}

func (bh *Handlers) loadState(ctx context.Context, userID int64) *types.ChatState {
	st, err := bh.chats.GetChatState(ctx, userID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			log.Printf("Error loading chat state for user %d: %v", userID, err)
		}
		return &types.ChatState{UserID: userID}
	}
	return st
}

func (bh *Handlers) saveState(ctx context.Context, st *types.ChatState) {
	st.UpdatedAt = bh.now()
	if err := bh.chats.SetChatState(ctx, st); err != nil {
		log.Printf("Error saving chat state for user %d: %v", st.UserID, err)
	}
}

// activeSubscription returns the user's live subscription and today's quota,
// or nil when there is none.
func (bh *Handlers) activeSubscription(ctx context.Context, userID int64, service string) (*types.Subscription, *types.QuotaRecord, error) {
	sub, err := bh.store.GetActiveSubscription(ctx, userID, service)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	quota, err := bh.store.GetOrInitQuota(ctx, userID, service, bh.now())
	if err != nil {
		return sub, nil, err
	}
	return sub, quota, nil
}

func callbackMessageID(update *models.Update) int {
	if update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil {
		return update.CallbackQuery.Message.Message.ID
	}
	return 0
}

func keyboard(k models.InlineKeyboardMarkup) *models.InlineKeyboardMarkup {
	return &k
}
