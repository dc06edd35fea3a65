package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bat-bot-freepik/internal/contextkeys"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// UserStore is the part of the entitlement store that records who talks to
// the bot.
type UserStore interface {
	UpsertUser(ctx context.Context, user types.User) (*types.User, error)
}

type Middlewares struct {
	users UserStore
}

func NewMessageAnalyzer(users UserStore) *Middlewares {
	return &Middlewares{
		users: users,
	}
}

// TrackUserMiddleware resolves the sender of an update, records the contact
// and passes the sender on in ctx. Updates without a user or chat are
// dropped.
func (m *Middlewares) TrackUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		sender, ok := SenderFromUpdate(update)
		if !ok {
			return
		}

		if m.users != nil {
			_, err := m.users.UpsertUser(ctx, types.User{
				UserID:     sender.UserID,
				Username:   sender.Username,
				FirstName:  sender.FirstName,
				LastName:   sender.LastName,
				LastActive: time.Now().UTC(),
			})
			if err != nil {
				log.Printf("Error recording user %d: %v", sender.UserID, err)
			}
		}

		next(contextkeys.WithSender(ctx, sender), b, update)
	}
}

func SenderFromUpdate(update *models.Update) (contextkeys.Sender, bool) {
	var (
		from   *models.User
		chatID int64
	)

	switch {
	case update == nil:
		return contextkeys.Sender{}, false
	case update.Message != nil && update.Message.From != nil:
		from = update.Message.From
		chatID = update.Message.Chat.ID
	case update.CallbackQuery != nil:
		from = &update.CallbackQuery.From
		chatID = getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
	default:
		return contextkeys.Sender{}, false
	}

	if from == nil || from.ID == 0 || chatID == 0 {
		return contextkeys.Sender{}, false
	}
	return contextkeys.Sender{
		UserID:    from.ID,
		ChatID:    chatID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}, true
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

func (ma *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		next(Analyze(ctx, update), b, update)
	}
}

// Analyze tags ctx with the kind of update and, for photos and image
// documents, the file to fetch.
func Analyze(ctx context.Context, update *models.Update) context.Context {
	if update.CallbackQuery != nil && update.CallbackQuery.Data != "" {
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
		return contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
	}
	if update.Message == nil {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
	}

	msg := update.Message
	if strings.HasPrefix(msg.Text, "/") {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
	}

	msgType := determineMessageType(msg)
	ctx = contextkeys.WithMessageType(ctx, msgType)
	if a, ok := attachment(msg); ok {
		ctx = contextkeys.WithAttachment(ctx, a)
	}
	return ctx
}

func determineMessageType(msg *models.Message) contextkeys.MessageType {
	if len(msg.Photo) > 0 {
		return contextkeys.MessageTypePhoto
	}
	if msg.Document != nil {
		return contextkeys.MessageTypeDocument
	}
	if msg.Text != "" {
		return contextkeys.MessageTypeText
	}
	return contextkeys.MessageTypeUnknown
}

func attachment(msg *models.Message) (contextkeys.Attachment, bool) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > best.FileSize {
				best = p
			}
		}
		return contextkeys.Attachment{
			Kind:   contextkeys.MessageTypePhoto,
			FileID: best.FileID,
			Size:   int64(best.FileSize),
			Name:   "photo.jpg",
		}, true
	}

	// Receipts sent "as file" arrive as documents.
	if msg.Document != nil && strings.HasPrefix(strings.ToLower(msg.Document.MimeType), "image/") {
		return contextkeys.Attachment{
			Kind:     contextkeys.MessageTypeDocument,
			FileID:   msg.Document.FileID,
			Size:     int64(msg.Document.FileSize),
			MimeType: msg.Document.MimeType,
			Name:     msg.Document.FileName,
		}, true
	}
	return contextkeys.Attachment{}, false
}
