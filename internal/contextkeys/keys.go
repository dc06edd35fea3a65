package contextkeys

import "context"

type (
	messageTypeKey  struct{}
	attachmentKey   struct{}
	senderKey       struct{}
	callbackDataKey struct{}
)

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypePhoto       MessageType = "photo"
	MessageTypeDocument    MessageType = "document"
	MessageTypeUnknown     MessageType = "unknown"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "clickButton"
)

// Attachment is the image carried by a message, either a photo (largest
// size) or an image sent as a document.
type Attachment struct {
	Kind     MessageType
	FileID   string
	Size     int64
	MimeType string
	Name     string
}

// Sender identifies who an update came from and where to answer.
type Sender struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
}

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v, ok := ctx.Value(messageTypeKey{}).(MessageType)
	if !ok {
		return MessageTypeUnknown, false
	}
	return v, true
}

func WithAttachment(ctx context.Context, a Attachment) context.Context {
	return context.WithValue(ctx, attachmentKey{}, a)
}

func GetAttachment(ctx context.Context) (Attachment, bool) {
	a, ok := ctx.Value(attachmentKey{}).(Attachment)
	return a, ok && a.FileID != ""
}

func HasAttachment(ctx context.Context) bool {
	_, ok := GetAttachment(ctx)
	return ok
}

func WithSender(ctx context.Context, s Sender) context.Context {
	return context.WithValue(ctx, senderKey{}, s)
}

func GetSender(ctx context.Context) (Sender, bool) {
	s, ok := ctx.Value(senderKey{}).(Sender)
	return s, ok
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	d, ok := ctx.Value(callbackDataKey{}).(string)
	return d, ok
}
