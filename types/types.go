package types

import (
	"context"
	"time"
)

// Job is one queued download request. It lives only in memory.
type Job struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	URL          string    `json:"url"`
	MessageID    int       `json:"message_id"`
	LicenseOnly  bool      `json:"license_only"`
	ResourceName string    `json:"resource_name,omitempty"`
	Service      string    `json:"service"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// DeliveryFile is one file produced by a job, ready to be sent to a chat.
type DeliveryFile struct {
	Path    string
	License bool
}

// Status answers "what is this user's download doing right now".
type Status struct {
	Kind     StatusKind `json:"kind"`
	Phase    string     `json:"phase,omitempty"`
	Position int        `json:"position,omitempty"`
	Length   int        `json:"length,omitempty"`
}

// ChatState is the per-user conversation state between updates.
type ChatState struct {
	UserID         int64     `json:"user_id"`
	AwaitingURL    bool      `json:"awaiting_url,omitempty"`
	Service        string    `json:"service,omitempty"`
	PlanID         string    `json:"plan_id,omitempty"`
	PendingLicense *Job      `json:"pending_license,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ChatStateStore interface {
	GetChatState(ctx context.Context, userID int64) (*ChatState, error)
	SetChatState(ctx context.Context, state *ChatState) error
	ClearChatState(ctx context.Context, userID int64) error
}

// SnapshotStore persists the serialized browser session between jobs.
// Load returns ErrNotFound when nothing was saved.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}
