package types

import "time"

type User struct {
	UserID       int64             `json:"user_id"`
	Username     string            `json:"username,omitempty"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastActive   time.Time         `json:"last_active"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// HistoryEntry is one append-only status transition.
type HistoryEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type Subscription struct {
	ID          string             `json:"id"`
	UserID      int64              `json:"user_id"`
	Service     string             `json:"service"`
	PlanID      string             `json:"plan_id"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Status      SubscriptionStatus `json:"status"`
	PaymentID   string             `json:"payment_id,omitempty"`
	History     []HistoryEntry     `json:"history"`
	ActivatedAt *time.Time         `json:"activated_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Live reports whether the subscription grants access at now.
func (s Subscription) Live(now time.Time) bool {
	return s.Status == SubscriptionActive && s.EndDate.After(now)
}

type Payment struct {
	ID          string         `json:"id"`
	UserID      int64          `json:"user_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Service     string         `json:"service"`
	PlanID      string         `json:"plan_id"`
	UserNotes   string         `json:"user_notes,omitempty"`
	ImageFileID string         `json:"image_file_id,omitempty"`
	ImagePath   string         `json:"image_file_path,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Status      PaymentStatus  `json:"status"`
	AdminNotes  string         `json:"admin_notes,omitempty"`
	History     []HistoryEntry `json:"history"`
	PaymentDate time.Time      `json:"payment_date"`
	LastUpdated time.Time      `json:"last_updated"`
}
