package types

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPlan   = errors.New("invalid plan")
)

type Plan struct {
	Service       string    `json:"service" yaml:"service"`
	PlanID        string    `json:"plan_id" yaml:"plan_id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description" yaml:"description"`
	Price         int64     `json:"price" yaml:"price"`
	Currency      string    `json:"currency" yaml:"currency"`
	DurationDays  int       `json:"duration_days" yaml:"duration_days"`
	DownloadLimit int       `json:"download_limit" yaml:"download_limit"`
	Active        bool      `json:"is_active" yaml:"is_active"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// PlanUpdate carries the mutable plan attributes; nil fields are left as is.
// Service and PlanID form the immutable key and cannot be updated.
type PlanUpdate struct {
	Name          *string
	Description   *string
	Price         *int64
	Currency      *string
	DurationDays  *int
	DownloadLimit *int
	Active        *bool
}

func (u PlanUpdate) Apply(p *Plan) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Currency != nil {
		p.Currency = *u.Currency
	}
	if u.DurationDays != nil {
		p.DurationDays = *u.DurationDays
	}
	if u.DownloadLimit != nil {
		p.DownloadLimit = *u.DownloadLimit
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
}

func (u PlanUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Price == nil && u.Currency == nil &&
		u.DurationDays == nil && u.DownloadLimit == nil && u.Active == nil
}

// QuotaRecord counts downloads for one (user, service, UTC day).
type QuotaRecord struct {
	UserID    int64     `json:"user_id"`
	Service   string    `json:"service"`
	Day       time.Time `json:"date"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	CreatedAt time.Time `json:"created_at"`
}

func (q QuotaRecord) Allows() bool {
	return q.Count < q.Limit
}

type Download struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Service   string    `json:"service"`
	URL       string    `json:"url"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// EntitlementStore is the durable record of users, plans, subscriptions,
// payments, quotas and downloads. Lookups of missing records return
// ErrNotFound.
type EntitlementStore interface {
	UpsertUser(ctx context.Context, user User) (*User, error)
	GetUser(ctx context.Context, userID int64) (*User, error)

	GetActivePlan(ctx context.Context, service, planID string) (*Plan, error)
	ListPlans(ctx context.Context, includeInactive bool) ([]Plan, error)
	AddPlan(ctx context.Context, plan Plan) (*Plan, error)
	UpdatePlan(ctx context.Context, service, planID string, upd PlanUpdate) (bool, error)
	DeactivatePlan(ctx context.Context, service, planID string) (bool, error)

	CreateSubscription(ctx context.Context, userID int64, service, planID, paymentID string) (*Subscription, error)
	ActivateSubscription(ctx context.Context, id string) (bool, error)
	GetActiveSubscription(ctx context.Context, userID int64, service string) (*Subscription, error)
	GetSubscriptionByPayment(ctx context.Context, paymentID string) (*Subscription, error)
	ListUserSubscriptions(ctx context.Context, userID int64) ([]Subscription, error)

	CreatePayment(ctx context.Context, p Payment) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, note string) (bool, error)
	ListPendingPayments(ctx context.Context) ([]Payment, error)
	ListUserPayments(ctx context.Context, userID int64, limit int) ([]Payment, error)
	CountPaymentsByStatus(ctx context.Context) (map[PaymentStatus]int, error)

	GetOrInitQuota(ctx context.Context, userID int64, service string, day time.Time) (*QuotaRecord, error)
	IncrementQuota(ctx context.Context, userID int64, service string, day time.Time) (bool, error)
	CanDownload(ctx context.Context, userID int64, service string) (bool, error)

	RecordDownload(ctx context.Context, d Download) (*Download, error)
	ListUserDownloads(ctx context.Context, userID int64, limit int) ([]Download, error)

	Close() error
}
