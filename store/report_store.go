package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PaymentTotal aggregates payments sharing a status.
type PaymentTotal struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
	Amount int64  `db:"amount"`
}

// PaymentSummary is one row of the recent payments listing.
type PaymentSummary struct {
	ID          string    `db:"id"`
	UserID      int64     `db:"user_id"`
	Username    string    `db:"username"`
	Amount      int64     `db:"amount"`
	Currency    string    `db:"currency"`
	Service     string    `db:"service"`
	PlanID      string    `db:"plan_id"`
	Status      string    `db:"status"`
	PaymentDate time.Time `db:"payment_date"`
}

// UserReport joins a user with activity counters.
type UserReport struct {
	UserID         int64     `db:"user_id"`
	Username       string    `db:"username"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	RegisteredAt   time.Time `db:"registered_at"`
	LastActive     time.Time `db:"last_active"`
	Subscriptions  int       `db:"subscriptions"`
	Payments       int       `db:"payments"`
	Downloads      int       `db:"downloads"`
	DownloadsToday int       `db:"downloads_today"`
}

// ReportStore runs read-only reporting queries against the Postgres schema
// for the admin CLI.
type ReportStore struct {
	db *sqlx.DB
}

func NewReportStore(ctx context.Context, dsn string) (*ReportStore, error) {
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect reporting db: %w", err)
	}
	db.SetMaxOpenConns(2)
	return &ReportStore{db: db}, nil
}

func (r *ReportStore) Close() error {
	return r.db.Close()
}

func (r *ReportStore) PaymentTotals(ctx context.Context) ([]PaymentTotal, error) {
	query := `
	SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
	FROM payments
	GROUP BY status
	ORDER BY status
	`
	var out []PaymentTotal
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("payment totals: %w", err)
	}
	return out, nil
}

func (r *ReportStore) RecentPayments(ctx context.Context, limit int) ([]PaymentSummary, error) {
	query := `
	SELECT p.id, p.user_id, COALESCE(u.username, '') AS username, p.amount, p.currency,
	       p.service, p.plan_id, p.status, p.payment_date
	FROM payments p
	LEFT JOIN users u ON u.user_id = p.user_id
	ORDER BY p.payment_date DESC
	LIMIT $1
	`
	var out []PaymentSummary
	if err := r.db.SelectContext(ctx, &out, query, clampLimit(limit, 10)); err != nil {
		return nil, fmt.Errorf("recent payments: %w", err)
	}
	return out, nil
}

func (r *ReportStore) UserReport(ctx context.Context, userID int64) (*UserReport, error) {
	query := `
	SELECT u.user_id, u.username, u.first_name, u.last_name, u.registered_at, u.last_active,
	       (SELECT COUNT(*) FROM subscriptions s WHERE s.user_id = u.user_id) AS subscriptions,
	       (SELECT COUNT(*) FROM payments p WHERE p.user_id = u.user_id) AS payments,
	       (SELECT COUNT(*) FROM downloads d WHERE d.user_id = u.user_id) AS downloads,
	       (SELECT COALESCE(SUM(q.count), 0) FROM download_quotas q
	         WHERE q.user_id = u.user_id AND q.day = (NOW() AT TIME ZONE 'UTC')::date) AS downloads_today
	FROM users u
	WHERE u.user_id = $1
	`
	var rep UserReport
	if err := r.db.GetContext(ctx, &rep, query, userID); err != nil {
		return nil, fmt.Errorf("user report %d: %w", userID, err)
	}
	return &rep, nil
}
