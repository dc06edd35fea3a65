package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const queryTimeout = 5 * time.Second

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ types.EntitlementStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string, extra ...types.Plan) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.seedPlans(ctx, append(types.DefaultPlans(), extra...)); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "freepik_bot"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "freepik_bot"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()
	return migrateUp(ctx, db)
}

// MigratePostgres applies the embedded schema migrations to the database at
// dsn and reports the resulting version.
func MigratePostgres(ctx context.Context, dsn string) (int64, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return 0, err
	}
	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	if err := migrateUp(ctx, db); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

func migrateUp(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) seedPlans(ctx context.Context, plans []types.Plan) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	for _, p := range plans {
		_, err := s.pool.Exec(ctx, `
INSERT INTO plans (service, plan_id, name, description, price, currency, duration_days, download_limit, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (service, plan_id) DO NOTHING
`, p.Service, p.PlanID, p.Name, p.Description, p.Price, p.Currency, p.DurationDays, p.DownloadLimit, p.Active)
		if err != nil {
			return fmt.Errorf("seed plan %s/%s: %w", p.Service, p.PlanID, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func historyEntryJSON(status, note string, at time.Time) (string, error) {
	b, err := json.Marshal([]types.HistoryEntry{{Status: status, At: at, Note: note}})
	return string(b), err
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user types.User) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	meta := user.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO users (user_id, username, first_name, last_name, metadata)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (user_id) DO UPDATE SET
  username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
  first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
  last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
  metadata = users.metadata || EXCLUDED.metadata,
  last_active = NOW();
`, user.UserID, strings.TrimSpace(user.Username), strings.TrimSpace(user.FirstName), strings.TrimSpace(user.LastName), string(metaJSON))
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, user.UserID)
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u types.User
	var meta []byte
	err := s.pool.QueryRow(ctx, `
SELECT user_id, username, first_name, last_name, metadata, registered_at, last_active
FROM users
WHERE user_id = $1
`, userID).Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &meta, &u.RegisteredAt, &u.LastActive)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(meta, &u.Metadata); err != nil {
		return nil, fmt.Errorf("user %d metadata: %w", userID, err)
	}
	return &u, nil
}

const planColumns = `service, plan_id, name, description, price, currency, duration_days, download_limit, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var p types.Plan
	err := row.Scan(&p.Service, &p.PlanID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.DurationDays, &p.DownloadLimit, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetActivePlan(ctx context.Context, service, planID string) (*types.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE service = $1 AND plan_id = $2 AND is_active`, service, planID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, includeInactive bool) ([]types.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE is_active OR $1 ORDER BY service, duration_days`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddPlan(ctx context.Context, plan types.Plan) (*types.Plan, error) {
	if !validPlan(plan) {
		return nil, fmt.Errorf("%w: service, plan id and duration are required", types.ErrInvalidPlan)
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPlan(s.pool.QueryRow(ctx, `
INSERT INTO plans (service, plan_id, name, description, price, currency, duration_days, download_limit, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+planColumns,
		plan.Service, plan.PlanID, plan.Name, plan.Description, plan.Price, plan.Currency, plan.DurationDays, plan.DownloadLimit, plan.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("plan %s/%s: %w", plan.Service, plan.PlanID, types.ErrAlreadyExists)
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, service, planID string, upd types.PlanUpdate) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
UPDATE plans SET
  name = COALESCE($3, name),
  description = COALESCE($4, description),
  price = COALESCE($5, price),
  currency = COALESCE($6, currency),
  duration_days = COALESCE($7, duration_days),
  download_limit = COALESCE($8, download_limit),
  is_active = COALESCE($9, is_active),
  updated_at = NOW()
WHERE service = $1 AND plan_id = $2
`, service, planID, upd.Name, upd.Description, upd.Price, upd.Currency, upd.DurationDays, upd.DownloadLimit, upd.Active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeactivatePlan(ctx context.Context, service, planID string) (bool, error) {
	inactive := false
	return s.UpdatePlan(ctx, service, planID, types.PlanUpdate{Active: &inactive})
}

const subscriptionColumns = `id, user_id, service, plan_id, start_date, end_date, status, payment_id, history, activated_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	var history []byte
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Service, &sub.PlanID, &sub.StartDate, &sub.EndDate, &sub.Status, &sub.PaymentID, &history, &sub.ActivatedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &sub.History); err != nil {
		return nil, fmt.Errorf("subscription %s history: %w", sub.ID, err)
	}
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, userID int64, service, planID, paymentID string) (*types.Subscription, error) {
	plan, err := s.GetActivePlan(ctx, service, planID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	days, err := types.ResolveDuration(plan, planID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sub := newSubscription(userID, service, planID, paymentID, days, time.Now().UTC())
	history, err := json.Marshal(sub.History)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO subscriptions (id, user_id, service, plan_id, start_date, end_date, status, payment_id, history, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $10)
`, sub.ID, sub.UserID, sub.Service, sub.PlanID, sub.StartDate, sub.EndDate, string(sub.Status), sub.PaymentID, string(history), sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActivateSubscription leaves start and end dates untouched.
func (s *PostgresStore) ActivateSubscription(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	entry, err := historyEntryJSON(string(types.SubscriptionActive), types.NoteSubscriptionActivated, now)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE subscriptions SET
  status = 'active',
  activated_at = $2,
  updated_at = $2,
  history = history || $3::jsonb
WHERE id = $1
`, id, now, entry)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetActiveSubscription(ctx context.Context, userID int64, service string) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE user_id = $1 AND service = $2 AND status = 'active' AND end_date > NOW()
ORDER BY end_date DESC
LIMIT 1
`, userID, service))
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscriptionByPayment(ctx context.Context, paymentID string) (*types.Subscription, error) {
	if paymentID == "" {
		return nil, types.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sub, err := scanSubscription(s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE payment_id = $1 LIMIT 1`, paymentID))
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

func (s *PostgresStore) ListUserSubscriptions(ctx context.Context, userID int64) ([]types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY end_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

const paymentColumns = `id, user_id, amount, currency, service, plan_id, user_notes, image_file_id, image_file_path, image_url, status, admin_notes, history, payment_date, last_updated`

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var p types.Payment
	var history []byte
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Service, &p.PlanID, &p.UserNotes, &p.ImageFileID, &p.ImagePath, &p.ImageURL, &p.Status, &p.AdminNotes, &history, &p.PaymentDate, &p.LastUpdated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &p.History); err != nil {
		return nil, fmt.Errorf("payment %s history: %w", p.ID, err)
	}
	return &p, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, in types.Payment) (*types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p := newPayment(in, time.Now().UTC())
	history, err := json.Marshal(p.History)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO payments (id, user_id, amount, currency, service, plan_id, user_notes, image_file_id, image_file_path, image_url, status, admin_notes, history, payment_date, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15)
`, p.ID, p.UserID, p.Amount, p.Currency, p.Service, p.PlanID, p.UserNotes, p.ImageFileID, p.ImagePath, p.ImageURL, string(p.Status), p.AdminNotes, string(history), p.PaymentDate, p.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("payment %s: %w", p.ID, types.ErrAlreadyExists)
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// UpdatePaymentStatus refuses to move a payment out of a terminal status
// unless an admin note accompanies the change.
func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, note string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown payment status %q", status)
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	entry, err := historyEntryJSON(string(status), types.PaymentNote(status, note), now)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE payments SET
  status = $2,
  admin_notes = CASE WHEN $3 <> '' THEN $3 ELSE admin_notes END,
  last_updated = $4,
  history = history || $5::jsonb
WHERE id = $1 AND (status = 'pending' OR $3 <> '')
`, id, string(status), note, now, entry)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) queryPayments(ctx context.Context, sql string, args ...any) ([]types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPendingPayments(ctx context.Context) ([]types.Payment, error) {
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = 'pending' ORDER BY payment_date ASC`)
}

func (s *PostgresStore) ListUserPayments(ctx context.Context, userID int64, limit int) ([]types.Payment, error) {
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY payment_date DESC LIMIT $2`, userID, clampLimit(limit, 10))
}

func (s *PostgresStore) CountPaymentsByStatus(ctx context.Context) (map[types.PaymentStatus]int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM payments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[types.PaymentStatus]int{
		types.PaymentPending:  0,
		types.PaymentApproved: 0,
		types.PaymentRejected: 0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[types.PaymentStatus(status)] = n
	}
	return counts, rows.Err()
}

// quotaLimitFor computes the limit a fresh quota record snapshots.
func (s *PostgresStore) quotaLimitFor(ctx context.Context, userID int64, service string) (int, error) {
	sub, err := s.GetActiveSubscription(ctx, userID, service)
	if errors.Is(err, types.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	plan, err := s.GetActivePlan(ctx, service, sub.PlanID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}
	return types.QuotaLimit(sub, plan), nil
}

func (s *PostgresStore) GetOrInitQuota(ctx context.Context, userID int64, service string, day time.Time) (*types.QuotaRecord, error) {
	day = types.Day(day)
	rec, err := s.readQuota(ctx, userID, service, day)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	limit, err := s.quotaLimitFor(ctx, userID, service)
	if err != nil {
		return nil, err
	}
	ictx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = s.pool.Exec(ictx, `
INSERT INTO download_quotas (user_id, service, day, count, quota_limit)
VALUES ($1, $2, $3, 0, $4)
ON CONFLICT (user_id, service, day) DO NOTHING
`, userID, service, day, limit)
	if err != nil {
		return nil, err
	}
	return s.readQuota(ctx, userID, service, day)
}

func (s *PostgresStore) readQuota(ctx context.Context, userID int64, service string, day time.Time) (*types.QuotaRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec types.QuotaRecord
	err := s.pool.QueryRow(ctx, `
SELECT user_id, service, day, count, quota_limit, created_at
FROM download_quotas
WHERE user_id = $1 AND service = $2 AND day = $3
`, userID, service, day).Scan(&rec.UserID, &rec.Service, &rec.Day, &rec.Count, &rec.Limit, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	rec.Day = types.Day(rec.Day)
	return &rec, nil
}

func (s *PostgresStore) IncrementQuota(ctx context.Context, userID int64, service string, day time.Time) (bool, error) {
	day = types.Day(day)
	if _, err := s.GetOrInitQuota(ctx, userID, service, day); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
UPDATE download_quotas SET count = count + 1
WHERE user_id = $1 AND service = $2 AND day = $3
`, userID, service, day)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CanDownload(ctx context.Context, userID int64, service string) (bool, error) {
	rec, err := s.GetOrInitQuota(ctx, userID, service, time.Now())
	if err != nil {
		return false, err
	}
	return rec.Allows(), nil
}

func (s *PostgresStore) RecordDownload(ctx context.Context, d types.Download) (*types.Download, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO downloads (id, user_id, service, url, file_name, size, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, d.ID, d.UserID, d.Service, d.URL, d.FileName, d.Size, d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListUserDownloads(ctx context.Context, userID int64, limit int) ([]types.Download, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, service, url, file_name, size, created_at
FROM downloads
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, clampLimit(limit, 10))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Download, 0)
	for rows.Next() {
		var d types.Download
		if err := rows.Scan(&d.ID, &d.UserID, &d.Service, &d.URL, &d.FileName, &d.Size, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
