package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const dayLayout = "2006-01-02"

type userRow struct {
	UserID       int64 `gorm:"primaryKey;autoIncrement:false"`
	Username     string
	FirstName    string
	LastName     string
	Metadata     map[string]string `gorm:"serializer:json"`
	RegisteredAt time.Time
	LastActive   time.Time
}

func (userRow) TableName() string { return "users" }

type planRow struct {
	Service       string `gorm:"primaryKey"`
	PlanID        string `gorm:"primaryKey"`
	Name          string
	Description   string
	Price         int64
	Currency      string
	DurationDays  int
	DownloadLimit int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (planRow) TableName() string { return "plans" }

type subscriptionRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      int64  `gorm:"index:idx_sub_user_service"`
	Service     string `gorm:"index:idx_sub_user_service"`
	PlanID      string
	StartDate   time.Time
	EndDate     time.Time
	Status      string
	PaymentID   string               `gorm:"index"`
	History     []types.HistoryEntry `gorm:"serializer:json"`
	ActivatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (subscriptionRow) TableName() string { return "subscriptions" }

type paymentRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      int64  `gorm:"index"`
	Amount      int64
	Currency    string
	Service     string
	PlanID      string
	UserNotes   string
	ImageFileID string
	ImagePath   string
	ImageURL    string
	Status      string `gorm:"index"`
	AdminNotes  string
	History     []types.HistoryEntry `gorm:"serializer:json"`
	PaymentDate time.Time
	LastUpdated time.Time
}

func (paymentRow) TableName() string { return "payments" }

type quotaRow struct {
	UserID     int64  `gorm:"primaryKey;autoIncrement:false"`
	Service    string `gorm:"primaryKey"`
	Day        string `gorm:"primaryKey"`
	Count      int
	QuotaLimit int
	CreatedAt  time.Time
}

func (quotaRow) TableName() string { return "download_quotas" }

type downloadRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	Service   string
	URL       string
	FileName  string
	Size      int64
	CreatedAt time.Time
}

func (downloadRow) TableName() string { return "downloads" }

// SQLiteStore implements types.EntitlementStore on a local SQLite file.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ types.EntitlementStore = (*SQLiteStore)(nil)

func NewSQLiteStore(path string, extra ...types.Plan) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &planRow{}, &subscriptionRow{}, &paymentRow{}, &quotaRow{}, &downloadRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	now := s.now()
	for _, p := range append(types.DefaultPlans(), extra...) {
		row := planToRow(p)
		row.CreatedAt = now
		row.UpdatedAt = now
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("seed plan %s/%s: %w", p.Service, p.PlanID, err)
		}
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	return err
}

func planToRow(p types.Plan) planRow {
	return planRow{
		Service:       p.Service,
		PlanID:        p.PlanID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		Currency:      p.Currency,
		DurationDays:  p.DurationDays,
		DownloadLimit: p.DownloadLimit,
		IsActive:      p.Active,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (r planRow) plan() types.Plan {
	return types.Plan{
		Service:       r.Service,
		PlanID:        r.PlanID,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		Currency:      r.Currency,
		DurationDays:  r.DurationDays,
		DownloadLimit: r.DownloadLimit,
		Active:        r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r subscriptionRow) subscription() types.Subscription {
	return types.Subscription{
		ID:          r.ID,
		UserID:      r.UserID,
		Service:     r.Service,
		PlanID:      r.PlanID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Status:      types.SubscriptionStatus(r.Status),
		PaymentID:   r.PaymentID,
		History:     r.History,
		ActivatedAt: r.ActivatedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r paymentRow) payment() types.Payment {
	return types.Payment{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Service:     r.Service,
		PlanID:      r.PlanID,
		UserNotes:   r.UserNotes,
		ImageFileID: r.ImageFileID,
		ImagePath:   r.ImagePath,
		ImageURL:    r.ImageURL,
		Status:      types.PaymentStatus(r.Status),
		AdminNotes:  r.AdminNotes,
		History:     r.History,
		PaymentDate: r.PaymentDate,
		LastUpdated: r.LastUpdated,
	}
}

func (r quotaRow) record() types.QuotaRecord {
	day, _ := time.ParseInLocation(dayLayout, r.Day, time.UTC)
	return types.QuotaRecord{
		UserID:    r.UserID,
		Service:   r.Service,
		Day:       day,
		Count:     r.Count,
		Limit:     r.QuotaLimit,
		CreatedAt: r.CreatedAt,
	}
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, user types.User) (*types.User, error) {
	var out types.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing *types.User
		var row userRow
		err := tx.First(&row, "user_id = ?", user.UserID).Error
		switch {
		case err == nil:
			u := types.User(row)
			existing = &u
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		out = mergeUser(existing, user, s.now())
		return tx.Save(&userRow{
			UserID:       out.UserID,
			Username:     out.Username,
			FirstName:    out.FirstName,
			LastName:     out.LastName,
			Metadata:     out.Metadata,
			RegisteredAt: out.RegisteredAt,
			LastActive:   out.LastActive,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		return nil, gormNotFound(err)
	}
	u := types.User(row)
	return &u, nil
}

func (s *SQLiteStore) GetActivePlan(ctx context.Context, service, planID string) (*types.Plan, error) {
	var row planRow
	err := s.db.WithContext(ctx).
		Where("service = ? AND plan_id = ? AND is_active = ?", service, planID, true).
		First(&row).Error
	if err != nil {
		return nil, gormNotFound(err)
	}
	p := row.plan()
	return &p, nil
}

func (s *SQLiteStore) ListPlans(ctx context.Context, includeInactive bool) ([]types.Plan, error) {
	var rows []planRow
	q := s.db.WithContext(ctx).Order("service, duration_days")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Plan, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.plan())
	}
	return out, nil
}

func (s *SQLiteStore) AddPlan(ctx context.Context, plan types.Plan) (*types.Plan, error) {
	if !validPlan(plan) {
		return nil, fmt.Errorf("%w: service, plan id and duration are required", types.ErrInvalidPlan)
	}
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	row := planToRow(plan)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("plan %s/%s: %w", plan.Service, plan.PlanID, types.ErrAlreadyExists)
	}
	return &plan, nil
}

func (s *SQLiteStore) UpdatePlan(ctx context.Context, service, planID string, upd types.PlanUpdate) (bool, error) {
	fields := map[string]any{"updated_at": s.now()}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.Price != nil {
		fields["price"] = *upd.Price
	}
	if upd.Currency != nil {
		fields["currency"] = *upd.Currency
	}
	if upd.DurationDays != nil {
		fields["duration_days"] = *upd.DurationDays
	}
	if upd.DownloadLimit != nil {
		fields["download_limit"] = *upd.DownloadLimit
	}
	if upd.Active != nil {
		fields["is_active"] = *upd.Active
	}
	res := s.db.WithContext(ctx).Model(&planRow{}).
		Where("service = ? AND plan_id = ?", service, planID).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) DeactivatePlan(ctx context.Context, service, planID string) (bool, error) {
	inactive := false
	return s.UpdatePlan(ctx, service, planID, types.PlanUpdate{Active: &inactive})
}

func (s *SQLiteStore) CreateSubscription(ctx context.Context, userID int64, service, planID, paymentID string) (*types.Subscription, error) {
	plan, err := s.GetActivePlan(ctx, service, planID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	days, err := types.ResolveDuration(plan, planID)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(userID, service, planID, paymentID, days, s.now())
	row := subscriptionRow{
		ID:        sub.ID,
		UserID:    sub.UserID,
		Service:   sub.Service,
		PlanID:    sub.PlanID,
		StartDate: sub.StartDate,
		EndDate:   sub.EndDate,
		Status:    string(sub.Status),
		PaymentID: sub.PaymentID,
		History:   sub.History,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SQLiteStore) ActivateSubscription(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row subscriptionRow
		err := tx.First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		now := s.now()
		row.Status = string(types.SubscriptionActive)
		row.ActivatedAt = &now
		row.UpdatedAt = now
		row.History = append(row.History, types.HistoryEntry{
			Status: string(types.SubscriptionActive),
			At:     now,
			Note:   types.NoteSubscriptionActivated,
		})
		return tx.Save(&row).Error
	})
	return found, err
}

func (s *SQLiteStore) GetActiveSubscription(ctx context.Context, userID int64, service string) (*types.Subscription, error) {
	var row subscriptionRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND service = ? AND status = ? AND end_date > ?", userID, service, string(types.SubscriptionActive), s.now()).
		Order("end_date DESC").
		First(&row).Error
	if err != nil {
		return nil, gormNotFound(err)
	}
	sub := row.subscription()
	return &sub, nil
}

func (s *SQLiteStore) GetSubscriptionByPayment(ctx context.Context, paymentID string) (*types.Subscription, error) {
	if paymentID == "" {
		return nil, types.ErrNotFound
	}
	var row subscriptionRow
	if err := s.db.WithContext(ctx).First(&row, "payment_id = ?", paymentID).Error; err != nil {
		return nil, gormNotFound(err)
	}
	sub := row.subscription()
	return &sub, nil
}

func (s *SQLiteStore) ListUserSubscriptions(ctx context.Context, userID int64) ([]types.Subscription, error) {
	var rows []subscriptionRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("end_date DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.subscription())
	}
	return out, nil
}

func (s *SQLiteStore) CreatePayment(ctx context.Context, in types.Payment) (*types.Payment, error) {
	p := newPayment(in, s.now())
	row := paymentRow{
		ID:          p.ID,
		UserID:      p.UserID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Service:     p.Service,
		PlanID:      p.PlanID,
		UserNotes:   p.UserNotes,
		ImageFileID: p.ImageFileID,
		ImagePath:   p.ImagePath,
		ImageURL:    p.ImageURL,
		Status:      string(p.Status),
		AdminNotes:  p.AdminNotes,
		History:     p.History,
		PaymentDate: p.PaymentDate,
		LastUpdated: p.LastUpdated,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("payment %s: %w", p.ID, types.ErrAlreadyExists)
	}
	return &p, nil
}

func (s *SQLiteStore) GetPayment(ctx context.Context, id string) (*types.Payment, error) {
	var row paymentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, gormNotFound(err)
	}
	p := row.payment()
	return &p, nil
}

func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, note string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown payment status %q", status)
	}
	updated := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row paymentRow
		err := tx.First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if types.PaymentStatus(row.Status).Terminal() && note == "" {
			return nil
		}
		now := s.now()
		row.Status = string(status)
		if note != "" {
			row.AdminNotes = note
		}
		row.LastUpdated = now
		row.History = append(row.History, types.HistoryEntry{
			Status: string(status),
			At:     now,
			Note:   types.PaymentNote(status, note),
		})
		updated = true
		return tx.Save(&row).Error
	})
	return updated, err
}

func paymentsFromRows(rows []paymentRow) []types.Payment {
	out := make([]types.Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.payment())
	}
	return out
}

func (s *SQLiteStore) ListPendingPayments(ctx context.Context) ([]types.Payment, error) {
	var rows []paymentRow
	err := s.db.WithContext(ctx).
		Where("status = ?", string(types.PaymentPending)).
		Order("payment_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return paymentsFromRows(rows), nil
}

func (s *SQLiteStore) ListUserPayments(ctx context.Context, userID int64, limit int) ([]types.Payment, error) {
	var rows []paymentRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("payment_date DESC").
		Limit(clampLimit(limit, 10)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return paymentsFromRows(rows), nil
}

func (s *SQLiteStore) CountPaymentsByStatus(ctx context.Context) (map[types.PaymentStatus]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := s.db.WithContext(ctx).Model(&paymentRow{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[types.PaymentStatus]int{
		types.PaymentPending:  0,
		types.PaymentApproved: 0,
		types.PaymentRejected: 0,
	}
	for _, r := range rows {
		counts[types.PaymentStatus(r.Status)] = r.N
	}
	return counts, nil
}

func (s *SQLiteStore) quotaLimitFor(ctx context.Context, userID int64, service string) (int, error) {
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

func (s *SQLiteStore) GetOrInitQuota(ctx context.Context, userID int64, service string, day time.Time) (*types.QuotaRecord, error) {
	key := types.Day(day).Format(dayLayout)
	var row quotaRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ? AND service = ? AND day = ?", userID, service, key).Error
	if err == nil {
		rec := row.record()
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	limit, err := s.quotaLimitFor(ctx, userID, service)
	if err != nil {
		return nil, err
	}
	row = quotaRow{UserID: userID, Service: service, Day: key, QuotaLimit: limit, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).First(&row, "user_id = ? AND service = ? AND day = ?", userID, service, key).Error; err != nil {
		return nil, err
	}
	rec := row.record()
	return &rec, nil
}

func (s *SQLiteStore) IncrementQuota(ctx context.Context, userID int64, service string, day time.Time) (bool, error) {
	if _, err := s.GetOrInitQuota(ctx, userID, service, day); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&quotaRow{}).
		Where("user_id = ? AND service = ? AND day = ?", userID, service, types.Day(day).Format(dayLayout)).
		UpdateColumn("count", gorm.Expr("count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) CanDownload(ctx context.Context, userID int64, service string) (bool, error) {
	rec, err := s.GetOrInitQuota(ctx, userID, service, s.now())
	if err != nil {
		return false, err
	}
	return rec.Allows(), nil
}

func (s *SQLiteStore) RecordDownload(ctx context.Context, d types.Download) (*types.Download, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	row := downloadRow(d)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) ListUserDownloads(ctx context.Context, userID int64, limit int) ([]types.Download, error) {
	var rows []downloadRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampLimit(limit, 10)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Download, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Download(r))
	}
	return out, nil
}
