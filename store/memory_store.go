package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

type planKey struct {
	service string
	planID  string
}

type quotaKey struct {
	userID  int64
	service string
	day     time.Time
}

// MemoryStore implements types.EntitlementStore in process memory. It is
// used when no durable backend is configured or reachable.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[int64]types.User
	plans     map[planKey]types.Plan
	subs      map[string]types.Subscription
	payments  map[string]types.Payment
	quotas    map[quotaKey]types.QuotaRecord
	downloads []types.Download
}

var _ types.EntitlementStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store seeded with the default plans plus extra.
func NewMemoryStore(extra ...types.Plan) *MemoryStore {
	s := &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[int64]types.User),
		plans:    make(map[planKey]types.Plan),
		subs:     make(map[string]types.Subscription),
		payments: make(map[string]types.Payment),
		quotas:   make(map[quotaKey]types.QuotaRecord),
	}
	now := s.now()
	for _, p := range append(types.DefaultPlans(), extra...) {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.plans[planKey{p.Service, p.PlanID}] = p
	}
	return s
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) UpsertUser(ctx context.Context, user types.User) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *types.User
	if u, ok := s.users[user.UserID]; ok {
		existing = &u
	}
	merged := mergeUser(existing, user, s.now())
	s.users[user.UserID] = merged
	return &merged, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetActivePlan(ctx context.Context, service, planID string) (*types.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePlanLocked(service, planID)
}

func (s *MemoryStore) activePlanLocked(service, planID string) (*types.Plan, error) {
	p, ok := s.plans[planKey{service, planID}]
	if !ok || !p.Active {
		return nil, types.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPlans(ctx context.Context, includeInactive bool) ([]types.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if !p.Active && !includeInactive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].DurationDays < out[j].DurationDays
	})
	return out, nil
}

func (s *MemoryStore) AddPlan(ctx context.Context, plan types.Plan) (*types.Plan, error) {
	if !validPlan(plan) {
		return nil, fmt.Errorf("%w: service, plan id and duration are required", types.ErrInvalidPlan)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := planKey{plan.Service, plan.PlanID}
	if _, ok := s.plans[key]; ok {
		return nil, fmt.Errorf("plan %s/%s: %w", plan.Service, plan.PlanID, types.ErrAlreadyExists)
	}
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	s.plans[key] = plan
	return &plan, nil
}

func (s *MemoryStore) UpdatePlan(ctx context.Context, service, planID string, upd types.PlanUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := planKey{service, planID}
	p, ok := s.plans[key]
	if !ok {
		return false, nil
	}
	upd.Apply(&p)
	p.UpdatedAt = s.now()
	s.plans[key] = p
	return true, nil
}

func (s *MemoryStore) DeactivatePlan(ctx context.Context, service, planID string) (bool, error) {
	inactive := false
	return s.UpdatePlan(ctx, service, planID, types.PlanUpdate{Active: &inactive})
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, userID int64, service, planID, paymentID string) (*types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, _ := s.activePlanLocked(service, planID)
	days, err := types.ResolveDuration(plan, planID)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(userID, service, planID, paymentID, days, s.now())
	s.subs[sub.ID] = sub
	return cloneSubscription(sub), nil
}

func (s *MemoryStore) ActivateSubscription(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return false, nil
	}
	now := s.now()
	sub.Status = types.SubscriptionActive
	sub.ActivatedAt = &now
	sub.UpdatedAt = now
	sub.History = append(append([]types.HistoryEntry(nil), sub.History...), types.HistoryEntry{
		Status: string(types.SubscriptionActive),
		At:     now,
		Note:   types.NoteSubscriptionActivated,
	})
	s.subs[id] = sub
	return true, nil
}

func (s *MemoryStore) GetActiveSubscription(ctx context.Context, userID int64, service string) (*types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.activeSubscriptionLocked(userID, service)
	if sub == nil {
		return nil, types.ErrNotFound
	}
	return cloneSubscription(*sub), nil
}

func (s *MemoryStore) activeSubscriptionLocked(userID int64, service string) *types.Subscription {
	candidates := make([]types.Subscription, 0)
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Service == service {
			candidates = append(candidates, sub)
		}
	}
	return types.PickActive(candidates, s.now())
}

func (s *MemoryStore) GetSubscriptionByPayment(ctx context.Context, paymentID string) (*types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.PaymentID != "" && sub.PaymentID == paymentID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, types.ErrNotFound
}

func (s *MemoryStore) ListUserSubscriptions(ctx context.Context, userID int64) ([]types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Subscription, 0)
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, *cloneSubscription(sub))
		}
	}
	types.SortSubscriptionsByEnd(out)
	return out, nil
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p types.Payment) (*types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = newPayment(p, s.now())
	if _, ok := s.payments[p.ID]; ok {
		return nil, fmt.Errorf("payment %s: %w", p.ID, types.ErrAlreadyExists)
	}
	s.payments[p.ID] = p
	return clonePayment(p), nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, note string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown payment status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status.Terminal() && note == "" {
		return false, nil
	}
	now := s.now()
	p.Status = status
	if note != "" {
		p.AdminNotes = note
	}
	p.LastUpdated = now
	p.History = append(append([]types.HistoryEntry(nil), p.History...), types.HistoryEntry{
		Status: string(status),
		At:     now,
		Note:   types.PaymentNote(status, note),
	})
	s.payments[id] = p
	return true, nil
}

func (s *MemoryStore) ListPendingPayments(ctx context.Context) ([]types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Payment, 0)
	for _, p := range s.payments {
		if p.Status == types.PaymentPending {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.Before(out[j].PaymentDate) })
	return out, nil
}

func (s *MemoryStore) ListUserPayments(ctx context.Context, userID int64, limit int) ([]types.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Payment, 0)
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	if limit = clampLimit(limit, 10); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountPaymentsByStatus(ctx context.Context) (map[types.PaymentStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[types.PaymentStatus]int{
		types.PaymentPending:  0,
		types.PaymentApproved: 0,
		types.PaymentRejected: 0,
	}
	for _, p := range s.payments {
		counts[p.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) GetOrInitQuota(ctx context.Context, userID int64, service string, day time.Time) (*types.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.quotaLocked(userID, service, day)
	return &rec, nil
}

func (s *MemoryStore) quotaLocked(userID int64, service string, day time.Time) types.QuotaRecord {
	key := quotaKey{userID, service, types.Day(day)}
	if rec, ok := s.quotas[key]; ok {
		return rec
	}
	sub := s.activeSubscriptionLocked(userID, service)
	var plan *types.Plan
	if sub != nil {
		plan, _ = s.activePlanLocked(service, sub.PlanID)
	}
	rec := types.QuotaRecord{
		UserID:    userID,
		Service:   service,
		Day:       key.day,
		Count:     0,
		Limit:     types.QuotaLimit(sub, plan),
		CreatedAt: s.now(),
	}
	s.quotas[key] = rec
	return rec
}

func (s *MemoryStore) IncrementQuota(ctx context.Context, userID int64, service string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.quotaLocked(userID, service, day)
	rec.Count++
	s.quotas[quotaKey{userID, service, rec.Day}] = rec
	return true, nil
}

func (s *MemoryStore) CanDownload(ctx context.Context, userID int64, service string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.quotaLocked(userID, service, s.now())
	return rec.Allows(), nil
}

func (s *MemoryStore) RecordDownload(ctx context.Context, d types.Download) (*types.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	s.downloads = append(s.downloads, d)
	return &d, nil
}

func (s *MemoryStore) ListUserDownloads(ctx context.Context, userID int64, limit int) ([]types.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = clampLimit(limit, 10)
	out := make([]types.Download, 0, limit)
	for i := len(s.downloads) - 1; i >= 0 && len(out) < limit; i-- {
		if s.downloads[i].UserID == userID {
			out = append(out, s.downloads[i])
		}
	}
	return out, nil
}

func cloneSubscription(sub types.Subscription) *types.Subscription {
	sub.History = append([]types.HistoryEntry(nil), sub.History...)
	return &sub
}

func clonePayment(p types.Payment) *types.Payment {
	p.History = append([]types.HistoryEntry(nil), p.History...)
	return &p
}
