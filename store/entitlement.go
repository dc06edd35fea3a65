package store

import (
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/google/uuid"
)

func newID() string {
	return uuid.New().String()
}

func newSubscription(userID int64, service, planID, paymentID string, days int, now time.Time) types.Subscription {
	return types.Subscription{
		ID:        newID(),
		UserID:    userID,
		Service:   service,
		PlanID:    planID,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, days),
		Status:    types.SubscriptionPending,
		PaymentID: paymentID,
		History: []types.HistoryEntry{{
			Status: string(types.SubscriptionPending),
			At:     now,
			Note:   types.NoteSubscriptionCreated,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newPayment(p types.Payment, now time.Time) types.Payment {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = now
	}
	if strings.TrimSpace(p.Currency) == "" {
		p.Currency = "LKR"
	}
	p.Status = types.PaymentPending
	p.AdminNotes = ""
	p.LastUpdated = now
	p.History = []types.HistoryEntry{{
		Status: string(types.PaymentPending),
		At:     now,
		Note:   types.NotePaymentReceived,
	}}
	return p
}

func mergeUser(existing *types.User, in types.User, now time.Time) types.User {
	if existing == nil {
		in.RegisteredAt = now
		in.LastActive = now
		if in.Metadata == nil {
			in.Metadata = map[string]string{}
		}
		return in
	}
	out := *existing
	if v := strings.TrimSpace(in.Username); v != "" {
		out.Username = v
	}
	if v := strings.TrimSpace(in.FirstName); v != "" {
		out.FirstName = v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		out.LastName = v
	}
	meta := make(map[string]string, len(existing.Metadata)+len(in.Metadata))
	for k, v := range existing.Metadata {
		meta[k] = v
	}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	out.Metadata = meta
	out.LastActive = now
	return out
}

func validPlan(p types.Plan) bool {
	return strings.TrimSpace(p.Service) != "" && strings.TrimSpace(p.PlanID) != "" && p.DurationDays > 0
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
