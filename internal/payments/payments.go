// Package payments applies admin decisions on payment proofs.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// ErrAlreadyProcessed is returned when a decided payment is changed again
// without a note.
var ErrAlreadyProcessed = errors.New("payment already processed")

type Store interface {
	GetPayment(ctx context.Context, id string) (*types.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status types.PaymentStatus, note string) (bool, error)
	GetSubscriptionByPayment(ctx context.Context, paymentID string) (*types.Subscription, error)
	ActivateSubscription(ctx context.Context, id string) (bool, error)
	UpsertUser(ctx context.Context, user types.User) (*types.User, error)
}

// Result is what changed for a decided payment. Subscription is nil when
// nothing was linked to the payment.
type Result struct {
	Payment      *types.Payment
	Subscription *types.Subscription
}

// Approve marks the payment approved and activates the subscription that
// was created with it.
func Approve(ctx context.Context, s Store, paymentID, note string, now time.Time) (*Result, error) {
	if err := setStatus(ctx, s, paymentID, types.PaymentApproved, note); err != nil {
		return nil, err
	}
	p, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	res := &Result{Payment: p}

	sub, err := s.GetSubscriptionByPayment(ctx, paymentID)
	if errors.Is(err, types.ErrNotFound) {
		log.Printf("No subscription linked to payment %s", paymentID)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	if _, err := s.ActivateSubscription(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("activate subscription %s: %w", sub.ID, err)
	}
	sub.Status = types.SubscriptionActive
	res.Subscription = sub

	_, err = s.UpsertUser(ctx, types.User{
		UserID: p.UserID,
		Metadata: map[string]string{
			"approved_payment_id": p.ID,
			"payment_approved_at": now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		log.Printf("Error updating user %d after payment approval: %v", p.UserID, err)
	}
	return res, nil
}

// Reject marks the payment rejected. The linked subscription stays pending
// and never becomes active.
func Reject(ctx context.Context, s Store, paymentID, note string) (*types.Payment, error) {
	if err := setStatus(ctx, s, paymentID, types.PaymentRejected, note); err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, paymentID)
}

func setStatus(ctx context.Context, s Store, paymentID string, status types.PaymentStatus, note string) error {
	ok, err := s.UpdatePaymentStatus(ctx, paymentID, status, note)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", paymentID, err)
	}
	if ok {
		return nil
	}
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return err
	}
	return ErrAlreadyProcessed
}
