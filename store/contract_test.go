package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runEntitlementContract exercises behaviour every EntitlementStore must share.
func runEntitlementContract(t *testing.T, open func(t *testing.T) types.EntitlementStore) {
	t.Run("UpsertUserMerges", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		first, err := s.UpsertUser(ctx, types.User{UserID: 7, Username: "ann", FirstName: "Ann"})
		require.NoError(t, err)
		registered := first.RegisteredAt

		_, err = s.UpsertUser(ctx, types.User{UserID: 7, LastName: "Lee", Metadata: map[string]string{"language_code": "en"}})
		require.NoError(t, err)

		u, err := s.GetUser(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "ann", u.Username)
		assert.Equal(t, "Ann", u.FirstName)
		assert.Equal(t, "Lee", u.LastName)
		assert.Equal(t, "en", u.Metadata["language_code"])
		assert.WithinDuration(t, registered, u.RegisteredAt, time.Second)
		assert.False(t, u.LastActive.Before(registered))

		_, err = s.GetUser(ctx, 8)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})

	t.Run("DefaultPlansSeeded", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		monthly, err := s.GetActivePlan(ctx, types.ServiceFreepik, "monthly")
		require.NoError(t, err)
		assert.Equal(t, 30, monthly.DurationDays)
		assert.Equal(t, 10, monthly.DownloadLimit)
		assert.EqualValues(t, 1500, monthly.Price)

		yearly, err := s.GetActivePlan(ctx, types.ServiceFreepik, "yearly")
		require.NoError(t, err)
		assert.Equal(t, 365, yearly.DurationDays)
		assert.EqualValues(t, 5800, yearly.Price)
	})

	t.Run("PlanCatalogue", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.AddPlan(ctx, types.Plan{Service: "freepik", PlanID: "weekly", Name: "Weekly", Price: 500, Currency: "LKR", DurationDays: 7, DownloadLimit: 5, Active: true})
		require.NoError(t, err)

		_, err = s.AddPlan(ctx, types.Plan{Service: "freepik", PlanID: "weekly", DurationDays: 7})
		assert.True(t, errors.Is(err, types.ErrAlreadyExists))

		price := int64(650)
		ok, err := s.UpdatePlan(ctx, "freepik", "weekly", types.PlanUpdate{Price: &price})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdatePlan(ctx, "freepik", "missing", types.PlanUpdate{Price: &price})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeactivatePlan(ctx, "freepik", "weekly")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.GetActivePlan(ctx, "freepik", "weekly")
		assert.True(t, errors.Is(err, types.ErrNotFound))

		active, err := s.ListPlans(ctx, false)
		require.NoError(t, err)
		all, err := s.ListPlans(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 2)
		assert.Len(t, all, 3)
		for _, p := range all {
			if p.PlanID == "weekly" {
				assert.EqualValues(t, 650, p.Price)
				assert.False(t, p.Active)
			}
		}
	})

	t.Run("SubscriptionDurations", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		sub, err := s.CreateSubscription(ctx, 1, "freepik", "monthly", "")
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionPending, sub.Status)
		assert.Equal(t, sub.StartDate.AddDate(0, 0, 30).Unix(), sub.EndDate.Unix())
		require.Len(t, sub.History, 1)
		assert.Equal(t, types.NoteSubscriptionCreated, sub.History[0].Note)

		_, err = s.DeactivatePlan(ctx, "freepik", "yearly")
		require.NoError(t, err)
		legacy, err := s.CreateSubscription(ctx, 1, "freepik", "yearly", "")
		require.NoError(t, err)
		assert.Equal(t, legacy.StartDate.AddDate(0, 0, 365).Unix(), legacy.EndDate.Unix())

		_, err = s.CreateSubscription(ctx, 1, "freepik", "lifetime", "")
		assert.True(t, errors.Is(err, types.ErrInvalidPlan))
	})

	t.Run("ActivationAppendsHistory", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		ok, err := s.ActivateSubscription(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, ok)

		sub, err := s.CreateSubscription(ctx, 2, "freepik", "monthly", "pay-1")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			ok, err = s.ActivateSubscription(ctx, sub.ID)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		got, err := s.GetSubscriptionByPayment(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionActive, got.Status)
		require.Len(t, got.History, 3)
		assert.Equal(t, types.NoteSubscriptionActivated, got.History[2].Note)
		assert.NotNil(t, got.ActivatedAt)
	})

	t.Run("ActiveSubscriptionFurthestEndDate", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.GetActiveSubscription(ctx, 3, "freepik")
		assert.True(t, errors.Is(err, types.ErrNotFound))

		monthly, err := s.CreateSubscription(ctx, 3, "freepik", "monthly", "")
		require.NoError(t, err)
		yearly, err := s.CreateSubscription(ctx, 3, "freepik", "yearly", "")
		require.NoError(t, err)

		_, err = s.GetActiveSubscription(ctx, 3, "freepik")
		assert.True(t, errors.Is(err, types.ErrNotFound), "pending subscriptions do not count")

		_, err = s.ActivateSubscription(ctx, monthly.ID)
		require.NoError(t, err)
		_, err = s.ActivateSubscription(ctx, yearly.ID)
		require.NoError(t, err)

		active, err := s.GetActiveSubscription(ctx, 3, "freepik")
		require.NoError(t, err)
		assert.Equal(t, yearly.ID, active.ID)

		subs, err := s.ListUserSubscriptions(ctx, 3)
		require.NoError(t, err)
		require.Len(t, subs, 2)
		assert.Equal(t, yearly.ID, subs[0].ID)
	})

	t.Run("PaymentLifecycle", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		p, err := s.CreatePayment(ctx, types.Payment{UserID: 4, Amount: 1500, Service: "freepik", PlanID: "monthly", UserNotes: "ref 4", ImageFileID: "file-1"})
		require.NoError(t, err)
		assert.Equal(t, types.PaymentPending, p.Status)
		require.Len(t, p.History, 1)
		assert.Equal(t, types.NotePaymentReceived, p.History[0].Note)

		ok, err := s.UpdatePaymentStatus(ctx, p.ID, types.PaymentApproved, "Approved by admin 1 via Telegram")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PaymentApproved, got.Status)
		assert.Equal(t, "Approved by admin 1 via Telegram", got.AdminNotes)
		require.Len(t, got.History, 2)

		ok, err = s.UpdatePaymentStatus(ctx, p.ID, types.PaymentRejected, "")
		require.NoError(t, err)
		assert.False(t, ok, "terminal status needs a note")

		got, err = s.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PaymentApproved, got.Status)
		assert.Len(t, got.History, 2)

		ok, err = s.UpdatePaymentStatus(ctx, "missing", types.PaymentApproved, "x")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.UpdatePaymentStatus(ctx, p.ID, types.PaymentStatus("refunded"), "x")
		assert.Error(t, err)
	})

	t.Run("PaymentListings", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

		older, err := s.CreatePayment(ctx, types.Payment{UserID: 5, Amount: 1500, Service: "freepik", PlanID: "monthly", PaymentDate: base})
		require.NoError(t, err)
		newer, err := s.CreatePayment(ctx, types.Payment{UserID: 5, Amount: 5800, Service: "freepik", PlanID: "yearly", PaymentDate: base.Add(time.Minute)})
		require.NoError(t, err)
		other, err := s.CreatePayment(ctx, types.Payment{UserID: 6, Amount: 1500, Service: "freepik", PlanID: "monthly", PaymentDate: base.Add(2 * time.Minute)})
		require.NoError(t, err)

		_, err = s.UpdatePaymentStatus(ctx, other.ID, types.PaymentRejected, "")
		require.NoError(t, err)

		pending, err := s.ListPendingPayments(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, older.ID, pending[0].ID)
		assert.Equal(t, newer.ID, pending[1].ID)

		mine, err := s.ListUserPayments(ctx, 5, 10)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID)

		counts, err := s.CountPaymentsByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[types.PaymentPending])
		assert.Equal(t, 1, counts[types.PaymentRejected])
		assert.Equal(t, 0, counts[types.PaymentApproved])
	})

	t.Run("QuotaWithoutSubscription", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		rec, err := s.GetOrInitQuota(ctx, 9, "freepik", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Limit)
		assert.Equal(t, 0, rec.Count)

		ok, err := s.CanDownload(ctx, 9, "freepik")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("QuotaCountsAndBoundary", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		sub, err := s.CreateSubscription(ctx, 10, "freepik", "monthly", "")
		require.NoError(t, err)
		_, err = s.ActivateSubscription(ctx, sub.ID)
		require.NoError(t, err)

		today := time.Now().UTC()
		for i := 0; i < 9; i++ {
			ok, err := s.IncrementQuota(ctx, 10, "freepik", today)
			require.NoError(t, err)
			require.True(t, ok)
		}

		rec, err := s.GetOrInitQuota(ctx, 10, "freepik", today)
		require.NoError(t, err)
		assert.Equal(t, 9, rec.Count)
		assert.Equal(t, 10, rec.Limit)
		assert.Equal(t, types.Day(today), rec.Day.UTC())

		ok, err := s.CanDownload(ctx, 10, "freepik")
		require.NoError(t, err)
		assert.True(t, ok, "count == limit-1 still allows")

		_, err = s.IncrementQuota(ctx, 10, "freepik", today)
		require.NoError(t, err)

		ok, err = s.CanDownload(ctx, 10, "freepik")
		require.NoError(t, err)
		assert.False(t, ok, "count == limit blocks")

		yesterday, err := s.GetOrInitQuota(ctx, 10, "freepik", today.AddDate(0, 0, -1))
		require.NoError(t, err)
		assert.Equal(t, 0, yesterday.Count)
	})

	t.Run("DownloadsAudit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

		for i := 0; i < 3; i++ {
			_, err := s.RecordDownload(ctx, types.Download{
				UserID:    11,
				Service:   "freepik",
				URL:       "https://www.freepik.com/free-photo/x_1.htm",
				FileName:  []string{"a.zip", "b.zip", "c.zip"}[i],
				Size:      int64(100 * (i + 1)),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		got, err := s.ListUserDownloads(ctx, 11, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c.zip", got[0].FileName)
		assert.Equal(t, "b.zip", got[1].FileName)
		assert.NotEmpty(t, got[0].ID)
	})
}
