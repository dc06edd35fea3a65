package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeReports struct {
	recent []store.PaymentSummary
}

func (f *fakeReports) PaymentTotals(ctx context.Context) ([]store.PaymentTotal, error) {
	return []store.PaymentTotal{{Status: "approved", Count: 1, Amount: 1500}}, nil
}

func (f *fakeReports) RecentPayments(ctx context.Context, limit int) ([]store.PaymentSummary, error) {
	return f.recent, nil
}

func (f *fakeReports) UserReport(ctx context.Context, userID int64) (*store.UserReport, error) {
	return &store.UserReport{UserID: userID, Payments: 1, Downloads: 4, DownloadsToday: 2}, nil
}

func (f *fakeReports) Close() error { return nil }

type testApp struct {
	*app
	store *store.MemoryStore
	sent  []sentMessage
}

func newTestApp(t *testing.T, reports Reports) *testApp {
	t.Helper()
	ta := &testApp{store: store.NewMemoryStore()}
	ta.app = &app{
		openStore: func(ctx context.Context, cfg *config.Config) (types.EntitlementStore, error) {
			return ta.store, nil
		},
		openReports: func(ctx context.Context, cfg *config.Config) (Reports, error) {
			if reports == nil {
				return nil, errors.New("reports unavailable")
			}
			return reports, nil
		},
		notify: func(ctx context.Context, cfg *config.Config, chatID int64, text string) error {
			ta.sent = append(ta.sent, sentMessage{chatID: chatID, text: text})
			return nil
		},
	}
	return ta
}

func (ta *testApp) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(ta.app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env=" + filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func (ta *testApp) pendingPayment(t *testing.T, uid int64) *types.Payment {
	t.Helper()
	ctx := context.Background()
	_, err := ta.store.UpsertUser(ctx, types.User{UserID: uid, Username: "ann", FirstName: "Ann"})
	require.NoError(t, err)
	p, err := ta.store.CreatePayment(ctx, types.Payment{
		UserID:    uid,
		Amount:    1500,
		Service:   types.ServiceFreepik,
		PlanID:    "monthly",
		UserNotes: "paid from BOC",
	})
	require.NoError(t, err)
	_, err = ta.store.CreateSubscription(ctx, uid, types.ServiceFreepik, "monthly", p.ID)
	require.NoError(t, err)
	return p
}

func TestPlansList(t *testing.T) {
	ta := newTestApp(t, nil)
	out, err := ta.run(t, "admin", "plans", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "monthly")
	assert.Contains(t, out, "yearly")
	assert.Contains(t, out, "LKR 1,500")
	assert.Contains(t, out, "| SERVICE |")
	assert.Contains(t, out, "| freepik |")
	assert.Contains(t, out, "+---------+")
}

func TestPlansAddUpdateDeactivate(t *testing.T) {
	ta := newTestApp(t, nil)
	ctx := context.Background()

	out, err := ta.run(t, "admin", "plans", "add", "--id", "weekly", "--name", "Weekly", "--price", "500", "--days", "7", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "'weekly' for freepik added")

	_, err = ta.run(t, "admin", "plans", "update", "freepik", "weekly", "--price", "450")
	require.NoError(t, err)
	p, err := ta.store.GetActivePlan(ctx, types.ServiceFreepik, "weekly")
	require.NoError(t, err)
	assert.Equal(t, int64(450), p.Price)
	assert.Equal(t, 5, p.DownloadLimit)

	_, err = ta.run(t, "admin", "plans", "update", "freepik", "weekly")
	assert.Error(t, err)

	_, err = ta.run(t, "admin", "plans", "deactivate", "freepik", "weekly")
	require.NoError(t, err)
	_, err = ta.store.GetActivePlan(ctx, types.ServiceFreepik, "weekly")
	assert.ErrorIs(t, err, types.ErrNotFound)

	out, err = ta.run(t, "admin", "plans", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "weekly")
}

func TestPlansSeedAndExport(t *testing.T) {
	ta := newTestApp(t, nil)
	dir := t.TempDir()
	catalogue := filepath.Join(dir, "plans.yaml")
	require.NoError(t, os.WriteFile(catalogue, []byte(`plans:
  - service: freepik
    plan_id: monthly
    name: Monthly
    price: 1700
    duration_days: 30
    download_limit: 12
  - service: freepik
    plan_id: quarterly
    name: Quarterly
    price: 4200
    duration_days: 90
    download_limit: 10
`), 0o644))

	out, err := ta.run(t, "admin", "plans", "seed", catalogue)
	require.NoError(t, err)
	assert.Contains(t, out, "1 added, 1 updated")

	exported := filepath.Join(dir, "out.yaml")
	_, err = ta.run(t, "admin", "plans", "export", exported)
	require.NoError(t, err)
	plans, err := store.LoadPlansFile(exported)
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}

func TestPaymentsPendingAndApprove(t *testing.T) {
	ta := newTestApp(t, nil)
	p := ta.pendingPayment(t, 42)

	out, err := ta.run(t, "admin", "payments", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "| "+p.ID+" |")
	assert.Contains(t, out, "| paid from BOC |")

	out, err = ta.run(t, "admin", "payments", "approve", p.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "approved and subscription activated for user 42")

	sub, err := ta.store.GetActiveSubscription(context.Background(), 42, types.ServiceFreepik)
	require.NoError(t, err)
	assert.Equal(t, p.ID, sub.PaymentID)
	require.Len(t, ta.sent, 1)
	assert.Equal(t, int64(42), ta.sent[0].chatID)

	out, err = ta.run(t, "admin", "payments", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending payments found.")
}

func TestPaymentsDecidedNeedsNote(t *testing.T) {
	ta := newTestApp(t, nil)
	p := ta.pendingPayment(t, 7)

	_, err := ta.run(t, "admin", "payments", "reject", p.ID)
	require.NoError(t, err)
	got, err := ta.store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentRejected, got.Status)
	assert.Equal(t, "Rejected payment", got.AdminNotes)

	_, err = ta.run(t, "admin", "payments", "approve", p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--note")

	_, err = ta.run(t, "admin", "payments", "approve", p.ID, "--note", "bank confirmed late")
	require.NoError(t, err)
	got, err = ta.store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentApproved, got.Status)
}

func TestPaymentsUnknownID(t *testing.T) {
	ta := newTestApp(t, nil)
	_, err := ta.run(t, "admin", "payments", "approve", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPaymentsView(t *testing.T) {
	ta := newTestApp(t, nil)
	p := ta.pendingPayment(t, 42)

	out, err := ta.run(t, "admin", "payments", "view", p.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Username: ann")
	assert.Contains(t, out, "Amount: 1500 LKR")
	assert.Contains(t, out, "Payment proof received")
	assert.Contains(t, out, "Linked Subscription:")
}

func TestPaymentsStats(t *testing.T) {
	ta := newTestApp(t, &fakeReports{})
	ta.pendingPayment(t, 1)

	out, err := ta.run(t, "admin", "payments", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending")
	assert.Contains(t, out, "Payment Totals:")
}

func TestPaymentsRecent(t *testing.T) {
	ta := newTestApp(t, &fakeReports{recent: []store.PaymentSummary{{
		ID: "p-1", UserID: 9, Username: "kim", Amount: 5800, Currency: "LKR",
		Service: "freepik", PlanID: "yearly", Status: "approved", PaymentDate: time.Now(),
	}}})

	out, err := ta.run(t, "admin", "payments", "recent", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent Payments (Latest 1)")
	assert.Contains(t, out, "| p-1 |")
	assert.Contains(t, out, "| LKR 5,800 |")

	ta = newTestApp(t, nil)
	_, err = ta.run(t, "admin", "payments", "recent")
	assert.Error(t, err)
}

func TestUsersInfoAndSubscriptions(t *testing.T) {
	ta := newTestApp(t, &fakeReports{})
	p := ta.pendingPayment(t, 42)
	_, err := ta.run(t, "admin", "payments", "approve", p.ID)
	require.NoError(t, err)

	out, err := ta.run(t, "admin", "users", "info", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Freepik Monthly")
	assert.Contains(t, out, "0/10 downloads used")
	assert.Contains(t, out, "approved_payment_id")
	assert.Contains(t, out, "Downloads: 4 (today 2)")

	out, err = ta.run(t, "admin", "users", "subscriptions", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "| active |")
	assert.Contains(t, out, "| "+p.ID+" |")

	_, err = ta.run(t, "admin", "users", "info", "abc")
	assert.Error(t, err)
}
