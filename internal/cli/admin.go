package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/internal/payments"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const timeLayout = "2006-01-02 15:04:05"

// Reports are the aggregate queries only the Postgres schema can answer.
type Reports interface {
	PaymentTotals(ctx context.Context) ([]store.PaymentTotal, error)
	RecentPayments(ctx context.Context, limit int) ([]store.PaymentSummary, error)
	UserReport(ctx context.Context, userID int64) (*store.UserReport, error)
	Close() error
}

// Notifier tells a user about an admin decision made from the command line.
type Notifier func(ctx context.Context, cfg *config.Config, chatID int64, text string) error

func notifyTelegram(ctx context.Context, cfg *config.Config, chatID int64, text string) error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN not set")
	}
	b, err := bot.New(cfg.TelegramToken, bot.WithSkipGetMe())
	if err != nil {
		return err
	}
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ParseMode: messages.ParseModeHTML})
	return err
}

type adminCtx struct {
	ctx   context.Context
	cfg   *config.Config
	store types.EntitlementStore
	out   io.Writer
}

func (a *app) withStore(cmd *cobra.Command, fn func(c *adminCtx) error) error {
	cfg := config.FromEnv()
	s, err := a.openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(&adminCtx{ctx: cmd.Context(), cfg: cfg, store: s, out: cmd.OutOrStdout()})
}

func newAdminCmd(a *app) *cobra.Command {
	if a.notify == nil {
		a.notify = notifyTelegram
	}
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage payments, plans and users",
	}
	admin.AddCommand(newPaymentsCmd(a), newPlansCmd(a), newUsersCmd(a), newMigrateCmd(a))
	return admin
}

func newPaymentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "payments", Short: "Review payment proofs"}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List payments waiting for review, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				list, err := c.store.ListPendingPayments(c.ctx)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(c.out, "No pending payments found.")
					return nil
				}
				fmt.Fprintln(c.out, "Pending Payments:")
				tw := newTable(c.out, "ID", "USER", "AMOUNT", "SERVICE", "PLAN", "DATE", "NOTES")
				for _, p := range list {
					row(tw, p.ID, strconv.FormatInt(p.UserID, 10), messages.Amount(p.Currency, p.Amount),
						p.Service, p.PlanID, p.PaymentDate.Format(timeLayout), messages.Truncate(p.UserNotes, 30))
				}
				tw.Render()
				return nil
			})
		},
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the latest payments of any status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			reports, err := a.openReports(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer reports.Close()

			list, err := reports.RecentPayments(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No payment records found.")
				return nil
			}
			fmt.Fprintf(out, "Recent Payments (Latest %d):\n", len(list))
			tw := newTable(out, "ID", "USER", "USERNAME", "AMOUNT", "SERVICE", "PLAN", "STATUS", "DATE")
			for _, p := range list {
				row(tw, p.ID, strconv.FormatInt(p.UserID, 10), p.Username, messages.Amount(p.Currency, p.Amount),
					p.Service, p.PlanID, p.Status, p.PaymentDate.Format(timeLayout))
			}
			tw.Render()
			return nil
		},
	}
	recent.Flags().IntVar(&limit, "limit", 20, "number of payments to show")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count payments by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				counts, err := c.store.CountPaymentsByStatus(c.ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Payment Status Statistics:")
				tw := newTable(c.out, "STATUS", "COUNT")
				for _, st := range []types.PaymentStatus{types.PaymentPending, types.PaymentApproved, types.PaymentRejected} {
					row(tw, messages.Capitalize(string(st)), strconv.Itoa(counts[st]))
				}
				tw.Render()

				reports, err := a.openReports(c.ctx, c.cfg)
				if err != nil {
					return nil
				}
				defer reports.Close()
				totals, err := reports.PaymentTotals(c.ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, "\nPayment Totals:")
				tw = newTable(c.out, "STATUS", "COUNT", "AMOUNT")
				for _, t := range totals {
					row(tw, messages.Capitalize(t.Status), strconv.Itoa(t.Count), strconv.FormatInt(t.Amount, 10))
				}
				tw.Render()
				return nil
			})
		},
	}

	view := &cobra.Command{
		Use:   "view <payment_id>",
		Short: "Show a payment with its history and linked subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				return viewPayment(c, args[0])
			})
		},
	}

	var approveNote string
	approve := &cobra.Command{
		Use:   "approve <payment_id>",
		Short: "Approve a payment and activate its subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				res, err := payments.Approve(c.ctx, c.store, args[0], approveNote, time.Now())
				if err != nil {
					return decisionError(args[0], "approved", err)
				}
				p := res.Payment
				if res.Subscription != nil {
					fmt.Fprintf(c.out, "✅ Payment %s approved and subscription activated for user %d.\n", p.ID, p.UserID)
					fmt.Fprintf(c.out, "Service: %s, Plan: %s\n", p.Service, p.PlanID)
				} else {
					fmt.Fprintf(c.out, "✅ Payment %s approved but no linked subscription found.\n", p.ID)
				}
				a.tellUser(c, p.UserID, messages.UserPaymentApproved(p.Service, p.PlanID))
				return nil
			})
		},
	}
	approve.Flags().StringVar(&approveNote, "note", "", "admin note, required to change a decided payment")

	var rejectNote string
	reject := &cobra.Command{
		Use:   "reject <payment_id>",
		Short: "Reject a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				p, err := payments.Reject(c.ctx, c.store, args[0], rejectNote)
				if err != nil {
					return decisionError(args[0], "rejected", err)
				}
				fmt.Fprintf(c.out, "❌ Payment %s rejected.\n", p.ID)
				a.tellUser(c, p.UserID, messages.UserPaymentRejected(p.Service, p.PlanID))
				return nil
			})
		},
	}
	reject.Flags().StringVar(&rejectNote, "note", "Rejected payment", "admin note")

	cmd.AddCommand(pending, recent, stats, view, approve, reject)
	return cmd
}

func decisionError(id, verb string, err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return fmt.Errorf("payment with ID %s not found", id)
	case errors.Is(err, payments.ErrAlreadyProcessed):
		return fmt.Errorf("payment %s was already decided, pass --note to mark it %s anyway", id, verb)
	default:
		return err
	}
}

func (a *app) tellUser(c *adminCtx, userID int64, text string) {
	if err := a.notify(c.ctx, c.cfg, userID, text); err != nil {
		fmt.Fprintf(c.out, "NOTE: could not notify user %d via Telegram: %v\n", userID, err)
		return
	}
	fmt.Fprintf(c.out, "User %d notified via Telegram.\n", userID)
}

func viewPayment(c *adminCtx, id string) error {
	p, err := c.store.GetPayment(c.ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("payment with ID %s not found", id)
	}
	if err != nil {
		return err
	}
	username, name := "Unknown", "Unknown"
	if u, err := c.store.GetUser(c.ctx, p.UserID); err == nil {
		if u.Username != "" {
			username = u.Username
		}
		if n := u.FullName(); n != "" {
			name = n
		}
	}

	w := c.out
	fmt.Fprintln(w, "Payment Details:")
	fmt.Fprintf(w, "ID: %s\n", p.ID)
	fmt.Fprintf(w, "User ID: %d\n", p.UserID)
	fmt.Fprintf(w, "Username: %s\n", username)
	fmt.Fprintf(w, "Name: %s\n", name)
	fmt.Fprintf(w, "Amount: %d %s\n", p.Amount, p.Currency)
	fmt.Fprintf(w, "Service: %s\n", messages.Capitalize(p.Service))
	fmt.Fprintf(w, "Plan: %s\n", messages.Capitalize(p.PlanID))
	fmt.Fprintf(w, "Payment Date: %s\n", p.PaymentDate.Format(timeLayout))
	fmt.Fprintf(w, "Status: %s\n", messages.Capitalize(string(p.Status)))
	if p.ImageURL != "" {
		fmt.Fprintf(w, "Image URL: %s\n", p.ImageURL)
	}
	if p.ImagePath != "" {
		fmt.Fprintf(w, "Local Image Path: %s\n", p.ImagePath)
	}
	if p.ImageFileID != "" {
		fmt.Fprintf(w, "Telegram File ID: %s\n", p.ImageFileID)
	}
	if p.UserNotes != "" {
		fmt.Fprintf(w, "User Notes: %s\n", p.UserNotes)
	}
	if p.AdminNotes != "" {
		fmt.Fprintf(w, "Admin Notes: %s\n", p.AdminNotes)
	}
	if len(p.History) > 0 {
		fmt.Fprintln(w, "\nStatus History:")
		for i, h := range p.History {
			fmt.Fprintf(w, "  %d. %s - %s\n", i+1, h.Status, h.At.Format(timeLayout))
			if h.Note != "" {
				fmt.Fprintf(w, "     Notes: %s\n", h.Note)
			}
		}
	}

	sub, err := c.store.GetSubscriptionByPayment(c.ctx, p.ID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		return nil
	}
	fmt.Fprintln(w, "\nLinked Subscription:")
	fmt.Fprintf(w, "ID: %s\n", sub.ID)
	fmt.Fprintf(w, "Status: %s\n", sub.Status)
	fmt.Fprintf(w, "Start Date: %s\n", sub.StartDate.Format(timeLayout))
	fmt.Fprintf(w, "End Date: %s\n", sub.EndDate.Format(timeLayout))
	if sub.ActivatedAt != nil {
		fmt.Fprintf(w, "Activated At: %s\n", sub.ActivatedAt.Format(timeLayout))
	}
	return nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			version, err := store.MigratePostgres(cmd.Context(), cfg.PostgresDSN)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database is at schema version %d\n", version)
			return nil
		},
	}
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

func row(tw *tablewriter.Table, cols ...string) {
	tw.Append(cols)
}
