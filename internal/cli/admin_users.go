package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Inspect users"}

	subs := &cobra.Command{
		Use:   "subscriptions <user_id>",
		Short: "List all subscriptions of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(c *adminCtx) error {
				u, err := c.store.GetUser(c.ctx, uid)
				if errors.Is(err, types.ErrNotFound) {
					return fmt.Errorf("user with ID %d not found", uid)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, "User Information:")
				fmt.Fprintf(c.out, "ID: %d\n", u.UserID)
				fmt.Fprintf(c.out, "Username: %s\n", orDefault(u.Username, "Unknown"))
				fmt.Fprintf(c.out, "Name: %s\n", orDefault(u.FullName(), "Unknown"))

				list, err := c.store.ListUserSubscriptions(c.ctx, uid)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(c.out, "\nNo subscriptions found for this user.")
					return nil
				}
				now := time.Now()
				fmt.Fprintln(c.out, "\nUser's Subscriptions:")
				tw := newTable(c.out, "ID", "SERVICE", "PLAN", "STATUS", "START", "END", "DAYS LEFT", "PAYMENT")
				for _, s := range list {
					row(tw, s.ID, s.Service, s.PlanID, string(s.Status), s.StartDate.Format(dateLayout),
						s.EndDate.Format(dateLayout), daysLeft(s, now), orDefault(s.PaymentID, "-"))
				}
				tw.Render()
				return nil
			})
		},
	}

	info := &cobra.Command{
		Use:   "info <user_id>",
		Short: "Show a user's profile, active subscriptions and today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(c *adminCtx) error {
				u, err := c.store.GetUser(c.ctx, uid)
				if errors.Is(err, types.ErrNotFound) {
					return fmt.Errorf("user not found")
				}
				if err != nil {
					return err
				}
				w := c.out
				fmt.Fprintln(w, "User Information:")
				fmt.Fprintf(w, "ID: %d\n", u.UserID)
				fmt.Fprintf(w, "Username: %s\n", orDefault(u.Username, "Not set"))
				fmt.Fprintf(w, "Name: %s\n", orDefault(u.FullName(), "Not set"))
				fmt.Fprintf(w, "First Name: %s\n", orDefault(u.FirstName, "Not set"))
				fmt.Fprintf(w, "Last Name: %s\n", orDefault(u.LastName, "Not set"))
				fmt.Fprintf(w, "Registered: %s\n", u.RegisteredAt.Format(timeLayout))
				fmt.Fprintf(w, "Last Active: %s\n", u.LastActive.Format(timeLayout))

				if len(u.Metadata) > 0 {
					keys := make([]string, 0, len(u.Metadata))
					for k := range u.Metadata {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					fmt.Fprintln(w, "\nMetadata:")
					for _, k := range keys {
						fmt.Fprintf(w, "  %s: %s\n", k, u.Metadata[k])
					}
				}

				now := time.Now()
				sub, err := c.store.GetActiveSubscription(c.ctx, uid, types.ServiceFreepik)
				switch {
				case err == nil:
					fmt.Fprintln(w, "\nActive Subscriptions:")
					fmt.Fprintf(w, "  %s %s\n", messages.Capitalize(sub.Service), messages.Capitalize(sub.PlanID))
					fmt.Fprintf(w, "    Expires: %s (%s days left)\n", sub.EndDate.Format(dateLayout), daysLeft(*sub, now))

					quota, err := c.store.GetOrInitQuota(c.ctx, uid, types.ServiceFreepik, now)
					if err != nil {
						fmt.Fprintf(w, "Error getting download limits: %v\n", err)
					} else {
						fmt.Fprintln(w, "\nDownload Limits (Today):")
						fmt.Fprintf(w, "  Freepik: %d/%d downloads used\n", quota.Count, quota.Limit)
					}
				case errors.Is(err, types.ErrNotFound):
					fmt.Fprintln(w, "\nNo active subscriptions found.")
				default:
					return err
				}

				reports, err := a.openReports(c.ctx, c.cfg)
				if err != nil {
					return nil
				}
				defer reports.Close()
				rep, err := reports.UserReport(c.ctx, uid)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "\nTotals:")
				fmt.Fprintf(w, "  Subscriptions: %d\n  Payments: %d\n  Downloads: %d (today %d)\n",
					rep.Subscriptions, rep.Payments, rep.Downloads, rep.DownloadsToday)
				return nil
			})
		},
	}

	cmd.AddCommand(subs, info)
	return cmd
}

const dateLayout = "2006-01-02"

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func daysLeft(s types.Subscription, now time.Time) string {
	if !s.EndDate.After(now) {
		return "0"
	}
	return strconv.Itoa(int(s.EndDate.Sub(now).Hours() / 24))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
