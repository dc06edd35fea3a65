package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/bat-bot-freepik/internal/messages"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

func newPlansCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "plans", Short: "Manage the subscription plan catalogue"}

	var (
		all     bool
		service string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				plans, err := c.store.ListPlans(c.ctx, all)
				if err != nil {
					return err
				}
				shown := make([]types.Plan, 0, len(plans))
				for _, p := range plans {
					if service == "" || p.Service == service {
						shown = append(shown, p)
					}
				}
				if len(shown) == 0 {
					suffix := ""
					if service != "" {
						suffix = " for " + service
					}
					fmt.Fprintf(c.out, "No subscription plans found%s.\n", suffix)
					return nil
				}
				fmt.Fprintln(c.out, "Subscription Plans:")
				tw := newTable(c.out, "SERVICE", "PLAN", "NAME", "PRICE", "DAYS", "DAILY LIMIT", "ACTIVE")
				for _, p := range shown {
					row(tw, p.Service, p.PlanID, p.Name, messages.Amount(p.Currency, p.Price),
						strconv.Itoa(p.DurationDays), strconv.Itoa(p.DownloadLimit), yesNo(p.Active))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include inactive plans")
	list.Flags().StringVar(&service, "service", "", "only plans of this service")

	var plan types.Plan
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a subscription plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if plan.PlanID == "" || plan.Name == "" || plan.DurationDays <= 0 {
				return fmt.Errorf("--id, --name and a positive --days are required")
			}
			return a.withStore(cmd, func(c *adminCtx) error {
				p := plan
				p.Active = true
				if _, err := c.store.AddPlan(c.ctx, p); err != nil {
					return fmt.Errorf("❌ Error adding subscription plan: %w", err)
				}
				fmt.Fprintf(c.out, "✅ Subscription plan '%s' for %s added successfully.\n", p.PlanID, p.Service)
				return nil
			})
		},
	}
	add.Flags().StringVar(&plan.Service, "service", types.ServiceFreepik, "service the plan belongs to")
	add.Flags().StringVar(&plan.PlanID, "id", "", "plan id, e.g. monthly")
	add.Flags().StringVar(&plan.Name, "name", "", "display name")
	add.Flags().StringVar(&plan.Description, "description", "", "description shown to users")
	add.Flags().Int64Var(&plan.Price, "price", 0, "price in whole currency units")
	add.Flags().StringVar(&plan.Currency, "currency", "LKR", "currency code")
	add.Flags().IntVar(&plan.DurationDays, "days", 0, "subscription length in days")
	add.Flags().IntVar(&plan.DownloadLimit, "limit", 10, "downloads per day")

	update := &cobra.Command{
		Use:   "update <service> <plan_id>",
		Short: "Change attributes of a plan; only the given flags are applied",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := planUpdateFromFlags(cmd)
			if upd.Empty() {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			return a.withStore(cmd, func(c *adminCtx) error {
				ok, err := c.store.UpdatePlan(c.ctx, args[0], args[1], upd)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("❌ Plan not found or no changes were made")
				}
				fmt.Fprintf(c.out, "✅ Subscription plan '%s' for %s updated successfully.\n", args[1], args[0])
				return nil
			})
		},
	}
	update.Flags().String("name", "", "display name")
	update.Flags().String("description", "", "description")
	update.Flags().Int64("price", 0, "price")
	update.Flags().String("currency", "", "currency code")
	update.Flags().Int("days", 0, "subscription length in days")
	update.Flags().Int("limit", 0, "downloads per day")
	update.Flags().Bool("active", true, "whether the plan can be bought")

	deactivate := &cobra.Command{
		Use:   "deactivate <service> <plan_id>",
		Short: "Hide a plan from users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				ok, err := c.store.DeactivatePlan(c.ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("❌ Plan not found or already inactive")
				}
				fmt.Fprintf(c.out, "✅ Subscription plan '%s' for %s deactivated successfully.\n", args[1], args[0])
				return nil
			})
		},
	}

	seed := &cobra.Command{
		Use:   "seed <plans.yaml>",
		Short: "Add or update plans from a YAML catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := store.LoadPlansFile(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(c *adminCtx) error {
				added, updated, err := store.SyncPlans(c.ctx, c.store, plans)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Plans synced from %s: %d added, %d updated.\n", args[0], added, updated)
				return nil
			})
		},
	}

	export := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the plan catalogue as YAML to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(c *adminCtx) error {
				plans, err := c.store.ListPlans(c.ctx, true)
				if err != nil {
					return err
				}
				data, err := store.MarshalPlans(plans)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = c.out.Write(data)
					return err
				}
				if err := os.WriteFile(args[0], data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Wrote %d plans to %s.\n", len(plans), args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, update, deactivate, seed, export)
	return cmd
}

func planUpdateFromFlags(cmd *cobra.Command) types.PlanUpdate {
	var upd types.PlanUpdate
	f := cmd.Flags()
	if f.Changed("name") {
		v, _ := f.GetString("name")
		upd.Name = &v
	}
	if f.Changed("description") {
		v, _ := f.GetString("description")
		upd.Description = &v
	}
	if f.Changed("price") {
		v, _ := f.GetInt64("price")
		upd.Price = &v
	}
	if f.Changed("currency") {
		v, _ := f.GetString("currency")
		upd.Currency = &v
	}
	if f.Changed("days") {
		v, _ := f.GetInt("days")
		upd.DurationDays = &v
	}
	if f.Changed("limit") {
		v, _ := f.GetInt("limit")
		upd.DownloadLimit = &v
	}
	if f.Changed("active") {
		v, _ := f.GetBool("active")
		upd.Active = &v
	}
	return upd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
