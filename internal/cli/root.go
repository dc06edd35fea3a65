package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

// app carries what the commands share. Tests swap the openers.
type app struct {
	envFile     string
	openStore   func(ctx context.Context, cfg *config.Config) (types.EntitlementStore, error)
	openReports func(ctx context.Context, cfg *config.Config) (Reports, error)
	notify      Notifier
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{
		openStore:   openAdminStore,
		openReports: openReports,
		notify:      notifyTelegram,
	})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "freepik-bot",
		Short:         "Telegram bot that downloads Freepik resources for subscribers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(a.envFile)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env", config.DefaultEnvFile, "path to the environment file")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newAdminCmd(a))
	return root
}

// openAdminStore opens the configured store without the in-memory fallback,
// since admin changes made to a throwaway store would be lost.
func openAdminStore(ctx context.Context, cfg *config.Config) (types.EntitlementStore, error) {
	return store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	})
}

func openReports(ctx context.Context, cfg *config.Config) (Reports, error) {
	if cfg.StoreDriver != store.DriverPostgres {
		return nil, fmt.Errorf("reports need the %s store, configured %q", store.DriverPostgres, cfg.StoreDriver)
	}
	return store.NewReportStore(ctx, cfg.PostgresDSN)
}
