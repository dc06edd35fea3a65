package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/cobra"

	"github.com/BatmanBruc/bat-bot-freepik/internal/admission"
	"github.com/BatmanBruc/bat-bot-freepik/internal/captcha"
	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/internal/delivery"
	"github.com/BatmanBruc/bat-bot-freepik/internal/handlers"
	"github.com/BatmanBruc/bat-bot-freepik/internal/httpapi"
	"github.com/BatmanBruc/bat-bot-freepik/internal/middleware"
	"github.com/BatmanBruc/bat-bot-freepik/internal/monitor"
	"github.com/BatmanBruc/bat-bot-freepik/internal/queue"
	"github.com/BatmanBruc/bat-bot-freepik/internal/reporting"
	"github.com/BatmanBruc/bat-bot-freepik/internal/scheduler"
	"github.com/BatmanBruc/bat-bot-freepik/internal/session"
	"github.com/BatmanBruc/bat-bot-freepik/internal/supervisor"
	"github.com/BatmanBruc/bat-bot-freepik/store"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const (
	pollTimeout  = 50 * time.Second
	chatStateTTL = 24
	redisPrefix  = "freepik_bot"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the download worker and the resource monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := reporting.Init(cfg.SentryDSN, cfg.Environment); err != nil {
				log.Printf("Sentry disabled: %v", err)
			}
			defer reporting.Flush(2 * time.Second)

			return supervisor.Run(ctx, "Bot", supervisor.DefaultPolicy(), func(ctx context.Context) error {
				return serve(ctx, cfg)
			})
		},
	}
}

// serve wires every component and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("download dir: %w", err)
	}

	entitlements, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
		Fallback:    true,
	})
	if err != nil {
		return err
	}
	defer entitlements.Close()

	if cfg.PlansFile != "" {
		plans, err := store.LoadPlansFile(cfg.PlansFile)
		if err != nil {
			return err
		}
		added, updated, err := store.SyncPlans(ctx, entitlements, plans)
		if err != nil {
			return err
		}
		log.Printf("Plans: %d added, %d updated from %s", added, updated, cfg.PlansFile)
	}

	chats, snapshots, closeRedis := openSessionStores(ctx, cfg)
	defer closeRedis()

	q := queue.New(cfg.MaxQueueSize)
	gate := admission.New(entitlements, q)

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	b, err := bot.New(cfg.TelegramToken, bot.WithHTTPClient(pollTimeout, httpClient))
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	factory := &session.Factory{
		Config: session.Config{
			Email:       cfg.FreepikEmail,
			Password:    cfg.FreepikPassword,
			DownloadDir: cfg.DownloadDir,
		},
		Launcher: &session.ChromeLauncher{
			Headless:   cfg.Headless,
			ExecPath:   cfg.ChromePath,
			StagingDir: filepath.Join(cfg.DownloadDir, ".incoming"),
		},
		Snapshots: snapshots,
		Solver:    captcha.NewClient(cfg.CaptchaAPIKey),
	}
	newSession := func(job types.Job, onPhase func(string)) scheduler.Session {
		return factory.New(job.UserID, onPhase)
	}

	worker := scheduler.NewScheduler(q, newSession, delivery.NewTelegram(b, chats), entitlements, scheduler.Config{
		LicenseDelay:  cfg.LicenseDelay,
		DownloadDir:   cfg.DownloadDir,
		CleanupMaxAge: cfg.CleanupMaxAge,
	})
	worker.Start()
	defer worker.Stop()

	go monitor.New(cfg.DownloadDir, handlers.ReceiptsDir, monitor.DefaultInterval).Run(ctx)

	if cfg.HTTPAddr != "" {
		go func() {
			if err := httpapi.Serve(ctx, cfg.HTTPAddr, q); err != nil {
				log.Printf("Status API stopped: %v", err)
			}
		}()
	}

	h := handlers.NewHandlers(entitlements, chats, gate, q, cfg)
	mw := middleware.NewMessageAnalyzer(entitlements)
	chain := mw.TrackUserMiddleware(mw.AnalyzeMessageMiddleware(h.MainHandler))

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, chain)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, chain)

	log.Printf("Freepik Downloader Bot started successfully!")
	log.Printf("Queue size: %d, Headless mode: %t", cfg.MaxQueueSize, cfg.Headless)
	b.Start(ctx)
	log.Printf("Bot stopped")
	return nil
}

// openSessionStores uses Redis for chat state and the browser session
// snapshot when it is configured and reachable, and local storage otherwise.
func openSessionStores(ctx context.Context, cfg *config.Config) (types.ChatStateStore, types.SnapshotStore, func()) {
	local := func() (types.ChatStateStore, types.SnapshotStore, func()) {
		return store.NewMemoryChatStore(), store.NewFileSnapshotStore(cfg.SessionStatePath), func() {}
	}

	addr := cfg.RedisAddr()
	if addr == "" {
		return local()
	}
	rc, err := store.NewRedisClient(ctx, addr, cfg.RedisPassword, cfg.RedisDB, redisPrefix)
	if err != nil {
		log.Printf("Redis at %s unavailable (%v), keeping chat state in memory", addr, err)
		return local()
	}
	return store.NewRedisChatStore(rc, chatStateTTL),
		store.NewRedisSnapshotStore(rc, "auth_state"),
		func() { _ = rc.Close() }
}
