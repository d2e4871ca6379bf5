package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/chiralgate/api"
	"github.com/jmcleod/chiralgate/broadcast"
	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/history"
	boltstore "github.com/jmcleod/chiralgate/history/bbolt"
	"github.com/jmcleod/chiralgate/internal/config"
	"github.com/jmcleod/chiralgate/internal/dispatch"
	"github.com/jmcleod/chiralgate/metrics"
	"github.com/jmcleod/chiralgate/onebot"
	"github.com/jmcleod/chiralgate/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Receive OneBot events and verify new group members",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	hist, err := boltstore.Open(filepath.Join(cfg.DataDir, "history.db"), nil)
	if err != nil {
		return fmt.Errorf("failed to open outcome history: %w", err)
	}
	defer hist.Close()

	store := session.NewMemoryStore()

	// The detector fires while locked, so admin alerts are sent from their
	// own goroutine. coord is assigned before any event is accepted.
	var coord *gate.Coordinator
	detector := metrics.NewDetector(func(ev metrics.AlertEvent) {
		logger.Warn("anomaly detected",
			"type", string(ev.Type),
			"count", ev.Count,
			"threshold", ev.Threshold,
			"window", ev.Window.String(),
		)
		go coord.NotifyAdmins(context.Background(), "⚠️ "+ev.Message)
	})

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, store.Len, detector)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	questions, err := captcha.New(cfg.Captcha())
	if err != nil {
		return err
	}
	bot, err := onebot.NewClient(onebot.Options{
		BaseURL: cfg.OneBotAPI,
		Token:   cfg.OneBotToken,
		Timeout: cfg.OneBotTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	recorders := gate.Recorders{history.NewRecorder(hist, logger), m}
	if cfg.RedisAddr != "" {
		password, err := cfg.RedisPassword.Reveal()
		if err != nil {
			return fmt.Errorf("redis_password: %w", err)
		}
		bc, err := broadcast.Dial(ctx, broadcast.Options{
			Addr:     cfg.RedisAddr,
			Password: password,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer bc.Close()
		recorders = append(recorders, bc)
	}

	opts := []gate.Option{gate.WithRecorder(recorders), gate.WithLogger(logger)}
	if id, err := selfID(ctx, bot); err != nil {
		logger.Warn("could not resolve bot account; self joins will not be filtered", "error", err.Error())
	} else {
		opts = append(opts, gate.WithSelfID(id))
	}
	coord = gate.New(cfg.Gate(), store, m.InstrumentProvider(questions), bot, opts...)
	sweeper := session.NewSweeper(store, coord.ResolveExpired, cfg.SweepInterval, logger)

	pool := dispatch.New(cfg.Workers, cfg.QueueSize,
		dispatch.WithLogger(logger),
		dispatch.WithDropHook(func(int64) { m.EventDropped() }),
	)
	events := onebot.NewHandler(coord, pool, onebot.HandlerOptions{
		Secret: cfg.OneBotSecret,
		Groups: cfg.Groups,
		Logger: logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler(reg))
	if cfg.AdminToken.Empty() {
		logger.Info("admin api disabled: admin_token not set")
	} else {
		r.Mount("/api/v1", api.New(coord, sweeper, hist, cfg.AdminToken, api.WithLogger(logger)).Router())
	}
	r.Mount("/", events.Router())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	printBanner()
	logger.Info("starting server",
		"addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"captcha_url", questions.URL(),
		"onebot_api", cfg.OneBotAPI,
		"groups", len(cfg.Groups),
		"admins", len(cfg.AdminIDs),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return sweeper.Run(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(sctx)
		if perr := pool.Stop(sctx); perr != nil {
			logger.Warn("event workers did not drain", "error", perr.Error())
		}
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

func selfID(ctx context.Context, bot *onebot.Client) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return bot.LoginInfo(ctx)
}
