package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/sentinel/internal/api"
	"github.com/gyaneshwarpardhi/sentinel/internal/config"
	"github.com/gyaneshwarpardhi/sentinel/internal/engine"
	"github.com/gyaneshwarpardhi/sentinel/internal/event"
	"github.com/gyaneshwarpardhi/sentinel/internal/hub"
	"github.com/gyaneshwarpardhi/sentinel/internal/logging"
	"github.com/gyaneshwarpardhi/sentinel/internal/metrics"
	"github.com/gyaneshwarpardhi/sentinel/internal/notify"
	"github.com/gyaneshwarpardhi/sentinel/internal/store"
)

// incidentStore is satisfied by both store.Postgres and store.Memory.
type incidentStore interface {
	InsertIncident(ctx context.Context, in event.Incident) error
	ListAdminRecipients(ctx context.Context) ([]string, error)
	RecentIncidents(ctx context.Context, limit int) ([]event.Incident, error)
	Ping(ctx context.Context) error
	Close()
}

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to read environment", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", env.Addr, "HTTP listen address")
	cfgPath := flag.String("config", env.ConfigPath, "Path to sentinel YAML config")
	flag.Parse()

	logger := logging.New(os.Stdout, env.LogFormat, logging.ParseLevel(env.LogLevel))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, logger)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Incident store ───────────────────────────────────────────────────────
	var st incidentStore
	if env.DatabaseURL != "" {
		pg, err := store.Connect(ctx, store.Config{
			URL:           env.DatabaseURL,
			MaxConns:      env.DBMaxConns,
			RetryAttempts: 5,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			slog.Error("database unavailable", "err", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx, logger); err != nil {
			slog.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("using postgres incident store")
	} else {
		st = store.NewMemory(cfg.Store.AdminRecipients)
		slog.Warn("DATABASE_URL not set, incidents are kept in memory")
	}

	// ── Metrics & hub ────────────────────────────────────────────────────────
	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)
	h := hub.New(
		hub.WithLogger(logger),
		hub.WithSendTimeout(cfg.Hub.WriteTimeout()),
		hub.WithMembershipCallback(rec.SetObservers),
	)

	// ── Notification channels ────────────────────────────────────────────────
	var email notify.EmailSender
	if env.PostmarkEnabled() {
		pm, err := notify.NewPostmarkSender(notify.PostmarkConfig{
			ServerToken:  env.PostmarkServerToken,
			AccountToken: env.PostmarkAccountToken,
			From:         env.SenderEmail,
			Tag:          "critical-alert",
		})
		if err != nil {
			slog.Error("postmark setup failed", "err", err)
			os.Exit(1)
		}
		email = pm
	} else {
		email = notify.NewDevSender(env.EmailDevDir)
		slog.Info("postmark not configured, writing emails to disk", "dir", env.EmailDevDir)
	}

	var push notify.PushSender = notify.NewLogPush(logger)
	var rdb *redis.Client
	if env.RedisURL != "" {
		rdb, err = notify.ConnectRedis(ctx, env.RedisURL, 5, 2*time.Second)
		if err != nil {
			slog.Error("redis unavailable", "err", err)
			os.Exit(1)
		}
		push = notify.NewRedisPush(rdb, env.RedisPushChannel, logger)
	}

	dispatcher := notify.New(ctx, notify.Config{
		Recipients:     st,
		Email:          email,
		Push:           push,
		SMS:            notify.NewSimulatedSMS(cfg.Notify.SMSNumber, cfg.Notify.SMSDelay(), logger),
		SMSWorkers:     cfg.Notify.SMSWorkers,
		SMSQueueDepth:  cfg.Notify.SMSQueueDepth,
		ChannelTimeout: cfg.Notify.ChannelTimeout(),
		OpsRecipients:  cfg.Notify.OpsRecipients,
		Subject:        cfg.Notify.EmailSubject,
		Recorder:       rec,
		Logger:         logger,
	})

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(ctx, engine.Conf{
		EventWorkers: cfg.Engine.EventWorkers,
		QueueDepth:   cfg.Engine.QueueDepth,
	}, h, st, dispatcher, rec, engine.WithLogger(logger))

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		dispatcher.SetOpsRecipients(newCfg.Notify.OpsRecipients)
		dispatcher.SetChannelTimeout(newCfg.Notify.ChannelTimeout())
		slog.Info("notify settings reloaded",
			"ops_recipients", len(newCfg.Notify.OpsRecipients),
			"channel_timeout", dispatcher.ChannelTimeout())
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: *addr,
		Handler: api.New(api.Deps{
			Engine:    eng,
			Hub:       h,
			Incidents: st,
			Metrics:   rec,
			Gatherer:  prometheus.DefaultGatherer,
			Loader:    loader,
			Logger:    logger,
		}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	// Open websockets are hijacked and not tracked by Shutdown.
	_ = h.Close()
	eng.Shutdown()
	dispatcher.Close()
	cancel()
	st.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	slog.Info("goodbye")
}
