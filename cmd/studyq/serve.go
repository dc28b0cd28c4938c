package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/studyq/internal/admission"
	"github.com/conorfennell/studyq/internal/config"
	"github.com/conorfennell/studyq/internal/report"
	"github.com/conorfennell/studyq/internal/session"
	"github.com/conorfennell/studyq/internal/storage"
	"github.com/conorfennell/studyq/internal/web"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the study session API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tier, err := admission.Tier(cfg.Admission.Tier)
	if err != nil {
		return err
	}
	counter, closeCounter, err := newCounter(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeCounter()
	guard := admission.NewGuard(tier, counter, admission.WithLogger(logger))

	sink, closeSink, err := newSink(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	orchestrator := session.New(db, guard, sink,
		session.WithLogger(logger),
		session.WithPolicy(session.Policy{
			AbortOnWriteError: cfg.Study.AbortOnWriteError,
			DailyNewLimit:     cfg.Study.DailyNewLimit,
			DayStartHour:      cfg.Study.DayStartHour,
		}),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(orchestrator, db, guard, logger, web.WithIdleTimeout(cfg.HTTP.SessionIdle)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "tier", tier.Name, "quota_backend", cfg.Admission.QuotaBackend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCounter returns the quota counter selected by the config and a func
// releasing it.
func newCounter(ctx context.Context, cfg config.Config, db *storage.DB) (admission.Counter, func(), error) {
	switch cfg.Admission.QuotaBackend {
	case "memory":
		return admission.NewMemoryCounter(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return admission.NewRedisCounter(client, "studyq:usage:"), func() { client.Close() }, nil
	default:
		return db, func() {}, nil
	}
}

// newSink publishes summaries over NATS when a URL is configured and logs
// them otherwise.
func newSink(c config.NATS, logger *slog.Logger) (report.Sink, func(), error) {
	if c.URL == "" {
		return report.LogSink{Logger: logger}, func() {}, nil
	}
	nc, err := report.Connect(c.URL, "studyq")
	if err != nil {
		return nil, nil, err
	}
	return report.NewNATSSink(nc, c.Subject), func() {
		if err := nc.Drain(); err != nil {
			logger.Warn("failed to drain nats connection", "error", err)
		}
	}, nil
}
