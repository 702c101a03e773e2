package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"seatrelay/internal/agent"
	"seatrelay/internal/audit"
	"seatrelay/internal/billing"
	"seatrelay/internal/config"
	"seatrelay/internal/messenger"
	"seatrelay/internal/metrics"
	"seatrelay/internal/notify"
	"seatrelay/internal/relay"
	"seatrelay/internal/seal"
	"seatrelay/internal/store"
	"seatrelay/internal/transport"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SEATRELAY_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var recorder billing.Recorder = billing.NopRecorder{}
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		recorder = billing.NewRedisRecorder(rdb, cfg.Redis.BillingPrefix)
	}

	client := transport.NewClient(cfg.Relays, cfg.Identity.Pubkey, 5*time.Second, &logger)
	pool := relay.NewPool(client, cfg.Relays, relay.PoolConfig{
		PublishRate:  cfg.RelayPool.PublishRate,
		PublishBurst: cfg.RelayPool.PublishBurst,
	}, &logger)
	sender := messenger.New(seal.Box{}, pool, recorder, &logger)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.ChatID, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier unavailable")
		} else {
			notifier = tg
		}
	}

	a := agent.New(agent.Config{
		SecretKey:    cfg.Identity.SecretKey,
		Pubkey:       cfg.Identity.Pubkey,
		AutoAccept:   cfg.AutoAccept,
		OpeningHours: cfg.OpeningHours,
	}, db, sender, notifier, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Export.Enabled {
		exporter := audit.NewExporter(db, cfg.Export.Path, &logger)
		go runExportLoop(ctx, exporter, &logger)
	}

	logger.Info().
		Int("relays", len(cfg.Relays)).
		Bool("auto_accept", cfg.AutoAccept.Enabled).
		Msg("reservation agent started")

	if err := a.Run(ctx, client, seal.Box{}); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("agent stopped")
	}
}

// runExportLoop refreshes the previous month's reservation report once at
// startup and then daily, so the artifact stays current through late
// cancellations.
func runExportLoop(ctx context.Context, exporter *audit.Exporter, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		now := time.Now()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
		prev := first.AddDate(0, -1, 0)
		path, err := exporter.ExportMonth(ctx, prev.Year(), prev.Month(), time.Local)
		if err != nil {
			logger.Error().Err(err).Msg("monthly export failed")
		} else {
			logger.Info().Str("path", path).Msg("monthly report exported")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func startHealthServer(ctx context.Context, port int, db *store.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
