package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bronizone/internal/api"
	"bronizone/internal/clock"
	"bronizone/internal/config"
	"bronizone/internal/database"
	"bronizone/internal/domain"
	"bronizone/internal/events"
	"bronizone/internal/export"
	"bronizone/internal/google"
	"bronizone/internal/logging"
	"bronizone/internal/metrics"
	"bronizone/internal/repository"
	"bronizone/internal/service"
	"bronizone/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()

	dbLogger := logging.Component(baseLogger, "database")
	db, err := database.NewDB(cfg.Database.Path, clk, &dbLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, zoneCache := initZoneCache(ctx, cfg, clk, baseLogger)
	defer func() {
		_ = repository.Close(redisClient)
	}()

	m := metrics.NewDefault()

	busLogger := logging.Component(baseLogger, "events")
	eventBus := events.NewBus(&busLogger)
	defer eventBus.Close()
	subscribeEventLog(ctx, eventBus, baseLogger)

	reportWorker := initReportWorker(ctx, cfg, db, redisClient, m, baseLogger)

	var syncWorker domain.ReportSyncWorker
	if reportWorker != nil {
		syncWorker = reportWorker
	}

	bookingLogger := logging.Component(baseLogger, "booking-service")
	bookingService := service.NewBookingService(db, zoneCache, eventBus, syncWorker, m, clk, &bookingLogger, cfg.Booking.MaxBookingHours)

	zoneLogger := logging.Component(baseLogger, "zone-service")
	zoneService := service.NewZoneService(db, zoneCache, eventBus, syncWorker, m, clk, &zoneLogger)

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	exportLogger := logging.Component(baseLogger, "export")
	exporter := export.NewExcelExporter(cfg.Exports.Path, &exportLogger)

	apiLogger := logging.Component(baseLogger, "http")
	apiServer := api.NewHTTPServer(cfg.API, bookingService, zoneService, db, exporter, m, &apiLogger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

func initZoneCache(ctx context.Context, cfg *config.Config, clk clock.Clock, baseLogger *zerolog.Logger) (*redis.Client, domain.ZoneCache) {
	logger := logging.Component(baseLogger, "zone-cache")
	ttl := time.Duration(cfg.Booking.ZoneCacheTTL) * time.Second

	memCache := repository.NewMemoryZoneCache(ttl, clk)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory zone cache")
		return nil, memCache
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable at startup, failover cache will recover")
	}

	redisCache := repository.NewRedisZoneCache(client, ttl)
	return client, repository.NewFailoverZoneCache(redisCache, memCache, &logger)
}

func initReportWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, m *metrics.Metrics, baseLogger *zerolog.Logger) *worker.ReportWorker {
	logger := logging.Component(baseLogger, "report-worker")
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReportSpreadSheetID == "" {
		logger.Info().Msg("google report not configured, sync worker disabled")
		return nil
	}

	report, err := google.NewReportService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReportSpreadSheetID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to init google report, sync worker disabled")
		return nil
	}
	if err := report.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google report connection test failed")
	}

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	w := worker.NewReportWorker(db, report, redisClient, retryPolicy, m, &logger)
	go w.Start(ctx)
	return w
}

// subscribeEventLog пишет доменные события в лог. Подписчики уведомлений
// подключаются сюда же.
func subscribeEventLog(ctx context.Context, bus *events.Bus, baseLogger *zerolog.Logger) {
	logger := logging.Component(baseLogger, "event-log")
	ch := bus.Subscribe(256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				e := logger.Info().Str("type", event.Type).Time("at", event.At)
				if event.Booking != nil {
					e = e.Int64("booking_id", event.Booking.ID).Str("status", event.Booking.Status)
				}
				if event.Zone != nil {
					e = e.Int64("zone_id", event.Zone.ID).Str("zone", event.Zone.Name)
				}
				e.Msg("domain event")
			}
		}
	}()
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
