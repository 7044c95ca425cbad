package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"trekbook/internal/api"
	"trekbook/internal/config"
	"trekbook/internal/database"
	"trekbook/internal/domain"
	"trekbook/internal/events"
	"trekbook/internal/gateway"
	"trekbook/internal/google"
	"trekbook/internal/logging"
	"trekbook/internal/metrics"
	"trekbook/internal/models"
	"trekbook/internal/repository"
	"trekbook/internal/service"
	"trekbook/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	treks, err := loadCatalog(cfg.Catalog.Path, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg); err != nil {
		return err
	}

	db, err := initDatabase(cfg, treks, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	sessions := initSessionStore(redisClient, &logger)

	paymentGateway := gateway.NewRazorpayClient(cfg.Gateway.KeyID, cfg.Gateway.KeySecret, &logger)
	notifier := initNotifier(cfg, &logger)
	sheetsService := initGoogleSheets(cfg, &logger)

	var rosterWorker *worker.RosterWorker
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		rosterWorker = worker.NewRosterWorker(db, sheetsService, redisClient, retryPolicy, &logger)
		go rosterWorker.Start(ctx)
	}

	eventBus := events.NewEventBus()
	events.RegisterLogging(eventBus, &logger)

	var syncWorker domain.SyncWorker
	if rosterWorker != nil {
		syncWorker = rosterWorker
	}

	bookingService := service.NewBookingService(
		db, sessions, paymentGateway, eventBus, notifier, syncWorker,
		cfg.Booking.SessionWindow(), cfg.Booking.MaxPaymentAttempts, cfg.Gateway.Currency, &logger,
	).WithRateLimit(cfg.Booking.RateLimitRequests, cfg.Booking.RateLimitWindow())
	archiveService := service.NewArchiveService(db, sessions, eventBus, cfg.Booking.SessionWindow(), &logger)

	reconciler := worker.NewReconciler(bookingService, cfg.Booking.SweepInterval(), cfg.Booking.SweepBatchSize, &logger)
	go reconciler.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, bookingService, archiveService, cfg.Exports.Path, &logger)
	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadCatalog reads the trek catalog. Catalog prices are rupees; everything
// downstream works in paise.
func loadCatalog(path string, logger *zerolog.Logger) ([]models.Trek, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("read catalog")
		return nil, err
	}

	var catalog struct {
		Treks []models.Trek `yaml:"treks"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("parse catalog")
		return nil, err
	}

	if err := validateCatalog(catalog.Treks); err != nil {
		logger.Error().Err(err).Msg("catalog validation failed")
		return nil, err
	}

	for i := range catalog.Treks {
		trek := &catalog.Treks[i]
		for j := range trek.AddOns {
			trek.AddOns[j].Price *= models.PaisePerRupee
		}
		if trek.PartialPayment.Type == models.PartialTypeFixed {
			trek.PartialPayment.Value *= models.PaisePerRupee
		}
		for j := range trek.Batches {
			trek.Batches[j].Price *= models.PaisePerRupee
			trek.Batches[j].TrekID = trek.ID
			if trek.Batches[j].Status == "" {
				trek.Batches[j].Status = models.BatchActive
			}
		}
	}

	return catalog.Treks, nil
}

func validateCatalog(treks []models.Trek) error {
	trekIDs := make(map[int64]bool, len(treks))
	batchIDs := make(map[int64]bool)

	for _, trek := range treks {
		if trek.ID <= 0 {
			return fmt.Errorf("trek %q: id is required", trek.Name)
		}
		if trek.Name == "" {
			return fmt.Errorf("trek %d: name is required", trek.ID)
		}
		if trekIDs[trek.ID] {
			return fmt.Errorf("duplicate trek id %d", trek.ID)
		}
		trekIDs[trek.ID] = true

		for _, batch := range trek.Batches {
			if batch.ID <= 0 {
				return fmt.Errorf("trek %d: batch id is required", trek.ID)
			}
			if batchIDs[batch.ID] {
				return fmt.Errorf("duplicate batch id %d", batch.ID)
			}
			batchIDs[batch.ID] = true
			if batch.MaxParticipants <= 0 {
				return fmt.Errorf("batch %d: max_participants must be positive", batch.ID)
			}
			if batch.StartDate.IsZero() {
				return fmt.Errorf("batch %d: start_date is required", batch.ID)
			}
		}
	}
	return nil
}

func prepareDirectories(cfg *config.Config) error {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			return fmt.Errorf("create exports directory: %w", err)
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, treks []models.Trek, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	ctx := context.Background()
	for i := range treks {
		trek := &treks[i]
		if err := db.UpsertTrek(ctx, trek); err != nil {
			logger.Error().Err(err).Int64("trek_id", trek.ID).Msg("catalog sync: trek")
			continue
		}
		for j := range trek.Batches {
			if err := db.UpsertBatch(ctx, &trek.Batches[j]); err != nil {
				logger.Error().Err(err).Int64("batch_id", trek.Batches[j].ID).Msg("catalog sync: batch")
			}
		}
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSessionStore(redisClient *redis.Client, logger *zerolog.Logger) domain.SessionStore {
	fallback := repository.NewMemorySessionRepository()
	if redisClient == nil {
		return fallback
	}
	primary := repository.NewRedisSessionRepository(redisClient)
	return repository.NewFailoverSessionRepository(primary, fallback, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	notifier, err := service.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, cfg.Telegram.Debug, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier init failed, continuing without notifications")
		return nil
	}
	return notifier
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.RosterSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.RosterSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without roster sync")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
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

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("booking API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("booking API stopped")
	return nil
}
