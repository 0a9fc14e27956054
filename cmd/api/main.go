package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carma/internal/api"
	"carma/internal/bot"
	"carma/internal/chain"
	"carma/internal/config"
	"carma/internal/database"
	"carma/internal/domain"
	"carma/internal/events"
	"carma/internal/google"
	"carma/internal/logging"
	"carma/internal/metrics"
	"carma/internal/models"
	"carma/internal/notify"
	"carma/internal/repository"
	"carma/internal/service"
	"carma/internal/wallet"
	"carma/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	cars, err := loadCars(cfg, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	repo, dbCheck, closeRepo, err := initBookingStore(cfg, &logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	sessions := initSessionStore(redisClient, &logger)
	eventBus := events.NewEventBus()
	relay := wallet.NewRelay(&logger)

	gateway := chain.NewGatewayClient(cfg.Chain.GatewayURL, cfg.Chain.RequestTimeout)
	if redisClient != nil {
		gateway.UseRedisCache(redisClient, 24*time.Hour)
	}
	invoker := chain.NewInvoker(relay, gateway, cfg.Chain, &logger)
	poller := chain.NewPoller(gateway, cfg.Chain.PollInterval, cfg.Chain.PollAttempts, &logger)

	tgBot := initTelegram(cfg, &logger)
	sinks, closeSinks := initSinks(ctx, cfg, tgBot, repo, &logger)
	defer closeSinks()

	dispatcher := worker.NewDispatcher(
		sinks, redisClient, worker.PolicyFromConfig(cfg.Dispatcher),
		cfg.Dispatcher.QueueSize, cfg.Dispatcher.DeadLetterKey, &logger,
	)
	detach := dispatcher.Attach(eventBus)
	defer detach()
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()
	defer func() { <-dispatcherDone }()

	catalog := service.NewCarCatalog(cars)
	verification := service.NewVerificationService(relay, sessions, eventBus, cfg.Verification.SessionTTL, &logger)
	defer verification.Close()

	bookings := service.NewBookingService(repo, verification, eventBus, cfg.Verification.Required(), &logger)
	checkout := service.NewCheckoutService(
		catalog, bookings, repo, invoker, poller, verification, sessions, eventBus,
		cfg.Verification.SessionTTL,
		service.CheckoutOptions{
			RequireVerified: cfg.Verification.Required(),
			AllowLocalIDs:   cfg.Chain.LocalBookingIDsAllowed(),
		},
		&logger,
	)
	defer checkout.Close()

	if tgBot != nil && len(cfg.Telegram.ManagerIDs) > 0 {
		desk := bot.NewBot(bot.NewBotWrapper(tgBot), bookings, cfg.Telegram, cfg.Public.BaseURL, bot.NewMetrics(nil), &logger)
		go desk.Start(ctx)
	}

	if cfg.Backup.Enabled && cfg.Database.Driver == "sqlite" {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	checks := map[string]api.ReadinessCheck{}
	if dbCheck != nil {
		checks["database"] = dbCheck
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	httpServer := api.NewHTTPServer(cfg, api.Services{
		Bookings:     bookings,
		Verification: verification,
		Checkout:     checkout,
		Cars:         catalog,
		Wallet:       relay,
		Checks:       checks,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookings, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	logger.Info().
		Int("cars", len(cars)).
		Strs("sinks", dispatcher.Sinks()).
		Str("db_driver", cfg.Database.Driver).
		Bool("verification_required", cfg.Verification.Required()).
		Msg("carma started")

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

// loadCars prefers the cars section of the main config and falls back to
// the catalog file.
func loadCars(cfg *config.Config, logger *zerolog.Logger) ([]models.Car, error) {
	if len(cfg.Cars) > 0 {
		return cfg.Cars, nil
	}

	carsPath := os.Getenv("CARS_PATH")
	if carsPath == "" {
		carsPath = "configs/cars.yaml"
	}
	carsData, err := os.ReadFile(carsPath)
	if err != nil {
		logger.Error().Err(err).Str("cars_path", carsPath).Msg("read cars")
		return nil, err
	}

	var carsConfig struct {
		Cars []models.Car `yaml:"cars"`
	}
	if err := yaml.Unmarshal(carsData, &carsConfig); err != nil {
		logger.Error().Err(err).Str("cars_path", carsPath).Msg("parse cars")
		return nil, err
	}

	if err := config.ValidateCars(carsConfig.Cars); err != nil {
		logger.Error().Err(err).Str("cars_path", carsPath).Msg("cars validation failed")
		return nil, err
	}
	return carsConfig.Cars, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Exports.Dir != "" {
		if err := os.MkdirAll(cfg.Exports.Dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", cfg.Exports.Dir).Msg("create exports directory")
			return err
		}
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		if err := os.MkdirAll(cfg.Backup.StoragePath, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", cfg.Backup.StoragePath).Msg("create backup directory")
			return err
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, sessions fall back to memory until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initBookingStore(cfg *config.Config, logger *zerolog.Logger) (domain.BookingRepository, api.ReadinessCheck, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory booking store, bookings are lost on restart")
		return repository.NewMemoryBookingRepository(), nil, func() {}, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, nil, err
	}
	return db, db.PingContext, func() { _ = db.Close() }, nil
}

func initSessionStore(redisClient *redis.Client, logger *zerolog.Logger) domain.SessionStore {
	memory := repository.NewMemorySessionStore()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSessionStore(repository.NewRedisSessionStore(redisClient), memory, logger)
}

// initTelegram connects the bot shared by the telegram sink and the desk bot.
func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	tgBot, err := notify.NewTelegramBot(cfg.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		return nil
	}
	logger.Info().
		Str("username", tgBot.Self.UserName).
		Int("chats", len(cfg.Telegram.ChatIDs)).
		Int("managers", len(cfg.Telegram.ManagerIDs)).
		Msg("telegram connected")
	return tgBot
}

// initSinks builds the notification sinks that are configured. A sink that
// fails to start is logged and skipped.
func initSinks(ctx context.Context, cfg *config.Config, tgBot *tgbotapi.BotAPI, repo domain.BookingRepository, logger *zerolog.Logger) ([]worker.Sink, func()) {
	var sinks []worker.Sink
	var closers []func()

	if tgBot != nil {
		sinks = append(sinks, notify.NewTelegramSink(tgBot, cfg.Telegram.ChatIDs))
	}

	if cfg.AMQP.URL != "" {
		conn, ch, err := notify.DialAMQP(cfg.AMQP)
		if err != nil {
			logger.Warn().Err(err).Msg("amqp init failed, continuing without amqp")
		} else {
			sinks = append(sinks, notify.NewAMQPPublisher(ch, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey))
			closers = append(closers, func() {
				_ = ch.Close()
				_ = conn.Close()
			})
			logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("amqp connected")
		}
	}

	if sheets := initGoogleSheets(ctx, cfg, repo, logger); sheets != nil {
		sinks = append(sinks, google.NewSheetsSink(sheets))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, repo domain.BookingRepository, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		ev := logger.Warn().Err(err)
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil && email != "" {
			ev = ev.Str("share_with", email)
		}
		ev.Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	if cfg.Google.SyncOnStart {
		all, err := repo.ListBookings(ctx)
		if err == nil {
			err = sheetsService.ReplaceBookings(ctx, all)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets initial sync failed")
		}
	} else {
		if err := sheetsService.EnsureHeader(ctx); err != nil {
			logger.Warn().Err(err).Msg("google sheets header write failed")
		}
		if err := sheetsService.WarmUpCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
		}
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
