package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/notifier"
	"github.com/fjod/storefront/internal/ordernumber"
	"github.com/fjod/storefront/internal/reaper"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/juju/clock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const catalogTimeout = 3 * time.Second

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	log := logger.New(os.Stdout, "info")
	if err != nil {
		fatal(log, "invalid configuration", err)
	}
	log = logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("storefront starting...")

	var wg sync.WaitGroup
	ctx := context.Background()
	m := metrics.NewRegistry()

	// Cart store
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		fatal(log, "failed to connect to MongoDB", err)
	}
	defer mongoDB.Client().Disconnect(context.Background())
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		fatal(log, "failed to create cart indexes", err)
	}
	log.Info("connected to MongoDB", "database", cfg.MongoDBName)

	// Cart cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "redis connection failed", err)
	}
	cartCache := cache.NewRedisCache(redisClient)

	// Order store
	db, err := repository.ConnectPostgres(&repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.Postgres.MigrationsPath,
	})
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	orderRepo := repository.NewPostgresOrderRepository(db)
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(cfg.Postgres.MigrationsPath); err != nil {
		fatal(log, "failed to run order migrations", err)
	}
	log.Info("database migrations completed")

	// Catalog
	productRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		fatal(log, "failed to open catalog", err)
	}
	defer productRepo.Close()
	if err := productRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		fatal(log, "failed to run catalog migrations", err)
	}
	catalogSvc := catalog.NewService(productRepo, catalogTimeout, log)

	// Notifications
	customerSender := notifier.NewSMTPSender(notifier.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	var adminSender notifier.Sender = customerSender
	if cfg.AdminTransport == "amqp" {
		conn, err := amqp.Dial(cfg.RabbitMQURI)
		if err != nil {
			fatal(log, "failed to connect to RabbitMQ", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			fatal(log, "failed to open RabbitMQ channel", err)
		}
		defer ch.Close()
		queue, err := notifier.DeclareQueue(ch, cfg.AdminQueue)
		if err != nil {
			fatal(log, "failed to declare admin queue", err)
		}
		adminSender = notifier.NewAMQPSender(ch, queue)
		log.Info("admin alerts routed to RabbitMQ", "queue", queue)
	}
	notif, err := notifier.New(customerSender, adminSender, cfg.AdminEmail, log, m)
	if err != nil {
		fatal(log, "failed to build notifier", err)
	}

	// Order events. Orders always land in the outbox; the relay drains it
	// once a broker is configured.
	var relay *events.Relay
	var consumer *events.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(cfg.OrdersTopic, cfg.KafkaBrokers...)
		defer publisher.Close()
		relay, err = events.NewRelay(events.RelayConfig{
			Store:          orderRepo,
			Writer:         publisher,
			Clock:          clock.WallClock,
			Interval:       cfg.OutboxInterval,
			BatchSize:      events.DefaultRelayBatchSize,
			PublishTimeout: events.DefaultRelayPublishTimeout,
			Logger:         log,
			Metrics:        m,
		})
		if err != nil {
			fatal(log, "invalid outbox relay configuration", err)
		}
		consumer = events.NewConsumer(cartRepo, cartCache, log, cfg.OrdersTopic, cfg.KafkaBrokers...)
	} else {
		log.Warn("KAFKA_BROKERS is empty, order events stay in the outbox")
	}

	numbers := ordernumber.New(cfg.OrderNumberAttempts)
	numbers.Location = cfg.OrderNumberLocation

	cartSvc := service.NewCartService(cartRepo, cartCache, catalogSvc, m, log, cfg.CartTTL)
	orderSvc := service.NewOrderService(orderRepo, catalogSvc, numbers, notif, m, log, cfg.NotifyTimeout)

	workersCtx, workersCancel := context.WithCancel(context.Background())

	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(workersCtx)
		}()
	}
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(workersCtx)
		}()
	}

	cartReaper, err := reaper.New(reaper.Config{
		Store:        cartRepo,
		Clock:        clock.WallClock,
		Interval:     cfg.ReaperInterval,
		InitialDelay: cfg.ReaperInitialDelay,
		Logger:       log,
		Metrics:      m,
	})
	if err != nil {
		fatal(log, "invalid reaper configuration", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		cartReaper.Run(workersCtx)
	}()

	router := h.NewRouter(h.RouterConfig{
		Cart:               h.NewCartHandler(cartSvc, cfg.RequestTimeout, log),
		Orders:             h.NewOrdersHandler(orderSvc, cfg.RequestTimeout, log),
		Product:            h.NewProductHandler(catalogSvc, cfg.RequestTimeout, log),
		Contact:            h.NewContactHandler(notif, cfg.RequestTimeout, log),
		Admin:              h.NewAdminHandler(cartSvc, orderSvc, cfg.RequestTimeout, log),
		Metrics:            m.Handler(),
		AdminToken:         cfg.AdminToken,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})
	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty, admin endpoints are disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	workersCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers didn't stop in time")
	}

	if consumer != nil {
		consumer.Close()
	}
	log.Info("storefront stopped")
}
