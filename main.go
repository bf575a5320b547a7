package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scan-order/bot"
	"scan-order/broker"
	"scan-order/catalog"
	"scan-order/config"
	"scan-order/db"
	"scan-order/logger"
	"scan-order/services"
	"scan-order/storage"

	"go.uber.org/zap"
)

const statusUpdatePrefetch = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrate(cfg, log)
			return
		case "hash-password":
			runHashPassword(os.Args[2:])
			return
		}
	}

	if cfg.Telegram.Token == "" {
		log.Fatal("TOKEN not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NeedsPostgres() {
		if err := db.Init(cfg.DB); err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()

		// Optional auto-migration (useful in production and for fresh DBs).
		// Set AUTO_MIGRATE=1 (or "true") to enable.
		if v := strings.TrimSpace(os.Getenv("AUTO_MIGRATE")); v == "1" || strings.EqualFold(v, "true") {
			if err := applyMigrations(ctx, log); err != nil {
				log.Fatal("migrate", zap.Error(err))
			}
		}
	}

	dir, err := buildCatalog(cfg, log)
	if err != nil {
		log.Fatal("catalog", zap.Error(err))
	}
	sessionStore, err := buildSessionStore(ctx, cfg)
	if err != nil {
		log.Fatal("session store", zap.Error(err))
	}
	defer db.CloseRedis()

	var repo services.OrderRepository = storage.NewMemoryOrders()
	if db.Pool != nil {
		repo = storage.NewPostgresOrders(db.Pool)
	}

	gateway, err := services.NewMockGateway(cfg.Payment.DeclineAbove, cfg.Payment.Latency)
	if err != nil {
		log.Fatal("payment gateway", zap.Error(err))
	}

	var publisher services.EventPublisher = services.NopPublisher{}
	var mq *broker.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		mq, err = broker.Connect(cfg.RabbitMQ.URL, log)
		if err != nil {
			log.Fatal("rabbitmq", zap.Error(err))
		}
		defer mq.Close()
		publisher = mq
	}

	engine := services.NewEngine(repo, gateway, publisher, cfg.Payment.Timeout, log)
	if mq != nil {
		go func() {
			if err := mq.ConsumeStatusUpdates(ctx, engine, statusUpdatePrefetch); err != nil {
				log.Error("status update consumer stopped", zap.Error(err))
			}
		}()
	}

	poller := services.NewPoller(engine, services.PollerConfig{
		BaseDelay:   cfg.Poller.BaseDelay,
		MaxDelay:    cfg.Poller.MaxDelay,
		MaxAttempts: cfg.Poller.MaxAttempts,
	}, log)
	sessions := services.NewSessionManager(services.SessionDeps{
		Store:    sessionStore,
		Catalog:  dir,
		Resolver: services.NewResolver(dir, log),
		Engine:   engine,
		Poller:   poller,
		Log:      log,
	})

	if cfg.Telegram.StaffToken != "" {
		staff, err := bot.NewStaffBot(cfg.Telegram.StaffToken, engine, dir, services.NewStaffAuth(cfg.Telegram.StaffPasswordHash), log)
		if err != nil {
			log.Fatal("staff bot", zap.Error(err))
		}
		go staff.Start(ctx)
	}

	b, err := bot.New(cfg.Telegram.Token, sessions, cfg.Session.SwitchConfirmTimeout, log)
	if err != nil {
		log.Fatal("bot", zap.Error(err))
	}
	log.Info("scan-order started",
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.Bool("rabbitmq", mq != nil))
	b.Start(ctx)
	log.Info("shutting down")
}

// buildCatalog loads the static directory and, for CATALOG_SOURCE=postgres, puts Postgres in
// front of it.
func buildCatalog(cfg *config.Config, log *zap.Logger) (catalog.Catalog, error) {
	static := catalog.Default()
	if cfg.Catalog.Path != "" {
		var err error
		if static, err = catalog.LoadStatic(cfg.Catalog.Path); err != nil {
			return nil, err
		}
	}
	if cfg.Catalog.Source == config.CatalogSourcePostgres {
		return catalog.NewFallback(catalog.NewPostgres(db.Pool), static, log), nil
	}
	return static, nil
}

func buildSessionStore(ctx context.Context, cfg *config.Config) (storage.SessionStore, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		if err := db.InitRedis(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		return storage.NewRedisStore(db.Redis, cfg.Session.TTL), nil
	case config.SessionBackendPostgres:
		return storage.NewPostgresStore(db.Pool), nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func runMigrate(cfg *config.Config, log *zap.Logger) {
	if err := db.Init(cfg.DB); err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	if err := applyMigrations(context.Background(), log); err != nil {
		log.Error("migrate", zap.Error(err))
		return
	}
	log.Info("migrations complete")
}

// runHashPassword prints a bcrypt hash for STAFF_PASSWORD_HASH. Without an argument a new
// password is generated and printed once.
func runHashPassword(args []string) {
	plain := ""
	if len(args) > 0 {
		plain = args[0]
	} else {
		var err error
		if plain, err = services.GenerateStaffPassword(); err != nil {
			fmt.Fprintln(os.Stderr, "generate password:", err)
			os.Exit(1)
		}
		fmt.Println("password:", plain)
	}
	hash, err := services.HashStaffPassword(plain)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash password:", err)
		os.Exit(1)
	}
	fmt.Println("STAFF_PASSWORD_HASH=" + hash)
}
