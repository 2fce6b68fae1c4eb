package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/api"
	"orderflow/internal/api/handlers"
	"orderflow/internal/bus"
	"orderflow/internal/config"
	"orderflow/internal/gateway"
	"orderflow/internal/gateway/bridge"
	"orderflow/internal/gateway/sim"
	"orderflow/internal/orders"
	"orderflow/internal/repository"
	"orderflow/internal/service"
	"orderflow/internal/websocket"
	"orderflow/pkg/retry"
	"orderflow/pkg/utils"
)

// Интервал очистки журнала событий
const pruneInterval = time.Hour

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	b := bus.New(cfg.Orders.BusBuffer, logger.WithComponent("bus").Logger)

	// Координатор ордеров: сессия создаётся по CONNECTED
	sessions := orders.NewSessionManager(b, orders.Config{
		GrantTimeout:  cfg.Orders.GrantTimeout,
		CancelTimeout: cfg.Orders.CancelTimeout,
		CallTimeout:   cfg.Orders.CallTimeout,
		Retention:     orders.Retention(cfg.Orders.Retention),
	}, logger.Logger)
	sessions.Start()

	// Журнал событий ордеров (необязателен)
	var (
		db      *sql.DB
		journal *service.JournalService
	)
	if cfg.Database.JournalEnabled() {
		db, journal, err = initJournal(cfg, b, logger)
		if err != nil {
			logger.Fatal("Failed to init order journal", zap.Error(err))
		}
		logger.Info("Order journal enabled",
			zap.String("driver", cfg.Database.Driver),
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
		)
	}

	// WebSocket поток событий
	hub := websocket.NewHub(cfg.Server.CORSOrigins, logger.Logger)
	go hub.Run()
	detachHub := hub.Attach(b)

	// Шлюз брокера
	gw, err := newGatewayFactory(cfg, logger).New(cfg.Gateway.Mode)
	if err != nil {
		logger.Fatal("Failed to create gateway", zap.String("mode", cfg.Gateway.Mode), zap.Error(err))
	}
	b.Publish(bus.TopicConnected, gw)
	logger.Info("Gateway connected", zap.String("gateway", gw.Name()))

	deps := &api.Dependencies{
		Orders:       sessions,
		Session:      sessions,
		Hub:          hub,
		CORSOrigins:  cfg.Server.CORSOrigins,
		APITokenHash: cfg.Security.APITokenHash,
		CallTimeout:  cfg.Orders.CallTimeout,
		Logger:       logger.WithComponent("api").Logger,
	}
	if journal != nil {
		deps.Journal = journal
	}

	// HTTP сервер
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr), zap.Bool("tls", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	if journal != nil && cfg.Database.Retention > 0 {
		go pruneJournal(pruneCtx, journal, cfg.Database.Retention, logger.Logger)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopPrune()

	// Сначала сессия: координатор перестаёт обращаться к шлюзу
	sessions.Close()
	if err := gw.Close(); err != nil {
		logger.Warn("Error closing gateway", zap.Error(err))
	}

	detachHub()
	hub.Stop()
	if journal != nil {
		journal.Stop()
	}
	b.Close()

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("Error closing database", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// newGatewayFactory регистрирует реализации шлюза по режимам
func newGatewayFactory(cfg *config.Config, logger *utils.Logger) *gateway.Factory {
	f := gateway.NewFactory()

	f.Register(gateway.ModeSim, func() (gateway.Gateway, error) {
		return sim.New(sim.Config{
			StartID:      cfg.Gateway.SimStartID,
			AutoFill:     cfg.Gateway.SimAutoFill,
			FillDelay:    cfg.Gateway.SimFillDelay,
			DefaultPrice: cfg.Gateway.SimDefaultPrice,
			ClientID:     cfg.Gateway.ClientID,
		}, logger.WithGateway(gateway.ModeSim).Logger), nil
	})

	f.Register(gateway.ModeBridge, func() (gateway.Gateway, error) {
		bcfg := bridge.DefaultConfig(cfg.Gateway.URL)
		bcfg.ClientID = cfg.Gateway.ClientID
		bcfg.ReadTimeout = cfg.Gateway.ReadTimeout
		bcfg.PingInterval = cfg.Gateway.PingInterval
		bcfg.ReconnectDelay = cfg.Gateway.ReconnectDelay
		bcfg.MaxReconnects = cfg.Gateway.MaxReconnects
		bcfg.MaxMessageRate = cfg.Gateway.MaxMessageRate

		gw := bridge.New(bcfg, logger.Logger)

		// Процесс шлюза может стартовать позже сервера
		startup := retry.StartupConfig()
		startup.InitialDelay = cfg.Gateway.ReconnectBackoff
		startup.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("Gateway not reachable, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}
		err := retry.Do(context.Background(), func() error {
			ctx, cancel := context.WithTimeout(context.Background(), bcfg.ConnectTimeout)
			defer cancel()
			return gw.Connect(ctx)
		}, startup)
		if err != nil {
			gw.Close()
			return nil, fmt.Errorf("connect gateway %s: %w", cfg.Gateway.URL, err)
		}
		return gw, nil
	})

	return f
}

// initJournal открывает базу, применяет схему и запускает запись событий
func initJournal(cfg *config.Config, b *bus.Bus, logger *utils.Logger) (*sql.DB, *service.JournalService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, dialect, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, err
	}

	journal := service.NewJournalService(
		repository.NewOrderEventRepository(db, dialect),
		b,
		logger.WithComponent("journal").Logger,
	)
	journal.Start()
	return db, journal, nil
}

// pruneJournal периодически удаляет события старше maxAge
func pruneJournal(ctx context.Context, journal *service.JournalService, maxAge time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := journal.Prune(ctx, maxAge)
			if err != nil {
				logger.Warn("journal prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("journal pruned", zap.Int64("deleted", n))
			}
		}
	}
}

var _ handlers.JournalService = (*service.JournalService)(nil)
