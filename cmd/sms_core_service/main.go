package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/walletsms/golang_services/internal/core_sms/classifier"
	"github.com/walletsms/golang_services/internal/core_sms/domain"
	"github.com/walletsms/golang_services/internal/core_sms/segmenter"
	"github.com/walletsms/golang_services/internal/platform/config"
	"github.com/walletsms/golang_services/internal/platform/database"
	"github.com/walletsms/golang_services/internal/platform/logger"
	"github.com/walletsms/golang_services/internal/platform/messagebroker"
	"github.com/walletsms/golang_services/internal/sms_core_service/adapters/loopback"
	"github.com/walletsms/golang_services/internal/sms_core_service/adapters/natsbus"
	"github.com/walletsms/golang_services/internal/sms_core_service/app"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository/memory"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository/postgres"
	"github.com/walletsms/golang_services/internal/sms_core_service/repository/sqlite"
	httptransport "github.com/walletsms/golang_services/internal/sms_core_service/transport/http"
)

const (
	serviceName     = "sms_core_service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel, serviceName)
	appLogger.Info("SMS core service starting...",
		"http_port", cfg.HTTPPort,
		"store_driver", cfg.StoreDriver,
		"transport_driver", cfg.TransportDriver,
		"log_level", cfg.LogLevel,
	)

	store, closeStore, err := openStore(mainCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open correlation store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var natsClient *messagebroker.NatsClient
	if cfg.TransportDriver == "nats" {
		natsClient, err = messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "url", cfg.NATSUrl, "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
	}

	broadcaster := app.NewBroadcaster(appLogger)
	publishers := app.MultiPublisher{broadcaster}
	if natsClient != nil {
		publishers = append(publishers, natsbus.NewEventPublisher(natsClient, appLogger))
	}

	var transport app.Transport
	var loop *loopback.Transport
	if natsClient != nil {
		transport = natsbus.NewTransport(natsClient)
	} else {
		loop = loopback.NewTransport(loopback.Options{
			SentCode:       cfg.LoopbackSentCode,
			DeliveredCode:  cfg.LoopbackDeliveredCode,
			SimulatedDelay: cfg.LoopbackDelay,
		}, appLogger)
		transport = loop
	}

	machine := app.NewOutboundMachine(store, transport, publishers, segmenter.New(), classifier.New(), appLogger)
	inbound := app.NewInboundProcessor(publishers, appLogger)
	if loop != nil {
		loop.Attach(machine)
	}

	recovery := app.NewRecoveryScheduler(
		app.NewRecoveryEngine(store, machine, publishers, cfg.RecoveryConcurrency, appLogger),
		cfg.RecoveryDelay,
		appLogger,
	)

	handler := httptransport.NewMessageHandler(machine, inbound, appLogger, validator.New())
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httptransport.NewRouter(handler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	if natsClient != nil {
		if err := natsbus.NewCallbackConsumer(natsClient, machine, appLogger).StartConsuming(groupCtx, cfg.NATSQueueGroup); err != nil {
			appLogger.Error("Failed to start callback consumer", "error", err)
			os.Exit(1)
		}
		if err := natsbus.NewInboxConsumer(natsClient, inbound, appLogger).StartConsuming(groupCtx, cfg.NATSQueueGroup); err != nil {
			appLogger.Error("Failed to start inbox consumer", "error", err)
			os.Exit(1)
		}
	}

	events, detach := broadcaster.Attach(cfg.EventBufferSize)
	g.Go(func() error {
		defer detach()
		logEvents(groupCtx, events, appLogger)
		return nil
	})

	g.Go(func() error {
		if err := recovery.Run(groupCtx); err != nil {
			appLogger.Error("Boot recovery finished with errors", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			return fmt.Errorf("http shutdown: %w", err)
		}
		if loop != nil {
			loop.Wait()
		}
		return nil
	})

	appLogger.Info("SMS core service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("SMS core service shut down successfully.")
}

// openStore returns the configured correlation store and its closer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.CorrelationStore, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewCorrelationStore(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("Successfully connected to PostgreSQL")
		return store, pool.Close, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		logger.Info("Opened SQLite correlation store", "path", cfg.SQLitePath)
		return sqlite.NewCorrelationStore(db), closer, nil
	default:
		logger.Warn("Using in-memory correlation store; state is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}

// logEvents drains the in-process event feed into the service log.
func logEvents(ctx context.Context, events <-chan domain.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case domain.OutboundStateChanged:
				logger.InfoContext(ctx, "Outbound state changed", "request_id", e.RequestID, "state", e.State, "reason", e.Reason)
			case domain.InboundMessageReceived:
				logger.InfoContext(ctx, "Inbound transaction message received", "received_at", e.Message.ReceivedAt)
			case domain.RecoveryPassStarted:
				logger.InfoContext(ctx, "Recovery pass started", "at", e.Timestamp)
			}
		}
	}
}
