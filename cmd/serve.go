package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/handlers"
	"github.com/ukydev/fleet-maintenance/internal/lock"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server",
		Long:  `Start the HTTP server to handle API requests`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// dependencies holds the external clients the API is built from.
type dependencies struct {
	database  *mongo.Database
	locker    lock.Locker
	publisher events.Publisher
	store     storage.ObjectStore
	ping      func(ctx context.Context) error
	closers   []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	deps, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	if err := db.EnsureIndexes(ctx, deps.database); err != nil {
		log.WithError(err).Warn("Failed to ensure indexes")
	}

	routes, err := buildRoutes(cfg, deps)
	if err != nil {
		return err
	}
	if routes.RateLimit != nil {
		go sweepRateLimits(ctx, routes.RateLimit, cfg.RateLimit.Window)
	}

	server := newHTTPServer(cfg.Server, handlers.NewRouter(routes))
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("address", server.Addr).Info("Starting HTTP server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	routes.Attachments.Wait()
	log.Info("Server stopped")
	return nil
}

// connect opens MongoDB and the optional Redis, MQTT and object storage
// clients. Redis and MQTT fall back to in-process implementations when
// unconfigured.
func connect(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	deps.closers = append(deps.closers, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("MongoDB disconnect error")
		}
	})
	deps.database = client.Database(cfg.Mongo.Database)
	deps.ping = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	if deps.locker, err = newLocker(ctx, cfg.Redis, deps); err != nil {
		deps.close()
		return nil, err
	}
	if deps.publisher, err = newPublisher(cfg.MQTT, deps); err != nil {
		deps.close()
		return nil, err
	}
	if deps.store, err = storage.New(ctx, cfg.Storage); err != nil {
		deps.close()
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	if c, ok := deps.store.(io.Closer); ok {
		deps.closers = append(deps.closers, func() { _ = c.Close() })
	}
	log.WithField("provider", cfg.Storage.Provider).Info("Object storage ready")
	return deps, nil
}

func newLocker(ctx context.Context, cfg config.RedisConfig, deps *dependencies) (lock.Locker, error) {
	if cfg.Address == "" {
		log.Info("Redis not configured, using in-process locks")
		return lock.NewLocalLocker(), nil
	}
	rdb, err := lock.ConnectRedis(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	deps.closers = append(deps.closers, func() { _ = rdb.Close() })
	log.WithField("address", cfg.Address).Info("Connected to Redis")
	return lock.NewRedisLocker(rdb, cfg.LockTTL), nil
}

func newPublisher(cfg config.MQTTConfig, deps *dependencies) (events.Publisher, error) {
	if cfg.Broker == "" {
		log.Info("MQTT not configured, audit events are not published")
		return events.NopPublisher{}, nil
	}
	client, err := events.Connect(cfg.Broker, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	deps.closers = append(deps.closers, func() { client.Disconnect(250) })
	log.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return events.NewMQTTPublisher(client, cfg.TopicPrefix), nil
}

// buildRoutes wires collections and handlers.
func buildRoutes(cfg *config.Config, deps *dependencies) (handlers.Routes, error) {
	database := deps.database
	expenses := db.NewExpenseCollection(database.Collection(db.CollectionExpenses))
	directory := db.NewDirectory(database)
	permissions := auth.NewRemarkPermissionChecker(directory)

	routes := handlers.Routes{
		Expenses:          handlers.NewExpenseHandler(expenses, directory, deps.locker, deps.publisher),
		ExpenseRemarks:    handlers.NewRemarkHandler(db.CollectionExpenses, expenses, directory, permissions, deps.publisher),
		Attachments:       handlers.NewAttachmentHandler(expenses, deps.store, storage.NewProcessor(cfg.Storage.MaxImageSide), deps.publisher, cfg.Server.MaxUploadBytes),
		Reports:           handlers.NewReportHandler(expenses),
		Health:            handlers.NewHealthHandler(deps.ping),
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		RequestTimeout:    cfg.Server.WriteTimeout,
	}

	for _, kind := range []models.RepairKind{models.ToolRepairs, models.TyreRepairs} {
		repairs := db.NewRepairCollection(database, kind)
		assets := db.NewAssetCollection(database, kind)
		handler := handlers.NewRepairHandler(kind, repairs, assets, expenses, deps.locker, deps.publisher)
		remarks := handlers.NewRemarkHandler(kind.Collection, repairs, directory, permissions, deps.publisher)
		if kind == models.ToolRepairs {
			routes.ToolRepairs, routes.ToolRepairRemarks = handler, remarks
		} else {
			routes.TyreRepairs, routes.TyreRepairRemarks = handler, remarks
		}
	}

	if cfg.Auth.Enabled {
		service, err := auth.NewService(cfg.Auth)
		if err != nil {
			return routes, fmt.Errorf("failed to create auth service: %w", err)
		}
		routes.Auth = middleware.NewAuthMiddleware(service)
	}
	if cfg.RateLimit.Requests > 0 {
		routes.RateLimit = middleware.NewRateLimitMiddleware()
	}
	return routes, nil
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func sweepRateLimits(ctx context.Context, limiter *middleware.RateLimitMiddleware, windowSeconds int) {
	ticker := time.NewTicker(time.Duration(windowSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(windowSeconds)
		}
	}
}
