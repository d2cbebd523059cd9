package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Billy-Davies-2/draftkit/internal/clickhouse"
	"github.com/Billy-Davies-2/draftkit/internal/config"
	"github.com/Billy-Davies-2/draftkit/internal/dal"
	grpcserver "github.com/Billy-Davies-2/draftkit/internal/grpc"
	"github.com/Billy-Davies-2/draftkit/internal/handlers"
	"github.com/Billy-Davies-2/draftkit/internal/loader"
	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/mocks"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/snake"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// pinger is a source with a health probe.
type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Initialize logger first
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Info("Starting draftkit", "environment", cfg.Environment, "teams", cfg.Teams, "rounds", cfg.TotalRounds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream, err := newEventBus(cfg)
	if err != nil {
		logger.Error("Failed to initialize event bus", "error", err)
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	defer upstream.Close()
	bus := pubsub.NewWithUpstream(upstream)

	s, err := store.New(snake.Config{Teams: cfg.Teams, TotalRounds: cfg.TotalRounds}, store.WithPublisher(bus))
	if err != nil {
		logger.Error("Failed to create store", "error", err)
		log.Fatalf("Failed to create store: %v", err)
	}

	snapshots, err := newSnapshotDAL(cfg)
	if err != nil {
		logger.Error("Failed to initialize snapshot store", "driver", cfg.DBDriver, "error", err)
		log.Fatalf("Failed to initialize snapshot store: %v", err)
	}
	defer snapshots.Close()

	var loaded atomic.Bool
	if cfg.Restore {
		restored, err := dal.RestoreInto(ctx, snapshots, cfg.SnapshotKey, s)
		switch {
		case err != nil:
			logger.Warn("Ignoring stored snapshot", "key", cfg.SnapshotKey, "error", err)
		case restored:
			loaded.Store(true)
			logger.Info("Restored draft snapshot", "key", cfg.SnapshotKey, "version", s.Version())
		}
	}

	src, err := newSource(cfg)
	if err != nil {
		logger.Error("Failed to initialize data source", "source", cfg.DataSource, "error", err)
		log.Fatalf("Failed to initialize data source: %v", err)
	}
	if c, ok := src.(pinger); ok {
		defer c.Close()
	}

	reload := func(ctx context.Context) error {
		if err := loader.Load(ctx, src, loader.ToStore(s)); err != nil {
			logger.Warn("Reload failed", "error", err)
			return err
		}
		loaded.Store(true)
		logger.Info("Projection data reloaded", "version", s.Version())
		return nil
	}

	health := handlers.NewHealth(loaded.Load)
	health.AddCheck("database", func(ctx context.Context) error {
		_, err := snapshots.Load(ctx, cfg.SnapshotKey)
		if errors.Is(err, dal.ErrNotFound) {
			return nil
		}
		return err
	})
	if c, ok := src.(pinger); ok {
		health.AddCheck("clickhouse", c.Ping)
	}

	g, ctx := errgroup.WithContext(ctx)

	task := loader.Start(ctx, src, loader.ToStore(s))
	g.Go(func() error {
		if err := task.Wait(); err != nil {
			if errors.Is(err, loader.ErrCancelled) {
				return nil
			}
			logger.Error("Initial data load failed", "source", cfg.DataSource, "error", err)
			return nil
		}
		loaded.Store(true)
		logger.Info("Projection data loaded", "players", len(s.Snapshot().Players))
		return nil
	})

	autosaver := dal.NewAutosaver(snapshots, s, cfg.SnapshotKey)
	g.Go(func() error {
		autosaver.Run(ctx, bus)
		return nil
	})

	if cfg.ReloadInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.ReloadInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					_ = reload(ctx)
				}
			}
		})
	}

	gs, hs := grpcserver.NewGRPCServer(grpcserver.NewServer(s, bus, reload))
	g.Go(func() error {
		lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
		if err != nil {
			logger.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			return err
		}
		logger.Info("gRPC server starting", "address", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hs.Shutdown()
		gs.GracefulStop()
		return nil
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handlers.NewRouter(handlers.NewAPIHandlers(s, bus, reload), health),
		ReadHeaderTimeout: 10 * time.Second,
		// streaming handlers end with the service context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		logger.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		task.Cancel()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Shutting down with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// newEventBus returns the upstream the local fanout bridges to: embedded NATS
// in development, external NATS JetStream otherwise, or an in-process bus.
func newEventBus(cfg config.Config) (interface {
	pubsub.Upstream
	Close()
}, error) {
	if cfg.EventBus == "local" {
		logger.Info("Using in-process event bus")
		return mocks.NewMockNATSPubSub(), nil
	}
	if cfg.IsDevelopment() {
		logger.Info("Starting embedded NATS server for local development")
		embedded, err := pubsub.NewEmbeddedNATSPubSub(pubsub.EmbeddedNATSOptions{
			Subject:    cfg.NATSSubject,
			StreamName: cfg.NATSStream,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Embedded NATS server ready", "url", embedded.ServerURL())
		return embedded, nil
	}
	logger.Info("Using NATS JetStream", "url", cfg.NATSURL)
	return pubsub.NewNATSPubSub(pubsub.NATSOptions{
		URL:        cfg.NATSURL,
		Subject:    cfg.NATSSubject,
		StreamName: cfg.NATSStream,
	})
}

func newSnapshotDAL(cfg config.Config) (dal.SnapshotDAL, error) {
	switch cfg.DBDriver {
	case "sqlite":
		logger.Info("Using SQLite snapshot store", "file", cfg.SQLiteFile)
		return dal.NewSQLiteDAL(cfg.SQLiteFile)
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Info("Using mock Postgres for local development", "file", cfg.SQLiteFile)
			return mocks.NewMockPostgresDAL(cfg.SQLiteFile)
		}
		logger.Info("Using Postgres snapshot store")
		return dal.NewPostgresDAL(cfg.DatabaseURL)
	default:
		logger.Info("Using in-memory snapshot store")
		return dal.NewMemoryDAL(), nil
	}
}

func newSource(cfg config.Config) (loader.Source, error) {
	switch cfg.DataSource {
	case "http":
		logger.Info("Loading projections over HTTP", "base", cfg.DataBase)
		return loader.NewHTTPSource(cfg.DataBase, &http.Client{Timeout: 30 * time.Second})
	case "sample":
		logger.Info("Using bundled sample projections")
		return mocks.NewMockClickHouseClient(), nil
	case "clickhouse":
		if cfg.IsDevelopment() {
			logger.Info("Using mock ClickHouse for local development (no ClickHouse server required)")
			return mocks.NewMockClickHouseClient(), nil
		}
		client, err := clickhouse.NewClient(clickhouse.Options{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
			Table:    cfg.ClickHouse.Table,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to ClickHouse", "address", cfg.ClickHouse.Addr, "database", cfg.ClickHouse.Database)
		return client, nil
	default:
		logger.Info("Loading projections from directory", "dir", cfg.DataBase)
		return loader.DirSource{Dir: cfg.DataBase}, nil
	}
}
