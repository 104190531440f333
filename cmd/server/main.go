package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/server"
	"github.com/mysticduel/duel-server/internal/storage"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting duel server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Snapshot store: Postgres when configured, memory otherwise.
	var (
		store game.SnapshotStore
		pg    *storage.PostgresStore
	)
	if cfg.Database.URL != "" {
		pg, err = storage.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		store = pg
		logger.Info("snapshot store initialized", zap.String("backend", "postgres"))
	} else {
		store = storage.NewMemoryStore()
		logger.Info("snapshot store initialized", zap.String("backend", "memory"))
	}

	cat, err := loadCatalog(ctx, cfg.Catalog, pg)
	if err != nil {
		logger.Fatal("failed to load card catalog", zap.Error(err))
	}
	logger.Info("card catalog loaded", zap.Int("cards", cat.Len()))

	factory := game.NewCardFactory(cat, abilities.NewResolver(logger), logger)
	opts := []game.EngineOption{game.WithSnapshotStore(store)}
	if cfg.Replay.Enabled {
		opts = append(opts, game.WithReplayRecorder(game.NewReplayRecorder(logger, cfg.Replay.Directory)))
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}
	engine := game.NewEngine(factory, cfg.Rules, logger, opts...)
	defer engine.Close()

	hub := server.NewHub(engine, server.HubConfig{
		AckTimeout:       cfg.Server.AckTimeout,
		MaxMessageBytes:  cfg.Server.WebSocket.MaxMessageBytes,
		CompactSnapshots: cfg.Server.WebSocket.CompactSnapshots,
	}, logger)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebSocket.Path, hub)
	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ConnectTimeout,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			server.RecoveryInterceptor(logger),
			server.LoggingInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.MaxConcurrentStreams(uint32(cfg.Server.GRPC.MaxConcurrentStreams)),
	)
	health := server.NewAdminServer(engine, hub, logger).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	go func() {
		logger.Info("starting gRPC admin server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	go func() {
		logger.Info("starting WebSocket server",
			zap.String("address", cfg.Server.WebSocket.Address),
			zap.String("path", cfg.Server.WebSocket.Path),
		)
		if wsErr := httpServer.ListenAndServe(); wsErr != nil && !errors.Is(wsErr, http.ErrServerClosed) {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	logger.Info("duel server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.Duration("ack_timeout", cfg.Server.AckTimeout),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	health.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket server shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("duel server stopped")
}

func loadCatalog(ctx context.Context, cfg config.CatalogConfig, pg *storage.PostgresStore) (*catalog.Catalog, error) {
	if cfg.FromDatabase {
		if pg == nil {
			return nil, errors.New("catalog.from_database requires database.url")
		}
		return pg.LoadCatalog(ctx)
	}
	return catalog.LoadYAML(cfg.Path)
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
