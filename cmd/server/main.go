package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "piecestream/internal/api/http"
	"piecestream/internal/app"
	"piecestream/internal/metrics"
	mongorepo "piecestream/internal/repository/mongo"
	"piecestream/internal/services/torrent/engine/anacrolix"
	"piecestream/internal/services/torrent/registry"
	"piecestream/internal/telemetry"
	"piecestream/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const serviceName = "piecestream"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("dataDir", cfg.TorrentDataDir),
		slog.Int("listenPort", cfg.ListenPort),
		slog.Int("windowPieces", cfg.WindowPieces),
		slog.Duration("metadataTimeout", cfg.MetadataTimeout),
	)

	if err := os.MkdirAll(cfg.TorrentDataDir, 0o755); err != nil {
		logger.Error("create data dir failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo := mongorepo.NewRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:           cfg.TorrentDataDir,
		ListenPort:        cfg.ListenPort,
		Logger:            logger,
		SlowTaskThreshold: cfg.SlowTaskThreshold,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions := registry.New(registry.Config{
		Engine:          engine,
		RootDir:         cfg.TorrentDataDir,
		Logger:          logger,
		MetadataTimeout: cfg.MetadataTimeout,
		WindowSize:      cfg.WindowPieces,
		StatsStaleAfter: cfg.StatsStaleAfter,
		ResumeInterval:  cfg.ResumeInterval,
	})
	leases := &usecase.StreamLeases{IdleTimeout: cfg.StreamIdleTimeout, Logger: logger}

	// Restore in the background so the HTTP server starts immediately.
	go func() {
		restoreUC := usecase.RestoreSessions{
			Downloader:  sessions,
			Repo:        repo,
			Logger:      logger,
			Concurrency: cfg.RestoreConcurrency,
		}
		n, err := restoreUC.Execute(rootCtx)
		if err != nil {
			logger.Warn("restore sessions failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("sessions restored", slog.Int("count", n))
	}()

	syncUC := usecase.SyncState{Downloader: sessions, Repo: repo, Logger: logger, Interval: cfg.SyncInterval}
	go syncUC.Run(rootCtx)

	if cfg.MinDiskSpaceBytes > 0 {
		resumeBytes := cfg.DiskResumeSpaceBytes
		if resumeBytes <= 0 {
			resumeBytes = cfg.MinDiskSpaceBytes * 2
		}
		diskUC := usecase.DiskPressure{
			Downloader:   sessions,
			Repo:         repo,
			Leases:       leases,
			Logger:       logger,
			DataDir:      cfg.TorrentDataDir,
			MinFreeBytes: cfg.MinDiskSpaceBytes,
			ResumeBytes:  resumeBytes,
			Interval:     cfg.DiskCheckInterval,
		}
		go diskUC.Run(rootCtx)
	}

	startUC := usecase.StartDownload{Downloader: sessions, Repo: repo, Now: time.Now}
	stopUC := usecase.StopTorrent{Downloader: sessions, Repo: repo, Leases: leases, Now: time.Now}
	deleteUC := usecase.DeleteTorrent{Downloader: sessions, Repo: repo, Leases: leases, DataDir: cfg.TorrentDataDir}
	streamUC := usecase.OpenStream{Downloader: sessions, Repo: repo, Leases: leases}
	stateUC := usecase.GetTorrentState{Downloader: sessions}
	listStateUC := usecase.ListTorrentStates{Downloader: sessions}

	handler := apihttp.NewServer(startUC,
		apihttp.WithRepository(repo),
		apihttp.WithLogger(logger),
		apihttp.WithStopTorrent(stopUC),
		apihttp.WithDeleteTorrent(deleteUC),
		apihttp.WithOpenStream(streamUC),
		apihttp.WithGetTorrentState(stateUC),
		apihttp.WithListTorrentStates(listStateUC),
		apihttp.WithUploadDir(filepath.Join(cfg.TorrentDataDir, "uploads")),
		apihttp.WithStartTimeout(cfg.StartTimeout),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithMetricsGatherer(prometheus.DefaultGatherer),
	)
	go handler.RunStateBroadcast(rootCtx, cfg.BroadcastInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Streams stay open for as long as the player reads.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	// Sessions unregister through the engine queue, so the engine outlives them.
	if err := sessions.Close(shutdownCtx); err != nil {
		logger.Warn("session close error", slog.String("error", err.Error()))
	}
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
