package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"piecestream/internal/domain"
	domainports "piecestream/internal/domain/ports"
	"piecestream/internal/usecase"
)

type StartDownloadUseCase interface {
	Execute(ctx context.Context, input usecase.StartDownloadInput) (domain.TorrentRecord, error)
}

type StopTorrentUseCase interface {
	Execute(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error)
}

type DeleteTorrentUseCase interface {
	Execute(ctx context.Context, id domain.TorrentID, deleteFiles bool) error
}

type OpenStreamUseCase interface {
	Execute(ctx context.Context, id domain.TorrentID, fileIndex int) (*usecase.Stream, error)
}

type GetTorrentStateUseCase interface {
	Execute(ctx context.Context, id domain.TorrentID) (domain.SessionState, error)
}

type ListTorrentStatesUseCase interface {
	Execute(ctx context.Context) ([]domain.SessionState, error)
}

const (
	defaultStartTimeout = 4 * time.Minute
	defaultRateLimit    = 100
	defaultRateBurst    = 200
)

type Server struct {
	startDownload  StartDownloadUseCase
	stopTorrent    StopTorrentUseCase
	deleteTorrent  DeleteTorrentUseCase
	openStream     OpenStreamUseCase
	getState       GetTorrentStateUseCase
	listStates     ListTorrentStatesUseCase
	repo           domainports.TorrentRepository
	uploadDir      string
	startTimeout   time.Duration
	allowedOrigins []string
	gatherer       prometheus.Gatherer
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithRepository(repo domainports.TorrentRepository) ServerOption {
	return func(s *Server) {
		s.repo = repo
	}
}

func WithStopTorrent(uc StopTorrentUseCase) ServerOption {
	return func(s *Server) {
		s.stopTorrent = uc
	}
}

func WithDeleteTorrent(uc DeleteTorrentUseCase) ServerOption {
	return func(s *Server) {
		s.deleteTorrent = uc
	}
}

func WithOpenStream(uc OpenStreamUseCase) ServerOption {
	return func(s *Server) {
		s.openStream = uc
	}
}

func WithGetTorrentState(uc GetTorrentStateUseCase) ServerOption {
	return func(s *Server) {
		s.getState = uc
	}
}

func WithListTorrentStates(uc ListTorrentStatesUseCase) ServerOption {
	return func(s *Server) {
		s.listStates = uc
	}
}

// WithUploadDir sets where uploaded .torrent files are kept. They must
// outlive the request since the catalogue restarts sessions from them.
func WithUploadDir(dir string) ServerOption {
	return func(s *Server) {
		dir = strings.TrimSpace(dir)
		if dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				dir = abs
			}
		}
		s.uploadDir = dir
	}
}

// WithStartTimeout bounds POST /torrents, which waits for metadata.
func WithStartTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.startTimeout = d
		}
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithMetricsGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(start StartDownloadUseCase, opts ...ServerOption) *Server {
	s := &Server{
		startDownload: start,
		startTimeout:  defaultStartTimeout,
		gatherer:      prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /torrents", s.handleCreateTorrent)
	mux.HandleFunc("GET /torrents", s.handleListTorrents)
	mux.HandleFunc("GET /torrents/state", s.handleListTorrentStates)
	mux.HandleFunc("GET /torrents/{id}", s.handleGetTorrent)
	mux.HandleFunc("DELETE /torrents/{id}", s.handleDeleteTorrent)
	mux.HandleFunc("POST /torrents/{id}/stop", s.handleStopTorrent)
	mux.HandleFunc("GET /torrents/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /torrents/{id}/files/{index}/stream", s.handleStreamFile)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "piecestream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(defaultRateLimit, defaultRateBurst,
			metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastStates sends session states to all WebSocket clients.
func (s *Server) BroadcastStates(states []domain.SessionState) {
	if s.wsHub != nil {
		s.wsHub.BroadcastStates(states)
	}
}

// RunStateBroadcast pushes the live session states to WebSocket clients
// every interval until ctx ends.
func (s *Server) RunStateBroadcast(ctx context.Context, interval time.Duration) {
	if s.listStates == nil || s.wsHub == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.wsHub.clientCount() == 0 {
				continue
			}
			states, err := s.listStates.Execute(ctx)
			if err != nil {
				s.logger.Debug("ws state broadcast failed", slog.String("error", err.Error()))
				continue
			}
			s.wsHub.BroadcastStates(states)
		}
	}
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
