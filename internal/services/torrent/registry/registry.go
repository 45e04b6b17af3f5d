// Package registry owns the live torrent sessions, at most one per info hash.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
	"piecestream/internal/metrics"
	"piecestream/internal/services/torrent/session"
)

const DefaultMetadataTimeout = 3 * time.Minute

type Config struct {
	Engine ports.TaskSubmitter
	// RootDir holds one save directory per torrent under pieces/<id>.
	RootDir         string
	Logger          *slog.Logger
	MetadataTimeout time.Duration
	WindowSize      int
	StatsStaleAfter time.Duration
	ResumeInterval  time.Duration
	CloseTimeout    time.Duration
	Now             func() time.Time
}

type Registry struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	group  singleflight.Group

	mu       sync.Mutex
	sessions map[domain.TorrentID]*session.Session
	closed   bool
}

func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("piecestream/registry"),
		sessions: make(map[domain.TorrentID]*session.Session),
	}
}

// SaveDirFor returns the default save directory of a torrent.
func (r *Registry) SaveDirFor(id domain.TorrentID) string {
	return filepath.Join(r.cfg.RootDir, "pieces", string(id))
}

// StartDownload returns the open session for src or starts one and waits for
// its metadata. Concurrent calls for the same torrent share one start.
func (r *Registry) StartDownload(ctx context.Context, src domain.TorrentSource, saveDir string) (ports.TorrentSession, error) {
	s, err := r.Start(ctx, src, saveDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) Start(ctx context.Context, src domain.TorrentSource, saveDir string) (*session.Session, error) {
	ctx, span := r.tracer.Start(ctx, "registry.StartDownload")
	defer span.End()

	id, src, err := Resolve(src)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("torrent.id", string(id)))

	if s, ok := r.Session(id); ok && hasMetadata(s) && s.Lifecycle() != domain.LifecycleClosed {
		span.SetAttributes(attribute.Bool("torrent.existing", true))
		return s, nil
	}

	// The shared start outlives any single caller; each caller may still give
	// up on its own ctx.
	startCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(id), func() (any, error) {
		return r.start(startCtx, id, src, saveDir)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("torrent.shared", res.Shared))
		return res.Val.(*session.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) start(ctx context.Context, id domain.TorrentID, src domain.TorrentSource, saveDir string) (*session.Session, error) {
	if strings.TrimSpace(saveDir) == "" {
		saveDir = r.SaveDirFor(id)
	}
	req := ports.AddRequest{Source: src}
	if data := r.loadResume(saveDir, id); data != nil {
		req.Metainfo = data
	}

	r.mu.Lock()
	for {
		if r.closed {
			r.mu.Unlock()
			return nil, domain.ErrSessionClosed
		}
		existing, ok := r.sessions[id]
		if !ok {
			break
		}
		if existing.Lifecycle() != domain.LifecycleClosed {
			r.mu.Unlock()
			return existing, nil
		}
		// A closing session keeps its slot until its engine cleanup is
		// queued; start the replacement after that.
		r.mu.Unlock()
		select {
		case <-existing.Released():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.forget(existing)
		r.mu.Lock()
	}
	s := session.New(session.Config{
		ID:              id,
		SaveDir:         saveDir,
		Submitter:       r.cfg.Engine,
		Logger:          r.logger,
		WindowSize:      r.cfg.WindowSize,
		StatsStaleAfter: r.cfg.StatsStaleAfter,
		ResumeInterval:  r.cfg.ResumeInterval,
		CloseTimeout:    r.cfg.CloseTimeout,
		Now:             r.cfg.Now,
		OnClose:         r.forget,
	})
	r.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if err := s.Start(req); err != nil {
		r.abort(s)
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.MetadataTimeout)
	defer cancel()
	if err := s.AwaitMetadata(waitCtx); err != nil {
		r.abort(s)
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.MetadataTimeoutsTotal.Inc()
			r.logger.Warn("metadata fetch timed out",
				slog.String("torrentId", string(id)),
				slog.Duration("timeout", r.cfg.MetadataTimeout),
			)
			return nil, fmt.Errorf("%w: %s", domain.ErrMetadataFetchTimeout, id)
		}
		return nil, err
	}
	r.logger.Info("session started",
		slog.String("torrentId", string(id)),
		slog.Bool("resumed", req.Metainfo != nil),
	)
	return s, nil
}

// loadResume returns the stored metainfo, or nil for a cold start. A
// corrupt blob is removed.
func (r *Registry) loadResume(saveDir string, id domain.TorrentID) []byte {
	rd, err := session.LoadResumeData(saveDir, id)
	switch {
	case err == nil:
		metrics.ResumeDataTotal.WithLabelValues("loaded").Inc()
		return rd.Metainfo
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		metrics.ResumeDataTotal.WithLabelValues("corrupt").Inc()
		r.logger.Warn("discarding resume data",
			slog.String("torrentId", string(id)),
			slog.String("error", err.Error()),
		)
		if rmErr := os.Remove(session.ResumePath(saveDir)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.logger.Warn("resume data remove failed",
				slog.String("torrentId", string(id)),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil
	}
}

func hasMetadata(s *session.Session) bool {
	_, ok := s.Info()
	return ok
}

func (r *Registry) abort(s *session.Session) {
	if err := s.Close(context.Background()); err != nil {
		r.logger.Warn("close after failed start",
			slog.String("torrentId", string(s.ID())),
			slog.String("error", err.Error()),
		)
	}
	r.forget(s)
}

func (r *Registry) forget(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID()] == s {
		delete(r.sessions, s.ID())
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Session returns the open session for id.
func (r *Registry) Session(id domain.TorrentID) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Get(id domain.TorrentID) (ports.TorrentSession, error) {
	s, ok := r.Session(id)
	if !ok || s.Lifecycle() == domain.LifecycleClosed {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return s, nil
}

// Sessions lists open sessions ordered by id.
func (r *Registry) Sessions() []*session.Session {
	r.mu.Lock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *session.Session) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})
	return out
}

func (r *Registry) List() []ports.TorrentSession {
	sessions := r.Sessions()
	out := make([]ports.TorrentSession, len(sessions))
	for i, s := range sessions {
		out[i] = s
	}
	return out
}

// Close closes every session and rejects further starts.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var err error
	for _, s := range r.Sessions() {
		err = errors.Join(err, s.Close(ctx))
	}
	return err
}
