package usecase

import (
	"context"
	"log/slog"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// DiskPressure periodically checks free space on the data directory. Below
// MinFreeBytes it closes every session that is not being streamed; once free
// space exceeds ResumeBytes those sessions are started again.
type DiskPressure struct {
	Downloader   ports.Downloader
	Repo         ports.TorrentRepository
	Leases       *StreamLeases
	Logger       *slog.Logger
	DataDir      string
	MinFreeBytes int64
	ResumeBytes  int64
	Interval     time.Duration

	// FreeBytes overrides the filesystem probe.
	FreeBytes func(path string) (int64, error)
}

// Run blocks until ctx is cancelled.
func (dp DiskPressure) Run(ctx context.Context) {
	interval := dp.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	state := &pressureState{stopped: make(map[domain.TorrentID]struct{})}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dp.check(ctx, state)
		}
	}
}

type pressureState struct {
	paused  bool
	stopped map[domain.TorrentID]struct{}
}

func (dp DiskPressure) check(ctx context.Context, st *pressureState) {
	probe := dp.FreeBytes
	if probe == nil {
		probe = diskFreeBytes
	}
	resumeAt := dp.ResumeBytes
	if resumeAt <= dp.MinFreeBytes {
		resumeAt = dp.MinFreeBytes * 2
	}

	free, err := probe(dp.DataDir)
	if err != nil {
		dp.Logger.Warn("disk_pressure: failed to check disk space",
			slog.String("path", dp.DataDir),
			slog.String("error", err.Error()),
		)
		return
	}

	switch {
	case !st.paused && free < dp.MinFreeBytes:
		dp.Logger.Warn("disk_pressure: low disk space, closing idle sessions",
			slog.Int64("freeBytes", free),
			slog.Int64("thresholdBytes", dp.MinFreeBytes),
		)
		dp.closeIdleSessions(ctx, st.stopped)
		st.paused = true
	case st.paused && free >= resumeAt:
		dp.Logger.Info("disk_pressure: disk space recovered, restarting sessions",
			slog.Int64("freeBytes", free),
			slog.Int64("resumeBytes", resumeAt),
		)
		dp.restartSessions(ctx, st.stopped)
		st.paused = false
	}
}

// closeIdleSessions closes sessions nobody streams from and remembers them.
func (dp DiskPressure) closeIdleSessions(ctx context.Context, stopped map[domain.TorrentID]struct{}) {
	for _, s := range dp.Downloader.List() {
		id := s.ID()
		if dp.Leases != nil && dp.Leases.active(id) > 0 {
			continue
		}
		if err := s.Close(ctx); err != nil {
			dp.Logger.Warn("disk_pressure: close session failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		stopped[id] = struct{}{}
		dp.Logger.Info("disk_pressure: closed session", slog.String("torrentId", string(id)))
	}
}

func (dp DiskPressure) restartSessions(ctx context.Context, stopped map[domain.TorrentID]struct{}) {
	for id := range stopped {
		delete(stopped, id)
		record, err := dp.Repo.Get(ctx, id)
		if err == nil {
			_, err = openSessionFromRecord(ctx, dp.Downloader, record)
		}
		if err != nil {
			dp.Logger.Warn("disk_pressure: restart session failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		dp.Logger.Info("disk_pressure: restarted session", slog.String("torrentId", string(id)))
	}
}
