package usecase

import (
	"context"
	"log/slog"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// SyncState copies live session progress into the catalogue.
type SyncState struct {
	Downloader ports.Downloader
	Repo       ports.TorrentRepository
	Logger     *slog.Logger
	Interval   time.Duration
	Now        func() time.Time
}

func (s SyncState) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

func (s SyncState) sync(ctx context.Context) {
	sessions := s.Downloader.List()
	if len(sessions) == 0 {
		return
	}

	ids := make([]domain.TorrentID, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID()
	}
	records, err := s.Repo.GetMany(ctx, ids)
	if err != nil {
		s.Logger.Warn("sync: fetch records failed", slog.String("error", err.Error()))
		return
	}

	recordMap := make(map[domain.TorrentID]domain.TorrentRecord, len(records))
	for _, r := range records {
		recordMap[r.ID] = r
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	for _, session := range sessions {
		record, ok := recordMap[session.ID()]
		if !ok {
			continue
		}
		state := session.State()
		if state.Lifecycle == domain.LifecycleClosed {
			continue
		}

		changed := applyState(&record, state)
		if state.Status != record.Status {
			record.Status = state.Status
			changed = true
		}
		if record.Name == "" && state.Name != "" {
			record.Name = state.Name
			changed = true
		}
		if !changed {
			continue
		}

		record.UpdatedAt = now().UTC()
		if err := s.Repo.Update(ctx, record); err != nil {
			s.Logger.Warn("sync: update record failed",
				slog.String("torrentId", string(record.ID)),
				slog.String("error", err.Error()))
		}
	}
}
