package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

const defaultRestoreConcurrency = 4

var errMissingSource = errors.New("torrent source not available")

func openSessionFromRecord(ctx context.Context, d ports.Downloader, record domain.TorrentRecord) (ports.TorrentSession, error) {
	if !hasSource(record.Source) {
		return nil, errMissingSource
	}
	return d.StartDownload(ctx, record.Source, record.SaveDir)
}

func hasSource(src domain.TorrentSource) bool {
	return strings.TrimSpace(src.Magnet) != "" || strings.TrimSpace(src.Torrent) != ""
}

// RestoreSessions restarts the torrents that were running when the service
// stopped. Each start waits for metadata, so starts run a few at a time.
type RestoreSessions struct {
	Downloader  ports.Downloader
	Repo        ports.TorrentRepository
	Logger      *slog.Logger
	Concurrency int64
	Now         func() time.Time
}

// Execute returns how many sessions were restored. A torrent that fails to
// restart is marked as errored in the catalogue.
func (uc RestoreSessions) Execute(ctx context.Context) (int, error) {
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}

	var records []domain.TorrentRecord
	for _, status := range []domain.TorrentStatus{domain.TorrentActive, domain.TorrentPending} {
		st := status
		batch, err := uc.Repo.List(ctx, domain.TorrentFilter{Status: &st})
		if err != nil {
			return 0, wrapRepo(err)
		}
		records = append(records, batch...)
	}

	limit := uc.Concurrency
	if limit <= 0 {
		limit = defaultRestoreConcurrency
	}
	sem := semaphore.NewWeighted(limit)
	results := make(chan bool, len(records))
	for _, record := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func() {
			defer sem.Release(1)
			results <- uc.restore(ctx, logger, now, record)
		}()
	}
	// Wait for the in-flight restores.
	if err := sem.Acquire(context.WithoutCancel(ctx), limit); err != nil {
		return 0, err
	}
	close(results)

	restored := 0
	for ok := range results {
		if ok {
			restored++
		}
	}
	logger.Info("sessions restored",
		slog.Int("restored", restored),
		slog.Int("candidates", len(records)),
	)
	return restored, ctx.Err()
}

func (uc RestoreSessions) restore(ctx context.Context, logger *slog.Logger, now func() time.Time, record domain.TorrentRecord) bool {
	_, err := openSessionFromRecord(ctx, uc.Downloader, record)
	if err == nil {
		return true
	}
	logger.Warn("session restore failed",
		slog.String("torrentId", string(record.ID)),
		slog.String("error", err.Error()),
	)
	if ctx.Err() != nil {
		return false
	}
	record.Status = domain.TorrentError
	record.UpdatedAt = now()
	if err := uc.Repo.Update(ctx, record); err != nil {
		logger.Warn("restore status update failed",
			slog.String("torrentId", string(record.ID)),
			slog.String("error", err.Error()),
		)
	}
	return false
}
