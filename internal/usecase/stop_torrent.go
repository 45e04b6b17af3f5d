package usecase

import (
	"context"
	"errors"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// StopTorrent closes a running session but keeps its files and catalogue
// row, so the torrent can be started again later.
type StopTorrent struct {
	Downloader ports.Downloader
	Repo       ports.TorrentRepository
	Leases     *StreamLeases
	Now        func() time.Time
}

func (uc StopTorrent) Execute(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error) {
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}

	record, err := uc.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TorrentRecord{}, err
		}
		return domain.TorrentRecord{}, wrapRepo(err)
	}

	if uc.Leases != nil {
		uc.Leases.Drop(id)
	}
	session, err := uc.Downloader.Get(id)
	if err == nil {
		applyState(&record, session.State())
		if err := session.Close(ctx); err != nil {
			return domain.TorrentRecord{}, wrapEngine(err)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.TorrentRecord{}, wrapEngine(err)
	}

	if record.Status != domain.TorrentCompleted {
		record.Status = domain.TorrentStopped
	}
	record.UpdatedAt = now()

	if err := uc.Repo.Update(ctx, record); err != nil {
		return domain.TorrentRecord{}, wrapRepo(err)
	}
	return record, nil
}
