package usecase

import (
	"context"
	"errors"
	"sync"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// Stream is one reader over a torrent file. Close releases the reader; the
// file handle behind it stays leased for a while so the next range request
// of the same player finds the session warm.
type Stream struct {
	Input ports.TorrentInput
	File  domain.FileRef

	leases    *StreamLeases
	lease     *lease
	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Input.Close()
		if s.leases != nil && s.lease != nil {
			s.leases.release(s.lease)
		}
	})
	return s.closeErr
}

type OpenStream struct {
	Downloader ports.Downloader
	Repo       ports.TorrentRepository
	Leases     *StreamLeases
}

// Execute opens a blocking reader over one file. A torrent that is in the
// catalogue but not running is started first.
func (uc OpenStream) Execute(ctx context.Context, id domain.TorrentID, fileIndex int) (*Stream, error) {
	if uc.Downloader == nil {
		return nil, errors.New("downloader not configured")
	}
	if uc.Leases == nil {
		return nil, errors.New("stream leases not configured")
	}

	session, err := liveOrRestored(ctx, uc.Downloader, uc.Repo, id)
	if err != nil {
		return nil, err
	}

	files, err := session.GetFiles(ctx)
	if err != nil {
		return nil, wrapEngine(err)
	}
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, ErrInvalidFileIndex
	}
	entry := files[fileIndex]

	l, err := uc.Leases.acquire(session, entry)
	if err != nil {
		return nil, wrapEngine(err)
	}
	input, err := l.handle.CreateInput()
	if err != nil {
		uc.Leases.release(l)
		return nil, wrapEngine(err)
	}
	input.SetContext(ctx)

	stats := entry.Stats()
	return &Stream{
		Input: input,
		File: domain.FileRef{
			Index:          entry.Index(),
			Path:           entry.RelativePath(),
			Length:         entry.Length(),
			BytesCompleted: stats.DownloadedBytes,
		},
		leases: uc.Leases,
		lease:  l,
	}, nil
}

// liveOrRestored returns the running session for id, starting it from its
// catalogue row when it is not running.
func liveOrRestored(ctx context.Context, d ports.Downloader, repo ports.TorrentRepository, id domain.TorrentID) (ports.TorrentSession, error) {
	session, err := d.Get(id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, wrapEngine(err)
	}
	if repo == nil {
		return nil, err
	}

	record, repoErr := repo.Get(ctx, id)
	if repoErr != nil {
		if errors.Is(repoErr, domain.ErrNotFound) {
			return nil, repoErr
		}
		return nil, wrapRepo(repoErr)
	}
	session, err = openSessionFromRecord(ctx, d, record)
	if err != nil {
		if errors.Is(err, errMissingSource) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapEngine(err)
	}
	return session, nil
}
