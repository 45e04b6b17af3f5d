package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

type StartDownload struct {
	Downloader ports.Downloader
	Repo       ports.TorrentRepository
	Now        func() time.Time
}

type StartDownloadInput struct {
	Source  domain.TorrentSource
	Name    string
	SaveDir string
}

// Execute starts (or joins) the session for the source and makes sure the
// catalogue has a row for it. It returns once metadata is known.
func (uc StartDownload) Execute(ctx context.Context, input StartDownloadInput) (domain.TorrentRecord, error) {
	if err := validateSource(input.Source); err != nil {
		return domain.TorrentRecord{}, err
	}

	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}

	session, err := uc.Downloader.StartDownload(ctx, input.Source, input.SaveDir)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSource) {
			return domain.TorrentRecord{}, err
		}
		return domain.TorrentRecord{}, wrapEngine(err)
	}
	state := session.State()

	// A known torrent keeps its row; only its status and progress move.
	existing, getErr := uc.Repo.Get(ctx, session.ID())
	if getErr == nil {
		existing.Status = state.Status
		existing.SaveDir = session.SaveDir()
		applyState(&existing, state)
		existing.UpdatedAt = now()
		if err := uc.Repo.Update(ctx, existing); err != nil {
			return domain.TorrentRecord{}, wrapRepo(err)
		}
		return existing, nil
	}
	if !errors.Is(getErr, domain.ErrNotFound) {
		return domain.TorrentRecord{}, wrapRepo(getErr)
	}

	name := input.Name
	if name == "" {
		name = state.Name
	}
	if name == "" {
		name = deriveName(state.Files)
	}

	record := domain.TorrentRecord{
		ID:        session.ID(),
		Name:      name,
		Status:    state.Status,
		InfoHash:  domain.InfoHash(session.ID()),
		Source:    input.Source,
		SaveDir:   session.SaveDir(),
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	applyState(&record, state)

	if err := uc.Repo.Create(ctx, record); err != nil {
		return domain.TorrentRecord{}, wrapRepo(err)
	}
	return record, nil
}

// applyState copies file progress into a record. Progress never decreases.
func applyState(record *domain.TorrentRecord, state domain.SessionState) bool {
	changed := false
	if len(state.Files) > 0 && len(state.Files) != len(record.Files) {
		record.Files = state.Files
		record.TotalBytes = sumFileLengths(state.Files)
		changed = true
	} else {
		for i, sf := range state.Files {
			if sf.BytesCompleted > record.Files[i].BytesCompleted {
				record.Files[i].BytesCompleted = sf.BytesCompleted
				changed = true
			}
		}
	}
	if done := min(state.Stats.DownloadedBytes, record.TotalBytes); done > record.DoneBytes {
		record.DoneBytes = done
		changed = true
	}
	return changed
}

func validateSource(src domain.TorrentSource) error {
	hasMagnet := strings.TrimSpace(src.Magnet) != ""
	hasTorrent := strings.TrimSpace(src.Torrent) != ""
	if hasMagnet == hasTorrent {
		return domain.ErrInvalidSource
	}
	return nil
}

func sumFileLengths(files []domain.FileRef) int64 {
	var total int64
	for _, f := range files {
		total += f.Length
	}
	return total
}

func deriveName(files []domain.FileRef) string {
	if len(files) == 0 {
		return ""
	}
	parts := splitPathParts(files[0].Path)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func splitPathParts(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
