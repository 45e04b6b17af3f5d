package session

import (
	"log/slog"
	"path/filepath"
	"weak"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// FileEntry is one logical file of a torrent. Mutable fields are guarded by
// the session lock.
type FileEntry struct {
	session      *Session
	index        int
	offset       int64 // in torrent byte space
	length       int64
	relativePath string
	pieceStart   int // [pieceStart, pieceEnd)
	pieceEnd     int

	// downloadedBytes is the raw sum of finished piece lengths in range.
	// Boundary pieces count fully, so it may exceed length.
	downloadedBytes  int64
	finishedOverride bool
	priority         domain.FilePriority
	handles          map[uint64]*FileHandle
}

func buildEntries(s *Session, info domain.TorrentInfo, pieces []Piece) []*FileEntry {
	entries := make([]*FileEntry, 0, len(info.Files))
	for _, f := range info.Files {
		start, end := matchPieces(pieces, f.Offset, f.Length)
		e := &FileEntry{
			session:      s,
			index:        f.Index,
			offset:       f.Offset,
			length:       f.Length,
			relativePath: f.Path,
			pieceStart:   start,
			pieceEnd:     end,
			priority:     domain.PriorityIgnore,
			handles:      make(map[uint64]*FileHandle),
		}
		for _, p := range pieces[start:end] {
			if p.State == domain.PieceFinished {
				e.downloadedBytes += p.Length
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func (e *FileEntry) Index() int           { return e.index }
func (e *FileEntry) RelativePath() string { return e.relativePath }
func (e *FileEntry) Length() int64        { return e.length }
func (e *FileEntry) Offset() int64        { return e.offset }

// PieceRange returns the half-open piece range of the file.
func (e *FileEntry) PieceRange() (start, end int) { return e.pieceStart, e.pieceEnd }

// AbsPath is where the engine stores the file.
func (e *FileEntry) AbsPath() string {
	return filepath.Join(e.session.saveDir, filepath.FromSlash(e.relativePath))
}

func (e *FileEntry) Stats() domain.FileStats {
	e.session.mu.RLock()
	downloaded, override := e.downloadedBytes, e.finishedOverride
	e.session.mu.RUnlock()

	if override || downloaded > e.length {
		downloaded = e.length
	}
	return domain.FileStats{
		DownloadedBytes: downloaded,
		Progress:        domain.Ratio(downloaded, e.length),
		IsFinished:      downloaded >= e.length,
	}
}

func (e *FileEntry) OpenHandles() int {
	e.session.mu.RLock()
	defer e.session.mu.RUnlock()
	return len(e.handles)
}

func (e *FileEntry) Open() (ports.FileHandle, error) {
	return e.OpenHandle()
}

// OpenHandle registers a new handle on the file. The handle votes for no
// priority until Resume is called.
func (e *FileEntry) OpenHandle() (*FileHandle, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == domain.LifecycleClosed {
		return nil, domain.ErrSessionClosed
	}
	h := &FileHandle{
		id:     s.nextID.Add(1),
		entry:  weak.Make(e),
		inputs: make(map[uint64]*cancelSignal),
	}
	e.handles[h.id] = h
	s.logger.Debug("file handle opened",
		slog.String("torrentId", string(s.id)),
		slog.Int("file", e.index),
		slog.Uint64("handle", h.id),
	)
	return h, nil
}

// absPiece maps a file offset to the absolute piece index.
func (e *FileEntry) absPiece(off int64) int {
	return int((e.offset + off) / e.session.pieceLength)
}

// resolvePriorityLocked recomputes the file priority from live handle votes
// and forwards a change to the engine. Caller holds the session lock.
func (e *FileEntry) resolvePriorityLocked() {
	votes := make([]*domain.FilePriority, 0, len(e.handles))
	for _, h := range e.handles {
		votes = append(votes, h.desired)
	}
	next := domain.MaxPriority(votes...)
	if next == e.priority {
		return
	}
	e.priority = next
	e.session.submitFilePriority(e.index, next)
}
