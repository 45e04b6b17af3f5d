package ports

import (
	"context"
	"io"

	"piecestream/internal/domain"
)

// Downloader starts and tracks torrent sessions, at most one per info hash.
type Downloader interface {
	StartDownload(ctx context.Context, src domain.TorrentSource, saveDir string) (TorrentSession, error)
	Get(id domain.TorrentID) (TorrentSession, error)
	List() []TorrentSession
	Close(ctx context.Context) error
}

type TorrentSession interface {
	ID() domain.TorrentID
	SaveDir() string
	Lifecycle() domain.SessionLifecycle
	Info() (domain.TorrentInfo, bool)
	// GetFiles blocks until metadata arrived, the session closed or ctx ends.
	GetFiles(ctx context.Context) ([]FileEntry, error)
	OverallStats() domain.OverallStats
	// State is the read model with per-file progress.
	State() domain.SessionState
	SaveResumeData()
	Close(ctx context.Context) error
	// CloseAndDelete closes the session and removes its save directory once
	// no handle is open.
	CloseAndDelete(ctx context.Context) error
}

type FileEntry interface {
	Index() int
	RelativePath() string
	Length() int64
	Stats() domain.FileStats
	Open() (FileHandle, error)
}

type FileHandle interface {
	Resume(prio domain.FilePriority) error
	Pause() error
	CreateInput() (TorrentInput, error)
	Close() error
	CloseAndDelete() error
}

// TorrentInput reads file bytes, blocking until the covering pieces are on
// disk.
type TorrentInput interface {
	io.ReadSeekCloser
	io.ReaderAt
	Size() int64
	SetContext(ctx context.Context)
}
