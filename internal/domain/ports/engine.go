package ports

import (
	"piecestream/internal/domain"
)

// EngineTask runs on the engine goroutine. A returned error or a panic is
// contained by the queue and never reaches the engine loop.
type EngineTask func(h EngineHandle) error

// TaskSubmitter is the only way to reach the native engine from other
// goroutines. Submit never blocks; it reports false when the engine is gone
// and the task was dropped.
type TaskSubmitter interface {
	Submit(name string, task EngineTask) bool
}

// EventListener receives engine events. It is always invoked on the engine
// goroutine and must not block.
type EventListener interface {
	HandleEvent(ev domain.EngineEvent)
}

type AddRequest struct {
	ID      domain.TorrentID
	Source  domain.TorrentSource
	SaveDir string
	// Metainfo is the bencoded torrent restored from resume data. When set
	// the engine skips the metadata exchange.
	Metainfo []byte
}

// EngineHandle exposes native operations. It is only valid inside an
// EngineTask.
type EngineHandle interface {
	Add(req AddRequest) (NativeTorrent, error)
	Torrent(id domain.TorrentID) (NativeTorrent, bool)
	Listen(id domain.TorrentID, l EventListener)
	Unlisten(id domain.TorrentID)
	Remove(id domain.TorrentID) error
}

type NativeTorrent interface {
	ID() domain.TorrentID
	SetFilePriority(index int, prio domain.FilePriority)
	// SetPieceDeadlines replaces the previous deadline set. Pieces missing
	// from the map fall back to their file priority.
	SetPieceDeadlines(deadlines map[int]int)
	// RequestResumeData asks for a ResumeDataSaved event.
	RequestResumeData()
	FileBytesCompleted() []int64
}

// Engine owns the native client and the engine goroutine.
type Engine interface {
	TaskSubmitter
	Close() error
}
