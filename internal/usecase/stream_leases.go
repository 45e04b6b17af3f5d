package usecase

import (
	"log/slog"
	"sync"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

const defaultHandleIdleTimeout = 60 * time.Second

type leaseKey struct {
	id   domain.TorrentID
	file int
}

// lease is one shared file handle and the streams reading through it.
type lease struct {
	key     leaseKey
	session ports.TorrentSession
	handle  ports.FileHandle
	streams int
	idle    *time.Timer
}

// StreamLeases keeps one file handle per streamed file. HTTP players issue
// many short range requests; holding the handle between them keeps the
// session (and its priorities) alive. A handle is closed once no stream used
// it for IdleTimeout, which closes the session when it was the last one.
type StreamLeases struct {
	IdleTimeout time.Duration
	Logger      *slog.Logger

	mu     sync.Mutex
	leases map[leaseKey]*lease
}

// acquire returns the shared handle for the file, opening it on first use.
func (sl *StreamLeases) acquire(session ports.TorrentSession, entry ports.FileEntry) (*lease, error) {
	key := leaseKey{id: session.ID(), file: entry.Index()}

	l, stale, err := sl.acquireLocked(key, session, entry)
	if stale != nil {
		sl.closeHandle(stale)
	}
	return l, err
}

func (sl *StreamLeases) acquireLocked(key leaseKey, session ports.TorrentSession, entry ports.FileEntry) (l, stale *lease, err error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.leases == nil {
		sl.leases = make(map[leaseKey]*lease)
	}
	if cur, ok := sl.leases[key]; ok {
		if cur.session == session && session.Lifecycle() != domain.LifecycleClosed {
			if cur.idle != nil {
				cur.idle.Stop()
				cur.idle = nil
			}
			cur.streams++
			return cur, nil, nil
		}
		// The session was replaced; its handle only pins a closed session.
		delete(sl.leases, key)
		if cur.idle != nil {
			cur.idle.Stop()
		}
		if cur.streams == 0 {
			stale = cur
		}
	}

	h, err := entry.Open()
	if err != nil {
		return nil, stale, err
	}
	if err := h.Resume(domain.PriorityHigh); err != nil {
		_ = h.Close()
		return nil, stale, err
	}
	l = &lease{key: key, session: session, handle: h, streams: 1}
	sl.leases[key] = l
	return l, stale, nil
}

// release ends one stream. The last stream arms the idle timer, or closes
// the handle right away when the lease was dropped.
func (sl *StreamLeases) release(l *lease) {
	sl.mu.Lock()
	l.streams--
	if l.streams > 0 {
		sl.mu.Unlock()
		return
	}
	if sl.leases[l.key] != l {
		sl.mu.Unlock()
		sl.closeHandle(l)
		return
	}
	timeout := sl.IdleTimeout
	if timeout <= 0 {
		timeout = defaultHandleIdleTimeout
	}
	l.idle = time.AfterFunc(timeout, func() { sl.expire(l) })
	sl.mu.Unlock()
}

func (sl *StreamLeases) expire(l *lease) {
	sl.mu.Lock()
	if sl.leases[l.key] != l || l.streams > 0 {
		sl.mu.Unlock()
		return
	}
	delete(sl.leases, l.key)
	sl.mu.Unlock()
	sl.closeHandle(l)
}

// Drop closes every idle handle of a torrent and forgets the busy ones so
// they close when their streams end.
func (sl *StreamLeases) Drop(id domain.TorrentID) {
	sl.mu.Lock()
	var idle []*lease
	for key, l := range sl.leases {
		if key.id != id {
			continue
		}
		delete(sl.leases, key)
		if l.idle != nil {
			l.idle.Stop()
		}
		if l.streams == 0 {
			idle = append(idle, l)
		}
	}
	sl.mu.Unlock()
	for _, l := range idle {
		sl.closeHandle(l)
	}
}

// active reports how many handles are held for a torrent.
func (sl *StreamLeases) active(id domain.TorrentID) int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	n := 0
	for key := range sl.leases {
		if key.id == id {
			n++
		}
	}
	return n
}

func (sl *StreamLeases) closeHandle(l *lease) {
	if err := l.handle.Close(); err != nil && sl.Logger != nil {
		sl.Logger.Warn("stream handle close failed",
			slog.String("torrentId", string(l.key.id)),
			slog.Int("file", l.key.file),
			slog.String("error", err.Error()),
		)
	}
}
