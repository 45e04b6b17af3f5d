package session

import (
	"log/slog"
	"sync"
	"weak"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// cancelSignal is shared between a handle and one of its inputs so the
// handle can unblock readers without holding them.
type cancelSignal struct {
	once sync.Once
	done chan struct{}
}

func newCancelSignal() *cancelSignal {
	return &cancelSignal{done: make(chan struct{})}
}

func (c *cancelSignal) fire() {
	c.once.Do(func() { close(c.done) })
}

// FileHandle is one consumer's claim on a file. It references its entry
// weakly so an abandoned handle never keeps a session alive. Mutable fields
// are guarded by the session lock.
type FileHandle struct {
	id      uint64
	entry   weak.Pointer[FileEntry]
	desired *domain.FilePriority
	closed  bool
	inputs  map[uint64]*cancelSignal
}

func (h *FileHandle) ID() uint64 { return h.id }

// Entry returns the file entry, or nil once the session is gone.
func (h *FileHandle) Entry() *FileEntry {
	return h.entry.Value()
}

// Resume votes for prio. The file downloads at the highest vote of its open
// handles.
func (h *FileHandle) Resume(prio domain.FilePriority) error {
	return h.vote(&prio)
}

// Pause withdraws the handle's vote.
func (h *FileHandle) Pause() error {
	return h.vote(nil)
}

func (h *FileHandle) vote(prio *domain.FilePriority) error {
	e := h.entry.Value()
	if e == nil {
		return domain.ErrSessionClosed
	}
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.closed {
		return domain.ErrHandleClosed
	}
	if s.lifecycle == domain.LifecycleClosed {
		return domain.ErrSessionClosed
	}
	h.desired = prio
	e.resolvePriorityLocked()
	return nil
}

func (h *FileHandle) CreateInput() (ports.TorrentInput, error) {
	return h.NewInput()
}

// NewInput opens a seekable reader over the file.
func (h *FileHandle) NewInput() (*SeekableInput, error) {
	e := h.entry.Value()
	if e == nil {
		return nil, domain.ErrSessionClosed
	}
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.closed {
		return nil, domain.ErrHandleClosed
	}
	if s.lifecycle == domain.LifecycleClosed {
		return nil, domain.ErrSessionClosed
	}
	in := newSeekableInput(s.nextID.Add(1), e, h)
	h.inputs[in.id] = in.cancel
	return in, nil
}

// Close releases the handle. Blocked reads on its inputs fail with
// ErrReadCancelled. Closing the last handle closes the session. Idempotent.
func (h *FileHandle) Close() error {
	e := h.entry.Value()
	if e == nil {
		return nil
	}
	s := e.session

	s.mu.Lock()
	if h.closed {
		s.mu.Unlock()
		return nil
	}
	h.closed = true
	delete(e.handles, h.id)
	inputs := h.inputs
	h.inputs = nil
	h.desired = nil
	for id := range inputs {
		s.controller.Release(id)
	}
	if s.lifecycle != domain.LifecycleClosed {
		e.resolvePriorityLocked()
	}
	s.mu.Unlock()

	for _, c := range inputs {
		c.fire()
	}
	s.logger.Debug("file handle closed",
		slog.String("torrentId", string(s.id)),
		slog.Int("file", e.index),
		slog.Uint64("handle", h.id),
	)
	s.closeIfNotInUse()
	return nil
}

// CloseAndDelete closes the handle and asks for the torrent's save directory
// to be removed. Removal happens once the session is closed with no open
// handles, which may be now or when the last handle goes.
func (h *FileHandle) CloseAndDelete() error {
	e := h.entry.Value()
	if e == nil {
		return nil
	}
	s := e.session
	s.mu.Lock()
	s.deleteRequested = true
	s.mu.Unlock()

	if err := h.Close(); err != nil {
		return err
	}
	_, err := s.DeleteIfNotInUse()
	return err
}

// detachInputLocked forgets an input closed by its reader. Caller holds the
// session lock.
func (h *FileHandle) detachInputLocked(id uint64) {
	delete(h.inputs, id)
}
