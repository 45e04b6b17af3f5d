package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"piecestream/internal/domain"
)

var errNegativeOffset = errors.New("negative offset")

// SeekableInput reads a torrent file as it downloads. Bytes of finished
// pieces come straight from disk; a read touching an unfinished piece
// escalates it through the download controller and blocks until the piece
// finishes or the read is cancelled.
//
// ReadAt may be called concurrently. Read and Seek share a cursor and are
// meant for one goroutine.
type SeekableInput struct {
	id      uint64
	session *Session
	entry   *FileEntry
	handle  *FileHandle
	cancel  *cancelSignal

	mu   sync.Mutex
	pos  int64
	file *os.File
	ctx  context.Context
}

func newSeekableInput(id uint64, e *FileEntry, h *FileHandle) *SeekableInput {
	return &SeekableInput{
		id:      id,
		session: e.session,
		entry:   e,
		handle:  h,
		cancel:  newCancelSignal(),
		ctx:     context.Background(),
	}
}

func (in *SeekableInput) Size() int64 { return in.entry.length }

// SetContext bounds future blocking reads by ctx.
func (in *SeekableInput) SetContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	in.mu.Lock()
	in.ctx = ctx
	in.mu.Unlock()
}

func (in *SeekableInput) readContext() context.Context {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ctx
}

func (in *SeekableInput) cancelled() bool {
	select {
	case <-in.cancel.done:
		return true
	default:
		return false
	}
}

// ReadAt fills p from off, waiting for every piece it covers. It returns
// io.EOF when p extends past the end of the file.
func (in *SeekableInput) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if in.cancelled() {
		return 0, domain.ErrReadCancelled
	}
	size := in.entry.length
	if off >= size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := min(int64(len(p)), size-off)

	first, last := in.entry.absPiece(off), in.entry.absPiece(off+n-1)
	ctx := in.readContext()
	for idx := first; idx <= last; idx++ {
		if err := in.awaitPiece(ctx, idx, idx == first); err != nil {
			return 0, err
		}
	}

	read, err := in.readFile(p[:n], off)
	if err != nil {
		return read, err
	}
	if n < int64(len(p)) {
		return read, io.EOF
	}
	return read, nil
}

// Read returns the bytes available in finished pieces from the cursor on,
// blocking only until the first of them finishes.
func (in *SeekableInput) Read(p []byte) (int, error) {
	if in.cancelled() {
		return 0, domain.ErrReadCancelled
	}
	in.mu.Lock()
	pos, ctx := in.pos, in.ctx
	in.mu.Unlock()

	size := in.entry.length
	if pos >= size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if err := in.awaitPiece(ctx, in.entry.absPiece(pos), true); err != nil {
		return 0, err
	}
	want := min(int64(len(p)), size-pos)
	avail := in.session.contiguousFinished(in.entry.offset+pos, want)

	n, err := in.readFile(p[:avail], pos)
	in.mu.Lock()
	in.pos = pos + int64(n)
	in.mu.Unlock()
	return n, err
}

func (in *SeekableInput) Seek(offset int64, whence int) (int64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = in.pos + offset
	case io.SeekEnd:
		next = in.entry.length + offset
	default:
		return in.pos, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return in.pos, errNegativeOffset
	}
	in.pos = next
	return next, nil
}

// Close cancels blocked reads, releases the reader window and closes the
// backing file. The owning handle stays open.
func (in *SeekableInput) Close() error {
	in.cancel.fire()

	s := in.session
	s.mu.Lock()
	in.handle.detachInputLocked(in.id)
	s.controller.Release(in.id)
	s.mu.Unlock()

	in.mu.Lock()
	f := in.file
	in.file = nil
	in.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

// awaitPiece tells the controller about the read when escalate is set or the
// piece is missing, then blocks until the piece finishes.
func (in *SeekableInput) awaitPiece(ctx context.Context, idx int, escalate bool) error {
	s := in.session
	if !escalate && s.pieceFinished(idx) {
		return nil
	}
	s.onRead(in.id, in.entry, idx)
	return s.waitPiece(ctx, idx, in.cancel.done)
}

func (in *SeekableInput) readFile(p []byte, off int64) (int, error) {
	in.mu.Lock()
	// Close fires the signal before it takes in.mu, so a file opened past
	// this check is still seen and closed by Close.
	if in.cancelled() {
		in.mu.Unlock()
		return 0, domain.ErrReadCancelled
	}
	if in.file == nil {
		f, err := os.Open(in.entry.AbsPath())
		if err != nil {
			in.mu.Unlock()
			return 0, err
		}
		in.file = f
	}
	f := in.file
	in.mu.Unlock()

	n, err := f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	if err != nil && in.cancelled() {
		return n, domain.ErrReadCancelled
	}
	return n, err
}
