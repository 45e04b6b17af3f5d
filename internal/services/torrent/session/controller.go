package session

import (
	"maps"

	"piecestream/internal/metrics"
)

const DefaultWindowSize = 32

type pieceWindow struct {
	start, end int // [start, end), clipped to the file range
	lo, hi     int // piece range of the reader's file
}

func (w pieceWindow) contains(piece int) bool {
	return piece >= w.start && piece < w.end
}

// DownloadController turns reader positions into piece deadlines. Each reader
// owns a window of pieces starting at its most recent read; the engine gets
// the union of all windows with the most urgent deadline per piece.
//
// A controller is owned by one session and guarded by the session lock.
type DownloadController struct {
	windowSize int
	finished   func(piece int) bool
	submit     func(deadlines map[int]int)
	windows    map[uint64]pieceWindow
	last       map[int]int
}

func NewDownloadController(windowSize int, finished func(int) bool, submit func(map[int]int)) *DownloadController {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &DownloadController{
		windowSize: windowSize,
		finished:   finished,
		submit:     submit,
		windows:    make(map[uint64]pieceWindow),
	}
}

// OnRead records that reader wants piece, where [lo, hi) is the piece range
// of the file it reads. A piece outside the current window replaces it (a
// seek); a piece ahead inside the window slides it. Reports whether the read
// was a seek.
func (c *DownloadController) OnRead(reader uint64, lo, hi, piece int) bool {
	if hi <= lo {
		return false
	}
	piece = min(max(piece, lo), hi-1)

	w, ok := c.windows[reader]
	seek := !ok || !w.contains(piece)
	switch {
	case seek:
		w = pieceWindow{lo: lo, hi: hi}
		w.start = piece
	case piece > w.start:
		w.start = piece
	default:
		c.refresh(false)
		return false
	}
	w.end = min(w.start+c.windowSize, w.hi)
	c.windows[reader] = w
	c.refresh(false)
	return seek
}

// IsDownloading reports whether piece is inside reader's window.
func (c *DownloadController) IsDownloading(reader uint64, piece int) bool {
	w, ok := c.windows[reader]
	return ok && w.contains(piece)
}

// Release drops the reader's window; its pieces lose their deadlines unless
// another reader still covers them.
func (c *DownloadController) Release(reader uint64) {
	if _, ok := c.windows[reader]; !ok {
		return
	}
	delete(c.windows, reader)
	c.refresh(false)
}

// Resubmit pushes the current deadline set even when it did not change, for
// pieces that must be requested again after a failed hash check.
func (c *DownloadController) Resubmit() {
	c.refresh(true)
}

// Reset forgets every window without talking to the engine.
func (c *DownloadController) Reset() {
	clear(c.windows)
	c.last = nil
}

func (c *DownloadController) Deadlines() map[int]int {
	out := make(map[int]int)
	for _, w := range c.windows {
		for p := w.start; p < w.end; p++ {
			if c.finished != nil && c.finished(p) {
				continue
			}
			d := p - w.start
			if cur, ok := out[p]; !ok || d < cur {
				out[p] = d
			}
		}
	}
	return out
}

func (c *DownloadController) refresh(force bool) {
	next := c.Deadlines()
	if !force && c.last != nil && maps.Equal(next, c.last) {
		metrics.DeadlineSubmissionsTotal.WithLabelValues("coalesced").Inc()
		return
	}
	if !force && c.last == nil && len(next) == 0 {
		return
	}
	c.last = next
	metrics.DeadlineSubmissionsTotal.WithLabelValues("submitted").Inc()
	if c.submit != nil {
		c.submit(maps.Clone(next))
	}
}
