// Package session keeps the local view of one torrent: the piece table, the
// logical files, the handles and readers on them, and the deadline scheduler
// that turns reads into engine priorities. Every native call leaves through
// the engine task queue; engine events come back through HandleEvent on the
// engine goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
	"piecestream/internal/metrics"
)

const (
	DefaultStatsStaleAfter = 5 * time.Second
	DefaultResumeInterval  = 60 * time.Second
	DefaultCloseTimeout    = 7500 * time.Millisecond
)

type Config struct {
	ID        domain.TorrentID
	SaveDir   string
	Submitter ports.TaskSubmitter
	Logger    *slog.Logger
	// WindowSize is the number of pieces prioritised ahead of each reader.
	WindowSize int
	// StatsStaleAfter zeroes transfer rates when no stats arrived for that
	// long.
	StatsStaleAfter time.Duration
	ResumeInterval  time.Duration
	// CloseTimeout bounds how long Close waits for the engine to drop the
	// torrent.
	CloseTimeout time.Duration
	Now          func() time.Time
	// OnClose runs once when the session closed and its engine cleanup is
	// queued, before Close waits for that cleanup.
	OnClose func(*Session)
}

type Session struct {
	id             domain.TorrentID
	saveDir        string
	submitter      ports.TaskSubmitter
	logger         *slog.Logger
	now            func() time.Time
	onClose        func(*Session)
	staleAfter     time.Duration
	resumeInterval time.Duration
	closeTimeout   time.Duration
	startedAt      time.Time

	nextID atomic.Uint64

	mu              sync.RWMutex
	lifecycle       domain.SessionLifecycle
	info            *domain.TorrentInfo
	pieceLength     int64
	pieces          []Piece
	entries         []*FileEntry
	waiters         map[int][]chan struct{}
	finishedBytes   int64
	finished        bool
	stats           domain.StatsUpdate
	hasStats        bool
	deleteRequested bool
	startErr        error
	controller      *DownloadController

	ready       chan struct{}
	failed      chan struct{}
	failOnce    sync.Once
	closed      chan struct{}
	released    chan struct{}
	cleanupDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	diskMu  sync.Mutex
	deleted bool
}

func New(cfg Config) *Session {
	s := &Session{
		id:             cfg.ID,
		saveDir:        cfg.SaveDir,
		submitter:      cfg.Submitter,
		logger:         cfg.Logger,
		now:            cfg.Now,
		onClose:        cfg.OnClose,
		staleAfter:     cfg.StatsStaleAfter,
		resumeInterval: cfg.ResumeInterval,
		closeTimeout:   cfg.CloseTimeout,
		lifecycle:      domain.LifecycleStarting,
		waiters:        make(map[int][]chan struct{}),
		ready:          make(chan struct{}),
		failed:         make(chan struct{}),
		closed:         make(chan struct{}),
		released:       make(chan struct{}),
		cleanupDone:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.staleAfter <= 0 {
		s.staleAfter = DefaultStatsStaleAfter
	}
	if s.resumeInterval <= 0 {
		s.resumeInterval = DefaultResumeInterval
	}
	if s.closeTimeout <= 0 {
		s.closeTimeout = DefaultCloseTimeout
	}
	s.logger = s.logger.With(slog.String("torrentId", string(s.id)))
	s.controller = NewDownloadController(cfg.WindowSize, s.pieceFinishedLocked, s.submitDeadlines)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.startedAt = s.now()
	return s
}

func (s *Session) ID() domain.TorrentID { return s.id }
func (s *Session) SaveDir() string      { return s.saveDir }

func (s *Session) Lifecycle() domain.SessionLifecycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

func (s *Session) Info() (domain.TorrentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return domain.TorrentInfo{}, false
	}
	return *s.info, true
}

// Start submits the native add and begins periodic resume saves.
func (s *Session) Start(req ports.AddRequest) error {
	req.ID = s.id
	req.SaveDir = s.saveDir
	ok := s.submitter.Submit("add torrent", func(h ports.EngineHandle) error {
		if s.isClosed() {
			return nil
		}
		if _, err := h.Add(req); err != nil {
			s.fail(err)
			return err
		}
		h.Listen(s.id, s)
		return nil
	})
	if !ok {
		return fmt.Errorf("%w: engine is not running", domain.ErrEngineTaskFailure)
	}
	go s.resumeLoop()
	return nil
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.startErr = err
		s.mu.Unlock()
		close(s.failed)
	})
}

// AwaitMetadata blocks until the info dictionary is known. It fails when the
// native add failed, the session closed or ctx ended.
func (s *Session) AwaitMetadata(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}
	select {
	case <-s.ready:
		return nil
	case <-s.failed:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.startErr
	case <-s.closed:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) GetFiles(ctx context.Context) ([]ports.FileEntry, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ports.FileEntry, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out, nil
}

// Entries waits for metadata and returns the file entries in torrent order.
func (s *Session) Entries(ctx context.Context) ([]*FileEntry, error) {
	if err := s.AwaitMetadata(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*FileEntry(nil), s.entries...), nil
}

func (s *Session) OpenHandles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openHandlesLocked()
}

func (s *Session) openHandlesLocked() int {
	n := 0
	for _, e := range s.entries {
		n += len(e.handles)
	}
	return n
}

func (s *Session) OverallStats() domain.OverallStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out domain.OverallStats
	if s.info != nil {
		out.TotalSize = s.info.TotalLength
	}
	out.DownloadedBytes = min(s.finishedBytes, max(out.TotalSize, 0))
	out.Progress = domain.Ratio(out.DownloadedBytes, out.TotalSize)
	out.IsFinished = s.finished || (out.TotalSize > 0 && out.DownloadedBytes >= out.TotalSize)
	if s.hasStats {
		out.UploadedBytes = s.stats.UploadedBytes
		out.UpdatedAt = s.stats.At
		if s.now().Sub(s.stats.At) <= s.staleAfter {
			out.DownloadRate = s.stats.DownloadRate
			out.UploadRate = s.stats.UploadRate
		}
	}
	return out
}

// State is the read model served to API clients.
func (s *Session) State() domain.SessionState {
	stats := s.OverallStats()
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := domain.SessionState{
		ID:        s.id,
		Lifecycle: s.lifecycle,
		Status:    s.lifecycle.ToStatus(stats.IsFinished),
		Stats:     stats,
		NumPieces: len(s.pieces),
	}
	if s.info != nil {
		state.Name = s.info.Name
	}
	for _, e := range s.entries {
		done := min(e.downloadedBytes, e.length)
		if e.finishedOverride {
			done = e.length
		}
		state.Files = append(state.Files, domain.FileRef{
			Index:          e.index,
			Path:           e.relativePath,
			Length:         e.length,
			BytesCompleted: done,
		})
	}
	return state
}

// ---------------------------------------------------------------------------
// Engine events
// ---------------------------------------------------------------------------

// HandleEvent applies one engine event. Called on the engine goroutine only.
func (s *Session) HandleEvent(ev domain.EngineEvent) {
	if s.isClosed() {
		return
	}
	switch ev := ev.(type) {
	case domain.TorrentAdded:
		s.advance(domain.LifecycleFetchingMetadata)
	case domain.TorrentResumed:
		s.advance(domain.LifecycleFetchingMetadata)
	case domain.MetadataReceived:
		s.onMetadata(ev.Info)
	case domain.PieceDownloadingEvent:
		s.onPieceDownloading(ev.Piece)
	case domain.PieceFinishedEvent:
		s.onPieceFinished(ev.Piece)
	case domain.PieceHashFailed:
		s.onPieceHashFailed(ev.Piece)
	case domain.FileCompleted:
		s.onFileCompleted(ev.File)
	case domain.TorrentFinished:
		s.onTorrentFinished(ev.FileBytesCompleted)
	case domain.StatsUpdate:
		s.mu.Lock()
		s.stats = ev
		s.hasStats = true
		s.mu.Unlock()
	case domain.ResumeDataSaved:
		go s.writeResume(ev.Data)
	case domain.TorrentRemoved:
		s.logger.Debug("torrent removed by engine")
	default:
		s.logger.Warn("unknown engine event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (s *Session) advance(to domain.SessionLifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionLocked(to)
}

func (s *Session) transitionLocked(to domain.SessionLifecycle) bool {
	from := s.lifecycle
	if from == to {
		return false
	}
	if !domain.CanTransitionLifecycle(from, to) {
		s.logger.Debug("ignored lifecycle transition",
			slog.String("error", fmt.Sprintf("%v: %s -> %s", domain.ErrInvalidTransition, from, to)),
		)
		return false
	}
	s.lifecycle = to
	return true
}

func (s *Session) onMetadata(info domain.TorrentInfo) {
	s.mu.Lock()
	if s.info != nil {
		s.mu.Unlock()
		s.logger.Debug("duplicate metadata ignored")
		return
	}
	s.info = &info
	s.pieceLength = info.PieceLength
	s.pieces = buildPieces(info)
	s.entries = buildEntries(s, info, s.pieces)
	s.transitionLocked(domain.LifecycleDownloading)
	s.mu.Unlock()

	close(s.ready)
	metrics.MetadataFetchDuration.Observe(s.now().Sub(s.startedAt).Seconds())
	s.logger.Info("metadata received",
		slog.String("name", info.Name),
		slog.Int("pieces", info.NumPieces),
		slog.Int("files", len(info.Files)),
		slog.Int64("totalBytes", info.TotalLength),
	)
	// Persist the metainfo right away so a restart skips the metadata exchange.
	s.SaveResumeData()
}

func (s *Session) onPieceDownloading(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.pieces) {
		return
	}
	p := &s.pieces[idx]
	if p.State == domain.PieceNotAvailable || p.State == domain.PieceReady {
		p.State = domain.PieceDownloading
	}
}

func (s *Session) onPieceFinished(idx int) {
	s.mu.Lock()
	if idx < 0 || idx >= len(s.pieces) || s.pieces[idx].State == domain.PieceFinished {
		s.mu.Unlock()
		return
	}
	p := &s.pieces[idx]
	p.State = domain.PieceFinished
	s.finishedBytes += p.Length
	for _, e := range s.entriesContainingLocked(idx) {
		e.downloadedBytes += p.Length
	}
	waiters := s.waiters[idx]
	delete(s.waiters, idx)
	s.mu.Unlock()

	metrics.PieceEventsTotal.WithLabelValues("finished").Inc()
	for _, ch := range waiters {
		close(ch)
	}
}

func (s *Session) onPieceHashFailed(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.pieces) {
		return
	}
	p := &s.pieces[idx]
	if !domain.CanAdvance(p.State, domain.PieceFailed) {
		return
	}
	p.State = domain.PieceFailed
	metrics.PieceEventsTotal.WithLabelValues("hash_failed").Inc()
	s.logger.Warn("piece hash check failed",
		slog.Int("piece", idx),
		slog.String("error", domain.ErrPieceVerificationFailed.Error()),
	)
	p.State = domain.PieceNotAvailable
	s.controller.Resubmit()
}

func (s *Session) onFileCompleted(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.index == idx {
			e.finishedOverride = true
			return
		}
	}
}

func (s *Session) onTorrentFinished(fileBytes []int64) {
	s.mu.Lock()
	s.finished = true
	for i, e := range s.entries {
		if i < len(fileBytes) && fileBytes[i] == e.length {
			e.finishedOverride = true
		}
	}
	s.mu.Unlock()

	s.logger.Info("torrent finished")
	s.SaveResumeData()
}

// entriesContainingLocked returns the entries whose piece range holds idx.
func (s *Session) entriesContainingLocked(idx int) []*FileEntry {
	first := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].pieceEnd > idx
	})
	var out []*FileEntry
	for _, e := range s.entries[first:] {
		if e.pieceStart > idx {
			break
		}
		if e.pieceStart < e.pieceEnd {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Piece waits
// ---------------------------------------------------------------------------

func (s *Session) pieceFinished(idx int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pieceFinishedLocked(idx)
}

func (s *Session) pieceFinishedLocked(idx int) bool {
	return idx >= 0 && idx < len(s.pieces) && s.pieces[idx].State == domain.PieceFinished
}

// contiguousFinished counts the bytes from absolute offset off, up to want,
// that sit in a run of finished pieces.
func (s *Session) contiguousFinished(off, want int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pieceLength <= 0 {
		return 0
	}
	var end int64
	for idx := int(off / s.pieceLength); idx < len(s.pieces); idx++ {
		p := s.pieces[idx]
		if p.State != domain.PieceFinished {
			break
		}
		end = p.End()
		if end-off >= want {
			return want
		}
	}
	return max(end-off, 0)
}

func (s *Session) onRead(reader uint64, e *FileEntry, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == domain.LifecycleClosed {
		return
	}
	if s.controller.OnRead(reader, e.pieceStart, e.pieceEnd, idx) {
		s.logger.Debug("reader seek", slog.Uint64("reader", reader), slog.Int("piece", idx))
	}
}

// waitPiece blocks until piece idx finishes. Only the waiters of idx are
// woken on completion.
func (s *Session) waitPiece(ctx context.Context, idx int, cancel <-chan struct{}) error {
	s.mu.Lock()
	if s.pieceFinishedLocked(idx) {
		s.mu.Unlock()
		return nil
	}
	if s.lifecycle == domain.LifecycleClosed {
		s.mu.Unlock()
		return domain.ErrReadCancelled
	}
	ch := make(chan struct{})
	s.waiters[idx] = append(s.waiters[idx], ch)
	s.mu.Unlock()

	metrics.BlockedReaders.Inc()
	defer metrics.BlockedReaders.Dec()

	select {
	case <-ch:
		if s.pieceFinished(idx) {
			metrics.ReaderWakeupsTotal.WithLabelValues("finished").Inc()
			return nil
		}
		metrics.ReaderWakeupsTotal.WithLabelValues("cancelled").Inc()
		return domain.ErrReadCancelled
	case <-cancel:
		s.removeWaiter(idx, ch)
		metrics.ReaderWakeupsTotal.WithLabelValues("cancelled").Inc()
		return domain.ErrReadCancelled
	case <-ctx.Done():
		s.removeWaiter(idx, ch)
		metrics.ReaderWakeupsTotal.WithLabelValues("context").Inc()
		return fmt.Errorf("%w: %w", domain.ErrReadCancelled, ctx.Err())
	}
}

func (s *Session) removeWaiter(idx int, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[idx]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.waiters, idx)
		return
	}
	s.waiters[idx] = list
}

func (s *Session) waitingOn(idx int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.waiters[idx])
}

// ---------------------------------------------------------------------------
// Engine submissions
// ---------------------------------------------------------------------------

func (s *Session) submitDeadlines(deadlines map[int]int) {
	s.submitter.Submit("set piece deadlines", func(h ports.EngineHandle) error {
		t, ok := h.Torrent(s.id)
		if !ok {
			return nil
		}
		t.SetPieceDeadlines(deadlines)
		s.markRequested(deadlines)
		return nil
	})
}

// markRequested moves requested pieces out of NotAvailable. Runs on the
// engine goroutine.
func (s *Session) markRequested(deadlines map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range deadlines {
		if idx >= 0 && idx < len(s.pieces) && s.pieces[idx].State == domain.PieceNotAvailable {
			s.pieces[idx].State = domain.PieceReady
		}
	}
}

func (s *Session) submitFilePriority(index int, prio domain.FilePriority) {
	s.logger.Info("set file priority", slog.Int("file", index), slog.String("priority", prio.String()))
	s.submitter.Submit("set file priority", func(h ports.EngineHandle) error {
		t, ok := h.Torrent(s.id)
		if !ok {
			return nil
		}
		t.SetFilePriority(index, prio)
		return nil
	})
}

// SaveResumeData asks the engine for a fresh resume snapshot.
func (s *Session) SaveResumeData() {
	if s.isClosed() {
		return
	}
	s.submitter.Submit("request resume data", func(h ports.EngineHandle) error {
		t, ok := h.Torrent(s.id)
		if !ok {
			return nil
		}
		t.RequestResumeData()
		return nil
	})
}

func (s *Session) resumeLoop() {
	ticker := time.NewTicker(s.resumeInterval)
	defer ticker.Stop()

	lastUploaded, lastDownloaded := int64(-1), int64(-1)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			ready := s.info != nil
			uploaded, downloaded := s.stats.UploadedBytes, s.finishedBytes
			s.mu.RUnlock()
			if !ready || (uploaded == lastUploaded && downloaded == lastDownloaded) {
				continue
			}
			lastUploaded, lastDownloaded = uploaded, downloaded
			s.SaveResumeData()
		}
	}
}

func (s *Session) writeResume(metainfo []byte) {
	s.diskMu.Lock()
	defer s.diskMu.Unlock()
	if s.deleted {
		return
	}
	name := ""
	if info, ok := s.Info(); ok {
		name = info.Name
	}
	rd := ResumeData{
		Version:  resumeVersion,
		InfoHash: string(s.id),
		Name:     name,
		Metainfo: metainfo,
		SavedAt:  s.now().Unix(),
	}
	if err := WriteResumeData(s.saveDir, rd); err != nil {
		metrics.ResumeDataTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("resume data save failed", slog.String("error", err.Error()))
		return
	}
	metrics.ResumeDataTotal.WithLabelValues("saved").Inc()
	s.logger.Debug("resume data saved")
}

// ---------------------------------------------------------------------------
// Close and delete
// ---------------------------------------------------------------------------

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Released is closed once the engine cleanup of a closed session is queued.
// A new session for the same torrent may start from then on.
func (s *Session) Released() <-chan struct{} { return s.released }

// Close stops the download and drops the torrent from the engine. Every
// open handle is force-closed and blocked reads fail with ErrReadCancelled.
// Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.lifecycle == domain.LifecycleClosed {
		s.mu.Unlock()
		return nil
	}
	s.lifecycle = domain.LifecycleClosed
	close(s.closed)
	waiters := s.waiters
	s.waiters = make(map[int][]chan struct{})
	inputs := s.forceCloseHandlesLocked()
	s.controller.Reset()
	deleteAfter := s.deleteRequested
	s.mu.Unlock()

	for _, c := range inputs {
		c.fire()
	}
	for _, list := range waiters {
		for _, ch := range list {
			close(ch)
		}
	}
	s.cancel()

	submitted := s.submitter.Submit("close torrent", func(h ports.EngineHandle) error {
		defer close(s.cleanupDone)
		h.Unlisten(s.id)
		return h.Remove(s.id)
	})
	// The queue is FIFO, so a replacement session started from here on adds
	// its torrent after this one was removed.
	close(s.released)
	if s.onClose != nil {
		s.onClose(s)
	}

	var err error
	if submitted {
		timer := time.NewTimer(s.closeTimeout)
		defer timer.Stop()
		select {
		case <-s.cleanupDone:
		case <-timer.C:
			s.logger.Warn("timed out waiting for engine to drop torrent",
				slog.Duration("timeout", s.closeTimeout))
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	s.logger.Info("session closed")
	if deleteAfter {
		if _, delErr := s.DeleteIfNotInUse(); delErr != nil {
			err = errors.Join(err, delErr)
		}
	}
	return err
}

// forceCloseHandlesLocked closes every handle without the closeIfNotInUse
// re-entry and returns the cancel signals of their inputs. Caller holds the
// session lock.
func (s *Session) forceCloseHandlesLocked() []*cancelSignal {
	var inputs []*cancelSignal
	handles := 0
	for _, e := range s.entries {
		for id, h := range e.handles {
			handles++
			h.closed = true
			h.desired = nil
			for _, c := range h.inputs {
				inputs = append(inputs, c)
			}
			h.inputs = nil
			delete(e.handles, id)
		}
	}
	if handles > 0 {
		s.logger.Debug("handles force-closed", slog.Int("handles", handles), slog.Int("inputs", len(inputs)))
	}
	return inputs
}

// CloseAndDelete closes the session and removes its save directory as soon
// as no handle is open.
func (s *Session) CloseAndDelete(ctx context.Context) error {
	s.mu.Lock()
	s.deleteRequested = true
	s.mu.Unlock()
	if err := s.Close(ctx); err != nil {
		return err
	}
	_, err := s.DeleteIfNotInUse()
	return err
}

// closeIfNotInUse closes the session after its last handle went away, and
// completes a pending delete.
func (s *Session) closeIfNotInUse() {
	s.mu.RLock()
	open := s.openHandlesLocked()
	closed := s.lifecycle == domain.LifecycleClosed
	deleteRequested := s.deleteRequested
	s.mu.RUnlock()
	if open > 0 {
		return
	}
	if !closed {
		if err := s.Close(context.Background()); err != nil {
			s.logger.Warn("close after last handle failed", slog.String("error", err.Error()))
		}
		return
	}
	if deleteRequested {
		if _, err := s.DeleteIfNotInUse(); err != nil {
			s.logger.Warn("delete after last handle failed", slog.String("error", err.Error()))
		}
	}
}

// DeleteIfNotInUse removes the save directory when the session is closed and
// no handle is open. Otherwise it does nothing and reports false.
func (s *Session) DeleteIfNotInUse() (bool, error) {
	s.mu.RLock()
	inUse := s.lifecycle != domain.LifecycleClosed || s.openHandlesLocked() > 0
	s.mu.RUnlock()
	if inUse {
		return false, nil
	}

	s.diskMu.Lock()
	defer s.diskMu.Unlock()
	if s.deleted {
		return true, nil
	}
	if err := os.RemoveAll(s.saveDir); err != nil {
		return false, err
	}
	s.deleted = true
	s.logger.Info("save directory deleted", slog.String("dir", s.saveDir))
	return true, nil
}
