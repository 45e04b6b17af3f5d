package session

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
	"piecestream/internal/services/torrent/engine/taskqueue"
)

const (
	testID       = domain.TorrentID("0123456789abcdef0123456789abcdef01234567")
	testPieceLen = 16
)

// ---------------------------------------------------------------------------
// Fake engine
// ---------------------------------------------------------------------------

type fakeTorrent struct {
	id domain.TorrentID

	mu             sync.Mutex
	deadlines      []map[int]int
	priorities     map[int][]domain.FilePriority
	resumeRequests int
	fileBytes      []int64
}

func (f *fakeTorrent) ID() domain.TorrentID { return f.id }

func (f *fakeTorrent) SetFilePriority(index int, prio domain.FilePriority) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priorities[index] = append(f.priorities[index], prio)
}

func (f *fakeTorrent) SetPieceDeadlines(deadlines map[int]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines = append(f.deadlines, maps.Clone(deadlines))
}

func (f *fakeTorrent) RequestResumeData() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeRequests++
}

func (f *fakeTorrent) FileBytesCompleted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fileBytes...)
}

func (f *fakeTorrent) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deadlines)
}

func (f *fakeTorrent) lastDeadlines() map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deadlines) == 0 {
		return nil
	}
	return f.deadlines[len(f.deadlines)-1]
}

func (f *fakeTorrent) priorityHistory(index int) []domain.FilePriority {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FilePriority(nil), f.priorities[index]...)
}

type fakeEngine struct {
	mu        sync.Mutex
	addErr    error
	adds      []ports.AddRequest
	torrents  map[domain.TorrentID]*fakeTorrent
	listeners map[domain.TorrentID]ports.EventListener
	removed   []domain.TorrentID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		torrents:  make(map[domain.TorrentID]*fakeTorrent),
		listeners: make(map[domain.TorrentID]ports.EventListener),
	}
}

func (e *fakeEngine) Add(req ports.AddRequest) (ports.NativeTorrent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.addErr != nil {
		return nil, e.addErr
	}
	e.adds = append(e.adds, req)
	t := &fakeTorrent{id: req.ID, priorities: make(map[int][]domain.FilePriority)}
	e.torrents[req.ID] = t
	return t, nil
}

func (e *fakeEngine) Torrent(id domain.TorrentID) (ports.NativeTorrent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.torrents[id]
	return t, ok
}

func (e *fakeEngine) Listen(id domain.TorrentID, l ports.EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[id] = l
}

func (e *fakeEngine) Unlisten(id domain.TorrentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, id)
}

func (e *fakeEngine) Remove(id domain.TorrentID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.torrents, id)
	e.removed = append(e.removed, id)
	return nil
}

func (e *fakeEngine) torrent(id domain.TorrentID) *fakeTorrent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.torrents[id]
}

func (e *fakeEngine) listening(id domain.TorrentID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.listeners[id]
	return ok
}

func (e *fakeEngine) wasRemoved(id domain.TorrentID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.removed {
		if r == id {
			return true
		}
	}
	return false
}

// runEngine drains q on its own goroutine until the test ends.
func runEngine(t *testing.T, q *taskqueue.Queue, h ports.EngineHandle) {
	t.Helper()
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-q.Wake():
				q.DrainAndRun(h)
			case <-stop:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-stopped
		q.Close()
	})
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t       *testing.T
	engine  *fakeEngine
	queue   *taskqueue.Queue
	clock   *testClock
	session *Session
	info    domain.TorrentInfo
	content []byte
	dir     string
}

// harnessOption runs before the session starts.
type harnessOption func(h *harness, c *Config)

func withWindow(n int) harnessOption {
	return func(_ *harness, c *Config) { c.WindowSize = n }
}

func withID(id domain.TorrentID) harnessOption {
	return func(_ *harness, c *Config) { c.ID = id }
}

func withAddError(err error) harnessOption {
	return func(h *harness, _ *Config) { h.engine.addErr = err }
}

// testInfo lays out files of the given lengths back to back.
func testInfo(lengths ...int64) domain.TorrentInfo {
	info := domain.TorrentInfo{Name: "movie", PieceLength: testPieceLen}
	var off int64
	for i, l := range lengths {
		info.Files = append(info.Files, domain.TorrentFileInfo{
			Index:  i,
			Path:   "movie/part" + string(rune('a'+i)) + ".bin",
			Offset: off,
			Length: l,
		})
		off += l
	}
	info.TotalLength = off
	info.NumPieces = int((off + testPieceLen - 1) / testPieceLen)
	info.LastPieceLength = off - int64(info.NumPieces-1)*testPieceLen
	return info
}

func testContent(n int64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// newHarness starts a session over files already present on disk. Metadata
// is not delivered; call receiveMetadata.
func newHarness(t *testing.T, info domain.TorrentInfo, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		engine:  newFakeEngine(),
		queue:   taskqueue.New(taskqueue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		clock:   newTestClock(),
		info:    info,
		content: testContent(info.TotalLength),
		dir:     filepath.Join(t.TempDir(), "pieces", string(testID)),
	}
	runEngine(t, h.queue, h.engine)

	for _, f := range info.Files {
		path := filepath.Join(h.dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, h.content[f.Offset:f.Offset+f.Length], 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := Config{
		ID:           testID,
		SaveDir:      h.dir,
		Submitter:    h.queue,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		WindowSize:   4,
		CloseTimeout: 2 * time.Second,
		Now:          h.clock.Now,
	}
	for _, opt := range opts {
		opt(h, &cfg)
	}
	h.session = New(cfg)
	t.Cleanup(func() { _ = h.session.Close(context.Background()) })

	if err := h.session.Start(ports.AddRequest{Source: domain.TorrentSource{Magnet: "magnet:?xt=urn:btih:" + string(testID)}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

func (h *harness) receiveMetadata() {
	h.t.Helper()
	eventually(h.t, "engine listener", func() bool { return h.engine.listening(h.session.ID()) })
	h.session.HandleEvent(domain.NewTorrentAdded(h.session.ID()))
	h.session.HandleEvent(domain.NewMetadataReceived(h.session.ID(), h.info))
}

func (h *harness) native() *fakeTorrent {
	h.t.Helper()
	nt := h.engine.torrent(h.session.ID())
	if nt == nil {
		h.t.Fatal("torrent not added to engine")
	}
	return nt
}

func (h *harness) finish(pieces ...int) {
	for _, p := range pieces {
		h.session.HandleEvent(domain.NewPieceFinished(h.session.ID(), p))
	}
}

func (h *harness) entry(i int) *FileEntry {
	h.t.Helper()
	entries, err := h.session.Entries(context.Background())
	if err != nil {
		h.t.Fatalf("Entries: %v", err)
	}
	return entries[i]
}

func (h *harness) open(i int) *FileHandle {
	h.t.Helper()
	fh, err := h.entry(i).OpenHandle()
	if err != nil {
		h.t.Fatalf("OpenHandle: %v", err)
	}
	return fh
}

func (h *harness) input(fh *FileHandle) *SeekableInput {
	h.t.Helper()
	in, err := fh.NewInput()
	if err != nil {
		h.t.Fatalf("NewInput: %v", err)
	}
	return in
}

func (h *harness) pieceState(i int) domain.PieceState {
	h.session.mu.RLock()
	defer h.session.mu.RUnlock()
	return h.session.pieces[i].State
}

type readResult struct {
	n    int
	data []byte
	err  error
}

// readAtAsync runs ReadAt on its own goroutine.
func readAtAsync(in *SeekableInput, off int64, n int) <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		buf := make([]byte, n)
		got, err := in.ReadAt(buf, off)
		out <- readResult{n: got, data: buf[:got], err: err}
	}()
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func awaitResult(t *testing.T, ch <-chan readResult) readResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("read did not return")
		return readResult{}
	}
}

func assertBlocked(t *testing.T, ch <-chan readResult) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("read returned early: n=%d err=%v", r.n, r.err)
	case <-time.After(20 * time.Millisecond):
	}
}
