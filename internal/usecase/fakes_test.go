package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Downloader and session fakes
// ---------------------------------------------------------------------------

type fakeDownloader struct {
	mu       sync.Mutex
	sessions map[domain.TorrentID]*fakeSession
	starts   []domain.TorrentSource
	startErr error
	// next is returned by StartDownload when set; otherwise a session is
	// derived from the source.
	next *fakeSession
}

func newFakeDownloader(sessions ...*fakeSession) *fakeDownloader {
	d := &fakeDownloader{sessions: make(map[domain.TorrentID]*fakeSession)}
	for _, s := range sessions {
		d.sessions[s.id] = s
	}
	return d
}

func (d *fakeDownloader) StartDownload(ctx context.Context, src domain.TorrentSource, saveDir string) (ports.TorrentSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts = append(d.starts, src)
	if d.startErr != nil {
		return nil, d.startErr
	}
	s := d.next
	if s == nil {
		id := domain.TorrentID(strings.TrimPrefix(src.Magnet, "magnet:?xt=urn:btih:"))
		s = newFakeSession(id, 10)
	}
	if saveDir != "" {
		s.saveDir = saveDir
	}
	d.sessions[s.id] = s
	return s, nil
}

func (d *fakeDownloader) Get(id domain.TorrentID) (ports.TorrentSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	if !ok || s.Lifecycle() == domain.LifecycleClosed {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (d *fakeDownloader) List() []ports.TorrentSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ports.TorrentSession
	for _, s := range d.sessions {
		if s.Lifecycle() != domain.LifecycleClosed {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b ports.TorrentSession) int { return strings.Compare(string(a.ID()), string(b.ID())) })
	return out
}

func (d *fakeDownloader) Close(ctx context.Context) error { return nil }

func (d *fakeDownloader) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.starts)
}

type fakeSession struct {
	id      domain.TorrentID
	saveDir string
	entries []*fakeEntry

	mu              sync.Mutex
	state           domain.SessionState
	closed          int
	closedAndDelete int
	closeErr        error
}

func newFakeSession(id domain.TorrentID, lengths ...int64) *fakeSession {
	s := &fakeSession{id: id, saveDir: "/data/pieces/" + string(id)}
	s.state = domain.SessionState{ID: id, Name: "movie", Lifecycle: domain.LifecycleDownloading, Status: domain.TorrentActive}
	for i, l := range lengths {
		s.entries = append(s.entries, &fakeEntry{session: s, index: i, path: "movie/file" + string(rune('a'+i)), length: l})
		s.state.Files = append(s.state.Files, domain.FileRef{Index: i, Path: s.entries[i].path, Length: l})
		s.state.Stats.TotalSize += l
	}
	return s
}

func (s *fakeSession) ID() domain.TorrentID { return s.id }
func (s *fakeSession) SaveDir() string      { return s.saveDir }

func (s *fakeSession) Lifecycle() domain.SessionLifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Lifecycle
}

func (s *fakeSession) Info() (domain.TorrentInfo, bool) { return domain.TorrentInfo{Name: "movie"}, true }

func (s *fakeSession) GetFiles(ctx context.Context) ([]ports.FileEntry, error) {
	out := make([]ports.FileEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e
	}
	return out, nil
}

func (s *fakeSession) OverallStats() domain.OverallStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Stats
}

func (s *fakeSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Files = slices.Clone(s.state.Files)
	return st
}

func (s *fakeSession) setProgress(file int, done int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := done - s.state.Files[file].BytesCompleted
	s.state.Files[file].BytesCompleted = done
	s.state.Stats.DownloadedBytes += delta
}

func (s *fakeSession) SaveResumeData() {}

func (s *fakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	s.state.Lifecycle = domain.LifecycleClosed
	s.state.Status = domain.TorrentStopped
	return s.closeErr
}

func (s *fakeSession) CloseAndDelete(ctx context.Context) error {
	s.mu.Lock()
	s.closedAndDelete++
	s.mu.Unlock()
	return s.Close(ctx)
}

func (s *fakeSession) closeCounts() (closed, deleted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closedAndDelete
}

type fakeEntry struct {
	session *fakeSession
	index   int
	path    string
	length  int64

	mu      sync.Mutex
	handles []*fakeHandle
	openErr error
}

func (e *fakeEntry) Index() int              { return e.index }
func (e *fakeEntry) RelativePath() string    { return e.path }
func (e *fakeEntry) Length() int64           { return e.length }
func (e *fakeEntry) Stats() domain.FileStats { return domain.FileStats{} }

func (e *fakeEntry) Open() (ports.FileHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	h := &fakeHandle{}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *fakeEntry) opened() []*fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.handles)
}

type fakeHandle struct {
	mu     sync.Mutex
	votes  []domain.FilePriority
	inputs []*fakeInput
	closed bool
}

func (h *fakeHandle) Resume(prio domain.FilePriority) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.votes = append(h.votes, prio)
	return nil
}

func (h *fakeHandle) Pause() error { return nil }

func (h *fakeHandle) CreateInput() (ports.TorrentInput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, domain.ErrHandleClosed
	}
	in := &fakeInput{Reader: strings.NewReader("0123456789")}
	h.inputs = append(h.inputs, in)
	return in, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) CloseAndDelete() error { return h.Close() }

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeInput struct {
	*strings.Reader
	mu     sync.Mutex
	ctx    context.Context
	closed bool
}

func (in *fakeInput) Size() int64 { return in.Reader.Size() }

func (in *fakeInput) SetContext(ctx context.Context) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ctx = ctx
}

func (in *fakeInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

// ---------------------------------------------------------------------------
// Repository fake
// ---------------------------------------------------------------------------

type fakeRepo struct {
	mu        sync.Mutex
	records   map[domain.TorrentID]domain.TorrentRecord
	created   []domain.TorrentRecord
	updated   []domain.TorrentRecord
	deleted   []domain.TorrentID
	createErr error
	getErr    error
	listErr   error
}

func newFakeRepo(records ...domain.TorrentRecord) *fakeRepo {
	r := &fakeRepo{records: make(map[domain.TorrentID]domain.TorrentRecord)}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *fakeRepo) Create(ctx context.Context, t domain.TorrentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.records[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.records[t.ID] = t
	r.created = append(r.created, t)
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, t domain.TorrentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[t.ID]; !ok {
		return domain.ErrNotFound
	}
	r.records[t.ID] = t
	r.updated = append(r.updated, t)
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.TorrentRecord{}, r.getErr
	}
	rec, ok := r.records[id]
	if !ok {
		return domain.TorrentRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepo) List(ctx context.Context, filter domain.TorrentFilter) ([]domain.TorrentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.TorrentRecord
	for _, rec := range r.records {
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.TorrentRecord) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (r *fakeRepo) GetMany(ctx context.Context, ids []domain.TorrentID) ([]domain.TorrentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TorrentRecord
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id domain.TorrentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) record(id domain.TorrentID) (domain.TorrentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

var errBoom = errors.New("boom")
