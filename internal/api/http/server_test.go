package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"piecestream/internal/domain"
	"piecestream/internal/usecase"
)

const testID = domain.TorrentID("0123456789abcdef0123456789abcdef01234567")

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStart struct {
	mu     sync.Mutex
	inputs []usecase.StartDownloadInput
	record domain.TorrentRecord
	err    error
	ctxErr bool
}

func (f *fakeStart) Execute(ctx context.Context, input usecase.StartDownloadInput) (domain.TorrentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if _, ok := ctx.Deadline(); !ok {
		f.ctxErr = true
	}
	if f.err != nil {
		return domain.TorrentRecord{}, f.err
	}
	return f.record, nil
}

type fakeStop struct {
	record domain.TorrentRecord
	err    error
	ids    []domain.TorrentID
}

func (f *fakeStop) Execute(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error) {
	f.ids = append(f.ids, id)
	return f.record, f.err
}

type fakeDelete struct {
	err   error
	calls []string
}

func (f *fakeDelete) Execute(ctx context.Context, id domain.TorrentID, deleteFiles bool) error {
	f.calls = append(f.calls, fmt.Sprintf("%s:%t", id, deleteFiles))
	return f.err
}

type fakeState struct {
	states map[domain.TorrentID]domain.SessionState
}

func (f fakeState) Execute(ctx context.Context, id domain.TorrentID) (domain.SessionState, error) {
	st, ok := f.states[id]
	if !ok {
		return domain.SessionState{}, domain.ErrNotFound
	}
	return st, nil
}

type fakeListStates struct {
	states []domain.SessionState
	err    error
}

func (f fakeListStates) Execute(ctx context.Context) ([]domain.SessionState, error) {
	return f.states, f.err
}

type fakeInput struct {
	*bytes.Reader
	mu     sync.Mutex
	ctx    context.Context
	closed bool
}

func newFakeInput(data string) *fakeInput {
	return &fakeInput{Reader: bytes.NewReader([]byte(data))}
}

func (in *fakeInput) SetContext(ctx context.Context) { in.ctx = ctx }

func (in *fakeInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

func (in *fakeInput) isClosed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

type fakeOpenStream struct {
	mu     sync.Mutex
	data   string
	path   string
	err    error
	inputs []*fakeInput
	calls  []string
}

func (f *fakeOpenStream) Execute(ctx context.Context, id domain.TorrentID, fileIndex int) (*usecase.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", id, fileIndex))
	if f.err != nil {
		return nil, f.err
	}
	in := newFakeInput(f.data)
	in.SetContext(ctx)
	f.inputs = append(f.inputs, in)
	return &usecase.Stream{
		Input: in,
		File:  domain.FileRef{Index: fileIndex, Path: f.path, Length: int64(len(f.data))},
	}, nil
}

type fakeRepo struct {
	records map[domain.TorrentID]domain.TorrentRecord
	filters []domain.TorrentFilter
	err     error
}

func newFakeRepo(records ...domain.TorrentRecord) *fakeRepo {
	r := &fakeRepo{records: make(map[domain.TorrentID]domain.TorrentRecord)}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *fakeRepo) Create(ctx context.Context, t domain.TorrentRecord) error { return nil }
func (r *fakeRepo) Update(ctx context.Context, t domain.TorrentRecord) error { return nil }
func (r *fakeRepo) Delete(ctx context.Context, id domain.TorrentID) error    { return nil }

func (r *fakeRepo) Get(ctx context.Context, id domain.TorrentID) (domain.TorrentRecord, error) {
	if r.err != nil {
		return domain.TorrentRecord{}, r.err
	}
	rec, ok := r.records[id]
	if !ok {
		return domain.TorrentRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepo) List(ctx context.Context, filter domain.TorrentFilter) ([]domain.TorrentRecord, error) {
	r.filters = append(r.filters, filter)
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.TorrentRecord
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeRepo) GetMany(ctx context.Context, ids []domain.TorrentID) ([]domain.TorrentRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, start StartDownloadUseCase, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{
		WithLogger(discardLogger()),
		WithMetricsGatherer(prometheus.NewRegistry()),
	}, opts...)
	s := NewServer(start, opts...)
	t.Cleanup(s.Close)
	return s
}

func do(s *Server, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

var jsonHeader = map[string]string{"Content-Type": "application/json"}

// ---------------------------------------------------------------------------
// POST /torrents
// ---------------------------------------------------------------------------

func TestCreateTorrentJSON(t *testing.T) {
	start := &fakeStart{record: domain.TorrentRecord{ID: testID, Name: "movie", Status: domain.TorrentActive}}
	s := newTestServer(t, start)

	body := `{"magnet":" magnet:?xt=urn:btih:` + string(testID) + ` ","name":"Movie"}`
	rec := do(s, http.MethodPost, "/torrents", strings.NewReader(body), jsonHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var got domain.TorrentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != testID {
		t.Fatalf("record = %+v", got)
	}
	in := start.inputs[0]
	if in.Source.Magnet != "magnet:?xt=urn:btih:"+string(testID) || in.Name != "Movie" {
		t.Fatalf("input = %+v", in)
	}
	if start.ctxErr {
		t.Fatal("start ran without a deadline")
	}
}

func TestCreateTorrentInfoHash(t *testing.T) {
	start := &fakeStart{record: domain.TorrentRecord{ID: testID}}
	s := newTestServer(t, start)

	rec := do(s, http.MethodPost, "/torrents", strings.NewReader(`{"infoHash":"`+string(testID)+`"}`), jsonHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if start.inputs[0].Source.Magnet != string(testID) {
		t.Fatalf("source = %+v", start.inputs[0].Source)
	}
}

func TestCreateTorrentMultipart(t *testing.T) {
	start := &fakeStart{record: domain.TorrentRecord{ID: testID}}
	dir := t.TempDir()
	s := newTestServer(t, start, WithUploadDir(dir))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("torrent", "../../movie.torrent")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("d4:infod4:name1:aee"))
	_ = mw.WriteField("name", "Uploaded")
	_ = mw.Close()

	rec := do(s, http.MethodPost, "/torrents", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	in := start.inputs[0]
	if in.Name != "Uploaded" || filepath.Dir(in.Source.Torrent) != dir {
		t.Fatalf("input = %+v", in)
	}
	data, err := os.ReadFile(in.Source.Torrent)
	if err != nil || string(data) != "d4:infod4:name1:aee" {
		t.Fatalf("stored upload = %q, %v", data, err)
	}
}

func TestCreateTorrentErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		header   map[string]string
		startErr error
		status   int
		code     string
	}{
		{"unsupported media", `{}`, map[string]string{"Content-Type": "text/plain"}, nil, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{"invalid json", `{`, jsonHeader, nil, http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"url":"x"}`, jsonHeader, nil, http.StatusBadRequest, "invalid_request"},
		{"magnet and hash", `{"magnet":"m","infoHash":"h"}`, jsonHeader, nil, http.StatusBadRequest, "invalid_request"},
		{"invalid source", `{"magnet":"nope"}`, jsonHeader, domain.ErrInvalidSource, http.StatusBadRequest, "invalid_request"},
		{"metadata timeout", `{"magnet":"m"}`, jsonHeader,
			fmt.Errorf("%w: %w", usecase.ErrEngine, domain.ErrMetadataFetchTimeout), http.StatusGatewayTimeout, "metadata_timeout"},
		{"deadline", `{"magnet":"m"}`, jsonHeader, context.DeadlineExceeded, http.StatusGatewayTimeout, "metadata_timeout"},
		{"repository", `{"magnet":"m"}`, jsonHeader,
			fmt.Errorf("%w: boom", usecase.ErrRepository), http.StatusInternalServerError, "repository_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeStart{err: tt.startErr})
			rec := do(s, http.MethodPost, "/torrents", strings.NewReader(tt.body), tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Catalogue reads
// ---------------------------------------------------------------------------

func TestListTorrents(t *testing.T) {
	repo := newFakeRepo(domain.TorrentRecord{ID: testID, Name: "movie", Status: domain.TorrentActive, TotalBytes: 100, DoneBytes: 25})
	s := newTestServer(t, nil, WithRepository(repo))

	rec := do(s, http.MethodGet, "/torrents?status=active&search=mov&sortBy=name&sortOrder=asc&limit=5000&offset=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var list torrentList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Items[0].Progress != 0.25 {
		t.Fatalf("list = %+v", list)
	}
	f := repo.filters[0]
	if f.Status == nil || *f.Status != domain.TorrentActive || f.Search != "mov" {
		t.Fatalf("filter = %+v", f)
	}
	if f.SortBy != "name" || f.SortOrder != domain.SortAsc || f.Limit != maxListLimit || f.Offset != 2 {
		t.Fatalf("filter = %+v", f)
	}
}

func TestListTorrentsRejectsBadQuery(t *testing.T) {
	s := newTestServer(t, nil, WithRepository(newFakeRepo()))
	for _, q := range []string{"status=bogus", "sortBy=$where", "sortOrder=up", "limit=0", "limit=-1", "offset=x"} {
		rec := do(s, http.MethodGet, "/torrents?"+q, nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rec.Code)
		}
	}
}

func TestGetTorrent(t *testing.T) {
	record := domain.TorrentRecord{ID: testID, Name: "movie", Status: domain.TorrentActive}
	state := domain.SessionState{ID: testID, Name: "movie", Lifecycle: domain.LifecycleDownloading, Status: domain.TorrentActive}
	other := domain.TorrentID("ffffffffffffffffffffffffffffffffffffffff")
	s := newTestServer(t, nil,
		WithRepository(newFakeRepo(record)),
		WithGetTorrentState(fakeState{states: map[domain.TorrentID]domain.SessionState{
			testID: state,
			other:  {ID: other, Name: "fresh", Status: domain.TorrentPending},
		}}),
	)

	rec := do(s, http.MethodGet, "/torrents/"+string(testID), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var detail struct {
		ID    domain.TorrentID     `json:"id"`
		Live  bool                 `json:"live"`
		State *domain.SessionState `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.ID != testID || !detail.Live || detail.State == nil || detail.State.Lifecycle != domain.LifecycleDownloading {
		t.Fatalf("detail = %+v", detail)
	}

	rec = do(s, http.MethodGet, "/torrents/"+string(other), nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"fresh"`) {
		t.Fatalf("uncatalogued live torrent: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(s, http.MethodGet, "/torrents/unknown", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown torrent status = %d", rec.Code)
	}
}

func TestListFiles(t *testing.T) {
	record := domain.TorrentRecord{ID: testID, Status: domain.TorrentStopped, Files: []domain.FileRef{
		{Index: 0, Path: "movie/a.mkv", Length: 100, BytesCompleted: 50},
	}}
	live := domain.TorrentID("ffffffffffffffffffffffffffffffffffffffff")
	s := newTestServer(t, nil,
		WithRepository(newFakeRepo(record)),
		WithGetTorrentState(fakeState{states: map[domain.TorrentID]domain.SessionState{
			live: {ID: live, Files: []domain.FileRef{{Index: 0, Path: "x.mp4", Length: 10, BytesCompleted: 10}, {Index: 1, Path: "y.srt", Length: 4}}},
		}}),
	)

	var list fileListResponse
	rec := do(s, http.MethodGet, "/torrents/"+string(testID)+"/files", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Items[0].Progress != 0.5 {
		t.Fatalf("catalogue files = %+v", list)
	}

	rec = do(s, http.MethodGet, "/torrents/"+string(live)+"/files", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 || list.Items[0].Progress != 1 || list.Items[1].Path != "y.srt" {
		t.Fatalf("live files = %+v", list)
	}

	if rec := do(s, http.MethodGet, "/torrents/missing/files", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing torrent status = %d", rec.Code)
	}
}

func TestListTorrentStates(t *testing.T) {
	s := newTestServer(t, nil, WithListTorrentStates(fakeListStates{}))
	rec := do(s, http.MethodGet, "/torrents/state", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("empty states: %d %s", rec.Code, rec.Body.String())
	}

	s = newTestServer(t, nil, WithListTorrentStates(fakeListStates{states: []domain.SessionState{{ID: testID}}}))
	rec = do(s, http.MethodGet, "/torrents/state", nil, nil)
	if !strings.Contains(rec.Body.String(), string(testID)) {
		t.Fatalf("states: %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

func TestDeleteTorrent(t *testing.T) {
	del := &fakeDelete{}
	s := newTestServer(t, nil, WithDeleteTorrent(del))

	if rec := do(s, http.MethodDelete, "/torrents/"+string(testID)+"?deleteFiles=true", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(s, http.MethodDelete, "/torrents/"+string(testID), nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	want := []string{string(testID) + ":true", string(testID) + ":false"}
	if fmt.Sprint(del.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v", del.calls)
	}
	if rec := do(s, http.MethodDelete, "/torrents/x?deleteFiles=maybe", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad flag status = %d", rec.Code)
	}

	del.err = domain.ErrNotFound
	if rec := do(s, http.MethodDelete, "/torrents/x", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
}

func TestStopTorrent(t *testing.T) {
	stop := &fakeStop{record: domain.TorrentRecord{ID: testID, Status: domain.TorrentStopped}}
	s := newTestServer(t, nil, WithStopTorrent(stop))

	rec := do(s, http.MethodPost, "/torrents/"+string(testID)+"/stop", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"stopped"`) {
		t.Fatalf("stop: %d %s", rec.Code, rec.Body.String())
	}
	if len(stop.ids) != 1 || stop.ids[0] != testID {
		t.Fatalf("ids = %v", stop.ids)
	}
	if rec := do(s, http.MethodGet, "/torrents/"+string(testID)+"/stop", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET stop status = %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestStreamFileFull(t *testing.T) {
	open := &fakeOpenStream{data: "0123456789", path: "movie/a.mkv"}
	s := newTestServer(t, nil, WithOpenStream(open))

	rec := do(s, http.MethodGet, "/torrents/"+string(testID)+"/files/1/stream", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "0123456789" {
		t.Fatalf("full: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/x-matroska" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatal("Accept-Ranges missing")
	}
	if open.calls[0] != string(testID)+":1" {
		t.Fatalf("calls = %v", open.calls)
	}
	if !open.inputs[0].isClosed() {
		t.Fatal("stream input left open")
	}
}

func TestStreamFileRange(t *testing.T) {
	open := &fakeOpenStream{data: "0123456789", path: "a.mp4"}
	s := newTestServer(t, nil, WithOpenStream(open))

	rec := do(s, http.MethodGet, "/torrents/"+string(testID)+"/files/0/stream", nil, map[string]string{"Range": "bytes=5-7"})
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "567" {
		t.Fatalf("range: %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 5-7/10" {
		t.Fatalf("Content-Range = %q", got)
	}

	rec = do(s, http.MethodGet, "/torrents/"+string(testID)+"/files/0/stream", nil, map[string]string{"Range": "bytes=20-"})
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("unsatisfiable range status = %d", rec.Code)
	}
}

func TestStreamFileHead(t *testing.T) {
	open := &fakeOpenStream{data: "0123456789", path: "a.mp4"}
	s := newTestServer(t, nil, WithOpenStream(open))

	rec := do(s, http.MethodHead, "/torrents/"+string(testID)+"/files/0/stream", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("head: %d %d", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Content-Length") != "10" {
		t.Fatalf("Content-Length = %q", rec.Header().Get("Content-Length"))
	}
}

func TestStreamFileErrors(t *testing.T) {
	tests := []struct {
		name   string
		index  string
		err    error
		status int
	}{
		{"non numeric index", "x", nil, http.StatusBadRequest},
		{"negative index", "-1", nil, http.StatusBadRequest},
		{"index out of range", "9", usecase.ErrInvalidFileIndex, http.StatusBadRequest},
		{"unknown torrent", "0", domain.ErrNotFound, http.StatusNotFound},
		{"metadata timeout", "0", fmt.Errorf("%w: %w", usecase.ErrEngine, domain.ErrMetadataFetchTimeout), http.StatusGatewayTimeout},
		{"session closed", "0", fmt.Errorf("%w: %w", usecase.ErrEngine, domain.ErrSessionClosed), http.StatusServiceUnavailable},
		{"engine failure", "0", fmt.Errorf("%w: %w", usecase.ErrEngine, errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, WithOpenStream(&fakeOpenStream{err: tt.err}))
			rec := do(s, http.MethodGet, "/torrents/"+string(testID)+"/files/"+tt.index+"/stream", nil, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Misc
// ---------------------------------------------------------------------------

func TestWriteDomainErrorCancelled(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("%w: %w", usecase.ErrEngine, context.Canceled))
	if rec.Code != statusClientClosed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_scrape_total", Help: "scrape"}))
	s := newTestServer(t, nil, WithMetricsGatherer(reg))

	if rec := do(s, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	rec := do(s, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test_scrape_total") {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnconfiguredUseCases(t *testing.T) {
	s := newTestServer(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/torrents"},
		{http.MethodGet, "/torrents"},
		{http.MethodDelete, "/torrents/x"},
		{http.MethodPost, "/torrents/x/stop"},
		{http.MethodGet, "/torrents/x/files/0/stream"},
		{http.MethodGet, "/torrents/state"},
	} {
		rec := do(s, tc.method, tc.path, strings.NewReader(`{}`), jsonHeader)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: status = %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.MKV":   "video/x-matroska",
		"a.mp4":   "video/mp4",
		"a.flac":  "audio/flac",
		"a.bin99": "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSaveUploadedFileKeepsInsideDir(t *testing.T) {
	dir := t.TempDir()
	path, err := saveUploadedFile(strings.NewReader("x"), "../../etc/passwd", dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "passwd-") {
		t.Fatalf("path = %s", path)
	}
}

func TestRunStateBroadcastStopsWithContext(t *testing.T) {
	s := newTestServer(t, nil, WithListTorrentStates(fakeListStates{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunStateBroadcast(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast loop ignored cancellation")
	}
}
