// Package anacrolix runs the native torrent client behind the engine task
// queue. One goroutine owns the client: it drains submitted tasks, then polls
// every torrent and turns state changes into engine events.
package anacrolix

import (
	"errors"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"golang.org/x/time/rate"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
	"piecestream/internal/metrics"
	"piecestream/internal/services/torrent/engine/taskqueue"
)

var ErrTorrentNotFound = domain.ErrNotFound

const (
	defaultPumpInterval  = 250 * time.Millisecond
	defaultStatsInterval = time.Second
	// defaultMaxConns caps peer connections per torrent.
	defaultMaxConns = 35
)

type Config struct {
	DataDir    string
	ListenPort int
	Logger     *slog.Logger
	// SlowTaskThreshold logs engine tasks running longer than this.
	SlowTaskThreshold time.Duration
	PumpInterval      time.Duration
	StatsInterval     time.Duration
}

type Engine struct {
	client        *torrent.Client
	queue         *taskqueue.Queue
	logger        *slog.Logger
	pumpInterval  time.Duration
	statsInterval time.Duration
	now           func() time.Time

	// Owned by the engine goroutine.
	torrents  map[domain.TorrentID]*tracked
	listeners map[domain.TorrentID]ports.EventListener
	pumpWarn  rate.Sometimes

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.ListenPort > 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}
	clientConfig.Slogger = logger.With(slog.String("component", "anacrolix"))

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	e := newEngine(client, cfg, logger)
	go e.run()
	return e, nil
}

func newEngine(client *torrent.Client, cfg Config, logger *slog.Logger) *Engine {
	e := &Engine{
		client:        client,
		logger:        logger,
		pumpInterval:  cfg.PumpInterval,
		statsInterval: cfg.StatsInterval,
		now:           time.Now,
		torrents:      make(map[domain.TorrentID]*tracked),
		listeners:     make(map[domain.TorrentID]ports.EventListener),
		pumpWarn:      rate.Sometimes{Interval: 10 * time.Second},
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if e.pumpInterval <= 0 {
		e.pumpInterval = defaultPumpInterval
	}
	if e.statsInterval <= 0 {
		e.statsInterval = defaultStatsInterval
	}
	e.queue = taskqueue.New(
		taskqueue.WithLogger(logger),
		taskqueue.WithSlowTaskThreshold(cfg.SlowTaskThreshold),
	)
	return e
}

// Submit queues a task for the engine goroutine.
func (e *Engine) Submit(name string, task ports.EngineTask) bool {
	return e.queue.Submit(name, task)
}

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.pumpInterval)
	defer ticker.Stop()

	h := handle{e: e}
	for {
		select {
		case <-e.stop:
			return
		case <-e.queue.Wake():
			e.queue.DrainAndRun(h)
		case <-ticker.C:
		}
		e.pumpAll()
	}
}

// Close stops the engine goroutine, drops every torrent and shuts the client
// down. Tasks submitted afterwards are discarded.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.queue.Close()
		close(e.stop)
		<-e.done
		// Run what was queued before Close so sessions see their removals.
		e.queue.DrainAndRun(handle{e: e})

		for id, tr := range e.torrents {
			err = errors.Join(err, e.drop(id, tr))
		}
		clear(e.listeners)
		if e.client != nil {
			err = errors.Join(err, errors.Join(e.client.Close()...))
		}
	})
	return err
}

// ---------------------------------------------------------------------------
// Event pump
// ---------------------------------------------------------------------------

func (e *Engine) pumpAll() {
	now := e.now()
	var down, up int64
	for id, tr := range e.torrents {
		events := e.pumpTorrent(tr, now)
		if l := e.listeners[id]; l != nil {
			for _, ev := range events {
				l.HandleEvent(ev)
			}
		}
		down += tr.speed.download
		up += tr.speed.upload
	}
	metrics.DownloadSpeedBytes.Set(float64(down))
	metrics.UploadSpeedBytes.Set(float64(up))
}

// pumpTorrent compares the native state of one torrent with the previous
// poll. A panic inside the native client is logged and skips this round.
func (e *Engine) pumpTorrent(tr *tracked, now time.Time) (events []domain.EngineEvent) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			e.pumpWarn.Do(func() {
				e.logger.Warn("engine pump recovered from panic",
					slog.String("torrentId", string(tr.id)),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			})
		}
	}()

	t := tr.t
	id := tr.id
	if !tr.announced {
		tr.announced = true
		if tr.resumed {
			events = append(events, domain.NewTorrentResumed(id))
		} else {
			events = append(events, domain.NewTorrentAdded(id))
		}
	}
	if !torrentInfoReady(t) {
		return events
	}
	if !tr.gotInfo {
		tr.gotInfo = true
		t.SetMaxEstablishedConns(defaultMaxConns)
		tr.applyPending()
		events = append(events, domain.NewMetadataReceived(id, mapInfo(t.Info())))
	}

	cur := snapshotPieces(t)
	events = append(events, pieceEvents(id, tr.pieces, cur)...)
	tr.pieces = cur

	files := t.Files()
	completed := make([]int64, len(files))
	lengths := make([]int64, len(files))
	for i, f := range files {
		completed[i] = f.BytesCompleted()
		lengths[i] = f.Length()
	}
	events = append(events, fileEvents(id, &tr.filesDone, completed, lengths)...)

	if !tr.finished && t.BytesMissing() == 0 {
		tr.finished = true
		events = append(events, domain.NewTorrentFinished(id, completed))
	}

	if now.Sub(tr.speed.at) >= e.statsInterval {
		stats := t.Stats()
		read, written := stats.BytesReadUsefulData.Int64(), stats.BytesWrittenData.Int64()
		tr.speed.sample(read, written, now)
		ev := domain.NewStatsUpdate(id, now)
		ev.TotalWanted = t.Length()
		ev.DownloadedBytes = t.BytesCompleted()
		ev.UploadedBytes = written
		ev.DownloadRate = tr.speed.download
		ev.UploadRate = tr.speed.upload
		events = append(events, ev)
	}

	if tr.resumePending {
		if data, err := tr.metainfoBytes(); err != nil {
			e.logger.Warn("resume data encode failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
		} else {
			events = append(events, domain.NewResumeDataSaved(id, data))
		}
		tr.resumePending = false
	}
	return events
}

func (e *Engine) drop(id domain.TorrentID, tr *tracked) error {
	delete(e.torrents, id)
	if tr.t != nil {
		tr.t.Drop()
	}
	var err error
	if tr.storage != nil {
		err = tr.storage.Close()
	}
	// Return memory to the OS promptly after dropping a torrent.
	freeOSMemory()
	return err
}

func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

func snapshotPieces(t *torrent.Torrent) []pieceSnapshot {
	n := t.NumPieces()
	out := make([]pieceSnapshot, n)
	for i := 0; i < n; i++ {
		ps := t.PieceState(i)
		out[i] = pieceSnapshot{complete: ps.Complete, partial: ps.Partial}
	}
	return out
}
