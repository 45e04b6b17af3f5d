package anacrolix

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

// handle is the EngineHandle passed to tasks. It touches engine state
// without locks, so it must only be used on the engine goroutine.
type handle struct {
	e *Engine
}

func (h handle) Add(req ports.AddRequest) (ports.NativeTorrent, error) {
	e := h.e
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}
	if tr, ok := e.torrents[req.ID]; ok {
		return tr, nil
	}

	spec, err := specFor(req)
	if err != nil {
		return nil, err
	}
	if got := domain.TorrentID(spec.InfoHash.HexString()); req.ID != "" && !strings.EqualFold(string(got), string(req.ID)) {
		return nil, fmt.Errorf("%w: source hash %s does not match %s", domain.ErrInvalidSource, got, req.ID)
	}

	st := storage.NewFileOpts(storage.NewFileClientOpts{
		ClientBaseDir: req.SaveDir,
		UsePartFiles:  g.Some(false),
		Logger:        e.logger.With(slog.String("component", "storage")),
	})
	spec.Storage = st

	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tr := &tracked{
		id:      req.ID,
		t:       t,
		storage: st,
		resumed: len(req.Metainfo) > 0,
		pending: make(map[int]domain.FilePriority),
	}
	e.torrents[req.ID] = tr
	t.AllowDataDownload()
	t.AllowDataUpload()
	e.logger.Info("torrent added",
		slog.String("torrentId", string(req.ID)),
		slog.Bool("resumed", tr.resumed),
		slog.String("saveDir", req.SaveDir),
	)
	return tr, nil
}

func (h handle) Torrent(id domain.TorrentID) (ports.NativeTorrent, bool) {
	tr, ok := h.e.torrents[id]
	if !ok {
		return nil, false
	}
	return tr, true
}

func (h handle) Listen(id domain.TorrentID, l ports.EventListener) {
	h.e.listeners[id] = l
}

func (h handle) Unlisten(id domain.TorrentID) {
	delete(h.e.listeners, id)
}

func (h handle) Remove(id domain.TorrentID) error {
	tr, ok := h.e.torrents[id]
	if !ok {
		return ErrTorrentNotFound
	}
	if l := h.e.listeners[id]; l != nil {
		l.HandleEvent(domain.NewTorrentRemoved(id))
	}
	h.e.logger.Info("torrent removed", slog.String("torrentId", string(id)))
	return h.e.drop(id, tr)
}

// specFor builds the add spec. Resume metainfo wins over the source so a
// restored torrent skips the metadata exchange.
func specFor(req ports.AddRequest) (*torrent.TorrentSpec, error) {
	switch {
	case len(req.Metainfo) > 0:
		mi, err := metainfo.Load(bytes.NewReader(req.Metainfo))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrResumeDataCorrupt, err)
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	case req.Source.Magnet != "":
		spec, err := torrent.TorrentSpecFromMagnetUri(req.Source.Magnet)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return spec, nil
	case req.Source.Torrent != "":
		mi, err := metainfo.LoadFromFile(req.Source.Torrent)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	default:
		return nil, fmt.Errorf("%w: empty source", domain.ErrInvalidSource)
	}
}

// ---------------------------------------------------------------------------
// Tracked torrent
// ---------------------------------------------------------------------------

// tracked is the engine's record of one native torrent. It implements
// ports.NativeTorrent; every method runs on the engine goroutine.
type tracked struct {
	id      domain.TorrentID
	t       *torrent.Torrent
	storage storage.ClientImplCloser
	resumed bool

	announced     bool
	gotInfo       bool
	finished      bool
	resumePending bool
	pieces        []pieceSnapshot
	filesDone     []bool
	deadlines     map[int]int
	// pending holds file priorities set before metadata arrived.
	pending map[int]domain.FilePriority
	speed   speedSample
}

func (tr *tracked) ID() domain.TorrentID { return tr.id }

func (tr *tracked) SetFilePriority(index int, prio domain.FilePriority) {
	if !torrentInfoReady(tr.t) {
		tr.pending[index] = prio
		return
	}
	files := tr.t.Files()
	if index < 0 || index >= len(files) {
		return
	}
	files[index].SetPriority(mapFilePriority(prio))
}

// SetPieceDeadlines replaces the deadline set. Pieces that dropped out fall
// back to their file priority.
func (tr *tracked) SetPieceDeadlines(deadlines map[int]int) {
	if !torrentInfoReady(tr.t) {
		return
	}
	n := tr.t.NumPieces()
	for p := range tr.deadlines {
		if _, ok := deadlines[p]; !ok && p >= 0 && p < n {
			tr.t.Piece(p).SetPriority(torrent.PiecePriorityNone)
		}
	}
	for p, d := range deadlines {
		if p >= 0 && p < n {
			tr.t.Piece(p).SetPriority(mapDeadline(d))
		}
	}
	tr.deadlines = deadlines
}

func (tr *tracked) RequestResumeData() {
	tr.resumePending = true
}

func (tr *tracked) FileBytesCompleted() []int64 {
	if !torrentInfoReady(tr.t) {
		return nil
	}
	files := tr.t.Files()
	out := make([]int64, len(files))
	for i, f := range files {
		out[i] = f.BytesCompleted()
	}
	return out
}

func (tr *tracked) applyPending() {
	for index, prio := range tr.pending {
		tr.SetFilePriority(index, prio)
	}
	clear(tr.pending)
}

func (tr *tracked) metainfoBytes() ([]byte, error) {
	mi := tr.t.Metainfo()
	var buf bytes.Buffer
	if err := mi.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
