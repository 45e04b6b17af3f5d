package anacrolix

import (
	"path"
	"time"

	"github.com/anacrolix/torrent/metainfo"

	"piecestream/internal/domain"
)

type pieceSnapshot struct {
	complete bool
	partial  bool
}

// pieceEvents reports the transitions between two polls of a piece table.
// A piece that had data and lost it without completing failed its hash
// check. Completed pieces never produce further events.
func pieceEvents(id domain.TorrentID, prev, cur []pieceSnapshot) []domain.EngineEvent {
	var out []domain.EngineEvent
	for i, c := range cur {
		var p pieceSnapshot
		if i < len(prev) {
			p = prev[i]
		}
		switch {
		case p.complete:
		case c.complete:
			out = append(out, domain.NewPieceFinished(id, i))
		case c.partial && !p.partial:
			out = append(out, domain.NewPieceDownloading(id, i))
		case p.partial && !c.partial:
			out = append(out, domain.NewPieceHashFailed(id, i))
		}
	}
	return out
}

// fileEvents reports files that became complete since the last poll and
// records them in done, growing it as needed.
func fileEvents(id domain.TorrentID, done *[]bool, completed, lengths []int64) []domain.EngineEvent {
	if len(*done) < len(lengths) {
		*done = append(*done, make([]bool, len(lengths)-len(*done))...)
	}
	var out []domain.EngineEvent
	for i, l := range lengths {
		if (*done)[i] || i >= len(completed) || completed[i] < l {
			continue
		}
		(*done)[i] = true
		out = append(out, domain.NewFileCompleted(id, i))
	}
	return out
}

// mapInfo lays files out the way file storage writes them: multi-file
// torrents live under the torrent name.
func mapInfo(info *metainfo.Info) domain.TorrentInfo {
	out := domain.TorrentInfo{
		Name:        info.BestName(),
		PieceLength: info.PieceLength,
		NumPieces:   info.NumPieces(),
		TotalLength: info.TotalLength(),
	}
	if out.NumPieces > 0 {
		out.LastPieceLength = out.TotalLength - int64(out.NumPieces-1)*out.PieceLength
	}
	var off int64
	for i, fi := range info.UpvertedFiles() {
		p := out.Name
		if info.IsDir() {
			p = path.Join(append([]string{out.Name}, fi.BestPath()...)...)
		}
		out.Files = append(out.Files, domain.TorrentFileInfo{
			Index:  i,
			Path:   p,
			Offset: off,
			Length: fi.Length,
		})
		off += fi.Length
	}
	return out
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
	download     int64
	upload       int64
}

// sample updates the transfer rates from cumulative counters. The first
// sample only records a baseline.
func (s *speedSample) sample(read, written int64, now time.Time) {
	prev := *s
	s.at = now
	s.bytesRead = read
	s.bytesWritten = written

	if prev.at.IsZero() {
		s.download, s.upload = 0, 0
		return
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		s.download, s.upload = 0, 0
		return
	}
	s.download = int64(float64(max(read-prev.bytesRead, 0)) / dt)
	s.upload = int64(float64(max(written-prev.bytesWritten, 0)) / dt)
}
