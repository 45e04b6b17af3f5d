package domain

import "time"

// TorrentID is the lower-case hex v1 info hash. It keys sessions, save
// directories and catalogue rows.
type TorrentID string

type InfoHash string

// TorrentSource names a torrent. Exactly one of Magnet or Torrent is set; a
// bare info hash travels as Magnet.
type TorrentSource struct {
	Magnet  string `json:"magnet,omitempty"`
	Torrent string `json:"torrent,omitempty"`
}

// TorrentInfo is the decoded info dictionary as the session needs it.
type TorrentInfo struct {
	Name            string            `json:"name"`
	PieceLength     int64             `json:"pieceLength"`
	NumPieces       int               `json:"numPieces"`
	LastPieceLength int64             `json:"lastPieceLength"`
	TotalLength     int64             `json:"totalLength"`
	Files           []TorrentFileInfo `json:"files"`
}

// TorrentFileInfo places one logical file inside the torrent byte space.
type TorrentFileInfo struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// FileRef is the catalogue view of a file with its progress.
type FileRef struct {
	Index          int    `json:"index"`
	Path           string `json:"path"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
}

type OverallStats struct {
	TotalSize       int64     `json:"totalSize"`
	DownloadedBytes int64     `json:"downloadedBytes"`
	UploadedBytes   int64     `json:"uploadedBytes"`
	DownloadRate    int64     `json:"downloadRate"`
	UploadRate      int64     `json:"uploadRate"`
	Progress        float64   `json:"progress"`
	IsFinished      bool      `json:"isFinished"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type FileStats struct {
	DownloadedBytes int64   `json:"downloadedBytes"`
	Progress        float64 `json:"progress"`
	IsFinished      bool    `json:"isFinished"`
}

// Ratio returns done/total clamped to [0,1].
func Ratio(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SessionState is the read model of one live session.
type SessionState struct {
	ID        TorrentID        `json:"id"`
	Name      string           `json:"name,omitempty"`
	Lifecycle SessionLifecycle `json:"lifecycle"`
	Status    TorrentStatus    `json:"status"`
	Stats     OverallStats     `json:"stats"`
	Files     []FileRef        `json:"files,omitempty"`
	NumPieces int              `json:"numPieces,omitempty"`
}
