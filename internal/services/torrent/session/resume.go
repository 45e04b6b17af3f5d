package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"piecestream/internal/domain"
)

const (
	resumeVersion  = 1
	ResumeFileName = "fastresume"
)

// ResumeData is the bencoded snapshot written next to the downloaded files.
// It carries the metainfo so a restarted session skips the metadata exchange;
// piece completion is recovered by the engine from the files on disk.
type ResumeData struct {
	Version  int    `bencode:"version"`
	InfoHash string `bencode:"info-hash"`
	Name     string `bencode:"name,omitempty"`
	Metainfo []byte `bencode:"metainfo"`
	SavedAt  int64  `bencode:"saved-at"`
}

func ResumePath(saveDir string) string {
	return filepath.Join(saveDir, ResumeFileName)
}

// WriteResumeData replaces the resume file atomically.
func WriteResumeData(saveDir string, rd ResumeData) error {
	raw, err := bencode.Marshal(rd)
	if err != nil {
		return fmt.Errorf("encode resume data: %w", err)
	}
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(saveDir, ResumeFileName+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), ResumePath(saveDir))
}

// LoadResumeData reads and validates the resume file of torrent id. A missing
// file yields os.ErrNotExist; anything unreadable or belonging to another
// torrent yields ErrResumeDataCorrupt.
func LoadResumeData(saveDir string, id domain.TorrentID) (ResumeData, error) {
	raw, err := os.ReadFile(ResumePath(saveDir))
	if err != nil {
		return ResumeData{}, err
	}
	var rd ResumeData
	if err := bencode.Unmarshal(raw, &rd); err != nil {
		return ResumeData{}, fmt.Errorf("%w: %v", domain.ErrResumeDataCorrupt, err)
	}
	if rd.Version != resumeVersion {
		return ResumeData{}, fmt.Errorf("%w: unsupported version %d", domain.ErrResumeDataCorrupt, rd.Version)
	}
	if !strings.EqualFold(rd.InfoHash, string(id)) {
		return ResumeData{}, fmt.Errorf("%w: info hash %q does not match %q", domain.ErrResumeDataCorrupt, rd.InfoHash, id)
	}
	mi, err := metainfo.Load(bytes.NewReader(rd.Metainfo))
	if err != nil {
		return ResumeData{}, fmt.Errorf("%w: metainfo: %v", domain.ErrResumeDataCorrupt, err)
	}
	if got := mi.HashInfoBytes().HexString(); !strings.EqualFold(got, string(id)) {
		return ResumeData{}, fmt.Errorf("%w: metainfo hash %s does not match %s", domain.ErrResumeDataCorrupt, got, id)
	}
	return rd, nil
}
