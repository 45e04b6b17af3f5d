package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

type DeleteTorrent struct {
	Downloader ports.Downloader
	Repo       ports.TorrentRepository
	Leases     *StreamLeases
	DataDir    string
}

// Execute closes the torrent's session and removes its catalogue row. With
// deleteFiles the save directory goes too, once no handle is open on it.
func (uc DeleteTorrent) Execute(ctx context.Context, id domain.TorrentID, deleteFiles bool) error {
	record, err := uc.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapRepo(err)
	}

	if uc.Leases != nil {
		uc.Leases.Drop(id)
	}

	session, err := uc.Downloader.Get(id)
	switch {
	case err == nil && deleteFiles:
		if err := session.CloseAndDelete(ctx); err != nil {
			return wrapEngine(err)
		}
	case err == nil:
		if err := session.Close(ctx); err != nil {
			return wrapEngine(err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return wrapEngine(err)
	case deleteFiles:
		if err := removeSaveDir(uc.DataDir, record.SaveDir); err != nil {
			return err
		}
	}

	if err := uc.Repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapRepo(err)
	}
	return nil
}

// removeSaveDir deletes a torrent save directory. It refuses paths outside
// the data directory.
func removeSaveDir(baseDir, saveDir string) error {
	if strings.TrimSpace(baseDir) == "" {
		return errors.New("data dir not configured")
	}
	if strings.TrimSpace(saveDir) == "" {
		return nil
	}

	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return err
	}
	baseAbs = filepath.Clean(baseAbs)

	fullPath, err := filepath.Abs(saveDir)
	if err != nil {
		return err
	}
	fullPath = filepath.Clean(fullPath)
	if !strings.HasPrefix(fullPath, baseAbs+string(os.PathSeparator)) {
		return errors.New("invalid save dir")
	}

	if err := os.RemoveAll(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
