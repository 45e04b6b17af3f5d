package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrEngine           = errors.New("engine error")
	ErrRepository       = errors.New("repository error")
	ErrInvalidFileIndex = errors.New("invalid file index")
)

// wrapEngine keeps the cause matchable so callers can still tell a metadata
// timeout from a missing torrent.
func wrapEngine(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrEngine, err)
}

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}
