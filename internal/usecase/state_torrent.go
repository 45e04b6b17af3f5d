package usecase

import (
	"context"
	"errors"

	"piecestream/internal/domain"
	"piecestream/internal/domain/ports"
)

type GetTorrentState struct {
	Downloader ports.Downloader
}

func (uc GetTorrentState) Execute(ctx context.Context, id domain.TorrentID) (domain.SessionState, error) {
	if uc.Downloader == nil {
		return domain.SessionState{}, errors.New("downloader not configured")
	}
	session, err := uc.Downloader.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SessionState{}, err
		}
		return domain.SessionState{}, wrapEngine(err)
	}
	return session.State(), nil
}

type ListTorrentStates struct {
	Downloader ports.Downloader
}

func (uc ListTorrentStates) Execute(ctx context.Context) ([]domain.SessionState, error) {
	if uc.Downloader == nil {
		return nil, errors.New("downloader not configured")
	}
	sessions := uc.Downloader.List()
	states := make([]domain.SessionState, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.State())
	}
	return states, nil
}
