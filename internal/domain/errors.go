package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidSource = errors.New("invalid torrent source")

	// ErrMetadataFetchTimeout is returned when no peer delivered the info
	// dictionary within the configured bound.
	ErrMetadataFetchTimeout = errors.New("metadata fetch timed out")
	// ErrPieceVerificationFailed is recorded when a downloaded piece fails its
	// hash check. The piece is re-requested, so callers never see it directly.
	ErrPieceVerificationFailed = errors.New("piece verification failed")
	ErrEngineTaskFailure       = errors.New("engine task failed")
	// ErrReadCancelled unblocks readers whose handle, input or session closed.
	ErrReadCancelled     = errors.New("read cancelled")
	ErrResumeDataCorrupt = errors.New("resume data corrupt")
	ErrSessionClosed     = errors.New("session closed")
	ErrHandleClosed      = errors.New("file handle closed")
	ErrInvalidTransition = errors.New("invalid state transition")
)
