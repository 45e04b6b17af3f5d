package domain

// PieceState tracks one piece from the local point of view.
type PieceState int

const (
	PieceNotAvailable PieceState = iota // Not requested yet.
	PieceReady                          // Requested, waiting for peers.
	PieceDownloading
	PieceFinished // Verified and on disk. Terminal.
	PieceFailed   // Hash check failed, about to be re-requested.
)

func (s PieceState) String() string {
	switch s {
	case PieceNotAvailable:
		return "not_available"
	case PieceReady:
		return "ready"
	case PieceDownloading:
		return "downloading"
	case PieceFinished:
		return "finished"
	case PieceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var pieceTransitions = map[PieceState][]PieceState{
	PieceNotAvailable: {PieceReady, PieceDownloading, PieceFinished, PieceFailed},
	PieceReady:        {PieceDownloading, PieceFinished, PieceFailed},
	PieceDownloading:  {PieceReady, PieceFinished, PieceFailed},
	PieceFailed:       {PieceNotAvailable},
	PieceFinished:     nil,
}

// CanAdvance reports whether a piece may move from one state to another.
// Downloading may fall back to Ready when a peer drops mid-piece; Failed
// resets to NotAvailable for a retry. Nothing leaves Finished.
func CanAdvance(from, to PieceState) bool {
	for _, s := range pieceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
