package anacrolix

import (
	"github.com/anacrolix/torrent"

	"piecestream/internal/domain"
)

// mapDeadline turns a reader deadline (0 is the piece being read) into a
// native piece priority.
func mapDeadline(d int) torrent.PiecePriority {
	switch {
	case d <= 0:
		return torrent.PiecePriorityNow
	case d <= 2:
		return torrent.PiecePriorityNext
	default:
		return torrent.PiecePriorityReadahead
	}
}

// mapFilePriority maps a file vote. The native client has no low priority.
func mapFilePriority(prio domain.FilePriority) torrent.PiecePriority {
	switch prio {
	case domain.PriorityIgnore:
		return torrent.PiecePriorityNone
	case domain.PriorityLow, domain.PriorityNormal:
		return torrent.PiecePriorityNormal
	case domain.PriorityHigh:
		return torrent.PiecePriorityHigh
	default:
		return torrent.PiecePriorityNormal
	}
}
