package session

import (
	"sort"

	"piecestream/internal/domain"
)

// Piece is one entry of the session piece table. Index, Offset and Length
// never change after metadata; State is written by the engine goroutine
// under the session lock.
type Piece struct {
	Index  int
	Offset int64 // in torrent byte space
	Length int64
	State  domain.PieceState
}

func (p Piece) End() int64 { return p.Offset + p.Length }

func buildPieces(info domain.TorrentInfo) []Piece {
	if info.NumPieces <= 0 || info.PieceLength <= 0 {
		return nil
	}
	pieces := make([]Piece, info.NumPieces)
	for i := range pieces {
		length := info.PieceLength
		if i == info.NumPieces-1 && info.LastPieceLength > 0 {
			length = info.LastPieceLength
		}
		pieces[i] = Piece{
			Index:  i,
			Offset: int64(i) * info.PieceLength,
			Length: length,
		}
	}
	return pieces
}

// matchPieces returns the half-open range [start, end) of pieces that
// intersect [offset, offset+length). Pieces straddling a file boundary
// belong to both neighbours. A zero-length file yields an empty range.
func matchPieces(pieces []Piece, offset, length int64) (start, end int) {
	start = sort.Search(len(pieces), func(i int) bool {
		return pieces[i].End() > offset
	})
	if length <= 0 {
		return start, start
	}
	limit := offset + length
	end = start + sort.Search(len(pieces)-start, func(i int) bool {
		return pieces[start+i].Offset >= limit
	})
	return start, end
}
