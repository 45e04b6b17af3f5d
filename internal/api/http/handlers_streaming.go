package apihttp

import (
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/usecase"
)

// handleStreamFile serves one torrent file with Range support. Reads block
// until the covering pieces are verified, and the download window follows
// the reader's position; the request context unblocks a read when the
// player goes away.
func (s *Server) handleStreamFile(w http.ResponseWriter, r *http.Request) {
	if s.openStream == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "open stream use case not configured")
		return
	}
	id := domain.TorrentID(r.PathValue("id"))
	fileIndex, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || fileIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid file index")
		return
	}

	stream, err := s.openStream.Execute(r.Context(), id, fileIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer stream.Close()

	s.logger.Debug("stream opened",
		slog.String("torrentId", string(id)),
		slog.Int("fileIndex", fileIndex),
		slog.Int64("length", stream.File.Length),
	)

	name := path.Base(stream.File.Path)
	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")

	// ServeContent probes the size with Seek(0, io.SeekEnd) and then reads
	// the requested range; both go through the blocking input.
	http.ServeContent(w, r, name, time.Time{}, stream.Input)

	if err := r.Context().Err(); err != nil {
		s.logger.Debug("stream client gone",
			slog.String("torrentId", string(id)),
			slog.Int("fileIndex", fileIndex),
			slog.String("error", err.Error()),
		)
	}
}

var _ OpenStreamUseCase = usecase.OpenStream{}
