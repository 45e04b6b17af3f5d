package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"piecestream/internal/domain"
	"piecestream/internal/usecase"
)

// statusClientClosed is logged for requests whose client went away.
const statusClientClosed = 499

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeDomainError maps use case errors to HTTP statuses. The most specific
// cause wins: a metadata timeout wrapped in ErrEngine is still a 504.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid torrent source")
	case errors.Is(err, usecase.ErrInvalidFileIndex):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid file index")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "torrent not found")
	case errors.Is(err, domain.ErrMetadataFetchTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "metadata_timeout", "torrent metadata not received in time")
	case errors.Is(err, context.Canceled):
		writeError(w, statusClientClosed, "cancelled", "request cancelled")
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrHandleClosed),
		errors.Is(err, domain.ErrReadCancelled):
		writeError(w, http.StatusServiceUnavailable, "session_closed", "torrent session closed")
	case errors.Is(err, usecase.ErrRepository):
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
	case errors.Is(err, usecase.ErrEngine):
		writeError(w, http.StatusInternalServerError, "engine_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "torrent not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// saveUploadedFile stores an uploaded .torrent under dir and returns its path.
func saveUploadedFile(src io.Reader, filename, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload.torrent"
	}
	ext := filepath.Ext(base)
	pattern := strings.TrimSuffix(base, ext) + "-*" + ext

	out, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func parseStatus(value string) (*domain.TorrentStatus, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "all" {
		return nil, nil
	}
	switch status := domain.TorrentStatus(value); status {
	case domain.TorrentPending, domain.TorrentActive, domain.TorrentCompleted,
		domain.TorrentStopped, domain.TorrentError:
		return &status, nil
	default:
		return nil, errors.New("invalid status")
	}
}

// parseNonNegativeInt returns -1 for an empty value.
func parseNonNegativeInt(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return -1, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, errors.New("must be >= 0")
	}
	return parsed, nil
}

func parseSortOrder(value string) (domain.SortOrder, error) {
	switch order := domain.SortOrder(strings.TrimSpace(strings.ToLower(value))); order {
	case "":
		return domain.SortDesc, nil
	case domain.SortAsc, domain.SortDesc:
		return order, nil
	default:
		return "", errors.New("invalid sort order")
	}
}

func isAllowedSortBy(value string) bool {
	switch value {
	case "name", "createdAt", "updatedAt", "totalBytes", "progress":
		return true
	default:
		return false
	}
}

func parseBoolQuery(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0":
		return false, nil
	case "true", "1":
		return true, nil
	default:
		return false, errors.New("invalid bool")
	}
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := fallbackContentType(ext); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// fallbackContentType covers media types that mime tables often miss.
func fallbackContentType(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".m4v":
		return "video/x-m4v"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	default:
		return ""
	}
}
