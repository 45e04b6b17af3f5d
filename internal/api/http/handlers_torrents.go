package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"piecestream/internal/domain"
	"piecestream/internal/usecase"
)

const maxListLimit = 1000

type createTorrentJSON struct {
	Magnet   string `json:"magnet,omitempty"`
	InfoHash string `json:"infoHash,omitempty"`
	Name     string `json:"name,omitempty"`
	SaveDir  string `json:"saveDir,omitempty"`
}

func (s *Server) handleCreateTorrent(w http.ResponseWriter, r *http.Request) {
	if s.startDownload == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "start download use case not configured")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	var input usecase.StartDownloadInput
	switch mediaType {
	case "application/json":
		input, err = decodeCreateJSON(r)
	case "multipart/form-data":
		input, err = s.decodeCreateMultipart(r)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported content type")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Starting waits for metadata; cap it so a dead swarm cannot hold the
	// request forever.
	ctx, cancel := context.WithTimeout(r.Context(), s.startTimeout)
	defer cancel()

	record, err := s.startDownload.Execute(ctx, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func decodeCreateJSON(r *http.Request) (usecase.StartDownloadInput, error) {
	var body createTorrentJSON
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return usecase.StartDownloadInput{}, errors.New("invalid json")
	}

	source := strings.TrimSpace(body.Magnet)
	if hash := strings.TrimSpace(body.InfoHash); hash != "" {
		if source != "" {
			return usecase.StartDownloadInput{}, errors.New("magnet and infoHash are exclusive")
		}
		// A bare hash travels as the magnet field.
		source = hash
	}
	return usecase.StartDownloadInput{
		Source:  domain.TorrentSource{Magnet: source},
		Name:    strings.TrimSpace(body.Name),
		SaveDir: strings.TrimSpace(body.SaveDir),
	}, nil
}

func (s *Server) decodeCreateMultipart(r *http.Request) (usecase.StartDownloadInput, error) {
	const maxMemory = 5 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return usecase.StartDownloadInput{}, errors.New("invalid multipart form")
	}
	file, header, err := r.FormFile("torrent")
	if err != nil {
		return usecase.StartDownloadInput{}, errors.New("missing torrent file")
	}
	defer file.Close()

	path, err := saveUploadedFile(file, header.Filename, s.uploadDir)
	if err != nil {
		s.logger.Error("store torrent upload failed", slog.String("error", err.Error()))
		return usecase.StartDownloadInput{}, errors.New("failed to store torrent file")
	}
	return usecase.StartDownloadInput{
		Source: domain.TorrentSource{Torrent: path},
		Name:   strings.TrimSpace(r.FormValue("name")),
	}, nil
}

type torrentSummary struct {
	ID         domain.TorrentID     `json:"id"`
	Name       string               `json:"name"`
	Status     domain.TorrentStatus `json:"status"`
	Progress   float64              `json:"progress"`
	DoneBytes  int64                `json:"doneBytes"`
	TotalBytes int64                `json:"totalBytes"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

type torrentList struct {
	Items []torrentSummary `json:"items"`
	Count int              `json:"count"`
}

func summarize(record domain.TorrentRecord) torrentSummary {
	return torrentSummary{
		ID:         record.ID,
		Name:       record.Name,
		Status:     record.Status,
		Progress:   domain.Ratio(record.DoneBytes, record.TotalBytes),
		DoneBytes:  record.DoneBytes,
		TotalBytes: record.TotalBytes,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func (s *Server) handleListTorrents(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
		return
	}
	filter, err := parseTorrentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	records, err := s.repo.List(r.Context(), filter)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	items := make([]torrentSummary, 0, len(records))
	for _, record := range records {
		items = append(items, summarize(record))
	}
	writeJSON(w, http.StatusOK, torrentList{Items: items, Count: len(items)})
}

func parseTorrentFilter(r *http.Request) (domain.TorrentFilter, error) {
	q := r.URL.Query()
	status, err := parseStatus(q.Get("status"))
	if err != nil {
		return domain.TorrentFilter{}, errors.New("invalid status")
	}
	sortBy := strings.TrimSpace(q.Get("sortBy"))
	if sortBy == "" {
		sortBy = "updatedAt"
	}
	if !isAllowedSortBy(sortBy) {
		return domain.TorrentFilter{}, errors.New("invalid sortBy")
	}
	sortOrder, err := parseSortOrder(q.Get("sortOrder"))
	if err != nil {
		return domain.TorrentFilter{}, errors.New("invalid sortOrder")
	}
	limit, err := parseNonNegativeInt(q.Get("limit"))
	if err != nil || limit == 0 {
		return domain.TorrentFilter{}, errors.New("invalid limit")
	}
	offset, err := parseNonNegativeInt(q.Get("offset"))
	if err != nil {
		return domain.TorrentFilter{}, errors.New("invalid offset")
	}

	filter := domain.TorrentFilter{
		Status:    status,
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}
	if limit > 0 {
		filter.Limit = min(limit, maxListLimit)
	}
	if offset > 0 {
		filter.Offset = offset
	}
	return filter, nil
}

type torrentDetail struct {
	domain.TorrentRecord
	Live  bool                 `json:"live"`
	State *domain.SessionState `json:"state,omitempty"`
}

func (s *Server) handleGetTorrent(w http.ResponseWriter, r *http.Request) {
	id := domain.TorrentID(r.PathValue("id"))
	state, live := s.liveState(r.Context(), id)

	if s.repo == nil {
		if !live {
			writeError(w, http.StatusNotFound, "not_found", "torrent not found")
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	record, err := s.repo.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) || !live {
			writeRepoError(w, err)
			return
		}
		// Running but not catalogued yet.
		record = domain.TorrentRecord{ID: id, Name: state.Name, Status: state.Status, Files: state.Files}
	}

	detail := torrentDetail{TorrentRecord: record, Live: live}
	if live {
		detail.State = &state
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) liveState(ctx context.Context, id domain.TorrentID) (domain.SessionState, bool) {
	if s.getState == nil {
		return domain.SessionState{}, false
	}
	state, err := s.getState.Execute(ctx, id)
	if err != nil {
		return domain.SessionState{}, false
	}
	return state, true
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id := domain.TorrentID(r.PathValue("id"))
	if state, ok := s.liveState(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, fileList(state.Files))
		return
	}
	if s.repo == nil {
		writeError(w, http.StatusNotFound, "not_found", "torrent not found")
		return
	}
	record, err := s.repo.Get(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileList(record.Files))
}

type fileItem struct {
	domain.FileRef
	Progress float64 `json:"progress"`
}

type fileListResponse struct {
	Items []fileItem `json:"items"`
	Count int        `json:"count"`
}

func fileList(files []domain.FileRef) fileListResponse {
	items := make([]fileItem, 0, len(files))
	for _, f := range files {
		items = append(items, fileItem{FileRef: f, Progress: domain.Ratio(f.BytesCompleted, f.Length)})
	}
	return fileListResponse{Items: items, Count: len(items)}
}

func (s *Server) handleDeleteTorrent(w http.ResponseWriter, r *http.Request) {
	if s.deleteTorrent == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "delete torrent use case not configured")
		return
	}
	deleteFiles, err := parseBoolQuery(r.URL.Query().Get("deleteFiles"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid deleteFiles")
		return
	}
	if err := s.deleteTorrent.Execute(r.Context(), domain.TorrentID(r.PathValue("id")), deleteFiles); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopTorrent(w http.ResponseWriter, r *http.Request) {
	if s.stopTorrent == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stop torrent use case not configured")
		return
	}
	record, err := s.stopTorrent.Execute(r.Context(), domain.TorrentID(r.PathValue("id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type stateList struct {
	Items []domain.SessionState `json:"items"`
	Count int                   `json:"count"`
}

func (s *Server) handleListTorrentStates(w http.ResponseWriter, r *http.Request) {
	if s.listStates == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "state use case not configured")
		return
	}
	states, err := s.listStates.Execute(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if states == nil {
		states = []domain.SessionState{}
	}
	writeJSON(w, http.StatusOK, stateList{Items: states, Count: len(states)})
}
