package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"airr.io/student-analytics/internal/core"
	"airr.io/student-analytics/internal/store"
)

type APIHandler struct {
	chatService    *core.ChatService
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewAPIHandler(cs *core.ChatService, logger *zap.Logger, maxUploadBytes int64) *APIHandler {
	return &APIHandler{chatService: cs, logger: logger, maxUploadBytes: maxUploadBytes}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Messages from
// configuration and remote errors are shown to the user verbatim.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		cfgErr    *core.ConfigurationError
		remoteErr *core.RemoteError
		noDataErr *core.NoDataError
	)
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrIngestInProgress), errors.Is(err, core.ErrAnalysisInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrUnknownChannel), errors.Is(err, core.ErrChannelEmpty), errors.Is(err, core.ErrReadOnlyChannel):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: cfgErr.Error()})
	case errors.As(err, &noDataErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: noDataErr.Error()})
	case errors.As(err, &remoteErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: remoteErr.Msg})
	default:
		h.logger.Error(fallback, zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fallback})
	}
}

type CreateSessionResponse struct {
	*store.Session
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, messages, err := h.chatService.CreateSession()
	if err != nil {
		h.writeError(w, r, err, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{Session: session, Messages: messages})
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.chatService.State(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.Messages(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Message content cannot be empty"})
		return
	}

	reply, err := h.chatService.PostMessage(r.Context(), chi.URLParam(r, "sessionID"), req.Content)
	if err != nil {
		h.writeError(w, r, err, "Failed to post message")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type RecordsResponse struct {
	Channel core.Channel        `json:"channel"`
	Total   int                 `json:"total"`
	Count   int                 `json:"count"`
	Summary core.DatasetSummary `json:"summary"`
	Records store.Dataset       `json:"records"`
}

// ListRecordsHandler previews the active dataset. The optional q parameter
// narrows the records by name, school name or city; total and summary always
// describe the whole dataset.
func (h *APIHandler) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	ch, ds, err := h.chatService.Records(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to list records")
		return
	}
	if ds == nil {
		ds = store.Dataset{}
	}
	matches := core.FilterRecords(ds, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, RecordsResponse{
		Channel: ch,
		Total:   len(ds),
		Count:   len(matches),
		Summary: core.Summarize(ds),
		Records: matches,
	})
}

type SelectChannelRequest struct {
	Channel string `json:"channel"`
}

func (h *APIHandler) SelectChannelHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	ch, err := core.ParseChannel(req.Channel)
	if err != nil {
		h.writeError(w, r, err, "Failed to select channel")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.chatService.SelectChannel(sessionID, ch); err != nil {
		h.writeError(w, r, err, "Failed to select channel")
		return
	}
	h.GetSessionHandler(w, r)
}

type IngestResponse struct {
	Channel  core.Channel `json:"channel"`
	Imported int          `json:"imported"`
}

// ImportCSVHandler accepts either a multipart form with a "file" part or the
// raw CSV text as the request body.
func (h *APIHandler) ImportCSVHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	filename := "upload.csv"
	var text []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeUploadError(w, "Missing CSV file", err)
			return
		}
		defer file.Close()
		filename = header.Filename
		if text, err = io.ReadAll(file); err != nil {
			writeUploadError(w, "Failed to read CSV file", err)
			return
		}
	} else {
		if name := r.URL.Query().Get("filename"); name != "" {
			filename = name
		}
		var err error
		if text, err = io.ReadAll(r.Body); err != nil {
			writeUploadError(w, "Failed to read CSV body", err)
			return
		}
	}

	n, err := h.chatService.ImportCSV(chi.URLParam(r, "sessionID"), filename, string(text))
	if err != nil {
		h.writeError(w, r, err, "Failed to import CSV")
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Channel: core.ChannelCSV, Imported: n})
}

// writeUploadError answers 413 when the body hit the upload limit and 400 for
// any other read or form error.
func writeUploadError(w http.ResponseWriter, prefix string, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("CSV upload exceeds the %d byte limit", maxErr.Limit),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: prefix + ": " + err.Error()})
}

func (h *APIHandler) LoadDemoCSVHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.chatService.LoadDemoCSV(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err, "Failed to load demo CSV")
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Channel: core.ChannelCSV, Imported: n})
}

func (h *APIHandler) ConnectRemoteHandler(w http.ResponseWriter, r *http.Request) {
	var cfg core.RemoteConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	n, err := h.chatService.ConnectRemote(r.Context(), chi.URLParam(r, "sessionID"), cfg)
	if err != nil {
		h.writeError(w, r, err, "Failed to connect remote source")
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Channel: core.ChannelRemote, Imported: n})
}

func (h *APIHandler) ConnectRemoteDemoHandler(w http.ResponseWriter, r *http.Request) {
	var cfg core.RemoteConfig
	if r.Body != http.NoBody && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
			return
		}
	}
	n, err := h.chatService.ConnectRemoteDemo(chi.URLParam(r, "sessionID"), cfg)
	if err != nil {
		h.writeError(w, r, err, "Failed to load demo remote data")
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Channel: core.ChannelRemote, Imported: n})
}
