package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"vigil/internal/domain"
	"vigil/internal/state"
)

// HTTPHandler exposes heartbeat recording over HTTP.
// Params: recorder, request body limit, and logger.
// Returns: handler registering the ping routes.
type HTTPHandler struct {
	recorder    *Recorder
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates ingest HTTP handler.
// Params: recorder, max request body size in bytes, and logger.
// Returns: configured handler.
func NewHTTPHandler(recorder *Recorder, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{recorder: recorder, maxBodySize: maxBodySize, logger: logger}
}

// Register mounts the ping routes on a mux.
// Params: target mux.
// Returns: nothing; a bare ping reports success, suffixed routes report
// start and fail.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /ping/{id}", h.handle(domain.PingSuccess))
	mux.HandleFunc("POST /ping/{id}/start", h.handle(domain.PingStart))
	mux.HandleFunc("POST /ping/{id}/fail", h.handle(domain.PingFail))
}

// handle builds the route handler for one ping kind.
// Params: ping kind bound to the route.
// Returns: handler func reading the body as raw payload and the optional
// run query parameter as the run-correlation token.
func (h *HTTPHandler) handle(kind domain.PingKind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
		defer request.Body.Close()
		body, err := io.ReadAll(request.Body)
		if err != nil {
			http.Error(writer, "body too large or unreadable", http.StatusBadRequest)
			return
		}

		monitorID := request.PathValue("id")
		runID := request.URL.Query().Get("run")

		result, err := h.recorder.Record(request.Context(), monitorID, kind, string(body), "http", runID)
		switch {
		case errors.Is(err, state.ErrNotFound):
			http.Error(writer, "unknown monitor", http.StatusNotFound)
			return
		case err != nil:
			h.logger.Error("ping ingestion failed", "monitor", monitorID, "kind", string(kind), "error", err.Error())
			http.Error(writer, "internal error", http.StatusInternalServerError)
			return
		}

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(writer).Encode(result); err != nil {
			h.logger.Warn("ping response encode failed", "monitor", monitorID, "error", err.Error())
		}
	}
}
