package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hallpass-app/api/internal/platform/requestctx"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError writes a JSON error envelope with request correlation metadata.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := r.Context()

	resp := ErrorResponse{
		Error:   code,
		Message: message,
		Status:  status,
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		resp.RequestID = reqID
	}
	if traceID := requestctx.TraceID(ctx); traceID != "" {
		resp.TraceID = traceID
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		requestctx.Logger(ctx).Warn("failed to encode error response", zap.Error(err))
	}
}

// WriteInternalError logs the underlying error and responds with a generic 500.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	requestctx.Logger(r.Context()).Error("internal error", zap.Error(err))
	WriteError(w, r, http.StatusInternalServerError, "internal", "internal server error")
}
