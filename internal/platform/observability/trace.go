package observability

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hallpass-app/api/internal/platform/requestctx"
)

// TraceMiddleware extracts Cloud Trace identifiers from the request headers
// and records them in the request context before handlers run.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := parseCloudTraceHeader(r.Header.Get("X-Cloud-Trace-Context"), projectID)
			if info.TraceID != "" {
				ctx := requestctx.WithTrace(r.Context(), info)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseCloudTraceHeader parses "TRACE_ID/SPAN_ID;o=TRACE_TRUE" as sent by
// Google front ends. Malformed headers yield a zero TraceInfo.
func parseCloudTraceHeader(header, projectID string) requestctx.TraceInfo {
	header = strings.TrimSpace(header)
	if header == "" {
		return requestctx.TraceInfo{}
	}

	payload := header
	sampled := false
	if idx := strings.IndexByte(payload, ';'); idx >= 0 {
		opts := payload[idx+1:]
		payload = payload[:idx]
		sampled = strings.Contains(opts, "o=1")
	}

	traceID := payload
	spanID := ""
	if idx := strings.IndexByte(payload, '/'); idx >= 0 {
		traceID = payload[:idx]
		spanID = payload[idx+1:]
	}

	traceID = strings.TrimSpace(traceID)
	if len(traceID) != 32 || !isHex(traceID) {
		return requestctx.TraceInfo{}
	}

	// Span identifiers arrive as unsigned decimal integers.
	spanID = strings.TrimSpace(spanID)
	if spanID != "" {
		if _, err := strconv.ParseUint(spanID, 10, 64); err != nil {
			spanID = ""
		}
	}

	formatted := traceID
	if projectID != "" {
		formatted = "projects/" + projectID + "/traces/" + traceID
	}

	return requestctx.TraceInfo{
		TraceID: formatted,
		SpanID:  spanID,
		Sampled: sampled,
	}
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
