package httpapi

import (
	"io"
	"net/http"

	"fleetd/pkg/types"
)

// countingWriter tracks whether any stream bytes reached the client, so a
// pre-first-byte failure can still answer with a JSON error.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "messages are required")
		return
	}
	if r.Header.Get("X-Force-Override") == "1" {
		req.Force = true
	}

	// Join the shutdown context with the request context so either side
	// cancels in-flight upstream work.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	if !req.Stream {
		resp, err := s.chat.Complete(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	cw := &countingWriter{w: w}
	out := io.Writer(cw)
	if r.Header.Get("X-Debug-Stream") == "1" {
		out = io.MultiWriter(cw, &sseLogWriter{log: s.log})
	}
	if err := s.chat.StreamTo(ctx, req, out, flush); err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if cw.n == 0 {
			writeError(w, err)
			return
		}
		// Frames already reached the client; the truncated stream is the
		// only possible signal at this point.
		s.log.Warn().Err(err).Msg("stream aborted mid-flight")
	}
}
