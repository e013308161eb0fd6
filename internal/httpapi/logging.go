package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// unloggedPaths are probe noise; they stay out of the request log.
var unloggedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// requestLogger logs one line per request. 5xx answers log at warn so
// operator consoles surface them without debug verbosity.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if unloggedPaths[r.URL.Path] {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.log.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

// sseLogWriter tees complete stream lines to the logger. Enabled per request
// with the X-Debug-Stream header.
type sseLogWriter struct {
	log zerolog.Logger
	buf []byte
}

func (lw *sseLogWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := string(lw.buf[:idx]); line != "" {
			lw.log.Debug().Str("frame", line).Msg("stream")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
