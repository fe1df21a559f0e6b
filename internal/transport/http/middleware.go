package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger logs one line per request and stores a request-scoped logger
// in the context for handlers (zerolog.Ctx).
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lctx := logger.With()
			if id := middleware.GetReqID(r.Context()); id != "" {
				lctx = lctx.Str("request_id", id)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				lctx = lctx.Str("trace_id", sc.TraceID().String())
			}
			reqLogger := lctx.Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(reqLogger.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := reqLogger.Info()
			if status >= http.StatusInternalServerError {
				evt = reqLogger.Warn()
			}
			evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// userHeader carries the authenticated buyer id set by the gateway.
const userHeader = "X-User-ID"

func userID(r *http.Request) string {
	return r.Header.Get(userHeader)
}
