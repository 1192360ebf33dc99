package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Logging logs one line per request with its outcome and latency.
func Logging(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			})

			switch {
			case rec.status >= 500:
				entry.Error("Request failed")
			case rec.status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request handled")
			}
		})
	}
}

// Recover turns a panic in a handler into a 500 response.
func Recover(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.WithFields(logrus.Fields{
						"panic": p,
						"path":  r.URL.Path,
					}).Error("Recovered from panic")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"success":false,"message":"Internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument logs every request, recovering panics inside the logged span so
// a crashed request still gets its line with status 500.
func Instrument(logger *logrus.Logger) func(http.Handler) http.Handler {
	logging := Logging(logger)
	recovering := Recover(logger)
	return func(next http.Handler) http.Handler {
		return logging(recovering(next))
	}
}
