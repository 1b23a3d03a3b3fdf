package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// APIKeyMiddleware requires the X-API-Key header to match requiredKey.
// An empty requiredKey disables the check.
func APIKeyMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				respondWithError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request with logrus.
func RequestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			entry := logger.WithFields(logrus.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"status_code": ww.Status(),
				"method":      r.Method,
				"path":        r.URL.Path,
				"latency_ms":  time.Since(start).Milliseconds(),
				"client_ip":   r.RemoteAddr,
			})
			switch {
			case ww.Status() >= 500:
				entry.Error("Request handled")
			case ww.Status() >= 400:
				entry.Warn("Request handled")
			default:
				entry.Info("Request handled")
			}
		})
	}
}
