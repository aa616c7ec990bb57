package apihttp

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/auth"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/rate"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// RequestID injects a request id into context and response header. An
// incoming X-Request-ID is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		r = r.WithContext(logging.WithRequestID(r.Context(), reqID))
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// Logger logs one line per request. The auth middleware runs deeper in the
// chain, so the api key prefix is read back through a holder it fills in.
func Logger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rlw := &respLogger{ResponseWriter: w, status: http.StatusOK}
			holder := &apiKeyHolder{}
			r = r.WithContext(context.WithValue(r.Context(), apiKeyHolderKey{}, holder))
			next.ServeHTTP(rlw, r)
			logging.FromContext(r.Context(), log).WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rlw.status,
				"dur_ms": time.Since(start).Milliseconds(),
				"ip":     rate.IPFromRequest(r),
				"api":    holder.hashPrefix,
			}).Info("request")
		})
	}
}

type apiKeyHolderKey struct{}

type apiKeyHolder struct{ hashPrefix string }

type respLogger struct {
	http.ResponseWriter
	status int
}

func (r *respLogger) WriteHeader(code int) { r.status = code; r.ResponseWriter.WriteHeader(code) }

// CORS allows cross-origin requests from browser clients.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Admin-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces per-client rate limiting.
func RateLimit(lm *rate.LimiterMap) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lm.Allow(rate.ClientKey(r)) {
				w.Header().Set("Retry-After", "60")
				jsonutil.Error(w, http.StatusTooManyRequests, "rate limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth validates the X-API-Key header using the provided store.
func Auth(store auth.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				jsonutil.Error(w, http.StatusUnauthorized, "missing api key")
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			ok, err := store.Validate(ctx, key)
			if err != nil {
				jsonutil.Error(w, http.StatusForbidden, "invalid api key")
				return
			}
			if !ok {
				jsonutil.Error(w, http.StatusForbidden, "invalid or inactive api key")
				return
			}
			hp := auth.HashPrefix(key)
			if holder, ok := r.Context().Value(apiKeyHolderKey{}).(*apiKeyHolder); ok {
				holder.hashPrefix = hp
			}
			r = r.WithContext(logging.WithAPIKey(r.Context(), hp))
			next.ServeHTTP(w, r)
		})
	}
}
