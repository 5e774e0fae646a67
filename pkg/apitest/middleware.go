package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/eventlog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// GetRequestID returns the request id stored in ctx by the server.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	w      http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{w, http.StatusOK}
}

func (l *statusRecorder) WriteHeader(code int) {
	l.status = code
	l.w.WriteHeader(code)
}

func (l *statusRecorder) Write(b []byte) (int, error) {
	return l.w.Write(b)
}

func (l *statusRecorder) Header() http.Header {
	return l.w.Header()
}

func (l *statusRecorder) Status() int {
	return l.status
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				log.Errorf("[requestIDMiddleware] failed to generate request ID for %v: %v", r.RemoteAddr, err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			reqID = id.String()
			log.Debugf("[requestIDMiddleware] generated request ID:%s for %v", reqID, r.RemoteAddr)
		}

		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, X-Request-Id")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request and hands it to the recorder when one is set.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := newStatusRecorder(w)
		defer func() {
			s.mu.Lock()
			rec, service := s.rec, s.serviceName
			s.mu.Unlock()

			entry := eventlog.Entry{
				Timestamp:  time.Now(),
				StatusCode: lw.Status(),
				RequestID:  GetRequestID(r.Context()),
				Method:     r.Method,
				Path:       r.URL.Path,
				Duration:   time.Since(start).Seconds(),
				Service:    service,
			}
			log.Debugf("[loggingMiddleware][%s] %s %s -> %d", eventlog.Shorten(entry.RequestID), entry.Method, entry.Path, entry.StatusCode)

			if rec != nil {
				rec.Record(entry)
			}
		}()

		next.ServeHTTP(lw, r)
	})
}

// faultMiddleware runs BeforeHandle hooks and serves failures queued with FailNext.
func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}
		name := route.GetName()

		s.mu.Lock()
		hook := s.hooks[name]
		var f *failure
		if queued := s.failures[name]; len(queued) > 0 {
			f = &queued[0]
			s.failures[name] = queued[1:]
		}
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if f != nil {
			log.Debugf("[faultMiddleware] injected %d on %s", f.status, name)
			if f.message == "" {
				w.WriteHeader(f.status)
				return
			}
			writeError(w, f.status, f.message)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		s.mu.Lock()
		uid, found := s.tokens[token]
		s.mu.Unlock()
		if !found {
			log.Debugf("[authMiddleware][%s] unknown token", eventlog.Shorten(GetRequestID(r.Context())))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		log.Errorf("[writeError] failed to encode error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[writeJSON] failed to encode response: %v", err)
	}
}
