package http

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campus-enroll/registration-hub/internal/interface/http/handlers"
	"github.com/campus-enroll/registration-hub/pkg/logger"
)

// middleware lists the stack outermost first. Metrics sits directly on the
// mux so r.Pattern is set by the time it reads it.
func (s *Server) middleware() []handlers.MiddlewareFunc {
	var mws []handlers.MiddlewareFunc
	if s.limiter != nil {
		mws = append(mws, s.rateLimit)
	}
	if s.config.EnableCORS {
		mws = append(mws, s.cors)
	}
	mws = append(mws,
		s.requestID,
		s.recoverPanics,
		s.accessLog,
		handlers.SecurityHeadersMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)
	if s.deps.Metrics != nil {
		mws = append(mws, s.observe)
	}
	return mws
}

type requestIDKey struct{}

// requestID propagates X-Request-ID, minting one when absent, and puts a
// logger carrying it into the request context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithContext(ctx, s.log.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordStatus(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		log := s.log.Info
		if rec.status >= http.StatusInternalServerError {
			log = s.log.Warn
		}
		log("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

// observe labels the request by the matched route pattern so path parameters
// do not explode the label set.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordStatus(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.FromContext(r.Context()).Error("panic recovered",
				logger.Any("panic", v),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
			)
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", "Authorization", s.config.APIKeyHeader, "X-Request-ID"}, ", ")
	anyOrigin := slices.Contains(s.config.AllowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (anyOrigin || slices.Contains(s.config.AllowedOrigins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit fails open: a limiter error is logged and the request served.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.limiter.Allow(r.Context(), getClientIP(r))
		if err != nil {
			s.log.Warn("rate limiter unavailable", logger.Err(err))
			ok = true
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Limiter decides whether key may make one more request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowLimiter counts requests per key in fixed windows. All counters reset
// together when the window rolls over.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	slot   int64
	counts map[string]int
}

func newWindowLimiter(limit int, window time.Duration, now func() time.Time) *windowLimiter {
	return &windowLimiter{limit: limit, window: window, now: now, counts: make(map[string]int)}
}

func (l *windowLimiter) Allow(_ context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.slot {
		l.slot = slot
		clear(l.counts)
	}
	l.counts[key]++
	return l.counts[key] <= l.limit, nil
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status, rec.wroteHeader = code, true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func getClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func getQueryParamInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return n
}

func getQueryParamBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return strings.EqualFold(r.URL.Query().Get(key), "yes")
	}
	return b
}
