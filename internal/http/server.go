// Package http exposes the ledger over a JSON API: the movement write path,
// cursor-paginated listings, the running balance and the period summaries.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"movimientos/internal/cache"
	"movimientos/internal/core"
	"movimientos/internal/ledger"
	"movimientos/internal/query"
)

// LedgerService is the write side the server depends on.
type LedgerService interface {
	AddMovement(ctx context.Context, in ledger.AddInput) (core.Movement, int64, error)
	DeleteMovement(ctx context.Context, id string) error
}

// QueryService is the read side the server depends on.
type QueryService interface {
	ListMovements(ctx context.Context, f query.Filters, pageSize int, cursor string) (query.Page, error)
	GetBalance(ctx context.Context) (int64, error)
	GetPeriodSummary(ctx context.Context, year, month int) (*core.Summary, error)
	GetRangeSummary(ctx context.Context, from, to core.Date) ([]core.Summary, error)
}

// Pinger reports backend reachability for the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes pagination limits and the read cache.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	CacheMaxSize    int
	CacheTTL        time.Duration
}

func defaultOptions() Options {
	return Options{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		CacheMaxSize:    256,
		CacheTTL:        30 * time.Second,
	}
}

type Server struct {
	http.Server
	ledger      LedgerService
	queries     QueryService
	pinger      Pinger
	rateLimiter *rateLimiter
	opts        Options

	// Read caches, dropped wholesale after every committed write so
	// responses never trail the ledger by more than one request.
	balanceCache *cache.LRUCache[int64]
	summaryCache *cache.LRUCache[*core.Summary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter for the write endpoints.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 write requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and caches, returning a ready-to-run server.
// pinger may be nil; readiness then only reports process liveness.
func NewServer(addr string, lg LedgerService, q QueryService, pinger Pinger, opts Options) *Server {
	def := defaultOptions()
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = def.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = def.MaxPageSize
	}
	if opts.CacheMaxSize <= 0 {
		opts.CacheMaxSize = def.CacheMaxSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:       lg,
		queries:      q,
		pinger:       pinger,
		rateLimiter:  newRateLimiter(),
		opts:         opts,
		balanceCache: cache.NewLRUCache[int64](opts.CacheMaxSize, opts.CacheTTL),
		summaryCache: cache.NewLRUCache[*core.Summary](opts.CacheMaxSize, opts.CacheTTL),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.balanceCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("POST /api/movements", s.withMiddleware(s.handleCreateMovement))
	mux.HandleFunc("GET /api/movements", s.withMiddleware(s.handleListMovements))
	mux.HandleFunc("DELETE /api/movements/{id}", s.withMiddleware(s.handleDeleteMovement))
	mux.HandleFunc("GET /api/balance", s.withMiddleware(s.handleGetBalance))
	mux.HandleFunc("GET /api/summary", s.withMiddleware(s.handleGetSummary))
	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleGetCategories))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateReadCaches drops every cached read. Called after each committed
// write; the next read repopulates from the store.
func (s *Server) invalidateReadCaches() {
	s.balanceCache.Clear()
	s.summaryCache.Clear()
}

// withMiddleware adds security headers, rate limiting on writes, and
// request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodDelete
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
