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

	"presupuesto/internal/cache"
	"presupuesto/internal/core"
	"presupuesto/internal/services"
)

type Server struct {
	http.Server
	budget      *services.BudgetService
	rateLimiter *rateLimiter

	// Read-side caches, keyed by scope and dropped on any mutation.
	summaryCache  *cache.LRUCache[core.Summary]
	varianceCache *cache.LRUCache[core.VarianceReport]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, budget *services.BudgetService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		budget:        budget,
		rateLimiter:   newRateLimiter(),
		summaryCache:  cache.NewLRUCache[core.Summary](200, 5*time.Minute),
		varianceCache: cache.NewLRUCache[core.VarianceReport](200, time.Minute),
		cacheManager:  cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.varianceCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/budget", s.protected(s.handleGetBudget))
	mux.HandleFunc("GET /api/budget/items", s.protected(s.handleGetBudget))
	mux.HandleFunc("GET /api/budget/items/{uid}", s.protected(s.handleGetItem))
	mux.HandleFunc("POST /api/budget/items", s.protected(s.handleCreateItem))
	mux.HandleFunc("PUT /api/budget/items/{uid}", s.protected(s.handleUpdateItem))
	mux.HandleFunc("DELETE /api/budget/items/{uid}", s.protected(s.handleDeleteItem))
	mux.HandleFunc("POST /api/budget/bulk/preview", s.protected(s.handleBulkPreview))
	mux.HandleFunc("POST /api/budget/bulk/commit", s.protected(s.handleBulkCommit))
	mux.HandleFunc("GET /api/budget/summary", s.protected(s.handleSummary))
	mux.HandleFunc("GET /api/budget/report", s.protected(s.handleReport))
	mux.HandleFunc("GET /api/budget/export.csv", s.protected(s.handleExportCSV))
	mux.HandleFunc("GET /api/budget/template.csv", s.protected(s.handleTemplateCSV))
	mux.HandleFunc("GET /api/execution", s.protected(s.handleExecution))
	mux.HandleFunc("GET /api/expenses", s.protected(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.protected(s.handleCreateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.protected(s.handleDeleteExpense))

	return s
}

// Shutdown stops the HTTP server, flushes pending snapshot saves and
// tears down the background cleanup loops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
		if err := s.budget.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	})
	return shutdownErr
}

// protected adds security headers, request logging with a request id,
// and rate limiting on mutating methods.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

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

		if mutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
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
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter, 60 mutations per client per minute.
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

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
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
