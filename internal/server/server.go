// Package server exposes receipt extraction and notes over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/metrics"
	"github.com/zombor/billnote/internal/note"
)

// DefaultMaxBodySize bounds request bodies, including base64 images
const DefaultMaxBodySize = 50 << 20

// Extractor runs an extraction for an identity
type Extractor interface {
	Extract(ctx context.Context, id auth.Identity, req extraction.Request) (*extraction.Result, error)
}

// Server handles HTTP requests for receipts and notes
type Server struct {
	notes       *note.Service
	extractor   Extractor
	verifier    *auth.Verifier
	metrics     *metrics.Metrics
	mux         *http.ServeMux
	handler     http.Handler
	origin      string
	maxBodySize int64
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves /metrics from m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAllowedOrigin sets the CORS origin. The default allows any origin.
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) { s.origin = origin }
}

// WithMaxBodySize overrides DefaultMaxBodySize
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBodySize = n }
}

// New creates a new Server with default mux
func New(notes *note.Service, extractor Extractor, verifier *auth.Verifier, opts ...Option) *Server {
	return NewWithMux(notes, extractor, verifier, http.NewServeMux(), opts...)
}

// NewWithMux creates a new Server with a custom mux for testing
func NewWithMux(notes *note.Service, extractor Extractor, verifier *auth.Verifier, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{
		notes:       notes,
		extractor:   extractor,
		verifier:    verifier,
		mux:         mux,
		origin:      "*",
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.handler = s.requestLogger(s.cors(s.mux))
	return s
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// receipts
	s.mux.HandleFunc("POST /api/receipts/extract", s.requireAuth(s.handleExtract))
	s.mux.HandleFunc("POST /api/receipts/scan", s.requireAuth(s.handleScan))
	s.mux.HandleFunc("POST /api/receipts/reconcile", s.requireAuth(s.handleReconcile))

	// notes, most specific paths first
	s.mux.HandleFunc("POST /api/notes/commit", s.requireAuth(s.handleCommit))
	s.mux.HandleFunc("PATCH /api/notes/{id}/items/{itemId}", s.requireAuth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/notes/{id}/items/{itemId}", s.requireAuth(s.handleDeleteItem))
	s.mux.HandleFunc("POST /api/notes/{id}/items", s.requireAuth(s.handleAddItem))
	s.mux.HandleFunc("GET /api/notes/{id}", s.requireAuth(s.handleGetNote))
	s.mux.HandleFunc("PATCH /api/notes/{id}", s.requireAuth(s.handleUpdateNote))
	s.mux.HandleFunc("DELETE /api/notes/{id}", s.requireAuth(s.handleDeleteNote))
	s.mux.HandleFunc("GET /api/notes", s.requireAuth(s.handleListNotes))
	s.mux.HandleFunc("POST /api/notes", s.requireAuth(s.handleCreateNote))

	s.mux.HandleFunc("GET /api/reports/summary", s.requireAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleCategories))
}

// Handler returns the mux wrapped with CORS and request logging. The chain
// is built once in NewWithMux.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
