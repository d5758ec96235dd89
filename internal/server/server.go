// Package server exposes the document store over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/compliance-rag/internal/audit"
	"github.com/ziadkadry99/compliance-rag/internal/rag"
)

// Store is the document store the handlers call. rag.Service implements it.
type Store interface {
	Upload(ctx context.Context, data []byte, filename string) (*rag.UploadResult, error)
	Ask(ctx context.Context, question, docID string) (*rag.Answer, error)
	List(ctx context.Context) ([]rag.DocumentInfo, error)
	Delete(ctx context.Context, docID string) error
	Reset(ctx context.Context) error
	Sweep(ctx context.Context, now time.Time, window time.Duration) (*rag.SweepResult, error)
}

// Config holds server configuration.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// CORSOrigins lists allowed browser origins. Empty allows any.
	CORSOrigins []string
	// RetentionWindow is used by POST /api/sweep when no window is given.
	RetentionWindow time.Duration
}

// Server is the HTTP front end of the document store.
type Server struct {
	cfg        Config
	store      Store
	audit      *audit.Store
	now        func() time.Time
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. auditStore may be nil, in which case the audit
// endpoints are not mounted.
func New(cfg Config, store Store, auditStore *audit.Store) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		cfg:   cfg,
		store: store,
		audit: auditStore,
		now:   time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "compliance-rag"})
	})

	r.Route("/api", func(r chi.Router) {
		// The socket outlives any single request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			})
			r.Post("/upload", s.handleUpload)
			r.Post("/ask", s.handleAsk)
			r.Get("/documents", s.handleList)
			r.Delete("/documents/{id}", s.handleDelete)
			r.Post("/reset", s.handleReset)
			r.Post("/sweep", s.handleSweep)

			if s.audit != nil {
				audit.RegisterRoutes(r, s.audit)
			}
		})
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("crag server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
