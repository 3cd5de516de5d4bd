// Package server exposes the report, listing, view and upload endpoints.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/agentic-research/genframe/internal/archive"
	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/report"
	"github.com/agentic-research/genframe/internal/views"
)

const (
	greeting       = "Hi, Welcome to COBOL Utility API (Secure)"
	reportFilename = "COBOL_Analysis.xlsx"
)

// Server holds the collaborators behind the HTTP routes. Graph, Views and
// Archives are required; Artifacts may be nil.
type Server struct {
	Graph     graph.SessionFactory
	Artifacts report.ArtifactSource
	Views     views.Store
	Stager    archive.Stager
	Archives  *archive.Ingestor

	// MaxUploadBytes bounds the multipart body of /upload. Zero disables
	// the limit.
	MaxUploadBytes int64
	Logger         *slog.Logger

	now func() time.Time
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Handler returns the routed handler with CORS, panic recovery and request
// logging applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleGreeting)
	r.Get("/report", s.handleReport)
	r.Get("/jclNodes", s.handleJCLNodes)
	r.Get("/allPrograms", s.handleAllPrograms)
	r.Post("/save-views", s.handleSaveViews)
	r.Delete("/delete/{id}", s.handleDeleteView)
	r.Post("/upload", s.handleUpload)
	r.Get("/health", s.handleHealth)

	return newCORS().Handler(r)
}

// newCORS allows every origin.
func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowOriginFunc: func(origin string) bool { return true },
		AllowedHeaders:  []string{"*"},
		ExposedHeaders:  []string{"Content-Disposition"},
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger().Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
