package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/async"
	"github.com/joseph-ayodele/claims-processor/internal/claims"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/export"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
	"github.com/joseph-ayodele/claims-processor/internal/repository"
)

// ClaimProcessor runs one claim synchronously.
type ClaimProcessor interface {
	ProcessClaim(ctx context.Context, uploads []ingest.Upload) (claims.ClaimResult, error)
}

// TextExtractor is the document text extractor with per-page detail.
type TextExtractor interface {
	ExtractResult(ctx context.Context, doc []byte) (ocr.Result, error)
}

// JobQueue accepts claims for background processing.
type JobQueue interface {
	Submit(ctx context.Context, job async.ClaimJob) (string, error)
	Status(id string) (constants.JobStatus, bool)
}

// Deps are the collaborators behind the HTTP and gRPC surfaces. Claims, Queue, Jobs,
// Exporter and Ping are optional; their routes are only mounted when set.
type Deps struct {
	Processor ClaimProcessor
	Extractor TextExtractor
	Claims    repository.ClaimRepository
	Queue     JobQueue
	Jobs      *JobTracker
	Exporter  *export.Service
	Ping      func(ctx context.Context) error
	Logger    *slog.Logger
}

// Handler serves the claim HTTP API.
type Handler struct {
	Deps
	maxUpload  int64
	formMemory int64 // multipart bytes kept in memory before spilling to temp files
}

func NewHandler(deps Deps, maxUploadBytes int64) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Queue != nil && deps.Jobs == nil {
		deps.Jobs = NewJobTracker()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &Handler{Deps: deps, maxUpload: maxUploadBytes, formMemory: 32 << 20}
}

// Router builds the chi router with the standard middleware stack.
func (h *Handler) Router(cfg common.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// credentials are only allowed for an explicit origin list, never for the wildcard
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	credentials := !slices.Contains(origins, "*")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
	}))

	r.Get("/health", h.Health)
	r.Post("/process-claim", h.ProcessClaim)
	r.Post("/extract-text", h.ExtractText)

	if h.Queue != nil {
		r.Post("/claims", h.SubmitClaim)
		r.Get("/jobs/{id}", h.GetJob)
	}
	if h.Exporter != nil {
		r.Get("/claims/export", h.ExportClaims)
	}
	if h.Claims != nil {
		r.Get("/claims/{id}", h.GetClaim)
	}
	return r
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg common.ServerConfig, h *Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           h.Router(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: h.Logger,
	}
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http.serve", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http.shutdown")
	return s.httpServer.Shutdown(ctx)
}

// requestID tags the request with an X-Request-Id, generating a uuid when the caller sent none.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		ctx = common.WithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := common.WithLogger(r.Context(), logger)
			next.ServeHTTP(ww, r.WithContext(ctx))
			common.LoggerFromContext(ctx, logger).Info("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
