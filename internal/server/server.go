// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/metrics"
	"github.com/example/sentinel/internal/model"
	"github.com/example/sentinel/internal/notify"
	"github.com/example/sentinel/internal/pipeline"
	"github.com/example/sentinel/internal/tracing"
)

const (
	defaultMaxUploadBytes = 50 << 20
	shutdownTimeout       = 15 * time.Second
)

// Pipeline runs one artifact through the analysis waves.
type Pipeline interface {
	Run(ctx context.Context, a model.Artifact, origin string) pipeline.Outcome
}

// PDFSource normalizes PDF submissions.
type PDFSource interface {
	FromBytes(ctx context.Context, data []byte, source string) (model.Artifact, error)
	FromURL(ctx context.Context, url string) (model.Artifact, error)
	FromBase64(ctx context.Context, payload, filename string) (model.Artifact, error)
}

// Deps are the collaborators behind the routes. Pipeline is required; the rest fall back to
// inert implementations.
type Deps struct {
	Pipeline       Pipeline
	PDF            PDFSource
	Repositories   ingest.RepositoryFetcher
	Audit          audit.Logger
	Notifier       notify.Notifier
	Hub            *events.Hub
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Tracing        bool
	MaxUploadBytes int64
}

func (d *Deps) defaults() {
	if d.PDF == nil {
		d.PDF = ingest.NewPDFExtractor(nil)
	}
	if d.Repositories == nil {
		d.Repositories = ingest.NewGitHubFetcher(nil)
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUploadBytes
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	d.defaults()

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	if d.Tracing {
		router.Use(otelgin.Middleware(tracing.ServiceName))
	}
	router.MaxMultipartMemory = d.MaxUploadBytes

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", HandleAnalyze(d))
		analyze := v1.Group("/analyze")
		{
			analyze.POST("/pdf/upload", HandlePDFUpload(d))
			analyze.POST("/pdf/url", HandlePDFURL(d))
			analyze.POST("/pdf/base64", HandlePDFBase64(d))
			analyze.POST("/github", HandleGitHub(d))
		}
		v1.GET("/vulnerabilities", ListVulnerabilities(d))
		if d.Hub != nil {
			v1.GET("/ws/monitor", HandleMonitor(d.Hub))
		}
	}

	internal := router.Group("/internal")
	{
		internal.POST("/test/slack", HandleTestSlack(d))
	}
	return router
}

// Server wraps the HTTP listener.
type Server struct {
	srv *http.Server
}

// New creates a server listening on addr.
func New(addr string, d Deps) *Server {
	return &Server{srv: &http.Server{
		Addr:    addr,
		Handler: NewRouter(d),
		// ReadTimeout would also cut websocket connections after the upgrade.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

// Handler returns the underlying handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
