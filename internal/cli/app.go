package cli

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/example/sentinel/internal/analyzer"
	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/config"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/llm"
	"github.com/example/sentinel/internal/metrics"
	"github.com/example/sentinel/internal/notify"
	"github.com/example/sentinel/internal/pipeline"
	"github.com/example/sentinel/internal/tracing"
)

// Constructors for the outbound collaborators. Tests swap them for fakes.
var (
	newCompleter = func(cfg config.LLMConfig) (analyzer.Completer, error) {
		return llm.New(llm.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			MaxRetries:        cfg.MaxRetries,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	}
	newNotifier = func(cfg config.SlackConfig) notify.Notifier {
		return notify.NewSlack(notify.SlackConfig{
			BotToken:   cfg.BotToken,
			Channel:    cfg.Channel,
			WebhookURL: cfg.WebhookURL,
			MaxRetries: 3,
		})
	}
)

// app holds the wired pipeline and its collaborators for one command invocation.
type app struct {
	cfg          config.RuntimeConfig
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	store        *audit.SQLiteStore
	audit        audit.Logger
	notifier     notify.Notifier
	orchestrator *pipeline.Orchestrator
	pdf          *ingest.PDFExtractor
	repos        ingest.RepositoryFetcher
	stopTracing  tracing.ShutdownFunc
}

func newApp(ctx context.Context, cfg config.RuntimeConfig, sink events.Sink) (*app, error) {
	a := &app{cfg: cfg, audit: audit.Nop{}}

	stop, err := tracing.Init(ctx, tracing.Config{Enabled: cfg.Tracing, Version: version, Output: os.Stderr})
	if err != nil {
		return nil, err
	}
	a.stopTracing = stop

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if cfg.Audit {
		store, err := audit.NewSQLiteStore(audit.SQLiteConfig{DataDir: cfg.DataDir, RetentionDays: cfg.RetentionDays})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.store = store
		a.audit = store
	}

	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.notifier = newNotifier(cfg.Slack)

	reg := analyzer.NewRegistry(completer, analyzer.Budget{MaxChars: cfg.LLM.MaxPromptChars})
	a.orchestrator, err = pipeline.FromRegistry(reg, pipeline.Deps{
		Notifier: a.notifier,
		Audit:    a.audit,
		Metrics:  a.metrics,
		Events:   sink,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.pdf = ingest.NewPDFExtractor(nil)
	if cfg.FetchMode == config.FetchModeClone {
		a.repos = ingest.NewCloneFetcher(gitRunner(), "")
	} else {
		gh := ingest.NewGitHubFetcher(nil)
		gh.Token = cfg.GitHubToken
		a.repos = gh
	}
	return a, nil
}

// Close flushes spans and closes the audit store.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close audit store")
		}
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush spans")
		}
	}
}
