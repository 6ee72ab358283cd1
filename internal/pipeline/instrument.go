package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/sentinel/internal/analyzer"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/metrics"
)

var stageMessages = map[string]string{
	analyzer.Threat:      "Mapping attack surface and threat vectors...",
	analyzer.Security:    "Scanning codebase for vulnerabilities...",
	analyzer.SOC:         "Correlating log activity with known attack patterns...",
	analyzer.Remediation: "Drafting remediation plan...",
	analyzer.Risk:        "Scoring overall risk...",
}

// instrumented wraps a capability with stage events, a span and metrics for one run.
type instrumented struct {
	inner   analyzer.Analyzer
	runID   string
	sink    events.Sink
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func (o *Orchestrator) instrument(runID string, a analyzer.Analyzer) analyzer.Analyzer {
	return &instrumented{inner: a, runID: runID, sink: o.events, tracer: o.tracer, metrics: o.metrics}
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Analyze(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	name := i.inner.Name()
	agent := analyzer.DisplayName(name)

	ctx, span := i.tracer.Start(ctx, "capability."+name, trace.WithAttributes(
		attribute.String("sentinel.run_id", i.runID),
		attribute.String("sentinel.capability", name),
	))
	defer span.End()

	i.emit(events.Event{Type: events.TypeStage, Agent: agent, Message: stageMessages[name], Status: events.StatusWorking})

	start := time.Now()
	res, err := i.inner.Analyze(ctx, req)
	elapsed := time.Since(start)
	i.metrics.ObserveCapability(name, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		i.emit(events.Event{
			Type:    events.TypeStage,
			Agent:   agent,
			Message: err.Error(),
			Status:  events.StatusFailed,
		})
		return res, err
	}

	span.SetAttributes(attribute.Int("sentinel.findings", len(res.Findings)))
	i.emit(events.Event{
		Type:   events.TypeStage,
		Agent:  agent,
		Status: events.StatusDone,
		Fields: map[string]interface{}{
			"findings":    len(res.Findings),
			"duration_ms": elapsed.Milliseconds(),
		},
	})
	return res, nil
}

func (i *instrumented) emit(evt events.Event) {
	evt.RunID = i.runID
	if err := i.sink.Emit(evt); err != nil {
		log.Debug().Err(err).Str("run_id", i.runID).Msg("stage event dropped")
	}
}
