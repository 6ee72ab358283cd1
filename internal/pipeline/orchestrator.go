// Package pipeline sequences one analysis run: the wave-1 capability fan-out, remediation, risk scoring,
// the local signal pass and the escalation decision with its alert and audit side effects.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/sentinel/internal/analyzer"
	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/escalation"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/metrics"
	"github.com/example/sentinel/internal/model"
	"github.com/example/sentinel/internal/notify"
	"github.com/example/sentinel/internal/signals"
)

const (
	tracerName = "github.com/example/sentinel/internal/pipeline"

	// DefaultConfidence is used for escalation when the signal engine produced nothing.
	DefaultConfidence = 0.7

	// CleanSummary is the verdict summary when wave 1 reports nothing.
	CleanSummary = "No findings detected. System appears secure."

	defaultSideEffectTimeout = 30 * time.Second
)

// ErrMissingCapability is returned by New when a required capability is not wired.
var ErrMissingCapability = errors.New("pipeline: missing capability")

// Deps wires the orchestrator to its collaborators. Only the capabilities are required.
type Deps struct {
	Wave1       []analyzer.Analyzer
	Remediation analyzer.Analyzer
	Risk        analyzer.Analyzer

	Notifier notify.Notifier
	Audit    audit.Logger
	Metrics  *metrics.Metrics
	Events   events.Sink
	Tracer   trace.Tracer
	Now      func() time.Time

	// SideEffectTimeout bounds alert delivery and audit writes together.
	SideEffectTimeout time.Duration
}

// Orchestrator runs artifacts through the capability waves. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	wave1       []analyzer.Analyzer
	remediation analyzer.Analyzer
	risk        analyzer.Analyzer

	notifier          notify.Notifier
	audit             audit.Logger
	metrics           *metrics.Metrics
	events            events.Sink
	tracer            trace.Tracer
	now               func() time.Time
	sideEffectTimeout time.Duration
}

// Outcome is everything a run produced. Report is what callers return to users; the rest describes
// the decision taken about it.
type Outcome struct {
	Report    model.Report
	Decision  escalation.Decision
	Consensus map[string]string
	// Degraded lists the capabilities that failed during the run.
	Degraded []string
	// AlertSent is true when the notifier accepted the alert.
	AlertSent bool
	// AuditID is the vulnerability record id, empty when auditing is off or failed.
	AuditID string
}

// New validates deps and fills in defaults for optional collaborators.
func New(d Deps) (*Orchestrator, error) {
	if len(d.Wave1) == 0 {
		return nil, fmt.Errorf("%w: wave 1", ErrMissingCapability)
	}
	if d.Remediation == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingCapability, analyzer.Remediation)
	}
	if d.Risk == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingCapability, analyzer.Risk)
	}

	o := &Orchestrator{
		wave1:             d.Wave1,
		remediation:       d.Remediation,
		risk:              d.Risk,
		notifier:          d.Notifier,
		audit:             d.Audit,
		metrics:           d.Metrics,
		events:            d.Events,
		tracer:            d.Tracer,
		now:               d.Now,
		sideEffectTimeout: d.SideEffectTimeout,
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.audit == nil {
		o.audit = audit.Nop{}
	}
	if o.events == nil {
		o.events = events.Discard
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sideEffectTimeout <= 0 {
		o.sideEffectTimeout = defaultSideEffectTimeout
	}
	return o, nil
}

// FromRegistry builds the standard five-capability orchestrator from a registry.
func FromRegistry(reg analyzer.Registry, d Deps) (*Orchestrator, error) {
	wave1, err := reg.Build(analyzer.WaveOne)
	if err != nil {
		return nil, err
	}
	rest, err := reg.Build([]string{analyzer.Remediation, analyzer.Risk})
	if err != nil {
		return nil, err
	}
	d.Wave1 = wave1
	d.Remediation = rest[0]
	d.Risk = rest[1]
	return New(d)
}

// Run analyses one normalized artifact. origin, when set, is stamped on every finding as provenance.
// Run always yields a report: capability failures degrade to empty results and side effects never
// surface to the caller.
func (o *Orchestrator) Run(ctx context.Context, a model.Artifact, origin string) Outcome {
	start := o.now()
	runID := a.ID

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("sentinel.run_id", runID),
		attribute.String("sentinel.artifact_kind", string(a.Kind)),
	))
	defer span.End()

	logger := log.With().Str("run_id", runID).Str("artifact", string(a.Kind)).Logger()
	o.emit(runID, events.Event{
		Type:    events.TypeRunStarted,
		Message: "analysis started",
		Fields:  map[string]interface{}{"artifact_type": string(a.Kind), "origin": origin},
	})

	bundleCh := make(chan model.SignalBundle, 1)
	go func() {
		bundleCh <- signals.Run(a)
	}()

	content := ingest.AgentContent(a)

	// Wave 1.
	wave1 := make([]analyzer.Analyzer, len(o.wave1))
	for i, an := range o.wave1 {
		wave1[i] = o.instrument(runID, an)
	}
	outcomes := analyzer.Run(ctx, wave1, analyzer.Request{Content: content})

	var (
		findings  []model.Finding
		degraded  []string
		consensus = map[string]string{}
	)
	for _, out := range outcomes {
		if out.Err != nil {
			degraded = append(degraded, out.Name)
			logger.Warn().Err(out.Err).Str("capability", out.Name).Msg("capability failed, continuing without its findings")
			continue
		}
		tagged := model.TagAll(out.Result.Findings, origin)
		if top := model.HighestSeverity(tagged); top != "" {
			consensus[out.Name] = string(top)
		}
		findings = append(findings, tagged...)
	}
	waveOneCount := len(findings)

	// Wave 2.
	if len(findings) > 0 {
		rem := analyzer.Call(ctx, o.instrument(runID, o.remediation), analyzer.Request{Findings: cloneFindings(findings)})
		if rem.Err != nil {
			degraded = append(degraded, rem.Name)
			logger.Warn().Err(rem.Err).Str("capability", rem.Name).Msg("remediation failed, continuing without it")
		} else {
			findings = append(findings, model.TagAll(rem.Result.Findings, origin)...)
		}
	} else {
		o.emitSkipped(runID, analyzer.Remediation, "no findings to remediate")
	}

	// Wave 3 reads only wave-1 findings so remediation never counts twice.
	verdict, ok := o.assess(ctx, runID, findings[:waveOneCount], len(degraded) == 0, &logger)
	if !ok {
		degraded = append(degraded, analyzer.Risk)
	}

	bundle := <-bundleCh
	confidence := meanConfidence(bundle.Signals)

	level := escalation.LevelFor(verdict.Score, verdict.Status)
	decision := escalation.Evaluate(level, confidence, consensus)

	if findings == nil {
		findings = []model.Finding{}
	}
	report := model.Report{
		ID:           a.ID,
		Timestamp:    o.now().UTC(),
		OverallScore: verdict.Score,
		Findings:     findings,
		Summary:      verdict.Summary,
		Status:       verdict.Status,
		Signals:      &bundle,
	}

	o.emit(runID, events.Event{
		Type:    events.TypeSignals,
		Message: fmt.Sprintf("%d local signals", len(bundle.Signals)),
		Fields:  map[string]interface{}{"total": len(bundle.Signals), "avg_confidence": bundle.Analytics.AvgConfidence},
	})
	o.emit(runID, events.Event{
		Type:    events.TypeVerdict,
		Agent:   analyzer.DisplayName(analyzer.Risk),
		Message: verdict.Summary,
		Status:  verdict.Status,
		Fields:  map[string]interface{}{"overall_score": verdict.Score, "risk_level": string(decision.Level)},
	})

	out := Outcome{
		Report:    report,
		Decision:  decision,
		Consensus: consensus,
		Degraded:  degraded,
	}
	out.AuditID, out.AlertSent = o.sideEffects(ctx, a, origin, out, &logger)

	o.emit(runID, events.Event{
		Type:    events.TypeEscalation,
		Message: escalationMessage(decision, out.AlertSent),
		Status:  string(decision.Level),
		Fields: map[string]interface{}{
			"notify":       decision.Notify,
			"confidence":   decision.Confidence,
			"disagreement": decision.Disagreement,
			"alert_sent":   out.AlertSent,
		},
	})

	o.observe(out, o.now().Sub(start))
	span.SetAttributes(
		attribute.Int("sentinel.overall_score", report.OverallScore),
		attribute.String("sentinel.status", report.Status),
		attribute.String("sentinel.risk_level", string(decision.Level)),
		attribute.Bool("sentinel.notify", decision.Notify),
	)

	o.emit(runID, events.Event{
		Type:   events.TypeRunFinished,
		Status: report.Status,
		Fields: map[string]interface{}{"findings": len(report.Findings), "degraded": len(degraded)},
	})
	logger.Info().
		Int("score", report.OverallScore).
		Str("status", report.Status).
		Str("risk", string(decision.Level)).
		Int("findings", len(report.Findings)).
		Bool("notify", decision.Notify).
		Msg("analysis complete")

	return out
}

// assess runs the risk capability. A clean, fully healthy wave 1 skips the model entirely; any failure
// falls back to the conservative failed verdict.
func (o *Orchestrator) assess(ctx context.Context, runID string, findings []model.Finding, healthy bool, logger *zerolog.Logger) (model.Verdict, bool) {
	if len(findings) == 0 && healthy {
		o.emitSkipped(runID, analyzer.Risk, "no findings to score")
		return model.Verdict{Score: 100, Summary: CleanSummary, Status: model.StatusGo}, true
	}

	res := analyzer.Call(ctx, o.instrument(runID, o.risk), analyzer.Request{Findings: cloneFindings(findings)})
	if res.Err != nil {
		logger.Warn().Err(res.Err).Str("capability", res.Name).Msg("risk assessment failed, using conservative verdict")
		return analyzer.FailedVerdict(), false
	}
	if res.Result.Verdict == nil {
		logger.Warn().Str("capability", res.Name).Msg("risk assessment returned no verdict, using conservative verdict")
		return analyzer.FailedVerdict(), false
	}
	return normalizeVerdict(*res.Result.Verdict), true
}

func (o *Orchestrator) sideEffects(ctx context.Context, a model.Artifact, origin string, out Outcome, logger *zerolog.Logger) (string, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.sideEffectTimeout)
	defer cancel()

	auditID, err := o.audit.LogVulnerability(ctx, audit.Vulnerability{
		Artifact:     string(a.Kind),
		Risk:         string(out.Decision.Level),
		Confidence:   out.Decision.Confidence,
		AgentVotes:   out.Consensus,
		ArtifactID:   a.ID,
		Summary:      out.Report.Summary,
		Status:       out.Report.Status,
		OverallScore: out.Report.OverallScore,
	})
	if err != nil {
		logger.Error().Err(err).Msg("audit record not written")
		auditID = ""
	}

	o.metrics.ObserveEscalation(string(out.Decision.Level), out.Decision.Notify)
	if !out.Decision.Notify {
		return auditID, false
	}

	sent := o.safeNotify(ctx, notify.Alert{
		ArtifactID:   a.ID,
		ArtifactType: strings.ToUpper(string(a.Kind)),
		Level:        out.Decision.Level,
		Confidence:   out.Decision.Confidence,
		Consensus:    out.Consensus,
		DerivedFrom:  derivedFrom(a, origin),
	}, logger)
	o.metrics.ObserveAlert(sent)

	if sent && auditID != "" {
		if _, err := o.audit.LogAlert(ctx, auditID, audit.ChannelSlack); err != nil {
			logger.Error().Err(err).Str("vulnerability_id", auditID).Msg("alert record not written")
		}
	}
	return auditID, sent
}

func (o *Orchestrator) safeNotify(ctx context.Context, alert notify.Alert, logger *zerolog.Logger) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("notifier panicked")
			sent = false
		}
	}()
	return o.notifier.Notify(ctx, alert)
}

func (o *Orchestrator) observe(out Outcome, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveRun(out.Report.Status, string(out.Decision.Level), d)
	for _, f := range out.Report.Findings {
		o.metrics.AddFinding(analyzer.ShortName(f.Capability), string(f.Severity))
	}
	if out.Report.Signals != nil {
		for _, s := range out.Report.Signals.Signals {
			o.metrics.AddSignal(s.Type)
		}
	}
}

func (o *Orchestrator) emit(runID string, evt events.Event) {
	evt.RunID = runID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = o.now().UTC()
	}
	if err := o.events.Emit(evt); err != nil {
		log.Debug().Err(err).Str("run_id", runID).Msg("pipeline event dropped")
	}
}

func (o *Orchestrator) emitSkipped(runID, capability, reason string) {
	o.emit(runID, events.Event{
		Type:    events.TypeStage,
		Agent:   analyzer.DisplayName(capability),
		Message: reason,
		Status:  events.StatusSkipped,
	})
}

func meanConfidence(found []model.Signal) float64 {
	if len(found) == 0 {
		return DefaultConfidence
	}
	var sum float64
	for _, s := range found {
		sum += s.Confidence
	}
	return sum / float64(len(found))
}

// normalizeVerdict keeps capability output inside the report contract.
func normalizeVerdict(v model.Verdict) model.Verdict {
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 100 {
		v.Score = 100
	}
	if strings.EqualFold(strings.TrimSpace(v.Status), model.StatusGo) {
		v.Status = model.StatusGo
	} else {
		v.Status = model.StatusNoGo
	}
	return v
}

func cloneFindings(in []model.Finding) []model.Finding {
	out := make([]model.Finding, len(in))
	copy(out, in)
	return out
}

func derivedFrom(a model.Artifact, origin string) string {
	if origin != "" {
		return origin
	}
	return strings.ToUpper(string(a.Kind))
}

func escalationMessage(d escalation.Decision, sent bool) string {
	switch {
	case !d.Notify:
		return "no escalation"
	case sent:
		return "alert delivered"
	default:
		return "alert not delivered"
	}
}
