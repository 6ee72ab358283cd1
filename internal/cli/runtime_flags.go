package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/example/sentinel/internal/config"
)

// runtimeFlagSet tracks shared flags before they are converted into config overrides.
type runtimeFlagSet struct {
	listenAddr     string
	dataDir        string
	retentionDays  int
	noAudit        bool
	fetchMode      string
	logFormat      string
	logLevel       string
	tracing        bool
	model          string
	baseURL        string
	llmTimeout     time.Duration
	llmMaxRetries  int
	llmRPS         float64
	maxPromptChars int
	slackChannel   string
}

func bindRuntimeFlags(cmd *cobra.Command, flags *runtimeFlagSet) {
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "Directory for the audit database and reports")
	cmd.Flags().IntVar(&flags.retentionDays, "retention-days", 0, "Days to keep audit records (0 keeps everything)")
	cmd.Flags().BoolVar(&flags.noAudit, "no-audit", false, "Do not record analyses in the audit database")
	cmd.Flags().StringVar(&flags.fetchMode, "fetch-mode", "", "Repository fetch mode: api or clone")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "Log format: auto, json or console")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	cmd.Flags().BoolVar(&flags.tracing, "tracing", false, "Export OpenTelemetry spans to stderr")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model name sent to the LLM endpoint")
	cmd.Flags().StringVar(&flags.baseURL, "llm-base-url", "", "OpenAI-compatible endpoint base URL")
	cmd.Flags().DurationVar(&flags.llmTimeout, "llm-timeout", 0, "Timeout for one capability call")
	cmd.Flags().IntVar(&flags.llmMaxRetries, "llm-max-retries", 0, "Retries when the LLM endpoint rate limits")
	cmd.Flags().Float64Var(&flags.llmRPS, "llm-rps", 0, "LLM requests per second shared by all capabilities (0 = unlimited)")
	cmd.Flags().IntVar(&flags.maxPromptChars, "max-prompt-chars", 0, "Artifact characters sent per capability call (0 = unlimited)")
	cmd.Flags().StringVar(&flags.slackChannel, "slack-channel", "", "Slack channel for bot token delivery")
}

func bindListenFlag(cmd *cobra.Command, flags *runtimeFlagSet) {
	cmd.Flags().StringVar(&flags.listenAddr, "listen", "", "HTTP listen address")
}

func (f runtimeFlagSet) toOverrides(cmd *cobra.Command) config.Overrides {
	ov := config.Overrides{}
	changed := func(name string) bool {
		return cmd.Flags().Lookup(name) != nil && cmd.Flags().Changed(name)
	}

	if changed("listen") {
		ov.ListenAddr = f.listenAddr
	}

	if changed("data-dir") {
		ov.DataDir = f.dataDir
	}

	if changed("retention-days") {
		ov.RetentionDays = &f.retentionDays
	}

	if changed("no-audit") {
		audit := !f.noAudit
		ov.Audit = &audit
	}

	if changed("fetch-mode") {
		ov.FetchMode = f.fetchMode
	}

	if changed("log-format") {
		ov.LogFormat = f.logFormat
	}

	if changed("log-level") {
		ov.LogLevel = f.logLevel
	}

	if changed("tracing") {
		ov.Tracing = &f.tracing
	}

	if changed("model") {
		ov.Model = f.model
	}

	if changed("llm-base-url") {
		ov.BaseURL = f.baseURL
	}

	if changed("llm-timeout") {
		ov.LLMTimeout = &f.llmTimeout
	}

	if changed("llm-max-retries") {
		ov.LLMMaxRetries = &f.llmMaxRetries
	}

	if changed("llm-rps") {
		ov.RequestsPerSecond = &f.llmRPS
	}

	if changed("max-prompt-chars") {
		ov.MaxPromptChars = &f.maxPromptChars
	}

	if changed("slack-channel") {
		ov.SlackChannel = f.slackChannel
	}

	return ov
}
