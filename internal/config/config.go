package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "sentinel.config.yml"
	DefaultEnvFile    = ".env"

	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.0-flash-001"

	FetchModeAPI   = "api"
	FetchModeClone = "clone"

	envListenAddr     = "SENTINEL_LISTEN_ADDR"
	envDataDir        = "SENTINEL_DATA_DIR"
	envRetentionDays  = "SENTINEL_RETENTION_DAYS"
	envAudit          = "SENTINEL_AUDIT"
	envFetchMode      = "SENTINEL_FETCH_MODE"
	envLogFormat      = "SENTINEL_LOG_FORMAT"
	envLogLevel       = "SENTINEL_LOG_LEVEL"
	envTracing        = "SENTINEL_TRACING"
	envLLMTimeout     = "SENTINEL_LLM_TIMEOUT"
	envLLMMaxRetries  = "SENTINEL_LLM_MAX_RETRIES"
	envLLMRPS         = "SENTINEL_LLM_RPS"
	envMaxPromptChars = "SENTINEL_MAX_PROMPT_CHARS"
	envGitHubToken    = "GITHUB_TOKEN"
	envAPIKey         = "OPENROUTER_API_KEY"
	envBaseURL        = "OPENROUTER_BASE_URL"
	envModel          = "MODEL_NAME"
	envSlackToken     = "SLACK_BOT_TOKEN"
	envSlackChannel   = "SLACK_CHANNEL_ID"
	envSlackWebhook   = "SLACK_WEBHOOK_URL"
)

var (
	validLogFormats = []string{"auto", "json", "console"}
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error"}
	validFetchModes = []string{FetchModeAPI, FetchModeClone}
)

// Loader merges configuration coming from files, the .env file, environment variables, and CLI flags.
type Loader struct {
	ConfigPath string
	EnvPath    string
}

// LLMConfig configures the language model behind every capability.
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	MaxPromptChars    int
}

// SlackConfig configures alert delivery. A bot token takes precedence over the webhook.
type SlackConfig struct {
	BotToken   string
	Channel    string
	WebhookURL string
}

// Enabled reports whether any Slack transport is configured.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" || s.WebhookURL != ""
}

// RuntimeConfig contains the fully merged settings required by sentinel sub-commands.
type RuntimeConfig struct {
	ListenAddr    string
	DataDir       string
	RetentionDays int
	Audit         bool
	FetchMode     string
	GitHubToken   string
	LogFormat     string
	LogLevel      string
	Tracing       bool
	LLM           LLMConfig
	Slack         SlackConfig
}

// Overrides captures values coming from the config file, env vars or CLI flags.
// Nil pointers and empty strings leave the current value untouched.
type Overrides struct {
	ListenAddr    string
	DataDir       string
	RetentionDays *int
	Audit         *bool
	FetchMode     string
	GitHubToken   string
	LogFormat     string
	LogLevel      string
	Tracing       *bool

	APIKey            string
	BaseURL           string
	Model             string
	LLMTimeout        *time.Duration
	LLMMaxRetries     *int
	RequestsPerSecond *float64
	MaxPromptChars    *int

	SlackBotToken   string
	SlackChannel    string
	SlackWebhookURL string
}

// DefaultRuntimeConfig returns the baseline configuration when no overrides are provided.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ListenAddr:    ":8000",
		DataDir:       "data",
		RetentionDays: 90,
		Audit:         true,
		FetchMode:     FetchModeAPI,
		LogFormat:     "auto",
		LogLevel:      "info",
		LLM: LLMConfig{
			BaseURL:           DefaultBaseURL,
			Model:             DefaultModel,
			Timeout:           90 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			MaxPromptChars:    60000,
		},
		Slack: SlackConfig{Channel: "general"},
	}
}

// Load resolves the final runtime configuration.
func (l Loader) Load(override Overrides) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	path := l.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	if fileExists(path) {
		fileOv, err := loadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.apply(fileOv)
	}

	dotenv, err := loadDotenv(l.envPath())
	if err != nil {
		return cfg, err
	}

	envOv, err := overridesFromEnv(lookupWith(dotenv))
	if err != nil {
		return cfg, err
	}
	cfg.apply(envOv)
	cfg.apply(override)

	return cfg, nil
}

func (l Loader) envPath() string {
	if l.EnvPath != "" {
		return l.EnvPath
	}
	return DefaultEnvFile
}

// Validate checks ranges and enums. A missing API key is not an error here: the server can start and
// report degraded capabilities, and doctor flags it.
func (c RuntimeConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen address cannot be empty")
	}

	if c.Audit && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data directory cannot be empty when auditing is enabled")
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must be zero or positive (got %d)", c.RetentionDays)
	}

	if !contains(validFetchModes, c.FetchMode) {
		return fmt.Errorf("fetch mode must be one of %s (got %q)", strings.Join(validFetchModes, ", "), c.FetchMode)
	}

	if !contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("log format must be one of %s (got %q)", strings.Join(validLogFormats, ", "), c.LogFormat)
	}

	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("log level must be one of %s (got %q)", strings.Join(validLogLevels, ", "), c.LogLevel)
	}

	if c.LLM.BaseURL == "" || !(strings.HasPrefix(c.LLM.BaseURL, "http://") || strings.HasPrefix(c.LLM.BaseURL, "https://")) {
		return fmt.Errorf("llm base URL must be an http(s) URL (got %q)", c.LLM.BaseURL)
	}

	if c.LLM.Model == "" {
		return errors.New("llm model must be specified")
	}

	if c.LLM.Timeout <= 0 || c.LLM.Timeout > 10*time.Minute {
		return fmt.Errorf("llm timeout must be positive and at most 10m (got %s)", c.LLM.Timeout)
	}

	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 10 {
		return fmt.Errorf("llm max retries must be between 0 and 10 (got %d)", c.LLM.MaxRetries)
	}

	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm requests per second cannot be negative (got %g)", c.LLM.RequestsPerSecond)
	}

	if c.LLM.MaxPromptChars < 0 {
		return fmt.Errorf("max prompt chars cannot be negative (got %d)", c.LLM.MaxPromptChars)
	}

	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return errors.New("slack channel must be set when a bot token is configured")
	}

	if w := c.Slack.WebhookURL; w != "" && !strings.HasPrefix(w, "https://") {
		return fmt.Errorf("slack webhook URL must use https (got %q)", w)
	}

	return nil
}

func (c *RuntimeConfig) apply(src Overrides) {
	setString(&c.ListenAddr, src.ListenAddr)
	setString(&c.DataDir, src.DataDir)
	setString(&c.FetchMode, strings.ToLower(src.FetchMode))
	setString(&c.GitHubToken, src.GitHubToken)
	setString(&c.LogFormat, strings.ToLower(src.LogFormat))
	setString(&c.LogLevel, strings.ToLower(src.LogLevel))

	if src.RetentionDays != nil {
		c.RetentionDays = *src.RetentionDays
	}
	if src.Audit != nil {
		c.Audit = *src.Audit
	}
	if src.Tracing != nil {
		c.Tracing = *src.Tracing
	}

	setString(&c.LLM.APIKey, src.APIKey)
	setString(&c.LLM.BaseURL, strings.TrimRight(src.BaseURL, "/"))
	setString(&c.LLM.Model, src.Model)
	if src.LLMTimeout != nil {
		c.LLM.Timeout = *src.LLMTimeout
	}
	if src.LLMMaxRetries != nil {
		c.LLM.MaxRetries = *src.LLMMaxRetries
	}
	if src.RequestsPerSecond != nil {
		c.LLM.RequestsPerSecond = *src.RequestsPerSecond
	}
	if src.MaxPromptChars != nil {
		c.LLM.MaxPromptChars = *src.MaxPromptChars
	}

	setString(&c.Slack.BotToken, src.SlackBotToken)
	setString(&c.Slack.Channel, src.SlackChannel)
	setString(&c.Slack.WebhookURL, src.SlackWebhookURL)
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func loadFromFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, err
	}

	type rawLLM struct {
		APIKey            string   `yaml:"apiKey"`
		BaseURL           string   `yaml:"baseURL"`
		Model             string   `yaml:"model"`
		Timeout           string   `yaml:"timeout"`
		MaxRetries        *int     `yaml:"maxRetries"`
		RequestsPerSecond *float64 `yaml:"requestsPerSecond"`
		MaxPromptChars    *int     `yaml:"maxPromptChars"`
	}
	type rawSlack struct {
		BotToken   string `yaml:"botToken"`
		Channel    string `yaml:"channel"`
		WebhookURL string `yaml:"webhookURL"`
	}
	type rawConfig struct {
		ListenAddr    string   `yaml:"listenAddr"`
		DataDir       string   `yaml:"dataDir"`
		RetentionDays *int     `yaml:"retentionDays"`
		Audit         *bool    `yaml:"audit"`
		FetchMode     string   `yaml:"fetchMode"`
		GitHubToken   string   `yaml:"githubToken"`
		LogFormat     string   `yaml:"logFormat"`
		LogLevel      string   `yaml:"logLevel"`
		Tracing       *bool    `yaml:"tracing"`
		LLM           rawLLM   `yaml:"llm"`
		Slack         rawSlack `yaml:"slack"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Overrides{}, err
	}

	over := Overrides{
		ListenAddr:        raw.ListenAddr,
		DataDir:           raw.DataDir,
		RetentionDays:     raw.RetentionDays,
		Audit:             raw.Audit,
		FetchMode:         raw.FetchMode,
		GitHubToken:       raw.GitHubToken,
		LogFormat:         raw.LogFormat,
		LogLevel:          raw.LogLevel,
		Tracing:           raw.Tracing,
		APIKey:            raw.LLM.APIKey,
		BaseURL:           raw.LLM.BaseURL,
		Model:             raw.LLM.Model,
		LLMMaxRetries:     raw.LLM.MaxRetries,
		RequestsPerSecond: raw.LLM.RequestsPerSecond,
		MaxPromptChars:    raw.LLM.MaxPromptChars,
		SlackBotToken:     raw.Slack.BotToken,
		SlackChannel:      raw.Slack.Channel,
		SlackWebhookURL:   raw.Slack.WebhookURL,
	}

	if raw.LLM.Timeout != "" {
		d, err := time.ParseDuration(raw.LLM.Timeout)
		if err != nil {
			return Overrides{}, fmt.Errorf("llm.timeout: %w", err)
		}
		over.LLMTimeout = &d
	}

	return over, nil
}

// loadDotenv reads the .env file when present. Its values only fill gaps left by the real environment.
func loadDotenv(path string) (map[string]string, error) {
	if !fileExists(path) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	return values, nil
}

func lookupWith(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return dotenv[key]
	}
}

func overridesFromEnv(getenv func(string) string) (Overrides, error) {
	ov := Overrides{
		ListenAddr:      getenv(envListenAddr),
		DataDir:         getenv(envDataDir),
		FetchMode:       getenv(envFetchMode),
		GitHubToken:     getenv(envGitHubToken),
		LogFormat:       getenv(envLogFormat),
		LogLevel:        getenv(envLogLevel),
		APIKey:          getenv(envAPIKey),
		BaseURL:         getenv(envBaseURL),
		Model:           getenv(envModel),
		SlackBotToken:   getenv(envSlackToken),
		SlackChannel:    getenv(envSlackChannel),
		SlackWebhookURL: getenv(envSlackWebhook),
	}

	var err error
	if ov.RetentionDays, err = intEnv(getenv, envRetentionDays); err != nil {
		return ov, err
	}
	if ov.LLMMaxRetries, err = intEnv(getenv, envLLMMaxRetries); err != nil {
		return ov, err
	}
	if ov.MaxPromptChars, err = intEnv(getenv, envMaxPromptChars); err != nil {
		return ov, err
	}

	if value := getenv(envAudit); value != "" {
		parsed := ParseBool(value)
		ov.Audit = &parsed
	}
	if value := getenv(envTracing); value != "" {
		parsed := ParseBool(value)
		ov.Tracing = &parsed
	}

	if value := getenv(envLLMTimeout); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envLLMTimeout, err)
		}
		ov.LLMTimeout = &d
	}

	if value := getenv(envLLMRPS); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envLLMRPS, err)
		}
		ov.RequestsPerSecond = &f
	}

	return ov, nil
}

func intEnv(getenv func(string) string, key string) (*int, error) {
	value := getenv(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &parsed, nil
}

// ParseBool accepts true/1/yes/on in any case; everything else is false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func contains(values []string, candidate string) bool {
	for _, v := range values {
		if v == candidate {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
