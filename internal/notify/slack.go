package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier delivers alerts. Notify reports whether the alert was delivered and never panics on
// delivery failures.
type Notifier interface {
	Notify(ctx context.Context, a Alert) bool
}

// Nop is a Notifier that never delivers anything.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Alert) bool { return false }

// ErrNotConfigured is returned when neither a bot token + channel nor a webhook URL is set.
var ErrNotConfigured = errors.New("slack is not configured")

const defaultSlackAPI = "https://slack.com/api"

// SlackConfig configures Slack delivery. A bot token with a channel takes precedence over a webhook URL.
type SlackConfig struct {
	BotToken     string
	Channel      string
	WebhookURL   string
	APIBase      string
	MaxRetries   int
	RetryBackoff time.Duration
	Client       *http.Client
}

// Slack posts alerts with chat.postMessage or an incoming webhook, retrying transient failures
// with exponential backoff.
type Slack struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlack builds a Slack notifier.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultSlackAPI
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Slack{cfg: cfg, client: client}
}

// Mode reports how messages are delivered: "bot", "webhook" or "" when disabled.
func (s *Slack) Mode() string {
	switch {
	case s.cfg.BotToken != "" && s.cfg.Channel != "":
		return "bot"
	case s.cfg.WebhookURL != "":
		return "webhook"
	default:
		return ""
	}
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, a Alert) bool {
	if err := s.Send(ctx, BuildMessage(a)); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			log.Warn().Str("component", "notify").Msg("Slack token/channel or webhook not set; notifications disabled")
		} else {
			log.Error().Err(err).Str("component", "notify").Str("artifact_id", a.ArtifactID).Msg("Slack alert failed")
		}
		return false
	}
	log.Info().Str("component", "notify").Str("artifact_id", a.ArtifactID).Str("risk", string(a.Level)).Msg("Slack alert sent")
	return true
}

// Send delivers a prepared message.
func (s *Slack) Send(ctx context.Context, msg Message) error {
	var url string
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	switch s.Mode() {
	case "bot":
		url = strings.TrimRight(s.cfg.APIBase, "/") + "/chat.postMessage"
		msg.Channel = s.cfg.Channel
		headers["Authorization"] = "Bearer " + s.cfg.BotToken
	case "webhook":
		url = s.cfg.WebhookURL
		msg.Channel = ""
	default:
		return ErrNotConfigured
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	backoff := s.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying Slack delivery after backoff")
			if err := wait(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}

		retry, err := s.sendOnce(ctx, url, headers, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Slack attempt failed")
		if !retry {
			break
		}
	}
	return lastErr
}

// sendOnce posts the payload and reports whether a failure is worth retrying.
func (s *Slack) sendOnce(ctx context.Context, url string, headers map[string]string, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			_ = wait(ctx, min(time.Duration(secs)*time.Second, 30*time.Second))
		}
		return true, fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("slack returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if s.Mode() == "bot" {
		var result struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return false, fmt.Errorf("decode slack response: %w", err)
		}
		if !result.OK {
			return result.Error == "ratelimited", fmt.Errorf("slack API error: %s", result.Error)
		}
	}
	return false, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
