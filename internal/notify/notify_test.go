package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sentinel/internal/model"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(Alert{
		ArtifactType: "PDF_DOCUMENT",
		Level:        model.RiskHigh,
		Confidence:   0.826,
		Consensus:    map[string]string{"threat": "high", "security": "MEDIUM", "soc": "low"},
		DerivedFrom:  "PDF_DOCUMENT",
	})

	assert.Equal(t, "🚨 Security Risk Detected", msg.Text)
	require.Len(t, msg.Blocks, 4)
	assert.Equal(t, "header", msg.Blocks[0].Type)
	assert.Equal(t, &TextObject{Type: "plain_text", Text: "🚨 Security Risk Detected", Emoji: true}, msg.Blocks[0].Text)

	assert.Equal(t, []TextObject{
		{Type: "mrkdwn", Text: "*Artifact Type*\nPDF_DOCUMENT"},
		{Type: "mrkdwn", Text: "*Risk Level*\n🔴 HIGH"},
		{Type: "mrkdwn", Text: "*Confidence*\n82%"},
		{Type: "mrkdwn", Text: "*Source*\nDerived from: PDF_DOCUMENT"},
	}, msg.Blocks[1].Fields)
	assert.Equal(t, "divider", msg.Blocks[2].Type)
	assert.Equal(t, "*Agent Consensus Summary*\nThreat: HIGH, Security: MEDIUM, SOC: LOW", msg.Blocks[3].Text.Text)
}

func TestBuildMessageDefaults(t *testing.T) {
	msg := BuildMessage(Alert{Level: model.RiskMedium, Confidence: 0.5})
	fields := msg.Blocks[1].Fields
	assert.Equal(t, "*Artifact Type*\nUnknown", fields[0].Text)
	assert.Equal(t, "*Risk Level*\n🟠 MEDIUM", fields[1].Text)
	assert.Equal(t, "*Source*\nDerived from: Text/Code/Logs", fields[3].Text)
	assert.Equal(t, "*Agent Consensus Summary*\nThreat: N/A, Security: N/A, SOC: N/A", msg.Blocks[3].Text.Text)

	low := BuildMessage(Alert{Level: model.RiskLow})
	assert.Equal(t, "*Risk Level*\n🟢 LOW", low.Blocks[1].Fields[1].Text)
}

func TestDividerSerializesBare(t *testing.T) {
	data, err := json.Marshal(Block{Type: "divider"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "divider"}`, string(data))
}

func TestSlackBotPostsMessage(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat.postMessage", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{BotToken: "xoxb-1", Channel: "C123", APIBase: srv.URL + "/api", Client: srv.Client()})
	assert.Equal(t, "bot", s.Mode())
	assert.True(t, s.Notify(context.Background(), Alert{Level: model.RiskCritical, Confidence: 0.9}))
	assert.Equal(t, "Bearer xoxb-1", auth)
	assert.Equal(t, "C123", got.Channel)
	assert.Len(t, got.Blocks, 4)
}

func TestSlackBotAPIErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"ok": false, "error": "channel_not_found"}`)
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{BotToken: "t", Channel: "c", APIBase: srv.URL, MaxRetries: 3, RetryBackoff: time.Millisecond, Client: srv.Client()})
	err := s.Send(context.Background(), BuildMessage(Alert{}))
	assert.ErrorContains(t, err, "channel_not_found")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.False(t, s.Notify(context.Background(), Alert{}))
}

func TestSlackWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(body), `"channel"`)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{WebhookURL: srv.URL, MaxRetries: 3, RetryBackoff: time.Millisecond, Client: srv.Client()})
	assert.Equal(t, "webhook", s.Mode())
	require.NoError(t, s.Send(context.Background(), BuildMessage(Alert{})))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSlackWebhookGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{WebhookURL: srv.URL, MaxRetries: 2, RetryBackoff: time.Millisecond, Client: srv.Client()})
	assert.False(t, s.Notify(context.Background(), Alert{}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSlackNotConfigured(t *testing.T) {
	s := NewSlack(SlackConfig{BotToken: "only-token"})
	assert.Empty(t, s.Mode())
	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrNotConfigured)
	assert.False(t, s.Notify(context.Background(), Alert{}))
	assert.False(t, Nop{}.Notify(context.Background(), Alert{}))
}
