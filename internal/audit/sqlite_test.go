package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStore(t *testing.T, clock *stepClock) *SQLiteStore {
	t.Helper()
	cfg := SQLiteConfig{DataDir: t.TempDir()}
	if clock != nil {
		cfg.Now = clock.Now
	}
	s, err := NewSQLiteStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogAndQueryVulnerabilities(t *testing.T) {
	s := newStore(t, &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	first, err := s.LogVulnerability(ctx, Vulnerability{
		Artifact:     "pdf_document",
		Risk:         "high",
		Confidence:   0.82,
		AgentVotes:   map[string]string{"threat": "high", "security": "medium"},
		ArtifactID:   "a-1",
		Summary:      "gateway exposed",
		Status:       "NO-GO",
		OverallScore: 45,
	})
	require.NoError(t, err)
	require.Len(t, first, 26)

	_, err = s.LogVulnerability(ctx, Vulnerability{Artifact: "code", Risk: "LOW", Confidence: 0.7, OverallScore: 95, Status: "GO"})
	require.NoError(t, err)

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "CODE", all[0].Artifact, "newest first")
	assert.Equal(t, map[string]string{}, all[0].AgentVotes)

	got := all[1]
	assert.Equal(t, first, got.ID)
	assert.Equal(t, "PDF_DOCUMENT", got.Artifact)
	assert.Equal(t, "HIGH", got.Risk)
	assert.Equal(t, 0.82, got.Confidence)
	assert.Equal(t, map[string]string{"threat": "high", "security": "medium"}, got.AgentVotes)
	assert.Equal(t, "a-1", got.ArtifactID)
	assert.Equal(t, "gateway exposed", got.Summary)
	assert.Equal(t, "NO-GO", got.Status)
	assert.Equal(t, 45, got.OverallScore)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC), got.CreatedAt)

	high, err := s.Query(ctx, Filter{Risk: "high"})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, first, high[0].ID)

	limited, err := s.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "CODE", limited[0].Artifact)

	none, err := s.Query(ctx, Filter{Risk: "CRITICAL"})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestLogAlert(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	vid, err := s.LogVulnerability(ctx, Vulnerability{Artifact: "logs", Risk: "CRITICAL", Confidence: 0.9})
	require.NoError(t, err)

	aid, err := s.LogAlert(ctx, vid, "")
	require.NoError(t, err)
	assert.NotEmpty(t, aid)

	alerts, err := s.Alerts(ctx, vid)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, ChannelSlack, alerts[0].Channel)
	assert.Equal(t, vid, alerts[0].VulnerabilityID)

	_, err = s.LogAlert(ctx, "", "slack")
	assert.Error(t, err)

	_, err = s.LogAlert(ctx, "does-not-exist", "slack")
	assert.Error(t, err, "foreign key must reject unknown vulnerabilities")
}

func TestPruneRemovesOldRecordsAndAlerts(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newStore(t, clock)
	ctx := context.Background()

	old, err := s.LogVulnerability(ctx, Vulnerability{Artifact: "code", Risk: "LOW", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = s.LogAlert(ctx, old, "slack")
	require.NoError(t, err)
	_, err = s.LogVulnerability(ctx, Vulnerability{Artifact: "code", Risk: "HIGH"})
	require.NoError(t, err)

	deleted, err := s.Prune(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	left, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "HIGH", left[0].Risk)

	alerts, err := s.Alerts(ctx, old)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStoreRequiresDataDir(t *testing.T) {
	_, err := NewSQLiteStore(SQLiteConfig{})
	assert.Error(t, err)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteStore(SQLiteConfig{DataDir: dir})
	require.NoError(t, err)
	_, err = s.LogVulnerability(ctx, Vulnerability{Artifact: "code", Risk: "MEDIUM"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(SQLiteConfig{DataDir: dir, RetentionDays: 30})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	id, err := l.LogVulnerability(context.Background(), Vulnerability{})
	assert.NoError(t, err)
	assert.Empty(t, id)
}
