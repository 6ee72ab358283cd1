package escalation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sentinel/internal/model"
)

func TestSeverityScore(t *testing.T) {
	assert.Equal(t, 4, SeverityScore("critical"))
	assert.Equal(t, 3, SeverityScore("HIGH"))
	assert.Equal(t, 2, SeverityScore("Medium"))
	assert.Equal(t, 1, SeverityScore("low"))
	assert.Equal(t, 0, SeverityScore("info"))
	assert.Equal(t, 0, SeverityScore(""))
	assert.Equal(t, 0, SeverityScore("bogus"))
}

func TestDisagreementZeroForSmallPanels(t *testing.T) {
	assert.Zero(t, Disagreement(nil))
	assert.Zero(t, Disagreement(map[string]string{}))
	assert.Zero(t, Disagreement(map[string]string{"threat": "critical"}))
	assert.Zero(t, Disagreement(map[string]string{"threat": "critical", "security": ""}))
}

func TestDisagreementGrowsWithVariance(t *testing.T) {
	panels := []map[string]string{
		{"threat": "high", "security": "high"},
		{"threat": "high", "security": "medium"},
		{"threat": "high", "security": "low"},
		{"threat": "critical", "security": "low"},
	}

	prev := -1.0
	for _, p := range panels {
		d := Disagreement(p)
		assert.GreaterOrEqual(t, d, 0.0)
		assert.LessOrEqual(t, d, 1.0)
		assert.Greater(t, d, prev, "disagreement should increase for %v", p)
		prev = d
	}
}

func TestDisagreementClampedToOne(t *testing.T) {
	// variance 4 / 2.5 would exceed 1
	d := Disagreement(map[string]string{"a": "critical", "b": "bogus"})
	assert.Equal(t, 1.0, d)
}

func TestSplitPanelAlwaysNotifies(t *testing.T) {
	consensus := map[string]string{"threat": "critical", "security": "low"}
	require.Greater(t, Disagreement(consensus), 0.4)

	for _, level := range []model.RiskLevel{model.RiskLow, model.RiskMedium, model.RiskHigh, model.RiskCritical, ""} {
		for _, confidence := range []float64{0, 0.59, 0.6, 0.95, 1} {
			assert.True(t, ShouldNotify(level, confidence, consensus), "level=%s confidence=%v", level, confidence)
		}
	}
}

func TestHealthyVerdictStaysQuiet(t *testing.T) {
	level := LevelFor(85, model.StatusGo)
	require.Equal(t, model.RiskLow, level)

	consensus := map[string]string{"threat": "low", "security": "low", "soc": "medium"}
	assert.False(t, ShouldNotify(level, 0.9, consensus))
}

func TestShouldNotifyRules(t *testing.T) {
	agree := map[string]string{"threat": "medium", "security": "medium"}

	tests := []struct {
		name       string
		level      model.RiskLevel
		confidence float64
		want       bool
	}{
		{"critical always", model.RiskCritical, 0.99, true},
		{"high always", model.RiskHigh, 0.99, true},
		{"lower-case level", "high", 0.99, true},
		{"medium low confidence", model.RiskMedium, 0.59, true},
		{"medium boundary confidence", model.RiskMedium, 0.6, false},
		{"medium confident", model.RiskMedium, 0.9, false},
		{"low uncertain", model.RiskLow, 0.1, false},
		{"unknown level", "UNKNOWN", 0.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(tt.level, tt.confidence, agree))
		})
	}
}

func TestShouldNotifyIsTotal(t *testing.T) {
	odd := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -3, 42}
	for _, c := range odd {
		assert.NotPanics(t, func() {
			_ = ShouldNotify("", c, nil)
			_ = ShouldNotify(model.RiskMedium, c, map[string]string{"x": "?"})
		})
	}

	d := Evaluate(model.RiskMedium, -0.5, nil)
	assert.Equal(t, 0.0, d.Confidence)
	assert.True(t, d.Notify)

	d = Evaluate(model.RiskMedium, 7, nil)
	assert.Equal(t, 1.0, d.Confidence)
	assert.False(t, d.Notify)
}

func TestLevelForThresholdsAndOverride(t *testing.T) {
	tests := []struct {
		score  int
		status string
		want   model.RiskLevel
	}{
		{0, model.StatusGo, model.RiskCritical},
		{39, model.StatusGo, model.RiskCritical},
		{40, model.StatusGo, model.RiskHigh},
		{59, model.StatusNoGo, model.RiskHigh},
		{60, model.StatusGo, model.RiskMedium},
		{79, model.StatusGo, model.RiskMedium},
		{80, model.StatusGo, model.RiskLow},
		{100, model.StatusGo, model.RiskLow},
		{80, model.StatusNoGo, model.RiskMedium},
		{100, "no-go", model.RiskMedium},
		{95, "", model.RiskLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score, tt.status), "score=%d status=%q", tt.score, tt.status)
	}
}

func TestNoGoNeverLow(t *testing.T) {
	for score := -10; score <= 110; score++ {
		assert.NotEqual(t, model.RiskLow, LevelFor(score, model.StatusNoGo), "score=%d", score)
	}
}
