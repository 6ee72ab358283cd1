package signals

import (
	"math"
	"sort"

	"github.com/example/sentinel/internal/model"
)

const topKeywords = 15

var bucketLabels = []string{"0.5-0.6", "0.6-0.7", "0.7-0.8", "0.8-0.9", "0.9-1.0"}

func buildAnalytics(text string, found []model.Signal) model.Analytics {
	return model.Analytics{
		KeywordDistribution: keywordDistribution(text),
		SignalTypeBreakdown: typeBreakdown(found),
		ConfidenceHistogram: confidenceHistogram(found),
		TotalSignals:        len(found),
		AvgConfidence:       meanConfidence(found),
	}
}

func keywordDistribution(text string) []model.KeywordCount {
	out := []model.KeywordCount{}
	if charCount(text) < minTextLength {
		return out
	}
	counts := keywordCounts(text)
	for _, kw := range Keywords {
		if c := counts[kw]; c > 0 {
			out = append(out, model.KeywordCount{Keyword: kw, Count: c})
		}
	}
	// Stable: equal counts keep keyword-list order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topKeywords {
		out = out[:topKeywords]
	}
	return out
}

func typeBreakdown(found []model.Signal) []model.TypeCount {
	out := []model.TypeCount{}
	index := map[string]int{}
	for _, s := range found {
		t := s.Type
		if t == "" {
			t = "other"
		}
		if i, ok := index[t]; ok {
			out[i].Count++
			continue
		}
		index[t] = len(out)
		out = append(out, model.TypeCount{Type: t, Count: 1})
	}
	return out
}

// confidenceHistogram buckets confidences into five 0.1-wide bins over [0.5,1.0).
// Values below 0.5 land in the first bin and values of 1.0 in the last.
func confidenceHistogram(found []model.Signal) []model.ConfidenceBucket {
	counts := make([]int, len(bucketLabels))
	for _, s := range found {
		c := s.Confidence
		switch {
		case c < 0.6:
			counts[0]++
		case c < 0.7:
			counts[1]++
		case c < 0.8:
			counts[2]++
		case c < 0.9:
			counts[3]++
		default:
			counts[4]++
		}
	}
	out := make([]model.ConfidenceBucket, len(bucketLabels))
	for i, label := range bucketLabels {
		out[i] = model.ConfidenceBucket{Range: label, Count: counts[i]}
	}
	return out
}

func meanConfidence(found []model.Signal) float64 {
	if len(found) == 0 {
		return 0
	}
	var sum float64
	for _, s := range found {
		sum += s.Confidence
	}
	return math.Round(sum/float64(len(found))*1000) / 1000
}
