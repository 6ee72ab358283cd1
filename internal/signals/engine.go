// Package signals is the local, deterministic signal engine. It inspects normalized artifact content with
// simple statistics and keyword patterns; it never calls out to a model or the network.
package signals

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/sentinel/internal/model"
)

const (
	EngineName = "local_ml"

	TypeComplexity = "complexity_anomaly"
	TypeFrequency  = "security_pattern_frequency"
	TypeRepository = "github_signal"

	tokenDensityBaseline   = 0.3
	sectionEntropyBaseline = 3.5
	pageCountP90           = 50

	minTextLength = 100
	minTokens     = 50
)

// Keywords is the security vocabulary counted by the frequency pass.
var Keywords = []string{
	"auth", "authentication", "password", "token", "jwt", "oauth",
	"trading", "balance", "order", "transaction", "withdraw", "deposit",
	"rate_limit", "ratelimit", "throttle",
	"retry", "retries", "backoff",
	"encrypt", "decrypt", "hash", "secret", "api_key", "apikey",
	"sql", "query", "execute", "injection",
	"xss", "csrf", "sanitize", "validate",
}

var highRiskKeywords = []string{"auth", "password", "token", "trading", "balance", "sql", "injection"}

var sensitivePathKeywords = []string{"auth", "login", "config", "secret", "api", "admin"}

// Word characters are Unicode letters, digits and underscore.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// countWholeWord counts occurrences of word in text that are not flanked by word characters.
// Adjacent matches share a boundary, so "auth auth" counts twice.
func countWholeWord(text, word string) int {
	n := 0
	for i := 0; i <= len(text)-len(word); {
		j := strings.Index(text[i:], word)
		if j < 0 {
			break
		}
		start, end := i+j, i+j+len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			n++
			i = end
			continue
		}
		i = start + 1
	}
	return n
}

// charCount is the length of text in characters, not bytes.
func charCount(text string) int {
	return utf8.RuneCountInString(text)
}

// Run computes every signal and the descriptive analytics for an artifact.
func Run(a model.Artifact) model.SignalBundle {
	text := a.Text()

	found := []model.Signal{}
	found = append(found, complexitySignals(a, text)...)
	found = append(found, frequencySignals(text)...)
	found = append(found, repositorySignals(a)...)

	return model.SignalBundle{
		Engine:     EngineName,
		ArtifactID: a.ID,
		Signals:    found,
		Analytics:  buildAnalytics(text, found),
	}
}

func tokenCount(text string) int {
	n := len(strings.Fields(text)) + len(wordPattern.FindAllStringIndex(text, -1))/2
	if n < 1 {
		return 1
	}
	return n
}

// entropy is the Shannon entropy in bits per character.
func entropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	// Sum in rune order so float accumulation is independent of map iteration.
	runes := make([]rune, 0, len(counts))
	for r := range counts {
		runes = append(runes, r)
	}
	slices.Sort(runes)

	var h float64
	for _, r := range runes {
		p := float64(counts[r]) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

func keywordCounts(text string) map[string]int {
	lower := strings.ToLower(text)
	counts := make(map[string]int, len(Keywords))
	for _, kw := range Keywords {
		counts[kw] = countWholeWord(lower, kw)
	}
	return counts
}

func complexitySignals(a model.Artifact, text string) []model.Signal {
	var out []model.Signal

	density := float64(tokenCount(text)) / float64(max(1, charCount(text)))
	if density > tokenDensityBaseline*1.5 {
		out = append(out, model.Signal{
			Type:       TypeComplexity,
			Subtype:    "token_density",
			Confidence: math.Min(0.95, 0.5+(density-tokenDensityBaseline)*2),
			Evidence:   fmt.Sprintf("token_density=%.3f > baseline", density),
		})
	}

	var entropies []float64
	for _, s := range a.Content.Sections {
		if s.Text == "" {
			continue
		}
		entropies = append(entropies, entropy(s.Text))
	}
	if len(entropies) > 0 {
		var sum float64
		for _, e := range entropies {
			sum += e
		}
		avg := sum / float64(len(entropies))
		if avg > sectionEntropyBaseline {
			out = append(out, model.Signal{
				Type:       TypeComplexity,
				Subtype:    "section_entropy",
				Confidence: math.Min(0.95, 0.6+(avg-sectionEntropyBaseline)*0.1),
				Evidence:   fmt.Sprintf("section_entropy=%.2f > baseline", avg),
			})
		}
	}

	if pages := a.Metadata.PageCount; pages > pageCountP90 {
		out = append(out, model.Signal{
			Type:       TypeComplexity,
			Subtype:    "page_count",
			Confidence: math.Min(0.9, 0.7+float64(pages-pageCountP90)/200),
			Evidence:   fmt.Sprintf("page_count=%d > P90", pages),
		})
	}

	return out
}

func frequencySignals(text string) []model.Signal {
	if charCount(text) < minTextLength {
		return nil
	}
	if tokenCount(text) < minTokens {
		return nil
	}

	counts := keywordCounts(text)
	total := 0
	for _, c := range counts {
		total += c
	}
	expected := float64(total) / float64(len(Keywords))

	var out []model.Signal
	for _, kw := range Keywords {
		c := counts[kw]
		if float64(c) > expected*3 && c >= 5 {
			out = append(out, model.Signal{
				Type:       TypeFrequency,
				Subtype:    "over_representation",
				Confidence: math.Min(0.9, 0.6+float64(c)/50),
				Evidence:   fmt.Sprintf("keyword '%s' appears %d times (elevated)", kw, c),
			})
		}
	}

	highRisk := 0
	for _, kw := range highRiskKeywords {
		highRisk += counts[kw]
	}
	if highRisk > 10 {
		out = append(out, model.Signal{
			Type:       TypeFrequency,
			Subtype:    "high_risk_concentration",
			Confidence: math.Min(0.9, 0.65+float64(highRisk)/100),
			Evidence:   fmt.Sprintf("high-risk keywords total=%d", highRisk),
		})
	}
	return out
}

func repositorySignals(a model.Artifact) []model.Signal {
	if a.Kind != model.KindRepository || a.Metadata.Source != "github" {
		return nil
	}
	files := a.Content.Files
	if len(files) == 0 {
		return nil
	}

	var out []model.Signal

	critical := 0
	for _, f := range files {
		if containsAny(strings.ToLower(f.Path), sensitivePathKeywords) {
			critical++
		}
	}
	if critical >= 3 {
		out = append(out, model.Signal{
			Type:       TypeRepository,
			Subtype:    "security_critical_clustering",
			Confidence: math.Min(0.85, 0.6+float64(critical)*0.05),
			Evidence:   fmt.Sprintf("%d security-critical files detected", critical),
		})
	}

	// Languages are reported in first-seen order.
	var langs []string
	byLang := map[string]int{}
	for _, f := range files {
		path := strings.ToLower(f.Path)
		if !strings.Contains(path, "auth") && !strings.Contains(path, "security") {
			continue
		}
		lang := f.Language
		if lang == "" {
			lang = "unknown"
		}
		if _, seen := byLang[lang]; !seen {
			langs = append(langs, lang)
		}
		byLang[lang]++
	}
	for _, lang := range langs {
		if n := byLang[lang]; n >= 2 {
			out = append(out, model.Signal{
				Type:       TypeRepository,
				Subtype:    "high_risk_language_concentration",
				Confidence: 0.75,
				Evidence:   fmt.Sprintf("%d %s files in auth/security paths", n, lang),
			})
		}
	}

	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
