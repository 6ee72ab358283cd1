package analyzer

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const clipMarker = "\n\n[TRUNCATED - content exceeds analysis budget]"

// Budget bounds how much artifact text is sent to a capability in one call.
// A zero MaxChars disables clipping.
type Budget struct {
	MaxChars  int
	ChunkSize int
}

// Clip keeps whole chunks of text, split on paragraph, line and word boundaries, until the budget is spent.
func (b Budget) Clip(text string) string {
	if b.MaxChars <= 0 || utf8.RuneCountInString(text) <= b.MaxChars {
		return text
	}

	chunkSize := b.ChunkSize
	if chunkSize <= 0 || chunkSize > b.MaxChars {
		chunkSize = min(b.MaxChars, 2000)
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return truncateRunes(text, b.MaxChars) + clipMarker
	}

	var sb strings.Builder
	used := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		if used > 0 {
			n++
		}
		if used+n > b.MaxChars {
			break
		}
		if used > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c)
		used += n
	}
	if used == 0 {
		return truncateRunes(chunks[0], b.MaxChars) + clipMarker
	}
	return sb.String() + clipMarker
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
