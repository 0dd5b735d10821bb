package ingest

import (
	"strings"
)

// Span is one text segment produced by splitting a document, carrying its
// stable zero-based position.
type Span struct {
	Pos      int
	Text     string
	TokenCnt int
}

// Splitter turns raw document text into an ordered list of spans. The split
// must be deterministic for a given input so re-ingesting the same content
// always produces the same chunks.
type Splitter interface {
	Split(text string) []Span
}

// TokenChunker groups lines into token-bounded spans with optional overlap.
//
// targetTokens:   approximate tokens per span.
// overlapTokens:  tokens retained from the end of the previous span as seed of
//                 the next, for context bleed across boundaries.
type TokenChunker struct {
	targetTokens  int
	overlapTokens int
}

func NewTokenChunker(targetTokens, overlapTokens int) *TokenChunker {
	if targetTokens <= 0 {
		targetTokens = 100
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &TokenChunker{targetTokens: targetTokens, overlapTokens: overlapTokens}
}

func (c *TokenChunker) Split(text string) []Span {
	var (
		spans  []Span
		buf    []string
		tokSum int
	)

	// flush emits the current buffer as a span and seeds the next buffer with
	// the overlap tail.
	flush := func() {
		if tokSum == 0 {
			return
		}
		spans = append(spans, Span{
			Pos:      len(spans),
			Text:     strings.Join(buf, "\n"),
			TokenCnt: tokSum,
		})

		if c.overlapTokens > 0 {
			keep := []string{}
			remain := c.overlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...)
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		buf = append(buf, line)
		tokSum += approxTokens(line)
		if tokSum >= c.targetTokens {
			flush()
		}
	}

	// Tail. Skip it when it is pure overlap from an already-emitted span.
	if tokSum > 0 && (len(spans) == 0 || !isOverlapOnly(buf, spans[len(spans)-1].Text)) {
		flush()
	}

	return spans
}

// isOverlapOnly reports whether buf holds nothing but the overlap tail of the
// previously emitted span text.
func isOverlapOnly(buf []string, prev string) bool {
	return strings.HasSuffix(prev, strings.Join(buf, "\n"))
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

var _ Splitter = (*TokenChunker)(nil)
