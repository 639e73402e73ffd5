// Package chunker splits extracted document text into word-aligned windows
// for retrieval indexing.
//
// Policy: fixed windows of ChunkSizeWords words with stride
// ChunkSizeWords-OverlapWords. With zero overlap this degenerates to
// non-overlapping windows. Chunking is pure and deterministic: identical
// text and parameters always produce an identical chunk set.
package chunker

import (
	"regexp"
	"strings"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// Config holds chunking parameters.
type Config struct {
	ChunkSizeWords int // words per chunk
	OverlapWords   int // words shared with the previous chunk
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSizeWords: 200,
		OverlapWords:   0,
	}
}

// Validate checks the parameter ranges. Overlap must be non-negative and
// strictly smaller than the chunk size.
func (c Config) Validate() error {
	if c.ChunkSizeWords <= 0 {
		return domain.Errorf(domain.KindInvalidConfig, "chunk size must be positive, got %d", c.ChunkSizeWords)
	}
	if c.OverlapWords < 0 || c.OverlapWords >= c.ChunkSizeWords {
		return domain.Errorf(domain.KindInvalidConfig,
			"overlap must be in [0, chunk size), got overlap=%d size=%d", c.OverlapWords, c.ChunkSizeWords)
	}
	return nil
}

// Chunk is one word-aligned window of the source text. Pages lists the page
// numbers the window spans, when page tags are present in the source.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	Pages []int  `json:"pages,omitempty"`
}

// Chunker performs word-window chunking.
type Chunker struct {
	cfg Config
}

// New creates a chunker, validating the configuration.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// pageTagRe matches the page markers the extraction pipeline inserts
// between per-page text, e.g. "**Page 3**".
var pageTagRe = regexp.MustCompile(`\*\*Page\s+(\d+)\*\*`)

// Chunk splits text into windows. Empty or whitespace-only input yields an
// empty set, never a single empty chunk.
func (c *Chunker) Chunk(text string) []Chunk {
	words, offsets := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	wordPages := pagesByWord(text, offsets)

	stride := c.cfg.ChunkSizeWords - c.cfg.OverlapWords
	var chunks []Chunk
	for start := 0; start < len(words); start += stride {
		end := start + c.cfg.ChunkSizeWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Text:  strings.Join(words[start:end], " "),
			Index: len(chunks),
			Pages: pageSpan(wordPages[start:end]),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Texts returns just the chunk contents, in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}

// splitWords splits on whitespace and records each word's byte offset.
func splitWords(text string) ([]string, []int) {
	var words []string
	var offsets []int
	inWord := false
	start := 0
	for i, r := range text {
		space := r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
		if !space && !inWord {
			inWord = true
			start = i
		} else if space && inWord {
			inWord = false
			words = append(words, text[start:i])
			offsets = append(offsets, start)
		}
	}
	if inWord {
		words = append(words, text[start:])
		offsets = append(offsets, start)
	}
	return words, offsets
}

// pagesByWord maps each word to the page number of the nearest preceding
// page tag, or 0 when the text carries no tags.
func pagesByWord(text string, offsets []int) []int {
	pages := make([]int, len(offsets))
	tags := pageTagRe.FindAllStringSubmatchIndex(text, -1)
	if len(tags) == 0 {
		return pages
	}

	tagIdx := 0
	current := 0
	for i, off := range offsets {
		for tagIdx < len(tags) && tags[tagIdx][0] <= off {
			current = parsePage(text[tags[tagIdx][2]:tags[tagIdx][3]])
			tagIdx++
		}
		pages[i] = current
	}
	return pages
}

// pageSpan collapses per-word pages into the ordered distinct set,
// dropping the zero placeholder.
func pageSpan(wordPages []int) []int {
	var span []int
	last := -1
	for _, p := range wordPages {
		if p == 0 || p == last {
			continue
		}
		span = append(span, p)
		last = p
	}
	return span
}

func parsePage(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
