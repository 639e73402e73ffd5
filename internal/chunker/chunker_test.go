package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero size", Config{ChunkSizeWords: 0}, true},
		{"negative overlap", Config{ChunkSizeWords: 10, OverlapWords: -1}, true},
		{"overlap equals size", Config{ChunkSizeWords: 10, OverlapWords: 10}, true},
		{"overlap just under size", Config{ChunkSizeWords: 10, OverlapWords: 9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error kind = %v, want INVALID_CONFIG", domain.KindOf(err))
			}
		})
	}
}

func TestChunkEmptyInput(t *testing.T) {
	c, err := New(Config{ChunkSizeWords: 5})
	if err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"", "   ", "\n\t \n"} {
		if got := c.Chunk(text); len(got) != 0 {
			t.Errorf("Chunk(%q) = %v, want empty", text, got)
		}
	}
}

func TestChunkWindows(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		text string
		want []string
	}{
		{
			name: "exact split at five words",
			cfg:  Config{ChunkSizeWords: 5},
			text: "Revenue grew 10%.\n\nCosts fell 5%.",
			want: []string{"Revenue grew 10%. Costs fell", "5%."},
		},
		{
			name: "single window",
			cfg:  Config{ChunkSizeWords: 10},
			text: "one two three",
			want: []string{"one two three"},
		},
		{
			name: "overlap of two",
			cfg:  Config{ChunkSizeWords: 4, OverlapWords: 2},
			text: "a b c d e f",
			want: []string{"a b c d", "c d e f"},
		},
		{
			name: "trailing partial window",
			cfg:  Config{ChunkSizeWords: 2},
			text: "a b c",
			want: []string{"a b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			got := Texts(c.Chunk(tt.text))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chunk() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkDeterministic(t *testing.T) {
	c, err := New(Config{ChunkSizeWords: 3, OverlapWords: 1})
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("alpha beta gamma delta ", 40)
	first := c.Chunk(text)
	second := c.Chunk(text)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different chunk sets")
	}
	for i, ch := range first {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
	}
}

func TestChunkPageTracking(t *testing.T) {
	c, err := New(Config{ChunkSizeWords: 6})
	if err != nil {
		t.Fatal(err)
	}

	text := "\n**Page 1**\nRevenue grew strongly this year\n\n**Page 2**\nCosts fell by five percent overall\n"
	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	var seen []int
	for _, ch := range chunks {
		seen = append(seen, ch.Pages...)
	}
	has := func(page int) bool {
		for _, p := range seen {
			if p == page {
				return true
			}
		}
		return false
	}
	if !has(1) || !has(2) {
		t.Errorf("page span %v missing expected pages 1 and 2", seen)
	}
}

func TestChunkNoPageTags(t *testing.T) {
	c, err := New(Config{ChunkSizeWords: 3})
	if err != nil {
		t.Fatal(err)
	}

	for _, ch := range c.Chunk("plain text without any markers at all") {
		if len(ch.Pages) != 0 {
			t.Errorf("chunk %d has pages %v for untagged text", ch.Index, ch.Pages)
		}
	}
}
