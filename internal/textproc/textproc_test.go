package textproc_test

import (
	"slices"
	"testing"

	"github.com/flemzord/qaindex/internal/textproc"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Hello   World", "hello world"},
		{"  ＡＢＣ  ", "abc"}, // full-width folds to ASCII under NFKC
		{"Straße", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := textproc.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHash_StableAcrossSpacingAndCase(t *testing.T) {
	t.Parallel()

	a := textproc.Hash("How do I design the memory index?")
	b := textproc.Hash("how do I  design the MEMORY index?")
	if a != b {
		t.Errorf("Hash differs for equivalent questions: %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("len(Hash) = %d, want 32", len(a))
	}
	if a == textproc.Hash("a different question") {
		t.Error("distinct questions should not share a hash")
	}
}

func TestTokenize_SpacedScript(t *testing.T) {
	t.Parallel()

	got := textproc.Tokenize("Design the memory index, design it well: a b")
	want := []string{"design", "the", "memory", "index", "it", "well"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_ScriptWithoutSpaces(t *testing.T) {
	t.Parallel()

	got := textproc.Tokenize("记忆系统")
	want := []string{"记忆", "忆系", "系统"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}

	mixed := textproc.Tokenize("API 设计")
	if !slices.Contains(mixed, "api") || !slices.Contains(mixed, "设计") {
		t.Errorf("Tokenize(mixed) = %v, want api and 设计", mixed)
	}

	single := textproc.Tokenize("好")
	if !slices.Equal(single, []string{"好"}) {
		t.Errorf("Tokenize(single) = %v, want [好]", single)
	}
}

func TestTokenize_Cap(t *testing.T) {
	t.Parallel()

	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima " +
		"mike november oscar papa quebec romeo sierra tango uniform victor whiskey"
	if got := textproc.Tokenize(text); len(got) != textproc.DefaultMaxTokens {
		t.Errorf("len(Tokenize) = %d, want %d", len(got), textproc.DefaultMaxTokens)
	}

	unlimited := textproc.Tokenizer{}.Tokenize(text)
	if len(unlimited) != 23 {
		t.Errorf("len(unlimited) = %d, want 23", len(unlimited))
	}
}

func TestTokenize_EmptyIsNonNil(t *testing.T) {
	t.Parallel()

	got := textproc.Tokenize("?!")
	if got == nil || len(got) != 0 {
		t.Errorf("Tokenize(punctuation) = %#v, want empty non-nil slice", got)
	}
}

func TestCountWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one two  three", 3},
		{"use `go test ./...` now", 5},
		{"记忆 system", 3},
	}
	for _, tt := range tests {
		if got := textproc.CountWords(tt.in); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCharEstimator(t *testing.T) {
	t.Parallel()

	e := textproc.NewCharEstimator(0)
	if e.CharsPerToken != 4.0 {
		t.Errorf("CharsPerToken = %v, want 4", e.CharsPerToken)
	}
	if got := e.Estimate(""); got != 0 {
		t.Errorf("Estimate(\"\") = %d, want 0", got)
	}
	if got := e.Estimate("abcdefgh"); got != 3 {
		t.Errorf("Estimate(8 chars) = %d, want 3", got)
	}
	if got := e.Estimate("记忆记忆"); got != 2 {
		t.Errorf("Estimate(4 runes) = %d, want 2", got)
	}
}
