// Package textproc provides the default text collaborators of the QA index:
// normalization, keyword tokenization, question fingerprinting and answer
// token counting. All functions are pure and safe for concurrent use.
package textproc

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTokens caps the keyword set derived from a question.
const DefaultMaxTokens = 20

// Normalize applies NFKC, Unicode case folding, and collapses runs of
// whitespace into single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	// A Caser is stateful; build one per call.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Hash returns the 32-character hex MD5 digest of the normalized text.
// Two questions that differ only in case, width or spacing share a hash.
func Hash(s string) string {
	sum := md5.Sum([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// Tokenizer splits text into a set of normalized keyword tokens.
//
// Scripts written with spaces between words yield one token per word of at
// least MinRunes runes. Scripts written without spaces (Han, kana, Thai,
// Lao, Khmer, Myanmar) yield overlapping character bigrams so that queries
// still overlap on shared words.
type Tokenizer struct {
	// MaxTokens caps the number of distinct tokens returned; 0 means no cap.
	MaxTokens int

	// MinRunes is the minimum word length for spaced scripts. Defaults to 2.
	MinRunes int
}

// DefaultTokenizer is the tokenizer used for q_tokens.
var DefaultTokenizer = Tokenizer{MaxTokens: DefaultMaxTokens, MinRunes: 2}

// Tokenize tokenizes text with DefaultTokenizer.
func Tokenize(text string) []string {
	return DefaultTokenizer.Tokenize(text)
}

// Tokenize returns distinct tokens in order of first appearance.
func (t Tokenizer) Tokenize(text string) []string {
	minRunes := t.MinRunes
	if minRunes <= 0 {
		minRunes = 2
	}

	var (
		out   = []string{}
		seen  = make(map[string]struct{})
		word  []rune
		dense []rune
		full  bool
	)

	emit := func(tok string) {
		if full {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if t.MaxTokens > 0 && len(out) >= t.MaxTokens {
			full = true
		}
	}
	flushWord := func() {
		if len(word) >= minRunes {
			emit(string(word))
		}
		word = word[:0]
	}
	flushDense := func() {
		switch {
		case len(dense) == 1:
			emit(string(dense))
		case len(dense) > 1:
			for i := 0; i+1 < len(dense); i++ {
				emit(string(dense[i : i+2]))
			}
		}
		dense = dense[:0]
	}

	for _, r := range Normalize(text) {
		if full {
			break
		}
		switch {
		case isDense(r):
			flushWord()
			dense = append(dense, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_':
			flushDense()
			word = append(word, r)
		default:
			flushWord()
			flushDense()
		}
	}
	flushWord()
	flushDense()

	return out
}

// CountWords counts whitespace-delimited words; every rune of a script
// written without spaces counts as one word.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isDense(r):
			count++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		case !inWord:
			count++
			inWord = true
		}
	}
	return count
}

func isDense(r rune) bool {
	return unicode.In(r,
		unicode.Han,
		unicode.Hiragana,
		unicode.Katakana,
		unicode.Thai,
		unicode.Lao,
		unicode.Khmer,
		unicode.Myanmar,
	)
}
