package scoring

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Keyword lists are matched against case-folded text.
var (
	technicalKeywords = []string{
		"code", "function", "api", "database", "design", "architecture",
		"config", "system", "algorithm", "implement", "optimization",
	}
	importantKeywords = []string{
		"important", "重要", "critical", "must", "必须", "security", "安全",
	}
	actionKeywords = []string{
		"how to", "怎样", "如何", "follow these", "按照", "step",
	}

	actionMarkers = []string{
		"how to", "step", "follow", "you can", "you should", "make sure",
		"run ", "install", "configure", "set up", "use ",
		"怎样", "如何", "按照", "步骤",
	}
	emotionalMarkers = []string{
		"important", "critical", "must", "never", "always", "urgent",
		"security", "worried", "afraid", "frustrat", "love", "hate", "sorry",
		"重要", "必须", "安全", "担心", "紧急",
	}
)

// Qualitative weighs how much an answer adds beyond its question:
// 0.30 uniqueness, 0.20 user-actionability, 0.25 context-density and
// 0.25 emotional-weight.
func Qualitative() *Policy {
	return mustPolicy(PolicyQualitative,
		Component{Name: "uniqueness", Weight: 0.30, Score: Uniqueness},
		Component{Name: "user-actionability", Weight: 0.20, Score: UserActionability},
		Component{Name: "context-density", Weight: 0.25, Score: ContextDensity},
		Component{Name: "emotional-weight", Weight: 0.25, Score: EmotionalWeight},
	)
}

// HeuristicText scores from surface text features only:
// 0.30 normalized-length, 0.20 keyword-complexity, 0.25 technical-content,
// 0.15 important-keyword and 0.10 actionable-phrase.
func HeuristicText() *Policy {
	return mustPolicy(PolicyHeuristicText,
		Component{Name: "normalized-length", Weight: 0.30, Score: NormalizedLength},
		Component{Name: "keyword-complexity", Weight: 0.20, Score: KeywordComplexity},
		Component{Name: "technical-content", Weight: 0.25, Score: TechnicalContent},
		Component{Name: "important-keyword", Weight: 0.15, Score: ImportantKeyword},
		Component{Name: "actionable-phrase", Weight: 0.10, Score: ActionablePhrase},
	)
}

func mustPolicy(name string, components ...Component) *Policy {
	p, err := NewPolicy(name, components...)
	if err != nil {
		panic(err)
	}
	return p
}

// Uniqueness is the share of distinct answer tokens that do not already
// appear in the question.
func Uniqueness(in Input) float64 {
	if len(in.AnswerTokens) == 0 {
		return 0
	}
	question := make(map[string]struct{}, len(in.QuestionTokens))
	for _, tok := range in.QuestionTokens {
		question[tok] = struct{}{}
	}
	novel := 0
	for _, tok := range in.AnswerTokens {
		if _, ok := question[tok]; !ok {
			novel++
		}
	}
	return float64(novel) / float64(len(in.AnswerTokens))
}

// UserActionability counts instruction markers and list items in the
// answer; three or more saturate the score.
func UserActionability(in Input) float64 {
	hits := countMarkers(in.foldedAnswer, actionMarkers)
	for _, line := range strings.Split(in.Answer, "\n") {
		if isListItem(strings.TrimSpace(line)) {
			hits++
		}
	}
	return math.Min(float64(hits)/3, 1)
}

// ContextDensity rewards answers that are long enough to carry context,
// lexically varied, and tagged with topics.
func ContextDensity(in Input) float64 {
	if in.AnswerWords == 0 {
		return 0
	}
	length := math.Min(float64(in.AnswerWords)/60, 1)
	lexical := math.Min(float64(len(in.AnswerTokens))/float64(in.AnswerWords), 1)
	tags := math.Min(float64(len(in.Tags))/3, 1)
	return 0.6*length + 0.25*lexical + 0.15*tags
}

// EmotionalWeight detects importance and emotional language in either the
// question or the answer; two markers saturate the score.
func EmotionalWeight(in Input) float64 {
	hits := countMarkers(in.folded, emotionalMarkers)
	if strings.Contains(in.Question, "!") {
		hits++
	}
	return math.Min(float64(hits)/2, 1)
}

// NormalizedLength saturates at 500 characters of answer.
func NormalizedLength(in Input) float64 {
	return math.Min(float64(utf8.RuneCountInString(in.Answer))/500, 1)
}

// KeywordComplexity saturates at 8 question keywords.
func KeywordComplexity(in Input) float64 {
	return math.Min(float64(len(in.QuestionTokens))/8, 1)
}

// TechnicalContent is 1 when the answer mentions a technical keyword.
func TechnicalContent(in Input) float64 {
	return presence(in.foldedAnswer, technicalKeywords)
}

// ImportantKeyword is 1 when the question or answer flags importance.
func ImportantKeyword(in Input) float64 {
	return presence(in.folded, importantKeywords)
}

// ActionablePhrase is 1 when the question or answer asks for or gives steps.
func ActionablePhrase(in Input) float64 {
	return presence(in.folded, actionKeywords)
}

func presence(text string, keywords []string) float64 {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return 1
		}
	}
	return 0
}

func countMarkers(text string, markers []string) int {
	hits := 0
	for _, m := range markers {
		if strings.Contains(text, m) {
			hits++
		}
	}
	return hits
}

// isListItem reports "- x", "* x" and "1. x" style lines.
func isListItem(line string) bool {
	if len(line) >= 2 && (line[0] == '-' || line[0] == '*') && line[1] == ' ' {
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(line) && line[i] == '.' && line[i+1] == ' '
}
