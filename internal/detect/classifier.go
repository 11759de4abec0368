package detect

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Content types attached to verdicts.
const (
	ContentTitle         = "title"
	ContentComments      = "comments"
	ContentTranscription = "transcription"
)

// CategoryMatch is the per-category outcome of classifying one text.
type CategoryMatch struct {
	Severity int      `json:"severity"`
	Keywords []string `json:"keywords"`
	Count    int      `json:"count"`
}

// Verdict is the result of classifying a single text.
// Flagged, HighestSeverity and Matches move together: Flagged is true iff
// Matches is non-empty iff HighestSeverity > 0.
type Verdict struct {
	Flagged         bool                     `json:"is_flagged"`
	HighestSeverity int                      `json:"highest_severity"`
	Matches         map[string]CategoryMatch `json:"matches,omitempty"`
	Categories      []string                 `json:"categories,omitempty"`
	ContentType     string                   `json:"content_type,omitempty"`
}

type compiledCategory struct {
	name     string
	severity int
	keywords []string // lowercased
}

// Classifier scores text against a fixed lexicon. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	lexicon    Lexicon
	categories []compiledCategory
}

// New builds a Classifier from the given lexicon. The lexicon is validated
// here; a *ConfigError is returned for out-of-range severities or empty
// keyword sets.
func New(lex Lexicon) (*Classifier, error) {
	if err := lex.Validate(); err != nil {
		return nil, err
	}

	categories := make([]compiledCategory, 0, len(lex))
	for _, name := range lex.names() {
		cat := lex[name]
		lowered := make([]string, len(cat.Keywords))
		for i, kw := range cat.Keywords {
			lowered[i] = strings.ToLower(kw)
		}
		categories = append(categories, compiledCategory{
			name:     name,
			severity: cat.Severity,
			keywords: lowered,
		})
	}

	return &Classifier{lexicon: lex, categories: categories}, nil
}

// NewDefault builds a Classifier over the built-in lexicon.
func NewDefault() *Classifier {
	c, err := New(DefaultLexicon())
	if err != nil {
		// The built-in lexicon is validated by tests; this cannot happen.
		panic(err)
	}
	return c
}

// Lexicon returns the lexicon the classifier was built from.
func (c *Classifier) Lexicon() Lexicon {
	return c.lexicon
}

// Classify scans text for whole-word, case-insensitive keyword matches in
// every category at or above minSeverity. It is deterministic and
// side-effect free.
func (c *Classifier) Classify(text string, minSeverity int) Verdict {
	if minSeverity < MinSeverity {
		minSeverity = MinSeverity
	}

	v := Verdict{}
	lowered := strings.ToLower(text)

	for _, cat := range c.categories {
		if cat.severity < minSeverity {
			continue
		}

		var matched []string
		total := 0
		for _, kw := range cat.keywords {
			n := countWordOccurrences(lowered, kw)
			if n > 0 {
				matched = append(matched, kw)
				total += n
			}
		}
		if total == 0 {
			continue
		}

		sort.Strings(matched)
		if v.Matches == nil {
			v.Matches = make(map[string]CategoryMatch)
		}
		v.Matches[cat.name] = CategoryMatch{
			Severity: cat.severity,
			Keywords: matched,
			Count:    total,
		}
		v.Categories = append(v.Categories, cat.name)
		v.Flagged = true
		if cat.severity > v.HighestSeverity {
			v.HighestSeverity = cat.severity
		}
	}

	return v
}

// ClassifyTitle classifies a video title. Matching is identical to Classify;
// only the content type on the verdict differs.
func (c *Classifier) ClassifyTitle(title string, minSeverity int) Verdict {
	v := c.Classify(title, minSeverity)
	v.ContentType = ContentTitle
	return v
}

// ClassifyTranscription classifies transcribed speech.
func (c *Classifier) ClassifyTranscription(text string, minSeverity int) Verdict {
	v := c.Classify(text, minSeverity)
	v.ContentType = ContentTranscription
	return v
}

// countWordOccurrences counts non-overlapping occurrences of keyword in
// text where the match is bounded by non-word runes on both sides. Both
// inputs must already be lowercased.
//
// regexp's \b only knows ASCII word characters, which misclassifies
// Vietnamese letters on both sides of a boundary, so the scan checks the
// neighbouring runes itself.
func countWordOccurrences(text, keyword string) int {
	count := 0
	for i := 0; i+len(keyword) <= len(text); {
		j := strings.Index(text[i:], keyword)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(keyword)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			count++
			i = end
		} else {
			i = start + 1
		}
	}
	return count
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
