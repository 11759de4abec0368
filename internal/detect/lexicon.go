package detect

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Severity bounds for lexicon categories.
const (
	MinSeverity = 1
	MaxSeverity = 4
)

// Category is one lexicon entry: a keyword set with a severity level.
type Category struct {
	Keywords []string `yaml:"keywords" json:"keywords"`
	Severity int      `yaml:"severity" json:"severity"`
}

// Lexicon maps category names to their keyword sets and severities.
// A Lexicon is assembled once and never mutated after a Classifier is
// built from it.
type Lexicon map[string]Category

// ConfigError reports an invalid lexicon entry. It is fatal at classifier
// construction time.
type ConfigError struct {
	Category string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("lexicon category %q: %s", e.Category, e.Reason)
}

// DefaultLexicon returns the built-in Vietnamese content categories.
func DefaultLexicon() Lexicon {
	return Lexicon{
		"violence": {
			Keywords: []string{"giết người", "đánh nhau", "bạo lực", "tấn công", "đâm", "chém",
				"hành hung", "đe dọa", "trả thù", "hành quyết", "sát hại"},
			Severity: 3,
		},
		"terrorism": {
			Keywords: []string{"khủng bố", "bom", "đánh bom", "tự sát", "phá hoại",
				"cực đoan", "bạo động", "kích động"},
			Severity: 4,
		},
		"weapons": {
			Keywords: []string{"súng", "đạn", "vũ khí", "dao", "thuốc nổ", "mìn",
				"lựu đạn", "vũ trang", "chất nổ"},
			Severity: 2,
		},
		"drugs": {
			Keywords: []string{"ma túy", "heroin", "cần sa", "cocaine", "thuốc lắc",
				"chất gây nghiện", "tiêm chích", "chất kích thích"},
			Severity: 2,
		},
		"political_extremism": {
			Keywords: []string{"lật đổ", "phản động", "chống phá", "phá hoại",
				"chống đối", "âm mưu", "gây rối", "bạo loạn"},
			Severity: 3,
		},
		"hate_speech": {
			Keywords: []string{"nông cạn", "bức xúc", "thù hằn", "kỳ thị", "phân biệt",
				"ghét bỏ", "xúc phạm", "nhục mạ", "nhạo báng"},
			Severity: 1,
		},
	}
}

// LoadLexicon returns the default lexicon merged with custom categories from
// a YAML file. An empty path returns the defaults unchanged. Custom entries
// override same-named defaults. Validation happens when a Classifier is
// built, but file-level problems surface here.
func LoadLexicon(path string) (Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon file: %w", err)
	}

	var custom Lexicon
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("parsing lexicon file %s: %w", path, err)
	}

	lex.Merge(custom)
	return lex, nil
}

// Merge copies categories from other into l, overriding same-named entries.
func (l Lexicon) Merge(other Lexicon) {
	for name, cat := range other {
		l[name] = cat
	}
}

// AddCategory inserts or replaces a category, validating it first.
func (l Lexicon) AddCategory(name string, cat Category) error {
	if name == "" {
		return &ConfigError{Category: name, Reason: "empty category name"}
	}
	if err := (Lexicon{name: cat}).Validate(); err != nil {
		return err
	}
	l[name] = cat
	return nil
}

// Validate checks every category's severity range and keyword set.
func (l Lexicon) Validate() error {
	for _, name := range l.names() {
		cat := l[name]
		if cat.Severity < MinSeverity || cat.Severity > MaxSeverity {
			return &ConfigError{Category: name, Reason: fmt.Sprintf("severity %d outside %d..%d", cat.Severity, MinSeverity, MaxSeverity)}
		}
		if len(cat.Keywords) == 0 {
			return &ConfigError{Category: name, Reason: "empty keyword set"}
		}
		for _, kw := range cat.Keywords {
			if kw == "" {
				return &ConfigError{Category: name, Reason: "empty keyword"}
			}
		}
	}
	return nil
}

// names returns category names in ascending order so validation errors and
// match reports are deterministic.
func (l Lexicon) names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
