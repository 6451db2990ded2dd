// Package language guesses the language of post text from a small closed set
// of candidates using word lexicons and Unicode script ranges.
package language

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Tag is one of the languages the classifier can return.
type Tag string

const (
	English    Tag = "english"
	Portuguese Tag = "portuguese"
	Japanese   Tag = "japanese"
	Farsi      Tag = "farsi"
)

//go:embed lexicons.yaml
var defaultLexicons []byte

type lexiconFile struct {
	Languages []lexiconEntry `yaml:"languages"`
}

type lexiconEntry struct {
	Tag     Tag      `yaml:"tag"`
	Weight  float64  `yaml:"weight"`
	Words   []string `yaml:"words"`
	Scripts [][]int  `yaml:"scripts"`
}

type runeRange struct {
	lo, hi rune
}

type candidate struct {
	tag    Tag
	weight float64
	words  map[string]struct{}
	ranges []runeRange
}

// Classifier scores text against each candidate language and returns the
// best match. It is safe for concurrent use.
type Classifier struct {
	candidates []candidate
}

// NewClassifier builds a classifier from the embedded lexicon document.
func NewClassifier() (*Classifier, error) {
	return ParseClassifier(defaultLexicons)
}

// MustClassifier is NewClassifier for package-level initialisation; it
// panics if the embedded lexicons are invalid.
func MustClassifier() *Classifier {
	c, err := NewClassifier()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClassifier builds a classifier from a YAML lexicon document. The
// order of languages in the document is the tie-break priority.
func ParseClassifier(data []byte) (*Classifier, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicons: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("lexicons: at least one language is required")
	}

	c := &Classifier{}
	fold := cases.Fold()
	for i, entry := range file.Languages {
		if entry.Tag == "" {
			return nil, fmt.Errorf("lexicons: language %d has no tag", i)
		}
		if entry.Weight <= 0 {
			return nil, fmt.Errorf("lexicons: language %s: weight must be positive", entry.Tag)
		}

		cand := candidate{tag: entry.Tag, weight: entry.Weight}
		if len(entry.Words) > 0 {
			cand.words = make(map[string]struct{}, len(entry.Words))
			for _, w := range entry.Words {
				cand.words[fold.String(w)] = struct{}{}
			}
		}
		for _, r := range entry.Scripts {
			if len(r) != 2 || r[0] > r[1] {
				return nil, fmt.Errorf("lexicons: language %s: invalid script range %v", entry.Tag, r)
			}
			cand.ranges = append(cand.ranges, runeRange{lo: rune(r[0]), hi: rune(r[1])})
		}
		c.candidates = append(c.candidates, cand)
	}
	return c, nil
}

// Tags returns the candidate languages in priority order.
func (c *Classifier) Tags() []Tag {
	tags := make([]Tag, len(c.candidates))
	for i, cand := range c.candidates {
		tags[i] = cand.tag
	}
	return tags
}

// Classify returns the best-guess language of text. It always returns a
// tag; text that matches nothing gets the first candidate.
func (c *Classifier) Classify(text string) Tag {
	scores := c.Scores(text)
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return c.candidates[best].tag
}

// Scores returns the weighted score of text for each candidate, in
// priority order.
func (c *Classifier) Scores(text string) []float64 {
	// The caser is stateful; use a fresh one per call.
	fold := cases.Fold()
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && r != '\''
	})
	for i, w := range words {
		words[i] = fold.String(w)
	}

	scores := make([]float64, len(c.candidates))
	for i, cand := range c.candidates {
		var raw int
		if cand.words != nil {
			for _, w := range words {
				if _, ok := cand.words[w]; ok {
					raw += len([]rune(w))
				}
			}
		}
		if len(cand.ranges) > 0 {
			for _, r := range text {
				if cand.inScript(r) {
					raw++
				}
			}
		}
		scores[i] = float64(raw) * cand.weight
	}
	return scores
}

func (c *candidate) inScript(r rune) bool {
	for _, rr := range c.ranges {
		if r >= rr.lo && r <= rr.hi {
			return true
		}
	}
	return false
}

// ParseTag maps a language preference to a Tag. It accepts tag names
// ("english") and BCP-47 codes ("en", "pt-BR", "ja", "fa-IR").
func ParseTag(code string) (Tag, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	switch t := Tag(strings.ToLower(code)); t {
	case English, Portuguese, Japanese, Farsi:
		return t, true
	}

	parsed, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := parsed.Base()
	switch base.String() {
	case "en":
		return English, true
	case "pt":
		return Portuguese, true
	case "ja":
		return Japanese, true
	case "fa":
		return Farsi, true
	}
	return "", false
}
