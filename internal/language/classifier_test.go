package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_EnglishSentence(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, English, c.Classify("the cat sat on the mat"))
}

func TestClassify_FunctionWordsDecide(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, English, c.Classify("the zebra slept on the roof"))
	assert.Equal(t, Portuguese, c.Classify("o pinguim dormiu em cima da mesa"))
}

func TestClassify_PortugueseSentence(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, Portuguese, c.Classify("Hoje eu não vou para a praia porque está chovendo"))
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, English, c.Classify("THE CAT SAT ON THE MAT"))
}

func TestClassify_Scripts(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, Japanese, c.Classify("今日はとても良い天気ですね"))
	assert.Equal(t, Farsi, c.Classify("امروز هوا خیلی خوب است"))
}

func TestClassify_NoMatchReturnsFirstCandidate(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	assert.Equal(t, c.Tags()[0], c.Classify(""))
	assert.Equal(t, c.Tags()[0], c.Classify("zzzz qqqq 12345"))
}

func TestClassify_Idempotent(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)

	texts := []string{
		"the cat sat on the mat",
		"eu gosto de gatos",
		"猫が好きです",
		"",
		"a a a a",
	}
	for _, text := range texts {
		assert.Equal(t, c.Classify(text), c.Classify(text), "text %q", text)
	}
}

func TestClassify_TieGoesToPriorityOrder(t *testing.T) {
	doc := []byte(`
languages:
  - tag: english
    weight: 1
    words: [cat]
  - tag: portuguese
    weight: 1
    words: [cat]
`)
	c, err := ParseClassifier(doc)
	require.NoError(t, err)

	assert.Equal(t, English, c.Classify("cat"))
}

func TestClassify_WeightsScaleScores(t *testing.T) {
	doc := []byte(`
languages:
  - tag: english
    weight: 1
    words: [the]
  - tag: portuguese
    weight: 2
    words: [de]
`)
	c, err := ParseClassifier(doc)
	require.NoError(t, err)

	// "the" scores 3, "de" scores 2*2=4
	assert.Equal(t, []float64{3, 4}, c.Scores("the de"))
	assert.Equal(t, Portuguese, c.Classify("the de"))
}

func TestParseClassifier_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", `languages: []`},
		{"missing tag", "languages:\n  - weight: 1\n    words: [a]\n"},
		{"zero weight", "languages:\n  - tag: english\n    words: [a]\n"},
		{"bad range", "languages:\n  - tag: japanese\n    weight: 1\n    scripts:\n      - [10, 1]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassifier([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		code string
		want Tag
		ok   bool
	}{
		{"en", English, true},
		{"en-US", English, true},
		{"pt-BR", Portuguese, true},
		{"ja", Japanese, true},
		{"fa-IR", Farsi, true},
		{"Portuguese", Portuguese, true},
		{"de", "", false},
		{"", "", false},
		{"not a tag!", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseTag(tt.code)
		assert.Equal(t, tt.ok, ok, "code %q", tt.code)
		assert.Equal(t, tt.want, got, "code %q", tt.code)
	}
}
