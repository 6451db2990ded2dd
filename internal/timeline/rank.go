package timeline

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/embed"
)

// ComboExponent is k in the combo ordering age / score^k.
const ComboExponent = 5

// score attaches a semantic score to every post and drops those at or below
// minimum. All texts go to the oracle in one request.
func score(ctx context.Context, oracle domain.Embedder, posts []domain.ScoredPost, b domain.Behaviour) ([]domain.ScoredPost, error) {
	if len(posts) == 0 {
		return posts, nil
	}
	if oracle == nil {
		return nil, &domain.OracleError{Err: fmt.Errorf("no embedding oracle configured")}
	}

	texts := make([]string, 0, len(posts)+len(b.PositivePrompts)+len(b.NegativePrompts))
	for _, p := range posts {
		texts = append(texts, RenderText(p))
	}
	texts = append(texts, b.PositivePrompts...)
	texts = append(texts, b.NegativePrompts...)

	vectors, err := oracle.Embed(ctx, texts)
	if err != nil {
		return nil, &domain.OracleError{Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &domain.OracleError{Err: fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts))}
	}

	postVecs := vectors[:len(posts)]
	positives := vectors[len(posts) : len(posts)+len(b.PositivePrompts)]
	negatives := vectors[len(posts)+len(b.PositivePrompts):]

	kept := make([]domain.ScoredPost, 0, len(posts))
	for i, p := range posts {
		s := maxSimilarity(postVecs[i], positives) - maxSimilarity(postVecs[i], negatives)
		if s <= b.MinimumScore {
			continue
		}
		kept = append(kept, p.WithScore(s))
	}
	return kept, nil
}

// maxSimilarity is 0 when there are no prompts on that side.
func maxSimilarity(v []float32, prompts [][]float32) float64 {
	if len(prompts) == 0 {
		return 0
	}
	best := math.Inf(-1)
	for _, p := range prompts {
		best = max(best, embed.CosineSimilarity(v, p))
	}
	return best
}

// Sort orders posts in place. Time ordering ignores scores. Score and combo
// orderings rank unscored and non-positive posts after positive ones.
func Sort(posts []domain.ScoredPost, mode domain.SortMode, now time.Time) {
	switch mode {
	case domain.SortScore:
		slices.SortStableFunc(posts, func(a, b domain.ScoredPost) int {
			if c := cmp.Compare(scoreOf(b), scoreOf(a)); c != 0 {
				return c
			}
			return byTime(a, b)
		})
	case domain.SortCombo:
		slices.SortStableFunc(posts, func(a, b domain.ScoredPost) int {
			if c := cmp.Compare(comboKey(a, now), comboKey(b, now)); c != 0 {
				return c
			}
			return byTime(a, b)
		})
	default:
		slices.SortStableFunc(posts, byTime)
	}
}

func byTime(a, b domain.ScoredPost) int {
	if c := b.Timestamp().Compare(a.Timestamp()); c != 0 {
		return c
	}
	return cmp.Compare(a.URI, b.URI)
}

func scoreOf(p domain.ScoredPost) float64 {
	if p.Score == nil {
		return math.Inf(-1)
	}
	return *p.Score
}

// comboKey is ageMs / score^k; smaller ranks first. Posts without a positive
// score get +Inf so they sort last.
func comboKey(p domain.ScoredPost, now time.Time) float64 {
	s := scoreOf(p)
	if s <= 0 {
		return math.Inf(1)
	}
	age := float64(max(now.Sub(p.Timestamp()).Milliseconds(), 0))
	return age / math.Pow(s, ComboExponent)
}
