package timeline

import (
	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/graph"
	"github.com/blackmichael/bluesky-timelines/internal/language"
)

type filterFunc func(p *domain.ScoredPost) bool

func applyFilter(posts []domain.ScoredPost, keep filterFunc) []domain.ScoredPost {
	kept := posts[:0:0]
	for i := range posts {
		if keep(&posts[i]) {
			kept = append(kept, posts[i])
		}
	}
	return kept
}

// onlyMutuals keeps posts written by a mutual or by the actor.
func onlyMutuals(actor string, mutuals graph.Set) filterFunc {
	return func(p *domain.ScoredPost) bool {
		return p.Author.DID == actor || mutuals.Has(p.Author.DID)
	}
}

func withoutReplies(p *domain.ScoredPost) bool {
	return !p.IsReply()
}

func inLanguage(c *language.Classifier, want language.Tag) filterFunc {
	return func(p *domain.ScoredPost) bool {
		return c.Classify(p.Text) == want
	}
}
