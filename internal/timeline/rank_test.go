package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

func TestSort_Time(t *testing.T) {
	posts := []domain.ScoredPost{
		mkPost("b", "did:plc:x", "", time.Hour).WithScore(0.9),
		mkPost("a", "did:plc:x", "", time.Minute),
		mkPost("c", "did:plc:x", "", 2*time.Hour).WithScore(0.1),
	}
	Sort(posts, domain.SortTime, now)
	assert.Equal(t, []string{"cid-a", "cid-b", "cid-c"}, cidsOf(posts))
}

func TestSort_TimeUsesRepostTime(t *testing.T) {
	reposted := mkPost("old", "did:plc:x", "", 48*time.Hour)
	reposted.RepostedBy = &domain.Author{DID: "did:plc:y"}
	reposted.RepostedAt = now.Add(-time.Minute)
	posts := []domain.ScoredPost{mkPost("recent", "did:plc:x", "", time.Hour), reposted}

	Sort(posts, domain.SortTime, now)
	assert.Equal(t, []string{"cid-old", "cid-recent"}, cidsOf(posts))
}

func TestSort_Score(t *testing.T) {
	posts := []domain.ScoredPost{
		mkPost("low", "did:plc:x", "", time.Minute).WithScore(0.2),
		mkPost("none", "did:plc:x", "", time.Minute),
		mkPost("high", "did:plc:x", "", time.Hour).WithScore(0.7),
	}
	Sort(posts, domain.SortScore, now)
	assert.Equal(t, []string{"cid-high", "cid-low", "cid-none"}, cidsOf(posts))
}

func TestSort_ComboBlendsAgeAndScore(t *testing.T) {
	posts := []domain.ScoredPost{
		// 1h / 0.5^5 = 115.2M ms
		mkPost("fresh-weak", "did:plc:x", "", time.Hour).WithScore(0.5),
		// 2h / 0.9^5 = 12.2M ms
		mkPost("older-strong", "did:plc:x", "", 2*time.Hour).WithScore(0.9),
		mkPost("negative", "did:plc:x", "", time.Second).WithScore(-0.1),
		mkPost("zero", "did:plc:x", "", time.Second).WithScore(0),
	}
	Sort(posts, domain.SortCombo, now)
	assert.Equal(t, []string{"cid-older-strong", "cid-fresh-weak", "cid-negative", "cid-zero"}, cidsOf(posts))
}

func TestRenderText(t *testing.T) {
	parent := mkPost("parent", "did:plc:alice", "Who wants tea?", time.Hour).Post
	p := mkPost("child", "did:plc:bob", "  me, always  ", time.Minute)
	p.Parent = &parent
	p.Embed = domain.QuotePost{
		Post:  domain.Post{Author: domain.Author{Handle: "carol.bsky.social"}, Text: "tea is life"},
		Media: domain.ImageSet{Images: []domain.Image{{Alt: "a teapot"}, {}}},
	}

	got := RenderText(p)
	assert.Equal(t, "In reply to @alice.bsky.social: Who wants tea?\n\n"+
		"me, always\n[quoting @carol.bsky.social: tea is life]\n[image: a teapot]", got)
}

func TestRenderText_ExternalLink(t *testing.T) {
	p := mkPost("link", "did:plc:x", "read this", time.Minute)
	p.Embed = domain.ExternalLink{URI: "https://example.com", Title: "Cats", Description: "all about cats"}

	assert.Equal(t, "read this\n[link: Cats - all about cats]", RenderText(p))
}
