package thread

import (
	"context"
	"slices"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/respcache"
)

// DefaultMaxHeight bounds how many ancestors are kept per chain.
const DefaultMaxHeight = 10

// ThreadSource is the part of the feed source the fetcher needs.
type ThreadSource interface {
	GetPostThread(ctx context.Context, uri string) (*domain.ThreadNode, error)
}

// CachedFetcher resolves ancestor chains through getPostThread and memoizes
// them in a response cache keyed by post URI.
type CachedFetcher struct {
	source    ThreadSource
	cache     *respcache.Cache[[]domain.PostView]
	maxHeight int
}

// NewCachedFetcher creates a fetcher. cache may be shared across sessions.
func NewCachedFetcher(source ThreadSource, cache *respcache.Cache[[]domain.PostView], maxHeight int) *CachedFetcher {
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	return &CachedFetcher{source: source, cache: cache, maxHeight: maxHeight}
}

// FetchAncestors implements AncestorFetcher.
func (f *CachedFetcher) FetchAncestors(ctx context.Context, uri string) ([]domain.Post, error) {
	if views, ok := f.cache.Get(uri); ok {
		return postsFromViews(views), nil
	}

	node, err := f.source.GetPostThread(ctx, uri)
	if err != nil {
		return nil, err
	}

	var chain []domain.Post
	for n := node; n != nil && len(chain) < f.maxHeight; n = n.Parent {
		chain = append(chain, n.Post)
	}
	slices.Reverse(chain)

	views := make([]domain.PostView, len(chain))
	for i, p := range chain {
		views[i] = domain.NewPostView(domain.ScoredPost{Post: p})
	}
	f.cache.Set(uri, views)

	return chain, nil
}

func postsFromViews(views []domain.PostView) []domain.Post {
	posts := make([]domain.Post, len(views))
	for i, v := range views {
		posts[i] = v.ScoredPost().Post
	}
	return posts
}
