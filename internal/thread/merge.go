// Package thread reconstructs conversations from a flat list of posts by
// attaching each reply's ancestor chain and dropping posts that are already
// shown as context of another post.
package thread

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

const (
	defaultInitialBatch = 4
	defaultConcurrency  = 8
)

// AncestorFetcher returns the ancestor chain of the post at uri, oldest
// first, ending with that post.
type AncestorFetcher interface {
	FetchAncestors(ctx context.Context, uri string) ([]domain.Post, error)
}

// Options configures a Merger.
type Options struct {
	// InitialBatch is the size of the first batch; each later batch doubles.
	InitialBatch int

	// Concurrency caps in-flight ancestor fetches within a batch.
	Concurrency int
}

// Merger attaches reply context to posts in progressively larger batches.
type Merger struct {
	fetcher AncestorFetcher
	logger  *slog.Logger
	opts    Options
}

// NewMerger creates a Merger backed by fetcher.
func NewMerger(fetcher AncestorFetcher, logger *slog.Logger, opts Options) *Merger {
	if opts.InitialBatch <= 0 {
		opts.InitialBatch = defaultInitialBatch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Merger{fetcher: fetcher, logger: logger, opts: opts}
}

// Merge returns a channel that yields the top-level post list after every
// batch and once more when all posts are processed, then closes. Each
// emitted slice is owned by the receiver. The channel closes early if ctx
// is cancelled.
func (m *Merger) Merge(ctx context.Context, posts []domain.ScoredPost) <-chan []domain.ScoredPost {
	out := make(chan []domain.ScoredPost)

	go func() {
		defer close(out)

		merged := make([]domain.ScoredPost, len(posts))
		copy(merged, posts)

		emit := func() bool {
			select {
			case out <- Dedupe(merged):
				return true
			case <-ctx.Done():
				return false
			}
		}

		size := m.opts.InitialBatch
		for start := 0; start < len(merged); {
			end := min(start+size, len(merged))
			m.attach(ctx, merged[start:end])
			if !emit() {
				return
			}
			start = end
			size *= 2
		}
		emit()
	}()

	return out
}

// MergeAll drains Merge and returns the final list.
func (m *Merger) MergeAll(ctx context.Context, posts []domain.ScoredPost) []domain.ScoredPost {
	var last []domain.ScoredPost
	for update := range m.Merge(ctx, posts) {
		last = update
	}
	return last
}

// attach fetches the parent chain of every reply in batch. A failed fetch
// leaves that post without context.
func (m *Merger) attach(ctx context.Context, batch []domain.ScoredPost) {
	var g errgroup.Group
	g.SetLimit(m.opts.Concurrency)

	for i := range batch {
		p := &batch[i]
		if !p.IsReply() || len(p.ReplyingTo) > 0 {
			continue
		}
		g.Go(func() error {
			chain, err := m.fetcher.FetchAncestors(ctx, p.Reply.ParentURI)
			if err != nil {
				m.logger.Warn("failed to fetch reply context",
					"uri", p.URI,
					"parent", p.Reply.ParentURI,
					"error", err,
				)
				return nil
			}
			ancestors := make([]domain.ScoredPost, len(chain))
			for j, a := range chain {
				ancestors[j] = domain.ScoredPost{Post: a}
			}
			p.ReplyingTo = ancestors
			return nil
		})
	}
	_ = g.Wait()
}

// Dedupe returns the posts that do not appear, by CID, inside another
// post's reply chain.
func Dedupe(posts []domain.ScoredPost) []domain.ScoredPost {
	nested := make(map[string]struct{})
	for _, p := range posts {
		for _, a := range p.ReplyingTo {
			nested[a.CID] = struct{}{}
		}
	}

	result := make([]domain.ScoredPost, 0, len(posts))
	for _, p := range posts {
		if _, ok := nested[p.CID]; ok {
			continue
		}
		result = append(result, p)
	}
	return result
}
