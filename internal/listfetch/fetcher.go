// Package listfetch merges many independently paginated author feeds into
// one time-ordered window, backfilling sources until they all reach the same
// depth.
package listfetch

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

const (
	DefaultInitialLimit  = 10
	DefaultBackfillLimit = 50
	DefaultMaxRounds     = 5
	DefaultConcurrency   = 8
)

// PageFetcher loads one page of posts for a source.
type PageFetcher func(ctx context.Context, source, cursor string, limit int) (domain.Page, error)

// Options tunes a Fetcher. Zero values use the defaults.
type Options struct {
	InitialLimit  int
	BackfillLimit int

	// MaxRounds caps the number of backfill rounds per call.
	MaxRounds int

	// Concurrency caps in-flight page requests.
	Concurrency int
}

// Fetcher runs multi-source fetches.
type Fetcher struct {
	fetch  PageFetcher
	logger *slog.Logger
	opts   Options
}

// NewFetcher creates a Fetcher that loads pages through fetch.
func NewFetcher(fetch PageFetcher, logger *slog.Logger, opts Options) *Fetcher {
	if opts.InitialLimit <= 0 {
		opts.InitialLimit = DefaultInitialLimit
	}
	if opts.BackfillLimit <= 0 {
		opts.BackfillLimit = DefaultBackfillLimit
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Fetcher{fetch: fetch, logger: logger, opts: opts}
}

// Fetch returns the next window of posts across sources, newest first, and
// the state to pass to the following call. prior is never modified. A
// failing source is treated as exhausted; the only error returned is ctx's.
func (f *Fetcher) Fetch(ctx context.Context, sources []string, prior *State) ([]domain.ScoredPost, *State, error) {
	state := prior.Clone()
	if state == nil {
		state = newState()
	}
	previous := state.Horizon

	var fresh, more []string
	for _, id := range sources {
		src, ok := state.Sources[id]
		if !ok {
			state.Sources[id] = &SourceState{}
			fresh = append(fresh, id)
			continue
		}
		if src.Exhausted || previous.IsZero() {
			continue
		}
		if oldest, ok := src.Oldest(); !ok || !oldest.Before(previous) {
			more = append(more, id)
		}
	}

	if err := f.fetchPages(ctx, state, fresh, f.opts.InitialLimit); err != nil {
		return nil, nil, err
	}
	if err := f.fetchPages(ctx, state, more, f.opts.BackfillLimit); err != nil {
		return nil, nil, err
	}

	if target, ok := state.depth(); ok {
		for round := 1; round <= f.opts.MaxRounds; round++ {
			behind := state.behind(target)
			if len(behind) == 0 {
				break
			}
			f.logger.Debug("backfilling sources",
				"round", round,
				"sources", len(behind),
				"target", target,
			)
			if err := f.fetchPages(ctx, state, behind, f.opts.BackfillLimit); err != nil {
				return nil, nil, err
			}
		}
	}

	horizon, ok := state.youngestOldest()
	if !ok {
		return nil, state, nil
	}
	// A source added since the last call may not reach below the previous
	// horizon yet; the horizon never moves back up.
	if !previous.IsZero() && horizon.After(previous) {
		horizon = previous
	}
	state.Horizon = horizon

	return window(state, previous, horizon), state, nil
}

// behind returns the live sources whose oldest post is newer than target.
func (s *State) behind(target time.Time) []string {
	var ids []string
	for id, src := range s.Sources {
		if src.Exhausted {
			continue
		}
		if oldest, ok := src.Oldest(); ok && oldest.After(target) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (f *Fetcher) fetchPages(ctx context.Context, state *State, ids []string, limit int) error {
	if len(ids) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for _, id := range ids {
		src := state.Sources[id]
		g.Go(func() error {
			page, err := f.fetch(ctx, id, src.Cursor, limit)
			if err != nil {
				f.logger.Warn("source fetch failed, treating as exhausted",
					"source", id,
					"error", err,
				)
				src.Exhausted = true
				return nil
			}
			src.Posts = append(src.Posts, page.Posts...)
			src.Cursor = page.Cursor
			if len(page.Posts) == 0 || page.Cursor == "" {
				src.Exhausted = true
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// window collects posts older than previous (everything when previous is
// zero) and no older than horizon.
func window(state *State, previous, horizon time.Time) []domain.ScoredPost {
	seen := make(map[string]struct{})
	var posts []domain.ScoredPost
	for _, src := range state.Sources {
		for _, p := range src.Posts {
			ts := p.Timestamp()
			if !previous.IsZero() && !ts.Before(previous) {
				continue
			}
			if ts.Before(horizon) {
				continue
			}
			if _, dup := seen[p.CID]; dup {
				continue
			}
			seen[p.CID] = struct{}{}
			posts = append(posts, p)
		}
	}

	slices.SortFunc(posts, func(a, b domain.ScoredPost) int {
		if c := b.Timestamp().Compare(a.Timestamp()); c != 0 {
			return c
		}
		return cmp.Compare(a.URI, b.URI)
	})
	return posts
}
