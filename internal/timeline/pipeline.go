// Package timeline produces the posts of a configured timeline: it loads a
// base feed, filters it, scores it against prompts and sorts it. It also
// owns the system timelines and the registry of saved ones.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/graph"
	"github.com/blackmichael/bluesky-timelines/internal/language"
	"github.com/blackmichael/bluesky-timelines/internal/listfetch"
	"github.com/blackmichael/bluesky-timelines/internal/thread"
)

// DefaultPageLimit is the page size requested from single-source feeds.
const DefaultPageLimit = 30

// Cursor resumes a timeline where the previous page ended. It is opaque to
// callers.
type Cursor struct {
	Upstream string           `json:"upstream,omitempty"`
	List     *listfetch.State `json:"list,omitempty"`
}

// Request is one call to Produce.
type Request struct {
	Config domain.TimelineConfig

	// Actor is the DID of the authenticated user.
	Actor string

	// Cursor is nil for the newest page.
	Cursor *Cursor

	// Refresh drops memoized follows, mutuals and list members before
	// loading, so graph changes show up on an explicit refresh.
	Refresh bool
}

// Result is one produced page. Cursor is nil at the end of the feed.
type Result struct {
	Posts  []domain.ScoredPost
	Cursor *Cursor
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source     domain.FeedSource
	Graph      *graph.Cache
	Lists      *listfetch.Fetcher
	Classifier *language.Classifier
	Embedder   domain.Embedder
	Merger     *thread.Merger
	Logger     *slog.Logger

	// PageLimit defaults to DefaultPageLimit.
	PageLimit int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline produces timeline pages. It holds no per-session state.
type Pipeline struct {
	source     domain.FeedSource
	graph      *graph.Cache
	lists      *listfetch.Fetcher
	classifier *language.Classifier
	embedder   domain.Embedder
	merger     *thread.Merger
	logger     *slog.Logger
	pageLimit  int
	now        func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(d Deps) *Pipeline {
	p := &Pipeline{
		source:     d.Source,
		graph:      d.Graph,
		lists:      d.Lists,
		classifier: d.Classifier,
		embedder:   d.Embedder,
		merger:     d.Merger,
		logger:     d.Logger,
		pageLimit:  d.PageLimit,
		now:        d.Now,
	}
	if p.pageLimit <= 0 {
		p.pageLimit = DefaultPageLimit
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// AuthorFeedPages adapts a feed source to the list fetcher.
func AuthorFeedPages(source domain.FeedSource) listfetch.PageFetcher {
	return func(ctx context.Context, actor, cursor string, limit int) (domain.Page, error) {
		return source.GetAuthorFeed(ctx, actor, cursor, limit)
	}
}

// Produce loads, filters, scores and sorts one page of a timeline. Any
// upstream, graph or oracle failure fails the whole call.
func (p *Pipeline) Produce(ctx context.Context, req Request) (Result, error) {
	b := req.Config.Behaviour

	var want language.Tag
	if b.Language != "" {
		tag, ok := language.ParseTag(b.Language)
		if !ok {
			return Result{}, fmt.Errorf("%w: unsupported language %q", domain.ErrInvalidTimeline, b.Language)
		}
		want = tag
	}

	if req.Refresh {
		p.graph.Invalidate(req.Actor)
		if b.ListURI != "" {
			p.graph.Invalidate(b.ListURI)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mutuals graph.Set
		g       errgroup.Group
	)
	if b.MutualsOnly {
		g.Go(func() error {
			set, err := p.graph.Mutuals(ctx, req.Actor)
			mutuals = set
			return err
		})
	}

	posts, next, err := p.loadBase(ctx, req)
	if err != nil {
		cancel()
		_ = g.Wait()
		return Result{}, fmt.Errorf("loading %s feed: %w", b.BaseFeed, err)
	}
	loaded := len(posts)

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("computing mutuals: %w", err)
	}
	if b.MutualsOnly {
		posts = applyFilter(posts, onlyMutuals(req.Actor, mutuals))
	}
	if b.ReplyVisibility == domain.RepliesNone {
		posts = applyFilter(posts, withoutReplies)
	}
	if want != "" {
		posts = applyFilter(posts, inLanguage(p.classifier, want))
	}
	filtered := len(posts)

	mode := b.SortMode
	if b.HasPrompts() && mode != domain.SortTime {
		posts, err = score(ctx, p.embedder, posts, b)
		if err != nil {
			return Result{}, err
		}
	} else {
		mode = domain.SortTime
	}

	Sort(posts, mode, p.now())

	p.logger.Debug("produced timeline page",
		"timeline", req.Config.Key,
		"base", b.BaseFeed,
		"loaded", loaded,
		"filtered", filtered,
		"returned", len(posts),
		"more", next != nil,
	)

	return Result{Posts: posts, Cursor: next}, nil
}

// PostProcess attaches reply context to produced posts. See thread.Merger.
func (p *Pipeline) PostProcess(ctx context.Context, posts []domain.ScoredPost) <-chan []domain.ScoredPost {
	return p.merger.Merge(ctx, posts)
}

func (p *Pipeline) loadBase(ctx context.Context, req Request) ([]domain.ScoredPost, *Cursor, error) {
	b := req.Config.Behaviour

	var upstream string
	var prior *listfetch.State
	if req.Cursor != nil {
		upstream = req.Cursor.Upstream
		prior = req.Cursor.List
	}

	switch b.BaseFeed {
	case domain.BaseFollowing, "":
		page, err := p.source.GetTimeline(ctx, upstream, p.pageLimit)
		if err != nil {
			return nil, nil, err
		}
		return page.Posts, upstreamCursor(page.Cursor), nil

	case domain.BasePopular:
		page, err := p.source.GetPopular(ctx, upstream, p.pageLimit)
		if err != nil {
			return nil, nil, err
		}
		return page.Posts, upstreamCursor(page.Cursor), nil

	case domain.BaseFollows:
		follows, err := p.graph.Follows(ctx, req.Actor)
		if err != nil {
			return nil, nil, err
		}
		return p.loadList(ctx, follows, prior)

	case domain.BaseList:
		members, err := p.graph.ListMembers(ctx, b.ListURI)
		if err != nil {
			return nil, nil, err
		}
		return p.loadList(ctx, members, prior)

	default:
		return nil, nil, fmt.Errorf("%w: unknown base feed %q", domain.ErrInvalidTimeline, b.BaseFeed)
	}
}

func (p *Pipeline) loadList(ctx context.Context, authors []domain.Author, prior *listfetch.State) ([]domain.ScoredPost, *Cursor, error) {
	sources := make([]string, len(authors))
	for i, a := range authors {
		sources[i] = a.DID
	}

	posts, state, err := p.lists.Fetch(ctx, sources, prior)
	if err != nil {
		return nil, nil, err
	}
	if state.Exhausted() {
		return posts, nil, nil
	}
	return posts, &Cursor{List: state}, nil
}

func upstreamCursor(c string) *Cursor {
	if c == "" {
		return nil
	}
	return &Cursor{Upstream: c}
}
