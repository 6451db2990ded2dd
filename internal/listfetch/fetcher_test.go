package listfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return epoch.Add(time.Duration(minute) * time.Minute)
}

func postAt(source string, minute int) domain.ScoredPost {
	id := fmt.Sprintf("%s-%d", source, minute)
	return domain.ScoredPost{Post: domain.Post{
		URI:       "at://" + source + "/app.bsky.feed.post/" + id,
		CID:       "cid-" + id,
		Author:    domain.Author{DID: source},
		CreatedAt: at(minute),
	}}
}

func page(source string, cursor string, minutes ...int) domain.Page {
	p := domain.Page{Cursor: cursor}
	for _, m := range minutes {
		p.Posts = append(p.Posts, postAt(source, m))
	}
	return p
}

// fakeSources serves pages by index; the cursor is the next page index.
type fakeSources struct {
	mu     sync.Mutex
	pages  map[string][]domain.Page
	fail   map[string]bool
	calls  map[string]int
	limits map[string][]int
}

func newFakeSources(pages map[string][]domain.Page) *fakeSources {
	return &fakeSources{
		pages:  pages,
		fail:   map[string]bool{},
		calls:  map[string]int{},
		limits: map[string][]int{},
	}
}

func (f *fakeSources) fetch(_ context.Context, source, cursor string, limit int) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++
	f.limits[source] = append(f.limits[source], limit)
	if f.fail[source] {
		return domain.Page{}, errors.New("upstream unavailable")
	}
	idx := 0
	if cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	pages := f.pages[source]
	if idx >= len(pages) {
		return domain.Page{}, nil
	}
	return pages[idx], nil
}

func newTestFetcher(f *fakeSources, opts Options) *Fetcher {
	return NewFetcher(f.fetch, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func threeSources() *fakeSources {
	return newFakeSources(map[string][]domain.Page{
		"a": {
			page("a", "1", 50, 40, 30, 20, 10),
			page("a", "2", 9, 7, 3, 1, 0),
		},
		"b": {
			page("b", "1", 100, 90, 80, 70, 60),
			page("b", "2", 55, 45, 35, 25, 8),
			page("b", "3", 6, 4, 2),
		},
		"c": {
			page("c", "1", 95, 85, 75, 65, 62),
			page("c", "2", 52, 42, 32, 22, 5),
			page("c", "3", 4, 2),
		},
	})
}

func TestFetch_BackfillsOnlyShallowSources(t *testing.T) {
	sources := threeSources()
	f := newTestFetcher(sources, Options{InitialLimit: 5})

	posts, state, err := f.Fetch(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sources.calls["a"])
	assert.Equal(t, 2, sources.calls["b"])
	assert.Equal(t, 2, sources.calls["c"])
	assert.Equal(t, []int{5, DefaultBackfillLimit}, sources.limits["b"])

	assert.Equal(t, at(10), state.Horizon)
	assertWindow(t, posts, time.Time{}, state.Horizon)
	// a contributes 5, b and c everything down to minute 10.
	assert.Len(t, posts, 5+9+9)
}

func TestFetch_ContinuesBelowPreviousHorizon(t *testing.T) {
	sources := threeSources()
	f := newTestFetcher(sources, Options{InitialLimit: 5})

	first, state, err := f.Fetch(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	firstHorizon := state.Horizon

	second, next, err := f.Fetch(context.Background(), []string{"a", "b", "c"}, state)
	require.NoError(t, err)

	// Only a had nothing below the previous horizon.
	assert.Equal(t, 2, sources.calls["a"])
	assert.Equal(t, firstHorizon, state.Horizon, "prior state must not be mutated")
	assert.True(t, next.Horizon.Before(firstHorizon))
	assertWindow(t, second, firstHorizon, next.Horizon)

	seen := map[string]bool{}
	for _, p := range first {
		seen[p.CID] = true
	}
	for _, p := range second {
		assert.False(t, seen[p.CID], "post %s returned twice", p.CID)
	}
	assert.NotEmpty(t, second)
}

func TestFetch_NewSourceNeverRaisesHorizon(t *testing.T) {
	sources := newFakeSources(map[string][]domain.Page{
		"a": {
			page("a", "1", 50, 40, 30),
			page("a", "2", 20, 10),
		},
		"late": {
			page("late", "1", 1000, 995),
			page("late", "2", 990, 985),
			page("late", "3", 980, 975),
			page("late", "", 970),
		},
	})
	f := newTestFetcher(sources, Options{MaxRounds: 1})
	ctx := context.Background()

	first, state, err := f.Fetch(ctx, []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, at(30), state.Horizon)

	// late joins with posts far newer than anything returned so far.
	second, next, err := f.Fetch(ctx, []string{"a", "late"}, state)
	require.NoError(t, err)
	assert.Equal(t, at(30), next.Horizon)
	assert.Empty(t, second)

	third, last, err := f.Fetch(ctx, []string{"a", "late"}, next)
	require.NoError(t, err)
	assert.Equal(t, at(10), last.Horizon)
	assertWindow(t, third, next.Horizon, last.Horizon)

	seen := map[string]bool{}
	for _, p := range first {
		seen[p.CID] = true
	}
	for _, p := range third {
		assert.False(t, seen[p.CID], "post %s returned twice", p.CID)
	}
	require.Len(t, third, 2)
	assert.Equal(t, "cid-a-20", third[0].CID)
	assert.Equal(t, "cid-a-10", third[1].CID)
}

func TestFetch_FailingSourceIsExhausted(t *testing.T) {
	sources := threeSources()
	sources.fail["b"] = true
	f := newTestFetcher(sources, Options{InitialLimit: 5})

	posts, state, err := f.Fetch(context.Background(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)

	assert.True(t, state.Sources["b"].Exhausted)
	assert.Equal(t, 1, sources.calls["b"])
	assert.NotEmpty(t, posts)
	for _, p := range posts {
		assert.NotEqual(t, "b", p.Author.DID)
	}
}

func TestFetch_StopsAfterMaxRounds(t *testing.T) {
	var deep []domain.Page
	for i := 0; i < 10; i++ {
		start := 1000 - i*10
		deep = append(deep, page("slow", strconv.Itoa(i+1), start, start-5))
	}
	sources := newFakeSources(map[string][]domain.Page{
		"fast": {page("fast", "1", 100, 0)},
		"slow": deep,
	})
	f := newTestFetcher(sources, Options{MaxRounds: 2})

	_, _, err := f.Fetch(context.Background(), []string{"fast", "slow"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sources.calls["fast"])
	assert.Equal(t, 3, sources.calls["slow"])
}

func TestFetch_EmptySourceNeverBackfills(t *testing.T) {
	sources := newFakeSources(map[string][]domain.Page{
		"quiet": {},
		"busy":  {page("busy", "1", 30, 20), page("busy", "2", 10)},
	})
	f := newTestFetcher(sources, Options{})

	posts, state, err := f.Fetch(context.Background(), []string{"quiet", "busy"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sources.calls["quiet"])
	assert.Equal(t, 1, sources.calls["busy"])
	assert.True(t, state.Sources["quiet"].Exhausted)
	assert.Len(t, posts, 2)
}

func TestFetch_AllExhaustedReturnsEverything(t *testing.T) {
	sources := newFakeSources(map[string][]domain.Page{
		"a": {page("a", "", 30, 10)},
		"b": {page("b", "", 20)},
	})
	f := newTestFetcher(sources, Options{})

	posts, state, err := f.Fetch(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)

	assert.True(t, state.Exhausted())
	assert.Len(t, posts, 3)
	assert.Equal(t, at(10), state.Horizon)
}

func TestFetch_DeduplicatesAcrossSources(t *testing.T) {
	shared := postAt("x", 15)
	pa := page("a", "", 20)
	pa.Posts = append(pa.Posts, shared)
	pb := page("b", "", 25)
	pb.Posts = append(pb.Posts, shared)

	sources := newFakeSources(map[string][]domain.Page{"a": {pa}, "b": {pb}})
	f := newTestFetcher(sources, Options{})

	posts, _, err := f.Fetch(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestFetch_NoSources(t *testing.T) {
	f := newTestFetcher(newFakeSources(nil), Options{})

	posts, state, err := f.Fetch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.NotNil(t, state)
}

func TestFetch_ReturnsContextError(t *testing.T) {
	f := newTestFetcher(threeSources(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.Fetch(ctx, []string{"a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestState_CloneIsDeep(t *testing.T) {
	s := newState()
	s.Sources["a"] = &SourceState{Posts: []domain.ScoredPost{postAt("a", 1)}, Cursor: "1"}

	c := s.Clone()
	c.Sources["a"].Posts[0].CID = "changed"
	c.Sources["a"].Cursor = "2"

	assert.Equal(t, "cid-a-1", s.Sources["a"].Posts[0].CID)
	assert.Equal(t, "1", s.Sources["a"].Cursor)
	assert.Nil(t, (*State)(nil).Clone())
}

func assertWindow(t *testing.T, posts []domain.ScoredPost, previous, horizon time.Time) {
	t.Helper()
	seen := map[string]bool{}
	for i, p := range posts {
		ts := p.Timestamp()
		assert.False(t, ts.Before(horizon), "post %s older than horizon", p.CID)
		if !previous.IsZero() {
			assert.True(t, ts.Before(previous), "post %s not older than previous horizon", p.CID)
		}
		assert.False(t, seen[p.CID], "duplicate post %s", p.CID)
		seen[p.CID] = true
		if i > 0 {
			assert.False(t, ts.After(posts[i-1].Timestamp()), "posts not sorted newest first")
		}
	}
}
