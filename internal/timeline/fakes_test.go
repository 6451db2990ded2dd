package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/graph"
	"github.com/blackmichael/bluesky-timelines/internal/language"
	"github.com/blackmichael/bluesky-timelines/internal/listfetch"
	"github.com/blackmichael/bluesky-timelines/internal/respcache"
	"github.com/blackmichael/bluesky-timelines/internal/thread"
)

const actorDID = "did:plc:me"

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkPost(id, author, text string, age time.Duration) domain.ScoredPost {
	return domain.ScoredPost{Post: domain.Post{
		URI:       "at://" + author + "/app.bsky.feed.post/" + id,
		CID:       "cid-" + id,
		Author:    domain.Author{DID: author, Handle: strings.TrimPrefix(author, "did:plc:") + ".bsky.social"},
		Text:      text,
		CreatedAt: now.Add(-age),
	}}
}

func asReply(p domain.ScoredPost, parentURI string) domain.ScoredPost {
	p.Reply = &domain.ReplyRef{ParentURI: parentURI, RootURI: parentURI}
	return p
}

type fakeSource struct {
	mu        sync.Mutex
	timeline  domain.Page
	popular   domain.Page
	authors   map[string][]domain.Page
	follows   []string
	followers []string
	err       error
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{authors: map[string][]domain.Page{}, calls: map[string]int{}}
}

func (f *fakeSource) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.err != nil {
		return &domain.UpstreamError{Kind: domain.UpstreamPosts, Op: op, Err: f.err}
	}
	return nil
}

func (f *fakeSource) GetTimeline(_ context.Context, _ string, _ int) (domain.Page, error) {
	if err := f.record("getTimeline"); err != nil {
		return domain.Page{}, err
	}
	return f.timeline, nil
}

func (f *fakeSource) GetAuthorFeed(_ context.Context, actor, cursor string, _ int) (domain.Page, error) {
	if err := f.record("getAuthorFeed"); err != nil {
		return domain.Page{}, err
	}
	idx := 0
	if cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	pages := f.authors[actor]
	if idx >= len(pages) {
		return domain.Page{}, nil
	}
	return pages[idx], nil
}

func (f *fakeSource) GetPopular(_ context.Context, _ string, _ int) (domain.Page, error) {
	if err := f.record("getPopular"); err != nil {
		return domain.Page{}, err
	}
	return f.popular, nil
}

func profiles(dids []string) domain.ProfilePage {
	page := domain.ProfilePage{}
	for _, d := range dids {
		page.Profiles = append(page.Profiles, domain.Author{DID: d})
	}
	return page
}

func (f *fakeSource) GetFollows(_ context.Context, _, _ string) (domain.ProfilePage, error) {
	if err := f.record("getFollows"); err != nil {
		return domain.ProfilePage{}, err
	}
	return profiles(f.follows), nil
}

func (f *fakeSource) GetFollowers(_ context.Context, _, _ string) (domain.ProfilePage, error) {
	if err := f.record("getFollowers"); err != nil {
		return domain.ProfilePage{}, err
	}
	return profiles(f.followers), nil
}

func (f *fakeSource) GetListMembers(_ context.Context, _, _ string) (domain.ProfilePage, error) {
	if err := f.record("getListMembers"); err != nil {
		return domain.ProfilePage{}, err
	}
	return profiles(f.follows), nil
}

func (f *fakeSource) GetPostThread(_ context.Context, uri string) (*domain.ThreadNode, error) {
	return nil, &domain.UpstreamError{Kind: domain.UpstreamThread, Op: "getPostThread", Err: errors.New("no threads here")}
}

// topicEmbedder maps texts onto 2D unit vectors so that cosine similarity
// against the "cats" prompt is exactly the configured value.
type topicEmbedder struct {
	similarity map[string]float64
	err        error
	calls      int
}

func (e *topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sim := 0.0
		if text == "cats" {
			sim = 1
		} else {
			for word, s := range e.similarity {
				if strings.Contains(text, word) {
					sim = s
				}
			}
		}
		out[i] = []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
	}
	return out, nil
}

type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{values: map[string][]byte{}}
}

func (s *memStore) GetPreference(_ context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (s *memStore) SetPreference(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	return nil
}

func (s *memStore) DeletePreference(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memStore) ListPreferenceKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestPipeline(source *fakeSource, embedder domain.Embedder) *Pipeline {
	logger := discardLogger()
	threads := thread.NewCachedFetcher(source, respcache.New[[]domain.PostView]("threads", respcache.Options{}), 0)
	return NewPipeline(Deps{
		Source:     source,
		Graph:      graph.NewCache(source, logger, 0),
		Lists:      listfetch.NewFetcher(AuthorFeedPages(source), logger, listfetch.Options{}),
		Classifier: language.MustClassifier(),
		Embedder:   embedder,
		Merger:     thread.NewMerger(threads, logger, thread.Options{}),
		Logger:     logger,
		Now:        func() time.Time { return now },
	})
}

func timelineWith(b domain.Behaviour) domain.TimelineConfig {
	cfg := domain.TimelineConfig{Key: "timeline:test", Identity: domain.Identity{Name: "Test"}, Behaviour: b}
	cfg.Normalize()
	return cfg
}
