// Package session drives one open timeline: it issues load-more and refresh
// calls against the feed pipeline and keeps the loaded segments free of
// duplicates.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/timeline"
)

// Status is the loading state of a session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusLoaded      Status = "loaded"
	StatusLoadingMore Status = "loadingMore"
	StatusRefreshing  Status = "refreshing"
)

// Producer is the feed pipeline as seen by a session.
type Producer interface {
	Produce(ctx context.Context, req timeline.Request) (timeline.Result, error)
	PostProcess(ctx context.Context, posts []domain.ScoredPost) <-chan []domain.ScoredPost
}

// Snapshot is a consistent view of a session.
type Snapshot struct {
	Timeline   string
	Status     Status
	Generation uint64
	Segments   []domain.Segment
	HasMore    bool
	Err        error
}

// Posts returns the posts of every segment in display order.
func (s Snapshot) Posts() []domain.ScoredPost {
	var posts []domain.ScoredPost
	for _, seg := range s.Segments {
		posts = append(posts, seg.Posts...)
	}
	return posts
}

type segment struct {
	domain.Segment
	cursor *timeline.Cursor
	done   bool
}

// Controller is the state machine behind one open timeline. It is safe for
// concurrent use; results of superseded loads are dropped.
type Controller struct {
	producer Producer
	actor    string
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	config     domain.TimelineConfig
	generation uint64
	segments   []*segment
	status     Status
	lastErr    error

	notifyMu sync.Mutex
	listener func(Snapshot)
}

// NewController creates an idle session for cfg on behalf of actor.
func NewController(producer Producer, cfg domain.TimelineConfig, actor string, logger *slog.Logger) *Controller {
	return &Controller{
		producer: producer,
		actor:    actor,
		logger:   logger,
		now:      time.Now,
		config:   cfg,
		status:   StatusIdle,
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// Calls are serialized and never made while the session lock is held.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.notifyMu.Lock()
	c.listener = fn
	c.notifyMu.Unlock()
}

// SetConfig switches the session to cfg, dropping every loaded segment and
// invalidating in-flight loads.
func (c *Controller) SetConfig(cfg domain.TimelineConfig) {
	c.mu.Lock()
	c.generation++
	c.config = cfg
	c.segments = nil
	c.status = StatusIdle
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// LoadMore appends the next page below the loaded posts. It is a no-op at
// the end of the feed.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	cursor, more := c.tailCursorLocked()
	if !more {
		c.mu.Unlock()
		return nil
	}
	seg, gen, req := c.reserveLocked(false, cursor)
	c.mu.Unlock()

	return c.load(ctx, seg, gen, req)
}

// Refresh prepends the newest page above the loaded posts.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	seg, gen, req := c.reserveLocked(true, nil)
	c.mu.Unlock()

	return c.load(ctx, seg, gen, req)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, more := c.tailCursorLocked()
	snap := Snapshot{
		Timeline:   c.config.Key,
		Status:     c.status,
		Generation: c.generation,
		Segments:   make([]domain.Segment, len(c.segments)),
		HasMore:    more,
		Err:        c.lastErr,
	}
	for i, s := range c.segments {
		seg := s.Segment
		seg.Posts = slices.Clone(s.Posts)
		snap.Segments[i] = seg
	}
	return snap
}

// Posts returns every loaded post in display order.
func (c *Controller) Posts() []domain.ScoredPost {
	return c.Snapshot().Posts()
}

// Status returns the loading state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// tailCursorLocked returns the cursor below the last completed segment. more
// is false once the feed is known to be exhausted.
func (c *Controller) tailCursorLocked() (cursor *timeline.Cursor, more bool) {
	for i := len(c.segments) - 1; i >= 0; i-- {
		if s := c.segments[i]; s.done {
			return s.cursor, s.cursor != nil
		}
	}
	return nil, true
}

// reserveLocked starts a new load generation and inserts an empty segment
// for it at the head or the tail. Segments of loads still in flight belong
// to older generations and are dropped.
func (c *Controller) reserveLocked(head bool, cursor *timeline.Cursor) (*segment, uint64, timeline.Request) {
	c.generation++
	c.segments = slices.DeleteFunc(c.segments, func(s *segment) bool { return !s.done })
	seg := &segment{Segment: domain.Segment{ID: uuid.NewString(), LoadedAt: c.now()}}

	switch {
	case len(c.segments) == 0:
		c.status = StatusLoading
	case head:
		c.status = StatusRefreshing
	default:
		c.status = StatusLoadingMore
	}
	c.lastErr = nil

	if head {
		c.segments = append([]*segment{seg}, c.segments...)
	} else {
		c.segments = append(c.segments, seg)
	}
	req := timeline.Request{Config: c.config, Actor: c.actor, Cursor: cursor, Refresh: head}
	return seg, c.generation, req
}

// errStale marks a load superseded by a newer one.
var errStale = errors.New("superseded by a newer load")

func (c *Controller) load(ctx context.Context, seg *segment, gen uint64, req timeline.Request) error {
	defer c.notify()
	c.notify()

	res, err := c.producer.Produce(ctx, req)
	if err != nil {
		if c.abandon(gen, seg, err) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for update := range c.producer.PostProcess(ctx, res.Posts) {
		if err := c.apply(gen, seg, update); err != nil {
			c.abandon(gen, seg, err)
			return nil
		}
		c.notify()
	}

	if err := ctx.Err(); err != nil {
		if c.abandon(gen, seg, err) {
			return nil
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.removeLocked(seg)
		return nil
	}
	seg.cursor = res.Cursor
	seg.done = true
	c.status = StatusLoaded
	return nil
}

// apply replaces the reserved segment's posts with update minus anything
// already shown in another segment.
func (c *Controller) apply(gen uint64, seg *segment, update []domain.ScoredPost) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return errStale
	}

	shown := make(map[string]struct{})
	for _, other := range c.segments {
		if other == seg {
			continue
		}
		for _, p := range other.Posts {
			shown[p.CID] = struct{}{}
			for _, a := range p.ReplyingTo {
				shown[a.CID] = struct{}{}
			}
		}
	}

	posts := make([]domain.ScoredPost, 0, len(update))
	for _, p := range update {
		if _, dup := shown[p.CID]; !dup {
			posts = append(posts, p)
		}
	}
	seg.Posts = posts
	return nil
}

// abandon removes a failed or superseded segment. It reports whether the
// load was stale, in which case err is not surfaced.
func (c *Controller) abandon(gen uint64, seg *segment, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(seg)
	if gen != c.generation {
		c.logger.Debug("discarding stale timeline load",
			"timeline", c.config.Key,
			"generation", gen,
			"current", c.generation,
		)
		return true
	}

	c.logger.Warn("timeline load failed",
		"timeline", c.config.Key,
		"error", err,
	)
	c.lastErr = err
	if len(c.segments) == 0 {
		c.status = StatusIdle
	} else {
		c.status = StatusLoaded
	}
	return false
}

func (c *Controller) removeLocked(seg *segment) {
	c.segments = slices.DeleteFunc(c.segments, func(s *segment) bool { return s == seg })
}

func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.listener == nil {
		return
	}
	c.listener(c.Snapshot())
}
