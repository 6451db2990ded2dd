// Package graph computes and memoizes the actor's social graph: follows,
// followers, list members and mutuals.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

// DefaultMaxPages bounds how many profile pages are read per query.
const DefaultMaxPages = 50

// ProfileSource is the part of the feed source the graph needs.
type ProfileSource interface {
	GetFollows(ctx context.Context, actor, cursor string) (domain.ProfilePage, error)
	GetFollowers(ctx context.Context, actor, cursor string) (domain.ProfilePage, error)
	GetListMembers(ctx context.Context, listURI, cursor string) (domain.ProfilePage, error)
}

// Set is a set of DIDs.
type Set map[string]struct{}

// Has reports whether did is in the set.
func (s Set) Has(did string) bool {
	_, ok := s[did]
	return ok
}

// Cache memoizes graph queries until they are invalidated. It is safe for
// concurrent use. Failed queries are not memoized.
type Cache struct {
	source   ProfileSource
	logger   *slog.Logger
	maxPages int

	mu      sync.Mutex
	follows map[string][]domain.Author
	members map[string][]domain.Author
	mutuals map[string]Set
}

// NewCache creates an empty Cache. maxPages <= 0 uses DefaultMaxPages.
func NewCache(source ProfileSource, logger *slog.Logger, maxPages int) *Cache {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	c := &Cache{source: source, logger: logger, maxPages: maxPages}
	c.Reset()
	return c
}

// Follows returns every account actor follows.
func (c *Cache) Follows(ctx context.Context, actor string) ([]domain.Author, error) {
	c.mu.Lock()
	cached, ok := c.follows[actor]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	follows, err := c.collect(ctx, actor, c.source.GetFollows)
	if err != nil {
		return nil, fmt.Errorf("listing follows of %s: %w", actor, err)
	}

	c.mu.Lock()
	c.follows[actor] = follows
	c.mu.Unlock()
	return follows, nil
}

// ListMembers returns every member of the list at listURI.
func (c *Cache) ListMembers(ctx context.Context, listURI string) ([]domain.Author, error) {
	c.mu.Lock()
	cached, ok := c.members[listURI]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	members, err := c.collect(ctx, listURI, c.source.GetListMembers)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", listURI, err)
	}

	c.mu.Lock()
	c.members[listURI] = members
	c.mu.Unlock()
	return members, nil
}

// Mutuals returns the DIDs that both follow and are followed by actor. The
// two directions are fetched concurrently.
func (c *Cache) Mutuals(ctx context.Context, actor string) (Set, error) {
	c.mu.Lock()
	cached, ok := c.mutuals[actor]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var follows, followers []domain.Author
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		follows, err = c.Follows(gctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		followers, err = c.collect(gctx, actor, c.source.GetFollowers)
		if err != nil {
			return fmt.Errorf("listing followers of %s: %w", actor, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	following := make(Set, len(follows))
	for _, a := range follows {
		following[a.DID] = struct{}{}
	}
	mutuals := make(Set)
	for _, a := range followers {
		if following.Has(a.DID) {
			mutuals[a.DID] = struct{}{}
		}
	}

	c.logger.Debug("computed mutuals",
		"actor", actor,
		"follows", len(follows),
		"followers", len(followers),
		"mutuals", len(mutuals),
	)

	c.mu.Lock()
	c.mutuals[actor] = mutuals
	c.mu.Unlock()
	return mutuals, nil
}

// Invalidate drops everything memoized for actor, or for a list when given a
// list URI.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.follows, key)
	delete(c.members, key)
	delete(c.mutuals, key)
}

// Reset drops every memoized entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follows = make(map[string][]domain.Author)
	c.members = make(map[string][]domain.Author)
	c.mutuals = make(map[string]Set)
}

type pageFunc func(ctx context.Context, subject, cursor string) (domain.ProfilePage, error)

func (c *Cache) collect(ctx context.Context, subject string, next pageFunc) ([]domain.Author, error) {
	var (
		profiles []domain.Author
		cursor   string
	)
	for page := 0; page < c.maxPages; page++ {
		p, err := next(ctx, subject, cursor)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p.Profiles...)
		if p.Cursor == "" || len(p.Profiles) == 0 {
			return profiles, nil
		}
		cursor = p.Cursor
	}

	c.logger.Warn("profile listing truncated",
		"subject", subject,
		"pages", c.maxPages,
		"profiles", len(profiles),
	)
	return profiles, nil
}
