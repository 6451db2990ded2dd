package listfetch

import (
	"slices"
	"time"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

// SourceState is everything loaded so far from one source.
type SourceState struct {
	Posts     []domain.ScoredPost `json:"posts"`
	Cursor    string              `json:"cursor,omitempty"`
	Exhausted bool                `json:"exhausted"`
}

// Oldest returns the timestamp of the oldest loaded post. ok is false when
// nothing has been loaded.
func (s *SourceState) Oldest() (oldest time.Time, ok bool) {
	for i := range s.Posts {
		ts := s.Posts[i].Timestamp()
		if !ok || ts.Before(oldest) {
			oldest, ok = ts, true
		}
	}
	return oldest, ok
}

// State carries a multi-source fetch across calls so that a later call
// continues below the horizon of the previous one.
type State struct {
	Sources map[string]*SourceState `json:"sources"`

	// Horizon is the oldest timestamp already returned to the caller.
	Horizon time.Time `json:"horizon"`
}

func newState() *State {
	return &State{Sources: make(map[string]*SourceState)}
}

// Clone returns a deep copy of s. A nil State clones to nil.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		Sources: make(map[string]*SourceState, len(s.Sources)),
		Horizon: s.Horizon,
	}
	for id, src := range s.Sources {
		c.Sources[id] = &SourceState{
			Posts:     slices.Clone(src.Posts),
			Cursor:    src.Cursor,
			Exhausted: src.Exhausted,
		}
	}
	return c
}

// Exhausted reports whether no source has more pages.
func (s *State) Exhausted() bool {
	if s == nil {
		return false
	}
	for _, src := range s.Sources {
		if !src.Exhausted {
			return false
		}
	}
	return true
}

// depth is the oldest timestamp any live source has reached.
func (s *State) depth() (time.Time, bool) {
	var target time.Time
	found := false
	for _, src := range s.Sources {
		if src.Exhausted {
			continue
		}
		if oldest, ok := src.Oldest(); ok && (!found || oldest.Before(target)) {
			target, found = oldest, true
		}
	}
	return target, found
}

// youngestOldest is the deepest point every live source has reached. When no
// live source has posts it falls back to the oldest loaded post.
func (s *State) youngestOldest() (time.Time, bool) {
	var horizon time.Time
	found := false
	for _, src := range s.Sources {
		if src.Exhausted {
			continue
		}
		if oldest, ok := src.Oldest(); ok && (!found || oldest.After(horizon)) {
			horizon, found = oldest, true
		}
	}
	if found {
		return horizon, true
	}

	for _, src := range s.Sources {
		if oldest, ok := src.Oldest(); ok && (!found || oldest.Before(horizon)) {
			horizon, found = oldest, true
		}
	}
	return horizon, found
}
