package domain

import (
	"fmt"
	"strings"
	"time"
)

// BaseFeed selects the upstream source a timeline starts from.
type BaseFeed string

const (
	// BaseFollowing is the actor's chronological following timeline.
	BaseFollowing BaseFeed = "following"

	// BasePopular is the algorithmic "what's hot" feed.
	BasePopular BaseFeed = "popular"

	// BaseFollows aggregates the author feeds of every account the actor follows.
	BaseFollows BaseFeed = "follows"

	// BaseList aggregates the author feeds of every member of a list.
	BaseList BaseFeed = "list"
)

// ReplyVisibility controls whether replies stay in the timeline.
type ReplyVisibility string

const (
	RepliesAll  ReplyVisibility = "all"
	RepliesNone ReplyVisibility = "none"
)

// SortMode selects how produced posts are ordered.
type SortMode string

const (
	SortTime  SortMode = "time"
	SortScore SortMode = "score"
	SortCombo SortMode = "combo"
)

// Origin records where a timeline configuration came from.
type Origin string

const (
	OriginSystem Origin = "system"
	OriginSelf   Origin = "self"
	OriginShared Origin = "shared"
)

// Identity is the user-facing description of a timeline.
type Identity struct {
	Icon        string `json:"icon"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Behaviour is the set of rules the feed pipeline applies.
type Behaviour struct {
	BaseFeed        BaseFeed        `json:"baseFeed"`
	ListURI         string          `json:"listUri,omitempty"`
	MutualsOnly     bool            `json:"mutualsOnly"`
	Language        string          `json:"language,omitempty"`
	ReplyVisibility ReplyVisibility `json:"replyVisibility"`
	PositivePrompts []string        `json:"positivePrompts"`
	NegativePrompts []string        `json:"negativePrompts"`
	SortMode        SortMode        `json:"sortMode"`
	MinimumScore    float64         `json:"minimumScore"`
}

// HasPrompts reports whether any positive or negative prompt is configured.
func (b *Behaviour) HasPrompts() bool {
	return len(b.PositivePrompts) > 0 || len(b.NegativePrompts) > 0
}

// Meta tracks provenance of a timeline configuration.
type Meta struct {
	Origin     Origin    `json:"origin"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	ShareKey   string    `json:"shareKey,omitempty"`
}

// TimelineConfig is a user-authored or system-provided timeline definition.
type TimelineConfig struct {
	Key       string    `json:"key"`
	Identity  Identity  `json:"identity"`
	Behaviour Behaviour `json:"behaviour"`
	Meta      Meta      `json:"meta"`
}

// Normalize trims the name and prompts, drops empty prompts and fills in
// defaults for unset enum fields.
func (c *TimelineConfig) Normalize() {
	c.Identity.Name = strings.TrimSpace(c.Identity.Name)
	c.Behaviour.PositivePrompts = cleanPrompts(c.Behaviour.PositivePrompts)
	c.Behaviour.NegativePrompts = cleanPrompts(c.Behaviour.NegativePrompts)
	c.Behaviour.ListURI = strings.TrimSpace(c.Behaviour.ListURI)
	if c.Behaviour.BaseFeed == "" {
		c.Behaviour.BaseFeed = BaseFollowing
	}
	if c.Behaviour.ReplyVisibility == "" {
		c.Behaviour.ReplyVisibility = RepliesAll
	}
	if c.Behaviour.SortMode == "" {
		c.Behaviour.SortMode = SortTime
	}
}

// Validate checks the invariants a configuration must hold before it is saved.
func (c *TimelineConfig) Validate() error {
	if strings.TrimSpace(c.Identity.Name) == "" {
		return fmt.Errorf("timeline name is required")
	}
	switch c.Behaviour.BaseFeed {
	case BaseFollowing, BasePopular, BaseFollows:
	case BaseList:
		if c.Behaviour.ListURI == "" {
			return fmt.Errorf("list timelines require a list URI")
		}
	default:
		return fmt.Errorf("unknown base feed %q", c.Behaviour.BaseFeed)
	}
	switch c.Behaviour.ReplyVisibility {
	case RepliesAll, RepliesNone:
	default:
		return fmt.Errorf("unknown reply visibility %q", c.Behaviour.ReplyVisibility)
	}
	switch c.Behaviour.SortMode {
	case SortTime, SortScore, SortCombo:
	default:
		return fmt.Errorf("unknown sort mode %q", c.Behaviour.SortMode)
	}
	if c.Behaviour.MinimumScore < -1 || c.Behaviour.MinimumScore > 1 {
		return fmt.Errorf("minimum score must be within [-1, 1]")
	}
	return nil
}

func cleanPrompts(prompts []string) []string {
	cleaned := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

// Segment is the result of one load operation within a session.
type Segment struct {
	ID       string
	LoadedAt time.Time
	Posts    []ScoredPost
}
