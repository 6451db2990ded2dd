package timeline

import (
	"strings"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

const (
	systemPrefix = "system:"

	KeyFollowing = systemPrefix + "following"
	KeyPopular   = systemPrefix + "popular"
	KeyMutuals   = systemPrefix + "mutuals"
)

// IsSystemKey reports whether key names a built-in timeline.
func IsSystemKey(key string) bool {
	return strings.HasPrefix(key, systemPrefix)
}

// SystemTimelines returns the built-in timelines for the given language
// preference. They are derived on every call and never stored.
func SystemTimelines(lang string) []domain.TimelineConfig {
	base := func(key, icon, name, desc string, b domain.Behaviour) domain.TimelineConfig {
		b.Language = lang
		b.ReplyVisibility = domain.RepliesAll
		b.SortMode = domain.SortTime
		return domain.TimelineConfig{
			Key:       key,
			Identity:  domain.Identity{Icon: icon, Name: name, Description: desc},
			Behaviour: b,
			Meta:      domain.Meta{Origin: domain.OriginSystem},
		}
	}

	return []domain.TimelineConfig{
		base(KeyFollowing, "home", "Following", "Posts from people you follow, newest first.",
			domain.Behaviour{BaseFeed: domain.BaseFollowing}),
		base(KeyPopular, "flame", "Popular", "What's hot across the network.",
			domain.Behaviour{BaseFeed: domain.BasePopular}),
		base(KeyMutuals, "users", "Mutuals", "Posts from people who follow you back.",
			domain.Behaviour{BaseFeed: domain.BaseFollowing, MutualsOnly: true}),
	}
}

func systemTimeline(key, lang string) (domain.TimelineConfig, bool) {
	for _, c := range SystemTimelines(lang) {
		if c.Key == key {
			return c, true
		}
	}
	return domain.TimelineConfig{}, false
}
