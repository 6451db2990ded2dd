package domain

import "context"

// FeedSource is the authenticated upstream the pipeline reads posts and the
// social graph from. Every call may fail with an *UpstreamError.
type FeedSource interface {
	// GetTimeline returns a page of the actor's following timeline.
	GetTimeline(ctx context.Context, cursor string, limit int) (Page, error)

	// GetAuthorFeed returns a page of posts and reposts by actor.
	GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (Page, error)

	// GetPopular returns a page of the algorithmic popular feed.
	GetPopular(ctx context.Context, cursor string, limit int) (Page, error)

	// GetFollows returns a page of accounts followed by actor.
	GetFollows(ctx context.Context, actor, cursor string) (ProfilePage, error)

	// GetFollowers returns a page of accounts following actor.
	GetFollowers(ctx context.Context, actor, cursor string) (ProfilePage, error)

	// GetListMembers returns a page of members of the list at listURI.
	GetListMembers(ctx context.Context, listURI, cursor string) (ProfilePage, error)

	// GetPostThread returns the thread node for uri with its ancestors.
	GetPostThread(ctx context.Context, uri string) (*ThreadNode, error)
}

// Embedder is the external embedding oracle. The returned slice has the same
// length and order as texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// PreferenceStore persists JSON-serializable values keyed by string,
// scoped to the local client.
type PreferenceStore interface {
	// GetPreference decodes the value stored at key into dst. It returns
	// false if no value is stored.
	GetPreference(ctx context.Context, key string, dst any) (bool, error)

	// SetPreference stores value at key, replacing any previous value.
	SetPreference(ctx context.Context, key string, value any) error

	// DeletePreference removes key. Deleting a missing key is not an error.
	DeletePreference(ctx context.Context, key string) error

	// ListPreferenceKeys returns every stored key with the given prefix.
	ListPreferenceKeys(ctx context.Context, prefix string) ([]string, error)
}
