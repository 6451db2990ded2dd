package domain

import "time"

// Author identifies the account that wrote or reposted a post.
type Author struct {
	DID         string
	Handle      string
	DisplayName string
}

// ReplyRef links a reply to its parent and the root of its thread.
type ReplyRef struct {
	ParentURI string
	RootURI   string
}

// Post represents a BlueSky post as fetched from the upstream AppView.
// Posts are immutable once fetched; scores and reply context are attached
// through ScoredPost.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string

	// CID is the content identifier of the record. It is the dedup key
	// throughout the pipeline.
	CID string

	Author Author

	// Text is the raw post body.
	Text string

	// CreatedAt is the author-supplied creation time of the record.
	CreatedAt time.Time

	// IndexedAt is when the AppView indexed the record.
	IndexedAt time.Time

	// Langs is the list of language tags set by the author's client.
	Langs []string

	// Reply is set when the post is a reply.
	Reply *ReplyRef

	// Embed is the attached media or record; nil for text-only posts.
	Embed Embed

	// Parent is the inline parent view when the upstream feed supplied one.
	Parent *Post
}

// IsReply reports whether the post replies to another post.
func (p *Post) IsReply() bool {
	return p.Reply != nil && p.Reply.ParentURI != ""
}

// ScoredPost is a Post as produced by the feed pipeline for a single load.
type ScoredPost struct {
	Post

	// Score is the semantic match in [-1, 1]; nil when the timeline does
	// not score posts.
	Score *float64

	// ReplyingTo is the ancestor chain of the post, oldest first.
	ReplyingTo []ScoredPost

	// RepostedBy is set when the post reached the feed through a repost.
	RepostedBy *Author

	// RepostedAt is the time of the repost, if any.
	RepostedAt time.Time
}

// Timestamp is the time the post entered the feed: the repost time for
// reposts, otherwise the creation time.
func (p *ScoredPost) Timestamp() time.Time {
	if p.RepostedBy != nil && !p.RepostedAt.IsZero() {
		return p.RepostedAt
	}
	return p.CreatedAt
}

// WithScore returns a copy of the post carrying score.
func (p ScoredPost) WithScore(score float64) ScoredPost {
	p.Score = &score
	return p
}

// Page is one page of posts returned by a paginated upstream source.
type Page struct {
	Posts []ScoredPost

	// Cursor is empty when there are no more results.
	Cursor string
}

// ProfilePage is one page of profiles from a follows, followers or list
// members query.
type ProfilePage struct {
	Profiles []Author
	Cursor   string
}

// ThreadNode is one post in a thread view together with its parent.
// Parent is nil at the root or when the parent is unavailable.
type ThreadNode struct {
	Post   Post
	Parent *ThreadNode
}
