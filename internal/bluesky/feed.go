package bluesky

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

// PopularFeedURI is the "What's Hot" feed generator served as the popular
// base feed.
const PopularFeedURI = "at://did:plc:z72i7hdynmk6r22z27h6tvur/app.bsky.feed.generator/whats-hot"

// DefaultThreadHeight is how many ancestors getPostThread is asked for.
const DefaultThreadHeight = 10

var _ domain.FeedSource = (*Client)(nil)

func pageParams(cursor string, limit int) url.Values {
	v := url.Values{}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(min(limit, 100)))
	}
	return v
}

func upstream(kind domain.UpstreamKind, op string, err error) error {
	return &domain.UpstreamError{Kind: kind, Op: op, Err: err}
}

func (c *Client) feed(ctx context.Context, method string, params url.Values) (domain.Page, error) {
	var resp feedResponse
	if err := c.get(ctx, method, params, &resp); err != nil {
		return domain.Page{}, upstream(domain.UpstreamPosts, method, err)
	}

	page := domain.Page{Cursor: resp.Cursor, Posts: make([]domain.ScoredPost, 0, len(resp.Feed))}
	for _, item := range resp.Feed {
		page.Posts = append(page.Posts, item.scoredPost())
	}
	return page, nil
}

// GetTimeline returns a page of the authenticated user's following timeline.
func (c *Client) GetTimeline(ctx context.Context, cursor string, limit int) (domain.Page, error) {
	return c.feed(ctx, "app.bsky.feed.getTimeline", pageParams(cursor, limit))
}

// GetAuthorFeed returns a page of posts and reposts by actor.
func (c *Client) GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (domain.Page, error) {
	params := pageParams(cursor, limit)
	params.Set("actor", actor)
	return c.feed(ctx, "app.bsky.feed.getAuthorFeed", params)
}

// GetPopular returns a page of the What's Hot feed.
func (c *Client) GetPopular(ctx context.Context, cursor string, limit int) (domain.Page, error) {
	params := pageParams(cursor, limit)
	params.Set("feed", PopularFeedURI)
	return c.feed(ctx, "app.bsky.feed.getFeed", params)
}

// GetFollows returns a page of accounts followed by actor.
func (c *Client) GetFollows(ctx context.Context, actor, cursor string) (domain.ProfilePage, error) {
	const method = "app.bsky.graph.getFollows"
	params := pageParams(cursor, 100)
	params.Set("actor", actor)

	var resp followsResponse
	if err := c.get(ctx, method, params, &resp); err != nil {
		return domain.ProfilePage{}, upstream(domain.UpstreamProfiles, method, err)
	}
	return profilePage(resp.Follows, resp.Cursor), nil
}

// GetFollowers returns a page of accounts following actor.
func (c *Client) GetFollowers(ctx context.Context, actor, cursor string) (domain.ProfilePage, error) {
	const method = "app.bsky.graph.getFollowers"
	params := pageParams(cursor, 100)
	params.Set("actor", actor)

	var resp followersResponse
	if err := c.get(ctx, method, params, &resp); err != nil {
		return domain.ProfilePage{}, upstream(domain.UpstreamProfiles, method, err)
	}
	return profilePage(resp.Followers, resp.Cursor), nil
}

// GetListMembers returns a page of the members of the list at listURI.
func (c *Client) GetListMembers(ctx context.Context, listURI, cursor string) (domain.ProfilePage, error) {
	const method = "app.bsky.graph.getList"
	params := pageParams(cursor, 100)
	params.Set("list", listURI)

	var resp listResponse
	if err := c.get(ctx, method, params, &resp); err != nil {
		return domain.ProfilePage{}, upstream(domain.UpstreamProfiles, method, err)
	}
	members := make([]profileView, len(resp.Items))
	for i, item := range resp.Items {
		members[i] = item.Subject
	}
	return profilePage(members, resp.Cursor), nil
}

func profilePage(views []profileView, cursor string) domain.ProfilePage {
	page := domain.ProfilePage{Cursor: cursor, Profiles: make([]domain.Author, len(views))}
	for i, v := range views {
		page.Profiles[i] = v.author()
	}
	return page
}

// GetPostThread returns the post at uri with its ancestors. Replies are not
// requested.
func (c *Client) GetPostThread(ctx context.Context, uri string) (*domain.ThreadNode, error) {
	const method = "app.bsky.feed.getPostThread"
	params := url.Values{}
	params.Set("uri", uri)
	params.Set("depth", "0")
	params.Set("parentHeight", strconv.Itoa(DefaultThreadHeight))

	var resp threadResponse
	if err := c.get(ctx, method, params, &resp); err != nil {
		return nil, upstream(domain.UpstreamThread, method, err)
	}
	node, ok := decodeThread(resp.Thread)
	if !ok {
		return nil, upstream(domain.UpstreamThread, method, errors.New("post not found or blocked"))
	}
	return node, nil
}
