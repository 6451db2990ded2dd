package bluesky

import (
	"encoding/json"
	"time"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

const (
	typeReasonRepost    = "app.bsky.feed.defs#reasonRepost"
	typeThreadViewPost  = "app.bsky.feed.defs#threadViewPost"
	typeImagesView      = "app.bsky.embed.images#view"
	typeExternalView    = "app.bsky.embed.external#view"
	typeRecordView      = "app.bsky.embed.record#view"
	typeRecordMediaView = "app.bsky.embed.recordWithMedia#view"
	typeViewRecord      = "app.bsky.embed.record#viewRecord"
)

type profileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

func (p profileView) author() domain.Author {
	return domain.Author{DID: p.DID, Handle: p.Handle, DisplayName: p.DisplayName}
}

type postRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type replyRef struct {
	Root   postRef `json:"root"`
	Parent postRef `json:"parent"`
}

type postRecord struct {
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs"`
	Reply     *replyRef `json:"reply"`
}

type postView struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    profileView     `json:"author"`
	Record    postRecord      `json:"record"`
	Embed     json.RawMessage `json:"embed"`
	IndexedAt string          `json:"indexedAt"`
}

// feedReplyRef carries the hydrated parent. Parent may be a post view or a
// not-found/blocked stub, which has no cid.
type feedReplyRef struct {
	Parent json.RawMessage `json:"parent"`
}

type feedReason struct {
	Type      string      `json:"$type"`
	By        profileView `json:"by"`
	IndexedAt string      `json:"indexedAt"`
}

type feedViewPost struct {
	Post   postView      `json:"post"`
	Reply  *feedReplyRef `json:"reply"`
	Reason *feedReason   `json:"reason"`
}

type feedResponse struct {
	Feed   []feedViewPost `json:"feed"`
	Cursor string         `json:"cursor"`
}

type threadView struct {
	Type   string          `json:"$type"`
	Post   postView        `json:"post"`
	Parent json.RawMessage `json:"parent"`
}

type threadResponse struct {
	Thread json.RawMessage `json:"thread"`
}

type followsResponse struct {
	Follows []profileView `json:"follows"`
	Cursor  string        `json:"cursor"`
}

type followersResponse struct {
	Followers []profileView `json:"followers"`
	Cursor    string        `json:"cursor"`
}

type listResponse struct {
	Items []struct {
		Subject profileView `json:"subject"`
	} `json:"items"`
	Cursor string `json:"cursor"`
}

// embedView is the union of the embed view shapes; only the fields of the
// variant named by Type are set.
type embedView struct {
	Type   string `json:"$type"`
	Images []struct {
		Alt string `json:"alt"`
	} `json:"images"`
	External *struct {
		URI         string `json:"uri"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"external"`
	Record json.RawMessage `json:"record"`
	Media  json.RawMessage `json:"media"`
}

type viewRecord struct {
	Type      string      `json:"$type"`
	URI       string      `json:"uri"`
	CID       string      `json:"cid"`
	Author    profileView `json:"author"`
	Value     postRecord  `json:"value"`
	IndexedAt string      `json:"indexedAt"`
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (v postView) post() domain.Post {
	p := domain.Post{
		URI:       v.URI,
		CID:       v.CID,
		Author:    v.Author.author(),
		Text:      v.Record.Text,
		CreatedAt: parseTime(v.Record.CreatedAt),
		IndexedAt: parseTime(v.IndexedAt),
		Langs:     v.Record.Langs,
		Embed:     decodeEmbed(v.Embed),
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.IndexedAt
	}
	if r := v.Record.Reply; r != nil {
		p.Reply = &domain.ReplyRef{ParentURI: r.Parent.URI, RootURI: r.Root.URI}
	}
	return p
}

func (f feedViewPost) scoredPost() domain.ScoredPost {
	sp := domain.ScoredPost{Post: f.Post.post()}
	if f.Reply != nil {
		if parent, ok := decodePostView(f.Reply.Parent); ok {
			pp := parent.post()
			sp.Parent = &pp
		}
	}
	if f.Reason != nil && f.Reason.Type == typeReasonRepost {
		by := f.Reason.By.author()
		sp.RepostedBy = &by
		sp.RepostedAt = parseTime(f.Reason.IndexedAt)
	}
	return sp
}

// decodePostView accepts a post view and rejects not-found or blocked stubs.
func decodePostView(raw json.RawMessage) (postView, bool) {
	if len(raw) == 0 {
		return postView{}, false
	}
	var v postView
	if err := json.Unmarshal(raw, &v); err != nil || v.CID == "" {
		return postView{}, false
	}
	return v, true
}

// decodeEmbed validates an embed view into the domain union. Unknown or
// malformed embeds become UnknownEmbed rather than failing the post.
func decodeEmbed(raw json.RawMessage) domain.Embed {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v embedView
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.UnknownEmbed{}
	}

	switch v.Type {
	case typeImagesView:
		set := domain.ImageSet{Images: make([]domain.Image, len(v.Images))}
		for i, img := range v.Images {
			set.Images[i] = domain.Image{Alt: img.Alt}
		}
		return set
	case typeExternalView:
		if v.External == nil {
			return domain.UnknownEmbed{Type: v.Type}
		}
		return domain.ExternalLink{URI: v.External.URI, Title: v.External.Title, Description: v.External.Description}
	case typeRecordView:
		if q, ok := decodeQuote(v.Record); ok {
			return q
		}
	case typeRecordMediaView:
		var inner struct {
			Record json.RawMessage `json:"record"`
		}
		if err := json.Unmarshal(v.Record, &inner); err == nil {
			if q, ok := decodeQuote(inner.Record); ok {
				q.Media = decodeEmbed(v.Media)
				return q
			}
		}
	}
	return domain.UnknownEmbed{Type: v.Type}
}

func decodeQuote(raw json.RawMessage) (domain.QuotePost, bool) {
	var r viewRecord
	if err := json.Unmarshal(raw, &r); err != nil || r.Type != typeViewRecord {
		return domain.QuotePost{}, false
	}
	return domain.QuotePost{Post: domain.Post{
		URI:       r.URI,
		CID:       r.CID,
		Author:    r.Author.author(),
		Text:      r.Value.Text,
		CreatedAt: parseTime(r.Value.CreatedAt),
		IndexedAt: parseTime(r.IndexedAt),
		Langs:     r.Value.Langs,
	}}, true
}

// decodeThread walks a threadViewPost and its parents. It stops at the first
// parent that is not a full post view.
func decodeThread(raw json.RawMessage) (*domain.ThreadNode, bool) {
	var tv threadView
	if err := json.Unmarshal(raw, &tv); err != nil || tv.Type != typeThreadViewPost {
		return nil, false
	}
	node := &domain.ThreadNode{Post: tv.Post.post()}
	if parent, ok := decodeThread(tv.Parent); ok {
		node.Parent = parent
	}
	return node, true
}
