package domain

import "time"

// PostView is the JSON form of a ScoredPost. It is what the HTTP session
// stream sends and what the thread cache persists.
type PostView struct {
	URI        string      `json:"uri"`
	CID        string      `json:"cid"`
	Author     AuthorView  `json:"author"`
	Text       string      `json:"text"`
	CreatedAt  time.Time   `json:"createdAt"`
	IndexedAt  time.Time   `json:"indexedAt"`
	Langs      []string    `json:"langs,omitempty"`
	ParentURI  string      `json:"parentUri,omitempty"`
	RootURI    string      `json:"rootUri,omitempty"`
	Embed      *EmbedView  `json:"embed,omitempty"`
	Score      *float64    `json:"score,omitempty"`
	ReplyingTo []PostView  `json:"replyingTo,omitempty"`
	RepostedBy *AuthorView `json:"repostedBy,omitempty"`
	RepostedAt *time.Time  `json:"repostedAt,omitempty"`
}

// AuthorView is the JSON form of an Author.
type AuthorView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// EmbedView is the JSON form of the Embed union, discriminated by Kind.
type EmbedView struct {
	Kind     string        `json:"kind"`
	Images   []Image       `json:"images,omitempty"`
	External *ExternalLink `json:"external,omitempty"`
	Quote    *PostView     `json:"quote,omitempty"`
	Media    *EmbedView    `json:"media,omitempty"`
	Type     string        `json:"type,omitempty"`
}

// NewPostView converts a ScoredPost to its JSON form.
func NewPostView(p ScoredPost) PostView {
	v := newPostView(p.Post)
	v.Score = p.Score
	if len(p.ReplyingTo) > 0 {
		v.ReplyingTo = make([]PostView, len(p.ReplyingTo))
		for i, r := range p.ReplyingTo {
			v.ReplyingTo[i] = NewPostView(r)
		}
	}
	if p.RepostedBy != nil {
		a := AuthorView(*p.RepostedBy)
		v.RepostedBy = &a
		at := p.RepostedAt
		v.RepostedAt = &at
	}
	return v
}

// NewPostViews converts a slice of ScoredPost.
func NewPostViews(posts []ScoredPost) []PostView {
	views := make([]PostView, len(posts))
	for i, p := range posts {
		views[i] = NewPostView(p)
	}
	return views
}

func newPostView(p Post) PostView {
	v := PostView{
		URI:       p.URI,
		CID:       p.CID,
		Author:    AuthorView(p.Author),
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
		IndexedAt: p.IndexedAt,
		Langs:     p.Langs,
		Embed:     newEmbedView(p.Embed),
	}
	if p.Reply != nil {
		v.ParentURI = p.Reply.ParentURI
		v.RootURI = p.Reply.RootURI
	}
	return v
}

func newEmbedView(e Embed) *EmbedView {
	switch e := e.(type) {
	case nil:
		return nil
	case ImageSet:
		return &EmbedView{Kind: e.embedKind(), Images: e.Images}
	case ExternalLink:
		ext := e
		return &EmbedView{Kind: e.embedKind(), External: &ext}
	case QuotePost:
		q := newPostView(e.Post)
		return &EmbedView{Kind: e.embedKind(), Quote: &q, Media: newEmbedView(e.Media)}
	case UnknownEmbed:
		return &EmbedView{Kind: e.embedKind(), Type: e.Type}
	default:
		return &EmbedView{Kind: "unknown"}
	}
}

// ScoredPost converts the view back into a ScoredPost.
func (v PostView) ScoredPost() ScoredPost {
	sp := ScoredPost{Post: v.post(), Score: v.Score}
	if len(v.ReplyingTo) > 0 {
		sp.ReplyingTo = make([]ScoredPost, len(v.ReplyingTo))
		for i, r := range v.ReplyingTo {
			sp.ReplyingTo[i] = r.ScoredPost()
		}
	}
	if v.RepostedBy != nil {
		a := Author(*v.RepostedBy)
		sp.RepostedBy = &a
		if v.RepostedAt != nil {
			sp.RepostedAt = *v.RepostedAt
		}
	}
	return sp
}

func (v PostView) post() Post {
	p := Post{
		URI:       v.URI,
		CID:       v.CID,
		Author:    Author(v.Author),
		Text:      v.Text,
		CreatedAt: v.CreatedAt,
		IndexedAt: v.IndexedAt,
		Langs:     v.Langs,
		Embed:     v.Embed.embed(),
	}
	if v.ParentURI != "" || v.RootURI != "" {
		p.Reply = &ReplyRef{ParentURI: v.ParentURI, RootURI: v.RootURI}
	}
	return p
}

func (v *EmbedView) embed() Embed {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case "images":
		return ImageSet{Images: v.Images}
	case "external":
		if v.External == nil {
			return UnknownEmbed{Type: v.Type}
		}
		return *v.External
	case "quote":
		if v.Quote == nil {
			return UnknownEmbed{Type: v.Type}
		}
		return QuotePost{Post: v.Quote.post(), Media: v.Media.embed()}
	default:
		return UnknownEmbed{Type: v.Type}
	}
}
