package domain

// Embed is the content attached to a post. The concrete types are
// ImageSet, ExternalLink, QuotePost and UnknownEmbed; a nil Embed means the
// post is text only.
type Embed interface {
	embedKind() string
}

// Image is a single attached image.
type Image struct {
	Alt string `json:"alt"`
}

// ImageSet is an app.bsky.embed.images attachment.
type ImageSet struct {
	Images []Image
}

// ExternalLink is an app.bsky.embed.external link card.
type ExternalLink struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// QuotePost is an app.bsky.embed.record attachment. Media is set for
// record-with-media embeds.
type QuotePost struct {
	Post  Post
	Media Embed
}

// UnknownEmbed holds the $type of an embed this client does not model.
type UnknownEmbed struct {
	Type string
}

func (ImageSet) embedKind() string     { return "images" }
func (ExternalLink) embedKind() string { return "external" }
func (QuotePost) embedKind() string    { return "quote" }
func (UnknownEmbed) embedKind() string { return "unknown" }

// EmbedKind returns a short name for the embed variant, "text" for nil.
func EmbedKind(e Embed) string {
	if e == nil {
		return "text"
	}
	return e.embedKind()
}
