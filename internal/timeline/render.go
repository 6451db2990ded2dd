package timeline

import (
	"strings"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
)

// RenderText flattens a post into the plain text sent to the embedding
// oracle: the parent post (one level) when the post is a reply, then the
// post's own text and embeds.
func RenderText(p domain.ScoredPost) string {
	var b strings.Builder
	if p.Parent != nil {
		b.WriteString("In reply to ")
		writeAuthor(&b, p.Parent.Author)
		b.WriteString(": ")
		writePost(&b, *p.Parent)
		b.WriteString("\n\n")
	}
	writePost(&b, p.Post)
	return strings.TrimSpace(b.String())
}

func writePost(b *strings.Builder, p domain.Post) {
	b.WriteString(strings.TrimSpace(p.Text))
	writeEmbed(b, p.Embed)
}

func writeEmbed(b *strings.Builder, e domain.Embed) {
	switch e := e.(type) {
	case domain.ImageSet:
		for _, img := range e.Images {
			if img.Alt != "" {
				b.WriteString("\n[image: ")
				b.WriteString(img.Alt)
				b.WriteString("]")
			}
		}
	case domain.ExternalLink:
		b.WriteString("\n[link: ")
		b.WriteString(e.Title)
		if e.Description != "" {
			b.WriteString(" - ")
			b.WriteString(e.Description)
		}
		b.WriteString("]")
	case domain.QuotePost:
		b.WriteString("\n[quoting ")
		writeAuthor(b, e.Post.Author)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Post.Text))
		b.WriteString("]")
		writeEmbed(b, e.Media)
	}
}

func writeAuthor(b *strings.Builder, a domain.Author) {
	switch {
	case a.DisplayName != "":
		b.WriteString(a.DisplayName)
	case a.Handle != "":
		b.WriteString("@")
		b.WriteString(a.Handle)
	default:
		b.WriteString("someone")
	}
}
