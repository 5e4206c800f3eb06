package adapters

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/lexsearch/internal/extract"
	"github.com/ppiankov/lexsearch/internal/model"
)

// maxClimb bounds how far a heading's content search walks up the tree when
// the heading sits alone in a wrapper element.
const maxClimb = 2

// LandmarkExtractor reads the source's own detail pages, which label every
// section with a heading or a definition term.
type LandmarkExtractor struct {
	BaseAdapter
}

// NewLandmarkExtractor creates the landmark extractor
func NewLandmarkExtractor() *LandmarkExtractor {
	return &LandmarkExtractor{}
}

// Name returns the extractor name
func (e *LandmarkExtractor) Name() string {
	return "landmark"
}

// Extract collects labeled sections
func (e *LandmarkExtractor) Extract(page *Page) model.Record {
	rec := model.Record{Kind: page.Kind}
	if page.Doc == nil {
		return rec
	}

	if h := e.FindFirst(page.Doc, func(n *html.Node) bool {
		return isElement(n, "h1", "h2") && lookupLabel(e.ExtractText(n)) == sectionNone
	}); h != nil {
		rec.Title = e.ExtractText(h)
	} else if t := e.FindFirst(page.Doc, func(n *html.Node) bool { return isElement(n, "title") }); t != nil {
		rec.Title = e.ExtractText(t)
	}

	headings := e.FindAll(page.Doc, func(n *html.Node) bool {
		return isLandmarkTag(n) && lookupLabel(e.ExtractText(n)) != sectionNone
	})
	for _, h := range headings {
		setSection(&rec, lookupLabel(e.ExtractText(h)), e.sectionText(h))
	}

	anchors := e.FindAll(page.Doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && sectionIDs[strings.ToLower(e.GetAttribute(n, "id"))] != sectionNone
	})
	for _, a := range anchors {
		setSection(&rec, sectionIDs[strings.ToLower(e.GetAttribute(a, "id"))], dropLabelLine(e.ExtractText(a)))
	}

	return rec
}

// sectionText gathers the siblings that follow a heading up to the next
// heading. A heading with nothing after it is retried from its parent.
func (e *LandmarkExtractor) sectionText(h *html.Node) string {
	for n, depth := h, 0; n != nil && depth <= maxClimb; n, depth = n.Parent, depth+1 {
		if isElement(n, "body", "html") {
			break
		}

		var buf strings.Builder
		for s := n.NextSibling; s != nil; s = s.NextSibling {
			if e.isBoundary(s) {
				break
			}
			switch s.Type {
			case html.TextNode:
				if text := strings.TrimSpace(s.Data); text != "" {
					buf.WriteString(text)
					buf.WriteString(" ")
				}
			case html.ElementNode:
				text := e.ExtractText(s)
				if text == "" {
					continue
				}
				if !isBlockElement(s) {
					buf.WriteString(text)
					buf.WriteString(" ")
					continue
				}
				if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
					buf.WriteString("\n")
				}
				buf.WriteString(text)
				buf.WriteString("\n")
			}
		}

		if text := extract.Tidy(buf.String()); text != "" {
			return text
		}
	}
	return ""
}

func (e *LandmarkExtractor) isBoundary(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if isElement(n, "h1", "h2", "h3", "h4", "h5", "h6") {
		return true
	}
	if sectionIDs[strings.ToLower(e.GetAttribute(n, "id"))] != sectionNone {
		return true
	}
	return e.FindFirst(n, func(c *html.Node) bool {
		return isLandmarkTag(c) && lookupLabel(e.ExtractText(c)) != sectionNone
	}) != nil
}

func isLandmarkTag(n *html.Node) bool {
	return isElement(n, "h1", "h2", "h3", "h4", "h5", "dt", "th", "strong")
}

func isBlockElement(n *html.Node) bool {
	return isElement(n, "p", "div", "section", "article", "li", "ul", "ol", "tr", "table",
		"dl", "dd", "pre", "blockquote")
}

// dropLabelLine removes a leading line that is only a section label.
func dropLabelLine(text string) string {
	first, rest, found := strings.Cut(text, "\n")
	if found && lookupLabel(first) != sectionNone {
		return strings.TrimSpace(rest)
	}
	return text
}
