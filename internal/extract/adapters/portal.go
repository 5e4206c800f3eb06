package adapters

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/lexsearch/internal/citation"
	"github.com/ppiankov/lexsearch/internal/model"
)

// PortalExtractor reads the card layout of the third-party portal that some
// detail pages redirect to: an h1 case title, a verdict badge and titled
// content blocks.
type PortalExtractor struct {
	BaseAdapter
	blockClasses []string
	badgeClasses []string
}

// NewPortalExtractor creates the portal extractor
func NewPortalExtractor() *PortalExtractor {
	return &PortalExtractor{
		blockClasses: []string{"content-block", "case-section"},
		badgeClasses: []string{"badge", "label", "tag"},
	}
}

// Name returns the extractor name
func (e *PortalExtractor) Name() string {
	return "portal"
}

// Extract reads the title, badge, date and content blocks
func (e *PortalExtractor) Extract(page *Page) model.Record {
	rec := model.Record{Kind: page.Kind}
	if page.Doc == nil {
		return rec
	}

	if h1 := e.FindFirst(page.Doc, func(n *html.Node) bool { return isElement(n, "h1") }); h1 != nil {
		rec.Title = e.ExtractText(h1)
		parsed := citation.ParseCaseTitle(rec.Title)
		rec.IssuingBody = parsed.IssuingBody
		if _, _, _, ok := citation.SplitCaseNumber(parsed.CaseNumber); ok {
			rec.CaseNumber = parsed.CaseNumber
		}
	}

	if badge := e.FindFirst(page.Doc, func(n *html.Node) bool { return e.hasAnyClass(n, e.badgeClasses) }); badge != nil {
		rec.DecisionType = e.ExtractText(badge)
	}

	if t := e.FindFirst(page.Doc, func(n *html.Node) bool {
		return isElement(n, "time") && e.GetAttribute(n, "datetime") != ""
	}); t != nil {
		value := e.GetAttribute(t, "datetime")
		if len(value) > 10 {
			value = value[:10]
		}
		rec.DecidedOn = model.ParseDate(value)
	}

	blocks := e.FindAll(page.Doc, func(n *html.Node) bool {
		return isElement(n, "section", "div") && e.hasAnyClass(n, e.blockClasses)
	})
	for _, block := range blocks {
		title, heading := e.blockTitle(block)
		s := lookupLabel(title)
		if s == sectionNone {
			continue
		}
		setSection(&rec, s, e.blockBody(block, heading))
	}

	return rec
}

// blockTitle returns the block's title and the heading node it came from,
// if any.
func (e *PortalExtractor) blockTitle(block *html.Node) (string, *html.Node) {
	if title := e.GetAttribute(block, "data-title"); title != "" {
		return title, nil
	}
	for c := block.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, "h2", "h3", "h4", "h5", "header", "strong") {
			return e.ExtractText(c), c
		}
	}
	return "", nil
}

func (e *PortalExtractor) blockBody(block, heading *html.Node) string {
	var parts []string
	for c := block.FirstChild; c != nil; c = c.NextSibling {
		if c == heading {
			continue
		}
		var text string
		if c.Type == html.TextNode {
			text = strings.TrimSpace(c.Data)
		} else {
			text = e.ExtractText(c)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func (e *PortalExtractor) hasAnyClass(n *html.Node, classes []string) bool {
	for _, class := range classes {
		if e.HasClass(n, class) {
			return true
		}
	}
	return false
}
