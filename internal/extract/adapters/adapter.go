package adapters

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/lexsearch/internal/extract"
	"github.com/ppiankov/lexsearch/internal/model"
)

// Page is one parsed detail page handed to every extractor of a chain.
type Page struct {
	URL  string
	Kind model.Kind
	Doc  *html.Node
	// Text is the flattened visible text of Doc.
	Text string
}

// NewPage parses rawHTML into a Page.
func NewPage(url string, kind model.Kind, rawHTML string) (*Page, error) {
	doc, err := extract.ParseString(rawHTML)
	if err != nil {
		return nil, err
	}
	return &Page{URL: url, Kind: kind, Doc: doc, Text: extract.VisibleText(doc)}, nil
}

// Extractor is one strategy for pulling a Record out of a page. Extractors
// never fail; a page they do not understand yields a record without content.
type Extractor interface {
	// Name identifies the strategy in provenance and logs
	Name() string

	// Extract maps the page onto a record
	Extract(page *Page) model.Record
}

// Chain runs extractors in order. The first result with content wins and
// later extractors only fill its blank fields.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a chain from extractors in priority order
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// HTMLChain is used for pages fetched over plain HTTP.
func HTMLChain() *Chain {
	return NewChain(NewLandmarkExtractor())
}

// RenderedChain is used for pages rendered by the headless browser, which
// may come from a third-party portal.
func RenderedChain() *Chain {
	return NewChain(NewPortalExtractor(), NewLandmarkExtractor(), NewRegexExtractor())
}

// Names lists the extractors in order
func (c *Chain) Names() []string {
	names := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		names[i] = e.Name()
	}
	return names
}

// Run returns the merged record, the winning extractor's name and whether
// any extractor found content.
func (c *Chain) Run(page *Page) (model.Record, string, bool) {
	var winner model.Record
	var name string

	for _, e := range c.extractors {
		rec := e.Extract(page)
		if name == "" {
			if rec.HasContent() {
				winner, name = rec, e.Name()
			}
			continue
		}
		winner.FillFrom(rec)
	}

	if name == "" {
		return model.Record{}, "", false
	}
	winner.Kind = page.Kind
	return winner, name, true
}

// BaseAdapter provides DOM helpers shared by the extractors
type BaseAdapter struct{}

// ExtractText returns the flattened visible text of n
func (b *BaseAdapter) ExtractText(n *html.Node) string {
	return extract.VisibleText(n)
}

// HasClass checks if a node has a specific CSS class
func (b *BaseAdapter) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, class := range strings.Fields(attr.Val) {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (b *BaseAdapter) GetAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// FindAll finds all nodes matching a predicate
func (b *BaseAdapter) FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func (b *BaseAdapter) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

func isElement(n *html.Node, tags ...string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, tag := range tags {
		if n.Data == tag {
			return true
		}
	}
	return false
}
