// Package extract turns fetched or rendered HTML into text that the
// extractor strategies in package adapters work on.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Parse decodes body using the charset from contentType (or the document's
// own meta tag) and parses it.
func Parse(body []byte, contentType string) (*html.Node, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ParseString parses already-decoded HTML, such as a rendered DOM snapshot.
func ParseString(htmlContent string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// VisibleText flattens n to text, skipping scripts and styles. Block-level
// elements end a line so that line-oriented patterns still work on the
// result.
func VisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			case "br":
				buf.WriteString("\n")
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlock(n.Data) {
			buf.WriteString("\n")
		}
	}

	walk(n)
	return Tidy(buf.String())
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "header", "footer", "li", "tr",
		"table", "dl", "dt", "dd", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote":
		return true
	}
	return false
}

// Tidy trims every line and collapses runs of blank lines.
func Tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

var labelNoise = strings.NewReplacer(
	" ", "", "\u00a0", "", "\t", "", "\n", "",
	"【", "", "】", "", "[", "", "]", "", "<", "", ">", "",
	"〈", "", "〉", "", ":", "", "：", "", "·", "",
)

// CompactLabel strips whitespace and bracket decoration from a heading so
// "【 판 결 요 지 】" and "판결요지:" compare equal. Latin letters are lowercased.
func CompactLabel(s string) string {
	return strings.ToLower(labelNoise.Replace(s))
}
