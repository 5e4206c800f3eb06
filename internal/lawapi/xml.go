package lawapi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

// node is a generic element tree. The API's element names are Korean field
// names that vary by kind, so responses are decoded structurally and mapped
// through the per-kind schema tables instead of fixed structs.
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) value() string {
	return cleanText(n.text.String())
}

// child returns the first direct child with the given name.
func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// findAll returns every descendant with the given name, in document order.
func (n *node) findAll(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
			continue
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// find returns the first descendant with the given name.
func (n *node) find(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// fields flattens the element's direct children into name/value pairs.
type field struct {
	name  string
	value string
}

func (n *node) fields() []field {
	out := make([]field, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, field{name: c.name, value: c.value()})
	}
	return out
}

func parseXML(body []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var root *node
	var stack []*node

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			// Markup inside a field is formatting, not structure.
			if len(stack) > 0 && isInlineMarkup(t.Name.Local) {
				if t.Name.Local == "br" {
					stack[len(stack)-1].text.WriteString("\n")
				}
				continue
			}
			n := &node{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 && isInlineMarkup(t.Name.Local) {
				continue
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	return root, nil
}

func isInlineMarkup(name string) bool {
	switch strings.ToLower(name) {
	case "br", "p", "b", "i", "u", "span", "font", "sup", "sub":
		return true
	}
	return false
}

var (
	brTag      = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// cleanText turns the API's embedded <br/> tags into newlines and trims
// the result.
func cleanText(s string) string {
	s = brTag.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var notFoundMarker = regexp.MustCompile(`일치하는[^<]{0,40}없습니다|데이터가 없습니다`)

// isNotFound reports whether the body is the API's "no such document" reply.
func isNotFound(body []byte) bool {
	return notFoundMarker.Match(body)
}
