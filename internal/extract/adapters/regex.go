package adapters

import (
	"regexp"
	"strings"

	"github.com/ppiankov/lexsearch/internal/model"
)

var (
	caseNumberPattern = regexp.MustCompile(`\d{2,4}\s?(?:헌[가나다라마바사아]|[가-힣]{1,2})\s?\d{1,7}`)
	courtPattern      = regexp.MustCompile(`(?:[가-힣]+(?:고등|지방|행정|가정|특허|회생)법원(?:\s?[가-힣]+지원)?|대법원|헌법재판소)`)
	datePattern       = regexp.MustCompile(`(\d{4})\s?\.\s?(\d{1,2})\s?\.\s?(\d{1,2})\s?\.?`)
	markerPattern     = regexp.MustCompile(`【\s*([^】]{1,12}?)\s*】`)
)

// RegexExtractor is the last resort: it scans the flattened page text for a
// case number, a court, a date and 【...】-delimited sections.
type RegexExtractor struct{}

// NewRegexExtractor creates the regex fallback
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// Name returns the extractor name
func (e *RegexExtractor) Name() string {
	return "regex"
}

// Extract scans page.Text
func (e *RegexExtractor) Extract(page *Page) model.Record {
	rec := model.Record{Kind: page.Kind}
	text := page.Text
	if strings.TrimSpace(text) == "" {
		return rec
	}

	if m := caseNumberPattern.FindString(text); m != "" {
		rec.CaseNumber = strings.ReplaceAll(m, " ", "")
	}
	if m := courtPattern.FindString(text); m != "" {
		rec.IssuingBody = m
	}
	if m := datePattern.FindStringSubmatch(text); m != nil {
		rec.DecidedOn = model.ParseDate(m[1] + "." + m[2] + "." + m[3])
	}

	markers := markerPattern.FindAllStringSubmatchIndex(text, -1)
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		label := text[m[2]:m[3]]
		setSection(&rec, lookupLabel(label), strings.TrimSpace(text[m[1]:end]))
	}

	// Judgment bodies without a 【전문】 marker still carry the whole text.
	if rec.FullText == "" && len(markers) > 0 {
		rec.FullText = strings.TrimSpace(text[markers[0][0]:])
	}

	return rec
}
