// Package citation normalizes case identifiers. Everything here is pure.
package citation

import (
	"regexp"
	"strings"
)

// CaseTitle is the result of splitting a citation-like string.
type CaseTitle struct {
	IssuingBody string
	CaseNumber  string
}

const (
	// A body ends in a court or branch suffix, optionally followed by its seat: 서울고등법원(인천).
	bodyExpr = `(.+?(?:법원|지원|Court|Branch)(?:\([^)]+\))?)`
	codeExpr = `(\p{Hangul}+|[A-Za-z]+)`
)

var (
	trailingDate = regexp.MustCompile(`\s*\(\s*\d{4}\.\s*\d{1,2}\.\s*\d{1,2}\.?\s*\)\s*$`)

	titleShapes = []*regexp.Regexp{
		// 서울고등법원(인천)-2025-누-10220
		regexp.MustCompile(`^` + bodyExpr + `-(\d{4})-` + codeExpr + `-(\d+)$`),
		// 서울고등법원2025누6453
		regexp.MustCompile(`^` + bodyExpr + `(\d{4})` + codeExpr + `(\d+)$`),
		// 대법원 2021다252977
		regexp.MustCompile(`^` + bodyExpr + `\s+(\d{2,4})\s*` + codeExpr + `\s*(\d+)$`),
	}

	bareCaseNumber = regexp.MustCompile(`^(\d{2,4})` + codeExpr + `(\d+)$`)
)

// ParseCaseTitle splits raw into issuing body and case number. The shapes are
// tried in order: hyphen-separated, concatenated, body followed by a plain case
// number, and a bare case number. Input matching none of them comes back
// unchanged as the case number with no issuing body.
func ParseCaseTitle(raw string) CaseTitle {
	title := strings.TrimSpace(raw)
	title = strings.TrimSpace(trailingDate.ReplaceAllString(title, ""))
	if title == "" {
		return CaseTitle{}
	}

	for _, shape := range titleShapes {
		if m := shape.FindStringSubmatch(title); m != nil {
			return CaseTitle{
				IssuingBody: strings.TrimSpace(m[1]),
				CaseNumber:  m[2] + m[3] + m[4],
			}
		}
	}

	if compact := compactCaseNumber(title); bareCaseNumber.MatchString(compact) {
		return CaseTitle{CaseNumber: compact}
	}

	return CaseTitle{CaseNumber: title}
}

// SplitCaseNumber returns the year, type code and sequence of a normalized
// case number such as 2021다252977. ok is false when the shape does not match.
func SplitCaseNumber(caseNumber string) (year, code, seq string, ok bool) {
	m := bareCaseNumber.FindStringSubmatch(compactCaseNumber(caseNumber))
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

var caseNumberNoise = strings.NewReplacer(" ", "", "-", "", "\u00a0", "")

func compactCaseNumber(s string) string {
	return caseNumberNoise.Replace(strings.TrimSpace(s))
}
