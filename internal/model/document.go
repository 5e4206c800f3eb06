package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// SchemaVersion is bumped whenever Record gains, loses or reinterprets a field.
const SchemaVersion = 1

// Sentinels stored instead of empty strings.
const (
	UnknownIssuingBody = "unknown"
	Untitled           = "untitled"
)

// Kind identifies one document collection of the source.
type Kind string

const (
	KindCase           Kind = "prec"
	KindConstitutional Kind = "detc"
	KindInterpretation Kind = "expc"
)

// Kinds returns every supported kind in ingestion order.
func Kinds() []Kind {
	return []Kind{KindCase, KindConstitutional, KindInterpretation}
}

// Label returns a human-readable name for the kind
func (k Kind) Label() string {
	switch k {
	case KindCase:
		return "case"
	case KindConstitutional:
		return "constitutional"
	case KindInterpretation:
		return "interpretation"
	default:
		return string(k)
	}
}

// ParseKind accepts either the source target name or the label.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prec", "case", "cases":
		return KindCase, nil
	case "detc", "constitutional":
		return KindConstitutional, nil
	case "expc", "interpretation", "interpretations":
		return KindInterpretation, nil
	}
	return "", fmt.Errorf("%w: unknown document kind %q (supported: prec, detc, expc)", ErrInvalidConfig, s)
}

// Ref addresses a single document of the source.
type Ref struct {
	Kind         Kind  `json:"kind"`
	SerialNumber int64 `json:"serial_number"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.SerialNumber)
}

// Record is the normalized form every retrieval tier produces.
// (Kind, SerialNumber) is the natural key; all other fields are overwritten on re-ingest.
type Record struct {
	Kind            Kind       `json:"kind"`
	SerialNumber    int64      `json:"serial_number"`
	CaseNumber      string     `json:"case_number"`
	IssuingBody     string     `json:"issuing_body"`
	IssuingBodyCode string     `json:"issuing_body_code,omitempty"`
	TypeCode        string     `json:"type_code,omitempty"`
	TypeName        string     `json:"type_name,omitempty"`
	Category        string     `json:"category,omitempty"`
	Title           string     `json:"title"`
	DecisionType    string     `json:"decision_type,omitempty"`
	DecidedOn       *time.Time `json:"decided_on,omitempty"`

	Summary         string `json:"summary,omitempty"`
	Holding         string `json:"holding,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`
	FullText        string `json:"full_text,omitempty"`
	CitedProvisions string `json:"cited_provisions,omitempty"`
	CitedCases      string `json:"cited_cases,omitempty"`
	Remarks         string `json:"remarks,omitempty"`

	Tier        Tier      `json:"tier,omitempty"`
	Extractor   string    `json:"extractor,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// Ref returns the record's key.
func (r *Record) Ref() Ref {
	return Ref{Kind: r.Kind, SerialNumber: r.SerialNumber}
}

// HasContent reports whether any content-bearing field (holding, reasoning,
// full text) is populated.
func (r *Record) HasContent() bool {
	return strings.TrimSpace(r.Holding) != "" ||
		strings.TrimSpace(r.Reasoning) != "" ||
		strings.TrimSpace(r.FullText) != ""
}

// Normalize trims every string field and replaces an empty title or issuing
// body with its sentinel.
func (r *Record) Normalize() {
	for _, f := range r.stringFields() {
		*f = strings.TrimSpace(*f)
	}
	if r.Title == "" {
		r.Title = Untitled
	}
	if r.IssuingBody == "" {
		r.IssuingBody = UnknownIssuingBody
	}
}

// FillFrom copies fields from other into fields of r that are blank.
// Kind, serial number and provenance are never touched.
func (r *Record) FillFrom(other Record) {
	dst := r.stringFields()
	src := other.stringFields()
	for i := range dst {
		if isBlank(*dst[i]) && !isBlank(*src[i]) {
			*dst[i] = *src[i]
		}
	}
	if r.DecidedOn == nil && other.DecidedOn != nil {
		d := *other.DecidedOn
		r.DecidedOn = &d
	}
}

// EmbeddableText joins title, summary, holding, reasoning and full text in that
// order, skipping empty fields and the untitled sentinel. A positive maxRunes
// truncates the result.
func (r *Record) EmbeddableText(maxRunes int) string {
	parts := make([]string, 0, 5)
	if t := strings.TrimSpace(r.Title); t != "" && t != Untitled {
		parts = append(parts, t)
	}
	for _, s := range []string{r.Summary, r.Holding, r.Reasoning, r.FullText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	text := strings.Join(parts, "\n")
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}

// stringFields returns pointers to the normalizable string fields in a fixed order.
func (r *Record) stringFields() []*string {
	return []*string{
		&r.CaseNumber, &r.IssuingBody, &r.IssuingBodyCode, &r.TypeCode, &r.TypeName,
		&r.Category, &r.Title, &r.DecisionType, &r.Summary, &r.Holding, &r.Reasoning,
		&r.FullText, &r.CitedProvisions, &r.CitedCases, &r.Remarks,
	}
}

// isBlank treats sentinels as blank so that real values can replace them.
func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == Untitled || s == UnknownIssuingBody
}

var dateLayouts = []string{"2006.01.02", "2006.1.2", "20060102", "2006-01-02", "2006. 1. 2."}

// ParseDate parses the date spellings used by the source. It returns nil for
// empty or unparseable input.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(strings.TrimSuffix(layout, "."), s); err == nil {
			return &t
		}
	}
	return nil
}
