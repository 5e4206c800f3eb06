package lawapi

import (
	"strconv"
	"strings"

	"github.com/ppiankov/lexsearch/internal/citation"
	"github.com/ppiankov/lexsearch/internal/model"
)

// target is the Record field a wire name maps to.
type target int

const (
	toSerial target = iota
	toCaseNumber
	toTitle
	toIssuingBody
	toIssuingBodyCode
	toTypeCode
	toTypeName
	toCategory
	toDecisionType
	toDecidedOn
	toSummary
	toHolding
	toReasoning
	toFullText
	toCitedProvisions
	toCitedCases
	toRemarks
)

// schema describes one kind's wire format.
type schema struct {
	// item is the element name of a list entry.
	item string
	// fields maps wire names to Record fields. Several names may share a
	// target; the first non-blank value in document order wins.
	fields map[string]target
	// defaultBody is used when the response names no issuing body.
	defaultBody string
}

var schemas = map[model.Kind]schema{
	model.KindCase: {
		item: "prec",
		fields: map[string]target{
			"판례일련번호":   toSerial,
			"판례정보일련번호": toSerial,
			"사건번호":     toCaseNumber,
			"사건명":      toTitle,
			"법원명":      toIssuingBody,
			"법원종류코드":   toIssuingBodyCode,
			"사건종류코드":   toTypeCode,
			"사건종류명":    toTypeName,
			"선고":       toCategory,
			"판결유형":     toDecisionType,
			"선고일자":     toDecidedOn,
			"판시사항":     toSummary,
			"판결요지":     toHolding,
			"판례내용":     toFullText,
			"참조조문":     toCitedProvisions,
			"참조판례":     toCitedCases,
		},
	},
	model.KindConstitutional: {
		item: "detc",
		fields: map[string]target{
			"결정례일련번호":   toSerial,
			"헌재결정례일련번호": toSerial,
			"사건번호":      toCaseNumber,
			"사건명":       toTitle,
			"사건종류코드":    toTypeCode,
			"사건종류명":     toTypeName,
			"재판부구분코드":   toCategory,
			"판례결과":      toDecisionType,
			"선고일":       toDecidedOn,
			"종국일자":      toDecidedOn,
			"결정요지":      toSummary,
			"판시사항":      toSummary,
			"주문":        toHolding,
			"이유":        toReasoning,
			"결정문":       toFullText,
			"전문":        toFullText,
			"참조조문":      toCitedProvisions,
			"심판대상조문":    toCitedProvisions,
			"참조판례":      toCitedCases,
		},
		defaultBody: citation.ConstitutionalCourt,
	},
	model.KindInterpretation: {
		item: "expc",
		fields: map[string]target{
			"법령해석례일련번호": toSerial,
			"안건번호":      toCaseNumber,
			"안건명":       toTitle,
			"회신기관명":     toIssuingBody,
			"해석기관명":     toIssuingBody,
			"회신기관코드":    toIssuingBodyCode,
			"해석기관코드":    toIssuingBodyCode,
			"법령구분명":     toTypeName,
			"분야":        toCategory,
			"회신일자":      toDecidedOn,
			"해석일자":      toDecidedOn,
			"질의요지":      toSummary,
			"회답":        toHolding,
			"이유":        toReasoning,
			"비고":        toRemarks,
		},
	},
}

// ItemElement returns the list-entry element name for kind.
func ItemElement(kind model.Kind) string {
	return schemas[kind].item
}

// decodeRecord maps one element's fields onto a Record. Unknown wire names
// are ignored.
func decodeRecord(kind model.Kind, fields []field) model.Record {
	rec := model.Record{Kind: kind}
	sc, ok := schemas[kind]
	if !ok {
		return rec
	}

	for _, f := range fields {
		to, known := sc.fields[f.name]
		if !known || f.value == "" {
			continue
		}
		assign(&rec, to, f.value)
	}

	if rec.IssuingBody == "" {
		rec.IssuingBody = sc.defaultBody
	}
	return rec
}

func assign(rec *model.Record, to target, value string) {
	setBlank := func(dst *string) {
		if *dst == "" {
			*dst = value
		}
	}

	switch to {
	case toSerial:
		if rec.SerialNumber == 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				rec.SerialNumber = n
			}
		}
	case toDecidedOn:
		if rec.DecidedOn == nil {
			rec.DecidedOn = model.ParseDate(value)
		}
	case toCaseNumber:
		setBlank(&rec.CaseNumber)
	case toTitle:
		setBlank(&rec.Title)
	case toIssuingBody:
		setBlank(&rec.IssuingBody)
	case toIssuingBodyCode:
		setBlank(&rec.IssuingBodyCode)
	case toTypeCode:
		setBlank(&rec.TypeCode)
	case toTypeName:
		setBlank(&rec.TypeName)
	case toCategory:
		setBlank(&rec.Category)
	case toDecisionType:
		setBlank(&rec.DecisionType)
	case toSummary:
		setBlank(&rec.Summary)
	case toHolding:
		setBlank(&rec.Holding)
	case toReasoning:
		setBlank(&rec.Reasoning)
	case toFullText:
		setBlank(&rec.FullText)
	case toCitedProvisions:
		setBlank(&rec.CitedProvisions)
	case toCitedCases:
		setBlank(&rec.CitedCases)
	case toRemarks:
		setBlank(&rec.Remarks)
	}
}
