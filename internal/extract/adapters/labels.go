package adapters

import (
	"github.com/ppiankov/lexsearch/internal/extract"
	"github.com/ppiankov/lexsearch/internal/model"
)

// section is the Record field a page section fills.
type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionHolding
	sectionReasoning
	sectionFullText
	sectionCitedProvisions
	sectionCitedCases
	sectionRemarks
	sectionCaseNumber
	sectionIssuingBody
	sectionDecidedOn
	sectionDecisionType
)

// sectionLabels maps compacted heading text to sections. Korean labels are
// the ones the source's detail pages use; English ones cover portals.
var sectionLabels = map[string]section{
	"판시사항": sectionSummary,
	"결정요지": sectionSummary,
	"질의요지": sectionSummary,
	"판결요지": sectionHolding,
	"주문":   sectionHolding,
	"회답":   sectionHolding,
	"이유":   sectionReasoning,
	"전문":   sectionFullText,
	"판례내용": sectionFullText,
	"결정문":  sectionFullText,
	"참조조문": sectionCitedProvisions,
	"참조판례": sectionCitedCases,
	"비고":   sectionRemarks,
	"사건번호": sectionCaseNumber,
	"안건번호": sectionCaseNumber,
	"법원명":  sectionIssuingBody,
	"회신기관": sectionIssuingBody,
	"선고일자": sectionDecidedOn,
	"종국일자": sectionDecidedOn,
	"회신일자": sectionDecidedOn,
	"판결유형": sectionDecisionType,

	"summary":         sectionSummary,
	"issues":          sectionSummary,
	"holding":         sectionHolding,
	"ruling":          sectionHolding,
	"reasoning":       sectionReasoning,
	"reasons":         sectionReasoning,
	"fulltext":        sectionFullText,
	"citedprovisions": sectionCitedProvisions,
	"citedcases":      sectionCitedCases,
	"remarks":         sectionRemarks,
}

// sectionIDs maps element ids used as section anchors.
var sectionIDs = map[string]section{
	"summary":          sectionSummary,
	"holding":          sectionHolding,
	"gist":             sectionHolding,
	"reasoning":        sectionReasoning,
	"reason":           sectionReasoning,
	"fulltext":         sectionFullText,
	"full-text":        sectionFullText,
	"contents":         sectionFullText,
	"cited-provisions": sectionCitedProvisions,
	"cited-cases":      sectionCitedCases,
	"remarks":          sectionRemarks,
}

func lookupLabel(text string) section {
	return sectionLabels[extract.CompactLabel(text)]
}

// setSection stores value into the section's field unless it is already set.
func setSection(rec *model.Record, s section, value string) {
	if value == "" {
		return
	}
	var dst *string
	switch s {
	case sectionSummary:
		dst = &rec.Summary
	case sectionHolding:
		dst = &rec.Holding
	case sectionReasoning:
		dst = &rec.Reasoning
	case sectionFullText:
		dst = &rec.FullText
	case sectionCitedProvisions:
		dst = &rec.CitedProvisions
	case sectionCitedCases:
		dst = &rec.CitedCases
	case sectionRemarks:
		dst = &rec.Remarks
	case sectionCaseNumber:
		dst = &rec.CaseNumber
	case sectionIssuingBody:
		dst = &rec.IssuingBody
	case sectionDecisionType:
		dst = &rec.DecisionType
	case sectionDecidedOn:
		if rec.DecidedOn == nil {
			rec.DecidedOn = model.ParseDate(value)
		}
		return
	default:
		return
	}
	if *dst == "" {
		*dst = value
	}
}
