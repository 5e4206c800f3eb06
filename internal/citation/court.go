package citation

// Issuing bodies inferred from case-type codes.
const (
	SupremeCourt        = "대법원"
	HighCourt           = "고등법원"
	DistrictCourt       = "지방법원"
	AdministrativeCourt = "행정법원"
	PatentCourt         = "특허법원"
	ConstitutionalCourt = "헌법재판소"
)

// caseTypeCourts maps case-type infixes to the court that issues them.
var caseTypeCourts = map[string]string{
	// civil, criminal, administrative, patent and family appeals to the Supreme Court
	"다": SupremeCourt,
	"도": SupremeCourt,
	"두": SupremeCourt,
	"후": SupremeCourt,
	"므": SupremeCourt,
	"스": SupremeCourt,
	"마": SupremeCourt,
	"그": SupremeCourt,
	"모": SupremeCourt,

	// appellate instance
	"나": HighCourt,
	"노": HighCourt,
	"누": HighCourt,
	"르": HighCourt,
	"라": HighCourt,

	// first instance
	"가합": DistrictCourt,
	"가단": DistrictCourt,
	"가소": DistrictCourt,
	"고합": DistrictCourt,
	"고단": DistrictCourt,
	"고정": DistrictCourt,
	"드":  DistrictCourt,
	"카":  DistrictCourt,

	"구합": AdministrativeCourt,
	"구단": AdministrativeCourt,

	"허": PatentCourt,

	"헌가": ConstitutionalCourt,
	"헌바": ConstitutionalCourt,
	"헌마": ConstitutionalCourt,
	"헌라": ConstitutionalCourt,
	"헌나": ConstitutionalCourt,
	"헌사": ConstitutionalCourt,
	"헌아": ConstitutionalCourt,
}

// InferIssuingBody guesses the issuing court from the case-type code embedded
// in caseNumber. It returns "" when the code is not in the table.
func InferIssuingBody(caseNumber string) string {
	_, code, _, ok := SplitCaseNumber(caseNumber)
	if !ok {
		return ""
	}
	if court, found := caseTypeCourts[code]; found {
		return court
	}
	// Multi-letter variants such as 카합 fall back to their leading letter.
	if first := []rune(code); len(first) > 1 {
		if court, found := caseTypeCourts[string(first[0])]; found {
			return court
		}
	}
	return ""
}
