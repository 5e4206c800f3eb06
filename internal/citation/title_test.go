package citation

import "testing"

func TestParseCaseTitle(t *testing.T) {
	tests := []struct {
		raw      string
		wantBody string
		wantCase string
	}{
		// hyphen-separated with explicit type code
		{"SeoulHighCourt(Incheon)-2025-Nu-10220", "SeoulHighCourt(Incheon)", "2025Nu10220"},
		{"서울고등법원(인천)-2025-누-10220", "서울고등법원(인천)", "2025누10220"},
		{"원주지원-2023-가단-59850", "원주지원", "2023가단59850"},
		{"광주고등법원(전주)-2024-누-1066", "광주고등법원(전주)", "2024누1066"},

		// concatenated
		{"서울고등법원2025누6453", "서울고등법원", "2025누6453"},
		{"대전고등법원2025누385", "대전고등법원", "2025누385"},
		{"SeoulHighCourt2025Nu6453", "SeoulHighCourt", "2025Nu6453"},

		// body, space, plain case number
		{"대법원 2021다252977", "대법원", "2021다252977"},
		{"서울행정법원 2024구합92890", "서울행정법원", "2024구합92890"},

		// bare case number
		{"2023Da12345", "", "2023Da12345"},
		{"2024구합92890", "", "2024구합92890"},
		{"2025드36", "", "2025드36"},
		{"2021 다 252977", "", "2021다252977"},

		// trailing decision date
		{"서울고등법원2025누6453 (2025.5.13.)", "서울고등법원", "2025누6453"},

		// unrecognized input is returned as-is
		{"  손해배상(기)  ", "", "손해배상(기)"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseCaseTitle(tt.raw)
			if got.IssuingBody != tt.wantBody {
				t.Errorf("expected issuing body %q, got %q", tt.wantBody, got.IssuingBody)
			}
			if got.CaseNumber != tt.wantCase {
				t.Errorf("expected case number %q, got %q", tt.wantCase, got.CaseNumber)
			}
		})
	}
}

func TestParseCaseTitle_ShapeOrder(t *testing.T) {
	// The hyphenated shape must win over the concatenated one for the same body.
	got := ParseCaseTitle("부천지원-2025-가단-104554")
	if got.IssuingBody != "부천지원" || got.CaseNumber != "2025가단104554" {
		t.Errorf("unexpected parse: %+v", got)
	}
}

func TestSplitCaseNumber(t *testing.T) {
	year, code, seq, ok := SplitCaseNumber("2021다252977")
	if !ok {
		t.Fatal("expected match")
	}
	if year != "2021" || code != "다" || seq != "252977" {
		t.Errorf("unexpected split: %s %s %s", year, code, seq)
	}

	if _, _, _, ok := SplitCaseNumber("not a case"); ok {
		t.Error("expected no match for free text")
	}
}
