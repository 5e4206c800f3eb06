package model

import "testing"

func TestRetrievalResult_Note(t *testing.T) {
	var res RetrievalResult
	if lines := res.DiagnosticLines(); lines != nil {
		t.Errorf("expected no lines, got %q", lines)
	}

	res.Note(TierStructured, "detail prec/1: document not found")
	res.Note(TierHTML, "status 502\nBad Gateway")
	res.Note(TierRendered, "renderer unavailable")

	want := "structured: detail prec/1: document not found\n" +
		"html: status 502 Bad Gateway\n" +
		"rendered: renderer unavailable"
	if res.Diagnostic != want {
		t.Errorf("expected %q, got %q", want, res.Diagnostic)
	}
	if lines := res.DiagnosticLines(); len(lines) != 3 {
		t.Errorf("expected 3 lines, got %d", len(lines))
	}
}
