package extract

import (
	"testing"
)

func TestVisibleText(t *testing.T) {
	doc, err := ParseString(`<html><head><style>p{}</style><script>var x = 1;</script></head>
<body><h1>대법원 2021다252977</h1><p>첫째   줄<br>둘째 줄</p><div><span>셋째</span> <b>줄</b></div></body></html>`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	got := VisibleText(doc)
	want := "대법원 2021다252977\n첫째 줄\n둘째 줄\n셋째 줄"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParse_Charset(t *testing.T) {
	// "판결" in EUC-KR
	body := []byte{0xc6, 0xc7, 0xb0, 0xe1}
	doc, err := Parse(append([]byte("<p>"), append(body, []byte("</p>")...)...), "text/html; charset=euc-kr")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := VisibleText(doc); got != "판결" {
		t.Errorf("expected 판결, got %q", got)
	}
}

func TestCompactLabel(t *testing.T) {
	tests := map[string]string{
		"【판결요지】":     "판결요지",
		" 판 시 사 항 ":  "판시사항",
		"참조조문:":      "참조조문",
		"Full Text":   "fulltext",
		"[이유]":       "이유",
	}
	for in, want := range tests {
		if got := CompactLabel(in); got != want {
			t.Errorf("CompactLabel(%q): expected %q, got %q", in, want, got)
		}
	}
}
