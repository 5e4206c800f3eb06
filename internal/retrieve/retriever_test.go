package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/lexsearch/internal/fetch"
	"github.com/ppiankov/lexsearch/internal/lawapi"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/render"
	"github.com/ppiankov/lexsearch/internal/worker"
)

type fakeStructured struct {
	rec   model.Record
	err   error
	calls atomic.Int32
}

func (f *fakeStructured) Detail(ctx context.Context, kind model.Kind, serial int64) (model.Record, error) {
	f.calls.Add(1)
	return f.rec, f.err
}

type fakePages struct {
	body     string
	finalURL string
	err      error
	calls    atomic.Int32
	lastURL  string
}

func (f *fakePages) Get(ctx context.Context, rawURL string) (*fetch.Result, error) {
	f.calls.Add(1)
	f.lastURL = rawURL
	if f.err != nil {
		return nil, f.err
	}
	final := f.finalURL
	if final == "" {
		final = rawURL
	}
	return &fetch.Result{Body: []byte(f.body), ContentType: "text/html; charset=utf-8", FinalURL: final}, nil
}

type fakeRenderer struct {
	html  string
	err   error
	calls atomic.Int32
}

func (f *fakeRenderer) Render(ctx context.Context, rawURL string) (*render.Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &render.Snapshot{URL: rawURL, FinalURL: rawURL, HTML: f.html}, nil
}

const landmarkHTML = `<html><body><h2>대법원 2021다252977</h2>
<h4>【판결요지】</h4><p>소멸시효는 안 날부터 진행한다.</p></body></html>`

const portalHTML = `<html><body><h1>서울고등법원(인천)-2025-누-10220</h1><span class="badge">기각</span>
<section class="content-block"><h3>이유</h3><p>처분은 적법하다.</p></section></body></html>`

const emptyHTML = `<html><body><div id="app"></div></body></html>`

var ref = model.Ref{Kind: model.KindCase, SerialNumber: 228541}

func newRetriever(s StructuredSource, p PageFetcher, r Renderer) *Retriever {
	opts := Options{PageBaseURL: "https://www.law.go.kr", Gate: worker.NewGate(1)}
	if r != nil {
		opts.Renderer = r
	}
	return New(s, p, opts)
}

func assertAttempted(t *testing.T, res model.RetrievalResult, want ...model.Tier) {
	t.Helper()
	if len(res.Attempted) != len(want) {
		t.Fatalf("expected attempted %v, got %v", want, res.Attempted)
	}
	for i := range want {
		if res.Attempted[i] != want[i] {
			t.Fatalf("expected attempted %v, got %v", want, res.Attempted)
		}
	}
	for _, tier := range []model.Tier{model.TierStructured, model.TierHTML, model.TierRendered} {
		if n := res.AttemptCount(tier); n > 1 {
			t.Errorf("tier %s attempted %d times", tier, n)
		}
	}
}

func TestFetchDocument_StructuredTier(t *testing.T) {
	structured := &fakeStructured{rec: model.Record{Kind: model.KindCase, CaseNumber: "2021다252977", Holding: "h"}}
	pages := &fakePages{}
	renderer := &fakeRenderer{}

	res := newRetriever(structured, pages, renderer).FetchDocument(context.Background(), ref)

	if res.Failed || res.Tier != model.TierStructured || res.Extractor != "structured" {
		t.Fatalf("unexpected result %+v", res)
	}
	assertAttempted(t, res, model.TierStructured)
	if pages.calls.Load() != 0 || renderer.calls.Load() != 0 {
		t.Error("expected no escalation")
	}
	if res.Record.IssuingBody != "" {
		t.Errorf("expected no inferred issuing body at this stage, got %q", res.Record.IssuingBody)
	}
	if res.Record.SerialNumber != ref.SerialNumber || res.Record.Tier != model.TierStructured || res.Record.RetrievedAt.IsZero() {
		t.Errorf("expected provenance stamped, got %+v", res.Record)
	}
}

func TestFetchDocument_EscalatesToHTML(t *testing.T) {
	tests := []struct {
		name       string
		structured *fakeStructured
		reason     string
	}{
		{"not found", &fakeStructured{err: fmt.Errorf("detail: %w", lawapi.ErrNotFound)}, "document not found"},
		{"no content", &fakeStructured{rec: model.Record{Title: "only metadata"}}, "no content-bearing field"},
		{"transport", &fakeStructured{err: &fetch.StatusError{Code: 502, Status: "502 Bad Gateway"}}, "unexpected status: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := &fakePages{body: landmarkHTML}
			res := newRetriever(tt.structured, pages, &fakeRenderer{}).FetchDocument(context.Background(), ref)

			if res.Failed || res.Tier != model.TierHTML || res.Extractor != "landmark" {
				t.Fatalf("unexpected result %+v", res)
			}
			assertAttempted(t, res, model.TierStructured, model.TierHTML)
			if !strings.Contains(res.Diagnostic, "structured: ") || !strings.Contains(res.Diagnostic, tt.reason) {
				t.Errorf("expected structured diagnostic with %q, got %q", tt.reason, res.Diagnostic)
			}
			if pages.lastURL != "https://www.law.go.kr/LSW/precInfoP.do?precSeq=228541&mode=0" {
				t.Errorf("unexpected page URL %s", pages.lastURL)
			}
			if res.Record.IssuingBody != "대법원" || res.Record.CaseNumber != "2021다252977" {
				t.Errorf("expected body and number recovered from title, got %q %q", res.Record.IssuingBody, res.Record.CaseNumber)
			}
		})
	}
}

func TestFetchDocument_EscalatesToRendered(t *testing.T) {
	tests := []struct {
		name   string
		pages  *fakePages
		reason string
	}{
		{"off-host redirect", &fakePages{body: landmarkHTML, finalURL: "https://portal.example.com/case/1"}, "redirected off-host"},
		{"empty page", &fakePages{body: emptyHTML}, "html: no content-bearing field"},
		{"robots", &fakePages{err: fmt.Errorf("x: %w", fetch.ErrDisallowed)}, "disallowed by robots.txt"},
		{"transport", &fakePages{err: errors.New("connection reset")}, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := &fakeRenderer{html: portalHTML}
			structured := &fakeStructured{err: lawapi.ErrNotFound}
			res := newRetriever(structured, tt.pages, renderer).FetchDocument(context.Background(), ref)

			if res.Failed || res.Tier != model.TierRendered || res.Extractor != "portal" {
				t.Fatalf("unexpected result %+v", res)
			}
			assertAttempted(t, res, model.TierStructured, model.TierHTML, model.TierRendered)
			if !strings.Contains(res.Diagnostic, tt.reason) {
				t.Errorf("expected diagnostic with %q, got %q", tt.reason, res.Diagnostic)
			}
			if res.Record.IssuingBody != "서울고등법원(인천)" || res.Record.DecisionType != "기각" {
				t.Errorf("unexpected record %+v", res.Record)
			}
			if renderer.calls.Load() != 1 {
				t.Errorf("expected one render, got %d", renderer.calls.Load())
			}
		})
	}
}

func TestFetchDocument_AllTiersFail(t *testing.T) {
	structured := &fakeStructured{err: lawapi.ErrNotFound}
	pages := &fakePages{body: emptyHTML}
	renderer := &fakeRenderer{html: emptyHTML}

	res := newRetriever(structured, pages, renderer).FetchDocument(context.Background(), ref)

	if !res.Failed || res.Tier != "" {
		t.Fatalf("expected failure, got %+v", res)
	}
	assertAttempted(t, res, model.TierStructured, model.TierHTML, model.TierRendered)
	lines := res.DiagnosticLines()
	if len(lines) != 3 {
		t.Fatalf("expected one diagnostic line per tier, got %q", res.Diagnostic)
	}
	for i, tier := range []model.Tier{model.TierStructured, model.TierHTML, model.TierRendered} {
		if !strings.HasPrefix(lines[i], string(tier)+": ") {
			t.Errorf("line %d: expected %s prefix, got %q", i, tier, lines[i])
		}
	}
	if err := Err(ref, res); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if res.Record.SerialNumber != ref.SerialNumber {
		t.Errorf("expected key preserved on failure, got %+v", res.Record)
	}
}

func TestFetchDocument_NoRenderer(t *testing.T) {
	res := newRetriever(&fakeStructured{err: lawapi.ErrNotFound}, &fakePages{body: emptyHTML}, nil).
		FetchDocument(context.Background(), ref)

	if !res.Failed {
		t.Fatal("expected failure without renderer")
	}
	assertAttempted(t, res, model.TierStructured, model.TierHTML)
	if !strings.Contains(res.Diagnostic, "rendered: renderer unavailable") {
		t.Errorf("unexpected diagnostic %q", res.Diagnostic)
	}
}

func TestFetchDocument_RenderError(t *testing.T) {
	renderer := &fakeRenderer{err: context.DeadlineExceeded}
	res := newRetriever(&fakeStructured{err: lawapi.ErrNotFound}, &fakePages{body: emptyHTML}, renderer).
		FetchDocument(context.Background(), ref)

	if !res.Failed || !strings.Contains(res.Diagnostic, "rendered: context deadline exceeded") {
		t.Errorf("expected render failure, got %+v", res)
	}
}

func TestFetchDocument_CancelledStopsEscalation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	structured := &fakeStructured{err: context.Canceled}
	pages := &fakePages{body: landmarkHTML}
	cancel()

	res := newRetriever(structured, pages, &fakeRenderer{}).FetchDocument(ctx, ref)
	if !res.Failed {
		t.Fatal("expected failure")
	}
	if pages.calls.Load() != 0 {
		t.Error("expected no html fetch after cancellation")
	}
}

func TestFetchDocument_UnknownKind(t *testing.T) {
	res := newRetriever(&fakeStructured{err: lawapi.ErrNotFound}, &fakePages{}, nil).
		FetchDocument(context.Background(), model.Ref{Kind: "bogus", SerialNumber: 1})
	if !res.Failed || !strings.Contains(res.Diagnostic, "no detail page") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDetailPageURL(t *testing.T) {
	r := newRetriever(nil, nil, nil)
	tests := map[model.Kind]string{
		model.KindCase:           "https://www.law.go.kr/LSW/precInfoP.do?precSeq=7&mode=0",
		model.KindConstitutional: "https://www.law.go.kr/LSW/detcInfoP.do?detcSeq=7&mode=0",
		model.KindInterpretation: "https://www.law.go.kr/LSW/expcInfoP.do?expcSeq=7&mode=0",
	}
	for kind, want := range tests {
		got, err := r.DetailPageURL(model.Ref{Kind: kind, SerialNumber: 7})
		if err != nil || got != want {
			t.Errorf("%s: expected %s, got %s (%v)", kind, want, got, err)
		}
	}
}

func TestFetchDocument_ThroughHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/DRF/lawService.do", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Law>일치하는 판례가 없습니다.</Law>`)
	})
	mux.HandleFunc("/LSW/precInfoP.do", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, landmarkHTML)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	client := lawapi.NewClient(server.URL+"/DRF", "oc", fetcher, nil)
	r := New(client, fetcher, Options{PageBaseURL: server.URL})

	res := r.FetchDocument(context.Background(), ref)
	if res.Failed || res.Tier != model.TierHTML {
		t.Fatalf("expected html tier, got %+v", res)
	}
	if !strings.Contains(res.Diagnostic, "document not found") {
		t.Errorf("expected not-found diagnostic, got %q", res.Diagnostic)
	}
}
