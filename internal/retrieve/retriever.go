// Package retrieve fetches one document through an escalating chain of
// retrieval tiers: the structured API, the plain HTML detail page and finally
// a headless-browser render of that page.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/citation"
	"github.com/ppiankov/lexsearch/internal/extract"
	"github.com/ppiankov/lexsearch/internal/extract/adapters"
	"github.com/ppiankov/lexsearch/internal/fetch"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/render"
	"github.com/ppiankov/lexsearch/internal/worker"
)

// ErrExhausted is reported for a document that no tier could produce.
var ErrExhausted = errors.New("all retrieval tiers exhausted")

// StructuredSource is the structured API. *lawapi.Client implements it.
type StructuredSource interface {
	Detail(ctx context.Context, kind model.Kind, serial int64) (model.Record, error)
}

// PageFetcher fetches the HTML detail page. *fetch.Fetcher implements it.
type PageFetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// Renderer renders a page in a browser. *render.Chrome implements it.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (*render.Snapshot, error)
}

// DocumentFetcher is what the ingestion pipeline and the CLI depend on.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, ref model.Ref) model.RetrievalResult
}

// detailPaths are the detail page paths under the page base URL.
var detailPaths = map[model.Kind]string{
	model.KindCase:           "/LSW/precInfoP.do?precSeq=%d&mode=0",
	model.KindConstitutional: "/LSW/detcInfoP.do?detcSeq=%d&mode=0",
	model.KindInterpretation: "/LSW/expcInfoP.do?expcSeq=%d&mode=0",
}

// Options configures a Retriever
type Options struct {
	// PageBaseURL is the origin of the HTML detail pages.
	PageBaseURL string
	// Renderer is optional; without it the rendered tier is unavailable.
	Renderer Renderer
	// Gate bounds concurrent renders. A nil gate allows one at a time.
	Gate          *worker.Gate
	HTMLChain     *adapters.Chain
	RenderedChain *adapters.Chain
	Logger        *zap.SugaredLogger
}

// Retriever implements the tiered fetch of one document.
type Retriever struct {
	structured    StructuredSource
	pages         PageFetcher
	renderer      Renderer
	gate          *worker.Gate
	pageBase      string
	htmlChain     *adapters.Chain
	renderedChain *adapters.Chain
	log           *zap.SugaredLogger
	now           func() time.Time
}

// New creates a Retriever
func New(structured StructuredSource, pages PageFetcher, opts Options) *Retriever {
	if opts.Gate == nil {
		opts.Gate = worker.NewGate(1)
	}
	if opts.HTMLChain == nil {
		opts.HTMLChain = adapters.HTMLChain()
	}
	if opts.RenderedChain == nil {
		opts.RenderedChain = adapters.RenderedChain()
	}
	r := &Retriever{
		structured:    structured,
		pages:         pages,
		renderer:      opts.Renderer,
		gate:          opts.Gate,
		pageBase:      strings.TrimRight(opts.PageBaseURL, "/"),
		htmlChain:     opts.HTMLChain,
		renderedChain: opts.RenderedChain,
		log:           logging.OrNop(opts.Logger),
		now:           time.Now,
	}
	r.log.Debugw("Retriever ready",
		"html_extractors", opts.HTMLChain.Names(),
		"rendered_extractors", opts.RenderedChain.Names(),
		"renderer", opts.Renderer != nil,
	)
	return r
}

// DetailPageURL returns the HTML detail page of ref.
func (r *Retriever) DetailPageURL(ref model.Ref) (string, error) {
	path, ok := detailPaths[ref.Kind]
	if !ok {
		return "", fmt.Errorf("%w: no detail page for kind %q", model.ErrInvalidConfig, ref.Kind)
	}
	return r.pageBase + fmt.Sprintf(path, ref.SerialNumber), nil
}

// FetchDocument tries each tier at most once, in order, and returns the first
// sufficient record. It never returns an error; a document no tier could
// produce comes back with Failed set and one diagnostic line per tier.
func (r *Retriever) FetchDocument(ctx context.Context, ref model.Ref) model.RetrievalResult {
	var res model.RetrievalResult

	if rec, ok := r.structuredTier(ctx, ref, &res); ok {
		return r.finish(ref, res, rec, model.TierStructured, "structured")
	}
	if ctx.Err() != nil {
		return r.fail(ref, res, ctx.Err())
	}

	pageURL, err := r.DetailPageURL(ref)
	if err != nil {
		res.Note(model.TierHTML, err.Error())
		return r.fail(ref, res, nil)
	}

	if rec, name, ok := r.htmlTier(ctx, ref, pageURL, &res); ok {
		return r.finish(ref, res, rec, model.TierHTML, name)
	}
	if ctx.Err() != nil {
		return r.fail(ref, res, ctx.Err())
	}

	if rec, name, ok := r.renderedTier(ctx, ref, pageURL, &res); ok {
		return r.finish(ref, res, rec, model.TierRendered, name)
	}
	return r.fail(ref, res, nil)
}

func (r *Retriever) structuredTier(ctx context.Context, ref model.Ref, res *model.RetrievalResult) (model.Record, bool) {
	res.Attempted = append(res.Attempted, model.TierStructured)

	rec, err := r.structured.Detail(ctx, ref.Kind, ref.SerialNumber)
	switch {
	case err != nil:
		res.Note(model.TierStructured, err.Error())
		return model.Record{}, false
	case !rec.HasContent():
		res.Note(model.TierStructured, "no content-bearing field")
		return model.Record{}, false
	}
	return rec, true
}

func (r *Retriever) htmlTier(ctx context.Context, ref model.Ref, pageURL string, res *model.RetrievalResult) (model.Record, string, bool) {
	res.Attempted = append(res.Attempted, model.TierHTML)

	page, err := r.pages.Get(ctx, pageURL)
	if err != nil {
		res.Note(model.TierHTML, err.Error())
		return model.Record{}, "", false
	}

	if !sameHost(pageURL, page.FinalURL) {
		res.Note(model.TierHTML, "redirected off-host to "+page.FinalURL)
		return model.Record{}, "", false
	}

	doc, err := extract.Parse(page.Body, page.ContentType)
	if err != nil {
		res.Note(model.TierHTML, err.Error())
		return model.Record{}, "", false
	}

	rec, name, ok := r.htmlChain.Run(&adapters.Page{
		URL:  page.FinalURL,
		Kind: ref.Kind,
		Doc:  doc,
		Text: extract.VisibleText(doc),
	})
	if !ok {
		res.Note(model.TierHTML, "no content-bearing field")
		return model.Record{}, "", false
	}
	return rec, name, true
}

func (r *Retriever) renderedTier(ctx context.Context, ref model.Ref, pageURL string, res *model.RetrievalResult) (model.Record, string, bool) {
	if r.renderer == nil {
		res.Note(model.TierRendered, "renderer unavailable")
		return model.Record{}, "", false
	}
	res.Attempted = append(res.Attempted, model.TierRendered)

	var snap *render.Snapshot
	err := r.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		snap, err = r.renderer.Render(ctx, pageURL)
		return err
	})
	if err != nil {
		res.Note(model.TierRendered, err.Error())
		return model.Record{}, "", false
	}

	page, err := adapters.NewPage(snap.FinalURL, ref.Kind, snap.HTML)
	if err != nil {
		res.Note(model.TierRendered, err.Error())
		return model.Record{}, "", false
	}

	rec, name, ok := r.renderedChain.Run(page)
	if !ok {
		reason := "no content-bearing field"
		if snap.TimedOut {
			reason += " (content deadline passed)"
		}
		res.Note(model.TierRendered, reason)
		return model.Record{}, "", false
	}
	return rec, name, true
}

// finish stamps provenance and recovers issuing body and case number from the
// title. Inferring the court from the case number is left to the caller, which
// may know the real court from a list item.
func (r *Retriever) finish(ref model.Ref, res model.RetrievalResult, rec model.Record, tier model.Tier, extractor string) model.RetrievalResult {
	rec.Kind = ref.Kind
	rec.SerialNumber = ref.SerialNumber

	if tier != model.TierStructured {
		parsed := citation.ParseCaseTitle(rec.Title)
		if rec.IssuingBody == "" {
			rec.IssuingBody = parsed.IssuingBody
		}
		if rec.CaseNumber == "" {
			if _, _, _, ok := citation.SplitCaseNumber(parsed.CaseNumber); ok {
				rec.CaseNumber = parsed.CaseNumber
			}
		}
	}
	rec.Tier = tier
	rec.Extractor = extractor
	rec.RetrievedAt = r.now().UTC()

	res.Record = rec
	res.Tier = tier
	res.Extractor = extractor
	res.Failed = false

	r.log.Debugw("document retrieved", "ref", ref.String(), "tier", tier, "extractor", extractor, "attempted", res.String())
	return res
}

func (r *Retriever) fail(ref model.Ref, res model.RetrievalResult, cause error) model.RetrievalResult {
	if cause != nil {
		res.Note("cancelled", cause.Error())
	}
	res.Record = model.Record{Kind: ref.Kind, SerialNumber: ref.SerialNumber}
	res.Failed = true
	r.log.Debugw("document retrieval failed", "ref", ref.String(), "attempted", res.String(), "diagnostic", res.Diagnostic)
	return res
}

// Err converts a failed result into an error wrapping ErrExhausted.
func Err(ref model.Ref, res model.RetrievalResult) error {
	if !res.Failed {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", ref, ErrExhausted, strings.Join(res.DiagnosticLines(), "; "))
}

func sameHost(requested, final string) bool {
	if final == "" {
		return true
	}
	a, err := url.Parse(requested)
	if err != nil {
		return false
	}
	b, err := url.Parse(final)
	if err != nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname())
}
