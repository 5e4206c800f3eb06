package pipeline

import (
	"context"
	"sort"

	"github.com/ppiankov/lexsearch/internal/citation"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/retrieve"
	"github.com/ppiankov/lexsearch/internal/worker"
)

// fetchJob retrieves one listed document.
type fetchJob struct {
	item    model.Record
	fetcher retrieve.DocumentFetcher
}

// fetchResult carries either a normalized record or the failure.
type fetchResult struct {
	ref       model.Ref
	record    model.Record
	retrieval model.RetrievalResult
	err       error
}

// GetError returns the error from the fetch
func (r *fetchResult) GetError() error {
	return r.err
}

// Execute fetches the document and fills blanks from the list item.
func (j *fetchJob) Execute(ctx context.Context) worker.Result {
	ref := j.item.Ref()
	res := j.fetcher.FetchDocument(ctx, ref)
	if res.Failed {
		return &fetchResult{ref: ref, retrieval: res, err: retrieve.Err(ref, res)}
	}

	rec := complete(res.Record, j.item)
	return &fetchResult{ref: ref, record: rec, retrieval: res}
}

// complete fills blanks of rec from the list item, then infers the court from
// the case number only if neither source named one.
func complete(rec, item model.Record) model.Record {
	rec.FillFrom(item)
	if rec.IssuingBody == "" || rec.IssuingBody == model.UnknownIssuingBody {
		rec.IssuingBody = citation.InferIssuingBody(rec.CaseNumber)
	}
	rec.Normalize()
	return rec
}

// FetchMany retrieves refs with bounded concurrency and returns the results
// ordered by kind and serial number.
func (p *Pipeline) FetchMany(ctx context.Context, refs []model.Ref, concurrency int) []model.RetrievalResult {
	if len(refs) == 0 {
		return []model.RetrievalResult{}
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	jobs := make([]worker.Job, len(refs))
	for i, ref := range refs {
		jobs[i] = &fetchJob{item: model.Record{Kind: ref.Kind, SerialNumber: ref.SerialNumber}, fetcher: p.fetcher}
	}

	results := worker.NewPool(ctx, concurrency).Run(jobs)

	out := make([]model.RetrievalResult, 0, len(results))
	for _, r := range results {
		res := r.(*fetchResult)
		if res.err == nil {
			res.retrieval.Record = res.record
		}
		out = append(out, res.retrieval)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.SerialNumber < b.SerialNumber
	})
	return out
}
