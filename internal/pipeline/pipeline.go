// Package pipeline drives a paginated collection from the list source to
// stored, indexed records, one page at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/embedding"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/retrieve"
	"github.com/ppiankov/lexsearch/internal/vectorindex"
	"github.com/ppiankov/lexsearch/internal/worker"
)

// DefaultConcurrency bounds per-item fetches when none is given.
const DefaultConcurrency = 5

// ListSource pages through one collection.
type ListSource interface {
	DocumentKind() model.Kind
	ListPage(ctx context.Context, page, size int) (total int, items []model.Record, err error)
}

// Upserter is the only store capability ingestion needs.
type Upserter interface {
	UpsertBatch(ctx context.Context, records []model.Record) error
}

// Indexes hands out the per-kind vector index.
type Indexes interface {
	Index(kind model.Kind) (*vectorindex.Index, error)
	Reset(kind model.Kind) (*vectorindex.Index, error)
	Save(kind model.Kind) error
	Reload(kind model.Kind) (*vectorindex.Index, error)
}

// Options configures a Pipeline. Embedder and Indexes may be nil when
// vectorization is never requested.
type Options struct {
	Embedder      embedding.Embedder
	Indexes       Indexes
	MaxInputRunes int
	Logger        *zap.SugaredLogger
}

// IngestOptions shapes one IngestCollection run.
type IngestOptions struct {
	PageSize    int
	Concurrency int
	MaxPages    int // 0 = all pages
	Vectorize   bool
}

// Stats are returned by every run, including one aborted by a fatal error.
type Stats struct {
	RunID       string        `json:"run_id"`
	Kind        model.Kind    `json:"kind"`
	Total       int           `json:"total"`
	Pages       int           `json:"pages"`
	PagesFailed int           `json:"pages_failed"`
	Saved       int           `json:"saved"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Vectorized  int           `json:"vectorized"`
	Duration    time.Duration `json:"duration"`
}

// Pipeline orchestrates retrieval, storage and indexing.
type Pipeline struct {
	fetcher  retrieve.DocumentFetcher
	store    Upserter
	embedder embedding.Embedder
	indexes  Indexes
	maxRunes int
	log      *zap.SugaredLogger
}

// New creates a pipeline.
func New(fetcher retrieve.DocumentFetcher, store Upserter, opts Options) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		store:    store,
		embedder: opts.Embedder,
		indexes:  opts.Indexes,
		maxRunes: opts.MaxInputRunes,
		log:      logging.OrNop(opts.Logger),
	}
}

// IngestCollection processes src page by page. Item and page failures are
// counted and logged; index corruption, dimension mismatches and index save
// failures abort the run. The accumulated Stats are returned either way.
func (p *Pipeline) IngestCollection(ctx context.Context, src ListSource, opts IngestOptions) (Stats, error) {
	kind := src.DocumentKind()
	stats := Stats{RunID: uuid.NewString(), Kind: kind}
	start := time.Now()

	if opts.PageSize <= 0 {
		return stats, fmt.Errorf("%w: page size must be positive, got %d", model.ErrInvalidConfig, opts.PageSize)
	}
	if opts.MaxPages < 0 {
		return stats, fmt.Errorf("%w: max pages must not be negative, got %d", model.ErrInvalidConfig, opts.MaxPages)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Vectorize && (p.embedder == nil || p.indexes == nil) {
		return stats, fmt.Errorf("%w: vectorizing needs an embedder and an index", model.ErrInvalidConfig)
	}

	log := p.log.With("run_id", stats.RunID, "kind", string(kind))

	var idx *vectorindex.Index
	if opts.Vectorize {
		var err error
		if idx, err = p.indexes.Index(kind); err != nil {
			return finish(stats, start), err
		}
	}

	total, items, err := src.ListPage(ctx, 1, opts.PageSize)
	if err != nil {
		stats.PagesFailed++
		log.Errorw("Listing first page failed", "error", err)
		return finish(stats, start), fmt.Errorf("list page 1: %w", err)
	}
	stats.Total = total

	pages := (total + opts.PageSize - 1) / opts.PageSize
	if opts.MaxPages > 0 && opts.MaxPages < pages {
		pages = opts.MaxPages
	}
	log.Infow("Starting ingestion",
		"total", total,
		"pages", pages,
		"page_size", opts.PageSize,
		"concurrency", opts.Concurrency,
		"vectorize", opts.Vectorize,
	)

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return finish(stats, start), err
		}

		if page > 1 {
			_, items, err = src.ListPage(ctx, page, opts.PageSize)
			if err != nil {
				stats.PagesFailed++
				log.Errorw("Listing page failed", "page", page, "error", err)
				continue
			}
			if len(items) == 0 {
				log.Infow("Empty page, stopping early", "page", page)
				break
			}
		}

		stats.Pages++
		if err := p.processPage(ctx, log.With("page", page), idx, items, opts, &stats); err != nil {
			log.Errorw("Aborting ingestion", "page", page, "error", err)
			return finish(stats, start), err
		}
	}

	stats = finish(stats, start)
	log.Infow("Ingestion finished",
		"saved", stats.Saved,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"vectorized", stats.Vectorized,
		"duration", stats.Duration,
	)
	return stats, nil
}

// processPage fetches every item of a page concurrently and then, behind the
// pool barrier, commits and indexes the successes. Only fatal errors are
// returned.
func (p *Pipeline) processPage(ctx context.Context, log *zap.SugaredLogger, idx *vectorindex.Index, items []model.Record, opts IngestOptions, stats *Stats) error {
	jobs := make([]worker.Job, 0, len(items))
	for _, item := range items {
		if item.SerialNumber <= 0 {
			stats.Skipped++
			log.Warnw("Skipping list item without serial number", "title", item.Title)
			continue
		}
		jobs = append(jobs, &fetchJob{item: item, fetcher: p.fetcher})
	}

	results := worker.NewPool(ctx, opts.Concurrency).Run(jobs)

	records := make([]model.Record, 0, len(results))
	for _, r := range results {
		res := r.(*fetchResult)
		if res.err != nil {
			stats.Failed++
			log.Warnw("Document retrieval failed", "serial", res.ref.SerialNumber, "error", res.err)
			continue
		}
		records = append(records, res.record)
	}
	// Jobs that never ran because the context ended count as failed too.
	stats.Failed += len(jobs) - len(results)

	sort.Slice(records, func(i, j int) bool { return records[i].SerialNumber < records[j].SerialNumber })
	if len(records) == 0 {
		return nil
	}

	if err := p.store.UpsertBatch(ctx, records); err != nil {
		stats.PagesFailed++
		stats.Failed += len(records)
		log.Errorw("Committing page failed", "records", len(records), "error", err)
		return nil
	}
	stats.Saved += len(records)

	if !opts.Vectorize {
		return nil
	}
	added, err := p.vectorize(ctx, log, stats.Kind, idx, records)
	stats.Vectorized += added
	return err
}

// vectorize embeds the records whose ids are not yet indexed, adds them and
// saves the index. Embedding errors are logged and swallowed.
func (p *Pipeline) vectorize(ctx context.Context, log *zap.SugaredLogger, kind model.Kind, idx *vectorindex.Index, records []model.Record) (int, error) {
	byID := make(map[int64]*model.Record, len(records))
	serials := make([]int64, len(records))
	for i := range records {
		byID[records[i].SerialNumber] = &records[i]
		serials[i] = records[i].SerialNumber
	}

	var ids []int64
	var texts []string
	for _, id := range idx.Missing(serials) {
		text := byID[id].EmbeddableText(p.maxRunes)
		if text == "" {
			continue
		}
		ids = append(ids, id)
		texts = append(texts, text)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if errors.Is(err, embedding.ErrUnexpectedDimension) {
		return 0, fmt.Errorf("%w: %v", vectorindex.ErrDimensionMismatch, err)
	}
	if err != nil {
		log.Warnw("Embedding failed", "documents", len(ids), "error", err)
		return 0, nil
	}

	added, err := idx.Add(ids, vectors)
	if err != nil {
		return 0, fmt.Errorf("add vectors: %w", err)
	}

	if err := p.indexes.Save(kind); err != nil {
		return added, err
	}
	log.Debugw("Indexed page", "added", added)
	return added, nil
}

func finish(stats Stats, start time.Time) Stats {
	stats.Duration = time.Since(start)
	return stats
}
