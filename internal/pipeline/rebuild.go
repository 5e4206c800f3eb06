package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/lexsearch/internal/embedding"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/vectorindex"
)

// rebuildBatchSize is how many stored records are embedded per call.
const rebuildBatchSize = 64

// ErrIncompleteRebuild reports a rebuild that could not embed every stored
// record. The previously saved index is kept.
var ErrIncompleteRebuild = errors.New("rebuild incomplete")

// Scanner walks every stored record of a kind.
type Scanner interface {
	Scan(ctx context.Context, kind model.Kind, fn func(model.Record) error) error
}

// Rebuild replaces kind's index with one built from every stored record.
// The old files stay in place until the new index is saved, and any failure
// restores them in memory instead of saving a partial index.
func (p *Pipeline) Rebuild(ctx context.Context, kind model.Kind, src Scanner) (Stats, error) {
	stats := Stats{RunID: uuid.NewString(), Kind: kind}
	start := time.Now()

	if p.embedder == nil || p.indexes == nil {
		return stats, fmt.Errorf("%w: rebuilding needs an embedder and an index", model.ErrInvalidConfig)
	}
	log := p.log.With("run_id", stats.RunID, "kind", string(kind))

	idx, err := p.indexes.Reset(kind)
	if err != nil {
		return finish(stats, start), err
	}

	var ids []int64
	var texts []string
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		defer func() { ids, texts = ids[:0], texts[:0] }()

		vectors, err := p.embedder.Embed(ctx, texts)
		if errors.Is(err, embedding.ErrUnexpectedDimension) {
			return fmt.Errorf("%w: %v", vectorindex.ErrDimensionMismatch, err)
		}
		if err != nil {
			stats.Failed += len(ids)
			log.Warnw("Embedding failed", "documents", len(ids), "error", err)
			return nil
		}

		added, err := idx.Add(ids, vectors)
		if err != nil {
			return fmt.Errorf("add vectors: %w", err)
		}
		stats.Vectorized += added
		return nil
	}

	err = src.Scan(ctx, kind, func(rec model.Record) error {
		stats.Total++
		text := rec.EmbeddableText(p.maxRunes)
		if text == "" {
			stats.Skipped++
			return nil
		}
		ids = append(ids, rec.SerialNumber)
		texts = append(texts, text)
		if len(ids) >= rebuildBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err == nil && stats.Failed > 0 {
		err = fmt.Errorf("%w: %d of %d documents not embedded", ErrIncompleteRebuild, stats.Failed, stats.Total)
	}
	if err != nil {
		if _, rerr := p.indexes.Reload(kind); rerr != nil {
			log.Errorw("Failed to restore saved index", "error", rerr)
		}
		return finish(stats, start), fmt.Errorf("rebuild %s index: %w", kind, err)
	}

	if err := p.indexes.Save(kind); err != nil {
		return finish(stats, start), err
	}

	stats = finish(stats, start)
	log.Infow("Rebuilt index",
		"documents", stats.Total,
		"vectorized", stats.Vectorized,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	return stats, nil
}
