// Package search answers similarity queries against the per-kind vector
// indexes and hydrates the hits from the document store.
package search

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/cache"
	"github.com/ppiankov/lexsearch/internal/embedding"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/store"
	"github.com/ppiankov/lexsearch/internal/vectorindex"
)

// DefaultThreshold drops weakly related documents.
const DefaultThreshold float32 = 0.3

// DefaultTopK is used when a caller passes a non-positive k.
const DefaultTopK = 10

// Documents is the read side of the store.
type Documents interface {
	Get(ctx context.Context, ref model.Ref) (*model.Record, error)
	GetMany(ctx context.Context, kind model.Kind, serials []int64) (map[int64]model.Record, error)
}

// Indexes hands out the per-kind vector index.
type Indexes interface {
	Index(kind model.Kind) (*vectorindex.Index, error)
}

// Match is one hydrated search hit.
type Match struct {
	Record model.Record `json:"record"`
	Score  float32      `json:"score"`
}

// Options configures a Service.
type Options struct {
	// QueryCache holds query vectors keyed by text. Nil disables caching.
	QueryCache    cache.Cache
	QueryCacheTTL time.Duration
	MaxInputRunes int
	Logger        *zap.SugaredLogger
}

// Service runs similarity searches.
type Service struct {
	embedder embedding.Embedder
	indexes  Indexes
	docs     Documents
	cache    cache.Cache
	ttl      time.Duration
	maxRunes int
	log      *zap.SugaredLogger
}

// NewService creates a search service.
func NewService(embedder embedding.Embedder, indexes Indexes, docs Documents, opts Options) *Service {
	return &Service{
		embedder: embedder,
		indexes:  indexes,
		docs:     docs,
		cache:    opts.QueryCache,
		ttl:      opts.QueryCacheTTL,
		maxRunes: opts.MaxInputRunes,
		log:      logging.OrNop(opts.Logger),
	}
}

// SearchSimilar embeds text and returns up to topK documents of kind scoring
// at least threshold, best first.
func (s *Service) SearchSimilar(ctx context.Context, kind model.Kind, text string, topK int, threshold float32) ([]Match, error) {
	if text == "" {
		return nil, errors.New("query text is empty")
	}

	vec, err := s.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, kind, vec, topK, threshold, nil)
}

// SimilarTo returns documents of kind similar to the stored document serial,
// never including the document itself. The indexed vector is used when
// present; otherwise the stored record's text is embedded.
func (s *Service) SimilarTo(ctx context.Context, kind model.Kind, serial int64, topK int, threshold float32) ([]Match, error) {
	idx, err := s.indexes.Index(kind)
	if err != nil {
		return nil, err
	}

	vec, ok := idx.Vector(serial)
	if !ok {
		rec, err := s.docs.Get(ctx, model.Ref{Kind: kind, SerialNumber: serial})
		if err != nil {
			return nil, fmt.Errorf("load %s/%d: %w", kind, serial, err)
		}
		text := rec.EmbeddableText(s.maxRunes)
		if text == "" {
			return nil, fmt.Errorf("%s/%d has no embeddable text", kind, serial)
		}
		if vec, err = s.queryVector(ctx, text); err != nil {
			return nil, err
		}
	}

	return s.search(ctx, kind, vec, topK, threshold, []int64{serial})
}

func (s *Service) search(ctx context.Context, kind model.Kind, vec []float32, topK int, threshold float32, exclude []int64) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	idx, err := s.indexes.Index(kind)
	if err != nil {
		return nil, err
	}
	hits, err := idx.Search(vec, topK, exclude)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			break
		}
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return []Match{}, nil
	}

	records, err := s.docs.GetMany(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	matches := make([]Match, 0, len(ids))
	for _, h := range hits[:len(ids)] {
		rec, ok := records[h.ID]
		if !ok {
			s.log.Debugw("Indexed document missing from store", "kind", string(kind), "serial", h.ID)
			continue
		}
		matches = append(matches, Match{Record: rec, Score: h.Score})
	}
	return matches, nil
}

// queryVector embeds text, consulting the query cache first.
func (s *Service) queryVector(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, errors.New("no embedding provider configured")
	}

	var key string
	if s.cache != nil {
		key = cache.Key("query", fmt.Sprint(s.embedder.Dimension()), text)
		if b, ok := s.cache.Get(key); ok {
			if vec, err := decodeVector(b); err == nil {
				return vec, nil
			}
		}
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	if s.cache != nil {
		if err := s.cache.Set(key, encodeVector(vectors[0]), s.ttl); err != nil {
			s.log.Warnw("Caching query vector failed", "error", err)
		}
	}
	return vectors[0], nil
}

func encodeVector(v []float32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("truncated vector")
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}

var _ Documents = store.Store(nil)
