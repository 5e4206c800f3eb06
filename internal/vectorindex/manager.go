package vectorindex

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ppiankov/lexsearch/internal/model"
)

// Stats describes one kind's index.
type Stats struct {
	Kind      model.Kind `json:"kind" yaml:"kind"`
	Total     int        `json:"total_vectors" yaml:"total_vectors"`
	Slots     int        `json:"slots" yaml:"slots"`
	Dimension int        `json:"dimension" yaml:"dimension"`
	Type      Type       `json:"type" yaml:"type"`
	Trained   bool       `json:"trained" yaml:"trained"`
	Status    string     `json:"status" yaml:"status"`
}

// Manager owns one lazily loaded index per kind, all sharing a directory and
// dimension.
type Manager struct {
	dir  string
	dim  int
	opts Options

	mu      sync.Mutex
	indexes map[model.Kind]*Index
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, dim int, opts Options) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("index dir is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	return &Manager{
		dir:     dir,
		dim:     dim,
		opts:    opts.withDefaults(),
		indexes: make(map[model.Kind]*Index),
	}, nil
}

// Index returns the index for kind, loading it from disk on first use.
func (m *Manager) Index(kind model.Kind) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.indexes[kind]; ok {
		return idx, nil
	}
	return m.loadLocked(kind)
}

// Save persists kind's index if it was loaded.
func (m *Manager) Save(kind model.Kind) error {
	m.mu.Lock()
	idx, ok := m.indexes[kind]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := idx.Save(m.dir, string(kind)); err != nil {
		return fmt.Errorf("save %s index: %w", kind, err)
	}

	m.opts.Logger.Debugw("Saved index",
		"kind", kind,
		"vectors", idx.Size(),
		"generation", idx.Generation(),
	)
	return nil
}

// Remove drops ids from kind's index and saves it when anything was removed.
// Stored documents are untouched, so a rebuild adds them back.
func (m *Manager) Remove(kind model.Kind, ids []int64) (int, error) {
	idx, err := m.Index(kind)
	if err != nil {
		return 0, err
	}

	removed := idx.Remove(ids)
	if removed == 0 {
		return 0, nil
	}
	if err := m.Save(kind); err != nil {
		return removed, err
	}
	return removed, nil
}

// Reload drops the cached index for kind and reads it again from disk.
func (m *Manager) Reload(kind model.Kind) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.indexes, kind)
	return m.loadLocked(kind)
}

// Reset replaces kind's index with an empty one. The files on disk are
// untouched until the next Save.
func (m *Manager) Reset(kind model.Kind) (*Index, error) {
	idx, err := New(m.dim, m.opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.indexes[kind] = idx
	m.mu.Unlock()
	return idx, nil
}

// Stats reports on kind's index. Load failures are reported in Status rather
// than returned.
func (m *Manager) Stats(kind model.Kind) Stats {
	st := Stats{Kind: kind, Dimension: m.dim, Type: m.opts.Type}

	idx, err := m.Index(kind)
	if err != nil {
		st.Status = "error: " + err.Error()
		return st
	}

	st.Total = idx.Size()
	st.Slots = idx.Slots()
	st.Trained = idx.Trained()
	st.Status = "ready"
	if st.Slots == 0 {
		st.Status = "empty"
	}
	return st
}

func (m *Manager) loadLocked(kind model.Kind) (*Index, error) {
	idx, err := Load(m.dir, string(kind), m.dim, m.opts)
	if err != nil {
		return nil, fmt.Errorf("load %s index: %w", kind, err)
	}
	m.indexes[kind] = idx

	m.opts.Logger.Debugw("Loaded index",
		"kind", kind,
		"vectors", idx.Size(),
		"dimension", idx.Dimension(),
		"type", idx.Type(),
	)
	return idx, nil
}
