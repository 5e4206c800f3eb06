package vectorindex

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexsearch/internal/model"
)

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager("", 4, Options{})
	assert.Error(t, err)

	_, err = NewManager(t.TempDir(), 0, Options{})
	assert.Error(t, err)
}

func TestManager_LazyLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 2, Options{})
	require.NoError(t, err)

	idx, err := m.Index(model.KindCase)
	require.NoError(t, err)
	_, err = idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)

	same, err := m.Index(model.KindCase)
	require.NoError(t, err)
	assert.Same(t, idx, same)

	require.NoError(t, m.Save(model.KindCase))
	// Never loaded, nothing to save.
	require.NoError(t, m.Save(model.KindInterpretation))

	other, err := NewManager(dir, 2, Options{})
	require.NoError(t, err)
	loaded, err := other.Index(model.KindCase)
	require.NoError(t, err)
	assert.True(t, loaded.Contains(1))
}

func TestManager_ReloadAndReset(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 2, Options{})
	require.NoError(t, err)

	idx, err := m.Index(model.KindConstitutional)
	require.NoError(t, err)
	_, err = idx.Add([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.NoError(t, m.Save(model.KindConstitutional))

	// Unsaved changes disappear on reload.
	_, err = idx.Add([]int64{3}, [][]float32{{1, 0}})
	require.NoError(t, err)
	reloaded, err := m.Reload(model.KindConstitutional)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Size())

	fresh, err := m.Reset(model.KindConstitutional)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Size())

	current, err := m.Index(model.KindConstitutional)
	require.NoError(t, err)
	assert.Same(t, fresh, current)
}

func TestManager_Remove(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 2, Options{})
	require.NoError(t, err)

	idx, err := m.Index(model.KindCase)
	require.NoError(t, err)
	_, err = idx.Add([]int64{1, 2, 3}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	require.NoError(t, m.Save(model.KindCase))

	removed, err := m.Remove(model.KindCase, []int64{2, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The removal was persisted.
	reloaded, err := m.Reload(model.KindCase)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Size())
	assert.False(t, reloaded.Contains(2))

	hits, err := reloaded.Search([]float32{0, 1}, 3, nil)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, int64(2), h.ID)
	}

	removed, err = m.Remove(model.KindCase, []int64{42})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestManager_Stats(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 2, Options{Type: TypeFlat})
	require.NoError(t, err)

	st := m.Stats(model.KindCase)
	assert.Equal(t, "empty", st.Status)
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, TypeFlat, st.Type)

	idx, err := m.Index(model.KindCase)
	require.NoError(t, err)
	_, err = idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)

	st = m.Stats(model.KindCase)
	assert.Equal(t, "ready", st.Status)
	assert.Equal(t, 1, st.Total)

	// A lone map file makes the kind unloadable.
	_, mapPath := Paths(dir, string(model.KindInterpretation))
	require.NoError(t, os.WriteFile(mapPath, []byte(`{"generation":1,"dimension":2,"ids":[]}`), 0o644))
	st = m.Stats(model.KindInterpretation)
	assert.Contains(t, st.Status, "error")
}
