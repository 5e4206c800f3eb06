package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 3)
	_, err := idx.Add([]int64{7, 8, 9}, [][]float32{axis(3, 0), axis(3, 1), axis(3, 2)})
	require.NoError(t, err)
	idx.Remove([]int64{8})

	require.NoError(t, idx.Save(dir, "prec"))
	assert.Equal(t, uint64(1), idx.Generation())

	indexPath, mapPath := Paths(dir, "prec")
	assert.FileExists(t, indexPath)
	assert.FileExists(t, mapPath)

	loaded, err := Load(dir, "prec", 3, Options{Type: TypeFlat})
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Size())
	assert.Equal(t, 3, loaded.Slots())
	assert.False(t, loaded.Contains(8))
	assert.Equal(t, uint64(1), loaded.Generation())

	v, ok := loaded.Vector(9)
	require.True(t, ok)
	assert.Equal(t, axis(3, 2), v)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSave_MapFormat(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	idx.Remove([]int64{1})
	require.NoError(t, idx.Save(dir, "detc"))
	require.NoError(t, idx.Save(dir, "detc"))

	_, mapPath := Paths(dir, "detc")
	data, err := os.ReadFile(mapPath)
	require.NoError(t, err)

	var m idMap
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, uint64(2), m.Generation)
	assert.Equal(t, 2, m.Dimension)
	assert.Equal(t, []int64{-1, 2}, m.IDs)
}

func TestLoad_Missing(t *testing.T) {
	idx, err := Load(t.TempDir(), "expc", 4, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, 4, idx.Dimension())
}

func TestLoad_MissingMapIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	_, mapPath := Paths(dir, "prec")
	require.NoError(t, os.Remove(mapPath))

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_MissingIndexIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	require.NoError(t, idx.Save(dir, "prec"))

	indexPath, _ := Paths(dir, "prec")
	require.NoError(t, os.Remove(indexPath))

	_, err := Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	_, err = Load(dir, "prec", 3, Options{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLoad_GenerationMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	_, mapPath := Paths(dir, "prec")
	writeMap(t, mapPath, idMap{Generation: 5, Dimension: 2, IDs: []int64{1}})

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_CountMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	_, mapPath := Paths(dir, "prec")
	writeMap(t, mapPath, idMap{Generation: 1, Dimension: 2, IDs: []int64{1, 2}})

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_BadMagic(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	require.NoError(t, idx.Save(dir, "prec"))

	indexPath, _ := Paths(dir, "prec")
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	copy(data, "XXXX")
	require.NoError(t, os.WriteFile(indexPath, data, 0o644))

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_Truncated(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	indexPath, _ := Paths(dir, "prec")
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(indexPath, data[:len(data)-4], 0o644))

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSaveLoad_IVFKeepsCentroids(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Type: TypeIVF, NList: 1, NProbe: 1}
	idx, err := New(2, opts)
	require.NoError(t, err)
	_, err = idx.Add([]int64{1, 2, 3, 4}, [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}, {0.8, 0.6}})
	require.NoError(t, err)
	require.True(t, idx.Trained())
	require.NoError(t, idx.Save(dir, "expc"))

	loaded, err := Load(dir, "expc", 2, opts)
	require.NoError(t, err)
	assert.True(t, loaded.Trained())

	hits, err := loaded.Search([]float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(4), hits[1].ID)
}

func writeMap(t *testing.T, path string, m idMap) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestWriteAtomic_FailureLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.index")

	err := writeAtomic(path, func(w io.Writer) error { return os.ErrInvalid })
	assert.ErrorIs(t, err, os.ErrInvalid)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_TypeChangeWarns(t *testing.T) {
	dir := t.TempDir()
	saved := newFlat(t, 2)
	_, err := saved.Add([]int64{1, 2}, [][]float32{axis(2, 0), axis(2, 1)})
	require.NoError(t, err)
	require.NoError(t, saved.Save(dir, "prec"))

	core, logs := observer.New(zapcore.WarnLevel)
	loaded, err := Load(dir, "prec", 2, Options{Type: TypeIVF, NList: 4, Logger: zap.New(core).Sugar()})
	require.NoError(t, err)

	assert.Equal(t, TypeIVF, loaded.Type())
	assert.Equal(t, 2, loaded.Size())
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "flat", fields["saved"])
	assert.Equal(t, "ivf", fields["configured"])

	// Same type: no warning.
	_, err = Load(dir, "prec", 2, Options{Logger: zap.New(core).Sugar()})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestLoad_UnknownTypeCode(t *testing.T) {
	dir := t.TempDir()
	idx := newFlat(t, 2)
	_, err := idx.Add([]int64{1}, [][]float32{axis(2, 0)})
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "prec"))

	indexPath, _ := Paths(dir, "prec")
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	// Type follows magic, version, generation and dimension.
	binary.LittleEndian.PutUint32(data[20:24], 7)
	require.NoError(t, os.WriteFile(indexPath, data, 0o644))

	_, err = Load(dir, "prec", 2, Options{})
	assert.ErrorIs(t, err, ErrCorrupt)
}
