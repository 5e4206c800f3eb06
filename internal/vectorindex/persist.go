package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	indexExt = ".index"
	mapExt   = ".map"

	formatVersion = 1

	loadAttempts   = 3
	loadRetryDelay = 50 * time.Millisecond
)

var fileMagic = [4]byte{'L', 'X', 'V', 'I'}

// errGenerationMismatch means a writer was between the two renames.
var errGenerationMismatch = errors.New("index and map generations differ")

// fileHeader opens every .index file. It is followed by Slots*Dimension
// vector components and Centroids*Dimension centroid components, all
// little-endian float32.
type fileHeader struct {
	Magic      [4]byte
	Version    uint32
	Generation uint64
	Dimension  uint32
	Type       uint32
	Slots      uint64
	Centroids  uint32
}

// idMap is the .map companion: the slot -> id table, -1 for tombstones.
type idMap struct {
	Generation uint64  `json:"generation"`
	Dimension  int     `json:"dimension"`
	IDs        []int64 `json:"ids"`
}

// Header codes for Type.
const (
	typeCodeFlat uint32 = 0
	typeCodeIVF  uint32 = 1
)

func typeCode(t Type) uint32 {
	if t == TypeIVF {
		return typeCodeIVF
	}
	return typeCodeFlat
}

func typeFromCode(code uint32) (Type, bool) {
	switch code {
	case typeCodeFlat:
		return TypeFlat, true
	case typeCodeIVF:
		return TypeIVF, true
	}
	return "", false
}

// Paths returns the index and map file paths for name in dir.
func Paths(dir, name string) (indexPath, mapPath string) {
	return filepath.Join(dir, name+indexExt), filepath.Join(dir, name+mapExt)
}

// Save writes the index file and then the map file, each through a synced
// temp file renamed into place. Both carry the same new generation.
func (idx *Index) Save(dir, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	indexPath, mapPath := Paths(dir, name)
	gen := idx.generation + 1

	var centroids [][]float32
	if idx.ivf != nil {
		centroids = idx.ivf.centroids
	}

	hdr := fileHeader{
		Magic:      fileMagic,
		Version:    formatVersion,
		Generation: gen,
		Dimension:  uint32(idx.dim),
		Type:       typeCode(idx.opts.Type),
		Slots:      uint64(len(idx.ids)),
		Centroids:  uint32(len(centroids)),
	}

	err := writeAtomic(indexPath, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		if len(idx.vectors) > 0 {
			if err := binary.Write(w, binary.LittleEndian, idx.vectors); err != nil {
				return err
			}
		}
		for _, c := range centroids {
			if err := binary.Write(w, binary.LittleEndian, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", indexPath, err)
	}

	ids := idx.ids
	if ids == nil {
		ids = []int64{}
	}
	err = writeAtomic(mapPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(idMap{Generation: gen, Dimension: idx.dim, IDs: ids})
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", mapPath, err)
	}

	idx.generation = gen
	return nil
}

// Load reads the index named name from dir. Missing files give an empty
// index; a lone index or map file is corrupt.
func Load(dir, name string, dim int, opts Options) (*Index, error) {
	idx, err := New(dim, opts)
	if err != nil {
		return nil, err
	}

	indexPath, mapPath := Paths(dir, name)
	indexMissing, err := missing(indexPath)
	if err != nil {
		return nil, err
	}
	mapMissing, err := missing(mapPath)
	if err != nil {
		return nil, err
	}

	switch {
	case indexMissing && mapMissing:
		return idx, nil
	case indexMissing:
		return nil, fmt.Errorf("%w: %s exists without %s", ErrCorrupt, mapPath, indexPath)
	case mapMissing:
		return nil, fmt.Errorf("%w: %s exists without %s", ErrCorrupt, indexPath, mapPath)
	}

	var lastErr error
	for attempt := 0; attempt < loadAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(loadRetryDelay)
		}
		err := idx.read(indexPath, mapPath)
		if err == nil {
			return idx, nil
		}
		if !errors.Is(err, errGenerationMismatch) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrCorrupt, lastErr)
}

// read fills a fresh index from the file pair.
func (idx *Index) read(indexPath, mapPath string) error {
	m, err := readMap(mapPath)
	if err != nil {
		return err
	}
	hdr, vectors, centroids, err := readIndexFile(indexPath, idx.dim)
	if err != nil {
		return err
	}

	if m.Generation != hdr.Generation {
		return fmt.Errorf("%w: index %d, map %d", errGenerationMismatch, hdr.Generation, m.Generation)
	}
	if m.Dimension != idx.dim {
		return fmt.Errorf("%w: map has %d, expected %d", ErrDimensionMismatch, m.Dimension, idx.dim)
	}
	if uint64(len(m.IDs)) != hdr.Slots {
		return fmt.Errorf("%w: index has %d vectors, map has %d ids", ErrCorrupt, hdr.Slots, len(m.IDs))
	}
	stored, ok := typeFromCode(hdr.Type)
	if !ok {
		return fmt.Errorf("%w: unknown index type code %d", ErrCorrupt, hdr.Type)
	}
	if stored != idx.opts.Type {
		// Vectors are the same for both types; only the centroids change.
		idx.opts.Logger.Warnw("Index type differs from the saved file; clusters will be retrained",
			"file", indexPath,
			"saved", string(stored),
			"configured", string(idx.opts.Type),
		)
		centroids = nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.ids = m.IDs
	idx.vectors = vectors
	idx.slots = make(map[int64]int, len(m.IDs))
	idx.live = 0
	for slot, id := range m.IDs {
		if id == tombstone {
			continue
		}
		if _, dup := idx.slots[id]; dup {
			return fmt.Errorf("%w: id %d has two live slots", ErrCorrupt, id)
		}
		idx.slots[id] = slot
		idx.live++
	}
	idx.generation = hdr.Generation

	idx.ivf = nil
	if idx.opts.Type == TypeIVF && len(centroids) > 0 {
		idx.ivf = newIVF(idx.dim, centroids)
		for slot := range idx.ids {
			idx.ivf.assign(slot, idx.vector(slot))
		}
	}
	idx.maybeTrain()
	return nil
}

func readMap(path string) (idMap, error) {
	var m idMap
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, err)
	}
	return m, nil
}

func readIndexFile(path string, dim int) (fileHeader, []float32, [][]float32, error) {
	var hdr fileHeader

	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return hdr, nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, nil, nil, fmt.Errorf("%w: %s: short header", ErrCorrupt, path)
	}
	if hdr.Magic != fileMagic {
		return hdr, nil, nil, fmt.Errorf("%w: %s: bad magic %q", ErrCorrupt, path, hdr.Magic[:])
	}
	if hdr.Version != formatVersion {
		return hdr, nil, nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, hdr.Version)
	}
	if int(hdr.Dimension) != dim {
		return hdr, nil, nil, fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, path, hdr.Dimension, dim)
	}

	size := uint64(st.Size())
	if hdr.Slots > size || uint64(hdr.Centroids) > size {
		return hdr, nil, nil, fmt.Errorf("%w: %s: counts exceed file size", ErrCorrupt, path)
	}
	want := uint64(binary.Size(hdr)) + 4*uint64(dim)*(hdr.Slots+uint64(hdr.Centroids))
	if size != want {
		return hdr, nil, nil, fmt.Errorf("%w: %s is %d bytes, expected %d", ErrCorrupt, path, size, want)
	}

	vectors := make([]float32, hdr.Slots*uint64(dim))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return hdr, nil, nil, fmt.Errorf("%w: %s: read vectors: %v", ErrCorrupt, path, err)
	}

	centroids := make([][]float32, hdr.Centroids)
	for i := range centroids {
		c := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, c); err != nil {
			return hdr, nil, nil, fmt.Errorf("%w: %s: read centroids: %v", ErrCorrupt, path, err)
		}
		centroids[i] = c
	}

	return hdr, vectors, centroids, nil
}

// writeAtomic writes path through a temp file in the same directory.
func writeAtomic(path string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func missing(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
