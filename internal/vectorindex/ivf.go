package vectorindex

import (
	"math"
	"sort"
)

const (
	// trainFactor is how many vectors per cluster must exist before training.
	trainFactor  = 4
	kmeansRounds = 10
)

// ivf partitions slots into clusters around unit centroids.
type ivf struct {
	dim       int
	centroids [][]float32
	lists     [][]int
}

// maybeTrain builds clusters once enough live vectors exist. Until then an
// IVF index searches exhaustively. Caller holds the write lock.
func (idx *Index) maybeTrain() {
	if idx.opts.Type != TypeIVF || idx.ivf != nil || idx.live < trainFactor*idx.opts.NList {
		return
	}

	slots := idx.liveSlots()
	centroids := trainCentroids(idx.dim, idx.opts.NList, slots, idx.vector)
	idx.ivf = newIVF(idx.dim, centroids)
	for slot := range idx.ids {
		idx.ivf.assign(slot, idx.vector(slot))
	}

	idx.opts.Logger.Infow("Trained IVF clusters",
		"lists", len(centroids),
		"vectors", len(slots),
	)
}

func newIVF(dim int, centroids [][]float32) *ivf {
	return &ivf{
		dim:       dim,
		centroids: centroids,
		lists:     make([][]int, len(centroids)),
	}
}

// assign appends slot to the list of its nearest centroid. Tombstoned slots
// are assigned too; search skips them.
func (f *ivf) assign(slot int, v []float32) {
	c := nearest(f.centroids, v)
	f.lists[c] = append(f.lists[c], slot)
}

// probe returns the lists of the n centroids closest to query.
func (f *ivf) probe(query []float32, n int) [][]int {
	order := make([]int, len(f.centroids))
	scores := make([]float32, len(f.centroids))
	for i, c := range f.centroids {
		order[i] = i
		scores[i] = dot(query, c)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	n = min(n, len(order))
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		out[i] = f.lists[order[i]]
	}
	return out
}

// trainCentroids runs spherical k-means. Initial centroids are evenly spaced
// over the slots so that training is deterministic.
func trainCentroids(dim, k int, slots []int, vector func(int) []float32) [][]float32 {
	k = min(k, len(slots))
	centroids := make([][]float32, k)
	for i := range centroids {
		c := make([]float32, dim)
		copy(c, vector(slots[i*len(slots)/k]))
		centroids[i] = c
	}

	assignment := make([]int, len(slots))
	for round := 0; round < kmeansRounds; round++ {
		for i, slot := range slots {
			assignment[i] = nearest(centroids, vector(slot))
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, slot := range slots {
			c := assignment[i]
			counts[c]++
			for d, x := range vector(slot) {
				sums[c][d] += x
			}
		}

		for c := range centroids {
			// An empty cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			if unit(sums[c]) {
				centroids[c] = sums[c]
			}
		}
	}
	return centroids
}

func nearest(centroids [][]float32, v []float32) int {
	best, bestScore := 0, float32(math.Inf(-1))
	for i, c := range centroids {
		if s := dot(v, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// unit scales v to length one and reports false for the zero vector.
func unit(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	n := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= n
	}
	return true
}
