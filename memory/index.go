package memory

import (
	"cmp"
	"fmt"
	"slices"
)

// flatIndex is an exhaustive L2 index. Search cost is linear in the number
// of stored vectors, which is fine for a single user's conversation log.
type flatIndex struct {
	dim     int
	vectors [][]float32
}

type hit struct {
	index    int
	distance float64
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (x *flatIndex) add(vec []float32) error {
	if len(vec) != x.dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vec), x.dim)
	}
	x.vectors = append(x.vectors, vec)
	return nil
}

func (x *flatIndex) len() int {
	return len(x.vectors)
}

// search returns the k nearest vectors by squared Euclidean distance,
// ascending, with ties resolved by insertion order.
func (x *flatIndex) search(query []float32, k int) ([]hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), x.dim)
	}
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}

	hits := make([]hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = hit{index: i, distance: squaredL2(query, v)}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(a.distance, b.distance)
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
