package index

import (
	"fmt"
	"math/rand/v2"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Fold is one train/test partition. A nil Test marks a full-data fit.
type Fold struct {
	Train Spec
	Test  Spec
}

// Full reports whether f is a full-data fit without held-out rows.
func (f Fold) Full() bool {
	return f.Test == nil
}

// Indexer produces the held-out folds of a layer for n training rows. The
// full-data fit is implicit and never part of the returned folds.
type Indexer interface {
	Folds(n int) ([]Fold, error)
}

// HeldOut returns the number of rows predicted out of fold, which is the
// row count of the prediction matrix built by a fit. A layer without folds
// predicts every row.
func HeldOut(folds []Fold, n int) int {
	if len(folds) == 0 {
		return n
	}
	total := 0
	for _, f := range folds {
		total += f.Test.Len(n)
	}
	return total
}

// FullIndexer fits every estimator on all rows only.
type FullIndexer struct{}

// Folds returns no folds.
func (FullIndexer) Folds(n int) ([]Fold, error) {
	if n < 1 {
		return nil, errors.NewValueError("FullIndexer.Folds", "no rows to fit")
	}
	return nil, nil
}

// StackIndexer is a K-fold partition: every row is held out exactly once.
type StackIndexer struct {
	// K is the number of folds (>= 2).
	K int
	// Shuffle permutes rows before partitioning; test specs then become
	// lists of ranges.
	Shuffle bool
	// Seed seeds the permutation when Shuffle is set.
	Seed uint64
}

// Folds partitions [0, n) into K test blocks. The first n%K folds receive
// one extra row.
func (s StackIndexer) Folds(n int) ([]Fold, error) {
	if s.K < 2 {
		return nil, errors.NewConfigurationError("folds", "a stacked layer needs at least 2 folds", s.K)
	}
	if n < s.K {
		return nil, errors.NewValueError("StackIndexer.Folds", fmt.Sprintf("cannot split %d rows into %d folds", n, s.K))
	}

	var perm []int
	if s.Shuffle {
		perm = rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15)).Perm(n)
	}

	folds := make([]Fold, 0, s.K)
	start := 0
	for k := 0; k < s.K; k++ {
		size := n / s.K
		if k < n%s.K {
			size++
		}
		end := start + size

		var test Spec
		if perm == nil {
			test = R(start, end)
		} else {
			test = FromIndices(perm[start:end])
		}
		folds = append(folds, Fold{Train: Complement(test, n), Test: test})
		start = end
	}
	return folds, nil
}

// BlendIndexer trains on the leading rows and holds out the trailing
// TestSize fraction once. The prediction matrix of a blended layer only
// covers the held-out rows.
type BlendIndexer struct {
	TestSize float64
}

// Folds returns the single blend split.
func (b BlendIndexer) Folds(n int) ([]Fold, error) {
	if b.TestSize <= 0 || b.TestSize >= 1 {
		return nil, errors.NewConfigurationError("test_size", "must be in (0, 1)", b.TestSize)
	}
	nTest := int(float64(n) * b.TestSize)
	if nTest < 1 || nTest >= n {
		return nil, errors.NewValueError("BlendIndexer.Folds", fmt.Sprintf("test size %v leaves an empty partition for %d rows", b.TestSize, n))
	}
	split := n - nTest
	return []Fold{{Train: R(0, split), Test: R(split, n)}}, nil
}
