package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// assertCoverage checks that test rows cover [0, n) exactly once and that
// every fold's train and test rows are disjoint and complete.
func assertCoverage(t *testing.T, folds []Fold, n int) {
	t.Helper()
	seen := make([]int, n)
	for k, f := range folds {
		inFold := make([]bool, n)
		for _, i := range f.Test.Indices(n) {
			seen[i]++
			inFold[i] = true
		}
		for _, i := range f.Train.Indices(n) {
			assert.False(t, inFold[i], "fold %d: row %d both in train and test", k, i)
			inFold[i] = true
		}
		for i, ok := range inFold {
			assert.True(t, ok, "fold %d: row %d neither in train nor test", k, i)
		}
	}
	for i, c := range seen {
		assert.Equal(t, 1, c, "row %d held out %d times", i, c)
	}
}

func TestStackIndexer_Coverage(t *testing.T) {
	for _, tc := range []struct {
		n, k    int
		shuffle bool
	}{
		{100, 2, false},
		{101, 3, false},
		{10, 10, false},
		{97, 5, true},
		{1000, 7, true},
	} {
		t.Run(fmt.Sprintf("n=%d,k=%d,shuffle=%v", tc.n, tc.k, tc.shuffle), func(t *testing.T) {
			folds, err := StackIndexer{K: tc.k, Shuffle: tc.shuffle, Seed: 42}.Folds(tc.n)
			require.NoError(t, err)
			require.Len(t, folds, tc.k)
			assertCoverage(t, folds, tc.n)
			assert.Equal(t, tc.n, HeldOut(folds, tc.n))
		})
	}
}

func TestStackIndexer_RemainderGoesToFirstFolds(t *testing.T) {
	folds, err := StackIndexer{K: 3}.Folds(10)
	require.NoError(t, err)
	assert.Equal(t, R(0, 4), folds[0].Test)
	assert.Equal(t, R(4, 7), folds[1].Test)
	assert.Equal(t, R(7, 10), folds[2].Test)
	assert.Equal(t, Spec{{0, 4}, {7, 10}}, folds[1].Train)
}

func TestStackIndexer_ShuffleIsSeeded(t *testing.T) {
	a, err := StackIndexer{K: 4, Shuffle: true, Seed: 7}.Folds(50)
	require.NoError(t, err)
	b, err := StackIndexer{K: 4, Shuffle: true, Seed: 7}.Folds(50)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	nonContiguous := false
	for _, f := range a {
		if !f.Test.Contiguous() {
			nonContiguous = true
		}
	}
	assert.True(t, nonContiguous)
}

func TestStackIndexer_Errors(t *testing.T) {
	_, err := StackIndexer{K: 1}.Folds(10)
	assert.True(t, errors.IsConfiguration(err))

	_, err = StackIndexer{K: 5}.Folds(3)
	assert.Error(t, err)
}

func TestBlendIndexer(t *testing.T) {
	folds, err := BlendIndexer{TestSize: 0.3}.Folds(100)
	require.NoError(t, err)
	require.Len(t, folds, 1)
	assert.Equal(t, R(0, 70), folds[0].Train)
	assert.Equal(t, R(70, 100), folds[0].Test)
	assert.Equal(t, 30, HeldOut(folds, 100))

	_, err = BlendIndexer{TestSize: 1.5}.Folds(100)
	assert.True(t, errors.IsConfiguration(err))
}

func TestFullIndexer(t *testing.T) {
	folds, err := FullIndexer{}.Folds(10)
	require.NoError(t, err)
	assert.Empty(t, folds)
	assert.Equal(t, 10, HeldOut(folds, 10))
	assert.True(t, Fold{Train: nil}.Full())
}
