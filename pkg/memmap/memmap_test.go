package memmap

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCreateSetAt(t *testing.T) {
	for _, dtype := range []DType{Float64, Float32} {
		path := filepath.Join(t.TempDir(), "p.bin")
		m, err := Create(path, 3, 2, dtype)
		require.NoError(t, err)

		r, c := m.Dims()
		assert.Equal(t, 3, r)
		assert.Equal(t, 2, c)
		assert.Zero(t, m.At(2, 1))

		m.Set(1, 0, 1.5)
		m.Set(2, 1, -4)
		assert.Equal(t, 1.5, m.At(1, 0))
		assert.Equal(t, -4.0, m.At(2, 1))
		assert.Equal(t, 1.5, m.T().At(0, 1))
		require.NoError(t, m.Close())

		reopened, err := Open(path, 3, 2, dtype)
		require.NoError(t, err)
		assert.Equal(t, 1.5, reopened.At(1, 0))
		require.NoError(t, reopened.Close())
	}
}

func TestOpenSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.bin")
	m, err := Create(path, 2, 2, Float64)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = Open(path, 3, 2, Float64)
	assert.Error(t, err)
}

func TestOutOfRangePanics(t *testing.T) {
	m, err := Create(filepath.Join(t.TempDir(), "p.bin"), 2, 2, Float64)
	require.NoError(t, err)
	defer m.Close()

	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { m.Set(0, -1, 1) })
}

func TestRowsRoundTrip(t *testing.T) {
	m, err := Create(filepath.Join(t.TempDir(), "p.bin"), 5, 2, Float64)
	require.NoError(t, err)
	defer m.Close()

	chunk := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, m.SetRows(3, chunk))
	assert.Error(t, m.SetRows(4, chunk))
	assert.Error(t, m.SetRows(0, mat.NewDense(1, 3, nil)))

	got, err := m.Rows(3, 5)
	require.NoError(t, err)
	assert.True(t, mat.Equal(chunk, got))

	_, err = m.Rows(4, 4)
	assert.Error(t, err)

	var starts []int
	total := 0
	require.NoError(t, m.IterateRows(2, func(c *mat.Dense, start int) error {
		r, _ := c.Dims()
		starts = append(starts, start)
		total += r
		return nil
	}))
	assert.Equal(t, []int{0, 2, 4}, starts)
	assert.Equal(t, 5, total)
}

func TestConcurrentDisjointWrites(t *testing.T) {
	m, err := Create(filepath.Join(t.TempDir(), "p.bin"), 100, 4, Float64)
	require.NoError(t, err)
	defer m.Close()

	var wg sync.WaitGroup
	for j := 0; j < 4; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Set(i, j, float64(i*10+j))
			}
		}(j)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, float64(i*10+j), m.At(i, j))
		}
	}
}
