package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// rowSparse stores only the non-zero entries of each row.
type rowSparse struct {
	rows, cols int
	data       []map[int]float64
}

func newRowSparse(d *mat.Dense) *rowSparse {
	r, c := d.Dims()
	s := &rowSparse{rows: r, cols: c, data: make([]map[int]float64, r)}
	for i := 0; i < r; i++ {
		s.data[i] = map[int]float64{}
		for j := 0; j < c; j++ {
			if v := d.At(i, j); v != 0 {
				s.data[i][j] = v
			}
		}
	}
	return s
}

func (s *rowSparse) Dims() (int, int) { return s.rows, s.cols }
func (s *rowSparse) At(i, j int) float64 { return s.data[i][j] }
func (s *rowSparse) T() mat.Matrix       { return mat.Transpose{Matrix: s} }

func (s *rowSparse) SelectRows(rows []int) (mat.Matrix, error) {
	out := &rowSparse{rows: len(rows), cols: s.cols, data: make([]map[int]float64, len(rows))}
	for i, r := range rows {
		out.data[i] = s.data[r]
	}
	return out, nil
}

func seq(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = float64(i)
	}
	return mat.NewDense(r, c, data)
}

func TestSlice_WholeArrayIsIdempotent(t *testing.T) {
	X := seq(6, 3)
	y := seq(6, 1)

	xs, ys, err := Slice(X, y, nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(X, xs))
	assert.True(t, mat.Equal(y, ys))

	// the slice is a copy
	xs.(*mat.Dense).Set(0, 0, -1)
	assert.Equal(t, 0.0, X.At(0, 0))
}

func TestSlice_RangeList(t *testing.T) {
	X := seq(6, 2)
	y := seq(6, 1)

	xs, ys, err := Slice(X, y, Spec{{0, 1}, {4, 6}})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(3, 2, []float64{0, 1, 8, 9, 10, 11}), xs))
	assert.True(t, mat.Equal(mat.NewDense(3, 1, []float64{0, 4, 5}), ys))
}

func TestSlice_NonRawInput(t *testing.T) {
	X := seq(3, 4)
	xs, err := SliceRows(X.T(), R(1, 3))
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{1, 5, 9, 2, 6, 10}), xs))
}

func TestSlice_LargeInputCopiesInParallel(t *testing.T) {
	X := seq(parallelRows+10, 2)
	xs, err := SliceRows(X, R(5, parallelRows+10))
	require.NoError(t, err)
	r, _ := xs.Dims()
	assert.Equal(t, parallelRows+5, r)
	assert.Equal(t, X.At(parallelRows+9, 1), xs.At(parallelRows+4, 1))
}

func TestSlice_SparseIsNotDensified(t *testing.T) {
	X := newRowSparse(mat.NewDense(4, 3, []float64{
		1, 0, 0,
		0, 2, 0,
		0, 0, 3,
		4, 0, 0,
	}))
	xs, _, err := Slice(X, nil, Spec{{1, 2}, {3, 4}})
	require.NoError(t, err)

	sp, ok := xs.(*rowSparse)
	require.True(t, ok, "sparse input must keep its type")
	assert.Equal(t, 2.0, sp.At(0, 1))
	assert.Equal(t, 4.0, sp.At(1, 0))
}

func TestSlice_Errors(t *testing.T) {
	X := seq(4, 2)
	_, _, err := Slice(X, nil, R(2, 9))
	assert.Error(t, err)

	_, _, err = Slice(X, seq(3, 1), nil)
	assert.Error(t, err)
}
