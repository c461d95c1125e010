package index

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/parallel"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// parallelRows is the row count above which slicing copies rows concurrently.
const parallelRows = 8192

// RowSelector is implemented by matrices that select rows themselves,
// such as sparse formats that must not be densified.
type RowSelector interface {
	mat.Matrix
	SelectRows(rows []int) (mat.Matrix, error)
}

// Slice materializes the rows of X (and y, if non-nil) selected by s. The
// result never shares memory with the inputs, so a memory-mapped source can
// be released once the slice is taken. RowSelector inputs are delegated to
// their own SelectRows.
func Slice(X, y mat.Matrix, s Spec) (mat.Matrix, *mat.Dense, error) {
	n, _ := X.Dims()
	if err := s.Validate(n); err != nil {
		return nil, nil, err
	}
	if y != nil {
		if ny, _ := y.Dims(); ny != n {
			return nil, nil, errors.NewDimensionError("index.Slice", n, ny, 0)
		}
	}
	rows := s.Indices(n)

	var xs mat.Matrix
	if sel, ok := X.(RowSelector); ok {
		var err error
		if xs, err = sel.SelectRows(rows); err != nil {
			return nil, nil, errors.Wrap(err, "row selection failed")
		}
	} else {
		xs = copyRows(X, rows)
	}

	var ys *mat.Dense
	if y != nil {
		ys = copyRows(y, rows)
	}
	return xs, ys, nil
}

// SliceRows is Slice without labels.
func SliceRows(X mat.Matrix, s Spec) (mat.Matrix, error) {
	xs, _, err := Slice(X, nil, s)
	return xs, err
}

func copyRows(src mat.Matrix, rows []int) *mat.Dense {
	_, c := src.Dims()
	if len(rows) == 0 || c == 0 {
		return &mat.Dense{}
	}
	dst := mat.NewDense(len(rows), c, nil)

	raw, isRaw := src.(mat.RawMatrixer)
	parallel.ParallelizeWithThreshold(len(rows), parallelRows, func(start, end int) {
		for i := start; i < end; i++ {
			if isRaw {
				m := raw.RawMatrix()
				off := rows[i] * m.Stride
				dst.SetRow(i, m.Data[off:off+m.Cols])
				continue
			}
			for j := 0; j < c; j++ {
				dst.Set(i, j, src.At(rows[i], j))
			}
		}
	})
	return dst
}
