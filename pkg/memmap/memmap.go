// Package memmap provides a float matrix backed by a memory-mapped file, so
// that inputs and prediction matrices larger than memory can be shared by
// every worker of a layer.
package memmap

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// DType is the on-disk element type.
type DType int

const (
	Float64 DType = iota
	Float32
)

func (d DType) size() int {
	if d == Float32 {
		return 4
	}
	return 8
}

// Matrix is a row-major matrix stored in a file. It implements mat.Mutable;
// concurrent Set calls on distinct elements are safe.
type Matrix struct {
	file  *os.File
	data  []byte
	rows  int
	cols  int
	dtype DType
}

var _ mat.Mutable = (*Matrix)(nil)

// Create creates (or truncates) path to hold a rows x cols zero matrix.
func Create(path string, rows, cols int, dtype DType) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.NewValueError("memmap.Create", fmt.Sprintf("invalid shape %dx%d", rows, cols))
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	size := int64(rows * cols * dtype.size())
	if err := file.Truncate(size); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to resize file")
	}
	return mapFile(file, rows, cols, dtype)
}

// Open maps an existing file holding a rows x cols matrix.
func Open(path string, rows, cols int, dtype DType) (*Matrix, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to stat file")
	}
	if want := int64(rows * cols * dtype.size()); info.Size() != want {
		_ = file.Close()
		return nil, errors.NewValueError("memmap.Open", fmt.Sprintf("%s has %d bytes, want %d", path, info.Size(), want))
	}
	return mapFile(file, rows, cols, dtype)
}

func mapFile(file *os.File, rows, cols int, dtype DType) (*Matrix, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, rows*cols*dtype.size(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to mmap")
	}
	return &Matrix{file: file, data: data, rows: rows, cols: cols, dtype: dtype}, nil
}

// Path returns the backing file name.
func (m *Matrix) Path() string {
	return m.file.Name()
}

// Dims implements mat.Matrix.
func (m *Matrix) Dims() (r, c int) {
	return m.rows, m.cols
}

// T implements mat.Matrix.
func (m *Matrix) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

func (m *Matrix) offset(i, j int) int {
	if i < 0 || i >= m.rows {
		panic(mat.ErrRowAccess)
	}
	if j < 0 || j >= m.cols {
		panic(mat.ErrColAccess)
	}
	return (i*m.cols + j) * m.dtype.size()
}

// At implements mat.Matrix.
func (m *Matrix) At(i, j int) float64 {
	off := m.offset(i, j)
	if m.dtype == Float32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(m.data[off : off+4])))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(m.data[off : off+8]))
}

// Set implements mat.Mutable.
func (m *Matrix) Set(i, j int, v float64) {
	off := m.offset(i, j)
	if m.dtype == Float32 {
		binary.LittleEndian.PutUint32(m.data[off:off+4], math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(m.data[off:off+8], math.Float64bits(v))
}

// Rows copies rows [start, end) into a dense matrix.
func (m *Matrix) Rows(start, end int) (*mat.Dense, error) {
	if start < 0 || end > m.rows || start >= end {
		return nil, errors.NewValueError("memmap.Rows", fmt.Sprintf("invalid row range [%d, %d)", start, end))
	}
	out := mat.NewDense(end-start, m.cols, nil)
	for i := start; i < end; i++ {
		for j := 0; j < m.cols; j++ {
			out.Set(i-start, j, m.At(i, j))
		}
	}
	return out, nil
}

// SetRows writes chunk starting at row start.
func (m *Matrix) SetRows(start int, chunk mat.Matrix) error {
	r, c := chunk.Dims()
	if c != m.cols {
		return errors.NewDimensionError("memmap.SetRows", m.cols, c, 1)
	}
	if start < 0 || start+r > m.rows {
		return errors.NewValueError("memmap.SetRows", fmt.Sprintf("rows [%d, %d) outside %d rows", start, start+r, m.rows))
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(start+i, j, chunk.At(i, j))
		}
	}
	return nil
}

// IterateRows calls fn with consecutive copies of at most size rows.
func (m *Matrix) IterateRows(size int, fn func(chunk *mat.Dense, start int) error) error {
	if size <= 0 {
		return errors.NewValueError("memmap.IterateRows", "chunk size must be positive")
	}
	for start := 0; start < m.rows; start += size {
		chunk, err := m.Rows(start, min(start+size, m.rows))
		if err != nil {
			return err
		}
		if err := fn(chunk, start); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes dirty pages back to the file.
func (m *Matrix) Flush() error {
	return errors.Wrap(unix.Msync(m.data, unix.MS_SYNC), "failed to msync")
}

// Close flushes, unmaps and closes the file. The matrix must not be used
// afterwards.
func (m *Matrix) Close() error {
	if m.data == nil {
		return nil
	}
	err := m.Flush()
	if uerr := unix.Munmap(m.data); uerr != nil {
		err = errors.Join(err, errors.Wrap(uerr, "failed to munmap"))
	}
	m.data = nil
	return errors.Join(err, m.file.Close())
}
