package main

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// readCSV parses a CSV with a header row into a feature matrix and a label
// column.
func readCSV(r io.Reader, target string) (X, y *mat.Dense, features []string, err error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "read header")
	}
	ti := -1
	for i, name := range header {
		if name == target {
			ti = i
			continue
		}
		features = append(features, name)
	}
	if ti < 0 {
		return nil, nil, nil, errors.NewValueError("readCSV", "target column "+strconv.Quote(target)+" not found")
	}
	if len(features) == 0 {
		return nil, nil, nil, errors.NewValueError("readCSV", "no feature columns")
	}

	var xs, ys []float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "line %d", line)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "line %d column %s", line, header[i])
			}
			if i == ti {
				ys = append(ys, v)
			} else {
				xs = append(xs, v)
			}
		}
	}
	if len(ys) == 0 {
		return nil, nil, nil, errors.ErrEmptyData
	}
	return mat.NewDense(len(ys), len(features), xs), mat.NewDense(len(ys), 1, ys), features, nil
}

func loadCSV(path, target string) (X, y *mat.Dense, features []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return readCSV(bufio.NewReader(f), target)
}

func writeCSV(w io.Writer, header []string, m mat.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	r, c := m.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func saveCSV(path string, header []string, m mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := writeCSV(f, header, m); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}
