package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/linear"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

func TestReadCSV(t *testing.T) {
	in := "a,y,b\n1,10,2\n3,20,4\n"
	X, y, features, err := readCSV(strings.NewReader(in), "y")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, features)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), X))
	assert.True(t, mat.Equal(mat.NewDense(2, 1, []float64{10, 20}), y))

	_, _, _, err = readCSV(strings.NewReader(in), "z")
	assert.Error(t, err)
	_, _, _, err = readCSV(strings.NewReader("a,y\n1,x\n"), "y")
	assert.Error(t, err)
	_, _, _, err = readCSV(strings.NewReader("a,y\n"), "y")
	assert.ErrorIs(t, err, errors.ErrEmptyData)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, []string{"p", "q"}, mat.NewDense(2, 2, []float64{1, 0.5, -2, 3})))
	assert.Equal(t, "p,q\n1,0.5\n-2,3\n", buf.String())
}

func TestColumnNames(t *testing.T) {
	l := &layer.Layer{
		OutputWidth: 2,
		Cases: []layer.Case{
			{Estimators: []layer.EstimatorEntry{{Name: "lr", Estimator: linear.NewLogisticRegression()}}},
			{Name: "sc", Estimators: []layer.EstimatorEntry{{Name: "lr", Estimator: linear.NewLogisticRegression()}}},
		},
	}
	assert.Equal(t, []string{"lr.0", "lr.1", "sc__lr.0", "sc__lr.1"}, columnNames(l))
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"-c", "layer.yaml", "--data", "train.csv", "--timeout", "5m"}))

	require.NoError(t, opts.Validate())
	assert.Equal(t, 5*time.Minute, opts.Timeout)
	assert.Equal(t, "y", opts.Target)

	opts.Data = ""
	assert.True(t, errors.IsConfiguration(opts.Validate()))
}

const layerYAML = `
layer:
  name: demo
  folds: 3
  scorer: mse
  wait: {interval: 10ms, limit: 30s}
  cases:
    - name: sc
      transformers:
        - {name: std, kind: standard_scaler}
      estimators:
        - {name: ls, kind: linear_regression}
    - estimators:
        - {name: rg, kind: linear_regression, params: {alpha: 1}}
engine:
  workers: 2
cache:
  watch: true
log:
  level: error
`

func writeDataset(t *testing.T, dir string, n int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	var b strings.Builder
	b.WriteString("x0,x1,y\n")
	for i := 0; i < n; i++ {
		x0, x1 := rng.NormFloat64(), rng.NormFloat64()
		fmt.Fprintf(&b, "%g,%g,%g\n", x0, x1, 3*x0-x1+0.5+0.01*rng.NormFloat64())
	}
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "layer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(layerYAML), 0o600))

	opts := NewOptions()
	opts.Config = cfgPath
	opts.Data = writeDataset(t, dir, 60)
	opts.Output = filepath.Join(dir, "oof.csv")
	opts.Predict = filepath.Join(dir, "full.csv")
	opts.Plot = filepath.Join(dir, "oof.png")
	opts.Metrics = filepath.Join(dir, "metrics.txt")
	opts.Mmap = true

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &stdout))

	out, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, "sc__ls,rg", lines[0])
	assert.Len(t, lines, 61)

	assert.FileExists(t, opts.Predict)
	assert.FileExists(t, opts.Plot)
	assert.NoFileExists(t, filepath.Join(dir, ".oof.csv.bin"))

	metrics, err := os.ReadFile(opts.Metrics)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "mlstack_")

	assert.Contains(t, stdout.String(), "sc__ls")
	assert.Contains(t, stdout.String(), "rg")
}
