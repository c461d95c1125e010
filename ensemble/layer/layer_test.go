package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/ensemble/index"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

type meanEstimator struct{ Mean float64 }

func (m *meanEstimator) Fit(_, y mat.Matrix) error {
	r, _ := y.Dims()
	m.Mean = 0
	for i := 0; i < r; i++ {
		m.Mean += y.At(i, 0) / float64(r)
	}
	return nil
}

func (m *meanEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.Mean)
	}
	return out, nil
}

func (m *meanEstimator) Clone() model.Estimator { return &meanEstimator{} }

type identity struct{}

func (identity) Fit(_, _ mat.Matrix) error                    { return nil }
func (identity) Transform(X mat.Matrix) (mat.Matrix, error) { return X, nil }
func (identity) Clone() model.Transformer                   { return identity{} }

func testLayer() *Layer {
	return &Layer{
		Name: "layer-1",
		Cases: []Case{
			{
				Name:         "sc",
				Transformers: []TransformerEntry{{Name: "id", Transformer: identity{}}},
				Estimators: []EstimatorEntry{
					{Name: "ls", Estimator: &meanEstimator{}},
					{Name: "kn", Estimator: &meanEstimator{}},
				},
			},
			{
				Name:       "np",
				Estimators: []EstimatorEntry{{Name: "rf", Estimator: &meanEstimator{}}},
			},
		},
		Indexer: index.StackIndexer{K: 2},
	}
}

func TestLayer_Counts(t *testing.T) {
	l := testLayer()
	require.NoError(t, l.Validate())
	assert.Equal(t, 3, l.NPred())
	assert.Equal(t, 1, l.NPrep())
	assert.Equal(t, 3, l.Columns())

	l.OutputWidth = 2
	assert.Equal(t, 6, l.Columns())
	assert.Equal(t, DefaultWaitInterval, l.Interval())
	assert.Equal(t, DefaultWaitLimit, l.Limit())
	assert.Equal(t, model.MethodPredict, l.Method())
}

func TestLayer_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *Layer)
	}{
		{"no cases", func(l *Layer) { l.Cases = nil }},
		{"separator in case name", func(l *Layer) { l.Cases[0].Name = "s__c" }},
		{"trailing underscore", func(l *Layer) { l.Cases[1].Name = "np_" }},
		{"duplicate case", func(l *Layer) { l.Cases[1].Name = "sc" }},
		{"duplicate estimator", func(l *Layer) { l.Cases[0].Estimators[1].Name = "ls" }},
		{"empty estimator name", func(l *Layer) { l.Cases[1].Estimators[0].Name = "" }},
		{"case without estimators", func(l *Layer) { l.Cases[1].Estimators = nil }},
		{"unnamed case with transformers", func(l *Layer) { l.Cases[0].Name = "" }},
		{"nil estimator", func(l *Layer) { l.Cases[1].Estimators[0].Estimator = nil }},
		{"proba unsupported", func(l *Layer) { l.Proba = true }},
		{"negative width", func(l *Layer) { l.OutputWidth = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLayer()
			tt.mutate(l)
			err := l.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestAssignColumns_Injective(t *testing.T) {
	l := testLayer()
	for _, width := range []int{1, 3} {
		cols := AssignColumns(l.Cases, width)
		require.Len(t, cols, 3)

		used := make(map[int]ColumnKey)
		for key, start := range cols {
			for c := start; c < start+width; c++ {
				prev, taken := used[c]
				assert.False(t, taken, "column %d shared by %v and %v", c, prev, key)
				used[c] = key
			}
		}
		assert.Equal(t, 0, cols[ColumnKey{"sc", "ls"}])
		assert.Equal(t, width, cols[ColumnKey{"sc", "kn"}])
		assert.Equal(t, 2*width, cols[ColumnKey{"np", "rf"}])
	}
}

func TestLayer_Instances(t *testing.T) {
	l := testLayer()
	folds, err := l.Folder().Folds(10)
	require.NoError(t, err)

	trans, ests := l.Instances(folds)

	// full entries first, then fold by fold
	require.Len(t, ests, 6)
	assert.Equal(t, []string{"sc", "np", "sc__f0", "np__f0", "sc__f1", "np__f1"},
		[]string{ests[0].Case, ests[1].Case, ests[2].Case, ests[3].Case, ests[4].Case, ests[5].Case})
	assert.Equal(t, FullFold, ests[0].Fold)
	assert.Nil(t, ests[0].Test)
	assert.Equal(t, index.R(0, 5), ests[2].Test)

	require.Len(t, trans, 3)
	assert.Equal(t, "sc__t", trans[0].PipelineKey().Filename())
	assert.Equal(t, "sc__f1", trans[2].Case)

	fold := ests[4]
	assert.Equal(t, "ls__f1", fold.Estimators[0].Name)
	assert.Equal(t, "ls", fold.Estimators[0].BaseName)
	assert.Equal(t, ests[0].Estimators[1].Column, fold.Estimators[1].Column)

	// every entry owns its clone
	assert.NotSame(t, ests[0].Estimators[0].Estimator, fold.Estimators[0].Estimator)
	assert.NotSame(t, l.Cases[0].Estimators[0].Estimator, ests[0].Estimators[0].Estimator)
}

func TestLayer_InstancesUnnamedCase(t *testing.T) {
	l := &Layer{Cases: []Case{{Estimators: []EstimatorEntry{{Name: "rf", Estimator: &meanEstimator{}}}}}}
	require.NoError(t, l.Validate())
	folds, err := index.StackIndexer{K: 2}.Folds(4)
	require.NoError(t, err)

	trans, ests := l.Instances(folds)
	assert.Empty(t, trans)
	require.Len(t, ests, 3)
	assert.Equal(t, "", ests[1].Case)
	assert.Equal(t, "rf__f0", ests[1].Estimators[0].Name)
}

func TestFitResult_Retrieve(t *testing.T) {
	res := &FitResult{
		NPred: 1,
		NPrep: 1,
		Preprocessing: []Pipeline{
			{Case: "sc"},
			{Case: "sc__f0"},
		},
		Estimators: []FittedEstimator{
			{Case: "sc", EstimatorArtifact: EstimatorArtifact{Name: "ls"}},
			{Case: "sc__f0", EstimatorArtifact: EstimatorArtifact{Name: "ls__f0", Test: index.R(0, 5)}},
			{Case: "sc__f1", EstimatorArtifact: EstimatorArtifact{Name: "ls__f1", Test: index.R(5, 10)}},
		},
	}

	prep, full, err := res.Retrieve(PartitionFull)
	require.NoError(t, err)
	assert.Len(t, full, 1)
	assert.Contains(t, prep, "sc")
	assert.NotContains(t, prep, "sc__f0")

	prep, fold, err := res.Retrieve(PartitionFold)
	require.NoError(t, err)
	assert.Len(t, fold, 2)
	assert.Contains(t, prep, "sc__f0")

	_, _, err = res.Retrieve("half")
	assert.True(t, errors.IsConfiguration(err))

	res.Preprocessing = nil
	prep, _, err = res.Retrieve(PartitionFull)
	require.NoError(t, err)
	assert.Nil(t, prep)
}

func TestFitResult_RetrieveWithoutFullPipelines(t *testing.T) {
	// only fold pipelines survived the fit
	res := &FitResult{
		NPred: 1,
		Preprocessing: []Pipeline{
			{Case: "sc__f0"},
			{Case: "sc__f1"},
		},
		Estimators: []FittedEstimator{
			{Case: "", EstimatorArtifact: EstimatorArtifact{Name: "ls"}},
			{Case: "sc__f0", EstimatorArtifact: EstimatorArtifact{Name: "ls__f0", Test: index.R(0, 5)}},
			{Case: "sc__f1", EstimatorArtifact: EstimatorArtifact{Name: "ls__f1", Test: index.R(5, 10)}},
		},
	}

	prep, _, err := res.Retrieve(PartitionFull)
	require.NoError(t, err)
	assert.Empty(t, prep)

	prep, fold, err := res.Retrieve(PartitionFold)
	require.NoError(t, err)
	assert.Len(t, fold, 2)
	assert.Contains(t, prep, "sc__f0")
	assert.Contains(t, prep, "sc__f1")
}

func TestLayer_Apply(t *testing.T) {
	l := testLayer()
	assert.Nil(t, l.Result())
	res := &FitResult{NPred: 3}
	l.Apply(res)
	assert.Same(t, res, l.Result())
}
