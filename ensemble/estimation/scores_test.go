package estimation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/YuminosukeSato/mlstack/ensemble/layer"
)

func f(v float64) *float64 { return &v }

func TestBuildScores(t *testing.T) {
	records := []ScoreRecord{
		{Key: "np___rf"},
		{Key: "___ls"},
		{Key: "np__f0___rf__f0", Value: nil},
		{Key: "np__f0___rf__f0", Value: f(0.1)},
		{Key: "___ls__f0", Value: f(1)},
		{Key: "np__f1___rf__f1", Value: f(0.3)},
		{Key: "___ls__f1", Value: f(3)},
	}
	got := BuildScores(records, 2)

	want := map[string]layer.Score{
		"np__rf": {Mean: 0.2, Std: 0.1},
		"ls":     {Mean: 2, Std: 1},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("BuildScores() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildScoresOmitsUnscored(t *testing.T) {
	records := []ScoreRecord{
		{Key: "sc___ls"},
		{Key: "sc___bad"},
		{Key: "sc__f0___ls__f0", Value: f(4)},
		{Key: "sc__f0___bad__f0"},
	}
	got := BuildScores(records, 2)
	assert.Len(t, got, 1)
	assert.Equal(t, layer.Score{Mean: 4, Std: 0}, got["sc__ls"])
}

func TestBuildScoresWithoutFolds(t *testing.T) {
	assert.Empty(t, BuildScores([]ScoreRecord{{Key: "___ls"}}, 1))
	assert.Empty(t, BuildScores(nil, 3))
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "sc__f1___ls__f1", RecordKey("sc__f1", "ls__f1"))
	assert.Equal(t, "___ls", RecordKey("", "ls"))
}
