package index

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_Indices(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		n    int
		want []int
	}{
		{"whole array", nil, 4, []int{0, 1, 2, 3}},
		{"contiguous", R(2, 5), 10, []int{2, 3, 4}},
		{"range list is flattened", Spec{{0, 2}, {5, 7}}, 10, []int{0, 1, 5, 6}},
		{"empty", Spec{}, 10, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.spec.Indices(tt.n)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Indices() mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, len(tt.want), tt.spec.Len(tt.n))
		})
	}
}

func TestFromIndicesAndComplement(t *testing.T) {
	s := FromIndices([]int{7, 1, 2, 3, 9, 8, 2})
	assert.Equal(t, Spec{{1, 4}, {7, 10}}, s)
	assert.Equal(t, Spec{{0, 1}, {4, 7}, {10, 12}}, Complement(s, 12))
	assert.Equal(t, Spec{}, Complement(nil, 5))
	assert.Equal(t, Spec{{0, 5}}, Complement(Spec{}, 5))
}

func TestSpec_ValidateAndShift(t *testing.T) {
	require.NoError(t, Spec{{0, 2}, {4, 6}}.Validate(6))
	assert.Error(t, R(0, 7).Validate(6))
	assert.Error(t, Spec{{3, 5}, {1, 2}}.Validate(6))
	assert.Error(t, R(-1, 2).Validate(6))

	assert.Equal(t, Spec{{0, 2}, {5, 6}}, Spec{{10, 12}, {15, 16}}.Shift(10))
	assert.Nil(t, Spec(nil).Shift(3))
}
