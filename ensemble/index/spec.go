// Package index describes row selections of a training array (index specs),
// produces the train/test folds of a layer and materializes row slices.
package index

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

// Range is a half-open row range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in r.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Spec is an ordered list of disjoint ranges. A nil Spec selects the whole
// array.
type Spec []Range

// R returns the contiguous spec [start, end).
func R(start, end int) Spec {
	return Spec{{Start: start, End: end}}
}

// All reports whether s selects the whole array.
func (s Spec) All() bool {
	return s == nil
}

// Len returns the number of selected rows of an array with n rows.
func (s Spec) Len(n int) int {
	if s == nil {
		return n
	}
	total := 0
	for _, r := range s {
		total += r.Len()
	}
	return total
}

// Contiguous reports whether s is a single range.
func (s Spec) Contiguous() bool {
	return len(s) == 1
}

// Indices flattens s into one ascending index list for an array with n
// rows.
func (s Spec) Indices(n int) []int {
	if s == nil {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, s.Len(n))
	for _, r := range s {
		for i := r.Start; i < r.End; i++ {
			out = append(out, i)
		}
	}
	return out
}

// Shift returns s moved down by offset rows. Shifting the whole-array spec
// is not defined and returns nil.
func (s Spec) Shift(offset int) Spec {
	if s == nil {
		return nil
	}
	out := make(Spec, len(s))
	for i, r := range s {
		out[i] = Range{Start: r.Start - offset, End: r.End - offset}
	}
	return out
}

// Validate checks that s is ordered, disjoint and lies within [0, n).
func (s Spec) Validate(n int) error {
	prev := 0
	for i, r := range s {
		if r.Start < 0 || r.End > n || r.Start > r.End {
			return errors.NewValueError("index.Spec", fmt.Sprintf("range %s out of bounds for %d rows", r, n))
		}
		if i > 0 && r.Start < prev {
			return errors.NewValueError("index.Spec", fmt.Sprintf("range %s overlaps or precedes the previous range", r))
		}
		prev = r.End
	}
	return nil
}

func (s Spec) String() string {
	if s == nil {
		return "all"
	}
	if s.Contiguous() {
		return s[0].String()
	}
	return fmt.Sprint([]Range(s))
}

// FromIndices compresses a list of row indices into a spec of maximal
// contiguous ranges. Duplicates are dropped.
func FromIndices(idx []int) Spec {
	if len(idx) == 0 {
		return Spec{}
	}
	sorted := append([]int(nil), idx...)
	sort.Ints(sorted)

	out := Spec{{Start: sorted[0], End: sorted[0] + 1}}
	for _, i := range sorted[1:] {
		last := &out[len(out)-1]
		switch {
		case i < last.End:
		case i == last.End:
			last.End++
		default:
			out = append(out, Range{Start: i, End: i + 1})
		}
	}
	return out
}

// Complement returns the rows of [0, n) not selected by s.
func Complement(s Spec, n int) Spec {
	if s == nil {
		return Spec{}
	}
	out := Spec{}
	cur := 0
	for _, r := range s {
		if r.Start > cur {
			out = append(out, Range{Start: cur, End: r.Start})
		}
		if r.End > cur {
			cur = r.End
		}
	}
	if cur < n {
		out = append(out, Range{Start: cur, End: n})
	}
	return out
}
