package cache

import (
	"fmt"
	"strings"
)

// Separator joins the parts of cache file names and qualified names.
const Separator = "__"

// Role is the kind of artifact stored under a key.
type Role string

const (
	// RoleTransformer marks a fitted transformer pipeline.
	RoleTransformer Role = "t"
	// RoleEstimator marks a fitted estimator with its metadata and score.
	RoleEstimator Role = "e"
)

// Key addresses one artifact of a fit cycle. Case, estimator and role
// determine the key uniquely, so each key has exactly one writer.
type Key struct {
	Case      string
	Estimator string
	Role      Role
}

// TransformerKey returns the key of the pipeline fitted for caseKey.
func TransformerKey(caseKey string) Key {
	return Key{Case: caseKey, Role: RoleTransformer}
}

// EstimatorKey returns the key of estimator est fitted for caseKey.
func EstimatorKey(caseKey, est string) Key {
	return Key{Case: caseKey, Estimator: est, Role: RoleEstimator}
}

// Filename returns "{case}__t" or "{case}__{estimator}__e".
func (k Key) Filename() string {
	if k.Role == RoleTransformer {
		return k.Case + Separator + string(RoleTransformer)
	}
	return strings.Join([]string{k.Case, k.Estimator, string(k.Role)}, Separator)
}

func (k Key) String() string {
	return fmt.Sprintf("%s(%s)", k.Role, k.Filename())
}
