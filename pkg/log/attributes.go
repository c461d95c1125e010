package log

// Standard attribute keys. Keys follow a hierarchical naming convention so
// that logs of one fit cycle can be filtered by layer, case or job.

// Layer and job context
const (
	// LayerKey is the name of the layer being estimated.
	LayerKey = "layer.name"

	// CycleKey identifies one fit/predict/transform call (a uuid).
	CycleKey = "layer.cycle"

	// CaseKey is the qualified preprocessing case ("sc", "sc__f0", "").
	CaseKey = "layer.case"

	// EstimatorKey is the qualified estimator name ("ls", "ls__f1").
	EstimatorKey = "layer.estimator"

	// JobKindKey is one of the JobKind* values.
	JobKindKey = "job.kind"

	// ColumnKey is the first output column written by a job.
	ColumnKey = "job.column"

	// OperationKey is the layer level operation (fit, predict, transform).
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"
)

// Data shape
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	JobsKey     = "dispatch.jobs"
	WorkersKey  = "dispatch.workers"
)

// Cache and waiting
const (
	CacheDirKey  = "cache.dir"
	CacheFileKey = "cache.file"
	WaitedKey    = "wait.elapsed"
	LimitKey     = "wait.limit"
)

// Performance and scores
const (
	DurationKey = "perf.duration"
	ScoreKey    = "metrics.score"
)

// Error context
const (
	ErrorKey      = "error"
	StacktraceKey = "error.stacktrace"
)

// Standard operation values for OperationKey.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
)

// Standard job kinds for JobKindKey.
const (
	JobKindFitTransformer = "fit_transformer"
	JobKindFitEstimator   = "fit_estimator"
	JobKindPredictFull    = "predict_full"
	JobKindPredictFold    = "predict_fold"
)
