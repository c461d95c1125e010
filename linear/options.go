package linear

// RegressionOption configures LinearRegression
type RegressionOption func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept
func WithFitIntercept(fit bool) RegressionOption {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithAlpha sets the L2 penalty; zero means ordinary least squares
func WithAlpha(alpha float64) RegressionOption {
	return func(lr *LinearRegression) {
		lr.Alpha = alpha
	}
}

// LogisticOption configures LogisticRegression
type LogisticOption func(*LogisticRegression)

// WithLearningRate sets the gradient descent step size
func WithLearningRate(lr float64) LogisticOption {
	return func(m *LogisticRegression) {
		m.LearningRate = lr
	}
}

// WithMaxIter sets the maximum number of gradient steps
func WithMaxIter(n int) LogisticOption {
	return func(m *LogisticRegression) {
		m.MaxIter = n
	}
}

// WithTol sets the tolerance on the largest gradient component
func WithTol(tol float64) LogisticOption {
	return func(m *LogisticRegression) {
		m.Tol = tol
	}
}

// WithL2 sets the L2 penalty on the coefficients (not the intercepts)
func WithL2(l2 float64) LogisticOption {
	return func(m *LogisticRegression) {
		m.L2 = l2
	}
}
