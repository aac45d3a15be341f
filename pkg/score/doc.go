// Package score blends the anomaly, classifier and network signals of a claim
// batch into a single risk score. It exposes [Normalize], [Combine], [Weights]
// and [DefaultWeights].
package score
