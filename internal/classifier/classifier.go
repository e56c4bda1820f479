// Package classifier defines the contract with the external waste image
// classification model and the point derivation rules built on top of it.
package classifier

import (
	"context"
	"fmt"
	"math"
)

// UnknownCategory is reported whenever the model could not produce a usable result.
const UnknownCategory = "unknown"

// Result contains the outcome returned by the classification model.
type Result struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Client exposes the subset of functionality used by the upload flow.
type Client interface {
	Classify(ctx context.Context, image []byte) (*Result, error)
}

// Unknown returns the degraded result used when classification fails.
func Unknown() *Result {
	return &Result{Category: UnknownCategory, Confidence: 0}
}

// Points derives the award for a confidence score: floor(confidence * 100).
func Points(confidence float64) int64 {
	if math.IsNaN(confidence) || confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		return 100
	}
	return int64(math.Floor(confidence * 100))
}

// Validate checks that a model response is usable.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("empty classification result")
	}
	if r.Category == "" {
		return fmt.Errorf("classification result has no category")
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}
