package domain

import "errors"

// Sentinel errors shared across the engine. Callers match them with
// errors.Is; all failures are local and recoverable.
var (
	// ErrInsufficientData signals that more data must be gathered before
	// optimizing: fewer than 2 holdings, or a zero-value portfolio.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidWeights signals target weights that don't match the
	// holding count or don't sum to 1 within tolerance.
	ErrInvalidWeights = errors.New("invalid weights")
)
