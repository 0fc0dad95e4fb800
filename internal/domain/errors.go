package domain

import "errors"

var (
	// ErrInsufficientData means there were too few bars or contracts to produce a pick.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoEligibleContract is the normal "nothing passed the hard filters" outcome.
	ErrNoEligibleContract = errors.New("no eligible contract")

	// ErrDegenerateInput marks a zero-denominator input that was replaced by its fallback.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrScreenedOut means a symbol failed a pre-screen gate (price, IV rank, HV, earnings, ROI target).
	ErrScreenedOut = errors.New("screened out")

	ErrNotFound = errors.New("not found")
)
