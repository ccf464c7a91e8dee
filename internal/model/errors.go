package model

import "errors"

// Error taxonomy for the engine. Callers distinguish "no data" from "bad
// configuration" from internal faults with errors.Is.
var (
	// ErrDataUnavailable means both upstream providers were exhausted or
	// neither supports the symbol. Terminal: no partial result is returned.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidRuleSpec means an unknown rule name or combinator was
	// requested. Rejected before any computation begins.
	ErrInvalidRuleSpec = errors.New("invalid rule spec")

	// ErrInsufficientHistory means an indicator needs more bars than the
	// series holds. Rule evaluation absorbs this as an all-undefined series;
	// it surfaces only on direct misuse of the indicator functions.
	ErrInsufficientHistory = errors.New("insufficient history")
)
