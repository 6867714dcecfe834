package rollback

import (
	"errors"
	"fmt"
)

// EvalError represents an error detected while evaluating a tree.
//
// Structural defects are caught at build time; evaluation errors are the
// remaining domain problems: a utility transform applied outside its
// domain, a payoff name with no registered function, an override or forced
// branch that targets nothing.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the index of the affected tree node, or -1 when the error
	// is not tied to a single node.
	Node int
}

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeUtilityDomain indicates a utility transform was applied to a
	// value outside its domain (e.g. log of a non-positive number).
	ErrCodeUtilityDomain EvalErrorCode = "UTILITY_DOMAIN"

	// ErrCodeUnknownPayoff indicates a terminal references an unregistered
	// payoff function.
	ErrCodeUnknownPayoff EvalErrorCode = "UNKNOWN_PAYOFF"

	// ErrCodeUnknownTarget indicates an override references a
	// (variable, branch) pair that does not occur in the tree.
	ErrCodeUnknownTarget EvalErrorCode = "UNKNOWN_TARGET"

	// ErrCodeForcedBranch indicates a forced branch index is out of range
	// or targets a terminal node.
	ErrCodeForcedBranch EvalErrorCode = "FORCED_BRANCH"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Node >= 0 {
		return fmt.Sprintf("%s: %s (node=%d)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUtilityDomainError reports whether err is a utility domain violation.
// Uses errors.As to handle wrapped errors.
func IsUtilityDomainError(err error) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeUtilityDomain
	}
	return false
}

func newUtilityDomainError(utility, detail string) *EvalError {
	return &EvalError{
		Code:    ErrCodeUtilityDomain,
		Message: fmt.Sprintf("%s utility: %s", utility, detail),
		Node:    -1,
	}
}

// atNode returns a copy of an EvalError annotated with the node where it
// surfaced, leaving other errors untouched.
func atNode(err error, idx int) error {
	var ee *EvalError
	if errors.As(err, &ee) && ee.Node < 0 {
		annotated := *ee
		annotated.Node = idx
		return &annotated
	}
	return err
}
