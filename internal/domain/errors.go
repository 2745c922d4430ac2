package domain

import "errors"

var (
	// ErrPlanNotFound is returned when a plan does not exist
	ErrPlanNotFound = errors.New("plan not found")
	// ErrDuplicateContent is returned when a plan with identical content already exists
	ErrDuplicateContent = errors.New("duplicate content")
	// ErrNotSupported is returned when an operation is not available in the
	// active storage mode. Callers must be able to tell this apart from an
	// empty result.
	ErrNotSupported = errors.New("operation not supported in this storage mode")
	// ErrJudgeUnavailable is returned by judge adapters when the external
	// judge cannot be reached; the gate fails open on it.
	ErrJudgeUnavailable = errors.New("judge unavailable")
)
