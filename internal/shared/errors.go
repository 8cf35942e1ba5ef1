package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the operation is not allowed in the resource's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input rejected before any persistence.
	ErrValidation = errors.New("validation failed")
	// ErrUnprocessable is a validation failure of well-formed input, such as an unbalanced posting.
	ErrUnprocessable = fmt.Errorf("unprocessable: %w", ErrValidation)
	// ErrForbidden indicates the caller may not act on the company.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a request without a caller identity.
	ErrUnauthorized = errors.New("unauthorized")
)
