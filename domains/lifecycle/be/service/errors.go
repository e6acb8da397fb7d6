package service

import (
	"errors"
	"fmt"
	"strings"
)

// Taxonomy of terminal pipeline errors. Callers branch on these to map onto
// HTTP status codes and CLI exit codes.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("tenant id already exists in a non-failed state")
	ErrNotFound     = errors.New("tenant not found")
	ErrInvalidState = errors.New("tenant is in an invalid state for this operation")
)

// StageError reports which pipeline stage failed so the caller knows exactly
// what has and has not been applied.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PartialDeploymentError flags fan-out targets that failed while the tenant
// itself came up fine: the tenant stays active, the named services need an
// explicit redeploy.
type PartialDeploymentError struct {
	Failed []string
}

func (e *PartialDeploymentError) Error() string {
	return fmt.Sprintf("partial deployment: services %s failed", strings.Join(e.Failed, ", "))
}
