package planner

import (
	"errors"
	"fmt"
)

// PreconditionError means the request cannot run against the current data:
// no pending shipments, unknown vehicle, missing coordinates and so on.
// Err is set when the cause is a lookup miss (store.ErrNotFound).
type PreconditionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string { return e.Op + ": " + e.Reason }

func (e *PreconditionError) Unwrap() error { return e.Err }

// ExternalProviderError wraps a failed distance or geocoding call.
type ExternalProviderError struct {
	Op       string
	Provider string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("%s: provider %s: %v", e.Op, e.Provider, e.Err)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. Nothing of the failed write is kept.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": store: " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrInvariant marks a result the solver should never have produced, such
// as a load over capacity. It is a bug, not a data or store problem.
var ErrInvariant = errors.New("invariant violated")

// ErrNothingToRoute is returned when a vehicle has fewer than two shipments in
// the latest assignment. It is not a failure.
var ErrNothingToRoute = errors.New("nothing to route")
