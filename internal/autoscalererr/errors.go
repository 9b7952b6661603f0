// Package autoscalererr defines the error kinds shared across the control
// plane (spec.md §7). Callers use errors.Is against the sentinels below;
// adapters wrap underlying failures with fmt.Errorf("...: %w", Sentinel).
package autoscalererr

import "errors"

var (
	// ErrNotFound is returned when a requested group or instance is
	// missing. Fatal inside a job; maps to 404 at the (out-of-scope) API
	// edge.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks an invalid desired-count combination or a
	// name mismatch. Maps to 400 at the API edge.
	ErrValidation = errors.New("validation error")

	// ErrLockUnavailable is transient: the caller should return false
	// from the job and let the next producer interval retry.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrCloud wraps a cloud-adapter failure after the adapter's own
	// retries have been exhausted.
	ErrCloud = errors.New("cloud error")

	// ErrThrottled has the same disposition as ErrCloud but is kept
	// distinct for observability (untracked-instance launch throttle).
	ErrThrottled = errors.New("throttled")

	// ErrStore wraps an underlying InstanceStore failure.
	ErrStore = errors.New("store error")
)

// Wrap joins err under sentinel so errors.Is(result, sentinel) holds while
// preserving the original message via %w-style chaining.
func Wrap(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{sentinel: sentinel, err: err}
}

type wrapped struct {
	sentinel error
	err      error
}

func (w *wrapped) Error() string { return w.sentinel.Error() + ": " + w.err.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.sentinel, w.err} }
