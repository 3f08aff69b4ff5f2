package store

import "errors"

// ErrNotFound is returned when a listing, strategy, or calculated price is
// absent or has expired. Expired data is treated identically to absent
// data (§3, §4.6).
var ErrNotFound = errors.New("store: not found")

// Kind classifies a store error for the orchestrator's ack/retry mapping
// (§4.6, §7 categories 4 and 5).
type Kind int

const (
	// KindTransient covers connection and timeout errors; the orchestrator
	// retries (nacks) these and counts them toward the circuit breaker.
	KindTransient Kind = iota
	// KindStructural covers decode/marshal errors on stored data; the
	// orchestrator skips these with a log, since retrying won't help.
	KindStructural
	// KindNotFound is a listing/strategy/calculated-price miss.
	KindNotFound
)

// Error wraps an underlying store error with its classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if target == ErrNotFound {
		return e.Kind == KindNotFound
	}
	return false
}

func transientErr(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func structuralErr(op string, err error) error {
	return &Error{Kind: KindStructural, Op: op, Err: err}
}

func notFoundErr(op string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: ErrNotFound}
}

// IsRetryable reports whether err should be retried (nacked) rather than
// skipped (§7 category 4 vs. the rest).
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return false
}
