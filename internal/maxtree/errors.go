package maxtree

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidInput reports a malformed pixel buffer or option set.
	ErrInvalidInput = errors.New("invalid input")

	// ErrResourceExhausted reports an image too large to be indexed.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvariantViolation reports a construction bug: a plateau split or a
	// level-ordering violation. It is never caused by bad input.
	ErrInvariantViolation = errors.New("internal invariant violation")
)

func invalidInputf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

func invariantViolationf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrInvariantViolation)
}
