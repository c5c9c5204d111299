package qsim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is wrapped by every validation failure: out-of-range
	// qubit indices, duplicate control powers, oversized permutations, and
	// mismatched qubit counts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotImplemented marks a capability a given engine variant does not
	// support.
	ErrNotImplemented = errors.New("not implemented")
)

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// badBitRange reports whether [start, start+length) exceeds qubitCount.
func badBitRange(start, length, qubitCount int) bool {
	return start < 0 || length < 0 || start+length > qubitCount
}

// badPermRange reports whether [offset, offset+length) exceeds maxQPower.
func badPermRange(offset, length, maxQPower uint64) bool {
	return offset > maxQPower || length > maxQPower-offset
}
