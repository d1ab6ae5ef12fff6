package significance

import (
	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Status is a node's position in the tester's state machine:
//
//	Unvisited → StatisticsComputed → {Accepted | Merged | Rejected}
//
// Transitions only move forward.
type Status uint8

const (
	Unvisited Status = iota
	StatisticsComputed
	Accepted
	Merged
	Rejected
)

func (s Status) String() string {
	switch s {
	case Unvisited:
		return "unvisited"
	case StatisticsComputed:
		return "statistics-computed"
	case Accepted:
		return "accepted"
	case Merged:
		return "merged"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Final reports whether s is a terminal decision.
func (s Status) Final() bool {
	return s == Accepted || s == Merged || s == Rejected
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// advance moves a node from cur to next, refusing anything but the forward
// transitions of the state machine.
func advance(node int32, cur, next Status) (Status, error) {
	ok := (cur == Unvisited && next == StatisticsComputed) ||
		(cur == StatisticsComputed && next.Final())
	if !ok {
		return cur, errors.Mark(
			errors.AssertionFailedf("node %d cannot move from %s to %s", node, cur, next),
			maxtree.ErrInvariantViolation)
	}
	return next, nil
}
