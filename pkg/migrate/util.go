package migrate

import "github.com/pkg/errors"

// OutcomeOf maps a Migrate error to its outcome.
func OutcomeOf(err error) Outcome {
	switch errors.Cause(err) {
	case nil:
		return OutcomeMigrated
	case ErrFilteredDomain:
		return OutcomeFilteredDomain
	case ErrDedicatedDestination:
		return OutcomeDedicatedDestination
	case ErrSameHost:
		return OutcomeSameHost
	case ErrInsufficientCapacity:
		return OutcomeInsufficientCapacity
	case ErrAffinityConflict:
		return OutcomeAffinityConflict
	case ErrExecutionFailure:
		return OutcomeExecutionFailure
	}
	return OutcomeUnknownVM
}

// IsRejection reports whether err is a placement constraint violation.
func IsRejection(err error) bool {
	switch errors.Cause(err) {
	case ErrFilteredDomain, ErrDedicatedDestination, ErrSameHost, ErrInsufficientCapacity, ErrAffinityConflict:
		return true
	}
	return false
}
