package pods

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMutation   = errors.New("pods: illegal mutation")
	ErrReentrancy        = errors.New("pods: reentrant action")
	ErrInvalidCompute    = errors.New("pods: invalid compute")
	ErrUnregisteredState = errors.New("pods: unregistered state")
	ErrObserverCycle     = errors.New("pods: observer cycle")
)

// IsContractError reports whether err signals misuse of the engine rather
// than a failure of user code. Contract errors are never swallowed.
func IsContractError(err error) bool {
	return errors.Is(err, ErrIllegalMutation) ||
		errors.Is(err, ErrReentrancy) ||
		errors.Is(err, ErrInvalidCompute) ||
		errors.Is(err, ErrUnregisteredState) ||
		errors.Is(err, ErrObserverCycle)
}

type IllegalMutationError struct {
	State  uint64
	Path   string
	Status ResolutionStatus
	Reason string
}

func (e *IllegalMutationError) Error() string {
	return fmt.Sprintf("%s of state %d at %q during %s: %s", ErrIllegalMutation, e.State, e.Path, e.Status, e.Reason)
}

func (e *IllegalMutationError) Unwrap() error { return ErrIllegalMutation }

type ReentrancyError struct {
	Status ResolutionStatus
}

func (e *ReentrancyError) Error() string {
	return fmt.Sprintf("%s during %s: to prevent race conditions, actions cannot be called within observer functions", ErrReentrancy, e.Status)
}

func (e *ReentrancyError) Unwrap() error { return ErrReentrancy }

type InvalidComputeError struct {
	Key    string
	Reason string
}

func (e *InvalidComputeError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidCompute, e.Key, e.Reason)
}

func (e *InvalidComputeError) Unwrap() error { return ErrInvalidCompute }

type UnregisteredStateError struct {
	State  uint64
	Reason string
}

func (e *UnregisteredStateError) Error() string {
	return fmt.Sprintf("%s %d: %s", ErrUnregisteredState, e.State, e.Reason)
}

func (e *UnregisteredStateError) Unwrap() error { return ErrUnregisteredState }

type ObserverCycleError struct {
	Passes int
}

func (e *ObserverCycleError) Error() string {
	return fmt.Sprintf("%s: a concurrent observer fired %d times in one batch", ErrObserverCycle, e.Passes)
}

func (e *ObserverCycleError) Unwrap() error { return ErrObserverCycle }
