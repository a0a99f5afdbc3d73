package pods

// ResolutionStatus is the single re-entrancy mode of an Engine. It decides
// which mutation and observation operations are currently legal.
type ResolutionStatus uint8

const (
	StatusIdle              ResolutionStatus = iota // nothing in flight
	StatusActionHandler                             // running a user action, drafts are writable
	StatusConcurrentAction                          // resolving a concurrent observer, drafts are writable
	StatusConsecutiveAction                         // resolving consecutive observers after settle
	StatusCompute                                   // recomputing a derived value
)

func (s ResolutionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActionHandler:
		return "action-handler"
	case StatusConcurrentAction:
		return "concurrent-action"
	case StatusConsecutiveAction:
		return "consecutive-action"
	case StatusCompute:
		return "compute"
	default:
		return "unknown"
	}
}

func (s ResolutionStatus) mutable() bool {
	return s == StatusActionHandler || s == StatusConcurrentAction
}

// observing reports whether s is inside an observer or compute callback,
// where calling actions would interleave with an in-progress batch.
func (s ResolutionStatus) observing() bool {
	return s == StatusConcurrentAction || s == StatusConsecutiveAction || s == StatusCompute
}
