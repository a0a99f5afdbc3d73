package pods

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/delaneyj/pods/pkg/value"
)

const DefaultMaxObserverPasses = 64

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithErrorHandler receives every error the engine catches instead of
// returning: failed action bodies and failed observer callbacks.
func WithErrorHandler(fn func(err error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithMaxObserverPasses bounds how often one concurrent observer may fire
// within a single batch before the batch is abandoned.
func WithMaxObserverPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// Engine is the resolution coordinator shared by a set of states. It owns
// the re-entrancy status, the batch of updated states and the observer
// registry. An Engine is not safe for concurrent use.
type Engine struct {
	status    ResolutionStatus
	logger    *slog.Logger
	onError   func(error)
	maxPasses int

	idSeq  uint64
	states []*State

	// states mutated since the last settle point, in mutation order
	batch    []*State
	batched  mapset.Set[*State]
	batchSeq uint64
	passes   map[*registration]int

	observers *registry
	hosts     []*hostBinding

	// consecutive observers of the current batch ran, and what they failed with
	consecutiveDone bool
	consecutiveErr  error

	// reads recorded while a compute runs; nil otherwise
	reads   *[]Reference
	lastRef *Reference
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:    slog.Default(),
		maxPasses: DefaultMaxObserverPasses,
		batched:   mapset.NewThreadUnsafeSet[*State](),
		passes:    map[*registration]int{},
		observers: newRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Status() ResolutionStatus {
	return e.status
}

// withStatus switches the status for the duration of fn and restores the
// previous one on every exit path.
func (e *Engine) withStatus(status ResolutionStatus, fn func() error) error {
	prev := e.status
	e.status = status
	defer func() {
		e.status = prev
	}()
	return fn()
}

// RunActionHandler runs fn as a user action. From Idle the resulting batch
// is settled and handed to registered hosts before returning; nested calls
// made by another action run inline and settle with their caller.
//
// Errors returned by fn that are not contract errors are logged, reported
// to the error handler and the states fn drafted are reverted; the batch
// still settles. Contract errors abandon the batch and are returned.
func (e *Engine) RunActionHandler(fn func() (any, error)) (any, error) {
	switch {
	case e.status.observing():
		return nil, &ReentrancyError{Status: e.status}
	case e.status == StatusActionHandler:
		return fn()
	}

	var res any
	err := e.withStatus(StatusActionHandler, func() (err error) {
		res, err = fn()
		return err
	})
	if err != nil {
		if IsContractError(err) {
			e.abort()
			return nil, err
		}
		e.report(errors.Wrap(err, "resolving action handler"), slog.String("status", StatusActionHandler.String()))
		e.revert()
		res = nil
	}
	if err := e.resolve(); err != nil {
		return nil, err
	}
	if p, ok := res.(*Promise); ok {
		p.bind(e)
	}
	return res, nil
}

// Apply runs fn on the concurrent-mutation path: drafts are writable but
// actions are not callable. From Idle the batch settles afterwards.
func (e *Engine) Apply(fn func() error) error {
	switch e.status {
	case StatusConsecutiveAction, StatusCompute:
		return &ReentrancyError{Status: e.status}
	case StatusActionHandler, StatusConcurrentAction:
		return fn()
	}

	if err := e.withStatus(StatusConcurrentAction, fn); err != nil {
		if IsContractError(err) {
			e.abort()
			return err
		}
		e.report(errors.Wrap(err, "resolving applied mutation"), slog.String("status", StatusConcurrentAction.String()))
		e.revert()
	}
	return e.resolve()
}

func (e *Engine) resolve() error {
	if err := e.settle(); err != nil {
		e.abort()
		return err
	}
	return e.dispatchToHost()
}

// settle finalizes every pending draft in the batch. Concurrent observers
// of a changed state may dirty further states, so this loops until no
// state in the batch holds a draft.
func (e *Engine) settle() error {
	for {
		s := e.nextPending()
		if s == nil {
			return nil
		}
		before := s.current
		if !s.finalize() {
			continue
		}
		if err := e.resolveConcurrent(s, before); err != nil {
			return err
		}
	}
}

func (e *Engine) nextPending() *State {
	for _, s := range e.batch {
		if s.draft != nil {
			return s
		}
	}
	return nil
}

func (e *Engine) resolveConcurrent(s *State, before any) error {
	for _, reg := range e.observers.tracking(s, Concurrent) {
		changes, changed := reg.changes(func(t *State) any {
			if t == s {
				return before
			}
			return t.previous
		})
		if !changed {
			continue
		}

		e.passes[reg]++
		if e.passes[reg] > e.maxPasses {
			return &ObserverCycleError{Passes: e.passes[reg]}
		}

		if err := e.withStatus(StatusConcurrentAction, func() error {
			return reg.fn(changes)
		}); err != nil {
			if IsContractError(err) {
				return err
			}
			e.report(
				errors.Wrapf(err, "resolving concurrent observer of state %d", s.id),
				slog.Uint64("state", s.id),
				slog.String("status", StatusConcurrentAction.String()),
			)
		}
	}
	return nil
}

// dispatchToHost hands the settled batch to every registered host once.
// The first host listener told about the commit resolves consecutive
// observers; without one the engine resolves them itself. The batch is
// cleared afterwards, and a contract error raised by a consecutive
// observer is returned after that.
func (e *Engine) dispatchToHost() error {
	if len(e.batch) == 0 {
		return nil
	}
	changed := false
	for _, s := range e.batch {
		changed = changed || !value.Same(s.previous, s.current)
	}
	if !changed {
		e.clearBatch()
		return nil
	}

	e.consecutiveDone, e.consecutiveErr = false, nil
	e.withStatus(StatusConsecutiveAction, func() error {
		commit := NewAction(ActionCommit.Type, e.batchSeq)
		for _, b := range e.hosts {
			b.host.Dispatch(commit)
			if b.acked != e.batchSeq {
				e.logger.Debug("host did not acknowledge commit", slog.Uint64("batch", e.batchSeq))
			}
		}
		e.resolveConsecutiveOnce()
		return nil
	})
	err := e.consecutiveErr
	e.consecutiveErr = nil
	e.clearBatch()
	return err
}

func (e *Engine) resolveConsecutiveOnce() {
	if e.consecutiveDone {
		return
	}
	e.consecutiveDone = true
	e.consecutiveErr = e.resolveConsecutive()
}

// resolveConsecutive stops at the first contract error. The batch is
// already committed at this point, so it is not rolled back.
func (e *Engine) resolveConsecutive() error {
	for _, reg := range e.observers.all(Consecutive) {
		if reg.removed {
			continue
		}
		changes, changed := reg.changes(func(t *State) any {
			return t.previous
		})
		if !changed {
			continue
		}
		if err := reg.fn(changes); err != nil {
			if IsContractError(err) {
				return err
			}
			e.report(
				errors.Wrap(err, "resolving consecutive observer"),
				slog.String("status", StatusConsecutiveAction.String()),
			)
		}
	}
	return nil
}

func (e *Engine) markUpdated(s *State) {
	if e.batched.Contains(s) {
		return
	}
	e.batched.Add(s)
	e.batch = append(e.batch, s)
}

func (e *Engine) clearBatch() {
	for _, s := range e.batch {
		if s.draft != nil {
			s.discardDraft()
		}
		s.previous = s.current
	}
	e.batch = e.batch[:0]
	e.batched.Clear()
	clear(e.passes)
	e.batchSeq++
}

// revert throws away the drafts of a failed action so the states keep
// their pre-handler snapshots.
func (e *Engine) revert() {
	for _, s := range e.batch {
		if s.draft != nil {
			e.logger.Debug("reverting state draft", slog.Uint64("state", s.id))
			s.discardDraft()
		}
	}
}

// abort abandons the in-flight batch entirely. Committed values of states
// already finalized in this batch are rolled back to the batch start.
func (e *Engine) abort() {
	for _, s := range e.batch {
		if s.draft != nil {
			s.discardDraft()
		}
		s.current = s.previous
	}
	e.batch = e.batch[:0]
	e.batched.Clear()
	clear(e.passes)
	e.batchSeq++
}

func (e *Engine) report(err error, attrs ...any) {
	e.logger.Error(err.Error(), attrs...)
	if e.onError != nil {
		e.onError(err)
	}
}

func (e *Engine) register(s *State) {
	e.idSeq++
	s.id = e.idSeq
	s.engine = e
	e.states = append(e.states, s)
}

// recordRead notes a property read. Computes collect their dependencies
// this way; idle reads become the last accessed reference.
func (e *Engine) recordRead(s *State, path value.Path) {
	switch e.status {
	case StatusCompute:
		if e.reads != nil {
			*e.reads = append(*e.reads, Reference{State: s, Path: path})
		}
	case StatusIdle:
		e.lastRef = &Reference{State: s, Path: path}
	}
}

// collectReads runs fn and returns every read it made.
func (e *Engine) collectReads(fn func()) []Reference {
	prev := e.reads
	reads := []Reference{}
	e.reads = &reads
	defer func() {
		e.reads = prev
	}()
	fn()
	return reads
}

// Property runs read while idle and returns the last state property it
// accessed, for narrowing Observe and Track to a single property.
func (e *Engine) Property(read func()) (Reference, error) {
	if e.status != StatusIdle {
		return Reference{}, &ReentrancyError{Status: e.status}
	}
	e.lastRef = nil
	read()
	ref := e.lastRef
	e.lastRef = nil
	if ref == nil {
		return Reference{}, &UnregisteredStateError{Reason: "no state property was read"}
	}
	return *ref, nil
}
