package pods

import (
	"log/slog"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/delaneyj/pods/pkg/value"
)

const actionPrefix = "@@pods"

// Action is what a host store dispatches to its reducers. ID is the hash
// of Type so reducers can switch on a number.
type Action struct {
	Type    string
	ID      uint64
	Payload any
}

func NewAction(typ string, payload any) Action {
	return Action{
		Type:    typ,
		ID:      xxhash.Sum64String(typ),
		Payload: payload,
	}
}

func (a Action) Is(other Action) bool {
	return a.ID == other.ID && a.Type == other.Type
}

var (
	ActionInit              = NewAction(actionPrefix+"/INIT", nil)
	ActionResolvePrimitives = NewAction(actionPrefix+"/RESOLVE_PRIMITIVES", nil)
	ActionCommit            = NewAction(actionPrefix+"/COMMIT", nil)
)

type Reducer func(committed any, a Action) any

// Host is an external unidirectional store the engine pushes settled
// batches into.
type Host interface {
	Dispatch(a Action)
	Subscribe(listener func()) (unsubscribe func())
	GetState() any
}

type hostBinding struct {
	host        Host
	unsubscribe func()
	acked       uint64
}

// pendingMarker stands in for a state in the host tree while its path is
// detected. It is never zero sized, so every marker has its own address.
type pendingMarker struct {
	state uint64
}

// Register mounts every state of e onto h. Reducers answer ActionInit with
// their marker, which locates each state in the host tree; a second
// dispatch replaces the markers with the real values.
func (e *Engine) Register(h Host) (func(), error) {
	if e.status != StatusIdle {
		return nil, &ReentrancyError{Status: e.status}
	}
	for _, b := range e.hosts {
		if b.host == h {
			return b.unsubscribe, nil
		}
	}

	h.Dispatch(ActionInit)
	root := h.GetState()
	for _, s := range e.states {
		path, ok := value.FindPath(root, s.marker())
		if !ok {
			continue
		}
		s.path = path
		s.mounted = true
		e.logger.Debug("mounted state", slog.Uint64("state", s.id), slog.String("path", path.String()))
	}
	h.Dispatch(ActionResolvePrimitives)

	b := &hostBinding{host: h, acked: e.batchSeq}
	stop := h.Subscribe(func() {
		if e.status != StatusConsecutiveAction {
			return
		}
		b.acked = e.batchSeq
		e.resolveConsecutiveOnce()
	})
	b.unsubscribe = func() {
		stop()
		e.hosts = slices.DeleteFunc(e.hosts, func(x *hostBinding) bool {
			return x == b
		})
	}
	e.hosts = append(e.hosts, b)
	return b.unsubscribe, nil
}
