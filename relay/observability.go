package relay

import "sync"

// CallObservation captures one relayed request outcome.
type CallObservation struct {
	BackendID  string
	Method     string
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// DiscoverObservation captures one discovery round trip.
type DiscoverObservation struct {
	BackendID  string
	ToolCount  int
	DurationMS int64
	Success    bool
}

// ProbeObservation captures one liveness probe outcome.
type ProbeObservation struct {
	BackendID  string
	DurationMS int64
	Healthy    bool
}

// Observer receives relay-level observability events.
type Observer interface {
	ObserveCall(observation CallObservation)
	ObserveDiscover(observation DiscoverObservation)
	ObserveProbe(observation ProbeObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveCall(CallObservation)         {}
func (noopObserver) ObserveDiscover(DiscoverObservation) {}
func (noopObserver) ObserveProbe(ProbeObservation)       {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide relay observability observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitCallObservation(observation CallObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveCall(observation)
}

func emitDiscoverObservation(observation DiscoverObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveDiscover(observation)
}

func emitProbeObservation(observation ProbeObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveProbe(observation)
}
