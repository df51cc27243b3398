package mongocheck

import "sync"

// State holds what the check remembers between cycles: the cached
// collection plan and the last observed replica set member state, both
// keyed by sanitized endpoint identity. One State is constructed at
// startup, shared by every check bound to it, and lives for the
// process lifetime.
//
// Each endpoint entry carries its own lock so concurrent cycles
// against distinct endpoints never contend; the outer lock only guards
// entry creation.
type State struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
}

type endpointState struct {
	mu        sync.Mutex
	plan      CollectionPlan
	lastState int
}

// NewState constructs an empty State.
func NewState() *State {
	return &State{endpoints: map[string]*endpointState{}}
}

func (s *State) endpoint(identity string) *endpointState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[identity]
	if !ok {
		ep = &endpointState{lastState: noPriorState}
		s.endpoints[identity] = ep
	}
	return ep
}

// Plan returns the cached collection plan for the endpoint, building
// it on first use. The cache never expires; changing the configured
// categories requires a new endpoint identity or a process restart.
func (s *State) Plan(identity string, additional []string) CollectionPlan {
	ep := s.endpoint(identity)
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.plan == nil {
		ep.plan = buildPlan(additional)
	}
	return ep.plan
}

// ObserveReplicaState records the member state reported by the
// endpoint and, when it differs from a known prior state, returns a
// transition event. The first observation for an endpoint records the
// state without emitting anything.
func (s *State) ObserveReplicaState(identity string, state int, replsetName, localHostname string) (Event, bool) {
	ep := s.endpoint(identity)
	ep.mu.Lock()
	defer ep.mu.Unlock()

	last := ep.lastState
	ep.lastState = state

	if last == noPriorState || last == state {
		return Event{}, false
	}
	return newStateChangeEvent(last, state, identity, replsetName, localHostname), true
}
