package mongocheck

import (
	"fmt"
	"time"
)

// MongoDB replica set member states, as documented at
// https://docs.mongodb.org/manual/reference/replica-states/
//
// State 4 is not listed in the MongoDB docs but servers do report it.
var replicaSetMemberStates = map[int]memberState{
	0:  {"STARTUP", "Starting Up"},
	1:  {"PRIMARY", "Primary"},
	2:  {"SECONDARY", "Secondary"},
	3:  {"RECOVERING", "Recovering"},
	4:  {"Fatal", "Fatal"},
	5:  {"STARTUP2", "Starting up (forking threads)"},
	6:  {"UNKNOWN", "Unknown to this replset member"},
	7:  {"ARBITER", "Arbiter"},
	8:  {"DOWN", "Down"},
	9:  {"ROLLBACK", "Rollback"},
	10: {"REMOVED", "Removed"},
}

type memberState struct {
	name        string
	description string
}

// noPriorState marks an endpoint with no recorded observation yet; the
// first observed state never produces a transition event.
const noPriorState = -1

// StateName returns the short name of a replica set member state code,
// or UNKNOWN for codes this tracker does not know.
func StateName(code int) string {
	if state, ok := replicaSetMemberStates[code]; ok {
		return state.name
	}
	return "UNKNOWN"
}

// StateDescription returns the long description of a replica set
// member state code.
func StateDescription(code int) string {
	if state, ok := replicaSetMemberStates[code]; ok {
		return state.description
	}
	return fmt.Sprintf("Replset state %d is unknown to this check", code)
}

// Event describes a replica set membership state change for the
// submission backend.
type Event struct {
	Timestamp time.Time
	Title     string
	Body      string
	Host      string
	Tags      []string
}

func newStateChangeEvent(lastState, state int, identity, replsetName, localHostname string) Event {
	status := StateDescription(state)
	shortStatus := StateName(state)
	lastShortStatus := StateName(lastState)
	hostname := eventHostname(identity, localHostname)

	return Event{
		Timestamp: time.Now(),
		Title:     fmt.Sprintf("%s is %s for %s", hostname, shortStatus, replsetName),
		Body: fmt.Sprintf("MongoDB %s (%s) just reported as %s (%s) for %s; it was %s before.",
			hostname, identity, status, shortStatus, replsetName, lastShortStatus),
		Host: hostname,
		Tags: []string{
			"action:mongo_replset_member_status_change",
			"member_status:" + shortStatus,
			"previous_member_status:" + lastShortStatus,
			"replset:" + replsetName,
		},
	}
}
