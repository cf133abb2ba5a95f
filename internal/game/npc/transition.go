package npc

// transitions lists the allowed successors of each state.
var transitions = map[State][]State{
	StateIdle:         {StatePatrol, StateConversation, StateAlert, StateWorking},
	StatePatrol:       {StateIdle, StateAlert, StateConversation},
	StateConversation: {StateIdle, StateAlert},
	StateAlert:        {StateIdle, StateHostile, StatePatrol},
	StateWorking:      {StateIdle, StateAlert},
	StateSleeping:     {StateIdle, StateAlert},
	StateFollowing:    {StateIdle, StateAlert, StateConversation},
	StateHostile:      {StateAlert, StateIdle},
}

// CanTransition reports whether the state machine permits from → to.
// Self-transitions are never permitted; callers treat them as no-ops.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Successors returns a copy of the allowed successors of s.
func Successors(s State) []State {
	return append([]State(nil), transitions[s]...)
}

// routeVia returns the intermediate state through which from can reach to in
// two legal hops, preferring Idle, then Alert.
func routeVia(from, to State) (State, bool) {
	for _, mid := range []State{StateIdle, StateAlert} {
		if CanTransition(from, mid) && CanTransition(mid, to) {
			return mid, true
		}
	}
	return from, false
}
