// Package session owns the session lifecycle: the state machine, the
// one-active-session-per-user rule, and the turn flow that stitches quota,
// voice, roles, model routing, and the transcript together.
package session

import (
	"fmt"

	api "github.com/oratio/teachback/api/session"
)

// transitions is the authoritative lifecycle table. Aborted is reachable
// from every non-terminal state.
var transitions = map[api.State][]api.State{
	api.StateInitializing: {api.StateTeaching, api.StateAborted},
	api.StateTeaching:     {api.StateInterrupted, api.StateExamining, api.StateAborted},
	api.StateInterrupted:  {api.StateTeaching, api.StateAborted},
	api.StateExamining:    {api.StateCompleted, api.StateAborted},
	api.StateCompleted:    {},
	api.StateAborted:      {},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to api.State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to api.State) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", api.ErrInvalidTransition, from, to)
	}
	return nil
}
