package bdi

import (
	"errors"
	"fmt"
)

// ErrUnknownChange is returned for an AgentChange the context cannot apply.
var ErrUnknownChange = errors.New("unknown agent change")

// AgentContext is the full state of an agent at a cycle boundary. Each cycle
// produces a new value; nothing in it is shared mutably.
type AgentContext struct {
	BeliefBase      BeliefBase
	Events          EventQueue
	PlanLibrary     PlanLibrary
	Intentions      IntentionPool
	InternalActions map[string]InternalAction
}

// WithInternalActions returns the context with actions registered,
// replacing any with the same name.
func (c AgentContext) WithInternalActions(actions ...InternalAction) AgentContext {
	registry := make(map[string]InternalAction, len(c.InternalActions)+len(actions))
	for k, v := range c.InternalActions {
		registry[k] = v
	}
	for _, a := range actions {
		registry[a.Name] = a
	}
	c.InternalActions = registry
	return c
}

// ApplyChanges applies the context-directed changes in order and returns
// the control requests (Pause, Sleep, Stop) for the caller to forward. If any
// change is of an unknown type nothing is applied.
func (c AgentContext) ApplyChanges(changes []AgentChange) (AgentContext, []AgentChange, error) {
	for _, change := range changes {
		switch change.(type) {
		case BeliefChange, IntentionChange, EventChange, PlanChange, Pause, Sleep, Stop:
		default:
			return c, nil, fmt.Errorf("%w %T", ErrUnknownChange, change)
		}
	}

	var control []AgentChange
	for _, change := range changes {
		switch ch := change.(type) {
		case BeliefChange:
			var delta []BeliefUpdate
			if ch.Kind == Addition {
				c.BeliefBase, delta = c.BeliefBase.Add(ch.Belief)
			} else {
				c.BeliefBase, delta = c.BeliefBase.Remove(ch.Belief)
			}
			c.Events = GenerateEvents(c.Events, delta)
		case IntentionChange:
			if ch.Kind == Addition {
				c.Intentions = c.Intentions.UpdateIntention(ch.Intention)
			} else {
				c.Intentions = c.Intentions.DeleteIntention(ch.Intention.ID)
			}
		case EventChange:
			if ch.Kind == Addition {
				c.Events = c.Events.Append(ch.Event)
			} else {
				c.Events = c.Events.Remove(ch.Event.ID)
			}
		case PlanChange:
			if ch.Kind == Addition {
				c.PlanLibrary = c.PlanLibrary.AddPlan(ch.Plan)
			} else {
				c.PlanLibrary = c.PlanLibrary.RemovePlan(ch.Plan)
			}
		case Pause, Sleep, Stop:
			control = append(control, ch)
		}
	}
	return c, control, nil
}
