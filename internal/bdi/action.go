package bdi

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/mangle/ast"

	"bdiagent/internal/activity"
	"bdiagent/internal/logic"
)

// Variadic marks an action accepting any number of arguments.
const Variadic = -1

// ErrArityMismatch is returned when an action is invoked with the wrong
// number of arguments.
var ErrArityMismatch = errors.New("argument arity mismatch")

// ErrUnknownAction is returned when no action is registered under a name.
var ErrUnknownAction = errors.New("unknown action")

// InternalRequest is the input of an internal action.
type InternalRequest struct {
	AgentName   string
	Context     AgentContext
	Intention   Intention
	CurrentTime activity.Time
	Args        []ast.BaseTerm
}

// InternalResponse carries the bindings produced by an internal action and
// the changes it asks for.
type InternalResponse struct {
	Substitution logic.Substitution
	Effects      []AgentChange
}

// Succeed is the response of an action with no bindings.
func Succeed(effects ...AgentChange) InternalResponse {
	return InternalResponse{Substitution: logic.Empty(), Effects: effects}
}

// Fail is the response of an action that did not succeed.
func Fail() InternalResponse {
	return InternalResponse{Substitution: logic.Failure()}
}

// InternalAction is an operation on the agent itself.
type InternalAction struct {
	Name  string
	Arity int
	Fn    func(InternalRequest) (InternalResponse, error)
}

// Execute checks the arity and runs the action.
func (a InternalAction) Execute(req InternalRequest) (InternalResponse, error) {
	if a.Arity != Variadic && len(req.Args) != a.Arity {
		return InternalResponse{}, fmt.Errorf("%s/%d called with %d arguments: %w", a.Name, a.Arity, len(req.Args), ErrArityMismatch)
	}
	return a.Fn(req)
}

// AgentChange is a change an internal action asks to apply. Only the types
// below are applied; AgentContext.ApplyChanges rejects anything else.
type AgentChange interface {
	isAgentChange()
}

// BeliefChange adds or removes a belief; the delta raises events.
type BeliefChange struct {
	Kind   UpdateKind
	Belief Belief
}

// IntentionChange upserts or deletes an intention.
type IntentionChange struct {
	Kind      UpdateKind
	Intention Intention
}

// EventChange appends or removes a pending event.
type EventChange struct {
	Kind  UpdateKind
	Event Event
}

// PlanChange adds or removes a plan.
type PlanChange struct {
	Kind UpdateKind
	Plan Plan
}

// Pause asks the controller to suspend the agent.
type Pause struct{}

// Sleep asks the controller to suspend the agent for a duration.
type Sleep struct {
	Duration time.Duration
}

// Stop asks the controller to terminate the agent.
type Stop struct{}

func (BeliefChange) isAgentChange()    {}
func (IntentionChange) isAgentChange() {}
func (EventChange) isAgentChange()     {}
func (PlanChange) isAgentChange()      {}
func (Pause) isAgentChange()           {}
func (Sleep) isAgentChange()           {}
func (Stop) isAgentChange()            {}
