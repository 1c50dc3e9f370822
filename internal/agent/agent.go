// Package agent runs the BDI reasoning cycle of a single agent.
package agent

import (
	"io"

	"github.com/google/mangle/ast"
	"github.com/google/uuid"

	"bdiagent/internal/actions"
	"bdiagent/internal/bdi"
	"bdiagent/internal/logic"
)

// Policies are the replaceable choices of the reasoning cycle.
type Policies struct {
	SelectEvent       bdi.EventSelector
	SelectPlan        bdi.PlanSelector
	ScheduleIntention bdi.IntentionScheduler
}

// DefaultPolicies selects events FIFO, plans in declaration order and
// intentions round-robin.
func DefaultPolicies() Policies {
	return Policies{
		SelectEvent:       bdi.FIFOEvents,
		SelectPlan:        bdi.FirstPlan,
		ScheduleIntention: bdi.RoundRobin,
	}
}

// Agent is a named BDI agent and its state.
type Agent struct {
	ID       uuid.UUID
	Name     string
	Context  bdi.AgentContext
	Policies Policies
	Solver   logic.Solver
}

// Option configures an Agent.
type Option func(*Agent)

// New creates an agent with the default policies, a Mangle solver and the
// default internal actions printing to stdout.
func New(name string, opts ...Option) *Agent {
	a := &Agent{
		ID:       uuid.New(),
		Name:     name,
		Policies: DefaultPolicies(),
		Solver:   logic.NewMangleSolver(),
	}
	a.Context = a.Context.WithInternalActions(actions.Defaults(nil)...)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithBeliefs adds self-asserted beliefs.
func WithBeliefs(terms ...ast.Atom) Option {
	return func(a *Agent) {
		for _, t := range terms {
			a.Context.BeliefBase, _ = a.Context.BeliefBase.Add(bdi.NewBelief(t, bdi.Self()))
		}
	}
}

// WithGoals queues an external achievement event per goal.
func WithGoals(goals ...ast.Atom) Option {
	return func(a *Agent) {
		for _, g := range goals {
			a.Context.Events = a.Context.Events.Append(bdi.AchieveEvent(g, nil))
		}
	}
}

// WithPlans appends plans to the library.
func WithPlans(plans ...bdi.Plan) Option {
	return func(a *Agent) {
		for _, p := range plans {
			a.Context.PlanLibrary = a.Context.PlanLibrary.AddPlan(p)
		}
	}
}

// WithInternalActions registers actions, replacing defaults of the same name.
func WithInternalActions(actions ...bdi.InternalAction) Option {
	return func(a *Agent) {
		a.Context = a.Context.WithInternalActions(actions...)
	}
}

// WithOutput redirects the default print action.
func WithOutput(w io.Writer) Option {
	return func(a *Agent) {
		a.Context = a.Context.WithInternalActions(actions.Defaults(w)...)
	}
}

// WithPolicies replaces the selection policies. Nil fields keep the default.
func WithPolicies(p Policies) Option {
	return func(a *Agent) {
		if p.SelectEvent != nil {
			a.Policies.SelectEvent = p.SelectEvent
		}
		if p.SelectPlan != nil {
			a.Policies.SelectPlan = p.SelectPlan
		}
		if p.ScheduleIntention != nil {
			a.Policies.ScheduleIntention = p.ScheduleIntention
		}
	}
}

// WithSolver replaces the logic solver.
func WithSolver(s logic.Solver) Option {
	return func(a *Agent) {
		a.Solver = s
	}
}
