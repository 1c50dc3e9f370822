package agent

import (
	"errors"
	"fmt"

	"bdiagent/internal/activity"
	"bdiagent/internal/bdi"
	"bdiagent/internal/environment"
	"bdiagent/internal/logging"
	"bdiagent/internal/logic"
)

// Cycle outcomes recorded in traces.
const (
	OutcomeIdle      = "idle"
	OutcomeAdvanced  = "advanced"
	OutcomeSuspended = "suspended"
	OutcomeFailed    = "failed"
)

var errActionPanicked = errors.New("action panicked")

// ExecutionResult is the output of running one goal.
type ExecutionResult struct {
	Context            bdi.AgentContext
	EnvironmentEffects []environment.Change
	Outcome            string
}

// CycleTrace summarises one reasoning cycle.
type CycleTrace struct {
	AgentName  string
	Cycle      int64
	Time       activity.Time
	Event      string
	Plan       string
	Goal       string
	Intention  string
	Outcome    string
	EnvEffects int
	Message    string
}

// CycleResult is the output of Reason.
type CycleResult struct {
	Effects []environment.Change
	Context bdi.AgentContext
	Trace   CycleTrace
}

// Lifecycle runs the reasoning cycle of one agent. It is not safe for
// concurrent use; each agent has its own.
type Lifecycle struct {
	agent  *Agent
	cycles int64
}

// NewLifecycle wraps an agent.
func NewLifecycle(a *Agent) *Lifecycle {
	return &Lifecycle{agent: a}
}

// Agent returns the agent, whose Context reflects the last cycle.
func (l *Lifecycle) Agent() *Agent { return l.agent }

// Cycles returns the number of completed cycles.
func (l *Lifecycle) Cycles() int64 { return l.cycles }

// UpdateBelief revises the belief base with fresh perceptions.
func (l *Lifecycle) UpdateBelief(perceptions, bb bdi.BeliefBase) (bdi.BeliefBase, []bdi.BeliefUpdate) {
	return bdi.Revise(perceptions, bb)
}

// SelectEvent applies the event policy.
func (l *Lifecycle) SelectEvent(q bdi.EventQueue) (bdi.Event, bool) {
	return l.agent.Policies.SelectEvent(q)
}

// RelevantPlans returns the plans whose trigger matches e.
func (l *Lifecycle) RelevantPlans(e bdi.Event, lib bdi.PlanLibrary) []bdi.Plan {
	return lib.Relevant(e, l.agent.Solver)
}

// IsPlanApplicable reports whether p's guard holds for e.
func (l *Lifecycle) IsPlanApplicable(e bdi.Event, p bdi.Plan, bb bdi.BeliefBase) bool {
	return p.IsApplicable(e, bb, l.agent.Solver)
}

// SelectApplicablePlan applies the plan policy.
func (l *Lifecycle) SelectApplicablePlan(plans []bdi.Plan) (bdi.Plan, bool) {
	return l.agent.Policies.SelectPlan(plans)
}

// AssignPlanToIntention places an instantiated plan. External events get a
// new intention. Failure events replace the owner's stack. Other internal
// events pop the owner's spent goal and push the record.
func (l *Lifecycle) AssignPlanToIntention(e bdi.Event, rec bdi.ActivationRecord) bdi.Intention {
	switch {
	case e.IsExternal():
		return bdi.NewIntention(rec)
	case e.Trigger.Kind.IsFailure():
		return e.Intention.WithRecords(rec)
	default:
		return e.Intention.Pop().Push(rec)
	}
}

// ScheduleIntention applies the intention policy.
func (l *Lifecycle) ScheduleIntention(pool bdi.IntentionPool) (bdi.Intention, bdi.IntentionPool, bool) {
	return l.agent.Policies.ScheduleIntention(pool)
}

// Reason runs one full cycle against env, reading time from and forwarding
// control requests to ctrl.
func (l *Lifecycle) Reason(env environment.Environment, ctrl activity.Controller) CycleResult {
	timer := logging.StartTimer(logging.CategoryCycle, "reason "+l.agent.Name)
	defer timer.Stop()

	l.cycles++
	ctx := l.agent.Context
	trace := CycleTrace{
		AgentName: l.agent.Name,
		Cycle:     l.cycles,
		Time:      ctrl.CurrentTime(),
		Outcome:   OutcomeIdle,
	}

	// Perceive and revise.
	bb, delta := l.UpdateBelief(env.Percept(), ctx.BeliefBase)
	events := bdi.GenerateEvents(ctx.Events, delta)
	if len(delta) > 0 {
		logging.BeliefsDebug("%s: revision changed %d beliefs", l.agent.Name, len(delta))
	}

	// One message at most.
	msg, hasMsg := env.NextMessage(l.agent.Name)
	if hasMsg {
		trace.Message = msg.String()
		switch msg.Type {
		case environment.Achieve:
			events = events.Append(bdi.AchieveEvent(msg.Value, nil))
		case environment.Tell:
			var d []bdi.BeliefUpdate
			bb, d = bb.Add(bdi.NewBelief(msg.Value, bdi.FromAgent(msg.From)))
			events = bdi.GenerateEvents(events, d)
		}
	}

	pool := ctx.Intentions
	if event, ok := l.SelectEvent(events); ok {
		events = events.Remove(event.ID)
		trace.Event = event.Trigger.String()

		var applicable []bdi.Plan
		for _, p := range l.RelevantPlans(event, ctx.PlanLibrary) {
			if l.IsPlanApplicable(event, p, bb) {
				applicable = append(applicable, p)
			}
		}

		plan, found := l.SelectApplicablePlan(applicable)
		var rec bdi.ActivationRecord
		if found {
			rec, found = plan.Applicable(event, bb, l.agent.Solver)
		}
		if found {
			trace.Plan = plan.Trigger.String()
			pool = pool.UpdateIntention(l.AssignPlanToIntention(event, rec))
			logging.PlansDebug("%s: %s handled by %s", l.agent.Name, event, plan)
		} else {
			logging.EventsDebug("%s: no applicable plan for %s, discarded", l.agent.Name, event)
			if event.IsInternal() {
				pool = pool.DeleteIntention(event.Intention.ID)
			}
		}
	}

	ctx.BeliefBase = bb
	ctx.Events = events
	ctx.Intentions = pool

	var effects []environment.Change
	if !pool.IsEmpty() {
		intention, rest, ok := l.ScheduleIntention(pool)
		if ok {
			trace.Intention = intention.ID.String()
			if intention.IsEmpty() {
				ctx.Intentions = rest
			} else {
				if g, ok := intention.NextGoal(); ok {
					trace.Goal = g.String()
				}
				ctx.Intentions = rest
				result := l.RunIntention(intention, ctx, env, ctrl)
				ctx = result.Context
				effects = result.EnvironmentEffects
				trace.Outcome = result.Outcome
			}
		}
	}

	if hasMsg {
		effects = append(effects, environment.PopMessage{Agent: l.agent.Name})
	}
	trace.EnvEffects = len(effects)

	l.agent.Context = ctx
	logging.CycleDebug("%s cycle %d: event=%q goal=%q outcome=%s", l.agent.Name, l.cycles, trace.Event, trace.Goal, trace.Outcome)
	return CycleResult{Effects: effects, Context: ctx, Trace: trace}
}

// RunIntention executes the next goal of intention. ctx must not contain
// the intention; it is stored back unless the goal suspends or fails it.
// Actions read the time from ctrl and their control requests go to it.
func (l *Lifecycle) RunIntention(intention bdi.Intention, ctx bdi.AgentContext, env environment.Environment, ctrl activity.Controller) ExecutionResult {
	goal, ok := intention.NextGoal()
	if !ok {
		return ExecutionResult{Context: ctx, Outcome: OutcomeIdle}
	}

	switch g := goal.(type) {
	case bdi.ActInternally:
		return l.actInternally(intention, g, ctx, ctrl)

	case bdi.Act:
		return l.act(intention, g, ctx, env, ctrl)

	case bdi.Spawn:
		ctx.Events = ctx.Events.Append(bdi.AchieveEvent(g.Term, nil))
		ctx.Intentions = ctx.Intentions.UpdateIntention(intention.Pop())
		return ExecutionResult{Context: ctx, Outcome: OutcomeAdvanced}

	case bdi.Achieve:
		owner := intention
		ctx.Events = ctx.Events.Append(bdi.AchieveEvent(g.Term, &owner))
		ctx.Intentions = ctx.Intentions.DeleteIntention(intention.ID)
		return ExecutionResult{Context: ctx, Outcome: OutcomeSuspended}

	case bdi.Test:
		solution := l.agent.Solver.Solve(g.Term.String(), intention.Records[len(intention.Records)-1].Substitution, ctx.BeliefBase.Facts())
		if !solution.IsSuccess() {
			owner := intention
			ctx.Events = ctx.Events.Append(bdi.NewEvent(bdi.Trigger{Kind: bdi.TestFailure, Value: intention.CurrentPlan()}, &owner))
			ctx.Intentions = ctx.Intentions.UpdateIntention(intention)
			logging.IntentionsDebug("%s: test goal %s failed", l.agent.Name, g)
			return ExecutionResult{Context: ctx, Outcome: OutcomeFailed}
		}
		ctx.Intentions = ctx.Intentions.UpdateIntention(advance(intention, solution))
		return ExecutionResult{Context: ctx, Outcome: OutcomeAdvanced}

	case bdi.AddBelief, bdi.RemoveBelief, bdi.UpdateBelief:
		var delta []bdi.BeliefUpdate
		b := bdi.NewBelief(g.Value(), bdi.Self())
		switch g.(type) {
		case bdi.AddBelief:
			ctx.BeliefBase, delta = ctx.BeliefBase.Add(b)
		case bdi.RemoveBelief:
			ctx.BeliefBase, delta = ctx.BeliefBase.Remove(b)
		default:
			ctx.BeliefBase, delta = ctx.BeliefBase.Update(b)
		}
		ctx.Events = bdi.GenerateEvents(ctx.Events, delta)
		ctx.Intentions = ctx.Intentions.UpdateIntention(intention.Pop())
		return ExecutionResult{Context: ctx, Outcome: OutcomeAdvanced}

	case bdi.EmptyGoal:
		ctx.Intentions = ctx.Intentions.UpdateIntention(intention.Pop())
		return ExecutionResult{Context: ctx, Outcome: OutcomeAdvanced}

	default:
		panic(fmt.Sprintf("unhandled goal %T", goal))
	}
}

func (l *Lifecycle) actInternally(intention bdi.Intention, g bdi.ActInternally, ctx bdi.AgentContext, ctrl activity.Controller) ExecutionResult {
	name := g.Action.Predicate.Symbol
	action, ok := ctx.InternalActions[name]
	if !ok {
		logging.Get(logging.CategoryActions).Warn("%s: %s: %v", l.agent.Name, name, bdi.ErrUnknownAction)
		return l.failAchievementGoal(intention, ctx)
	}

	req := bdi.InternalRequest{
		AgentName:   l.agent.Name,
		Context:     ctx,
		Intention:   intention,
		CurrentTime: ctrl.CurrentTime(),
		Args:        g.Action.Args,
	}
	resp, err := callSafely(func() (bdi.InternalResponse, error) { return action.Execute(req) })
	if err != nil || !resp.Substitution.IsSuccess() {
		if err != nil {
			logging.Get(logging.CategoryActions).Warn("%s: .%s failed: %v", l.agent.Name, name, err)
		}
		return l.failAchievementGoal(intention, ctx)
	}

	applied, control, err := ctx.ApplyChanges(resp.Effects)
	if err != nil {
		logging.Get(logging.CategoryActions).Warn("%s: .%s: %v", l.agent.Name, name, err)
		return l.failAchievementGoal(intention, ctx)
	}
	forward(ctrl, control)
	if !droppedBy(resp.Effects, intention) {
		applied.Intentions = applied.Intentions.UpdateIntention(advance(intention, resp.Substitution))
	}
	return ExecutionResult{Context: applied, Outcome: OutcomeAdvanced}
}

func (l *Lifecycle) act(intention bdi.Intention, g bdi.Act, ctx bdi.AgentContext, env environment.Environment, ctrl activity.Controller) ExecutionResult {
	name := g.Action.Predicate.Symbol
	action, ok := env.ExternalAction(name)
	if !ok {
		logging.Get(logging.CategoryActions).Warn("%s: %s: %v", l.agent.Name, name, bdi.ErrUnknownAction)
		return l.failAchievementGoal(intention, ctx)
	}

	req := environment.ExternalRequest{
		Environment: env,
		AgentName:   l.agent.Name,
		CurrentTime: ctrl.CurrentTime(),
		Args:        g.Action.Args,
	}
	resp, err := callSafely(func() (environment.ExternalResponse, error) { return action.Execute(req) })
	if err != nil || !resp.Substitution.IsSuccess() {
		if err != nil {
			logging.Get(logging.CategoryActions).Warn("%s: %s failed: %v", l.agent.Name, name, err)
		}
		return l.failAchievementGoal(intention, ctx)
	}

	ctx.Intentions = ctx.Intentions.UpdateIntention(advance(intention, resp.Substitution))
	return ExecutionResult{Context: ctx, EnvironmentEffects: resp.Effects, Outcome: OutcomeAdvanced}
}

// failAchievementGoal raises a failure event owned by intention and leaves
// the rest of the context untouched.
func (l *Lifecycle) failAchievementGoal(intention bdi.Intention, ctx bdi.AgentContext) ExecutionResult {
	owner := intention
	ctx.Events = ctx.Events.Append(bdi.NewEvent(bdi.Trigger{Kind: bdi.AchievementFailure, Value: intention.CurrentPlan()}, &owner))
	return ExecutionResult{Context: ctx, Outcome: OutcomeFailed}
}

// advance consumes the goal that just succeeded and binds its solution into
// what remains. When the goal ended a sub-plan the bindings reach the
// parent's frame.
func advance(intention bdi.Intention, s logic.Substitution) bdi.Intention {
	next := intention.Pop()
	if next.IsEmpty() {
		return next
	}
	return next.ApplySubstitution(s)
}

func forward(ctrl activity.Controller, control []bdi.AgentChange) {
	for _, c := range control {
		switch ch := c.(type) {
		case bdi.Pause:
			ctrl.Pause()
		case bdi.Sleep:
			ctrl.Sleep(ch.Duration)
		case bdi.Stop:
			ctrl.Stop()
		}
	}
}

func droppedBy(effects []bdi.AgentChange, intention bdi.Intention) bool {
	for _, e := range effects {
		if ch, ok := e.(bdi.IntentionChange); ok && ch.Kind == bdi.Removal && ch.Intention.ID == intention.ID {
			return true
		}
	}
	return false
}

// callSafely turns a panicking action into an error.
func callSafely[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errActionPanicked, r)
		}
	}()
	return fn()
}
