package bdi

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bdiagent/internal/logic"
)

// Plan reacts to events matching its trigger when its guard holds.
type Plan struct {
	ID      uuid.UUID
	Trigger Trigger
	// Guard is a Mangle rule body; empty means true.
	Guard string
	Goals []Goal
}

// NewPlan creates a plan with a fresh id.
func NewPlan(trigger Trigger, guard string, goals ...Goal) Plan {
	return Plan{ID: uuid.New(), Trigger: trigger, Guard: strings.TrimSpace(guard), Goals: goals}
}

// unifier returns the substitution making the plan relevant for e.
func (p Plan) unifier(e Event, solver logic.Solver) logic.Substitution {
	if p.Trigger.Kind != e.Trigger.Kind {
		return logic.Failure()
	}
	return solver.Unify(p.Trigger.Value, e.Trigger.Value)
}

// IsRelevant reports whether the trigger matches the event.
func (p Plan) IsRelevant(e Event, solver logic.Solver) bool {
	return p.unifier(e, solver).IsSuccess()
}

// IsApplicable reports whether the plan is relevant and its guard holds.
func (p Plan) IsApplicable(e Event, bb BeliefBase, solver logic.Solver) bool {
	_, ok := p.Applicable(e, bb, solver)
	return ok
}

// Applicable materialises the plan for e: the unifier and the guard
// solution are applied to the trigger and the body and kept in the
// returned record.
func (p Plan) Applicable(e Event, bb BeliefBase, solver logic.Solver) (ActivationRecord, bool) {
	s := p.unifier(e, solver)
	if !s.IsSuccess() {
		return ActivationRecord{}, false
	}
	s = solver.Solve(p.Guard, s, bb.Facts())
	if !s.IsSuccess() {
		return ActivationRecord{}, false
	}
	goals := make([]Goal, len(p.Goals))
	for i, g := range p.Goals {
		goals[i] = g.Apply(s)
	}
	instance := Plan{
		ID:      p.ID,
		Trigger: Trigger{Kind: p.Trigger.Kind, Value: s.Apply(p.Trigger.Value)},
		Guard:   p.Guard,
		Goals:   goals,
	}
	rec := instance.ToActivationRecord()
	rec.Substitution = s
	return rec, true
}

// ToActivationRecord wraps the plan in a fresh stack frame. A plan with no
// goals yields a single EmptyGoal.
func (p Plan) ToActivationRecord() ActivationRecord {
	goals := make([]Goal, len(p.Goals))
	copy(goals, p.Goals)
	if len(goals) == 0 {
		goals = []Goal{EmptyGoal{}}
	}
	return ActivationRecord{Plan: p, Goals: goals, Substitution: logic.Empty()}
}

func (p Plan) String() string {
	var b strings.Builder
	b.WriteString(p.Trigger.String())
	if p.Guard != "" {
		fmt.Fprintf(&b, " : %s", p.Guard)
	}
	goals := make([]string, len(p.Goals))
	for i, g := range p.Goals {
		goals[i] = g.String()
	}
	if len(goals) == 0 {
		goals = []string{EmptyGoal{}.String()}
	}
	b.WriteString(" <- ")
	b.WriteString(strings.Join(goals, "; "))
	return b.String()
}

// PlanLibrary holds plans in declaration order.
type PlanLibrary struct {
	plans []Plan
}

// NewPlanLibrary builds a library in the given order.
func NewPlanLibrary(plans ...Plan) PlanLibrary {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return PlanLibrary{plans: out}
}

// Plans returns a copy of the plans in declaration order.
func (l PlanLibrary) Plans() []Plan {
	out := make([]Plan, len(l.plans))
	copy(out, l.plans)
	return out
}

// Len returns the number of plans.
func (l PlanLibrary) Len() int { return len(l.plans) }

// AddPlan appends a plan.
func (l PlanLibrary) AddPlan(p Plan) PlanLibrary {
	out := make([]Plan, 0, len(l.plans)+1)
	out = append(out, l.plans...)
	return PlanLibrary{plans: append(out, p)}
}

// RemovePlan drops the plan with p's id.
func (l PlanLibrary) RemovePlan(p Plan) PlanLibrary {
	out := make([]Plan, 0, len(l.plans))
	for _, existing := range l.plans {
		if existing.ID != p.ID {
			out = append(out, existing)
		}
	}
	return PlanLibrary{plans: out}
}

// Relevant returns the plans whose trigger matches e, in declaration order.
func (l PlanLibrary) Relevant(e Event, solver logic.Solver) []Plan {
	var out []Plan
	for _, p := range l.plans {
		if p.IsRelevant(e, solver) {
			out = append(out, p)
		}
	}
	return out
}

// PlanSelector picks one plan among applicable candidates.
type PlanSelector func([]Plan) (Plan, bool)

// FirstPlan selects the first candidate in declaration order.
func FirstPlan(plans []Plan) (Plan, bool) {
	if len(plans) == 0 {
		return Plan{}, false
	}
	return plans[0], true
}
