package agent

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdiagent/internal/activity"
	"bdiagent/internal/bdi"
	"bdiagent/internal/environment"
	"bdiagent/internal/logic"
)

func plan(t *testing.T, trigger, guard string, goals ...bdi.Goal) bdi.Plan {
	t.Helper()
	tr, err := bdi.ParseTrigger(trigger)
	require.NoError(t, err)
	return bdi.NewPlan(tr, guard, goals...)
}

func act(term string) bdi.Goal     { return bdi.ActInternally{Action: logic.MustParse(term)} }
func achieve(term string) bdi.Goal { return bdi.Achieve{Term: logic.MustParse(term)} }

func controller() *activity.SteppedController {
	return activity.NewSteppedController(activity.NewClock(), 0)
}

// helloWorld builds the counting agent: plan A stops at S == M, plan B
// prints and recurses while S < M.
func helloWorld(t *testing.T, out *bytes.Buffer) *Agent {
	return New("alice",
		WithOutput(out),
		WithBeliefs(logic.MustParse("run()")),
		WithGoals(logic.MustParse("start(0, 10)")),
		WithPlans(
			plan(t, "+!start(S, S)", "", act(`print("hello world", S)`)),
			plan(t, "+!start(S, M)", "S < M, N = fn:plus(S, 1)",
				act(`print("hello world", S)`),
				achieve("start(N, M)"),
			),
		),
	)
}

func TestReasonHelloWorld(t *testing.T) {
	var out bytes.Buffer
	lc := NewLifecycle(helloWorld(t, &out))
	env := environment.NewLocal()
	ctrl := controller()

	for i := 0; i < 100; i++ {
		lc.Reason(env, ctrl)
		ctx := lc.Agent().Context
		if ctx.Events.Len() == 0 && ctx.Intentions.IsEmpty() {
			break
		}
	}

	var want []string
	for i := 0; i <= 10; i++ {
		want = append(want, fmt.Sprintf("[alice] hello world %d", i))
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out.String()), "\n"))
	assert.True(t, lc.Agent().Context.Intentions.IsEmpty())
	assert.True(t, lc.Agent().Context.BeliefBase.Contains(logic.MustParse("run()")))
}

func TestUnknownActionRaisesOneFailure(t *testing.T) {
	a := New("alice",
		WithBeliefs(logic.MustParse("run()")),
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", act("no_such_action()"))),
	)
	before := a.Context
	lc := NewLifecycle(a)

	res := lc.Reason(environment.NewLocal(), controller())
	require.Equal(t, OutcomeFailed, res.Trace.Outcome)

	events := res.Context.Events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, bdi.AchievementFailure, events[0].Trigger.Kind)
	require.NotNil(t, events[0].Intention)
	assert.Equal(t, res.Trace.Intention, events[0].Intention.ID.String())
	assert.Equal(t, logic.Key(logic.MustParse("go()")), logic.Key(events[0].Trigger.Value))

	assert.True(t, res.Context.BeliefBase.Equal(before.BeliefBase))
	assert.Equal(t, before.PlanLibrary.Len(), res.Context.PlanLibrary.Len())
}

func TestArityMismatchAndPanicAreContained(t *testing.T) {
	boom := bdi.InternalAction{Name: "boom", Arity: 0, Fn: func(bdi.InternalRequest) (bdi.InternalResponse, error) {
		panic("kaboom")
	}}
	for _, goal := range []string{"sleep()", "boom()"} {
		a := New("alice",
			WithInternalActions(boom),
			WithGoals(logic.MustParse("go()")),
			WithPlans(plan(t, "+!go()", "", act(goal))),
		)
		res := NewLifecycle(a).Reason(environment.NewLocal(), controller())
		require.Equal(t, 1, res.Context.Events.Len(), goal)
		assert.Equal(t, bdi.AchievementFailure, res.Context.Events.Events()[0].Trigger.Kind, goal)
	}
}

func TestFailurePlanReplacesStack(t *testing.T) {
	var out bytes.Buffer
	a := New("alice",
		WithOutput(&out),
		WithGoals(logic.MustParse("go()")),
		WithPlans(
			plan(t, "+!go()", "", act("fail()"), act(`print("unreachable")`)),
			plan(t, "-!go()", "", act(`print("recovered")`)),
		),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	first := lc.Reason(env, ctrl)
	require.Equal(t, OutcomeFailed, first.Trace.Outcome)

	second := lc.Reason(env, ctrl)
	assert.Equal(t, first.Trace.Intention, second.Trace.Intention, "recovery runs in the failed intention")
	assert.Equal(t, "[alice] recovered\n", out.String())
}

func TestNoMatchPrunesInternalOwner(t *testing.T) {
	a := New("alice",
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", bdi.Test{Term: logic.MustParse("missing(X)")})),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	first := lc.Reason(env, ctrl)
	require.Equal(t, OutcomeFailed, first.Trace.Outcome)
	require.Equal(t, 1, first.Context.Intentions.Len(), "a failed test keeps the intention")
	events := first.Context.Events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, bdi.TestFailure, events[0].Trigger.Kind)

	second := lc.Reason(env, ctrl)
	assert.True(t, second.Context.Intentions.IsEmpty())
	assert.Equal(t, 0, second.Context.Events.Len())
}

func TestNoMatchExternalLeavesPool(t *testing.T) {
	a := New("alice",
		WithGoals(logic.MustParse("go()"), logic.MustParse("unknown()")),
		WithPlans(plan(t, "+!go()", "", act(`print("a")`), act(`print("b")`))),
		WithOutput(&bytes.Buffer{}),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	first := lc.Reason(env, ctrl)
	require.Equal(t, 1, first.Context.Intentions.Len())
	id := first.Context.Intentions.Intentions()[0].ID

	second := lc.Reason(env, ctrl)
	require.Equal(t, 1, second.Context.Intentions.Len())
	assert.Equal(t, id, second.Context.Intentions.Intentions()[0].ID)
	assert.Equal(t, 0, second.Context.Events.Len())
}

func TestAchieveSuspendsAndResumes(t *testing.T) {
	var out bytes.Buffer
	a := New("alice",
		WithOutput(&out),
		WithGoals(logic.MustParse("main()")),
		WithPlans(
			plan(t, "+!main()", "", achieve("sub(7)"), act(`print("back")`)),
			plan(t, "+!sub(X)", "", act(`print("in sub", X)`)),
		),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	first := lc.Reason(env, ctrl)
	assert.Equal(t, OutcomeSuspended, first.Trace.Outcome)
	assert.True(t, first.Context.Intentions.IsEmpty())
	events := first.Context.Events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, bdi.AchievementInvocation, events[0].Trigger.Kind)
	require.True(t, events[0].IsInternal())

	second := lc.Reason(env, ctrl)
	require.Equal(t, 1, second.Context.Intentions.Len())
	resumed := second.Context.Intentions.Intentions()[0]
	assert.Equal(t, events[0].Intention.ID, resumed.ID)

	lc.Reason(env, ctrl)
	assert.Equal(t, "[alice] in sub 7\n[alice] back\n", out.String())
}

func TestSpawnDoesNotSuspend(t *testing.T) {
	a := New("alice",
		WithOutput(&bytes.Buffer{}),
		WithGoals(logic.MustParse("main()")),
		WithPlans(plan(t, "+!main()", "", bdi.Spawn{Term: logic.MustParse("side()")}, act(`print("main")`))),
	)
	res := NewLifecycle(a).Reason(environment.NewLocal(), controller())

	assert.Equal(t, 1, res.Context.Intentions.Len())
	events := res.Context.Events.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsExternal())
}

func TestBeliefGoalsGenerateEvents(t *testing.T) {
	a := New("alice",
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "",
			bdi.AddBelief{Term: logic.MustParse("counter(1)")},
			bdi.UpdateBelief{Term: logic.MustParse("counter(2)")},
			bdi.RemoveBelief{Term: logic.MustParse("counter(2)")},
		)),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	res := lc.Reason(env, ctrl)
	assert.True(t, res.Context.BeliefBase.Contains(logic.MustParse("counter(1)")))
	require.Equal(t, 1, res.Context.Events.Len())
	assert.Equal(t, bdi.BeliefAddition, res.Context.Events.Events()[0].Trigger.Kind)

	// The belief addition event is consumed (no plan), then the update runs.
	res = lc.Reason(env, ctrl)
	kinds := []bdi.TriggerKind{}
	for _, e := range res.Context.Events.Events() {
		kinds = append(kinds, e.Trigger.Kind)
	}
	assert.Equal(t, []bdi.TriggerKind{bdi.BeliefRemoval, bdi.BeliefAddition}, kinds)
	assert.True(t, res.Context.BeliefBase.Contains(logic.MustParse("counter(2)")))
	assert.False(t, res.Context.BeliefBase.Contains(logic.MustParse("counter(1)")))
}

func TestTestGoalBindsVariables(t *testing.T) {
	var out bytes.Buffer
	a := New("alice",
		WithOutput(&out),
		WithBeliefs(logic.MustParse("count(3)")),
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", bdi.Test{Term: logic.MustParse("count(X)")}, act(`print("count", X)`))),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()
	lc.Reason(env, ctrl)
	lc.Reason(env, ctrl)
	assert.Equal(t, "[alice] count 3\n", out.String())
}

func TestSubPlanBindingsReachParent(t *testing.T) {
	for _, last := range []bdi.Goal{
		bdi.Test{Term: logic.MustParse("val(X)")},
		act("bind(X)"),
	} {
		var out bytes.Buffer
		bind := bdi.InternalAction{Name: "bind", Arity: 1, Fn: func(req bdi.InternalRequest) (bdi.InternalResponse, error) {
			v, ok := req.Args[0].(ast.Variable)
			if !ok {
				return bdi.Fail(), nil
			}
			return bdi.InternalResponse{Substitution: logic.Empty().Bind(v, ast.Number(42))}, nil
		}}
		a := New("alice",
			WithOutput(&out),
			WithInternalActions(bind),
			WithBeliefs(logic.MustParse("val(42)")),
			WithGoals(logic.MustParse("main()")),
			WithPlans(
				plan(t, "+!main()", "", achieve("sub()"), act(`print("parent sees", X)`)),
				plan(t, "+!sub()", "", last),
			),
		)
		lc := NewLifecycle(a)
		env, ctrl := environment.NewLocal(), controller()
		for i := 0; i < 4; i++ {
			lc.Reason(env, ctrl)
		}
		assert.Equal(t, "[alice] parent sees 42\n", out.String(), last.String())
	}
}

// pauseLike satisfies bdi.AgentChange through embedding without being one
// of the known change types.
type pauseLike struct{ bdi.Pause }

func TestUnknownAgentChangeFailsTheGoal(t *testing.T) {
	odd := bdi.InternalAction{Name: "odd", Arity: 0, Fn: func(bdi.InternalRequest) (bdi.InternalResponse, error) {
		return bdi.Succeed(
			bdi.BeliefChange{Kind: bdi.Addition, Belief: bdi.NewBelief(logic.MustParse("half()"), bdi.Self())},
			pauseLike{},
		), nil
	}}
	a := New("alice",
		WithInternalActions(odd),
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", act("odd()"))),
	)
	ctrl := controller()

	var res CycleResult
	require.NotPanics(t, func() { res = NewLifecycle(a).Reason(environment.NewLocal(), ctrl) })
	assert.Equal(t, OutcomeFailed, res.Trace.Outcome)
	require.Equal(t, 1, res.Context.Events.Len())
	assert.Equal(t, bdi.AchievementFailure, res.Context.Events.Events()[0].Trigger.Kind)
	assert.False(t, res.Context.BeliefBase.Contains(logic.MustParse("half()")))
	assert.True(t, ctrl.Ready(), "no control request reaches the controller")
}

func TestRunIntentionUsesGivenController(t *testing.T) {
	a := New("alice", WithPlans(plan(t, "+!go()", "", act("sleep(5)"))))
	lc := NewLifecycle(a)
	p := a.Context.PlanLibrary.Plans()[0]
	ctrl := controller()

	var res ExecutionResult
	require.NotPanics(t, func() {
		res = lc.RunIntention(bdi.NewIntention(p.ToActivationRecord()), a.Context, environment.NewLocal(), ctrl)
	})
	assert.Equal(t, OutcomeAdvanced, res.Outcome)
	assert.False(t, ctrl.Ready(), "the sleep request reached the controller")
}

func TestMessagesAreIngested(t *testing.T) {
	env := environment.NewLocal()
	require.NoError(t, env.Apply(
		environment.SendMessage{Recipient: "alice", Message: environment.Message{From: "bob", Type: environment.Tell, Value: logic.MustParse("ball(1)")}},
		environment.SendMessage{Recipient: "alice", Message: environment.Message{From: "bob", Type: environment.Achieve, Value: logic.MustParse("greet()")}},
	))
	var out bytes.Buffer
	a := New("alice",
		WithOutput(&out),
		WithPlans(
			plan(t, "+ball(X)", "", act(`print("got ball", X)`)),
			plan(t, "+!greet()", "", act(`print("hi")`)),
		),
	)
	lc := NewLifecycle(a)
	ctrl := controller()

	res := lc.Reason(env, ctrl)
	b, ok := res.Context.BeliefBase.Get(logic.MustParse("ball(1)"))
	require.True(t, ok)
	assert.Equal(t, bdi.FromAgent("bob"), b.Source)
	require.NotEmpty(t, res.Effects)
	assert.Equal(t, environment.PopMessage{Agent: "alice"}, res.Effects[len(res.Effects)-1])
	require.NoError(t, env.Apply(res.Effects...))

	res = lc.Reason(env, ctrl)
	require.NoError(t, env.Apply(res.Effects...))
	lc.Reason(env, ctrl)
	assert.Equal(t, "[alice] got ball 1\n[alice] hi\n", out.String())
	assert.Empty(t, env.Mailbox("alice"))
}

func TestExternalActionEffectsAreForwarded(t *testing.T) {
	env := environment.NewLocal()
	a := New("alice",
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", bdi.Act{Action: logic.MustParse(`send("bob", /tell, "ball(1)")`)})),
	)
	res := NewLifecycle(a).Reason(env, controller())
	require.Len(t, res.Effects, 1)
	sent, ok := res.Effects[0].(environment.SendMessage)
	require.True(t, ok)
	assert.Equal(t, "bob", sent.Recipient)

	missing := New("alice",
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", bdi.Act{Action: logic.MustParse("teleport()")})),
	)
	res = NewLifecycle(missing).Reason(env, controller())
	assert.Empty(t, res.Effects)
	assert.Equal(t, OutcomeFailed, res.Trace.Outcome)
}

func TestControlEffectsReachController(t *testing.T) {
	a := New("alice",
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", act("sleep(3)"), act("stop()"))),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()

	lc.Reason(env, ctrl)
	assert.False(t, ctrl.Ready(), "sleep skips the next ticks")
	lc.Reason(env, ctrl)
	assert.True(t, ctrl.IsStopped())
}

func TestDropIntention(t *testing.T) {
	a := New("alice",
		WithOutput(&bytes.Buffer{}),
		WithGoals(logic.MustParse("go()")),
		WithPlans(plan(t, "+!go()", "", act("drop_intention()"), act(`print("never")`))),
	)
	res := NewLifecycle(a).Reason(environment.NewLocal(), controller())
	assert.Equal(t, OutcomeAdvanced, res.Trace.Outcome)
	assert.True(t, res.Context.Intentions.IsEmpty())
}

func TestEmptyPlanBodyCompletes(t *testing.T) {
	a := New("alice",
		WithGoals(logic.MustParse("noop()")),
		WithPlans(plan(t, "+!noop()", "")),
	)
	lc := NewLifecycle(a)
	env, ctrl := environment.NewLocal(), controller()
	res := lc.Reason(env, ctrl)
	assert.Equal(t, OutcomeAdvanced, res.Trace.Outcome)
	res = lc.Reason(env, ctrl)
	assert.True(t, res.Context.Intentions.IsEmpty())
	assert.Equal(t, int64(2), lc.Cycles())
}

func TestPoliciesAreReplaceable(t *testing.T) {
	var out bytes.Buffer
	last := func(q bdi.EventQueue) (bdi.Event, bool) {
		events := q.Events()
		if len(events) == 0 {
			return bdi.Event{}, false
		}
		return events[len(events)-1], true
	}
	a := New("alice",
		WithOutput(&out),
		WithPolicies(Policies{SelectEvent: last}),
		WithGoals(logic.MustParse("say(1)"), logic.MustParse("say(2)")),
		WithPlans(plan(t, "+!say(X)", "", act(`print(X)`))),
	)
	NewLifecycle(a).Reason(environment.NewLocal(), controller())
	assert.Equal(t, "[alice] 2\n", out.String())
}

func TestSolverStubInjection(t *testing.T) {
	a := New("alice", WithSolver(stubSolver{}))
	assert.IsType(t, stubSolver{}, a.Solver)
}

type stubSolver struct{}

func (stubSolver) Unify(a, b ast.Atom) logic.Substitution { return logic.Empty() }
func (stubSolver) Solve(string, logic.Substitution, []ast.Atom) logic.Substitution {
	return logic.Empty()
}
