package bdi

import (
	"testing"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdiagent/internal/logic"
)

func printPlan(trigger string, goals ...Goal) Plan {
	tr, err := ParseTrigger(trigger)
	if err != nil {
		panic(err)
	}
	return NewPlan(tr, "", goals...)
}

func goalText(prefix, term string) string {
	return prefix + logic.Key(logic.MustParse(term))
}

func TestIntentionPopAndPush(t *testing.T) {
	parent := printPlan("+!main()",
		ActInternally{logic.MustParse("print(1)")},
		Achieve{logic.MustParse("child()")},
		ActInternally{logic.MustParse("print(3)")},
	)
	i := NewIntention(parent.ToActivationRecord())

	g, ok := i.NextGoal()
	require.True(t, ok)
	assert.Equal(t, goalText(".", "print(1)"), g.String())

	i = i.Pop()
	g, _ = i.NextGoal()
	assert.Equal(t, goalText("!", "child()"), g.String())

	child := printPlan("+!child()", ActInternally{logic.MustParse("print(2)")})
	i = i.Pop().Push(child.ToActivationRecord())
	require.Len(t, i.Records, 2)
	assert.Equal(t, logic.Key(logic.MustParse("child()")), logic.Key(i.CurrentPlan()))

	i = i.Pop()
	require.Len(t, i.Records, 1, "a record whose last goal is consumed is discarded")
	g, _ = i.NextGoal()
	assert.Equal(t, goalText(".", "print(3)"), g.String())

	i = i.Pop()
	assert.True(t, i.IsEmpty())
	_, ok = i.NextGoal()
	assert.False(t, ok)
}

func TestIntentionApplySubstitution(t *testing.T) {
	p := printPlan("+!go()",
		Test{logic.MustParse("count(X)")},
		ActInternally{logic.MustParse("print(X)")},
	)
	i := NewIntention(p.ToActivationRecord()).Pop()
	i = i.ApplySubstitution(logic.Empty().Bind(ast.Variable{Symbol: "X"}, ast.Number(4)))

	g, _ := i.NextGoal()
	assert.Equal(t, goalText(".", "print(4)"), g.String())
	assert.Equal(t, 1, i.Records[0].Substitution.Len())
}

func TestIntentionApplySubstitutionKeepsBoundVariables(t *testing.T) {
	p := printPlan("+!go()", ActInternally{logic.MustParse("print(X, Y)")})
	rec := p.ToActivationRecord()
	rec.Substitution = logic.Empty().Bind(ast.Variable{Symbol: "X"}, ast.Number(1))
	i := NewIntention(rec)

	i = i.ApplySubstitution(logic.Empty().
		Bind(ast.Variable{Symbol: "X"}, ast.Number(2)).
		Bind(ast.Variable{Symbol: "Y"}, ast.Number(3)))

	sub := i.Records[0].Substitution
	require.True(t, sub.IsSuccess())
	x, _ := sub.Get(ast.Variable{Symbol: "X"})
	y, _ := sub.Get(ast.Variable{Symbol: "Y"})
	assert.Equal(t, ast.Number(1), x)
	assert.Equal(t, ast.Number(3), y)

	same := i.ApplySubstitution(logic.Failure())
	assert.Equal(t, i.Records[0].Substitution.Len(), same.Records[0].Substitution.Len())
}

func TestEmptyPlanBodyYieldsEmptyGoal(t *testing.T) {
	rec := printPlan("+!nothing()").ToActivationRecord()
	require.Len(t, rec.Goals, 1)
	assert.IsType(t, EmptyGoal{}, rec.Goals[0])
}

func TestIntentionPoolOrdering(t *testing.T) {
	a := NewIntention(printPlan("+!a()").ToActivationRecord())
	b := NewIntention(printPlan("+!b()").ToActivationRecord())
	pool := NewIntentionPool(a, b)

	first, rest, ok := RoundRobin(pool)
	require.True(t, ok)
	assert.Equal(t, a.ID, first.ID)
	assert.Equal(t, 1, rest.Len())
	assert.Equal(t, 2, pool.Len(), "scheduling does not mutate the original pool")

	rest = rest.UpdateIntention(first)
	ids := rest.Intentions()
	require.Len(t, ids, 2)
	assert.Equal(t, b.ID, ids[0].ID)
	assert.Equal(t, a.ID, ids[1].ID)

	updated := rest.UpdateIntention(b.Pop())
	assert.Equal(t, b.ID, updated.Intentions()[0].ID, "upsert keeps position")
	got, _ := updated.Get(b.ID)
	assert.True(t, got.IsEmpty())

	deleted := updated.DeleteIntention(b.ID)
	_, ok = deleted.Get(b.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, deleted.Len())

	_, _, ok = RoundRobin(NewIntentionPool())
	assert.False(t, ok)
}

func TestEventQueue(t *testing.T) {
	e1 := AchieveEvent(logic.MustParse("a()"), nil)
	e2 := AchieveEvent(logic.MustParse("b()"), nil)
	q := NewEventQueue().Append(e1, e2)

	first, ok := FIFOEvents(q)
	require.True(t, ok)
	assert.Equal(t, e1.ID, first.ID)

	q = q.Remove(e1.ID)
	assert.Equal(t, 1, q.Len())
	_, ok = FIFOEvents(NewEventQueue())
	assert.False(t, ok)
}

func TestParseTrigger(t *testing.T) {
	cases := map[string]TriggerKind{
		"+!start(S, M)": AchievementInvocation,
		"-!start(S, M)": AchievementFailure,
		"+?count(X)":    TestInvocation,
		"-?count(X)":    TestFailure,
		"+ball(X)":      BeliefAddition,
		"-ball(X)":      BeliefRemoval,
	}
	for in, kind := range cases {
		tr, err := ParseTrigger(in)
		require.NoError(t, err, in)
		assert.Equal(t, kind, tr.Kind, in)
		assert.Equal(t, goalText(kind.Prefix(), in[len(kind.Prefix()):]), tr.String())
	}
	_, err := ParseTrigger("start(1)")
	assert.Error(t, err)
}
