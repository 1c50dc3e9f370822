package logic

import (
	"testing"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndKey(t *testing.T) {
	atom, err := Parse("start(0, 10).")
	require.NoError(t, err)
	assert.Equal(t, "start", atom.Predicate.Symbol)
	assert.Equal(t, 2, atom.Predicate.Arity)
	assert.True(t, IsGround(atom))
	assert.Equal(t, Key(atom), Key(MustParse("start(0, 10)")))

	_, err = Parse("   ")
	assert.Error(t, err)
	_, err = Parse("not an atom(")
	assert.Error(t, err)
}

func TestVariables(t *testing.T) {
	atom := MustParse("edge(X, Y, X, _)")
	vars := Variables(atom)
	require.Len(t, vars, 2)
	assert.Equal(t, "X", vars[0].Symbol)
	assert.Equal(t, "Y", vars[1].Symbol)
	assert.False(t, IsGround(atom))
}

func TestSubstitutionBindAndApply(t *testing.T) {
	x := ast.Variable{Symbol: "X"}
	y := ast.Variable{Symbol: "Y"}

	s := Empty().Bind(x, y).Bind(y, ast.Number(3))
	require.True(t, s.IsSuccess())
	got, ok := s.Get(x)
	require.True(t, ok)
	assert.Equal(t, "3", got.String())

	applied := s.Apply(MustParse("p(X, Y, Z)"))
	assert.Equal(t, Key(MustParse("p(3, 3, Z)")), Key(applied))

	conflict := s.Bind(x, ast.Number(4))
	assert.False(t, conflict.IsSuccess())

	same := s.Bind(x, ast.Number(3))
	assert.True(t, same.IsSuccess())
}

func TestSubstitutionMerge(t *testing.T) {
	x := ast.Variable{Symbol: "X"}
	y := ast.Variable{Symbol: "Y"}

	a := Empty().Bind(x, ast.Number(1))
	b := Empty().Bind(y, ast.String("hi"))
	merged := a.Merge(b)
	require.True(t, merged.IsSuccess())
	assert.Equal(t, 2, merged.Len())

	clash := a.Merge(Empty().Bind(x, ast.Number(2)))
	assert.False(t, clash.IsSuccess())

	assert.False(t, a.Merge(Failure()).IsSuccess())
}

func TestSubstitutionIsImmutable(t *testing.T) {
	x := ast.Variable{Symbol: "X"}
	base := Empty()
	_ = base.Bind(x, ast.Number(1))
	assert.Equal(t, 0, base.Len())
}

func TestUnify(t *testing.T) {
	solver := NewMangleSolver()

	s := solver.Unify(MustParse("start(S, M)"), MustParse("start(0, 10)"))
	require.True(t, s.IsSuccess())
	assert.Equal(t, Key(MustParse("start(0, 10)")), Key(s.Apply(MustParse("start(S, M)"))))

	same := solver.Unify(MustParse("start(S, S)"), MustParse("start(3, 3)"))
	assert.True(t, same.IsSuccess())

	differ := solver.Unify(MustParse("start(S, S)"), MustParse("start(3, 4)"))
	assert.False(t, differ.IsSuccess())

	arity := solver.Unify(MustParse("start(S)"), MustParse("start(3, 4)"))
	assert.False(t, arity.IsSuccess())

	name := solver.Unify(MustParse("stop(S)"), MustParse("start(3)"))
	assert.False(t, name.IsSuccess())
}

func TestSolveGuard(t *testing.T) {
	solver := NewMangleSolver()
	s := solver.Unify(MustParse("start(S, M)"), MustParse("start(0, 10)"))
	require.True(t, s.IsSuccess())

	out := solver.Solve("S < M, N = fn:plus(S, 1)", s, nil)
	require.True(t, out.IsSuccess())
	n, ok := out.Get(ast.Variable{Symbol: "N"})
	require.True(t, ok)
	assert.Equal(t, "1", n.String())

	s = solver.Unify(MustParse("start(S, M)"), MustParse("start(10, 10)"))
	assert.False(t, solver.Solve("S < M, N = fn:plus(S, 1)", s, nil).IsSuccess())
}

func TestSolveAgainstFacts(t *testing.T) {
	solver := NewMangleSolver()
	facts := []ast.Atom{
		MustParse("count(2)"),
		MustParse("count(1)"),
		MustParse("color(/red)"),
	}

	out := solver.Solve("count(X)", Empty(), facts)
	require.True(t, out.IsSuccess())
	x, _ := out.Get(ast.Variable{Symbol: "X"})
	assert.Equal(t, "1", x.String(), "smallest row is chosen")

	assert.True(t, solver.Solve("color(/red)", Empty(), facts).IsSuccess())
	assert.False(t, solver.Solve("color(/blue)", Empty(), facts).IsSuccess())
	assert.False(t, solver.Solve("unknown(X)", Empty(), facts).IsSuccess())
	assert.True(t, solver.Solve("count(X), !unknown(X)", Empty(), facts).IsSuccess())
	assert.True(t, solver.Solve("", Empty(), facts).IsSuccess())
	assert.False(t, solver.Solve("count(X", Empty(), facts).IsSuccess())
}

func TestSolveRespectsBindings(t *testing.T) {
	solver := NewMangleSolver()
	facts := []ast.Atom{MustParse("count(1)"), MustParse("count(2)")}
	s := Empty().Bind(ast.Variable{Symbol: "X"}, ast.Number(2))

	out := solver.Solve("count(X)", s, facts)
	require.True(t, out.IsSuccess())
	x, _ := out.Get(ast.Variable{Symbol: "X"})
	assert.Equal(t, "2", x.String())

	miss := Empty().Bind(ast.Variable{Symbol: "X"}, ast.Number(7))
	assert.False(t, solver.Solve("count(X)", miss, facts).IsSuccess())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "hello world", Display(ast.String("hello world")))
	assert.Equal(t, "3", Display(ast.Number(3)))
}
