package bdi

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"

	"bdiagent/internal/logic"
)

// Goal is one step of a plan body. The set of implementations is closed.
type Goal interface {
	// Value is the term the goal operates on.
	Value() ast.Atom
	// Apply instantiates the goal under a substitution.
	Apply(s logic.Substitution) Goal
	String() string
	isGoal()
}

// Achieve invokes a sub-goal and suspends the intention until a plan is found.
type Achieve struct{ Term ast.Atom }

// Spawn raises a new top-level goal without waiting for it.
type Spawn struct{ Term ast.Atom }

// Test queries the belief base.
type Test struct{ Term ast.Atom }

// ActInternally runs an internal action of the agent.
type ActInternally struct{ Action ast.Atom }

// Act runs an external action of the environment.
type Act struct{ Action ast.Atom }

// AddBelief asserts a belief.
type AddBelief struct{ Term ast.Atom }

// RemoveBelief retracts a belief.
type RemoveBelief struct{ Term ast.Atom }

// UpdateBelief replaces every belief with the same predicate.
type UpdateBelief struct{ Term ast.Atom }

// EmptyGoal is the body of a plan that declares no goals.
type EmptyGoal struct{}

var emptyValue = ast.Atom{Predicate: ast.PredicateSym{Symbol: "true", Arity: 0}}

func (g Achieve) Value() ast.Atom       { return g.Term }
func (g Spawn) Value() ast.Atom         { return g.Term }
func (g Test) Value() ast.Atom          { return g.Term }
func (g ActInternally) Value() ast.Atom { return g.Action }
func (g Act) Value() ast.Atom           { return g.Action }
func (g AddBelief) Value() ast.Atom     { return g.Term }
func (g RemoveBelief) Value() ast.Atom  { return g.Term }
func (g UpdateBelief) Value() ast.Atom  { return g.Term }
func (g EmptyGoal) Value() ast.Atom     { return emptyValue }

func (g Achieve) Apply(s logic.Substitution) Goal       { return Achieve{s.Apply(g.Term)} }
func (g Spawn) Apply(s logic.Substitution) Goal         { return Spawn{s.Apply(g.Term)} }
func (g Test) Apply(s logic.Substitution) Goal          { return Test{s.Apply(g.Term)} }
func (g ActInternally) Apply(s logic.Substitution) Goal { return ActInternally{s.Apply(g.Action)} }
func (g Act) Apply(s logic.Substitution) Goal           { return Act{s.Apply(g.Action)} }
func (g AddBelief) Apply(s logic.Substitution) Goal     { return AddBelief{s.Apply(g.Term)} }
func (g RemoveBelief) Apply(s logic.Substitution) Goal  { return RemoveBelief{s.Apply(g.Term)} }
func (g UpdateBelief) Apply(s logic.Substitution) Goal  { return UpdateBelief{s.Apply(g.Term)} }
func (g EmptyGoal) Apply(logic.Substitution) Goal       { return g }

func (g Achieve) String() string       { return "!" + g.Term.String() }
func (g Spawn) String() string         { return "!!" + g.Term.String() }
func (g Test) String() string          { return "?" + g.Term.String() }
func (g ActInternally) String() string { return "." + g.Action.String() }
func (g Act) String() string           { return g.Action.String() }
func (g AddBelief) String() string     { return "+" + g.Term.String() }
func (g RemoveBelief) String() string  { return "-" + g.Term.String() }
func (g UpdateBelief) String() string  { return "-+" + g.Term.String() }
func (g EmptyGoal) String() string     { return "true" }

func (Achieve) isGoal()       {}
func (Spawn) isGoal()         {}
func (Test) isGoal()          {}
func (ActInternally) isGoal() {}
func (Act) isGoal()           {}
func (AddBelief) isGoal()     {}
func (RemoveBelief) isGoal()  {}
func (UpdateBelief) isGoal()  {}
func (EmptyGoal) isGoal()     {}

// ParseGoal reads a plan body step in its String form: "!g", "!!g", "?g",
// ".action(...)", "+b", "-b", "-+b", "true" or a bare external action.
func ParseGoal(s string) (Goal, error) {
	s = strings.TrimSpace(s)
	if s == "true" {
		return EmptyGoal{}, nil
	}

	var build func(ast.Atom) Goal
	rest := s
	switch {
	case strings.HasPrefix(s, "!!"):
		build, rest = func(a ast.Atom) Goal { return Spawn{a} }, s[2:]
	case strings.HasPrefix(s, "!"):
		build, rest = func(a ast.Atom) Goal { return Achieve{a} }, s[1:]
	case strings.HasPrefix(s, "?"):
		build, rest = func(a ast.Atom) Goal { return Test{a} }, s[1:]
	case strings.HasPrefix(s, "-+"):
		build, rest = func(a ast.Atom) Goal { return UpdateBelief{a} }, s[2:]
	case strings.HasPrefix(s, "+"):
		build, rest = func(a ast.Atom) Goal { return AddBelief{a} }, s[1:]
	case strings.HasPrefix(s, "-"):
		build, rest = func(a ast.Atom) Goal { return RemoveBelief{a} }, s[1:]
	case strings.HasPrefix(s, "."):
		build, rest = func(a ast.Atom) Goal { return ActInternally{a} }, s[1:]
	default:
		build = func(a ast.Atom) Goal { return Act{a} }
	}

	term, err := logic.Parse(rest)
	if err != nil {
		return nil, fmt.Errorf("invalid goal %q: %w", s, err)
	}
	return build(term), nil
}
