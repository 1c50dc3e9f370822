package logic

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"

	"bdiagent/internal/logging"
)

// Solver is the logic collaborator of the reasoning cycle.
type Solver interface {
	// Unify returns the most general unifier of two atoms, or a failed
	// substitution.
	Unify(a, b ast.Atom) Substitution
	// Solve answers a query body (a Mangle rule body such as
	// `count(X), X < 3`) against the given facts under the bindings in s.
	// On success the returned substitution extends s.
	Solve(body string, s Substitution, facts []ast.Atom) Substitution
}

const (
	probePredicate = "bdi_probe"
	queryPredicate = "bdi_query"
	anchorFact     = "bdi_anchor(/ok)"
)

// MangleSolver unifies with Mangle's union-find and solves queries by
// evaluating a one-rule program over the believed facts.
type MangleSolver struct {
	mu    sync.RWMutex
	cache map[string][]ast.Term
}

// NewMangleSolver creates a solver with an empty body cache.
func NewMangleSolver() *MangleSolver {
	return &MangleSolver{cache: make(map[string][]ast.Term)}
}

// Unify implements Solver.
func (m *MangleSolver) Unify(a, b ast.Atom) Substitution {
	if a.Predicate != b.Predicate {
		return Failure()
	}
	uf, err := unionfind.UnifyTerms(a.Args, b.Args)
	if err != nil {
		return Failure()
	}
	s := Empty()
	seen := make(map[ast.Variable]bool)
	for _, v := range append(Variables(a), Variables(b)...) {
		if seen[v] {
			continue
		}
		seen[v] = true
		rep := uf.Get(v)
		if rep == nil {
			continue
		}
		if rv, ok := rep.(ast.Variable); ok && rv == v {
			continue
		}
		s = s.Bind(v, rep)
	}
	return s
}

// Solve implements Solver.
func (m *MangleSolver) Solve(body string, s Substitution, facts []ast.Atom) Substitution {
	if !s.IsSuccess() {
		return s
	}
	if strings.TrimSpace(body) == "" {
		return s
	}
	premises, err := m.premises(body)
	if err != nil {
		logging.Get(logging.CategorySolver).Warn("rejecting query %q: %v", body, err)
		return Failure()
	}

	known := make(map[ast.PredicateSym]bool)
	for _, f := range facts {
		if IsGround(f) {
			known[f.Predicate] = true
		}
	}

	used := make(map[ast.PredicateSym]bool)
	rendered := []string{anchorFact}
	var free []ast.Variable
	seenFree := make(map[ast.Variable]bool)
	for _, p := range premises {
		inst := substitutePremise(p, s)
		switch t := inst.(type) {
		case ast.Atom:
			if !isBuiltin(t.Predicate) {
				if !known[t.Predicate] {
					return Failure()
				}
				used[t.Predicate] = true
			}
		case ast.NegAtom:
			if !known[t.Atom.Predicate] {
				continue
			}
			used[t.Atom.Predicate] = true
		}
		for _, v := range premiseVars(inst) {
			if !seenFree[v] {
				seenFree[v] = true
				free = append(free, v)
			}
		}
		rendered = append(rendered, inst.String())
	}

	var program strings.Builder
	program.WriteString(anchorFact + ".\n")
	for _, f := range facts {
		if used[f.Predicate] && IsGround(f) {
			program.WriteString(f.String())
			program.WriteString(".\n")
		}
	}
	head := make([]string, 0, len(free)+1)
	head = append(head, "/ok")
	for _, v := range free {
		head = append(head, v.Symbol)
	}
	fmt.Fprintf(&program, "%s(%s) :- %s.\n", queryPredicate, strings.Join(head, ", "), strings.Join(rendered, ", "))

	rows, err := evaluate(program.String(), ast.PredicateSym{Symbol: queryPredicate, Arity: len(head)})
	if err != nil {
		logging.Get(logging.CategorySolver).Warn("query %q failed: %v", body, err)
		return Failure()
	}
	if len(rows) == 0 {
		logging.SolverDebug("query %q has no solution", body)
		return Failure()
	}
	SortAtoms(rows)
	out := s
	for i, v := range free {
		out = out.Bind(v, rows[0].Args[i+1])
	}
	logging.SolverDebug("query %q solved with %s", body, out)
	return out
}

// premises parses a query body into Mangle premises, caching by text.
func (m *MangleSolver) premises(body string) ([]ast.Term, error) {
	m.mu.RLock()
	cached, ok := m.cache[body]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	src := fmt.Sprintf("%s(/ok) :- %s.", probePredicate, strings.TrimSuffix(strings.TrimSpace(body), "."))
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if len(unit.Clauses) != 1 {
		return nil, fmt.Errorf("expected a single rule body, got %d clauses", len(unit.Clauses))
	}
	premises := unit.Clauses[0].Premises

	m.mu.Lock()
	m.cache[body] = premises
	m.mu.Unlock()
	return premises, nil
}

func evaluate(program string, query ast.PredicateSym) ([]ast.Atom, error) {
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analysis error: %w", err)
	}
	store := factstore.NewSimpleInMemoryStore()
	if _, err := mengine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}
	var rows []ast.Atom
	err = store.GetFacts(ast.NewQuery(query), func(a ast.Atom) error {
		rows = append(rows, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func isBuiltin(p ast.PredicateSym) bool {
	return strings.HasPrefix(p.Symbol, ":")
}

func substitutePremise(t ast.Term, s Substitution) ast.Term {
	switch p := t.(type) {
	case ast.Atom:
		return s.Apply(p)
	case ast.NegAtom:
		return ast.NegAtom{Atom: s.Apply(p.Atom)}
	case ast.Eq:
		return ast.Eq{Left: s.ApplyTerm(p.Left), Right: s.ApplyTerm(p.Right)}
	case ast.Ineq:
		return ast.Ineq{Left: s.ApplyTerm(p.Left), Right: s.ApplyTerm(p.Right)}
	default:
		return t
	}
}

func premiseVars(t ast.Term) []ast.Variable {
	seen := make(map[ast.Variable]bool)
	var out []ast.Variable
	switch p := t.(type) {
	case ast.Atom:
		out = Variables(p)
	case ast.NegAtom:
		out = Variables(p.Atom)
	case ast.Eq:
		out = collectVars(p.Left, seen, out)
		out = collectVars(p.Right, seen, out)
	case ast.Ineq:
		out = collectVars(p.Left, seen, out)
		out = collectVars(p.Right, seen, out)
	}
	return out
}
