package logic

import (
	"sort"
	"strings"

	"github.com/google/mangle/ast"
)

// Substitution is an immutable set of variable bindings. A failed
// substitution carries no bindings and marks an unsuccessful unification,
// guard or action.
type Substitution struct {
	bindings map[ast.Variable]ast.BaseTerm
	failed   bool
}

// Empty returns the successful substitution with no bindings.
func Empty() Substitution {
	return Substitution{}
}

// Failure returns the failed substitution.
func Failure() Substitution {
	return Substitution{failed: true}
}

// IsSuccess reports whether the substitution denotes success.
func (s Substitution) IsSuccess() bool {
	return !s.failed
}

// Len returns the number of bindings.
func (s Substitution) Len() int {
	return len(s.bindings)
}

// Get returns the fully resolved value bound to v.
func (s Substitution) Get(v ast.Variable) (ast.BaseTerm, bool) {
	if _, ok := s.bindings[v]; !ok {
		return nil, false
	}
	return s.ApplyTerm(v), true
}

// Variables returns the bound variables sorted by name.
func (s Substitution) Variables() []ast.Variable {
	out := make([]ast.Variable, 0, len(s.bindings))
	for v := range s.bindings {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Bind returns a copy with v bound to t. Binding an already bound variable
// to a different ground value fails the substitution.
func (s Substitution) Bind(v ast.Variable, t ast.BaseTerm) Substitution {
	if s.failed {
		return s
	}
	if v.Symbol == "_" {
		return s
	}
	if existing, ok := s.bindings[v]; ok {
		left, right := s.ApplyTerm(existing), s.ApplyTerm(t)
		if isGroundTerm(left) && isGroundTerm(right) && !left.Equals(right) {
			return Failure()
		}
		return s
	}
	next := make(map[ast.Variable]ast.BaseTerm, len(s.bindings)+1)
	for k, val := range s.bindings {
		next[k] = val
	}
	next[v] = t
	return Substitution{bindings: next}
}

// Merge combines two substitutions. Conflicting ground bindings fail.
func (s Substitution) Merge(other Substitution) Substitution {
	if s.failed || other.failed {
		return Failure()
	}
	out := s
	for _, v := range other.Variables() {
		out = out.Bind(v, other.bindings[v])
		if out.failed {
			return out
		}
	}
	return out
}

// ApplyTerm replaces bound variables in t, following chains of bindings.
func (s Substitution) ApplyTerm(t ast.BaseTerm) ast.BaseTerm {
	return s.resolve(t, len(s.bindings)+1)
}

func (s Substitution) resolve(t ast.BaseTerm, depth int) ast.BaseTerm {
	switch v := t.(type) {
	case ast.Variable:
		bound, ok := s.bindings[v]
		if !ok || depth == 0 {
			return v
		}
		return s.resolve(bound, depth-1)
	case ast.ApplyFn:
		args := make([]ast.BaseTerm, len(v.Args))
		for i, a := range v.Args {
			args[i] = s.resolve(a, depth)
		}
		return ast.ApplyFn{Function: v.Function, Args: args}
	default:
		return t
	}
}

// Apply instantiates an atom.
func (s Substitution) Apply(atom ast.Atom) ast.Atom {
	if len(s.bindings) == 0 {
		return atom
	}
	args := make([]ast.BaseTerm, len(atom.Args))
	for i, a := range atom.Args {
		args[i] = s.ApplyTerm(a)
	}
	return ast.Atom{Predicate: atom.Predicate, Args: args}
}

func (s Substitution) String() string {
	if s.failed {
		return "fail"
	}
	parts := make([]string, 0, len(s.bindings))
	for _, v := range s.Variables() {
		parts = append(parts, v.Symbol+"="+s.ApplyTerm(v).String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
