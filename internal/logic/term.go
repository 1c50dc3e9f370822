// Package logic wraps Google Mangle as the term representation, unifier and
// query solver used by the reasoning cycle.
package logic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Parse parses a single atom such as `start(0, 10)` or `ball(/red)`.
// A trailing period is accepted and ignored.
func Parse(s string) (ast.Atom, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimSuffix(clean, ".")
	if clean == "" {
		return ast.Atom{}, fmt.Errorf("empty term")
	}
	atom, err := parse.Atom(clean)
	if err != nil {
		return ast.Atom{}, fmt.Errorf("failed to parse term %q: %w", s, err)
	}
	return atom, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(s string) ast.Atom {
	atom, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return atom
}

// Key is the logical identity of an atom: two atoms with the same key are
// logically equal.
func Key(atom ast.Atom) string {
	return atom.String()
}

// Equal reports logical equality of two atoms.
func Equal(a, b ast.Atom) bool {
	return Key(a) == Key(b)
}

// IsGround reports whether the atom contains no variables.
func IsGround(atom ast.Atom) bool {
	for _, arg := range atom.Args {
		if !isGroundTerm(arg) {
			return false
		}
	}
	return true
}

func isGroundTerm(t ast.BaseTerm) bool {
	switch v := t.(type) {
	case ast.Variable:
		return false
	case ast.ApplyFn:
		for _, a := range v.Args {
			if !isGroundTerm(a) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Variables returns the distinct named variables of an atom in order of
// first appearance. The wildcard `_` is skipped.
func Variables(atom ast.Atom) []ast.Variable {
	seen := make(map[ast.Variable]bool)
	var out []ast.Variable
	for _, arg := range atom.Args {
		out = collectVars(arg, seen, out)
	}
	return out
}

func collectVars(t ast.BaseTerm, seen map[ast.Variable]bool, out []ast.Variable) []ast.Variable {
	switch v := t.(type) {
	case ast.Variable:
		if v.Symbol == "_" || seen[v] {
			return out
		}
		seen[v] = true
		return append(out, v)
	case ast.ApplyFn:
		for _, a := range v.Args {
			out = collectVars(a, seen, out)
		}
	}
	return out
}

// Display renders a term for humans: strings lose their quotes, everything
// else uses Mangle notation.
func Display(t ast.BaseTerm) string {
	if c, ok := t.(ast.Constant); ok && c.Type == ast.StringType {
		return c.Symbol
	}
	return t.String()
}

// SortAtoms orders atoms by key. Used wherever a deterministic order over a
// fact set is needed.
func SortAtoms(atoms []ast.Atom) {
	sort.Slice(atoms, func(i, j int) bool {
		return Key(atoms[i]) < Key(atoms[j])
	})
}
