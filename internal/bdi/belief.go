// Package bdi holds the state containers of a BDI agent: beliefs, events,
// plans, intentions and the actions that mutate them. Every container is
// immutable; operations return a new value.
package bdi

import (
	"fmt"

	"github.com/google/mangle/ast"

	"bdiagent/internal/logic"
)

// SourceKind identifies where a belief came from.
type SourceKind int

const (
	SourceSelf SourceKind = iota
	SourcePercept
	SourceAgent
)

// Source is the provenance tag of a belief.
type Source struct {
	Kind  SourceKind
	Agent string
}

// Self is the provenance of beliefs asserted by the agent itself.
func Self() Source { return Source{Kind: SourceSelf} }

// Percept is the provenance of beliefs coming from perception.
func Percept() Source { return Source{Kind: SourcePercept} }

// FromAgent is the provenance of beliefs told by another agent.
func FromAgent(name string) Source { return Source{Kind: SourceAgent, Agent: name} }

func (s Source) String() string {
	switch s.Kind {
	case SourcePercept:
		return "percept"
	case SourceAgent:
		return s.Agent
	default:
		return "self"
	}
}

// Belief is a fact tagged with its provenance. Identity is the term alone.
type Belief struct {
	Term   ast.Atom
	Source Source
}

// NewBelief tags a term with a source.
func NewBelief(term ast.Atom, source Source) Belief {
	return Belief{Term: term, Source: source}
}

// Key is the logical identity of the belief.
func (b Belief) Key() string {
	return logic.Key(b.Term)
}

func (b Belief) String() string {
	return fmt.Sprintf("%s[source(%s)]", b.Term, b.Source)
}

// UpdateKind distinguishes additions from removals in a belief delta.
type UpdateKind int

const (
	Addition UpdateKind = iota
	Removal
)

func (k UpdateKind) String() string {
	if k == Removal {
		return "removal"
	}
	return "addition"
}

// BeliefUpdate is one entry of a belief delta.
type BeliefUpdate struct {
	Kind   UpdateKind
	Belief Belief
}

// BeliefBase is an insertion-ordered set of beliefs keyed by term.
type BeliefBase struct {
	beliefs []Belief
	index   map[string]int
}

// NewBeliefBase builds a base from beliefs, dropping duplicates.
func NewBeliefBase(beliefs ...Belief) BeliefBase {
	var bb BeliefBase
	for _, b := range beliefs {
		bb, _ = bb.Add(b)
	}
	return bb
}

// Len returns the number of beliefs.
func (bb BeliefBase) Len() int { return len(bb.beliefs) }

// Beliefs returns a copy of the beliefs in insertion order.
func (bb BeliefBase) Beliefs() []Belief {
	out := make([]Belief, len(bb.beliefs))
	copy(out, bb.beliefs)
	return out
}

// Facts returns the believed terms in insertion order.
func (bb BeliefBase) Facts() []ast.Atom {
	out := make([]ast.Atom, len(bb.beliefs))
	for i, b := range bb.beliefs {
		out[i] = b.Term
	}
	return out
}

// Contains reports whether a logically equal belief is present.
func (bb BeliefBase) Contains(term ast.Atom) bool {
	_, ok := bb.index[logic.Key(term)]
	return ok
}

// Get returns the stored belief for a term.
func (bb BeliefBase) Get(term ast.Atom) (Belief, bool) {
	i, ok := bb.index[logic.Key(term)]
	if !ok {
		return Belief{}, false
	}
	return bb.beliefs[i], true
}

// Equal compares two bases by term identity, ignoring order and provenance.
func (bb BeliefBase) Equal(other BeliefBase) bool {
	if bb.Len() != other.Len() {
		return false
	}
	for k := range bb.index {
		if _, ok := other.index[k]; !ok {
			return false
		}
	}
	return true
}

func (bb BeliefBase) with(beliefs []Belief) BeliefBase {
	index := make(map[string]int, len(beliefs))
	for i, b := range beliefs {
		index[b.Key()] = i
	}
	return BeliefBase{beliefs: beliefs, index: index}
}

// Add inserts a belief unless an equal one is present.
func (bb BeliefBase) Add(b Belief) (BeliefBase, []BeliefUpdate) {
	if bb.Contains(b.Term) {
		return bb, nil
	}
	next := make([]Belief, len(bb.beliefs), len(bb.beliefs)+1)
	copy(next, bb.beliefs)
	next = append(next, b)
	return bb.with(next), []BeliefUpdate{{Kind: Addition, Belief: b}}
}

// AddAll adds every belief of other, reporting the additions in order.
func (bb BeliefBase) AddAll(other BeliefBase) (BeliefBase, []BeliefUpdate) {
	var delta []BeliefUpdate
	out := bb
	for _, b := range other.beliefs {
		var d []BeliefUpdate
		out, d = out.Add(b)
		delta = append(delta, d...)
	}
	return out, delta
}

// Remove deletes the belief equal to b. The delta reports the stored belief.
func (bb BeliefBase) Remove(b Belief) (BeliefBase, []BeliefUpdate) {
	i, ok := bb.index[b.Key()]
	if !ok {
		return bb, nil
	}
	stored := bb.beliefs[i]
	next := make([]Belief, 0, len(bb.beliefs)-1)
	next = append(next, bb.beliefs[:i]...)
	next = append(next, bb.beliefs[i+1:]...)
	return bb.with(next), []BeliefUpdate{{Kind: Removal, Belief: stored}}
}

// Update replaces every belief sharing b's predicate with b. Removals are
// reported before the addition.
func (bb BeliefBase) Update(b Belief) (BeliefBase, []BeliefUpdate) {
	var delta []BeliefUpdate
	out := bb
	for _, existing := range bb.beliefs {
		if existing.Term.Predicate != b.Term.Predicate || existing.Key() == b.Key() {
			continue
		}
		var d []BeliefUpdate
		out, d = out.Remove(existing)
		delta = append(delta, d...)
	}
	out, d := out.Add(b)
	return out, append(delta, d...)
}

// Revise merges fresh perceptions into base. Perceived beliefs missing from
// base are added, then beliefs whose source is perception and which are no
// longer perceived are removed. Other sources are never retracted here.
func Revise(perceptions, base BeliefBase) (BeliefBase, []BeliefUpdate) {
	if perceptions.Equal(base) {
		return base, nil
	}
	out, delta := base.AddAll(perceptions)
	for _, b := range out.Beliefs() {
		if b.Source.Kind != SourcePercept || perceptions.Contains(b.Term) {
			continue
		}
		var d []BeliefUpdate
		out, d = out.Remove(b)
		delta = append(delta, d...)
	}
	return out, delta
}
