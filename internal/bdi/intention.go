package bdi

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/uuid"

	"bdiagent/internal/logic"
)

// ActivationRecord is one frame of an intention: a plan instance, the goals
// still to run and the bindings collected so far.
type ActivationRecord struct {
	Plan         Plan
	Goals        []Goal
	Substitution logic.Substitution
}

// IsLastGoal reports whether one goal remains.
func (r ActivationRecord) IsLastGoal() bool { return len(r.Goals) <= 1 }

func (r ActivationRecord) String() string {
	goals := make([]string, len(r.Goals))
	for i, g := range r.Goals {
		goals[i] = g.String()
	}
	return fmt.Sprintf("%s <- [%s]", r.Plan.Trigger, strings.Join(goals, "; "))
}

// Intention is a stack of activation records. The last record is the top.
type Intention struct {
	ID      uuid.UUID
	Records []ActivationRecord
}

// NewIntention creates an intention with a fresh id.
func NewIntention(records ...ActivationRecord) Intention {
	rs := make([]ActivationRecord, len(records))
	copy(rs, records)
	return Intention{ID: uuid.New(), Records: rs}
}

// IsEmpty reports whether the stack holds no work.
func (i Intention) IsEmpty() bool { return len(i.Records) == 0 }

func (i Intention) top() (ActivationRecord, bool) {
	if len(i.Records) == 0 {
		return ActivationRecord{}, false
	}
	return i.Records[len(i.Records)-1], true
}

// NextGoal returns the next goal of the top record.
func (i Intention) NextGoal() (Goal, bool) {
	top, ok := i.top()
	if !ok || len(top.Goals) == 0 {
		return nil, false
	}
	return top.Goals[0], true
}

// CurrentPlan returns the trigger term of the plan on top of the stack.
func (i Intention) CurrentPlan() ast.Atom {
	top, ok := i.top()
	if !ok {
		return ast.Atom{}
	}
	return top.Plan.Trigger.Value
}

// WithRecords returns the intention with its stack replaced.
func (i Intention) WithRecords(records ...ActivationRecord) Intention {
	rs := make([]ActivationRecord, len(records))
	copy(rs, records)
	return Intention{ID: i.ID, Records: rs}
}

// Pop consumes the next goal of the top record. A record whose last goal is
// consumed is discarded.
func (i Intention) Pop() Intention {
	top, ok := i.top()
	if !ok {
		return i
	}
	rest := i.Records[:len(i.Records)-1]
	if top.IsLastGoal() {
		return i.WithRecords(rest...)
	}
	goals := make([]Goal, len(top.Goals)-1)
	copy(goals, top.Goals[1:])
	top.Goals = goals
	return i.WithRecords(append(append([]ActivationRecord{}, rest...), top)...)
}

// Push installs a record on top of the stack.
func (i Intention) Push(r ActivationRecord) Intention {
	return i.WithRecords(append(append([]ActivationRecord{}, i.Records...), r)...)
}

// ApplySubstitution binds the remaining goals of the top record. Variables
// the record has already bound keep their value.
func (i Intention) ApplySubstitution(s logic.Substitution) Intention {
	top, ok := i.top()
	if !ok || s.Len() == 0 || !s.IsSuccess() {
		return i
	}
	goals := make([]Goal, len(top.Goals))
	for n, g := range top.Goals {
		goals[n] = g.Apply(s)
	}
	top.Goals = goals
	for _, v := range s.Variables() {
		if _, bound := top.Substitution.Get(v); bound {
			continue
		}
		t, _ := s.Get(v)
		top.Substitution = top.Substitution.Bind(v, t)
	}
	rs := append([]ActivationRecord{}, i.Records[:len(i.Records)-1]...)
	return i.WithRecords(append(rs, top)...)
}

func (i Intention) String() string {
	records := make([]string, len(i.Records))
	for n, r := range i.Records {
		records[n] = r.String()
	}
	return fmt.Sprintf("intention(%s)[%s]", i.ID, strings.Join(records, " | "))
}

// IntentionPool is an insertion-ordered collection of intentions keyed by id.
type IntentionPool struct {
	order []uuid.UUID
	byID  map[uuid.UUID]Intention
}

// NewIntentionPool builds a pool in the given order.
func NewIntentionPool(intentions ...Intention) IntentionPool {
	var p IntentionPool
	for _, i := range intentions {
		p = p.UpdateIntention(i)
	}
	return p
}

// Len returns the number of intentions.
func (p IntentionPool) Len() int { return len(p.order) }

// IsEmpty reports whether the pool holds no intention.
func (p IntentionPool) IsEmpty() bool { return len(p.order) == 0 }

// Get looks an intention up by id.
func (p IntentionPool) Get(id uuid.UUID) (Intention, bool) {
	i, ok := p.byID[id]
	return i, ok
}

// Intentions returns the intentions in pool order.
func (p IntentionPool) Intentions() []Intention {
	out := make([]Intention, len(p.order))
	for n, id := range p.order {
		out[n] = p.byID[id]
	}
	return out
}

// UpdateIntention replaces an intention in place or appends it.
func (p IntentionPool) UpdateIntention(i Intention) IntentionPool {
	byID := make(map[uuid.UUID]Intention, len(p.byID)+1)
	for k, v := range p.byID {
		byID[k] = v
	}
	order := p.order
	if _, exists := byID[i.ID]; !exists {
		order = append(append([]uuid.UUID{}, p.order...), i.ID)
	}
	byID[i.ID] = i
	return IntentionPool{order: order, byID: byID}
}

// DeleteIntention removes an intention by id.
func (p IntentionPool) DeleteIntention(id uuid.UUID) IntentionPool {
	if _, ok := p.byID[id]; !ok {
		return p
	}
	byID := make(map[uuid.UUID]Intention, len(p.byID))
	order := make([]uuid.UUID, 0, len(p.order))
	for _, k := range p.order {
		if k != id {
			order = append(order, k)
			byID[k] = p.byID[k]
		}
	}
	return IntentionPool{order: order, byID: byID}
}

// IntentionScheduler picks the intention to run and returns the pool with
// its bookkeeping applied.
type IntentionScheduler func(IntentionPool) (Intention, IntentionPool, bool)

// RoundRobin takes the oldest intention out of the pool. Storing it back
// after it runs appends it at the back.
func RoundRobin(p IntentionPool) (Intention, IntentionPool, bool) {
	if p.IsEmpty() {
		return Intention{}, p, false
	}
	next := p.byID[p.order[0]]
	return next, p.DeleteIntention(next.ID), true
}
