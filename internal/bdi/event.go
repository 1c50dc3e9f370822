package bdi

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/uuid"

	"bdiagent/internal/logic"
)

// TriggerKind is the kind of change an event notifies.
type TriggerKind int

const (
	AchievementInvocation TriggerKind = iota
	AchievementFailure
	TestInvocation
	TestFailure
	BeliefAddition
	BeliefRemoval
)

var triggerPrefixes = map[TriggerKind]string{
	AchievementInvocation: "+!",
	AchievementFailure:    "-!",
	TestInvocation:        "+?",
	TestFailure:           "-?",
	BeliefAddition:        "+",
	BeliefRemoval:         "-",
}

// Prefix is the AgentSpeak-style notation of the kind.
func (k TriggerKind) Prefix() string {
	return triggerPrefixes[k]
}

// IsFailure reports whether the kind is an achievement or test failure.
func (k TriggerKind) IsFailure() bool {
	return k == AchievementFailure || k == TestFailure
}

func (k TriggerKind) String() string {
	switch k {
	case AchievementInvocation:
		return "achievement_invocation"
	case AchievementFailure:
		return "achievement_failure"
	case TestInvocation:
		return "test_invocation"
	case TestFailure:
		return "test_failure"
	case BeliefAddition:
		return "belief_addition"
	case BeliefRemoval:
		return "belief_removal"
	default:
		return fmt.Sprintf("trigger(%d)", int(k))
	}
}

// Trigger pairs a kind with the term it concerns.
type Trigger struct {
	Kind  TriggerKind
	Value ast.Atom
}

func (t Trigger) String() string {
	return t.Kind.Prefix() + t.Value.String()
}

// ParseTrigger reads the `+!g`, `-!g`, `+?g`, `-?g`, `+b`, `-b` notation.
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	// Longest prefixes first.
	for _, k := range []TriggerKind{AchievementInvocation, AchievementFailure, TestInvocation, TestFailure, BeliefAddition, BeliefRemoval} {
		prefix := k.Prefix()
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		term, err := logic.Parse(s[len(prefix):])
		if err != nil {
			return Trigger{}, fmt.Errorf("invalid trigger %q: %w", s, err)
		}
		return Trigger{Kind: k, Value: term}, nil
	}
	return Trigger{}, fmt.Errorf("invalid trigger %q: missing +!, -!, +?, -?, + or - prefix", s)
}

// Event is a pending notification. An event with no owning intention is
// external.
type Event struct {
	ID        uuid.UUID
	Trigger   Trigger
	Intention *Intention
}

// NewEvent creates an event. owner may be nil.
func NewEvent(trigger Trigger, owner *Intention) Event {
	return Event{ID: uuid.New(), Trigger: trigger, Intention: owner}
}

// AchieveEvent creates an achievement-goal invocation.
func AchieveEvent(term ast.Atom, owner *Intention) Event {
	return NewEvent(Trigger{Kind: AchievementInvocation, Value: term}, owner)
}

// IsExternal reports whether the event has no owning intention.
func (e Event) IsExternal() bool { return e.Intention == nil }

// IsInternal reports whether the event was raised by an intention.
func (e Event) IsInternal() bool { return e.Intention != nil }

func (e Event) String() string {
	if e.Intention != nil {
		return fmt.Sprintf("%s@%s", e.Trigger, e.Intention.ID)
	}
	return e.Trigger.String()
}

// EventQueue is an ordered sequence of pending events.
type EventQueue struct {
	events []Event
}

// NewEventQueue builds a queue in the given order.
func NewEventQueue(events ...Event) EventQueue {
	out := make([]Event, len(events))
	copy(out, events)
	return EventQueue{events: out}
}

// Len returns the number of pending events.
func (q EventQueue) Len() int { return len(q.events) }

// Events returns a copy of the pending events in arrival order.
func (q EventQueue) Events() []Event {
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}

// Append returns the queue with events added at the back.
func (q EventQueue) Append(events ...Event) EventQueue {
	if len(events) == 0 {
		return q
	}
	out := make([]Event, 0, len(q.events)+len(events))
	out = append(out, q.events...)
	out = append(out, events...)
	return EventQueue{events: out}
}

// Remove returns the queue without the event with the given id.
func (q EventQueue) Remove(id uuid.UUID) EventQueue {
	out := make([]Event, 0, len(q.events))
	for _, e := range q.events {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return EventQueue{events: out}
}

// EventSelector picks at most one event from the queue.
type EventSelector func(EventQueue) (Event, bool)

// FIFOEvents selects the oldest pending event.
func FIFOEvents(q EventQueue) (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	return q.events[0], true
}

// GenerateEvents turns a belief delta into belief addition and removal
// events appended in delta order.
func GenerateEvents(q EventQueue, delta []BeliefUpdate) EventQueue {
	if len(delta) == 0 {
		return q
	}
	events := make([]Event, len(delta))
	for i, u := range delta {
		kind := BeliefAddition
		if u.Kind == Removal {
			kind = BeliefRemoval
		}
		events[i] = NewEvent(Trigger{Kind: kind, Value: u.Belief.Term}, nil)
	}
	return q.Append(events...)
}
