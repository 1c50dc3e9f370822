// Package environment is the world shared by the agents of a system:
// percepts, per-agent mailboxes and external actions.
package environment

import (
	"fmt"

	"github.com/google/mangle/ast"

	"bdiagent/internal/activity"
	"bdiagent/internal/bdi"
	"bdiagent/internal/logic"
)

// Performative is the type of a message.
type Performative int

const (
	// Achieve asks the recipient to pursue a goal.
	Achieve Performative = iota
	// Tell informs the recipient of a belief.
	Tell
)

func (p Performative) String() string {
	if p == Tell {
		return "tell"
	}
	return "achieve"
}

// ParsePerformative reads `achieve` or `tell`, with or without a leading slash.
func ParsePerformative(s string) (Performative, error) {
	switch s {
	case "achieve", "/achieve":
		return Achieve, nil
	case "tell", "/tell":
		return Tell, nil
	default:
		return 0, fmt.Errorf("unknown performative %q", s)
	}
}

// Message travels from one agent to another.
type Message struct {
	From  string
	Type  Performative
	Value ast.Atom
}

func (m Message) String() string {
	return fmt.Sprintf("%s(%s, %s)", m.Type, m.From, m.Value)
}

// ExternalRequest is the input of an external action.
type ExternalRequest struct {
	Environment Environment
	AgentName   string
	CurrentTime activity.Time
	Args        []ast.BaseTerm
}

// ExternalResponse carries the bindings produced by an external action and
// the environment changes it asks for.
type ExternalResponse struct {
	Substitution logic.Substitution
	Effects      []Change
}

// ExternalAction is an operation on the environment.
type ExternalAction struct {
	Name  string
	Arity int
	Fn    func(ExternalRequest) (ExternalResponse, error)
}

// Execute checks the arity and runs the action.
func (a ExternalAction) Execute(req ExternalRequest) (ExternalResponse, error) {
	if a.Arity != bdi.Variadic && len(req.Args) != a.Arity {
		return ExternalResponse{}, fmt.Errorf("%s/%d called with %d arguments: %w", a.Name, a.Arity, len(req.Args), bdi.ErrArityMismatch)
	}
	return a.Fn(req)
}

// Change is an environment-directed effect. The set of implementations is
// closed.
type Change interface {
	isChange()
}

// PopMessage drops the head of an agent's mailbox.
type PopMessage struct{ Agent string }

// SendMessage delivers a message to one agent.
type SendMessage struct {
	Recipient string
	Message   Message
}

// BroadcastMessage delivers a message to every registered agent except the
// sender.
type BroadcastMessage struct{ Message Message }

// AddPercept makes a fact perceivable.
type AddPercept struct{ Term ast.Atom }

// RemovePercept stops a fact from being perceived.
type RemovePercept struct{ Term ast.Atom }

func (PopMessage) isChange()       {}
func (SendMessage) isChange()      {}
func (BroadcastMessage) isChange() {}
func (AddPercept) isChange()       {}
func (RemovePercept) isChange()    {}

// Environment is what an agent perceives and acts upon. Implementations
// must be safe for concurrent use by every agent of a system.
type Environment interface {
	// Percept returns the current perceivable facts.
	Percept() bdi.BeliefBase
	// NextMessage peeks the head of an agent's mailbox. The message is
	// consumed by a PopMessage change.
	NextMessage(agent string) (Message, bool)
	// ExternalAction looks up an action by name.
	ExternalAction(name string) (ExternalAction, bool)
	// Apply applies changes in order.
	Apply(changes ...Change) error
}
