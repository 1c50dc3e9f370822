package environment

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/ast"

	"bdiagent/internal/bdi"
	"bdiagent/internal/logging"
	"bdiagent/internal/logic"
)

// ErrNoRecipient is returned when a message has no addressee.
var ErrNoRecipient = errors.New("message has no recipient")

// Local is an in-memory environment. Percepts and mailboxes are guarded by
// one lock; external action invocations are serialised by another.
type Local struct {
	mu        sync.RWMutex
	percepts  bdi.BeliefBase
	mailboxes map[string][]Message
	agents    []string
	actions   map[string]ExternalAction

	actMu sync.Mutex
}

// NewLocal creates an environment perceiving the given facts, with the
// default send and broadcast actions registered.
func NewLocal(percepts ...ast.Atom) *Local {
	l := &Local{
		mailboxes: make(map[string][]Message),
		actions:   make(map[string]ExternalAction),
	}
	for _, p := range percepts {
		l.percepts, _ = l.percepts.Add(bdi.NewBelief(p, bdi.Percept()))
	}
	for _, a := range DefaultActions() {
		l.actions[a.Name] = a
	}
	return l
}

// RegisterAgent makes an agent addressable by broadcasts.
func (l *Local) RegisterAgent(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.agents {
		if a == name {
			return
		}
	}
	l.agents = append(l.agents, name)
	if _, ok := l.mailboxes[name]; !ok {
		l.mailboxes[name] = nil
	}
}

// RegisterAction adds or replaces an external action.
func (l *Local) RegisterAction(a ExternalAction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions[a.Name] = a
}

// Percept implements Environment.
func (l *Local) Percept() bdi.BeliefBase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.percepts
}

// NextMessage implements Environment.
func (l *Local) NextMessage(agent string) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	box := l.mailboxes[agent]
	if len(box) == 0 {
		return Message{}, false
	}
	return box[0], true
}

// Mailbox returns a copy of the pending messages of an agent.
func (l *Local) Mailbox(agent string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.mailboxes[agent]...)
}

// ExternalAction implements Environment. The returned action holds the
// invocation lock while it runs.
func (l *Local) ExternalAction(name string) (ExternalAction, bool) {
	l.mu.RLock()
	a, ok := l.actions[name]
	l.mu.RUnlock()
	if !ok {
		return ExternalAction{}, false
	}
	fn := a.Fn
	a.Fn = func(req ExternalRequest) (ExternalResponse, error) {
		l.actMu.Lock()
		defer l.actMu.Unlock()
		return fn(req)
	}
	return a, true
}

// Apply implements Environment.
func (l *Local) Apply(changes ...Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, change := range changes {
		switch ch := change.(type) {
		case PopMessage:
			if box := l.mailboxes[ch.Agent]; len(box) > 0 {
				l.mailboxes[ch.Agent] = box[1:]
			}
		case SendMessage:
			if ch.Recipient == "" {
				errs = append(errs, fmt.Errorf("send %s: %w", ch.Message, ErrNoRecipient))
				continue
			}
			l.mailboxes[ch.Recipient] = append(l.mailboxes[ch.Recipient], ch.Message)
			logging.ActionsDebug("delivered %s to %s", ch.Message, ch.Recipient)
		case BroadcastMessage:
			for _, agent := range l.agents {
				if agent != ch.Message.From {
					l.mailboxes[agent] = append(l.mailboxes[agent], ch.Message)
				}
			}
		case AddPercept:
			l.percepts, _ = l.percepts.Add(bdi.NewBelief(ch.Term, bdi.Percept()))
		case RemovePercept:
			l.percepts, _ = l.percepts.Remove(bdi.NewBelief(ch.Term, bdi.Percept()))
		default:
			errs = append(errs, fmt.Errorf("unsupported environment change %T", change))
		}
	}
	return errors.Join(errs...)
}

// DefaultActions returns send(To, Type, Msg) and broadcast(Type, Msg). Type
// is /achieve or /tell; Msg is the text of an atom, e.g. "ball(1)".
func DefaultActions() []ExternalAction {
	return []ExternalAction{
		{Name: "send", Arity: 3, Fn: send},
		{Name: "broadcast", Arity: 2, Fn: broadcast},
	}
}

func send(req ExternalRequest) (ExternalResponse, error) {
	msg, err := buildMessage(req.AgentName, req.Args[1], req.Args[2])
	if err != nil {
		return ExternalResponse{}, err
	}
	recipient := strings.TrimPrefix(logic.Display(req.Args[0]), "/")
	return ExternalResponse{
		Substitution: logic.Empty(),
		Effects:      []Change{SendMessage{Recipient: recipient, Message: msg}},
	}, nil
}

func broadcast(req ExternalRequest) (ExternalResponse, error) {
	msg, err := buildMessage(req.AgentName, req.Args[0], req.Args[1])
	if err != nil {
		return ExternalResponse{}, err
	}
	return ExternalResponse{
		Substitution: logic.Empty(),
		Effects:      []Change{BroadcastMessage{Message: msg}},
	}, nil
}

func buildMessage(from string, kind, content ast.BaseTerm) (Message, error) {
	perf, err := ParsePerformative(logic.Display(kind))
	if err != nil {
		return Message{}, err
	}
	value, err := logic.Parse(logic.Display(content))
	if err != nil {
		return Message{}, err
	}
	return Message{From: from, Type: perf, Value: value}, nil
}
