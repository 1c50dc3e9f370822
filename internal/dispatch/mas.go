// Package dispatch runs the reasoning cycles of a multi-agent system under
// an execution strategy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bdiagent/internal/activity"
	"bdiagent/internal/agent"
	"bdiagent/internal/environment"
	"bdiagent/internal/logging"
)

// ErrUnknownAgent is returned when no running agent has the given name.
var ErrUnknownAgent = errors.New("unknown agent")

// Strategy decides how agent cycles interleave.
type Strategy interface {
	// Dispatch runs m until every agent stops, the strategy's own limit is
	// reached or ctx ends. Context cancellation is a normal termination.
	Dispatch(ctx context.Context, m *Mas) error
	String() string
}

// CycleObserver is called after each cycle, once its environment effects
// are applied. Under OneThreadPerAgent it runs on the agent's goroutine.
type CycleObserver func(a *agent.Agent, res agent.CycleResult)

// TickObserver is called after the clock advances in stepped runs.
type TickObserver func(tick activity.Time)

// Recorder persists cycle traces.
type Recorder interface {
	RecordCycle(trace agent.CycleTrace) error
}

// Mas is a set of agents sharing an environment.
type Mas struct {
	Environment environment.Environment
	Agents      []*agent.Agent
	Strategy    Strategy

	cycleObservers []CycleObserver
	tickObservers  []TickObserver
	recorder       Recorder
	recordMu       sync.Mutex

	controllersMu sync.Mutex
	controllers   map[string]activity.Controller
	wake          chan struct{}
}

// Option configures a Mas.
type Option func(*Mas)

// WithCycleObserver registers a per-cycle hook.
func WithCycleObserver(o CycleObserver) Option {
	return func(m *Mas) { m.cycleObservers = append(m.cycleObservers, o) }
}

// WithTickObserver registers a per-tick hook.
func WithTickObserver(o TickObserver) Option {
	return func(m *Mas) { m.tickObservers = append(m.tickObservers, o) }
}

// WithRecorder persists every cycle trace.
func WithRecorder(r Recorder) Option {
	return func(m *Mas) { m.recorder = r }
}

// New assembles a system.
func New(env environment.Environment, strategy Strategy, agents []*agent.Agent, opts ...Option) *Mas {
	m := &Mas{
		Environment: env,
		Agents:      agents,
		Strategy:    strategy,
		controllers: make(map[string]activity.Controller),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type agentRegistry interface {
	RegisterAgent(name string)
}

// Start runs the system until it terminates.
func (m *Mas) Start(ctx context.Context) error {
	if m.Environment == nil {
		return fmt.Errorf("mas has no environment")
	}
	if m.Strategy == nil {
		return fmt.Errorf("mas has no execution strategy")
	}
	if reg, ok := m.Environment.(agentRegistry); ok {
		for _, a := range m.Agents {
			reg.RegisterAgent(a.Name)
		}
	}

	logging.Dispatch("starting %d agents with %s", len(m.Agents), m.Strategy)
	timer := logging.StartTimer(logging.CategoryDispatch, "mas run")
	err := m.Strategy.Dispatch(ctx, m)
	timer.StopWithInfo()
	if err != nil {
		return fmt.Errorf("%s dispatch failed: %w", m.Strategy, err)
	}
	return nil
}

// Controller returns the controller driving the named agent. It is only
// available while the system runs.
func (m *Mas) Controller(name string) (activity.Controller, bool) {
	m.controllersMu.Lock()
	defer m.controllersMu.Unlock()
	c, ok := m.controllers[name]
	return c, ok
}

// Resume releases a paused agent.
func (m *Mas) Resume(name string) error {
	c, ok := m.Controller(name)
	if !ok {
		return fmt.Errorf("resume %s: %w", name, ErrUnknownAgent)
	}
	c.Resume()
	logging.Dispatch("%s resumed", name)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// attach publishes the controllers of a starting run.
func (m *Mas) attach(names []string, ctrls []activity.Controller) {
	m.controllersMu.Lock()
	defer m.controllersMu.Unlock()
	for i, name := range names {
		m.controllers[name] = ctrls[i]
	}
}

func (m *Mas) detach() {
	m.controllersMu.Lock()
	defer m.controllersMu.Unlock()
	m.controllers = make(map[string]activity.Controller)
}

// awaitResume blocks until Resume is called or ctx ends.
func (m *Mas) awaitResume(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.wake:
		return nil
	}
}

// complete applies a cycle's environment effects and notifies observers.
func (m *Mas) complete(a *agent.Agent, res agent.CycleResult) {
	if err := m.Environment.Apply(res.Effects...); err != nil {
		logging.Get(logging.CategoryDispatch).Warn("%s: environment rejected effects: %v", a.Name, err)
	}
	if m.recorder != nil {
		m.recordMu.Lock()
		err := m.recorder.RecordCycle(res.Trace)
		m.recordMu.Unlock()
		if err != nil {
			logging.Get(logging.CategoryDispatch).Warn("%s: failed to record cycle %d: %v", a.Name, res.Trace.Cycle, err)
		}
	}
	for _, o := range m.cycleObservers {
		o(a, res)
	}
}

func (m *Mas) tick(now activity.Time) {
	for _, o := range m.tickObservers {
		o(now)
	}
}
