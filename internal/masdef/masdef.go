// Package masdef loads multi-agent system definitions from YAML.
//
// A definition names the agents with their initial beliefs, goals and plans
// in Mangle syntax, plus the facts the environment starts with:
//
//	name: hello
//	environment:
//	  percepts: ["light(/on)"]
//	agents:
//	  - name: alice
//	    beliefs: ["run()"]
//	    goals: ["start(0, 10)"]
//	    plans:
//	      - trigger: "+!start(S, M)"
//	        guard: "S < M, N = fn:plus(S, 1)"
//	        body: ['.print("hello world", S)', "!start(N, M)"]
package masdef

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/mangle/ast"
	"gopkg.in/yaml.v3"

	"bdiagent/internal/agent"
	"bdiagent/internal/bdi"
	"bdiagent/internal/environment"
	"bdiagent/internal/logging"
	"bdiagent/internal/logic"
)

// ErrNoAgents is returned for a definition without agents.
var ErrNoAgents = errors.New("definition declares no agents")

// Definition is the root of a MAS file.
type Definition struct {
	Name        string                `yaml:"name"`
	Environment EnvironmentDefinition `yaml:"environment"`
	Agents      []AgentDefinition     `yaml:"agents"`
}

// EnvironmentDefinition lists the initial percepts.
type EnvironmentDefinition struct {
	Percepts []string `yaml:"percepts"`
}

// AgentDefinition describes one agent. Count > 1 creates name_1..name_N
// sharing the definition.
type AgentDefinition struct {
	Name    string           `yaml:"name"`
	Count   int              `yaml:"count,omitempty"`
	Beliefs []string         `yaml:"beliefs,omitempty"`
	Goals   []string         `yaml:"goals,omitempty"`
	Plans   []PlanDefinition `yaml:"plans,omitempty"`
}

// PlanDefinition is one plan: trigger, optional guard and body steps.
type PlanDefinition struct {
	Trigger string   `yaml:"trigger"`
	Guard   string   `yaml:"guard,omitempty"`
	Body    []string `yaml:"body,omitempty"`
}

// LoadFile reads and validates a definition.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Boot("loaded definition %q from %s (%d agent specs)", def.Name, path, len(def.Agents))
	return def, nil
}

// Parse decodes a definition and checks that every term parses.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks names and syntax without building anything.
func (d *Definition) Validate() error {
	if len(d.Agents) == 0 {
		return ErrNoAgents
	}
	if _, err := parseAtoms(d.Environment.Percepts); err != nil {
		return fmt.Errorf("environment percepts: %w", err)
	}

	seen := make(map[string]bool)
	for i, a := range d.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent %d has no name", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("agent %s: count must be non-negative", a.Name)
		}
		for _, name := range a.names() {
			if seen[name] {
				return fmt.Errorf("duplicate agent name %q", name)
			}
			seen[name] = true
		}
		if _, err := a.options(); err != nil {
			return fmt.Errorf("agent %s: %w", a.Name, err)
		}
	}
	return nil
}

func (a AgentDefinition) names() []string {
	if a.Count <= 1 {
		return []string{a.Name}
	}
	names := make([]string, a.Count)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", a.Name, i+1)
	}
	return names
}

// options translates the definition into agent options. Plans are parsed
// once per agent so each instance gets its own plan ids.
func (a AgentDefinition) options() ([]agent.Option, error) {
	beliefs, err := parseAtoms(a.Beliefs)
	if err != nil {
		return nil, fmt.Errorf("beliefs: %w", err)
	}
	goals, err := parseAtoms(a.Goals)
	if err != nil {
		return nil, fmt.Errorf("goals: %w", err)
	}
	plans := make([]bdi.Plan, 0, len(a.Plans))
	for i, p := range a.Plans {
		plan, err := p.Build()
		if err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
		plans = append(plans, plan)
	}
	return []agent.Option{
		agent.WithBeliefs(beliefs...),
		agent.WithGoals(goals...),
		agent.WithPlans(plans...),
	}, nil
}

// Build parses the trigger and the body.
func (p PlanDefinition) Build() (bdi.Plan, error) {
	trigger, err := bdi.ParseTrigger(p.Trigger)
	if err != nil {
		return bdi.Plan{}, err
	}
	goals := make([]bdi.Goal, 0, len(p.Body))
	for _, step := range p.Body {
		g, err := bdi.ParseGoal(step)
		if err != nil {
			return bdi.Plan{}, err
		}
		goals = append(goals, g)
	}
	return bdi.NewPlan(trigger, p.Guard, goals...), nil
}

// System is a built definition ready to dispatch.
type System struct {
	Name        string
	Environment *environment.Local
	Agents      []*agent.Agent
}

// Build creates the environment and the agents. out receives the output of
// print; nil means stdout.
func (d *Definition) Build(out io.Writer) (*System, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	percepts, _ := parseAtoms(d.Environment.Percepts)
	sys := &System{Name: d.Name, Environment: environment.NewLocal(percepts...)}

	for _, a := range d.Agents {
		for _, name := range a.names() {
			opts, err := a.options()
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", name, err)
			}
			if out != nil {
				opts = append([]agent.Option{agent.WithOutput(out)}, opts...)
			}
			sys.Agents = append(sys.Agents, agent.New(name, opts...))
			sys.Environment.RegisterAgent(name)
		}
	}
	logging.Boot("built system %q: %d agents, %d percepts", d.Name, len(sys.Agents), len(percepts))
	return sys, nil
}

func parseAtoms(terms []string) ([]ast.Atom, error) {
	atoms := make([]ast.Atom, 0, len(terms))
	for _, t := range terms {
		a, err := logic.Parse(t)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, a)
	}
	return atoms, nil
}
