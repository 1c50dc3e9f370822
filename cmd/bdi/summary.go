package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"bdiagent/internal/agent"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

type agentTally struct {
	cycles   int64
	outcomes map[string]int64
}

// runSummary counts cycle outcomes per agent while a system runs.
type runSummary struct {
	mu       sync.Mutex
	order    []string
	tallies  map[string]*agentTally
	strategy string
	runID    string
	elapsed  time.Duration
}

func newRunSummary(agents []*agent.Agent) *runSummary {
	s := &runSummary{tallies: make(map[string]*agentTally, len(agents))}
	for _, a := range agents {
		s.order = append(s.order, a.Name)
		s.tallies[a.Name] = &agentTally{outcomes: make(map[string]int64)}
	}
	return s
}

func (s *runSummary) observe(a *agent.Agent, res agent.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tallies[a.Name]
	if !ok {
		t = &agentTally{outcomes: make(map[string]int64)}
		s.tallies[a.Name] = t
		s.order = append(s.order, a.Name)
	}
	t.cycles++
	t.outcomes[res.Trace.Outcome]++
}

var summaryOutcomes = []string{agent.OutcomeAdvanced, agent.OutcomeSuspended, agent.OutcomeFailed, agent.OutcomeIdle}

func (s *runSummary) render() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n" + titleStyle.Render("Run summary") + "\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("strategy:"), s.strategy)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("elapsed: "), s.elapsed.Round(time.Millisecond))
	if s.runID != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("trace:   "), s.runID)
	}
	b.WriteString("\n")

	header := fmt.Sprintf("%-16s %8s", "agent", "cycles")
	for _, o := range summaryOutcomes {
		header += fmt.Sprintf(" %10s", o)
	}
	b.WriteString(headStyle.Render(header) + "\n")

	for _, name := range s.order {
		t := s.tallies[name]
		row := fmt.Sprintf("%-16s %8d", name, t.cycles)
		for _, o := range summaryOutcomes {
			cell := fmt.Sprintf(" %10d", t.outcomes[o])
			switch {
			case o == agent.OutcomeFailed && t.outcomes[o] > 0:
				cell = failStyle.Render(cell)
			case o == agent.OutcomeAdvanced && t.outcomes[o] > 0:
				cell = okStyle.Render(cell)
			}
			row += cell
		}
		b.WriteString(row + "\n")
	}
	return b.String()
}
