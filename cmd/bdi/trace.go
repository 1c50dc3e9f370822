package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bdiagent/internal/store"
)

var (
	traceAgent   string
	traceOutcome string
	traceRun     string
	traceLimit   int
	traceRuns    bool
)

// traceCmd prints cycles recorded by run --trace-db
var traceCmd = &cobra.Command{
	Use:   "trace <cycles.db>",
	Short: "Show recorded reasoning cycles",
	Long: `Trace reads a database written by "bdi run --trace-db".

By default it prints the cycles of the most recent run. Use --runs to list
every run, --run to pick one, and --agent/--outcome to filter.`,
	Args: cobra.ExactArgs(1),
	RunE: showTrace,
}

func registerTraceFlags() {
	traceCmd.Flags().StringVar(&traceAgent, "agent", "", "Only show cycles of this agent")
	traceCmd.Flags().StringVar(&traceOutcome, "outcome", "", "Only show cycles with this outcome (advanced, suspended, failed, idle)")
	traceCmd.Flags().StringVar(&traceRun, "run", "", "Run id (default: most recent)")
	traceCmd.Flags().IntVarP(&traceLimit, "limit", "n", 0, "Maximum number of cycles to print (0 = all)")
	traceCmd.Flags().BoolVar(&traceRuns, "runs", false, "List recorded runs instead of cycles")
}

func showTrace(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("trace database not found: %s", path)
	}

	ts, err := store.Open(path)
	if err != nil {
		return err
	}
	defer ts.Close()

	out := cmd.OutOrStdout()
	runs, err := ts.Runs()
	if err != nil {
		return err
	}
	if traceRuns {
		return printRuns(out, runs)
	}

	runID := traceRun
	if runID == "" {
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		runID = runs[0].ID
	}
	logger.Debug("reading cycles", zap.String("run", runID), zap.String("agent", traceAgent))

	cycles, err := ts.Cycles(store.Filter{RunID: runID, Agent: traceAgent, Outcome: traceOutcome, Limit: traceLimit})
	if err != nil {
		return err
	}
	counts, err := ts.OutcomeCounts(runID)
	if err != nil {
		return err
	}
	return printCycles(out, runID, cycles, counts)
}

func printRuns(out io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render("Recorded runs"))
	fmt.Fprintln(out, headStyle.Render(fmt.Sprintf("%-36s  %-20s  %-19s  %8s", "id", "label", "started", "cycles")))
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-20s  %-19s  %8d\n", r.ID, r.Label, r.StartedAt.Format("2006-01-02 15:04:05"), r.Cycles)
	}
	return nil
}

func printCycles(out io.Writer, runID string, cycles []store.CycleRecord, counts map[string]int64) error {
	fmt.Fprintln(out, titleStyle.Render("Run "+runID))

	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(out, "%s %d\n", labelStyle.Render(o+":"), counts[o])
	}
	fmt.Fprintln(out)

	if len(cycles) == 0 {
		fmt.Fprintln(out, "No cycles match.")
		return nil
	}
	for _, c := range cycles {
		line := fmt.Sprintf("t=%-5d %-12s #%-5d %-10s", c.Time, c.Agent, c.Cycle, c.Outcome)
		if c.Outcome == "failed" {
			line = failStyle.Render(line)
		}
		fmt.Fprint(out, line)
		if c.Event != "" {
			fmt.Fprintf(out, " event=%s", c.Event)
		}
		if c.Goal != "" {
			fmt.Fprintf(out, " goal=%s", c.Goal)
		}
		if c.Message != "" {
			fmt.Fprintf(out, " msg=%s", c.Message)
		}
		if c.EnvEffects > 0 {
			fmt.Fprintf(out, " effects=%d", c.EnvEffects)
		}
		fmt.Fprintln(out)
	}
	return nil
}
