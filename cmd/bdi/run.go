package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bdiagent/internal/agent"
	"bdiagent/internal/config"
	"bdiagent/internal/dispatch"
	"bdiagent/internal/environment"
	"bdiagent/internal/logging"
	"bdiagent/internal/masdef"
	"bdiagent/internal/store"
)

var (
	runStrategy  string
	runTicks     int64
	runParallel  bool
	runTraceDB   string
	runTimeout   time.Duration
	runRate      float64
	runUntilIdle bool
)

// runCmd loads a system definition and dispatches it
var runCmd = &cobra.Command{
	Use:   "run <system.yaml>",
	Short: "Run a multi-agent system",
	Long: `Run loads a system definition and dispatches its agents.

With --strategy threads every agent runs on its own goroutine; with
--strategy stepped all agents advance together, one cycle per tick.
The run ends when every agent stops, the tick limit is reached, the
timeout expires or (with --until-idle) no agent has anything left to do.`,
	Args: cobra.ExactArgs(1),
	RunE: runSystem,
}

func registerRunFlags() {
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "Execution strategy: threads or stepped (default from config)")
	runCmd.Flags().Int64Var(&runTicks, "ticks", 0, "Tick limit for stepped runs (0 = unbounded)")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Run the agents of a tick concurrently")
	runCmd.Flags().StringVar(&runTraceDB, "trace-db", "", "Record every cycle into this SQLite database")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Wall-clock bound for the run (default from config)")
	runCmd.Flags().Float64Var(&runRate, "rate", 0, "Cycles per second per agent in thread mode (0 = unlimited)")
	runCmd.Flags().BoolVar(&runUntilIdle, "until-idle", true, "Stop once no agent has events, intentions or messages")
}

// loadRunConfig merges the config file, the environment and explicit flags.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Dispatch.Strategy = runStrategy
	}
	if flags.Changed("ticks") {
		cfg.Dispatch.Ticks = runTicks
	}
	if flags.Changed("parallel") {
		cfg.Dispatch.Parallel = runParallel
	}
	if flags.Changed("rate") {
		cfg.Dispatch.CyclesPerSecond = runRate
	}
	if flags.Changed("timeout") {
		cfg.Dispatch.Timeout = runTimeout.String()
	}
	if flags.Changed("trace-db") {
		cfg.Trace.Enabled = runTraceDB != ""
		cfg.Trace.DatabasePath = runTraceDB
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func strategyFor(cfg *config.Config) dispatch.Strategy {
	if cfg.Dispatch.Strategy == config.StrategyStepped {
		return dispatch.DiscreteTime(dispatch.SteppedOptions{
			Ticks:        cfg.Dispatch.Ticks,
			Parallel:     cfg.Dispatch.Parallel,
			TickDuration: cfg.GetTickDuration(),
		})
	}
	return dispatch.OneThreadPerAgent(dispatch.ThreadOptions{
		CyclesPerSecond: cfg.Dispatch.CyclesPerSecond,
		Burst:           cfg.Dispatch.Burst,
	})
}

func runSystem(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	ws, err := resolveWorkspace()
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}
	if err := logging.Initialize(ws, cfg.Logging.Options()); err != nil {
		return err
	}
	defer logging.CloseAll()

	def, err := masdef.LoadFile(args[0])
	if err != nil {
		return err
	}
	sys, err := def.Build(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger.Debug("system built",
		zap.String("name", sys.Name),
		zap.Int("agents", len(sys.Agents)),
		zap.String("strategy", cfg.Dispatch.Strategy))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := cfg.GetTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	summary := newRunSummary(sys.Agents)
	opts := []dispatch.Option{dispatch.WithCycleObserver(summary.observe)}
	if runUntilIdle {
		opts = append(opts, dispatch.WithCycleObserver(idleWatcher(sys.Environment, len(sys.Agents), cancel)))
	}

	var traces *store.TraceStore
	if cfg.Trace.Enabled {
		traces, err = store.Open(cfg.Trace.DatabasePath)
		if err != nil {
			return err
		}
		defer traces.Close()
		if _, err := traces.StartRun(sys.Name); err != nil {
			return err
		}
		opts = append(opts, dispatch.WithRecorder(traces))
		logger.Info("recording cycles", zap.String("db", cfg.Trace.DatabasePath), zap.String("run", traces.RunID()))
	}

	mas := dispatch.New(sys.Environment, strategyFor(cfg), sys.Agents, opts...)
	started := time.Now()
	if err := mas.Start(ctx); err != nil {
		return err
	}
	summary.elapsed = time.Since(started)
	summary.strategy = mas.Strategy.String()
	if traces != nil {
		summary.runID = traces.RunID()
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.render())
	return nil
}

// idleWatcher cancels the run once every agent has reported a cycle with
// no events and no intentions and no mailbox holds a message.
func idleWatcher(env *environment.Local, agents int, cancel context.CancelFunc) dispatch.CycleObserver {
	var mu sync.Mutex
	idle := make(map[string]bool, agents)
	return func(a *agent.Agent, res agent.CycleResult) {
		mu.Lock()
		defer mu.Unlock()
		idle[a.Name] = res.Context.Events.Len() == 0 && res.Context.Intentions.IsEmpty()
		if len(idle) < agents {
			return
		}
		for name, ok := range idle {
			if !ok || len(env.Mailbox(name)) > 0 {
				return
			}
		}
		logging.Dispatch("every agent is idle, ending run")
		cancel()
	}
}
