package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bdiagent/internal/activity"
	"bdiagent/internal/agent"
	"bdiagent/internal/logging"
)

// SteppedOptions tune DiscreteTime.
type SteppedOptions struct {
	// Ticks bounds the run. Zero runs until every agent stops or the
	// context ends.
	Ticks int64
	// Parallel runs the cycles of one tick concurrently.
	Parallel bool
	// TickDuration converts sleep requests into ticks.
	TickDuration time.Duration
}

type steppedStrategy struct {
	opts SteppedOptions
}

// DiscreteTime runs every ready agent exactly once per tick of a shared
// clock. The tick is a barrier: effects are applied in agent order once all
// cycles of the tick finish, then the clock advances. While every live agent
// is paused the clock stands still until Mas.Resume or the context ends.
func DiscreteTime(opts SteppedOptions) Strategy {
	return &steppedStrategy{opts: opts}
}

func (s *steppedStrategy) String() string {
	mode := "sequential"
	if s.opts.Parallel {
		mode = "parallel"
	}
	return fmt.Sprintf("discrete-time(%s)", mode)
}

func (s *steppedStrategy) Dispatch(ctx context.Context, m *Mas) error {
	clock := activity.NewClock()
	n := len(m.Agents)
	lifecycles := make([]*agent.Lifecycle, n)
	controllers := make([]*activity.SteppedController, n)
	names := make([]string, n)
	published := make([]activity.Controller, n)
	for i, a := range m.Agents {
		lifecycles[i] = agent.NewLifecycle(a)
		controllers[i] = activity.NewSteppedController(clock, s.opts.TickDuration)
		names[i] = a.Name
		published[i] = controllers[i]
	}
	m.attach(names, published)
	defer m.detach()

	for tick := int64(0); s.opts.Ticks == 0 || tick < s.opts.Ticks; {
		if ctx.Err() != nil {
			return nil
		}

		alive, paused := 0, 0
		for _, c := range controllers {
			switch {
			case c.IsStopped():
			case c.IsPaused():
				alive++
				paused++
			default:
				alive++
			}
		}
		if alive == 0 {
			logging.Dispatch("all agents stopped at tick %d", clock.Now())
			return nil
		}
		if paused == alive {
			logging.Dispatch("every agent is paused at tick %d, waiting for resume", clock.Now())
			if err := m.awaitResume(ctx); err != nil {
				return nil
			}
			continue
		}

		results := make([]*agent.CycleResult, n)
		step := func(i int) {
			res := lifecycles[i].Reason(m.Environment, controllers[i])
			results[i] = &res
		}

		if s.opts.Parallel {
			var g errgroup.Group
			for i, c := range controllers {
				if !c.Ready() {
					continue
				}
				i := i
				g.Go(func() error {
					step(i)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		} else {
			for i, c := range controllers {
				if c.Ready() {
					step(i)
				}
			}
		}

		for i, res := range results {
			if res != nil {
				m.complete(lifecycles[i].Agent(), *res)
			}
		}

		now := clock.Advance()
		logging.DispatchDebug("tick %d complete", now)
		m.tick(now)
		tick++
	}
	return nil
}
