package dispatch

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"bdiagent/internal/activity"
	"bdiagent/internal/agent"
	"bdiagent/internal/logging"
)

// ThreadOptions tune OneThreadPerAgent.
type ThreadOptions struct {
	// CyclesPerSecond caps each agent's cycle rate. Zero means unlimited.
	CyclesPerSecond float64
	// Burst is the limiter burst; defaults to 1.
	Burst int
}

type threadStrategy struct {
	opts ThreadOptions
}

// OneThreadPerAgent runs each agent on its own goroutine with no
// synchronisation between agents. A stop request ends only that agent.
func OneThreadPerAgent(opts ThreadOptions) Strategy {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &threadStrategy{opts: opts}
}

func (s *threadStrategy) String() string { return "one-thread-per-agent" }

func (s *threadStrategy) Dispatch(ctx context.Context, m *Mas) error {
	names := make([]string, len(m.Agents))
	ctrls := make([]*activity.ThreadController, len(m.Agents))
	published := make([]activity.Controller, len(m.Agents))
	for i, a := range m.Agents {
		names[i] = a.Name
		ctrls[i] = activity.NewThreadController()
		published[i] = ctrls[i]
	}
	m.attach(names, published)
	defer m.detach()

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range m.Agents {
		a, ctrl := a, ctrls[i]
		var limiter *rate.Limiter
		if s.opts.CyclesPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(s.opts.CyclesPerSecond), s.opts.Burst)
		}
		g.Go(func() error {
			return s.loop(gctx, m, agent.NewLifecycle(a), ctrl, limiter)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *threadStrategy) loop(ctx context.Context, m *Mas, lc *agent.Lifecycle, ctrl *activity.ThreadController, limiter *rate.Limiter) error {
	name := lc.Agent().Name
	logging.DispatchDebug("%s: loop started", name)
	defer logging.DispatchDebug("%s: loop ended after %d cycles", name, lc.Cycles())

	for {
		if ctx.Err() != nil {
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		res := lc.Reason(m.Environment, ctrl)
		m.complete(lc.Agent(), res)

		if ctrl.IsStopped() {
			logging.Dispatch("%s stopped", name)
			return nil
		}
		if err := ctrl.Await(ctx); err != nil {
			return nil
		}
		runtime.Gosched()
	}
}
