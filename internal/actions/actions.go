// Package actions provides the internal actions every agent starts with.
package actions

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/ast"

	"bdiagent/internal/bdi"
	"bdiagent/internal/logging"
	"bdiagent/internal/logic"
)

// Defaults returns print, fail, stop, pause, sleep and drop_intention.
// print writes to out, or stdout when out is nil.
func Defaults(out io.Writer) []bdi.InternalAction {
	if out == nil {
		out = os.Stdout
	}
	p := &printer{out: out}
	return []bdi.InternalAction{
		{Name: "print", Arity: bdi.Variadic, Fn: p.print},
		{Name: "fail", Arity: 0, Fn: fail},
		{Name: "stop", Arity: 0, Fn: stop},
		{Name: "pause", Arity: 0, Fn: pause},
		{Name: "sleep", Arity: 1, Fn: sleep},
		{Name: "drop_intention", Arity: 0, Fn: dropIntention},
	}
}

// printMu serialises print across agents, which may share a writer.
var printMu sync.Mutex

type printer struct {
	out io.Writer
}

func (p *printer) print(req bdi.InternalRequest) (bdi.InternalResponse, error) {
	parts := make([]string, len(req.Args))
	for i, a := range req.Args {
		parts[i] = logic.Display(a)
	}
	line := fmt.Sprintf("[%s] %s\n", req.AgentName, strings.Join(parts, " "))

	printMu.Lock()
	defer printMu.Unlock()
	if _, err := io.WriteString(p.out, line); err != nil {
		return bdi.InternalResponse{}, fmt.Errorf("print: %w", err)
	}
	return bdi.Succeed(), nil
}

func fail(bdi.InternalRequest) (bdi.InternalResponse, error) {
	return bdi.Fail(), nil
}

func stop(req bdi.InternalRequest) (bdi.InternalResponse, error) {
	logging.Actions("%s requested stop", req.AgentName)
	return bdi.Succeed(bdi.Stop{}), nil
}

func pause(req bdi.InternalRequest) (bdi.InternalResponse, error) {
	logging.Actions("%s requested pause", req.AgentName)
	return bdi.Succeed(bdi.Pause{}), nil
}

func sleep(req bdi.InternalRequest) (bdi.InternalResponse, error) {
	c, ok := req.Args[0].(ast.Constant)
	if !ok || c.Type != ast.NumberType || c.NumValue < 0 {
		return bdi.InternalResponse{}, fmt.Errorf("sleep: expected a non-negative number of milliseconds, got %s", req.Args[0])
	}
	return bdi.Succeed(bdi.Sleep{Duration: time.Duration(c.NumValue) * time.Millisecond}), nil
}

// dropIntention discards the calling intention.
func dropIntention(req bdi.InternalRequest) (bdi.InternalResponse, error) {
	return bdi.Succeed(bdi.IntentionChange{Kind: bdi.Removal, Intention: req.Intention}), nil
}
