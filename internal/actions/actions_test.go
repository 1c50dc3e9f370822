package actions

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdiagent/internal/bdi"
)

func byName(t *testing.T, out io.Writer, name string) bdi.InternalAction {
	t.Helper()
	for _, a := range Defaults(out) {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("no default action %q", name)
	return bdi.InternalAction{}
}

func TestDefaultsNames(t *testing.T) {
	var names []string
	for _, a := range Defaults(nil) {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"print", "fail", "stop", "pause", "sleep", "drop_intention"}, names)
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	act := byName(t, &out, "print")

	res, err := act.Execute(bdi.InternalRequest{
		AgentName: "alice",
		Args:      []ast.BaseTerm{ast.String("hello world"), ast.Number(3)},
	})
	require.NoError(t, err)
	assert.True(t, res.Substitution.IsSuccess())
	assert.Empty(t, res.Effects)
	assert.Equal(t, "[alice] hello world 3\n", out.String())
}

func TestPrintConcurrentLinesDoNotInterleave(t *testing.T) {
	var out bytes.Buffer
	act := byName(t, &out, "print")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := act.Execute(bdi.InternalRequest{AgentName: "a", Args: []ast.BaseTerm{ast.String("line")}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, bytes.Count(out.Bytes(), []byte("[a] line\n")))
}

func TestFail(t *testing.T) {
	res, err := byName(t, nil, "fail").Execute(bdi.InternalRequest{})
	require.NoError(t, err)
	assert.False(t, res.Substitution.IsSuccess())
}

func TestControlActions(t *testing.T) {
	res, err := byName(t, nil, "stop").Execute(bdi.InternalRequest{AgentName: "a"})
	require.NoError(t, err)
	assert.Equal(t, []bdi.AgentChange{bdi.Stop{}}, res.Effects)

	res, err = byName(t, nil, "pause").Execute(bdi.InternalRequest{AgentName: "a"})
	require.NoError(t, err)
	assert.Equal(t, []bdi.AgentChange{bdi.Pause{}}, res.Effects)

	res, err = byName(t, nil, "sleep").Execute(bdi.InternalRequest{Args: []ast.BaseTerm{ast.Number(250)}})
	require.NoError(t, err)
	assert.Equal(t, []bdi.AgentChange{bdi.Sleep{Duration: 250 * time.Millisecond}}, res.Effects)
}

func TestSleepRejectsBadArguments(t *testing.T) {
	act := byName(t, nil, "sleep")

	_, err := act.Execute(bdi.InternalRequest{Args: []ast.BaseTerm{ast.String("soon")}})
	assert.Error(t, err)

	_, err = act.Execute(bdi.InternalRequest{Args: []ast.BaseTerm{ast.Number(-1)}})
	assert.Error(t, err)

	_, err = act.Execute(bdi.InternalRequest{})
	assert.ErrorIs(t, err, bdi.ErrArityMismatch)
}

func TestDropIntention(t *testing.T) {
	in := bdi.NewIntention()
	res, err := byName(t, nil, "drop_intention").Execute(bdi.InternalRequest{Intention: in})
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)

	change, ok := res.Effects[0].(bdi.IntentionChange)
	require.True(t, ok)
	assert.Equal(t, bdi.Removal, change.Kind)
	assert.Equal(t, in.ID, change.Intention.ID)
}
