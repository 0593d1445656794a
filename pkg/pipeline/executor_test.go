package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

type staticSecrets map[string]string

func (s staticSecrets) Fetch(context.Context) (map[string]string, error) { return s, nil }

type failingSecrets struct{ err error }

func (f failingSecrets) Fetch(context.Context) (map[string]string, error) { return nil, f.err }

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testJob(input string) *engine.Job {
	j := &engine.Job{ID: "job-1", PipelineID: "demo"}
	if input != "" {
		j.Input = json.RawMessage(input)
	}
	return j
}

func TestExecuteEchoesStdinAsResult(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"cat"}}, nil)

	result, err := r.Execute(context.Background(), testJob(`{"repository_path": "/code/x"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"repository_path": "/code/x"}`, string(result))
}

func TestExecuteInjectsSecretsAndJobIdentity(t *testing.T) {
	requireShell(t)
	spec := Spec{ID: "demo", Command: []string{
		"sh", "-c", `printf '{"token":"%s","job":"%s","pipeline":"%s"}' "$UPSTREAM_TOKEN" "$FOREMAN_JOB_ID" "$FOREMAN_PIPELINE_ID"`,
	}}
	r := NewRunner(spec, staticSecrets{"UPSTREAM_TOKEN": "s3cr3t"})

	result, err := r.Execute(context.Background(), testJob(""))
	require.NoError(t, err)
	require.JSONEq(t, `{"token":"s3cr3t","job":"job-1","pipeline":"demo"}`, string(result))
}

func TestExecuteWrapsNonJSONOutput(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"sh", "-c", "echo plain text"}}, nil)

	result, err := r.Execute(context.Background(), testJob(""))
	require.NoError(t, err)
	require.JSONEq(t, `{"output": "plain text"}`, string(result))
}

func TestExecuteEmptyOutputYieldsNilResult(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"true"}}, nil)

	result, err := r.Execute(context.Background(), testJob(""))
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestExecuteSurfacesStderrOnFailure(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"sh", "-c", "echo boom >&2; exit 3"}}, nil)

	_, err := r.Execute(context.Background(), testJob(""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit status 3")
	require.Contains(t, err.Error(), "boom")
}

func TestExecuteKillsProcessGroupOnCancel(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"sh", "-c", "sleep 30"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Execute(ctx, testJob(""))
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 10*time.Second, "cancellation must not wait out the sleep")
}

func TestExecuteTimesOutViaSpec(t *testing.T) {
	requireShell(t)
	r := NewRunner(Spec{ID: "demo", Command: []string{"sh", "-c", "sleep 30"}, TimeoutSeconds: 1}, nil)

	start := time.Now()
	_, err := r.Execute(context.Background(), testJob(""))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteFailsBeforeSpawnWhenSecretsUnavailable(t *testing.T) {
	requireShell(t)
	marker := filepath.Join(t.TempDir(), "spawned")
	spec := Spec{ID: "demo", Command: []string{"sh", "-c", "touch " + marker}}
	upstream := errors.New("vault unreachable")
	r := NewRunner(spec, failingSecrets{err: upstream})

	_, err := r.Execute(context.Background(), testJob(""))
	require.ErrorIs(t, err, upstream)
	_, statErr := os.Stat(marker)
	require.True(t, os.IsNotExist(statErr), "process must not start without secrets")
}

func TestExecuteRunsInConfiguredWorkDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := NewRunner(Spec{ID: "demo", Command: []string{"sh", "-c", "pwd"}, WorkDir: dir}, nil)

	result, err := r.Execute(context.Background(), testJob(""))
	require.NoError(t, err)

	var wrapped map[string]string
	require.NoError(t, json.Unmarshal(result, &wrapped))
	resolved, err := filepath.EvalSymlinks(wrapped["output"])
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, expected, resolved)
}
