package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

// stderrTail bounds how much child stderr rides along in error messages.
const stderrTail = 1024

// waitDelay gives a killed process group time to exit before Wait gives
// up on collecting it.
const waitDelay = 3 * time.Second

// SecretProvider supplies credentials injected into the child process
// environment. The resilient secret source satisfies this.
type SecretProvider interface {
	Fetch(ctx context.Context) (map[string]string, error)
}

// Runner executes one pipeline's command as a subprocess. The job input
// document is written to stdin, the result document is read from stdout,
// and secrets become environment variables. Cancelling the context kills
// the whole process group.
type Runner struct {
	spec    Spec
	secrets SecretProvider
}

// NewRunner builds the executor for a catalog entry. secrets may be nil
// for pipelines that need no credentials.
func NewRunner(spec Spec, secrets SecretProvider) *Runner {
	return &Runner{spec: spec, secrets: secrets}
}

// Execute implements engine.Executor.
func (r *Runner) Execute(ctx context.Context, job *engine.Job) (json.RawMessage, error) {
	if r.spec.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.spec.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	env := os.Environ()
	if r.secrets != nil {
		fetched, err := r.secrets.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching secrets for pipeline %q: %w", r.spec.ID, err)
		}
		for k, v := range fetched {
			env = append(env, k+"="+v)
		}
	}
	env = append(env,
		"FOREMAN_JOB_ID="+job.ID,
		"FOREMAN_PIPELINE_ID="+job.PipelineID,
	)

	input := job.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	cmd := exec.CommandContext(ctx, r.spec.Command[0], r.spec.Command[1:]...)
	cmd.Dir = r.spec.WorkDir
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(input)
	// Own process group so cancellation kills the whole tree, not just
	// the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugw("spawning pipeline process",
		"pipeline_id", r.spec.ID, "job_id", job.ID, "command", r.spec.Command[0])
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pipeline %q: %w", r.spec.ID, ctxErr)
		}
		if msg := tail(stderr.String(), stderrTail); msg != "" {
			return nil, fmt.Errorf("pipeline %q: %w: %s", r.spec.ID, err, msg)
		}
		return nil, fmt.Errorf("pipeline %q: %w", r.spec.ID, err)
	}

	return resultDocument(stdout.Bytes()), nil
}

// resultDocument passes valid JSON through untouched and wraps anything
// else so downstream consumers always see a JSON result.
func resultDocument(out []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return append(json.RawMessage(nil), trimmed...)
	}
	wrapped, err := json.Marshal(map[string]string{"output": string(trimmed)})
	if err != nil {
		return nil
	}
	return wrapped
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
