package gitinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("gitinfo")

// CaptureTimeout bounds the total time spent probing a repository.
const CaptureTimeout = 2 * time.Second

// Context records repository state at submission time. It rides along
// with the job as an opaque payload and is never interpreted by the
// scheduler.
type Context struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
	Remote string `json:"remote,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Raw renders the context as the opaque payload attached to a job.
// A nil context renders as nil so callers can pass it straight through.
func (c *Context) Raw() json.RawMessage {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		log.Warnw("marshaling git context", "error", err)
		return nil
	}
	return raw
}

// Capture probes the repository at dir. It is best effort: a missing
// git binary, a non-repository path or any command failure yields nil
// so submission is never blocked on repository state.
func Capture(ctx context.Context, dir string) *Context {
	if dir == "" {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, CaptureTimeout)
	defer cancel()

	if !isRepo(cctx, dir) {
		return nil
	}
	gc := &Context{}
	if out, err := runGit(cctx, dir, "rev-parse", "HEAD"); err == nil {
		gc.Commit = out
	} else {
		log.Debugw("git head unavailable", "dir", dir, "error", err)
	}
	if out, err := runGit(cctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		gc.Branch = out
	}
	if out, err := runGit(cctx, dir, "remote", "get-url", "origin"); err == nil {
		gc.Remote = out
	}
	if out, err := runGit(cctx, dir, "status", "--porcelain"); err == nil {
		gc.Dirty = out != ""
	}
	if gc.Commit == "" && gc.Branch == "" {
		return nil
	}
	return gc
}

func isRepo(ctx context.Context, dir string) bool {
	out, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// runGit executes a git subcommand against dir with auto-maintenance
// disabled so probes never spawn background helper processes.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	base := []string{
		"-C", dir,
		"-c", "maintenance.auto=0",
		"-c", "gc.auto=0",
	}
	cmd := exec.CommandContext(ctx, "git", append(base, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
