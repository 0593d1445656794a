package gitinfo

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		base := []string{
			"-C", dir,
			"-c", "user.name=tester",
			"-c", "user.email=tester@local",
		}
		out, err := exec.Command("git", append(base, args...)...).CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestCaptureReadsHeadBranchAndCleanliness(t *testing.T) {
	dir := initRepo(t)

	gc := Capture(context.Background(), dir)
	require.NotNil(t, gc)
	require.Len(t, gc.Commit, 40)
	require.Equal(t, "main", gc.Branch)
	require.False(t, gc.Dirty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("wip"), 0o644))
	gc = Capture(context.Background(), dir)
	require.NotNil(t, gc)
	require.True(t, gc.Dirty)
}

func TestCaptureIsNilOutsideRepositories(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	require.Nil(t, Capture(context.Background(), ""))
	require.Nil(t, Capture(context.Background(), t.TempDir()))
	require.Nil(t, Capture(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestRawRoundTripsAndToleratesNil(t *testing.T) {
	var gc *Context
	require.Nil(t, gc.Raw())

	gc = &Context{Commit: "abc123", Branch: "main", Dirty: true}
	raw := gc.Raw()
	require.NotNil(t, raw)

	var decoded Context
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, *gc, decoded)
}
