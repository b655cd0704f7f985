package session

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GitContext is the host VCS snapshot captured for a project directory.
type GitContext struct {
	CommitHash      string // short hash
	Branch          string
	Dirty           bool
	CommitTimestamp int64 // unix millis, 0 if unknown
}

// callTimeout bounds every individual git invocation (§4.5: ≤5s per call).
const callTimeout = 5 * time.Second

// CaptureGitContext shells out to git with bounded timeouts. Failures
// (not a repo, git missing, timeout) are non-fatal and yield an empty
// context, per §4.5/§7.
func CaptureGitContext(dir string) GitContext {
	var ctx GitContext

	if hash, ok := runGit(dir, "rev-parse", "--short", "HEAD"); ok {
		ctx.CommitHash = hash
	}
	if branch, ok := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD"); ok {
		ctx.Branch = branch
	}
	if status, ok := runGit(dir, "status", "--porcelain"); ok {
		ctx.Dirty = strings.TrimSpace(status) != ""
	}
	if ts, ok := runGit(dir, "log", "-1", "--format=%ct"); ok {
		if secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64); err == nil {
			ctx.CommitTimestamp = secs * 1000
		}
	}
	return ctx
}

// SecondMostRecentCommit resolves the short hash one commit before HEAD,
// used to answer "last commit" / "previous commit" temporal cues.
func SecondMostRecentCommit(dir string) string {
	out, ok := runGit(dir, "rev-parse", "--short", "HEAD~1")
	if !ok {
		return ""
	}
	return out
}

// RecentCommitSubjects fetches up to n recent commit subject lines,
// newest first, for the project fingerprint's "Recent work" section
// (§4.6 step 3). Returns nil on any failure.
func RecentCommitSubjects(dir string, n int) []string {
	out, ok := runGit(dir, "log", fmt.Sprintf("-%d", n), "--format=%s")
	if !ok || out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func runGit(dir string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}
