// Task 4.4: Git executor.
// The dispatch side effect for reflex tasks: stage the changed path and
// commit it with a message derived from the task. The command runner is
// injectable so tests never shell out.
package reflex

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
)

// CommandRunner executes one external command and returns its combined
// output. The default shells out via os/exec.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// GitExecutor commits reflex tasks into the repository at Dir, one commit
// per dispatched task.
type GitExecutor struct {
	dir string
	run CommandRunner
	log zerolog.Logger
}

// NewGitExecutor returns a GitExecutor for the repository at dir.
func NewGitExecutor(dir string, log zerolog.Logger) *GitExecutor {
	return &GitExecutor{
		dir: dir,
		run: execRunner,
		log: log.With().Str("component", "git").Logger(),
	}
}

// NewGitExecutorWithRunner is the test constructor with an injected runner.
func NewGitExecutorWithRunner(dir string, log zerolog.Logger, run CommandRunner) *GitExecutor {
	return &GitExecutor{dir: dir, run: run, log: log}
}

// Execute stages the task's key and commits it. A clean tree after staging
// (nothing actually changed) is treated as success, not a failure to retry.
func (g *GitExecutor) Execute(ctx context.Context, t *Task) error {
	if out, err := g.run(ctx, g.dir, "git", "add", "--", t.Key); err != nil {
		return fmt.Errorf("git add %s: %w: %s", t.Key, err, strings.TrimSpace(string(out)))
	}

	// Exit 0 from diff --cached --quiet means nothing staged for this path.
	if _, err := g.run(ctx, g.dir, "git", "diff", "--cached", "--quiet", "--", t.Key); err == nil {
		g.log.Debug().Str("key", t.Key).Msg("no staged changes; skipping commit")
		return nil
	}

	msg := commitMessage(t)
	if out, err := g.run(ctx, g.dir, "git", "commit", "-m", msg, "--", t.Key); err != nil {
		return fmt.Errorf("git commit %s: %w: %s", t.Key, err, strings.TrimSpace(string(out)))
	}

	g.log.Info().Str("key", t.Key).Str("message", msg).Msg("committed")
	return nil
}

// commitMessage derives a conventional one-liner from the task.
func commitMessage(t *Task) string {
	verb := "update"
	if fc, ok := t.Payload.(eventbus.FileChangedPayload); ok {
		switch fc.Op {
		case "create":
			verb = "add"
		case "remove":
			verb = "remove"
		}
	}
	return fmt.Sprintf("chore: %s %s", verb, t.Key)
}
