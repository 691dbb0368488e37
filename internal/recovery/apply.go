package recovery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loykin/pipeflow/internal/common"
	"github.com/loykin/pipeflow/internal/pipeline"
)

// applier writes a fix descriptor's files and runs its commands inside the
// run's working copy. Swapped out by coordinator tests.
type applier interface {
	Apply(ctx context.Context, desc *FixDescriptor, ec *pipeline.ExecutionContext) error
}

type fixApplier struct {
	logger *common.Logger
}

func newFixApplier(logger *common.Logger) *fixApplier {
	return &fixApplier{logger: logger.WithComponent("fix-applier")}
}

// Apply writes all file edits first, then runs the commands in order. The
// first failing command aborts the remaining ones and fails the attempt.
func (a *fixApplier) Apply(ctx context.Context, desc *FixDescriptor, ec *pipeline.ExecutionContext) error {
	workDir := ec.WorkDir()

	for path, content := range desc.Files {
		target := path
		if !filepath.IsAbs(target) {
			target = filepath.Join(workDir, target)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		a.logger.Debug("wrote fix file", "path", path, "bytes", len(content))
	}

	for i, command := range desc.Commands {
		cmd := exec.CommandContext(ctx, "sh", "-c", command) // #nosec G204 -- commands come from the configured fixer
		cmd.Dir = workDir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("fix command %d (%s) failed: %w: %s", i+1, command, err, string(out))
		}
		a.logger.Debug("fix command succeeded", "command", command)
	}

	return nil
}
