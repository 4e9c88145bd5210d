package worker

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/glacierlabs/floe/internal/logger"
)

// Runner launches the external processing task for a job. The task is
// fire-and-forget: it writes the result and log artifacts and reports the
// terminal status itself, so the consumer never blocks on its completion.
type Runner interface {
	Start(ctx context.Context, inputPath, jobID string) error
}

// ExecRunner launches the processing task as a subprocess.
type ExecRunner struct {
	command string
}

// NewExecRunner creates a runner invoking the given executable with
// (input_path, job_id) arguments.
func NewExecRunner(command string) *ExecRunner {
	return &ExecRunner{command: command}
}

// Start spawns the task and returns without waiting for it. A goroutine
// reaps the process so it does not linger as a zombie.
func (r *ExecRunner) Start(_ context.Context, inputPath, jobID string) error {
	cmd := exec.Command(r.command, inputPath, jobID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start processing task: %w", err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Errorf("Processing task for job %s exited with error: %v", jobID, err)
		}
	}()
	return nil
}
