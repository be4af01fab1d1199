package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// TaskLogCapturer shells out to the marketplace CLI to save the tail of a
// task's logs to disk, mirroring the reference tool's "sonmcli task logs
// <deal_id> <task_id> --tail <rownum>" invocation.
type TaskLogCapturer struct {
	// BinaryPath is the marketplace CLI executable, e.g. "sonmcli".
	BinaryPath string
	// TailLines is the number of trailing log lines requested per capture.
	TailLines int
}

// NewTaskLogCapturer returns a capturer invoking binaryPath with the given
// tail length. A tailLines of 0 falls back to 1000 lines.
func NewTaskLogCapturer(binaryPath string, tailLines int) *TaskLogCapturer {
	if tailLines <= 0 {
		tailLines = 1000
	}
	return &TaskLogCapturer{BinaryPath: binaryPath, TailLines: tailLines}
}

// Capture writes the task's log tail to destPath. dealID and taskID are
// validated before being placed on the command line since they ultimately
// come from marketplace RPC responses, not from a fully trusted source.
func (c *TaskLogCapturer) Capture(ctx context.Context, dealID, taskID, destPath string) error {
	if err := ValidateInput(dealID); err != nil {
		return fmt.Errorf("deal id %q: %w", dealID, err)
	}
	if err := ValidateInput(taskID); err != nil {
		return fmt.Errorf("task id %q: %w", taskID, err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create log destination %q: %w", destPath, err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, c.BinaryPath, "task", "logs", dealID, taskID, "--tail", strconv.Itoa(c.TailLines))
	cmd.Stdout = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("capture logs for deal %s task %s: %w", dealID, taskID, err)
	}
	return nil
}
