package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/hpckit/slurmbench/pkg/instance"
)

// squeueFormat requests state and node columns, comma separated.
const squeueFormat = "%T,%N"

// Client is the CLI-backed Gateway implementation.
//
// Each call shells out to the SLURM user commands (sbatch, scancel, squeue)
// synchronously; the call's context bounds the subprocess lifetime.
type Client struct {
	defaults Defaults
	logger   *zap.Logger

	// runCommand is swappable so client tests never start a subprocess.
	runCommand func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// NewClient creates a Client with the given scheduling defaults.
func NewClient(defaults Defaults, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		defaults:   defaults,
		logger:     logger,
		runCommand: runCLI,
	}
}

// Submit renders the batch script to a temp file and invokes sbatch.
func (c *Client) Submit(ctx context.Context, spec *JobSpec) (string, error) {
	if spec == nil || strings.TrimSpace(spec.Command) == "" {
		return "", &SchedulerError{Op: "submit", Err: fmt.Errorf("job command is empty")}
	}

	script := BuildBatchScript(spec, c.defaults)

	f, err := os.CreateTemp("", "slurmbench-*.sh")
	if err != nil {
		return "", &SchedulerError{Op: "submit", Err: fmt.Errorf("create batch script: %w", err)}
	}
	scriptPath := f.Name()
	defer func() { _ = os.Remove(scriptPath) }()

	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		return "", &SchedulerError{Op: "submit", Err: fmt.Errorf("write batch script: %w", err)}
	}
	if err := f.Close(); err != nil {
		return "", &SchedulerError{Op: "submit", Err: fmt.Errorf("close batch script: %w", err)}
	}

	stdout, stderr, err := c.runCommand(ctx, "sbatch", scriptPath)
	if err != nil {
		return "", &SchedulerError{Op: "submit", Detail: strings.TrimSpace(stderr), Err: err}
	}

	handle, err := parseSubmitOutput(stdout)
	if err != nil {
		return "", &SchedulerError{Op: "submit", Err: err}
	}

	c.logger.Info("job submitted",
		zap.String("job_name", spec.Name),
		zap.String("handle", handle))
	return handle, nil
}

// Cancel invokes scancel for the handle.
//
// Returns (false, nil) when the scheduler no longer knows the handle, so that
// repeated cancellation of a finished job is a no-op rather than a failure.
func (c *Client) Cancel(ctx context.Context, handle string) (bool, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return false, &SchedulerError{Op: "cancel", Err: fmt.Errorf("job handle is empty")}
	}

	_, stderr, err := c.runCommand(ctx, "scancel", handle)
	if err == nil {
		c.logger.Info("job cancelled", zap.String("handle", handle))
		return true, nil
	}
	if handleAlreadyGone(stderr) {
		c.logger.Debug("cancel on unknown handle treated as no-op", zap.String("handle", handle))
		return false, nil
	}
	return false, &SchedulerError{Op: "cancel", Handle: handle, Detail: strings.TrimSpace(stderr), Err: err}
}

// QueryStatus invokes squeue for the handle and maps the reported state.
func (c *Client) QueryStatus(ctx context.Context, handle string) (JobStatus, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return JobStatus{}, &SchedulerError{Op: "query", Err: fmt.Errorf("job handle is empty")}
	}

	stdout, _, err := c.runCommand(ctx, "squeue", "-j", handle, "--format="+squeueFormat, "--noheader")
	if err != nil {
		// squeue fails for reaped handles; the job is no longer tracked.
		return JobStatus{State: instance.StatusCompleted}, nil
	}

	return parseQueueOutput(stdout), nil
}

// parseSubmitOutput extracts the job handle from sbatch stdout
// ("Submitted batch job 3757031" → "3757031").
func parseSubmitOutput(stdout string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(stdout))
	if len(fields) == 0 {
		return "", fmt.Errorf("unexpected empty response from sbatch")
	}
	handle := fields[len(fields)-1]
	for _, r := range handle {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("malformed job handle in sbatch response: %q", handle)
		}
	}
	return handle, nil
}

// parseQueueOutput maps one squeue "STATE,NODE" line to a JobStatus.
// An empty result means the scheduler has reaped the job.
func parseQueueOutput(stdout string) JobStatus {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	first := strings.TrimSpace(lines[0])
	if first == "" {
		return JobStatus{State: instance.StatusCompleted}
	}

	parts := strings.SplitN(first, ",", 2)
	state := MapState(strings.TrimSpace(parts[0]))
	node := ""
	if len(parts) > 1 {
		node = strings.TrimSpace(parts[1])
	}
	return JobStatus{State: state, Node: node}
}

// handleAlreadyGone reports whether scancel stderr indicates an unknown or
// already-finished job rather than a transport failure.
func handleAlreadyGone(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "invalid job id") || strings.Contains(s, "already completing or completed")
}

// runCLI executes an external scheduler command and captures its output.
func runCLI(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
