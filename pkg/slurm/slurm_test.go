package slurm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpckit/slurmbench/pkg/instance"
)

func TestMapState_Table(t *testing.T) {
	tests := []struct {
		external string
		want     instance.Status
	}{
		{"PENDING", instance.StatusSubmitted},
		{"CONFIGURING", instance.StatusStarting},
		{"RUNNING", instance.StatusRunning},
		{"COMPLETING", instance.StatusCompleted},
		{"COMPLETED", instance.StatusCompleted},
		{"FAILED", instance.StatusFailed},
		{"TIMEOUT", instance.StatusFailed},
		{"NODE_FAIL", instance.StatusFailed},
		{"CANCELLED", instance.StatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.external, func(t *testing.T) {
			assert.Equal(t, tt.want, MapState(tt.external))
		})
	}
}

func TestMapState_UnknownNeverPromotes(t *testing.T) {
	for _, external := range []string{"REQUEUED", "PREEMPTED", "SPECIAL_EXIT", "bogus", ""} {
		got := MapState(external)
		assert.Equal(t, instance.StatusSubmitted, got, "state %q", external)
		assert.False(t, got.Terminal(), "state %q must not be terminal", external)
	}
}

func TestParseSubmitOutput(t *testing.T) {
	handle, err := parseSubmitOutput("Submitted batch job 3757031\n")
	require.NoError(t, err)
	assert.Equal(t, "3757031", handle)
}

func TestParseSubmitOutput_Malformed(t *testing.T) {
	_, err := parseSubmitOutput("Submitted batch job abc123!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")

	_, err = parseSubmitOutput("   ")
	require.Error(t, err)
}

func TestParseQueueOutput(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   JobStatus
	}{
		{"running with node", "RUNNING,node042\n", JobStatus{State: instance.StatusRunning, Node: "node042"}},
		{"pending without node", "PENDING,\n", JobStatus{State: instance.StatusSubmitted}},
		{"empty result means reaped", "\n", JobStatus{State: instance.StatusCompleted}},
		{"unknown state stays pending", "WEIRD_NEW_STATE,node001", JobStatus{State: instance.StatusSubmitted, Node: "node001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseQueueOutput(tt.stdout))
		})
	}
}

func TestBuildBatchScript(t *testing.T) {
	spec := &JobSpec{
		Name:       "vllm-server_abc12345",
		Kind:       "Server Deployment",
		InstanceID: "abc12345-0000-0000-0000-000000000000",
		Command:    "python -m vllm.entrypoints.openai.api_server",
		WorkingDir: "/scratch/run",
		Env:        map[string]string{"HF_HOME": "/scratch/hf", "A_FIRST": "1"},
		Ports:      []int{8000},
		CPUCores:   8,
		MemoryGB:   32,
		GPUCount:   1,
		Partition:  "gpu",
	}
	defaults := Defaults{Account: "proj123", Partition: "cpu", QOS: "default", TimeLimit: "04:00:00"}

	script := BuildBatchScript(spec, defaults)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash -l\n"))
	assert.Contains(t, script, "#SBATCH --job-name=vllm-server_abc12345")
	assert.Contains(t, script, "#SBATCH --time=04:00:00")
	assert.Contains(t, script, "#SBATCH --partition=gpu")
	assert.Contains(t, script, "#SBATCH --account=proj123")
	assert.Contains(t, script, "#SBATCH --cpus-per-task=8")
	assert.Contains(t, script, "#SBATCH --mem=32G")
	assert.Contains(t, script, "#SBATCH --gres=gpu:1")
	assert.Contains(t, script, "cd /scratch/run")
	assert.Contains(t, script, "python -m vllm.entrypoints.openai.api_server")
	assert.Contains(t, script, "exit $EXIT_CODE")

	// Env exports are sorted for deterministic rendering.
	first := strings.Index(script, `export A_FIRST="1"`)
	second := strings.Index(script, `export HF_HOME="/scratch/hf"`)
	require.Greater(t, first, 0)
	require.Greater(t, second, 0)
	assert.Less(t, first, second)

	// Identical spec renders an identical script.
	assert.Equal(t, script, BuildBatchScript(spec, defaults))
}

func TestBuildBatchScript_NoGPUDirectiveWhenZero(t *testing.T) {
	spec := &JobSpec{Name: "svc", Command: "sleep 60"}
	script := BuildBatchScript(spec, Defaults{Partition: "cpu", QOS: "default", TimeLimit: "01:00:00"})
	assert.NotContains(t, script, "--gres")
	assert.NotContains(t, script, "--account")
}

// stubCLI returns canned results per command name.
func stubCLI(results map[string]struct {
	stdout string
	stderr string
	err    error
}) func(ctx context.Context, name string, args ...string) (string, string, error) {
	return func(_ context.Context, name string, _ ...string) (string, string, error) {
		r, ok := results[name]
		if !ok {
			return "", "", fmt.Errorf("unexpected command %s", name)
		}
		return r.stdout, r.stderr, r.err
	}
}

func TestClient_SubmitParsesHandle(t *testing.T) {
	c := NewClient(Defaults{Partition: "cpu", QOS: "default", TimeLimit: "01:00:00"}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"sbatch": {stdout: "Submitted batch job 42\n"},
	})

	handle, err := c.Submit(context.Background(), &JobSpec{Name: "svc", Command: "sleep 60"})
	require.NoError(t, err)
	assert.Equal(t, "42", handle)
}

func TestClient_SubmitFailureIsSchedulerError(t *testing.T) {
	c := NewClient(Defaults{}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"sbatch": {stderr: "sbatch: error: invalid account", err: fmt.Errorf("exit status 1")},
	})

	_, err := c.Submit(context.Background(), &JobSpec{Name: "svc", Command: "sleep 60"})
	require.Error(t, err)
	assert.True(t, IsSchedulerError(err))
	assert.Contains(t, err.Error(), "invalid account")
}

func TestClient_CancelIdempotentOnGoneHandle(t *testing.T) {
	c := NewClient(Defaults{}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"scancel": {stderr: "scancel: error: Invalid job id specified", err: fmt.Errorf("exit status 1")},
	})

	ok, err := c.Cancel(context.Background(), "99")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_CancelTransportFailure(t *testing.T) {
	c := NewClient(Defaults{}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"scancel": {stderr: "scancel: error: connection refused", err: fmt.Errorf("exit status 1")},
	})

	_, err := c.Cancel(context.Background(), "99")
	require.Error(t, err)
	assert.True(t, IsSchedulerError(err))
}

func TestClient_QueryStatusReapedHandle(t *testing.T) {
	c := NewClient(Defaults{}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"squeue": {stderr: "slurm_load_jobs error: Invalid job id specified", err: fmt.Errorf("exit status 1")},
	})

	status, err := c.QueryStatus(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusCompleted, status.State)
}

func TestClient_QueryStatusRunning(t *testing.T) {
	c := NewClient(Defaults{}, nil)
	c.runCommand = stubCLI(map[string]struct {
		stdout string
		stderr string
		err    error
	}{
		"squeue": {stdout: "RUNNING,node042\n"},
	})

	status, err := c.QueryStatus(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusRunning, status.State)
	assert.Equal(t, "node042", status.Node)
}
