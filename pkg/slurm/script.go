package slurm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Defaults are the gateway-level scheduling defaults applied when a JobSpec
// leaves the corresponding hint empty.
type Defaults struct {
	Account   string
	Partition string
	QOS       string
	TimeLimit string
}

// BuildBatchScript renders the sbatch submission script for a job.
//
// The rendered script is deterministic for a given spec: env exports are
// emitted in sorted key order so that submitting the same spec twice produces
// identical scripts.
func BuildBatchScript(spec *JobSpec, defaults Defaults) string {
	partition := spec.Partition
	if partition == "" {
		partition = defaults.Partition
	}
	qos := spec.QOS
	if qos == "" {
		qos = defaults.QOS
	}
	account := spec.Account
	if account == "" {
		account = defaults.Account
	}
	timeLimit := spec.TimeLimit
	if timeLimit == "" {
		timeLimit = defaults.TimeLimit
	}

	cpuCores := spec.CPUCores
	if cpuCores <= 0 {
		cpuCores = 1
	}
	memoryGB := spec.MemoryGB
	if memoryGB <= 0 {
		memoryGB = 4
	}

	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	if !filepath.IsAbs(workingDir) {
		cwd, _ := os.Getwd()
		workingDir = filepath.Join(cwd, workingDir)
	}

	kind := spec.Kind
	if kind == "" {
		kind = "Deployment"
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash -l\n\n")

	directive := func(format string, args ...any) {
		b.WriteString("#SBATCH ")
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}

	directive("--job-name=%s", spec.Name)
	if spec.LogPath != "" {
		directive("--output=%s", spec.LogPath)
		directive("--error=%s", spec.LogPath)
	}
	directive("--time=%s", timeLimit)
	directive("--qos=%s", qos)
	directive("--partition=%s", partition)
	if account != "" {
		directive("--account=%s", account)
	}
	directive("--nodes=1")
	directive("--ntasks=1")
	directive("--cpus-per-task=%d", cpuCores)
	directive("--mem=%dG", memoryGB)
	if spec.GPUCount > 0 {
		directive("--gres=gpu:%d", spec.GPUCount)
	}

	portInfo := make([]string, len(spec.Ports))
	for i, p := range spec.Ports {
		portInfo[i] = fmt.Sprintf("%d", p)
	}

	b.WriteString("\n")
	b.WriteString("echo \"=========================================\"\n")
	fmt.Fprintf(&b, "echo \"%s\"\n", kind)
	b.WriteString("echo \"=========================================\"\n")
	b.WriteString("echo \"Date              = $(date)\"\n")
	b.WriteString("echo \"Hostname          = $(hostname -s)\"\n")
	fmt.Fprintf(&b, "echo \"Working Directory = %s\"\n", workingDir)
	b.WriteString("echo \"Job ID            = $SLURM_JOB_ID\"\n")
	if spec.InstanceID != "" {
		fmt.Fprintf(&b, "echo \"Instance ID       = %s\"\n", spec.InstanceID)
	}
	if len(portInfo) > 0 {
		fmt.Fprintf(&b, "echo \"Ports             = %s\"\n", strings.Join(portInfo, " "))
	}
	b.WriteString("echo \"=========================================\"\n\n")

	fmt.Fprintf(&b, "cd %s\n\n", workingDir)

	if len(spec.Env) > 0 {
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "export %s=%q\n", k, spec.Env[k])
		}
		b.WriteString("\n")
	}

	b.WriteString(spec.Command)
	b.WriteString("\n\nEXIT_CODE=$?\n\n")
	b.WriteString("echo \"\"\n")
	b.WriteString("echo \"=========================================\"\n")
	b.WriteString("echo \"Job exited with code $EXIT_CODE\"\n")
	b.WriteString("echo \"=========================================\"\n\n")
	b.WriteString("exit $EXIT_CODE\n")

	return b.String()
}
