package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/xenopipe/internal/resources"
)

func TestDocker_Args(t *testing.T) {
	d := NewDocker(DockerConfig{ExtraArgs: []string{"--network", "none"}})
	inv := &Invocation{
		RunID:   "0123456789abcdef",
		Task:    "align",
		Attempt: 2,
		Command: "bwa mem ref.fa r1.fq > out.sam",
		Inputs: map[string][]string{
			"reads":     {"/runs/x/bam_to_fastq/r_1.fq", "/runs/x/bam_to_fastq/r_2.fq"},
			"reference": {"/ref/chimeric.fa"},
		},
		Allocation: resources.Allocation{CPU: 8, MemoryGB: 16, DiskGB: 100, Image: "bwa:0.7.17"},
		WorkDir:    "/runs/x/align",
	}

	assert.Equal(t, []string{
		"run", "--rm",
		"--name", "xenopipe-01234567-align-2",
		"--cpus", "8",
		"--memory", "16g",
		"-e", "XENOPIPE_TASK=align",
		"-e", "XENOPIPE_ATTEMPT=2",
		"-v", "/runs/x/align:/runs/x/align",
		"-v", "/ref:/ref:ro",
		"-v", "/runs/x/bam_to_fastq:/runs/x/bam_to_fastq:ro",
		"-w", "/runs/x/align",
		"--network", "none",
		"bwa:0.7.17", "sh", "-c", "bwa mem ref.fa r1.fq > out.sam",
	}, d.args(inv))
}

func TestDocker_RequiresImage(t *testing.T) {
	inv := invocation(t, "true")

	_, err := NewDocker(DefaultDockerConfig()).Run(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no container image")
}

// fakeDocker writes a docker stand-in that logs its arguments and blocks on run
func fakeDocker(t *testing.T) (binary, argLog string) {
	t.Helper()
	dir := t.TempDir()
	argLog = filepath.Join(dir, "calls.log")
	binary = filepath.Join(dir, "docker")
	script := "#!/bin/sh\n" +
		"echo \"$@\" >> '" + argLog + "'\n" +
		"if [ \"$1\" = run ]; then exec sleep 30; fi\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, argLog
}

func TestDocker_CancelRemovesContainer(t *testing.T) {
	binary, argLog := fakeDocker(t)
	inv := invocation(t, "sleep 30")
	inv.Allocation.Image = "samtools:1.17"

	cfg := DefaultDockerConfig()
	cfg.Binary = binary
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewDocker(cfg).Run(ctx, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	data, err := os.ReadFile(argLog)
	require.NoError(t, err)
	calls := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0], "run --rm --name xenopipe-run-1-demo-1 "), calls[0])
	assert.Equal(t, "rm -f xenopipe-run-1-demo-1", calls[1])
}

func TestDocker_FinishedAttemptLeavesContainerAlone(t *testing.T) {
	binary, argLog := fakeDocker(t)
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\necho \"$@\" >> '"+argLog+"'\n"), 0o755))
	inv := invocation(t, "true")
	inv.Allocation.Image = "samtools:1.17"

	cfg := DefaultDockerConfig()
	cfg.Binary = binary
	out, err := NewDocker(cfg).Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)

	data, err := os.ReadFile(argLog)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rm -f")
}
