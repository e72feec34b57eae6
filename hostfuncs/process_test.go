package hostfuncs

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutPosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX utilities")
	}
}

func TestStartProcess_Success(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{
		Command: "echo",
		Args:    []string{"hello", "world"},
	})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello world\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestStartProcess_ExitCode(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "false"})
	require.NoError(t, err)

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestStartProcess_InvalidCommand(t *testing.T) {
	_, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "nonexistentcommand12345"})
	require.Error(t, err)

	_, err = StartProcess(context.Background(), entities.ProcessSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestStartProcess_RefusesShellByDefault(t *testing.T) {
	_, err := StartProcess(context.Background(), entities.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "echo hi"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shell")
}

func TestStartProcess_ShellAllowed(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "echo $GREETING"},
		Env:     []string{"GREETING=hi", "LD_PRELOAD=/evil.so"},
	}, WithShellAllowed(true))
	require.NoError(t, err)

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
}

func TestStartProcess_Kill(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	p.Kill()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
	res, _ := p.Wait(context.Background())
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestStartProcess_OutputBounded(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{
		Command: "echo",
		Args:    []string{"0123456789"},
	}, WithMaxOutputSize(4))
	require.NoError(t, err)

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123", res.Stdout)
	assert.True(t, res.Truncated)
}

// Wait gives up on its context by stopping the process, not by abandoning it.
func TestProcess_WaitHonoursContext(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	defer p.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartProcess_HostEnvNotInherited(t *testing.T) {
	skipWithoutPosix(t)
	t.Setenv("PYTHONPATH", "/host/site-packages")
	t.Setenv("LD_HAYRIDE_TEST", "host-value")

	tests := []struct {
		name string
		env  []string
		want string
	}{
		{name: "no env", env: nil, want: ""},
		{name: "empty env", env: []string{}, want: ""},
		{
			name: "policy applied",
			env:  []string{"GREETING=hi", "PYTHONPATH=/guest", "LD_HAYRIDE_TEST=guest"},
			want: "GREETING=hi\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "printenv", Env: tt.env})
			require.NoError(t, err)

			res, err := p.Wait(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Stdout)
			assert.NotContains(t, res.Stdout, "host")
		})
	}
}

func TestProcess_StopKeepsOutput(t *testing.T) {
	skipWithoutPosix(t)
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("line-before-stop\n"), 0o600))

	p, err := StartProcess(context.Background(), entities.ProcessSpec{Command: "tail", Args: []string{"-f", path}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.stdout.Len() > 0 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "line-before-stop\n", res.Stdout)
	assert.Equal(t, -1, res.ExitCode)

	select {
	case <-p.Done():
	default:
		t.Fatal("Wait returned before the process exited")
	}
}

func TestProcess_KillSkipsGrace(t *testing.T) {
	skipWithoutPosix(t)

	p, err := StartProcess(context.Background(), entities.ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "trap '' TERM; echo ready; exec sleep 30"},
	}, WithShellAllowed(true), WithStopTimeout(30*time.Second))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.stdout.Len() > 0 }, 5*time.Second, 10*time.Millisecond)

	p.Stop()
	select {
	case <-p.Done():
		t.Fatal("process ignoring SIGTERM exited before the grace period")
	case <-time.After(200 * time.Millisecond):
	}

	p.Kill()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}
