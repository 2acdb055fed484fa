package job

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/josephlewis42/pipesh/core/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

// All tests share one reaper, two reapers in a process would steal each
// other's children.
var (
	testReaper *Reaper
	orphans    = make(chan Status, 16)
)

func TestMain(m *testing.M) {
	testReaper = NewReaper(nil)
	testReaper.Orphan = func(s Status) {
		select {
		case orphans <- s:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go testReaper.Run(ctx)
	// Give Run a moment to mark the process as a subreaper.
	time.Sleep(100 * time.Millisecond)

	code := m.Run()
	cancel()
	os.Exit(code)
}

func spawn(t *testing.T, r *Reaper, argv ...string) int {
	t.Helper()
	pid, err := r.Start(func() (int, error) {
		return proc.Spawn(argv, os.Environ(), []*os.File{os.Stdin, os.Stdout, os.Stderr})
	})
	require.NoError(t, err)
	return pid
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStatusString(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("wait status encoding is linux specific")
	}

	exited := Status{Pid: 42, Wait: unix.WaitStatus(3 << 8)}
	assert.True(t, exited.Exited())
	assert.Equal(t, 3, exited.Code())
	assert.Equal(t, "Child 42 exited with status 3", exited.String())

	signaled := Status{Pid: 43, Wait: unix.WaitStatus(unix.SIGINT)}
	assert.True(t, signaled.Signaled())
	assert.Equal(t, 130, signaled.Code())
	assert.Equal(t, "Child 43 terminated by signal 2 (interrupt)", signaled.String())
}

func TestForegroundTracking(t *testing.T) {
	var fg Foreground
	assert.Equal(t, 0, fg.Pid())

	fg.Set(1234)
	assert.Equal(t, 1234, fg.Pid())

	fg.Clear()
	assert.Equal(t, 0, fg.Pid())
}

func TestRelayWithoutForeground(t *testing.T) {
	var fg Foreground
	assert.NoError(t, fg.Relay(os.Interrupt))

	fg.Set(-1)
	assert.NoError(t, fg.Relay(os.Interrupt))
}

func TestReaperWait(t *testing.T) {
	r := testReaper
	truePath := lookPath(t, "true")
	falsePath := lookPath(t, "false")

	okPid := spawn(t, r, truePath)
	failPid := spawn(t, r, falsePath)

	status, err := r.Wait(waitCtx(t), okPid)
	require.NoError(t, err)
	assert.Equal(t, okPid, status.Pid)
	assert.True(t, status.Exited())
	assert.Equal(t, 0, status.ExitStatus())

	status, err = r.Wait(waitCtx(t), failPid)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ExitStatus())
}

func TestReaperWaitUnknown(t *testing.T) {
	r := NewReaper(nil)
	_, err := r.Wait(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestReaperStartError(t *testing.T) {
	r := NewReaper(nil)
	_, err := r.Start(func() (int, error) {
		return proc.Spawn([]string{"/does/not/exist"}, nil, []*os.File{os.Stdin, os.Stdout, os.Stderr})
	})
	assert.Equal(t, proc.ExitExec, proc.ExitCode(err))
}

func TestRelayInterrupt(t *testing.T) {
	r := testReaper
	sleep := lookPath(t, "sleep")

	var fg Foreground
	pid := spawn(t, r, sleep, "30")
	fg.Set(pid)

	require.NoError(t, fg.Relay(os.Interrupt))

	status, err := r.Wait(waitCtx(t), pid)
	require.NoError(t, err)
	fg.Clear()

	assert.True(t, status.Signaled(), "expected a signaled status, got %s", status)
	assert.Equal(t, unix.SIGINT, status.Signal())
}

func TestForward(t *testing.T) {
	r := testReaper
	sleep := lookPath(t, "sleep")

	var fg Foreground
	stop := fg.Forward(func(err error) { t.Error(err) }, unix.SIGUSR1)
	defer stop()

	pid := spawn(t, r, sleep, "30")
	fg.Set(pid)

	// The test process receives the signal, the handler passes it on.
	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))

	status, err := r.Wait(waitCtx(t), pid)
	require.NoError(t, err)
	assert.True(t, status.Signaled())
	assert.Equal(t, unix.SIGUSR1, status.Signal())
}

func TestReaperCollectsOrphans(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("child subreapers are linux specific")
	}
	sh := lookPath(t, "sh")
	sleep := lookPath(t, "sleep")

	r := testReaper

	pid := spawn(t, r, sh, "-c", sleep+" 0.2 & exit 0")
	status, err := r.Wait(waitCtx(t), pid)
	require.NoError(t, err)
	assert.Equal(t, 0, status.ExitStatus())

	select {
	case orphan := <-orphans:
		assert.NotEqual(t, pid, orphan.Pid)
		assert.True(t, orphan.Exited())
	case <-time.After(10 * time.Second):
		t.Fatal("orphaned child was never reaped")
	}
}
