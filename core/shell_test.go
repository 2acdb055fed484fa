package core

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/job"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/pipeline"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// lineHelperEnv makes the test binary act as the shell's line process.
const lineHelperEnv = "CORE_TEST_LINE_PROCESS"

var testReaper *job.Reaper

func TestMain(m *testing.M) {
	if os.Getenv(lineHelperEnv) != "" {
		p, err := pipeline.Parse(os.Args[1:])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(100)
		}
		pipeline.NewExecutor().Run(p)
	}

	// One reaper for the whole process.
	testReaper = job.NewReaper(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go testReaper.Run(ctx)

	code := m.Run()
	cancel()
	os.Exit(code)
}

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

type testShell struct {
	*Shell
	stdout *os.File
	stderr *os.File
	events *bytes.Buffer
}

func (ts *testShell) output(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := ioutil.ReadFile(f.Name())
	require.NoError(t, err)
	return string(data)
}

func (ts *testShell) Stdout(t *testing.T) string { return ts.output(t, ts.stdout) }

func (ts *testShell) Stderr(t *testing.T) string { return ts.output(t, ts.stderr) }

func (ts *testShell) Events(t *testing.T) []*logger.Event {
	t.Helper()
	var out []*logger.Event
	require.NoError(t, logger.ReadJSONLinesLog(bytes.NewReader(ts.events.Bytes()), func(e *logger.Event) {
		out = append(out, e)
	}))
	return out
}

func newTestShell(t *testing.T, mutate func(*config.Configuration, *Options)) *testShell {
	t.Helper()

	dir := t.TempDir()
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	stdin, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() {
		stdout.Close()
		stderr.Close()
		stdin.Close()
	})

	cfg := config.Default(dir)
	cfg.Color = "never"
	events := &bytes.Buffer{}

	opts := Options{
		Config:      cfg,
		LineCommand: []string{os.Args[0]},
		Env:         append(os.Environ(), lineHelperEnv+"=1"),
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
		Events:      logger.NewJsonLinesLogRecorder(events).NewSession(),
		Fs:          afero.NewMemMapFs(),
		Reaper:      testReaper,
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}

	s, err := NewShell(opts)
	require.NoError(t, err)
	return &testShell{Shell: s, stdout: stdout, stderr: stderr, events: events}
}

func runLine(t *testing.T, s *testShell, line string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	quit := s.RunLine(ctx, line)
	require.NoError(t, ctx.Err(), "line hung: %s", line)
	return quit
}

var childRegex = regexp.MustCompile(`Child (\d+) exited with status (\d+)`)

func TestNewShellNeedsLineCommand(t *testing.T) {
	_, err := NewShell(Options{})
	assert.Error(t, err)
}

func TestRunLineEmpty(t *testing.T) {
	s := newTestShell(t, nil)

	for _, line := range []string{"", "   ", "\t"} {
		assert.False(t, runLine(t, s, line))
	}
	assert.Empty(t, s.Stdout(t))
	assert.Empty(t, s.Stderr(t))
	assert.Empty(t, s.Events(t))
}

func TestRunLineExitKeyword(t *testing.T) {
	s := newTestShell(t, nil)
	assert.True(t, runLine(t, s, "exit"))
	assert.True(t, runLine(t, s, "exit now please"))
	assert.False(t, runLine(t, s, "quit"))

	custom := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.ExitKeyword = "quit"
	})
	assert.True(t, runLine(t, custom, "quit"))
}

func TestRunLinePipeline(t *testing.T) {
	echo := lookPath(t, "echo")
	tr := lookPath(t, "tr")

	s := newTestShell(t, nil)
	runLine(t, s, fmt.Sprintf("%s hello | %s a-z A-Z", echo, tr))

	out := s.Stdout(t)
	assert.True(t, strings.HasPrefix(out, "HELLO\n"), out)

	match := childRegex.FindStringSubmatch(out)
	require.NotNil(t, match, out)
	assert.Equal(t, "0", match[2])
	assert.Equal(t, 0, s.LastStatus())

	events := s.Events(t)
	require.Len(t, events, 1)
	assert.Equal(t, logger.KindLine, events[0].Kind)
	assert.Equal(t, []string{echo, "hello", "|", tr, "a-z", "A-Z"}, events[0].Command)
	assert.Equal(t, match[1], strconv.Itoa(events[0].Pid))
}

func TestRunLineQuoting(t *testing.T) {
	echo := lookPath(t, "echo")

	s := newTestShell(t, nil)
	runLine(t, s, fmt.Sprintf(`%s "a  b" 'c|d'`, echo))
	assert.True(t, strings.HasPrefix(s.Stdout(t), "a  b c|d\n"), s.Stdout(t))
}

func TestRunLineExitStatus(t *testing.T) {
	sh := lookPath(t, "sh")

	s := newTestShell(t, nil)
	runLine(t, s, sh+" -c 'exit 3'")

	assert.Equal(t, 3, s.LastStatus())
	assert.Regexp(t, `Child \d+ exited with status 3\n`, s.Stdout(t))
}

func TestRunLineSignaled(t *testing.T) {
	sh := lookPath(t, "sh")

	s := newTestShell(t, nil)
	runLine(t, s, sh+` -c 'kill -TERM $$'`)

	assert.Equal(t, 128+15, s.LastStatus())
	assert.Regexp(t, `Child \d+ terminated by signal 15 \(terminated\)\n`, s.Stdout(t))

	events := s.Events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "SIGTERM", events[0].Signal)
}

func TestRunLineInterrupt(t *testing.T) {
	sleep := lookPath(t, "sleep")
	echo := lookPath(t, "echo")

	s := newTestShell(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	go func() {
		for s.foreground.Pid() == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		// Let the line process get to sleep.
		time.Sleep(200 * time.Millisecond)
		unix.Kill(os.Getpid(), unix.SIGINT)
	}()
	assert.False(t, runLine(t, s, sleep+" 30"))

	assert.Equal(t, 128+2, s.LastStatus())
	assert.Regexp(t, `Child \d+ terminated by signal 2 \(interrupt\)\n`, s.Stdout(t))
	assert.Zero(t, s.foreground.Pid())

	// The shell keeps going.
	runLine(t, s, echo+" alive")
	assert.Equal(t, 0, s.LastStatus())
	assert.Regexp(t, `alive\nChild \d+ exited with status 0\n$`, s.Stdout(t))
}

func TestRunLineNoStatusReport(t *testing.T) {
	echo := lookPath(t, "echo")

	s := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.ReportStatus = false
	})
	runLine(t, s, echo+" quiet")
	assert.Equal(t, "quiet\n", s.Stdout(t))
}

func TestRunLineRedirect(t *testing.T) {
	echo := lookPath(t, "echo")
	cat := lookPath(t, "cat")
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	s := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.ReportStatus = false
	})
	runLine(t, s, fmt.Sprintf("%s first > %s", echo, out))
	runLine(t, s, fmt.Sprintf("%s second >> %s", echo, out))
	runLine(t, s, fmt.Sprintf("%s < %s", cat, out))

	assert.Equal(t, "first\nsecond\n", s.Stdout(t))
}

func TestRunLineMissingProgram(t *testing.T) {
	s := newTestShell(t, nil)
	runLine(t, s, "/does/not/exist arg")

	assert.Equal(t, 1, s.LastStatus())
	assert.Contains(t, s.Stderr(t), "exec /does/not/exist")
	assert.Regexp(t, `Child \d+ exited with status 1\n`, s.Stdout(t))
}

func TestRunLineNoPathSearch(t *testing.T) {
	s := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.Builtins = nil
	})
	// ls is neither a built-in here nor an absolute path.
	runLine(t, s, "ls")
	assert.Equal(t, 1, s.LastStatus())
	assert.Contains(t, s.Stderr(t), "exec ls")
}

func TestRunLineQuotedOperator(t *testing.T) {
	echo := lookPath(t, "echo")

	// Quotes group words, they don't hide operators.
	s := newTestShell(t, nil)
	runLine(t, s, echo+" '|' x")

	assert.Equal(t, 1, s.LastStatus())
	assert.Contains(t, s.Stderr(t), "exec x")
}

func TestRunLineSyntaxErrors(t *testing.T) {
	cases := map[string]string{
		"/bin/cat |":     "missing command",
		"| /bin/cat":     "missing command",
		"/bin/ls >":      "missing redirection target",
		"/bin/ls 1> out": "unsupported operator",
		`/bin/echo "abc`: "",
	}

	for line, msg := range cases {
		line, msg := line, msg
		t.Run(line, func(t *testing.T) {
			s := newTestShell(t, nil)
			assert.False(t, runLine(t, s, line))

			assert.Equal(t, 2, s.LastStatus())
			assert.Contains(t, s.Stderr(t), "pipesh: ")
			assert.Contains(t, s.Stderr(t), msg)
			assert.Empty(t, s.Stdout(t), "nothing may run")

			events := s.Events(t)
			require.Len(t, events, 1)
			assert.Equal(t, logger.KindSyntaxError, events[0].Kind)
		})
	}
}

func TestRunLineBuiltins(t *testing.T) {
	s := newTestShell(t, func(_ *config.Configuration, opts *Options) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/data/a.txt", nil, 0644))
		require.NoError(t, afero.WriteFile(fs, "/data/b.txt", nil, 0644))
		opts.Fs = fs
	})

	runLine(t, s, "ls /data")
	assert.Equal(t, 0, s.LastStatus())

	runLine(t, s, "rm /data/a.txt")
	runLine(t, s, "ls /data")

	runLine(t, s, "rm")
	assert.Equal(t, 1, s.LastStatus())

	// Built-ins don't support operators, they're plain words.
	runLine(t, s, "ls /data > /data/listing")

	assert.Equal(t, 1, s.LastStatus())

	assert.Equal(t, "a.txt\nb.txt\nb.txt\nERROR: No File Specified\n/data:\nb.txt\n", s.Stdout(t))
	assert.Contains(t, s.Stderr(t), `ls: cannot access ">"`)
	assert.Contains(t, s.Stderr(t), `ls: cannot access "/data/listing"`)

	events := s.Events(t)
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, logger.KindBuiltin, e.Kind)
	}
	assert.Equal(t, 1, events[3].ExitStatus)
}

func TestRunLineCd(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(orig) })

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	s := newTestShell(t, func(_ *config.Configuration, opts *Options) {
		opts.Fs = afero.NewOsFs()
	})

	runLine(t, s, "cd "+dir)
	assert.Equal(t, 0, s.LastStatus())
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, dir, wd)

	// Line processes start in the new directory.
	pwd := lookPath(t, "pwd")
	runLine(t, s, pwd)
	assert.True(t, strings.HasPrefix(s.Stdout(t), dir+"\n"), s.Stdout(t))

	runLine(t, s, "cd "+filepath.Join(dir, "missing"))
	assert.Equal(t, 1, s.LastStatus())
}

func TestPrompt(t *testing.T) {
	s := newTestShell(t, nil)
	assert.Equal(t, fmt.Sprintf("(%d) %s ", os.Getpid(), promptSign()), s.Prompt())

	custom := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.Prompt = `\u@\w\$ `
	})
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Setenv(EnvHome, wd)
	assert.True(t, strings.HasPrefix(custom.Prompt(), userName()+"@~"), custom.Prompt())
	assert.True(t, strings.HasSuffix(custom.Prompt(), promptSign()+" "), custom.Prompt())

	colored := newTestShell(t, func(cfg *config.Configuration, _ *Options) {
		cfg.Color = "always"
	})
	assert.Contains(t, colored.Prompt(), "\x1b[")
}

func promptSign() string {
	if os.Geteuid() == 0 {
		return "#"
	}
	return "$"
}
