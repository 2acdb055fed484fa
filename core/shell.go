package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/readline"
	"github.com/anmitsu/go-shlex"
	"github.com/fatih/color"
	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/job"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/pipeline"
	"github.com/josephlewis42/pipesh/core/proc"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const (
	EnvHome = "HOME"
	EnvUser = "USER"

	DefaultPrompt = `(\p) \$ `
)

// Options configure a Shell.
type Options struct {
	Config *config.Configuration

	// LineCommand is the argv prefix that starts a line process, the
	// tokens of the line are appended to it.
	LineCommand []string
	// Env is the environment of line processes, nil means the shell's.
	Env []string

	// Standard streams, the shell's own by default.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// AppLog receives diagnostics, discarded if nil.
	AppLog *log.Logger
	// Events receives the event log, discarded if nil.
	Events *logger.SessionLogger
	// Fs is the file system for built-ins, the OS one if nil.
	Fs afero.Fs
	// Reaper collects line processes. If nil the shell creates its own and
	// Start runs it.
	Reaper *job.Reaper
}

// Shell is the interactive command interpreter.
type Shell struct {
	config      *config.Configuration
	lineCommand []string
	env         []string

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	isTTY  bool

	appLog *log.Logger
	events *logger.SessionLogger
	fs     afero.Fs

	reaper     *job.Reaper
	ownsReaper bool
	foreground job.Foreground

	lastStatus int
	now        func() time.Time
}

// NewShell creates a shell, call Start before running lines.
func NewShell(opts Options) (*Shell, error) {
	if len(opts.LineCommand) == 0 {
		return nil, errors.New("no line process command")
	}

	s := &Shell{
		config:      opts.Config,
		lineCommand: opts.LineCommand,
		env:         opts.Env,
		stdin:       orFile(opts.Stdin, os.Stdin),
		stdout:      orFile(opts.Stdout, os.Stdout),
		stderr:      orFile(opts.Stderr, os.Stderr),
		appLog:      opts.AppLog,
		events:      opts.Events,
		fs:          opts.Fs,
		reaper:      opts.Reaper,
		now:         time.Now,
	}

	if s.config == nil {
		s.config = config.Default(config.DefaultDir())
	}
	if s.env == nil {
		s.env = os.Environ()
	}
	if s.appLog == nil {
		s.appLog = log.New(io.Discard, "", 0)
	}
	if s.events == nil {
		s.events = logger.NewNopLogger().NewSession()
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}

	fd := s.stdout.Fd()
	s.isTTY = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)

	if s.reaper == nil {
		s.reaper = job.NewReaper(s.appLog)
		s.reaper.Orphan = s.recordOrphan
		s.ownsReaper = true
	}

	return s, nil
}

func orFile(f, fallback *os.File) *os.File {
	if f != nil {
		return f
	}
	return fallback
}

// Start begins reaping children and relaying interrupts to the running
// line until ctx is done. Only one started shell may exist per process.
func (s *Shell) Start(ctx context.Context) {
	if s.ownsReaper {
		go s.reaper.Run(ctx)
	}

	stop := s.foreground.Forward(func(err error) {
		s.appLog.Printf("relaying signal: %v", err)
	}, os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
}

// LastStatus is the status of the last line or built-in.
func (s *Shell) LastStatus() int {
	return s.lastStatus
}

// Prompt renders the configured prompt template.
func (s *Shell) Prompt() string {
	prompt := s.config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	wd, _ := os.Getwd()
	if home := homeDir(); home != "" && (wd == home || strings.HasPrefix(wd, home+"/")) {
		wd = "~" + strings.TrimPrefix(wd, home)
	}

	sign := "$"
	if os.Geteuid() == 0 {
		sign = "#"
	}

	prompt = strings.NewReplacer(
		`\p`, strconv.Itoa(os.Getpid()),
		`\u`, userName(),
		`\w`, wd,
		`\$`, sign,
	).Replace(prompt)

	if commands.ShouldColor(s.config.Color, s.isTTY) {
		c := color.New(color.FgGreen, color.Bold)
		c.EnableColor()
		return c.Sprint(prompt)
	}
	return prompt
}

func homeDir() string {
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func userName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv(EnvUser)
}

// Run reads and runs lines until the input ends or the exit keyword is
// entered.
func (s *Shell) Run(ctx context.Context) error {
	cfg := &readline.Config{
		Prompt:      s.Prompt(),
		HistoryFile: s.config.HistoryPath(),
		Stdin:       s.stdin,
		Stdout:      s.stdout,
		Stderr:      s.stderr,
		FuncIsTerminal: func() bool {
			return s.isTTY && isatty.IsTerminal(s.stdin.Fd())
		},
		InterruptPrompt: "^C",
		EOFPrompt:       s.config.ExitKeyword,
	}
	if err := cfg.Init(); err != nil {
		return err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			return nil // Input closed, quit.

		case err == readline.ErrInterrupt:
			continue // Line is discarded.

		case err != nil:
			s.appLog.Printf("Error readline: %v", err)
			return err
		}

		if quit := s.RunLine(ctx, line); quit {
			return nil
		}
	}
}

// RunLine runs one line and reports whether the shell should quit.
func (s *Shell) RunLine(ctx context.Context, line string) (quit bool) {
	tokens, err := shlex.Split(line, true)
	if err != nil {
		s.syntaxError([]string{line}, err)
		return false
	}

	switch {
	case len(tokens) == 0:
		return false // empty line

	case tokens[0] == s.config.ExitKeyword:
		s.lastStatus = 0
		return true

	case s.config.BuiltinEnabled(tokens[0]):
		if builtin, ok := commands.AllBuiltins[tokens[0]]; ok {
			s.runBuiltin(builtin, tokens)
			return false
		}
	}

	p, err := pipeline.Parse(tokens)
	if err != nil {
		s.syntaxError(tokens, err)
		return false
	}

	s.runPipeline(ctx, p, tokens)
	return false
}

func (s *Shell) syntaxError(tokens []string, err error) {
	fmt.Fprintf(s.stderr, "pipesh: %v\n", err)
	s.lastStatus = 2
	s.record(&logger.Event{
		Kind:    logger.KindSyntaxError,
		Command: tokens,
		Error:   err.Error(),
	})
}

func (s *Shell) runBuiltin(builtin commands.BuiltinFunc, tokens []string) {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(s.stderr, "%s: %v\n", tokens[0], err)
		s.lastStatus = 1
		return
	}

	width := 0
	if s.isTTY {
		width = readline.GetScreenWidth()
	}

	env := &commands.Env{
		Fs:        s.fs,
		Args:      tokens,
		Stdout:    s.stdout,
		Stderr:    s.stderr,
		IsTTY:     s.isTTY,
		Width:     width,
		ColorMode: s.config.Color,
		Dir:       wd,
		Home:      homeDir(),
		Chdir:     os.Chdir,
	}

	start := s.now()
	s.lastStatus = builtin(env)
	s.record(&logger.Event{
		Kind:       logger.KindBuiltin,
		Command:    tokens,
		ExitStatus: s.lastStatus,
		Duration:   s.now().Sub(start),
	})
}

// runPipeline hands the line to a fresh line process and waits for it.
func (s *Shell) runPipeline(ctx context.Context, p *pipeline.Pipeline, tokens []string) {
	argv := append(append([]string{}, s.lineCommand...), tokens...)

	start := s.now()
	pid, err := s.reaper.Start(func() (int, error) {
		return proc.Spawn(argv, s.env, []*os.File{s.stdin, s.stdout, s.stderr})
	})
	if err != nil {
		fmt.Fprintf(s.stderr, "pipesh: %v\n", err)
		s.lastStatus = proc.ExitCode(err)
		s.record(&logger.Event{
			Kind:       logger.KindLine,
			Command:    tokens,
			ExitStatus: s.lastStatus,
			Error:      err.Error(),
		})
		return
	}

	s.foreground.Set(pid)
	status, err := s.reaper.Wait(ctx, pid)
	s.foreground.Clear()
	if err != nil {
		s.appLog.Printf("waiting for %d (%s): %v", pid, p, err)
		s.lastStatus = 1
		return
	}

	s.lastStatus = status.Code()
	if s.config.ReportStatus {
		fmt.Fprintln(s.stdout, status)
	}

	event := &logger.Event{
		Kind:       logger.KindLine,
		Command:    tokens,
		Pid:        pid,
		ExitStatus: status.Code(),
		Duration:   s.now().Sub(start),
	}
	if status.Signaled() {
		event.Signal = unix.SignalName(status.Signal())
	}
	s.record(event)
}

func (s *Shell) recordOrphan(status job.Status) {
	event := &logger.Event{
		Kind:       logger.KindOrphan,
		Pid:        status.Pid,
		ExitStatus: status.Code(),
	}
	if status.Signaled() {
		event.Signal = unix.SignalName(status.Signal())
	}
	s.record(event)
}

func (s *Shell) record(e *logger.Event) {
	if err := s.events.Record(e); err != nil {
		s.appLog.Printf("recording %s event: %v", e.Kind, err)
	}
}
