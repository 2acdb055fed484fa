package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/josephlewis42/pipesh/core/fdtable"
	"github.com/josephlewis42/pipesh/core/proc"
)

// Executor runs a parsed pipeline from inside a line process.
type Executor struct {
	// Env is passed to every stage, nil means the current environment.
	Env []string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Report receives messages about stages that could not be started.
	Report io.Writer

	// Spawned is called with the pid of every stage started in the
	// background of the line process.
	Spawned func(stage Stage, pid int)

	spawn   func(argv, env []string, files []*os.File) (int, error)
	install func(t *fdtable.Table) error
	exec    func(argv, env []string) error
}

// NewExecutor creates an executor wired to the process's own streams.
func NewExecutor() *Executor {
	return &Executor{
		Env:    os.Environ(),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Report: os.Stderr,
	}
}

// Run executes p and never returns: the final stage either replaces the
// process image or the process terminates with the status for the failure.
func (e *Executor) Run(p *Pipeline) {
	err := e.Exec(p)
	if err == nil {
		err = &proc.Error{Op: proc.OpExec, Err: fmt.Errorf("pipeline returned without exec")}
	}
	proc.Fatal(e.report(), err)
}

// Exec starts every stage of p except the last in its own process, then
// installs the last stage's streams on this process and replaces its image.
// On success it doesn't return.
func (e *Executor) Exec(p *Pipeline) error {
	if p == nil || len(p.Stages) == 0 {
		return ErrEmptyPipeline
	}

	stdin := e.Stdin
	// closeStdin is set once stdin is a pipe read end the executor owns.
	closeStdin := func() {}

	last := len(p.Stages) - 1
	for _, stage := range p.Stages[:last] {
		r, err := e.startStage(stage, stdin)
		closeStdin()
		if err != nil {
			return err
		}
		stdin = r
		closeStdin = func() { r.Close() }
	}

	table, err := e.buildTable(p.Stages[last], stdin)
	if err != nil {
		return err
	}
	if err := e.doInstall(table); err != nil {
		return err
	}
	return e.doExec(p.Stages[last].Args, e.Env)
}

// startStage spawns a non-final stage writing into a new pipe and returns
// the pipe's read end. A stage whose program can't be started is reported
// and the read end returned anyway; the next stage sees end of input.
func (e *Executor) startStage(stage Stage, stdin *os.File) (*os.File, error) {
	table, err := e.buildTable(stage, stdin)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	r, w, err := proc.MakePipe()
	if err != nil {
		return nil, err
	}
	// The pipe wins over any stdout redirection of the stage.
	table.Bind(fdtable.Stdout, w)

	pid, err := e.doSpawn(stage.Args, e.Env, table.Files())
	// The write end must only live in the child, or the reader never sees
	// end of input.
	w.Close()

	switch {
	case err == nil:
		if e.Spawned != nil {
			e.Spawned(stage, pid)
		}
	case proc.ExitCode(err) == proc.ExitExec:
		fmt.Fprintf(e.report(), "pipesh: %v\n", err)
	default:
		r.Close()
		return nil, err
	}

	return r, nil
}

func (e *Executor) buildTable(stage Stage, stdin *os.File) (*fdtable.Table, error) {
	table := fdtable.New(stdin, e.Stdout, e.Stderr)
	for _, r := range stage.Redirects {
		if err := table.Apply(r); err != nil {
			table.Close()
			return nil, err
		}
	}
	return table, nil
}

func (e *Executor) report() io.Writer {
	if e.Report != nil {
		return e.Report
	}
	return os.Stderr
}

func (e *Executor) doSpawn(argv, env []string, files []*os.File) (int, error) {
	if e.spawn != nil {
		return e.spawn(argv, env, files)
	}
	return proc.Spawn(argv, env, files)
}

func (e *Executor) doInstall(t *fdtable.Table) error {
	if e.install != nil {
		return e.install(t)
	}
	return t.Install()
}

func (e *Executor) doExec(argv, env []string) error {
	if e.exec != nil {
		return e.exec(argv, env)
	}
	return proc.Exec(argv, env)
}
