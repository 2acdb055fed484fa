// Package proc holds the process primitives the pipeline engine is built on:
// spawning a stage, creating pipes, duplicating descriptors and replacing the
// current process image.
//
// Every primitive reports failure as an *Error whose Op decides the status a
// line process terminates with. Nothing here retries.
package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Op identifies the primitive that failed.
type Op int

const (
	OpExec Op = iota
	OpFork
	OpDup
	OpPipe
	OpRedirect
)

// Exit statuses of a line process that failed before or instead of running
// its program. They match the historical numbers for fork, dup, pipe and exec.
const (
	ExitExec     = 1
	ExitFork     = 2
	ExitDup      = 3
	ExitPipe     = 4
	ExitRedirect = 5
)

func (o Op) String() string {
	switch o {
	case OpExec:
		return "exec"
	case OpFork:
		return "fork"
	case OpDup:
		return "dup"
	case OpPipe:
		return "pipe"
	case OpRedirect:
		return "open"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ExitStatus is the status a process terminates with after failing in o.
func (o Op) ExitStatus() int {
	switch o {
	case OpFork:
		return ExitFork
	case OpDup:
		return ExitDup
	case OpPipe:
		return ExitPipe
	case OpRedirect:
		return ExitRedirect
	default:
		return ExitExec
	}
}

// Error is a failed process primitive.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode maps an error to the status a line process exits with.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Op.ExitStatus()
	}
	return ExitExec
}

// exit is swapped out by tests.
var exit = os.Exit

// Fatal reports err to w and terminates the calling process with the status
// for its kind. It is only for code running inside a line process, where
// there is no caller left to hand the error back to.
func Fatal(w io.Writer, err error) {
	fmt.Fprintf(w, "pipesh: %v\n", err)
	exit(ExitCode(err))
}

// MakePipe creates a close-on-exec pipe.
func MakePipe() (r, w *os.File, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, &Error{Op: OpPipe, Err: err}
	}
	r = os.NewFile(uintptr(fds[0]), "|0")
	w = os.NewFile(uintptr(fds[1]), "|1")
	return r, w, nil
}

// Dup returns a new close-on-exec descriptor numbered above the standard
// streams that refers to the same open file as fd.
func Dup(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return -1, &Error{Op: OpDup, Err: err}
	}
	return nfd, nil
}

// Spawn starts argv[0] (used as a path, never searched for) with files as
// its standard streams and returns its pid. The caller owns reaping it.
func Spawn(argv, env []string, files []*os.File) (int, error) {
	if len(argv) == 0 {
		return 0, &Error{Op: OpExec, Err: errors.New("empty argument vector")}
	}

	p, err := os.StartProcess(argv[0], argv, &os.ProcAttr{
		Env:   env,
		Files: files,
	})
	if err != nil {
		op := OpFork
		if isResolveError(err) {
			op = OpExec
		}
		return 0, &Error{Op: op, Path: argv[0], Err: unwrapPathError(err)}
	}

	pid := p.Pid
	// Drop the handle without waiting; reaping happens elsewhere.
	_ = p.Release()
	return pid, nil
}

// Exec replaces the current process image with argv[0]. It only returns on
// failure.
func Exec(argv, env []string) error {
	if len(argv) == 0 {
		return &Error{Op: OpExec, Err: errors.New("empty argument vector")}
	}
	err := unix.Exec(argv[0], argv, env)
	return &Error{Op: OpExec, Path: argv[0], Err: err}
}

// isResolveError reports whether a spawn failed because the program could
// not be loaded rather than because a process could not be created.
func isResolveError(err error) bool {
	for _, errno := range []syscall.Errno{
		syscall.ENOENT,
		syscall.EACCES,
		syscall.ENOEXEC,
		syscall.ENOTDIR,
		syscall.EISDIR,
		syscall.ELOOP,
		syscall.ENAMETOOLONG,
		syscall.ETXTBSY,
		syscall.EPERM,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
