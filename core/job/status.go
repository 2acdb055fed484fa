package job

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Status is how a child process ended.
type Status struct {
	Pid  int
	Wait unix.WaitStatus
}

func (s Status) Exited() bool { return s.Wait.Exited() }

func (s Status) ExitStatus() int { return s.Wait.ExitStatus() }

func (s Status) Signaled() bool { return s.Wait.Signaled() }

func (s Status) Signal() unix.Signal { return s.Wait.Signal() }

// Code is the exit status, or 128+signal for signaled processes as shells
// conventionally report it.
func (s Status) Code() int {
	if s.Signaled() {
		return 128 + int(s.Signal())
	}
	return s.ExitStatus()
}

func (s Status) String() string {
	if s.Signaled() {
		return fmt.Sprintf("Child %d terminated by signal %d (%s)", s.Pid, int(s.Signal()), s.Signal())
	}
	return fmt.Sprintf("Child %d exited with status %d", s.Pid, s.ExitStatus())
}
