package fdtable

import (
	"fmt"
	"os"
)

// Slot is one of the three standard stream descriptors.
type Slot int

const (
	Stdin  Slot = 0
	Stdout Slot = 1
	Stderr Slot = 2
)

func (s Slot) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("fd%d", int(s))
	}
}

// Kind is a kind of redirection.
type Kind int

const (
	StdoutTruncate Kind = iota
	StdoutAppend
	StderrTruncate
	StdoutStderrTruncate
	StdinRead
)

// Mode new files are created with.
const createMode os.FileMode = 0700

// Flags returns the open(2) flags used for the redirection target.
func (k Kind) Flags() int {
	switch k {
	case StdoutAppend:
		return os.O_CREATE | os.O_APPEND | os.O_WRONLY
	case StdinRead:
		return os.O_RDONLY
	default:
		return os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	}
}

// Slots returns the standard streams the redirection rebinds.
func (k Kind) Slots() []Slot {
	switch k {
	case StdoutTruncate, StdoutAppend:
		return []Slot{Stdout}
	case StderrTruncate:
		return []Slot{Stderr}
	case StdoutStderrTruncate:
		return []Slot{Stdout, Stderr}
	default:
		return []Slot{Stdin}
	}
}

func (k Kind) String() string {
	switch k {
	case StdoutTruncate:
		return ">"
	case StdoutAppend:
		return ">>"
	case StderrTruncate:
		return "2>"
	case StdoutStderrTruncate:
		return "&>"
	case StdinRead:
		return "<"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Redirect is a single redirection directive.
type Redirect struct {
	Kind Kind
	Path string
}

func (r Redirect) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Path)
}
