// Package fdtable binds the standard streams of a pipeline stage and applies
// redirections to them.
//
// A Table is built for every stage. Non-final stages hand Files() to a
// spawned process; the final stage calls Install() to move the bindings onto
// descriptors 0, 1 and 2 of the running process right before its image is
// replaced.
package fdtable

import (
	"os"

	"github.com/josephlewis42/pipesh/core/proc"
)

// Table holds the standard stream bindings of one stage.
type Table struct {
	files [3]*os.File

	// owned holds files opened by redirections, they're closed with the
	// table.
	owned []*os.File
}

// New creates a table bound to the given streams. The table does not own
// them.
func New(stdin, stdout, stderr *os.File) *Table {
	return &Table{files: [3]*os.File{stdin, stdout, stderr}}
}

// Get returns the file bound to slot.
func (t *Table) Get(slot Slot) *os.File {
	return t.files[slot]
}

// Files returns the bindings in descriptor order.
func (t *Table) Files() []*os.File {
	return []*os.File{t.files[Stdin], t.files[Stdout], t.files[Stderr]}
}

// Bind rebinds slot to a file the table doesn't own.
func (t *Table) Bind(slot Slot, f *os.File) {
	old := t.files[slot]
	t.files[slot] = f
	t.release(old)
}

// Apply opens the redirection target and binds it to every slot the
// redirection names. Nothing changes if the target can't be opened.
func (t *Table) Apply(r Redirect) error {
	f, err := os.OpenFile(r.Path, r.Kind.Flags(), createMode)
	if err != nil {
		return &proc.Error{Op: proc.OpRedirect, Path: r.Path, Err: unwrap(err)}
	}

	t.owned = append(t.owned, f)
	for _, slot := range r.Kind.Slots() {
		t.Bind(slot, f)
	}
	return nil
}

// release closes f if the table owns it and no slot refers to it anymore.
func (t *Table) release(f *os.File) {
	if f == nil {
		return
	}
	for _, bound := range t.files {
		if bound == f {
			return
		}
	}
	for i, o := range t.owned {
		if o == f {
			t.owned = append(t.owned[:i], t.owned[i+1:]...)
			f.Close()
			return
		}
	}
}

// Close closes every file the table opened.
func (t *Table) Close() error {
	var lastErr error
	for _, f := range t.owned {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	t.owned = nil
	return lastErr
}

// Install duplicates the bindings onto descriptors 0, 1 and 2 of the calling
// process and closes the table's own copies.
func (t *Table) Install() error {
	var fds [3]int
	for slot, f := range t.files {
		fds[slot] = int(f.Fd())
	}

	// A binding that currently lives in another standard slot would be
	// overwritten before it's copied, so move it out of the way first.
	var moved []int
	defer func() {
		for _, fd := range moved {
			closeFd(fd)
		}
	}()
	for slot, fd := range fds {
		if fd < 3 && fd != slot {
			nfd, err := proc.Dup(fd)
			if err != nil {
				return err
			}
			moved = append(moved, nfd)
			fds[slot] = nfd
		}
	}

	for slot, fd := range fds {
		if fd == slot {
			continue
		}
		if err := dupOnto(fd, Slot(slot)); err != nil {
			return &proc.Error{Op: proc.OpDup, Err: err}
		}
	}

	return t.Close()
}

func unwrap(err error) error {
	if pathErr, ok := err.(*os.PathError); ok {
		return pathErr.Err
	}
	return err
}
