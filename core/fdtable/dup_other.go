//go:build !linux

package fdtable

import "golang.org/x/sys/unix"

// dupOnto makes newfd refer to oldfd's file, clearing close-on-exec.
func dupOnto(oldfd int, newfd Slot) error {
	return unix.Dup2(oldfd, int(newfd))
}

func closeFd(fd int) {
	_ = unix.Close(fd)
}
