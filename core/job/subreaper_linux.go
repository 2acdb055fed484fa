package job

import "golang.org/x/sys/unix"

// becomeSubreaper makes orphaned descendants re-parent to this process
// instead of init so the reaper can collect them.
func becomeSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}
