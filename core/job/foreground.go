// Package job tracks the processes the shell starts: which one is in the
// foreground, relaying interrupts to it, and collecting exit statuses.
package job

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Foreground records the pid of the process the shell is waiting on. Only
// the interactive loop writes it; signal relays read it.
//
// Only the line process is tracked. Stages it spawned before replacing its
// image are reached through their pipes, not through the relay.
type Foreground struct {
	pid atomic.Int64
}

// Set marks pid as the foreground process.
func (f *Foreground) Set(pid int) {
	f.pid.Store(int64(pid))
}

// Clear forgets the foreground process.
func (f *Foreground) Clear() {
	f.pid.Store(0)
}

// Pid returns the foreground pid or 0.
func (f *Foreground) Pid() int {
	return int(f.pid.Load())
}

// Relay sends sig to the foreground process. It does nothing when there is
// none.
func (f *Foreground) Relay(sig os.Signal) error {
	pid := f.Pid()
	if pid <= 0 {
		return nil
	}

	ssig, ok := sig.(syscall.Signal)
	if !ok {
		ssig = unix.SIGINT
	}
	return unix.Kill(pid, ssig)
}

// Forward catches sigs (interrupt if none are given) and relays each one to
// the foreground process. Returns a function to deregister the handler.
func (f *Foreground) Forward(onError func(error), sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range ch {
			if err := f.Relay(sig); err != nil && onError != nil {
				onError(err)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
		<-done
	}
}
