package job

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotStarted is returned when waiting on a pid the reaper didn't start.
var ErrNotStarted = errors.New("process wasn't started by this reaper")

// Reaper collects every child of the shell. Processes started through it
// have their status delivered to Wait; anything else that exits (pipeline
// stages orphaned when a line process replaced its image) goes to Orphan.
//
// Nothing else in the process may wait on children while a Reaper runs.
type Reaper struct {
	// Orphan is called for children nobody is waiting for.
	Orphan func(Status)
	// Logger receives diagnostics, may be nil.
	Logger *log.Logger

	mu      sync.Mutex
	waiters map[int]chan Status
}

// NewReaper creates a reaper, call Run to start collecting.
func NewReaper(logger *log.Logger) *Reaper {
	return &Reaper{
		Logger:  logger,
		waiters: make(map[int]chan Status),
	}
}

// Run collects children until ctx is done. It also makes the shell the
// subreaper for its descendants where the platform supports it.
func (r *Reaper) Run(ctx context.Context) {
	if err := becomeSubreaper(); err != nil {
		r.logf("couldn't become child subreaper: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGCHLD)
	defer signal.Stop(sigs)

	// Children may have exited before the handler was installed.
	r.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			r.Sweep()
		}
	}
}

// Start calls start, which must create exactly one child and return its pid,
// and registers the child before any sweep can hand its status out.
func (r *Reaper) Start(start func() (int, error)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid, err := start()
	if err != nil {
		return 0, err
	}
	if r.waiters == nil {
		r.waiters = make(map[int]chan Status)
	}
	r.waiters[pid] = make(chan Status, 1)
	return pid, nil
}

// Wait blocks until the child pid started by Start ends.
func (r *Reaper) Wait(ctx context.Context, pid int) (Status, error) {
	r.mu.Lock()
	ch, ok := r.waiters[pid]
	r.mu.Unlock()
	if !ok {
		return Status{}, ErrNotStarted
	}

	select {
	case status := <-ch:
		r.mu.Lock()
		delete(r.waiters, pid)
		r.mu.Unlock()
		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Sweep collects every child that has already ended without blocking.
func (r *Reaper) Sweep() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD, pid == 0:
			return
		case err != nil:
			r.logf("wait4: %v", err)
			return
		}

		if !ws.Exited() && !ws.Signaled() {
			// Stopped or continued, keep waiting for the real end.
			continue
		}
		r.deliver(Status{Pid: pid, Wait: ws})
	}
}

func (r *Reaper) deliver(status Status) {
	r.mu.Lock()
	ch, ok := r.waiters[status.Pid]
	r.mu.Unlock()

	if ok {
		ch <- status
		return
	}

	r.logf("reaped orphan: %s", status)
	if r.Orphan != nil {
		r.Orphan(status)
	}
}

func (r *Reaper) logf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
