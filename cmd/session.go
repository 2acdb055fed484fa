package cmd

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/josephlewis42/pipesh/core"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/spf13/cobra"
)

// session is a shell wired to the logs its configuration names.
type session struct {
	shell   *core.Shell
	ctx     context.Context
	cancel  context.CancelFunc
	toClose []io.Closer
}

func openSession(cmd *cobra.Command, cfg *config.Configuration) (*session, error) {
	s := &session{}

	appLog, err := s.openAppLog(cmd, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	events := logger.NewNopLogger()
	switch fd, err := cfg.OpenEventLog(); {
	case errors.Is(err, config.ErrDisabled):
	case err != nil:
		appLog.Printf("couldn't open event log: %v", err)
	default:
		s.toClose = append(s.toClose, fd)
		events = logger.NewJsonLinesLogRecorder(fd)
	}

	exe, err := os.Executable()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.shell, err = core.NewShell(core.Options{
		Config:      cfg,
		LineCommand: []string{exe, lineCmd.Name(), "--"},
		AppLog:      appLog,
		Events:      events.NewSession(),
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.shell.Start(s.ctx)
	return s, nil
}

func (s *session) openAppLog(cmd *cobra.Command, cfg *config.Configuration) (*log.Logger, error) {
	if verbose {
		return log.New(cmd.ErrOrStderr(), "[pipesh] ", log.LstdFlags), nil
	}

	fd, err := cfg.OpenAppLog()
	switch {
	case errors.Is(err, config.ErrDisabled):
		return log.New(io.Discard, "", 0), nil
	case err != nil:
		return nil, err
	}
	s.toClose = append(s.toClose, fd)
	return log.New(fd, "", log.LstdFlags), nil
}

// RunLine runs a single line and returns its status.
func (s *session) RunLine(line string) int {
	s.shell.RunLine(s.ctx, line)
	return s.shell.LastStatus()
}

// Run runs the interactive loop.
func (s *session) Run() error {
	return s.shell.Run(s.ctx)
}

func (s *session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var lastErr error
	for _, c := range s.toClose {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
