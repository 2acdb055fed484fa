// Package cmdtest runs built-ins against an in-memory file system.
package cmdtest

import (
	"bytes"
	"io"
	"os"
	"path"
	"time"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/spf13/afero"
)

const (
	// Home is the home and starting directory of every command.
	Home = "/home/user"
)

// Timestamp is set on every file of a deterministic file system, Go's
// reference time with a different value in each position.
var Timestamp = time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC)

// NewDeterministicFs creates a small tree with fixed timestamps:
//
//	/etc/passwd
//	/home/user/.profile
//	/home/user/notes.txt
//	/home/user/run.sh
//	/home/user/backup.tar
//	/home/user/src/main.go
func NewDeterministicFs() afero.Fs {
	fs := afero.NewMemMapFs()
	files := map[string]struct {
		content string
		mode    os.FileMode
	}{
		"/etc/passwd":            {"root:x:0:0:root:/root:/bin/sh\nuser:x:1000:1000::/home/user:/bin/sh\n", 0644},
		"/home/user/.profile":    {"export PS1\n", 0644},
		"/home/user/notes.txt":   {"buy milk\n", 0644},
		"/home/user/run.sh":      {"#!/bin/sh\necho hi\n", 0755},
		"/home/user/backup.tar":  {"", 0644},
		"/home/user/src/main.go": {"package main\n", 0644},
	}
	for name, f := range files {
		must(fs.MkdirAll(path.Dir(name), 0755))
		must(afero.WriteFile(fs, name, []byte(f.content), f.mode))
	}
	Touch(fs)
	return fs
}

// Touch sets every file in fs to Timestamp.
func Touch(fs afero.Fs) {
	must(afero.Walk(fs, "/", func(name string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return fs.Chtimes(name, Timestamp, Timestamp)
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Cmd is similar to exec.Cmd.
type Cmd struct {
	Builtin commands.BuiltinFunc
	// Arguments, the first argument should be the command name.
	Argv []string
	// Dir is the working directory, Home if empty.
	Dir string
	// Fs is the file system, a deterministic one if nil.
	Fs afero.Fs

	IsTTY bool
	Width int

	Stdout io.Writer
	Stderr io.Writer

	ExitStatus int

	// Setup is called with the file system before the command runs.
	Setup func(afero.Fs) error
	// Env is the environment the command ran in, set by Run.
	Env *commands.Env
}

func Command(builtin commands.BuiltinFunc, name string, arg ...string) *Cmd {
	return &Cmd{
		Builtin: builtin,
		Argv:    append([]string{name}, arg...),
	}
}

func (c *Cmd) CombinedOutput() ([]byte, error) {
	buf := &bytes.Buffer{}
	c.Stdout = buf
	c.Stderr = buf

	if err := c.Run(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Run runs the command to completion.
func (c *Cmd) Run() error {
	if c.Fs == nil {
		c.Fs = NewDeterministicFs()
	}
	if c.Dir == "" {
		c.Dir = Home
	}
	if c.Setup != nil {
		if err := c.Setup(c.Fs); err != nil {
			return err
		}
	}

	c.Env = &commands.Env{
		Fs:     c.Fs,
		Args:   c.Argv,
		Stdout: orDiscard(c.Stdout),
		Stderr: orDiscard(c.Stderr),
		IsTTY:  c.IsTTY,
		Width:  c.Width,
		Dir:    c.Dir,
		Home:   Home,
	}

	c.ExitStatus = c.Builtin(c.Env)
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
