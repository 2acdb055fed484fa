// Package logger is the event log of the shell: one JSON object per line
// describing every line run, built-in invoked, orphan reaped and syntax
// error seen.
package logger
