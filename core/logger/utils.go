package logger

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
)

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(e *Event) error

// Logger captures the events of every shell sharing the log.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	marshaler := protojson.MarshalOptions{}

	return &Logger{
		Record: func(e *Event) error {
			msg, err := e.ToProto()
			if err != nil {
				return err
			}
			entry, err := marshaler.Marshal(msg)
			if err != nil {
				return err
			}

			// Orphans are recorded from the reaper's goroutine.
			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger discards every event.
func NewNopLogger() *Logger {
	return &Logger{Record: func(*Event) error { return nil }}
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64()), now: time.Now}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
	now       func() time.Time
}

// SessionID is the identifier every event of this logger carries.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

// Record stamps the event with the time and session and stores it.
func (l *SessionLogger) Record(e *Event) error {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	e.SessionID = l.sessionID
	return l.Logger.Record(e)
}
