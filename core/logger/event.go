package logger

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Kind is the type of an event.
type Kind string

const (
	// KindLine is a line that ran as a pipeline.
	KindLine Kind = "line"
	// KindBuiltin is a built-in run inside the shell.
	KindBuiltin Kind = "builtin"
	// KindOrphan is a pipeline stage reaped after its line ended.
	KindOrphan Kind = "orphan"
	// KindSyntaxError is a line rejected before anything ran.
	KindSyntaxError Kind = "syntax_error"
)

// Event is one entry of the event log.
type Event struct {
	Time      time.Time
	SessionID string
	Kind      Kind
	Command   []string
	Pid       int
	// ExitStatus is the status the process exited with, 128+signal when
	// it was killed.
	ExitStatus int
	// Signal names the signal that killed the process, if any.
	Signal   string
	Duration time.Duration
	Error    string
}

const (
	fieldTime       = "time"
	fieldSession    = "session"
	fieldKind       = "kind"
	fieldCommand    = "command"
	fieldPid        = "pid"
	fieldExitStatus = "exit_status"
	fieldSignal     = "signal"
	fieldDuration   = "duration_ms"
	fieldError      = "error"
)

// ToProto converts the event to its wire form, empty fields are left out.
func (e *Event) ToProto() (*structpb.Struct, error) {
	fields := map[string]interface{}{
		fieldTime: e.Time.UTC().Format(time.RFC3339Nano),
		fieldKind: string(e.Kind),
	}
	if e.SessionID != "" {
		fields[fieldSession] = e.SessionID
	}
	if len(e.Command) > 0 {
		command := make([]interface{}, len(e.Command))
		for i, word := range e.Command {
			command[i] = word
		}
		fields[fieldCommand] = command
	}
	if e.Pid != 0 {
		fields[fieldPid] = e.Pid
	}
	if e.Kind != KindSyntaxError {
		fields[fieldExitStatus] = e.ExitStatus
	}
	if e.Signal != "" {
		fields[fieldSignal] = e.Signal
	}
	if e.Duration > 0 {
		fields[fieldDuration] = e.Duration.Milliseconds()
	}
	if e.Error != "" {
		fields[fieldError] = e.Error
	}

	return structpb.NewStruct(fields)
}

// EventFromProto converts the wire form back to an event.
func EventFromProto(s *structpb.Struct) (*Event, error) {
	fields := s.GetFields()
	out := &Event{
		SessionID: fields[fieldSession].GetStringValue(),
		Kind:      Kind(fields[fieldKind].GetStringValue()),
		Pid:       int(fields[fieldPid].GetNumberValue()),
		// Statuses are small integers, float64 holds them exactly.
		ExitStatus: int(fields[fieldExitStatus].GetNumberValue()),
		Signal:     fields[fieldSignal].GetStringValue(),
		Duration:   time.Duration(fields[fieldDuration].GetNumberValue()) * time.Millisecond,
		Error:      fields[fieldError].GetStringValue(),
	}

	if out.Kind == "" {
		return nil, fmt.Errorf("event without %q", fieldKind)
	}

	if ts := fields[fieldTime].GetStringValue(); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", fieldTime, err)
		}
		out.Time = parsed
	}

	for _, word := range fields[fieldCommand].GetListValue().GetValues() {
		out.Command = append(out.Command, word.GetStringValue())
	}

	return out, nil
}
