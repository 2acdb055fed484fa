package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(e *Event)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var msg structpb.Struct
		if err := protojson.Unmarshal(rawEntry, &msg); err != nil {
			return err
		}

		event, err := EventFromProto(&msg)
		if err != nil {
			return err
		}

		handler(event)
	}
	return nil
}

func NewBugReport() *BugReport {
	return &BugReport{
		SyntaxErrors:   NewPathCounter("command", "error"),
		FailedStarts:   NewPathCounter("command", "error"),
		UnreapedStages: NewPathCounter("status"),
	}
}

// BugReport pulls events that point at problems with the shell itself or
// with the lines people type.
type BugReport struct {
	LogEntries int `json:"log_entries"`

	SyntaxErrors   *PathCounter `json:"syntax_errors"`
	FailedStarts   *PathCounter `json:"failed_starts"`
	UnreapedStages *PathCounter `json:"orphans"`
}

func (r *BugReport) Update(e *Event) {
	r.LogEntries++

	switch e.Kind {
	case KindSyntaxError:
		r.SyntaxErrors.Increment(firstWord(e.Command), e.Error)
	case KindLine:
		if e.Error != "" {
			r.FailedStarts.Increment(firstWord(e.Command), e.Error)
		}
	case KindOrphan:
		r.UnreapedStages.Increment(statusName(e))
	}
}

// SessionReport groups the commands of each shell session.
type SessionReport struct {
	// Map of sessionID -> session
	sessions map[string]*Session
}

type Session struct {
	LogEntries int      `json:"log_entries"`
	Commands   []string `json:"commands"`
	Failures   int      `json:"failures"`
}

func (s *Session) Update(e *Event) {
	s.LogEntries++

	switch e.Kind {
	case KindLine, KindBuiltin:
		s.Commands = append(s.Commands, strings.Join(e.Command, " "))
		if e.ExitStatus != 0 || e.Error != "" {
			s.Failures++
		}
	case KindSyntaxError:
		s.Commands = append(s.Commands, strings.Join(e.Command, " "))
		s.Failures++
	}
}

func (i *SessionReport) init() {
	if i.sessions == nil {
		i.sessions = make(map[string]*Session)
	}
}

// MarshalJSON implements custom JSON marshaler.
func (i *SessionReport) MarshalJSON() ([]byte, error) {
	i.init()

	return json.Marshal(i.sessions)
}

func (i *SessionReport) Update(e *Event) {
	i.init()

	sessionID := e.SessionID
	if sessionID == "" {
		return
	}
	report, ok := i.sessions[sessionID]
	if !ok {
		report = &Session{}
		i.sessions[sessionID] = report
	}

	report.Update(e)
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Line        LineReport        `json:"line_report"`
	Builtin     BuiltinReport     `json:"builtin_report"`
	Orphan      OrphanReport      `json:"orphan_report"`
	SyntaxError SyntaxErrorReport `json:"syntax_error_report"`
}

func (r *Report) Update(e *Event) {
	r.LogEntries++

	switch e.Kind {
	case KindLine:
		r.Line.update(e)
	case KindBuiltin:
		r.Builtin.update(e)
	case KindOrphan:
		r.Orphan.update(e)
	case KindSyntaxError:
		r.SyntaxError.update(e)
	default:
		r.InvalidEntries.Increment(string(e.Kind))
	}
}

type LineReport struct {
	Count int `json:"count"`
	// Name of the program of every stage.
	CommandNames StrCounter `json:"command_names"`
	// Number of stages of the line.
	StageCounts  StrCounter `json:"stage_counts"`
	ExitStatuses StrCounter `json:"exit_statuses"`
	// Total run time of all lines in milliseconds.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

func (r *LineReport) update(e *Event) {
	r.Count++
	stages := 0
	expectProgram := true
	for _, word := range e.Command {
		switch {
		case word == "|":
			expectProgram = true
		case expectProgram:
			r.CommandNames.Increment(word)
			stages++
			expectProgram = false
		}
	}
	r.StageCounts.Increment(strconv.Itoa(stages))
	r.ExitStatuses.Increment(statusName(e))
	r.TotalDurationMs += e.Duration.Milliseconds()
}

type BuiltinReport struct {
	CommandNames StrCounter `json:"command_names"`
	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *BuiltinReport) update(e *Event) {
	r.CommandNames.Increment(firstWord(e.Command))
	r.ExitStatuses.Increment(statusName(e))
}

type OrphanReport struct {
	Count        int        `json:"count"`
	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *OrphanReport) update(e *Event) {
	r.Count++
	r.ExitStatuses.Increment(statusName(e))
}

type SyntaxErrorReport struct {
	Errors []string `json:"errors"`
}

func (r *SyntaxErrorReport) update(e *Event) {
	r.Errors = append(r.Errors, e.Error)
}

func firstWord(command []string) string {
	if len(command) == 0 {
		return ""
	}
	return command[0]
}

func statusName(e *Event) string {
	if e.Signal != "" {
		return fmt.Sprintf("signal %s", e.Signal)
	}
	return strconv.Itoa(e.ExitStatus)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of distinct tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
