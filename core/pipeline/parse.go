// Package pipeline turns the words of a command line into stages and runs
// them as a chain of processes connected by pipes.
//
// Parsing has no side effects. Executing happens inside the line process:
// every stage but the last is spawned with its stdout on a fresh pipe, and
// the last stage replaces the line process itself.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/josephlewis42/pipesh/core/fdtable"
)

var (
	ErrEmptyPipeline       = errors.New("empty command")
	ErrEmptyStage          = errors.New("missing command")
	ErrMissingTarget       = errors.New("missing redirection target")
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// SyntaxError locates a parse failure.
type SyntaxError struct {
	// Index of the offending token, len(tokens) for end of line.
	Index int
	Token string
	Err   error
}

func (e *SyntaxError) Error() string {
	near := e.Token
	if near == "" {
		near = "newline"
	}
	return fmt.Sprintf("syntax error near %q: %v", near, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Stage is one command of a pipeline.
type Stage struct {
	// Args is the argument vector, Args[0] is the program path.
	Args []string
	// Redirects are applied in order before the stage runs.
	Redirects []fdtable.Redirect
}

func (s Stage) String() string {
	parts := append([]string(nil), s.Args...)
	for _, r := range s.Redirects {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ")
}

// Pipeline is a parsed command line.
type Pipeline struct {
	Stages []Stage
}

func (p *Pipeline) String() string {
	var parts []string
	for _, s := range p.Stages {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " "+OpPipe+" ")
}

// Parse splits tokens into stages. Redirections belong to the stage they're
// written in; the pipe operator starts a new stage.
func Parse(tokens []string) (*Pipeline, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyPipeline
	}

	p := &Pipeline{}
	i := 0
	for {
		stage, next, err := parseStage(tokens, i)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, stage)

		if next >= len(tokens) {
			return p, nil
		}
		// parseStage only stops early on a pipe.
		i = next + 1
		if i >= len(tokens) {
			return nil, &SyntaxError{Index: i, Err: ErrEmptyStage}
		}
	}
}

// parseStage gathers one stage starting at tokens[start] and returns the
// index of the pipe that ended it, or len(tokens).
func parseStage(tokens []string, start int) (Stage, int, error) {
	var stage Stage

	i := start
	for ; i < len(tokens) && !IsSpecial(tokens[i]); i++ {
		stage.Args = append(stage.Args, tokens[i])
	}

	if len(stage.Args) == 0 {
		return Stage{}, i, &SyntaxError{Index: i, Token: tokenAt(tokens, i), Err: ErrEmptyStage}
	}

	for i < len(tokens) {
		tok := tokens[i]
		op, ok := Lookup(tok)
		switch {
		case !IsSpecial(tok):
			// Words after a redirection target still belong to the stage.
			stage.Args = append(stage.Args, tok)
			i++
		case !ok:
			return Stage{}, i, &SyntaxError{Index: i, Token: tok, Err: ErrUnsupportedOperator}
		case op.Pipe:
			return stage, i, nil
		default:
			target := i + 1
			if target >= len(tokens) || IsSpecial(tokens[target]) {
				return Stage{}, target, &SyntaxError{Index: target, Token: tokenAt(tokens, target), Err: ErrMissingTarget}
			}
			stage.Redirects = append(stage.Redirects, fdtable.Redirect{Kind: op.Kind, Path: tokens[target]})
			i = target + 1
		}
	}

	return stage, i, nil
}

func tokenAt(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}
