package pipeline

import (
	"strings"

	"github.com/josephlewis42/pipesh/core/fdtable"
)

// Operators recognized on a command line.
const (
	OpPipe        = "|"
	OpRedirectIn  = "<"
	OpRedirectOut = ">"
	OpAppendOut   = ">>"
	OpRedirectErr = "2>"
	OpRedirectAll = "&>"
)

// Operator describes one entry of the lexicon.
type Operator struct {
	Token string
	// Pipe is set for the pipe operator, Kind is meaningless then.
	Pipe bool
	Kind fdtable.Kind
}

var lexicon = map[string]Operator{
	OpPipe:        {Token: OpPipe, Pipe: true},
	OpRedirectIn:  {Token: OpRedirectIn, Kind: fdtable.StdinRead},
	OpRedirectOut: {Token: OpRedirectOut, Kind: fdtable.StdoutTruncate},
	OpAppendOut:   {Token: OpAppendOut, Kind: fdtable.StdoutAppend},
	OpRedirectErr: {Token: OpRedirectErr, Kind: fdtable.StderrTruncate},
	OpRedirectAll: {Token: OpRedirectAll, Kind: fdtable.StdoutStderrTruncate},
}

// Lookup finds the operator a token spells exactly.
func Lookup(token string) (Operator, bool) {
	op, ok := lexicon[token]
	return op, ok
}

// IsSpecial reports whether a token ends an argument vector: any single
// character out of "<>|" or any two character token ending in '>'.
// Special tokens that aren't in the lexicon are syntax errors.
func IsSpecial(token string) bool {
	switch len(token) {
	case 1:
		return strings.ContainsAny(token, "<>|")
	case 2:
		return token[1] == '>'
	default:
		return false
	}
}

// Operators lists the recognized operator tokens.
func Operators() []string {
	return []string{OpRedirectOut, OpAppendOut, OpRedirectIn, OpRedirectErr, OpRedirectAll, OpPipe}
}
