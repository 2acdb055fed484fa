// Package commands holds the built-ins that run inside the shell's own
// process instead of in a pipeline.
package commands

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
	"github.com/spf13/afero"
)

// Env is everything a built-in can touch.
type Env struct {
	// Fs is the file system built-ins operate on.
	Fs afero.Fs
	// Args holds the command name followed by its arguments. Operators are
	// passed through as plain words.
	Args []string

	Stdout io.Writer
	Stderr io.Writer

	// IsTTY is true when Stdout is a terminal.
	IsTTY bool
	// Width of the terminal, 0 if unknown.
	Width int
	// ColorMode is the --color default, auto if empty.
	ColorMode string

	// Dir is the working directory relative paths are resolved against.
	Dir string
	// Home is the directory cd goes to without an argument.
	Home string
	// Chdir changes the shell's working directory, it's called with an
	// absolute path.
	Chdir func(dir string) error
}

// Abs resolves name against the working directory.
func (e *Env) Abs(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(e.Dir, name)
}

// BuiltinFunc runs a built-in and returns its exit status.
type BuiltinFunc func(env *Env) int

// AllBuiltins holds every built-in by name.
var AllBuiltins = make(map[string]BuiltinFunc)

func mustAddBuiltin(name string, cmd BuiltinFunc) {
	if _, ok := AllBuiltins[name]; ok {
		panic(fmt.Sprintf("builtin %q registered twice", name))
	}
	AllBuiltins[name] = cmd
}

// BuiltinNames lists the registered built-ins in order.
func BuiltinNames() []string {
	var out []string
	for name := range AllBuiltins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func BytesToHuman(bytes int64) string {
	for _, e := range []struct {
		unit  string
		power int64
	}{
		{"P", 1e15},
		{"T", 1e12},
		{"G", 1e9},
		{"M", 1e6},
		{"K", 1e3},
	} {
		quotient := bytes / e.power
		switch {
		case quotient == 0:
			continue
		case quotient > 10:
			return fmt.Sprintf("%d%s", quotient, e.unit)
		default:
			return fmt.Sprintf("%0.1f%s", float64(bytes)/float64(e.power), e.unit)
		}
	}

	return fmt.Sprintf("%d", bytes)
}

// UidResolver maps uids to names using /etc/passwd from env's file system.
func UidResolver(env *Env) (resolver func(int) string) {
	mapping := map[int]string{
		0: "root", // seed in case we don't see any others.
	}

	resolver = func(uid int) string {
		if resolved, ok := mapping[uid]; ok {
			return resolved
		}
		return strconv.Itoa(uid)
	}

	passwdBytes, err := afero.ReadFile(env.Fs, "/etc/passwd")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(passwdBytes), "\n") {
		entry := strings.Split(line, ":")
		if len(entry) < 3 {
			continue
		}
		// name:X:uid:
		if uid, err := strconv.Atoi(entry[2]); err == nil {
			mapping[uid] = entry[0]
		}
	}

	return
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was successful call the callback.
func (s *SimpleCommand) Run(env *Env, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(env.Args, nil); err != nil {
		fmt.Fprintf(env.Stderr, "error: %s\n\n", err)
		s.PrintHelp(env.Stdout)
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(env.Stdout)
		return 0
	}

	return callback()
}

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

// ColorModes lists the accepted values of --color.
var ColorModes = []string{ColorAlways, ColorAuto, ColorNever}

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

type ColorPrinter struct {
	value *string
	env   *Env
}

// Init sets up the flag and environment to determine the color output.
func (c *ColorPrinter) Init(flags *getopt.Set, env *Env) {
	c.env = env
	mode := env.ColorMode
	if mode == "" {
		mode = ColorAuto
	}
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		ColorModes,
		mode,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	return ShouldColor(*c.value, c.env.IsTTY)
}

func (c *ColorPrinter) Sprintf(col *color.Color, format string, a ...interface{}) string {
	if !c.ShouldColor() {
		return fmt.Sprintf(format, a...)
	}
	// The global NoColor switch follows stdout, not env.
	col = copyColor(col)
	col.EnableColor()
	return col.Sprintf(format, a...)
}

func copyColor(col *color.Color) *color.Color {
	out := *col
	return &out
}

// ShouldColor decides whether to emit colour for a mode.
func ShouldColor(mode string, isTTY bool) bool {
	switch mode {
	case ColorNever:
		return false
	case ColorAlways:
		return true
	default:
		return isTTY
	}
}
