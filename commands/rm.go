package commands

import (
	"errors"
	"fmt"
	"io/fs"
)

// Rm implements a POSIX rm command.
func Rm(env *Env) int {
	cmd := &SimpleCommand{
		Use:   "rm [OPTION...] FILE...",
		Short: "Remove files or directories.",
	}

	recursive := cmd.Flags().BoolLong("recursive", 'r', "remove directories and their contents recursively")
	force := cmd.Flags().BoolLong("force", 'f', "ignore missing files and arguments, never prompt")

	return cmd.Run(env, func() int {
		files := cmd.Flags().Args()
		if len(files) == 0 {
			if *force {
				return 0
			}
			fmt.Fprintln(env.Stdout, "ERROR: No File Specified")
			return 1
		}

		anyFailed := false
		for _, file := range files {
			target := env.Abs(file)
			stat, statErr := env.Fs.Stat(target)
			switch {
			case errors.Is(statErr, fs.ErrNotExist):
				if !*force {
					fmt.Fprintf(env.Stderr, "rm: can't remove %q: no such file or directory\n", file)
					anyFailed = true
				}
			case statErr != nil:
				fmt.Fprintf(env.Stderr, "rm: can't stat %q: %v\n", file, unwrapPathError(statErr))
				anyFailed = true
			case stat.Mode().IsDir():
				if !*recursive {
					fmt.Fprintf(env.Stderr, "rm: can't remove %q: is a directory\n", file)
					anyFailed = true
					continue
				}
				if err := env.Fs.RemoveAll(target); err != nil {
					fmt.Fprintf(env.Stderr, "rm: can't remove %q: %v\n", file, unwrapPathError(err))
					anyFailed = true
				}
			default:
				if err := env.Fs.Remove(target); err != nil {
					fmt.Fprintf(env.Stderr, "rm: can't remove %q: %v\n", file, unwrapPathError(err))
					anyFailed = true
				}
			}
		}

		if anyFailed {
			return 1
		}
		return 0
	})
}

var _ BuiltinFunc = Rm

func init() {
	mustAddBuiltin("rm", Rm)
}
