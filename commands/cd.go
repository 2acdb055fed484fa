package commands

import (
	"fmt"
)

// Cd changes the working directory of the shell.
func Cd(env *Env) int {
	cmd := &SimpleCommand{
		Use:   "cd [DIR]",
		Short: "Change the shell working directory, $HOME by default.",
	}

	return cmd.Run(env, func() int {
		args := cmd.Flags().Args()
		var target string
		switch len(args) {
		case 0:
			if env.Home == "" {
				fmt.Fprintln(env.Stderr, "cd: HOME not set")
				return 1
			}
			target = env.Home
		case 1:
			target = env.Abs(args[0])
		default:
			fmt.Fprintln(env.Stderr, "cd: too many arguments")
			return 1
		}

		stat, err := env.Fs.Stat(target)
		switch {
		case err != nil:
			fmt.Fprintf(env.Stderr, "cd: %s: %v\n", target, unwrapPathError(err))
			return 1
		case !stat.IsDir():
			fmt.Fprintf(env.Stderr, "cd: %s: not a directory\n", target)
			return 1
		}

		if env.Chdir != nil {
			if err := env.Chdir(target); err != nil {
				fmt.Fprintf(env.Stderr, "cd: %s: %v\n", target, unwrapPathError(err))
				return 1
			}
		}
		env.Dir = target
		return 0
	})
}

var _ BuiltinFunc = Cd

func init() {
	mustAddBuiltin("cd", Cd)
}
