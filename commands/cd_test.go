package commands_test

import (
	"io"
	"testing"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/commands/cmdtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCd(t *testing.T) {
	cases := map[string]struct {
		args     []string
		dir      string
		expected string
		status   int
		output   string
	}{
		"relative":      {args: []string{"src"}, expected: "/home/user/src"},
		"absolute":      {args: []string{"/etc"}, expected: "/etc"},
		"parent":        {args: []string{".."}, expected: "/home"},
		"home":          {dir: "/etc", expected: cmdtest.Home},
		"missing":       {args: []string{"nope"}, status: 1, output: "cd: /home/user/nope: file does not exist\n"},
		"not directory": {args: []string{"notes.txt"}, status: 1, output: "cd: /home/user/notes.txt: not a directory\n"},
		"too many":      {args: []string{"a", "b"}, status: 1, output: "cd: too many arguments\n"},
	}

	for tn, tc := range cases {
		tc := tc
		t.Run(tn, func(t *testing.T) {
			cmd := cmdtest.Command(commands.Cd, "cd", tc.args...)
			cmd.Dir = tc.dir

			out, err := cmd.CombinedOutput()
			require.NoError(t, err)

			assert.Equal(t, tc.status, cmd.ExitStatus)
			assert.Equal(t, tc.output, string(out))
			if tc.status == 0 {
				assert.Equal(t, tc.expected, cmd.Env.Dir)
			}
		})
	}
}

func TestCdCallsChdir(t *testing.T) {
	fs := cmdtest.NewDeterministicFs()
	var changedTo string
	env := &commands.Env{
		Fs:     fs,
		Args:   []string{"cd", "src"},
		Stdout: io.Discard,
		Stderr: io.Discard,
		Dir:    cmdtest.Home,
		Chdir: func(dir string) error {
			changedTo = dir
			return nil
		},
	}

	assert.Equal(t, 0, commands.Cd(env))
	assert.Equal(t, "/home/user/src", changedTo)
	assert.Equal(t, "/home/user/src", env.Dir)
}
