// Package buildcmd runs the frontend build tool as a child process rooted
// in the project directory.
package buildcmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a build invocation. The argument vector is passed to the
// process directly; nothing is interpreted by a shell.
type Command struct {
	Args   []string // Executable followed by its arguments
	Dir    string   // Working directory for the process
	Env    []string // Extra KEY=VALUE pairs appended to the parent environment
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Command that streams build output to the parent's stdout
// and stderr.
func New(args []string, dir string) *Command {
	return &Command{
		Args:   args,
		Dir:    dir,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// Run executes the command and waits for it to finish. Failures include the
// command line and working directory so build errors read in context.
func (c *Command) Run(ctx context.Context) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("no build command configured")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Run(); err != nil {
		where := c.Dir
		if where == "" {
			where = "."
		}
		return fmt.Errorf("%s in %s: %w", c.String(), where, err)
	}

	return nil
}
