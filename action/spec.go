package action

import (
	"os"

	"github.com/bogen85/cmdforge/plan"
	"github.com/bogen85/cmdforge/process"
)

// processSpecFor adapts a plan.Invocation plus the pool's shared stdio
// streams into a process.Spec ready to hand to child.Spawn.
func processSpecFor(inv plan.Invocation, stdout, stderr *os.File) process.Spec {
	return process.Spec{
		Program: inv.Program,
		Args:    inv.Args,
		Dir:     inv.WorkingDir,
		Stdout:  stdout,
		Stderr:  stderr,
	}
}
