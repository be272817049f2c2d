package cmd

import (
	"errors"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/core"
)

// ErrNotAcquired is returned by run --nowait when another session holds the lock.
var ErrNotAcquired = errors.New("lock is held by another session")

// ExitNotAcquired is EX_TEMPFAIL, the status flock(1) -n uses for the same situation.
const ExitNotAcquired = 75

// ExitCode maps the error of a command to the process status: ExitNotAcquired when a
// --nowait lock was held elsewhere, the child's own status for run, 1 otherwise.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotAcquired):
		return ExitNotAcquired
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	}
	return 1
}

var RootCmd = &cobra.Command{
	Use:           "pglocks",
	Short:         "postgres advisory locks from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       core.Version,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&core.ConfigFile, "config", "c", "", "config file, default config/app.yaml")
	RootCmd.AddCommand(KeyCmd, RunCmd, LocksCmd, ServeCmd, ScheduleCmd, RunJobCmd)
}
