package cmd

import (
	"context"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	lockKey   string
	shared    bool
	nowait    bool
	using     string
	lockLabel string
)

// RunCmd holds an advisory lock for the lifetime of a child process.
var RunCmd = &cobra.Command{
	Use:   "run --key <lock id> [flags] -- command [args...]",
	Short: "run a command while holding an advisory lock",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := pglock.ParseKeyString(lockKey)
		if err != nil {
			return err
		}
		return core.GetContainer().Invoke(func(_ *gorm.DB, logger *zap.Logger) error {
			return runLocked(cmd, key, args, logger, lockOptions()...)
		})
	},
}

// runLocked starts args as a child process once key is held and releases when it exits.
// The child does not start when a NoWait attempt fails.
func runLocked(cmd *cobra.Command, key pglock.Key, args []string, logger *zap.Logger, opts ...pglock.Option) error {
	return pglock.WithConnection(cmd.Context(), key, func(ctx context.Context, acquired bool) error {
		if !acquired {
			logger.Info("lock not acquired, command skipped", zap.Stringer("key", key))
			return ErrNotAcquired
		}
		logger.Debug("lock acquired", zap.Stringer("key", key), zap.Strings("command", args))
		child := exec.CommandContext(ctx, args[0], args[1:]...)
		child.Stdin = os.Stdin
		child.Stdout = cmd.OutOrStdout()
		child.Stderr = cmd.ErrOrStderr()
		return child.Run()
	}, opts...)
}

func lockOptions() []pglock.Option {
	opts := []pglock.Option{pglock.Using(using)}
	if shared {
		opts = append(opts, pglock.Shared())
	}
	if nowait {
		opts = append(opts, pglock.NoWait())
	}
	label := lockLabel
	if label == "" {
		label = core.AppName + " run"
	}
	return append(opts, pglock.TriggeredBy(label))
}

func init() {
	RunCmd.Flags().StringVarP(&lockKey, "key", "k", "", "lock id: an integer, two integers as a,b, or any text")
	RunCmd.Flags().BoolVarP(&shared, "shared", "s", false, "take the lock in shared mode")
	RunCmd.Flags().BoolVarP(&nowait, "nowait", "n", false, "fail with exit status 75 instead of waiting")
	RunCmd.Flags().StringVarP(&using, "using", "u", "", "named connection from the databases section")
	RunCmd.Flags().StringVar(&lockLabel, "label", "", "annotation appended to the lock statement")
	_ = RunCmd.MarkFlagRequired("key")
}
