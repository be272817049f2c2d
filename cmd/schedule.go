package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/schedule"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ScheduleCmd runs schedule.jobs until SIGINT/SIGTERM.
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "start the schedule jobs only",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return core.GetContainer().Invoke(func(_ *gorm.DB, s *schedule.Scheduler, logger *zap.Logger) error {
			core.PrintVersion()
			jobs, err := schedule.LoadDBCronJobs(s, logger)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no job configured under %s", schedule.KeyJobs)
			}
			s.Start()
			core.NotifyStarted()
			core.WaitForSignal(cmd.Context())
			return nil
		})
	},
}

var RunJobCmd = &cobra.Command{
	Use:   "job [name]",
	Short: "run job now, or list jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return core.GetContainer().Invoke(func(_ *gorm.DB, s *schedule.Scheduler, logger *zap.Logger) error {
			if _, err := schedule.LoadDBCronJobs(s, logger); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, "available jobs:")
				for _, k := range s.List() {
					fmt.Fprintln(out, k)
				}
				return nil
			}
			h, err := s.Run(args[0])
			if err != nil {
				return err
			}
			if !h.Succeed {
				return fmt.Errorf("job %s failed: %s", h.Job, h.Message)
			}
			fmt.Fprintf(out, "job %s done in %s\n", h.Job, h.Duration)
			return nil
		})
	},
}
