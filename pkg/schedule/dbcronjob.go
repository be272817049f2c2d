package schedule

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"github.com/techquest-tech/pglocks/pkg/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const KeyJobs = "schedule.jobs"

// DBCronJob runs a list of statements on a schedule.
//
//	schedule:
//	  jobs:
//	    refresh-report:
//	      schedule: "*/5 * * * *"
//	      using: reporting        # optional named connection
//	      maxWait: 0s             # skip the run when another replica holds the lock
//	      sql:
//	        - REFRESH MATERIALIZED VIEW CONCURRENTLY report
type DBCronJob struct {
	Name     string
	Schedule string
	Sql      []string
	logger   *zap.Logger
	db       *gorm.DB
}

// FireJob runs every statement in one transaction and stops at the first failure.
func (job *DBCronJob) FireJob() error {
	return job.db.WithContext(context.Background()).Transaction(func(tx *gorm.DB) error {
		for _, item := range job.Sql {
			result := tx.Exec(item)
			if result.Error != nil {
				return fmt.Errorf("run sql %q failed: %w", item, result.Error)
			}
			job.logger.Debug("sql done", zap.String("sql", item), zap.Int64("rows", result.RowsAffected))
		}
		job.logger.Info("all sql done")
		return nil
	})
}

// LoadDBCronJobs registers every job of schedule.jobs with s.
func LoadDBCronJobs(s *Scheduler, logger *zap.Logger) ([]*DBCronJob, error) {
	sub := viper.Sub(KeyJobs)
	if sub == nil {
		logger.Debug("not DB job is scheduled.")
		return nil, nil
	}

	result := make([]*DBCronJob, 0)
	for key := range sub.AllSettings() {
		db, ok := orm.Connection(sub.GetString(key + ".using"))
		if !ok {
			return nil, fmt.Errorf("job %s: connection %q is not configured", key, sub.GetString(key+".using"))
		}
		item := &DBCronJob{
			logger:   logger.With(zap.String("job", key)),
			db:       db,
			Name:     key,
			Schedule: sub.GetString(key + ".schedule"),
			Sql:      sub.GetStringSlice(key + ".sql"),
		}
		if len(item.Sql) == 0 {
			item.logger.Warn("job has no sql, ignored.")
			continue
		}
		opt := ScheduleOptions{MaxWait: sub.GetDuration(key + ".maxWait")}
		if err := s.Add(item.Name, item.Schedule, item.FireJob, opt); err != nil {
			item.logger.Error("start up schedule failed.", zap.Error(err))
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}
