package locker

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/techquest-tech/pglocks/pkg/core"
	"github.com/techquest-tech/pglocks/pkg/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	KeyLockerType  = "locker.type"
	KeyLockerUsing = "locker.using"

	TypeAdvisory = "advisory"
	TypeRedis    = "redis"
	TypeRam      = "ram"
)

func init() {
	core.Provide(InitLocker)
}

// InitLocker builds the backend named by locker.type. The advisory backend uses the
// connection named by locker.using, the default database otherwise.
func InitLocker(logger *zap.Logger) (Locker, error) {
	viper.SetDefault(KeyLockerType, TypeAdvisory)
	lockerType := viper.GetString(KeyLockerType)
	logger = logger.With(zap.String("locker", lockerType))

	switch lockerType {
	case TypeAdvisory:
		db, err := lockerDB(viper.GetString(KeyLockerUsing))
		if err != nil {
			return nil, err
		}
		logger.Info("advisory locker ready.")
		return NewAdvisoryLocker(db, logger), nil
	case TypeRedis:
		client, err := NewRedisClient(logger)
		if err != nil {
			return nil, err
		}
		return NewRedisLocker(client, logger), nil
	case TypeRam:
		logger.Warn("ram locker only works inside this process.")
		return NewLocalLocker(), nil
	}
	return nil, fmt.Errorf("unknown locker type %q", lockerType)
}

func lockerDB(using string) (*gorm.DB, error) {
	if db, ok := orm.Connection(using); ok {
		return db, nil
	}
	var db *gorm.DB
	err := core.GetContainer().Invoke(func(d *gorm.DB) {
		db = d
	})
	if err != nil {
		return nil, err
	}
	if using != "" && using != orm.DefaultConnection {
		named, ok := orm.Connection(using)
		if !ok {
			return nil, fmt.Errorf("connection %q for locker is not configured", using)
		}
		return named, nil
	}
	return db, nil
}
