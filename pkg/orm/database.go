package orm

import (
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/spf13/viper"
	"github.com/techquest-tech/pglocks/pkg/core"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func init() {
	core.Provide(InitDefaultDB)
}

const (
	KeyDatabase    = "database"
	KeyDatabases   = "databases"
	KeyTablePrefix = "database.tablePrefix"
)

type OrmDialector func(dsn string) gorm.Dialector

var DialectorMap = map[string]OrmDialector{
	"postgres":   postgres.Open,
	"postgresql": postgres.Open,
	"pg":         postgres.Open,
}

// InitDefaultDB opens the "database" section as the default connection and every entry
// under "databases" as a named one.
func InitDefaultDB(logger *zap.Logger) (*gorm.DB, error) {
	db, err := InitDB(KeyDatabase, logger)
	if err != nil {
		return nil, err
	}
	Register(DefaultConnection, db)

	for name := range viper.GetStringMap(KeyDatabases) {
		extra, err := InitDB(KeyDatabases+"."+name, logger)
		if err != nil {
			return nil, err
		}
		Register(name, extra)
	}
	return db, nil
}

func InitDB(sub string, logger *zap.Logger) (*gorm.DB, error) {
	dbSettings := viper.Sub(sub)
	if dbSettings == nil {
		return nil, fmt.Errorf("database settings %s is missed", sub)
	}

	dbSettings.SetDefault("type", "postgres")
	dbSettings.SetDefault("slowThreshold", time.Second)
	dbSettings.SetDefault("logLevel", "warn")
	setPoolDefaults(dbSettings)

	dbType := dbSettings.GetString("type")
	f, ok := DialectorMap[dbType]
	if !ok {
		return nil, fmt.Errorf("driver %s is missed", dbType)
	}

	cfg := &gorm.Config{
		Logger: NewGormLogger(dbSettings.GetDuration("slowThreshold"), dbSettings.GetString("logLevel")),
	}
	if cfgorm := dbSettings.Sub("gorm"); cfgorm != nil {
		if err := cfgorm.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("gorm settings of %s: %w", sub, err)
		}
	}
	if tablePrefix := dbSettings.GetString("tablePrefix"); tablePrefix != "" {
		cfg.NamingStrategy = schema.NamingStrategy{TablePrefix: tablePrefix}
		logger.Info("user table prefix", zap.String("tableprefix", tablePrefix))
	}

	return Open(f(dbSettings.GetString("connection")), cfg, dbSettings, logger.With(zap.String("database", sub)))
}

func setPoolDefaults(settings *viper.Viper) {
	settings.SetDefault("max", 10)
	settings.SetDefault("idel", 2)
	settings.SetDefault("maxLifetime", 30*time.Minute)
	settings.SetDefault("connectAttempts", 3)
	settings.SetDefault("connectDelay", time.Second)
}

// Open connects through dialector and applies pool settings from settings, which may be nil.
// Keys missing from settings take the same defaults as InitDB. With settings, the first
// connect is retried connectAttempts times.
func Open(dialector gorm.Dialector, cfg *gorm.Config, settings *viper.Viper, logger *zap.Logger) (*gorm.DB, error) {
	attempts, delay := uint(1), time.Second
	if settings != nil {
		setPoolDefaults(settings)
		attempts = settings.GetUint("connectAttempts")
		delay = settings.GetDuration("connectDelay")
	}

	var db *gorm.DB
	err := retry.Do(func() error {
		var err error
		db, err = gorm.Open(dialector, cfg)
		return err
	},
		retry.Attempts(max(attempts, 1)),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("connect to db failed, retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to db failed: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	if settings != nil {
		pool.SetConnMaxIdleTime(settings.GetDuration("maxLifetime"))
		pool.SetMaxOpenConns(settings.GetInt("max"))
		pool.SetMaxIdleConns(settings.GetInt("idel"))
	}

	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s failed: %w", dialector.Name(), err)
	}

	logger.Info("connected to " + dialector.Name())
	return db, nil
}
