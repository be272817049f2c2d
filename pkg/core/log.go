package core

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func init() {
	Provide(InitLogger)
}

// InitLogger builds the zap logger from the "log" section and installs it as zap.L().
//
//	log:
//	  level: debug
//	  format: json   # console by default
//	  trace: true    # stack traces on warn and above
func InitLogger() (*zap.Logger, error) {
	InitConfig()

	settings := viper.Sub("log")
	if settings == nil {
		settings = viper.New()
	}
	settings.SetDefault("level", "info")

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(settings.GetString("level"))); err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	if strings.EqualFold(settings.GetString("format"), "json") {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stderr"}
	config.Level = level
	config.DisableStacktrace = !settings.GetBool("trace")

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger.With(zap.String("app", AppName)))
	return zap.L(), nil
}
