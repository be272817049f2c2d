package core

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var AppName = "pglocks"
var Version = "latest"

const EnvPrefix = "PGLOCKS"

// ConfigFile, when set (the --config flag), replaces the lookup of app.yaml.
var ConfigFile string

var configOnce sync.Once

// InitConfig loads app.yaml (APP_CONFIG renames it) and the ENV profile on top of it.
// Every key can also come from PGLOCKS_* environment variables. It runs once per process.
func InitConfig() {
	configOnce.Do(loadConfig)
}

func loadConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viperApp := viper.New()
	viperApp.SetConfigType("yaml")
	if ConfigFile != "" {
		viperApp.SetConfigFile(ConfigFile)
	} else {
		configName := os.Getenv("APP_CONFIG")
		if configName == "" {
			configName = "app"
		}
		viperApp.SetConfigName(configName)
		viperApp.AddConfigPath("config")
		viperApp.AddConfigPath("../config")
		viperApp.AddConfigPath("/etc/pglocks")
		viperApp.AddConfigPath("$HOME/.pglocks")
		viperApp.AddConfigPath(".")
	}

	if err := viperApp.ReadInConfig(); err != nil {
		log.Printf("WARN! read config failed. %+v", err)
	}
	if err := viper.MergeConfigMap(viperApp.AllSettings()); err != nil {
		log.Printf("WARN! merge config failed. %+v", err)
	}

	envfile := os.Getenv("ENV")
	if envfile != "" {
		profileConfig := viper.New()
		profileConfig.SetConfigName(envfile)
		profileConfig.SetConfigType("yaml")
		profileConfig.AddConfigPath("config")
		profileConfig.AddConfigPath("../config")
		if err := profileConfig.ReadInConfig(); err != nil {
			err = fmt.Errorf("load env profile %s failed, %w", envfile, err)
			log.Println(err.Error())
			panic(err)
		}
		if err := viper.MergeConfigMap(profileConfig.AllSettings()); err != nil {
			panic(err)
		}
		log.Printf("env profile %s loaded", envfile)
	}
}
