// Package config loads and watches the service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ncobase/jobstream/pkg/logger"
)

// Config represents the configuration implementation.
type Config struct {
	AppName string
	RunMode string
	Host    string
	Port    int
	Logger  *logger.Config
	Data    *Data
	Auth    *Auth
	Jobs    *Jobs
	Gateway *Gateway
	Viper   *viper.Viper
}

// LoadConfig loads the configuration from the file.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		ex, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		v.SetConfigName("config")
		v.AddConfigPath("/etc/jobstream")
		v.AddConfigPath("$HOME/.jobstream")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(ex))
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return fromViper(v), nil
}

// fromViper builds a Config from an initialized viper instance.
func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppName: v.GetString("app_name"),
		RunMode: v.GetString("run_mode"),
		Host:    v.GetString("server.host"),
		Port:    v.GetInt("server.port"),
		Logger:  getLoggerConfig(v),
		Data:    getDataConfig(v),
		Auth:    getAuthConfig(v),
		Jobs:    getJobsConfig(v),
		Gateway: getGatewayConfig(v),
		Viper:   v,
	}
}

// Watch watches the configuration file and invokes the callback with the
// reloaded configuration when it changes.
func (c *Config) Watch(callback func(*Config)) {
	c.Viper.WatchConfig()
	c.Viper.OnConfigChange(func(e fsnotify.Event) {
		callback(fromViper(c.Viper))
	})
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
