package config

import (
	"github.com/spf13/viper"

	"github.com/ncobase/jobstream/pkg/logger"
)

func getLoggerConfig(v *viper.Viper) *logger.Config {
	return &logger.Config{
		Level:      getIntOrDefault(v, "logger.level", 4),
		Format:     getStringOrDefault(v, "logger.format", "json"),
		Output:     getStringOrDefault(v, "logger.output", "stdout"),
		OutputFile: v.GetString("logger.output_file"),
	}
}
