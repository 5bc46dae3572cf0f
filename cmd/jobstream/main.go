// Command jobstream runs the job scheduling service: the API surface with
// the realtime gateway, or the worker pool with its sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ncobase/jobstream/internal/config"
	"github.com/ncobase/jobstream/pkg/logger"

	_ "github.com/go-sql-driver/mysql"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "jobstream",
		Short:         "Background job scheduling and progress distribution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(newServeCommand(), newWorkerCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging.
func setup() (*config.Config, func(), error) {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	cleanup, err := logger.New(conf.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return conf, cleanup, nil
}
