package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/config"
	"jobboard/matching-service/internal/logger"
)

const app = "matchd"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "matchd scores candidates against jobs and delivers alerts and chat",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables win")
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogJSON, cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.WithFields(log, zap.String("service", app), zap.String("version", version)), nil
}
