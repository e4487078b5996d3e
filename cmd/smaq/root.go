package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/smaq/smaq/internal/compute"
	"github.com/smaq/smaq/internal/compute/ema"
	"github.com/smaq/smaq/internal/compute/sma"
	"github.com/smaq/smaq/internal/config"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "smaq",
		Short:         "Moving-average indicator job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	pf.String("engine", sma.Name, "indicator engine (sma, ema)")
	pf.Int("window", sma.DefaultWindow, "moving average window")

	root.AddCommand(newServeCommand(), newComputeCommand())
	return root
}

// loadConfig merges the config file, environment and the command's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path, cmd.Flags())
}

// newRegistry registers every built-in engine with the configured window.
func newRegistry(window int) *compute.Registry {
	reg := compute.NewRegistry()
	reg.Register(sma.Name, sma.New(window))
	reg.Register(ema.Name, ema.New(window))
	return reg
}

// setup loads configuration and resolves the engine to drive.
func setup(cmd *cobra.Command, logOut io.Writer) (config.Config, *slog.Logger, *compute.Registry, compute.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}
	logger := config.NewLogger(logOut, cfg.Log)

	reg := newRegistry(cfg.Window)
	eng, err := reg.Resolve(cfg.Engine)
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("resolve engine: %w", err)
	}
	return cfg, logger, reg, eng, nil
}
