package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smaq/smaq/internal/compute"
	"github.com/smaq/smaq/internal/csvio"
	"github.com/smaq/smaq/internal/processor"
)

func newComputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compute <prices.csv>",
		Short: "Compute the indicator for one CSV file and print it as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompute,
	}
}

func runCompute(cmd *cobra.Command, args []string) error {
	cfg, logger, _, eng, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	points, err := csvio.ReadPricePoints(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	proc := processor.New(compute.NewAdapter(eng), logger)
	ch, unsub := proc.Broker().Subscribe(1)
	defer unsub()

	id, err := proc.Submit(points)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	logger.Debug("job submitted", "job_id", id, "records", len(points), "engine", cfg.Engine)

	var output []float64
	err = fmt.Errorf("job %d: processor closed before completion", id)
	for c := range ch {
		if c.ID != id {
			continue
		}
		err = nil
		if !c.Succeeded() {
			err = fmt.Errorf("job %d failed: %w", id, c.Err)
		}
		output = c.Output
		break
	}

	shutdownCtx, cancel := context.WithTimeout(cmd.Context(), cfg.ShutdownTimeout)
	defer cancel()
	if serr := proc.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("processor shutdown", "error", serr)
	}
	if err != nil {
		return err
	}

	return csvio.WriteIndicator(cmd.OutOrStdout(), cfg.Engine, output)
}
