package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fpang/etsyflow/internal/cli"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Generate listing metadata for every photo without enhancing",
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logStartup("etsyflow analyze", cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cmd, cfg, false)
	if err != nil {
		if cli.PrintCredentialHalt(cmd.ErrOrStderr(), err) {
			return errHalted
		}
		return err
	}
	defer p.Close()

	if _, err := p.ingest(ctx); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(listings(p.orchestrator.Snapshot()))
}
