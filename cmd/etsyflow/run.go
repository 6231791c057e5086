package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/cli"
	"github.com/fpang/etsyflow/internal/config"
	"github.com/fpang/etsyflow/internal/export"
	"github.com/fpang/etsyflow/internal/s3util"
)

const presignExpiry = 24 * time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze, enhance and export every photo in a directory",
	RunE:  runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logStartup("etsyflow run", cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cmd, cfg, true)
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

	report, passErr := p.orchestrator.StartEnhancement(ctx)
	switch {
	case passErr == nil:
	case errors.Is(passErr, batch.ErrNothingToProcess):
		log.Warn().Msg("No photos are ready for enhancement")
	case errors.Is(passErr, batch.ErrPassHalted):
		log.Error().Err(passErr).Int("skipped", len(report.Skipped)).Msg("Enhancement pass halted")
	default:
		log.Error().Err(passErr).Msg("Enhancement pass stopped")
	}

	// Export whatever completed, even after a halt.
	exportCtx := context.WithoutCancel(ctx)
	if err := exportArchive(exportCtx, cfg, p.orchestrator); err != nil {
		if !errors.Is(err, export.ErrNothingToExport) {
			return err
		}
		log.Warn().Msg("Nothing to export")
	}

	cli.PrintBatchSummary(cmd.OutOrStdout(), p.orchestrator.Snapshot(), time.Since(start))

	if cli.PrintCredentialHalt(cmd.ErrOrStderr(), passErr) {
		return errHalted
	}
	if passErr != nil && !errors.Is(passErr, batch.ErrNothingToProcess) {
		return passErr
	}
	return nil
}

func exportArchive(ctx context.Context, cfg *config.Config, o *batch.Orchestrator) error {
	packager, err := export.NewPackager(cfg.ArchiveCompression)
	if err != nil {
		return err
	}

	path := outFlag
	if path == "" {
		path = filepath.Join(cfg.OutputDir, export.DefaultArchiveName)
	}

	manifest, err := packager.WriteFile(ctx, path, o.Completed())
	if err != nil {
		return err
	}
	log.Info().
		Str("path", path).
		Int("files", len(manifest.Files)).
		Int("skipped", len(manifest.Skipped)).
		Msg("Archive saved")

	if cfg.S3Bucket == "" {
		return nil
	}

	awsCfg, err := cli.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}
	client, presigner := cli.NewS3Clients(awsCfg)
	key, err := export.UploadArchive(ctx, client, cfg.S3Bucket, cfg.S3Prefix, path)
	if err != nil {
		return err
	}
	url, err := s3util.GeneratePresignedURL(ctx, presigner, cfg.S3Bucket, key, presignExpiry)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create download link")
		return nil
	}
	log.Info().
		Str("bucket", cfg.S3Bucket).
		Str("key", key).
		Str("url", url).
		Msg("Archive uploaded")
	return nil
}
