package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/chat"
	"github.com/fpang/etsyflow/internal/cli"
	"github.com/fpang/etsyflow/internal/config"
	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/filehandler"
	"github.com/fpang/etsyflow/internal/metrics"
	"github.com/fpang/etsyflow/internal/preview"
	"github.com/fpang/etsyflow/internal/upscale"
)

// pipeline holds everything a command needs to drive one batch.
type pipeline struct {
	cfg          *config.Config
	dir          string
	orchestrator *batch.Orchestrator
	previews     *preview.TempStore
	metricsOut   io.Closer
}

// newPipeline resolves the directory, creates remote clients and wires the
// orchestrator. withEnhancer is false for analysis-only commands.
func newPipeline(ctx context.Context, cmd *cobra.Command, cfg *config.Config, withEnhancer bool) (*pipeline, error) {
	dirPath := directoryFlag
	if dirPath == "" {
		dirPath = cli.PromptForDirectory(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	dir, err := cli.ValidateAndResolveDirectory(dirPath)
	if err != nil {
		return nil, err
	}

	client, err := cli.InitGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	previews, err := preview.NewTempStore("")
	if err != nil {
		return nil, err
	}
	p := &pipeline{cfg: cfg, dir: dir, previews: previews}

	var metricsOut io.Writer = io.Discard
	if metricsFlag != "" {
		f, err := os.Create(metricsFlag)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create metrics file: %w", err)
		}
		metricsOut = f
		p.metricsOut = f
	}

	normalizer := filehandler.NewNormalizer(previews)
	normalizer.MaxBytes = cfg.MaxUploadBytes
	normalizer.MaxDimension = cfg.MaxDimension
	normalizer.JPEGQuality = cfg.JPEGQuality

	policy := cfg.Policy()
	analyzer := chat.NewAnalyzer(client.Models, cfg.AnalysisModel, policy)

	var enhancer batch.Enhancer
	if withEnhancer {
		switch cfg.EnhancementBackend {
		case config.BackendUpscaler:
			enhancer = upscale.New(cfg.UpscalerURL, cfg.UpscalerKey, policy)
		default:
			enhancer = chat.NewEnhancer(client.Models, cfg.EnhancementModel, policy)
		}
	}

	p.orchestrator = batch.New(normalizer, analyzer, enhancer, previews, batch.Options{
		GlobalPrompt:        cfg.GlobalPrompt,
		UseGlobalPrompt:     cfg.UseGlobalPrompt,
		Tier:                cfg.Tier(),
		InterCallDelay:      cfg.InterCallDelay,
		AnalysisConcurrency: cfg.AnalysisConcurrency,
		FallbackToOriginal:  cfg.FallbackToOriginal,
		Metrics:             metrics.NewEmitter(metrics.DefaultNamespace, metricsOut),
	})
	p.orchestrator.Subscribe(logProgress)
	return p, nil
}

// ingest scans the directory and feeds every image through normalization
// and analysis.
func (p *pipeline) ingest(ctx context.Context) ([]string, error) {
	files, err := filehandler.ScanDirectory(p.dir, filehandler.ScanOptions{
		MaxDepth: maxDepthFlag,
		Limit:    limitFlag,
		MaxBytes: p.cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported images found in %s", p.dir)
	}

	log.Info().
		Str("directory", p.dir).
		Int("files", len(files)).
		Msg("Ingesting product photos")

	return p.orchestrator.Ingest(ctx, files)
}

// Close resets the batch, releasing every preview, and removes the preview
// directory.
func (p *pipeline) Close() {
	if p.orchestrator != nil {
		if err := p.orchestrator.Reset(); err != nil {
			log.Warn().Err(err).Msg("Failed to release previews")
		}
	}
	if err := p.previews.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to remove preview directory")
	}
	if p.metricsOut != nil {
		p.metricsOut.Close()
	}
}

func listings(snap batch.BatchSnapshot) []listing {
	out := make([]listing, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		out = append(out, listing{
			File:       a.Name,
			State:      string(a.State),
			Resolution: a.Resolution,
			Metadata:   a.Metadata,
			Error:      a.LastError,
		})
	}
	return out
}

// listing is the JSON shape printed by the analyze command.
type listing struct {
	File       string                  `json:"file"`
	State      string                  `json:"state"`
	Resolution domain.ResolutionClass  `json:"resolution,omitempty"`
	Metadata   *domain.ProductMetadata `json:"metadata,omitempty"`
	Error      string                  `json:"error,omitempty"`
}
