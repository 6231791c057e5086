package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/etsyflow/internal/batch"
	"github.com/fpang/etsyflow/internal/config"
	"github.com/fpang/etsyflow/internal/export"
	"github.com/fpang/etsyflow/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.commitHash=...".
var (
	version    = "dev"
	commitHash = ""
)

// CLI flags
var (
	directoryFlag   string
	configFlag      string
	logLevelFlag    string
	tierFlag        string
	backendFlag     string
	promptFlag      string
	useGlobalFlag   bool
	outFlag         string
	compressionFlag string
	s3BucketFlag    string
	s3PrefixFlag    string
	maxDepthFlag    int
	limitFlag       int
	metricsFlag     string
	fallbackFlag    bool
)

// errHalted marks a run that stopped early; the cause was already printed.
var errHalted = errors.New("run halted")

var rootCmd = &cobra.Command{
	Use:   "etsyflow",
	Short: "AI product photo pipeline for Etsy listings",
	Long: `etsyflow turns a directory of product photos into listing-ready assets.

Every photo is normalized, analyzed for SEO metadata (title, tags, category),
then enhanced one at a time into a studio-quality image at the chosen
quality tier. Completed images are packaged into a ZIP archive together with
a listings.csv, and optionally uploaded to S3.

Examples:
  etsyflow run -d ./photos
  etsyflow run -d ./photos --tier high --prompt "soft morning light on linen"
  etsyflow run -d ./photos --backend upscaler --s3-bucket my-shop-assets
  etsyflow analyze -d ./photos > listings.json
  etsyflow run  # Interactive mode - prompts for directory`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&directoryFlag, "directory", "d", "", "Directory containing product photos")
	pf.StringVar(&configFlag, "config", "", "Path to a YAML config file")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (default from ETSYFLOW_LOG_LEVEL or info)")
	pf.IntVar(&maxDepthFlag, "max-depth", 0, "Maximum recursion depth (0 = unlimited)")
	pf.IntVar(&limitFlag, "limit", 0, "Maximum photos to process (0 = unlimited)")
	pf.StringVar(&metricsFlag, "metrics", "", "Write per-call EMF metrics to this file")

	runCmd.Flags().StringVar(&tierFlag, "tier", "", "Quality tier: standard (2K polish) or high (4K master)")
	runCmd.Flags().StringVar(&backendFlag, "backend", "", "Enhancement backend: gemini or upscaler")
	runCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Global refinement prompt applied to every photo")
	runCmd.Flags().BoolVar(&useGlobalFlag, "use-global-prompt", false, "Force the global prompt over per-photo prompts")
	runCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Archive path (default <output_dir>/"+export.DefaultArchiveName+")")
	runCmd.Flags().StringVar(&compressionFlag, "compression", "", "Archive compression: deflate or zstd")
	runCmd.Flags().StringVar(&s3BucketFlag, "s3-bucket", "", "Upload the archive to this S3 bucket")
	runCmd.Flags().StringVar(&s3PrefixFlag, "s3-prefix", "", "Key prefix for the uploaded archive")
	runCmd.Flags().BoolVar(&fallbackFlag, "fallback-to-original", false, "Record exhausted enhancements as unavailable and keep the original")

	rootCmd.AddCommand(runCmd, analyzeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errHalted) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig loads the config file and environment, applies the flags the
// user set explicitly, and initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	setStr := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	setStr("log-level", &cfg.LogLevel, logLevelFlag)
	setStr("tier", &cfg.QualityTier, tierFlag)
	setStr("backend", &cfg.EnhancementBackend, backendFlag)
	setStr("prompt", &cfg.GlobalPrompt, promptFlag)
	setStr("compression", &cfg.ArchiveCompression, compressionFlag)
	setStr("s3-bucket", &cfg.S3Bucket, s3BucketFlag)
	setStr("s3-prefix", &cfg.S3Prefix, s3PrefixFlag)
	if flags.Changed("use-global-prompt") {
		cfg.UseGlobalPrompt = useGlobalFlag
	}
	if flags.Changed("fallback-to-original") {
		cfg.FallbackToOriginal = fallbackFlag
	}

	logging.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func logStartup(name string, cfg *config.Config) {
	logging.NewStartupLogger(name).
		Version(version).
		CommitHash(commitHash).
		SSMParam("geminiApiKey", cfg.GeminiAPIKeySSMParam).
		S3Bucket("archive", cfg.S3Bucket).
		Model("analysis", cfg.AnalysisModel).
		Model("enhancement", enhancementModelLabel(cfg)).
		Feature("useGlobalPrompt", cfg.UseGlobalPrompt).
		Feature("fallbackToOriginal", cfg.FallbackToOriginal).
		Config("qualityTier", string(cfg.Tier())).
		Config("backend", cfg.EnhancementBackend).
		Config("interCallDelay", cfg.InterCallDelay.String()).
		Config("maxAttempts", fmt.Sprint(cfg.MaxAttempts)).
		Config("archiveCompression", cfg.ArchiveCompression).
		Log()
}

func enhancementModelLabel(cfg *config.Config) string {
	if cfg.EnhancementBackend == config.BackendUpscaler {
		return cfg.UpscalerURL
	}
	return cfg.EnhancementModel
}

// logProgress logs every terminal per-asset transition.
func logProgress(s batch.AssetSnapshot) {
	switch {
	case s.Removed:
	case s.State == batch.StateCompleted:
		log.Info().Str("asset", s.ID).Str("file", s.Name).Msg("Photo enhanced")
	case s.State == batch.StateReady && s.Metadata != nil:
		log.Info().Str("asset", s.ID).Str("file", s.Name).Str("title", s.Metadata.Title).Msg("Photo analyzed")
	case s.State == batch.StateError:
		log.Warn().Str("asset", s.ID).Str("file", s.Name).Str("reason", s.LastError).Msg("Photo failed")
	}
}
