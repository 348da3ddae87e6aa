package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/exodetect/internal/app"
	"github.com/okian/exodetect/internal/config"
	"github.com/okian/exodetect/internal/domain/registry"
	"github.com/okian/exodetect/pkg/logger"
)

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "exodetect",
		Short:         "Exoplanet candidate classification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `exodetect classifies Kepler objects of interest with a gradient-boosted
tree model over transit features, or a 1D convolutional network over a
light-curve flux series.

Configuration is read from defaults, an optional YAML file (--config or
EXODETECT_CONFIG) and EXODETECT_* environment variables, in that order.`,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (overrides "+config.EnvConfigPath+")")

	root.AddCommand(
		newServeCmd(flags),
		newArtifactsCmd(flags),
		newPredictCmd(flags),
	)
	return root
}

// setup loads the configuration and initializes the global logger writing
// to logOut.
func setup(ctx context.Context, flags *rootFlags, logOut io.Writer) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	err = logger.InitWithOptions(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithOutput(logOut),
		logger.WithFile(cfg.LogFile),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// serviceOptions maps the configuration onto service options.
func serviceOptions(cfg *config.Config) []service.Option {
	return []service.Option{
		service.WithLogger(logger.Get().Named("service")),
		service.WithModelDir(cfg.ModelDir),
		service.WithPaths(registry.Paths{
			Tabular:  cfg.XGBModelFile,
			Sequence: cfg.CNNModelFile,
			Scaler:   cfg.ScalerFile,
			Encoder:  cfg.EncoderFile,
			Features: cfg.FeaturesFile,
		}),
		service.WithFallbackFeatures(cfg.FallbackFeatures),
		service.WithFluxLength(cfg.FluxLength),
		service.WithSequenceLabels(cfg.SequenceLabels),
		service.WithCacheSize(cfg.CacheSize),
		service.WithBatchWorkers(cfg.BatchWorkers),
		service.WithMaxBatchSize(cfg.MaxBatchSize),
		service.WithCatalogFile(cfg.CatalogFile),
	}
}

// startService builds and starts a service from cfg.
func startService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	svc := service.New(serviceOptions(cfg)...)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start service: %w", err)
	}
	return svc, nil
}
