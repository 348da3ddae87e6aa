package service

import (
	"github.com/okian/exodetect/internal/adapters/repository"
	"github.com/okian/exodetect/internal/domain/catalog"
	"github.com/okian/exodetect/internal/domain/registry"
	"github.com/okian/exodetect/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the artifact store the registry is loaded from.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithModelDir loads artifacts from a directory on disk.
func WithModelDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.store = repository.NewFileStore(dir)
		}
	}
}

// WithPaths sets the artifact names inside the store.
func WithPaths(paths registry.Paths) Option {
	return func(s *Service) {
		s.paths = paths
	}
}

// WithRegistry injects an already populated registry; Start skips loading.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithFallbackFeatures sets the tabular feature order used when no
// artifact names it.
func WithFallbackFeatures(names []string) Option {
	return func(s *Service) {
		if len(names) > 0 {
			s.fallbackFeatures = append([]string(nil), names...)
		}
	}
}

// WithFluxLength sets the expected flux series length. A loaded network's
// input width takes precedence.
func WithFluxLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fluxLength = n
		}
	}
}

// WithSequenceLabels sets labels for sequence model outputs that the label
// encoder does not cover. Empty keeps index labels.
func WithSequenceLabels(labels []string) Option {
	return func(s *Service) {
		s.sequenceLabels = append([]string(nil), labels...)
	}
}

// WithCacheSize sets the prediction cache size; zero disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// WithBatchWorkers sets the number of goroutines used per batch request.
func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithMaxBatchSize caps the number of items in a batch request.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithCatalog injects the descriptive catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithCatalogFile loads the catalog from a YAML file instead of the
// embedded default.
func WithCatalogFile(path string) Option {
	return func(s *Service) {
		s.catalogFile = path
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
