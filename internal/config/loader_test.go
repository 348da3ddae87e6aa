package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/exodetect/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// t.Setenv is scoped to the test function, so each env scenario gets its own.

func TestLoad_Defaults(t *testing.T) {
	convey.Convey("When loading config with defaults only", t, func() {
		t.Setenv(config.EnvConfigPath, "")
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should load successfully with defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
			convey.So(cfg.FluxLength, convey.ShouldEqual, 3197)
		})
	})
}

func TestLoad_Env(t *testing.T) {
	convey.Convey("When loading config with environment variables", t, func() {
		t.Setenv(config.EnvConfigPath, "")
		t.Setenv("EXODETECT_ADDR", ":8080")
		t.Setenv("EXODETECT_FLUX_LENGTH", "2000")
		t.Setenv("EXODETECT_CACHE_SIZE", "0")
		t.Setenv("EXODETECT_FALLBACK_FEATURES", "koi_period, koi_depth")
		t.Setenv("EXODETECT_CORS_ORIGINS", "http://localhost:3000")

		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should override defaults with env vars", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.FluxLength, convey.ShouldEqual, 2000)
			convey.So(cfg.CacheSize, convey.ShouldEqual, 0)
			convey.So(cfg.FallbackFeatures, convey.ShouldResemble, []string{"koi_period", "koi_depth"})
			convey.So(cfg.CORSOrigins, convey.ShouldResemble, []string{"http://localhost:3000"})
		})
	})
}

func TestLoad_FileAndEnv(t *testing.T) {
	convey.Convey("When loading config with a YAML file and env overrides", t, func() {
		path := writeConfig(t, `
addr: ":9090"
model_dir: /srv/models
max_batch_size: 10
fallback_features: [koi_teq]
`)
		t.Setenv(config.EnvConfigPath, path)
		t.Setenv("EXODETECT_MAX_BATCH_SIZE", "20")

		cfg, err := config.Load(context.Background())

		convey.Convey("Then env wins over the file and the file over defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.ModelDir, convey.ShouldEqual, "/srv/models")
			convey.So(cfg.MaxBatchSize, convey.ShouldEqual, 20)
			convey.So(cfg.FallbackFeatures, convey.ShouldResemble, []string{"koi_teq"})
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
		})
	})
}

func TestLoad_Errors(t *testing.T) {
	convey.Convey("Given broken config sources", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with invalid YAML file", func() {
			cfg, err := config.LoadFile(ctx, writeConfig(t, `invalid: yaml: content: [`))

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.LoadFile(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestLoad_EmptyAddr(t *testing.T) {
	convey.Convey("When loading config with empty addr", t, func() {
		t.Setenv(config.EnvConfigPath, "")
		t.Setenv("EXODETECT_ADDR", "")
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should return a validation error", func() {
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}
