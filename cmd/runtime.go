package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/imaging"
	"github.com/kozaktomas/facegate/internal/locator"
	"github.com/kozaktomas/facegate/internal/logging"
)

// runtime bundles what every engine-backed command needs.
type runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *facematch.Engine
	closer io.Closer
}

// Close releases the profile store and flushes the logger.
func (rt *runtime) Close() {
	if rt.closer != nil {
		if err := rt.closer.Close(); err != nil {
			rt.log.Warn("failed to close profile store", zap.Error(err))
		}
	}
	_ = rt.log.Sync()
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if profileName != "" {
		profiles, err := config.LoadProfiles(os.Getenv("FACEGATE_PROFILE_FILE"))
		if err != nil {
			return nil, err
		}
		if cfg.Profile, err = profiles.Get(profileName); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newRuntime opens the configured profile store and builds the engine.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	backend, err := database.ParseBackend(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	if backend == database.BackendPostgres {
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		if err := postgres.Initialize(&cfg.Database, log); err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
	}
	store, closer, err := database.Open(ctx, backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}

	opts := []facematch.Option{
		facematch.WithLogger(log),
		facematch.WithShortlistIndexPath(cfg.Database.HNSWIndexPath),
	}
	faces, err := locator.Build(cfg.Detector.CascadePath, cfg.Detector.FullFrameFallback, log)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to set up face detection: %w", err)
	}
	opts = append(opts, facematch.WithLocator(faces))

	engine, err := facematch.New(cfg.Profile, store, opts...)
	if err != nil {
		closer.Close()
		return nil, err
	}
	log.Debug("engine ready",
		zap.String("profile", cfg.Profile.Name),
		zap.String("store", string(backend)),
		zap.Stringer("layout", engine.Layout()))
	return &runtime{cfg: cfg, log: log, engine: engine, closer: closer}, nil
}

// loadImage decodes the image file at path within the configured pixel limit.
func (rt *runtime) loadImage(path string) (*image.Gray, error) {
	return imaging.Load(path, rt.cfg.Detector.MaxImagePixels)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// isImageFile checks if a file has a decodable image extension.
func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	supported := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".webp": true,
		".tiff": true,
		".tif":  true,
		".bmp":  true,
	}
	return supported[ext]
}
