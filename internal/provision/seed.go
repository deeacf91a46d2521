package provision

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// SeedIfEmpty provisions the site from a YAML seed file, but only when
// the database holds no devices yet. An already provisioned system
// never re-applies the seed, so file edits after first boot are inert.
func SeedIfEmpty(ctx context.Context, path string, store *storage.PostgresClient, registry *tags.Registry, logger *zap.Logger) error {
	if path == "" {
		return nil
	}

	count, err := store.CountDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to count devices: %w", err)
	}
	if count > 0 {
		logger.Debug("Skipping seed, devices already provisioned", zap.Int("devices", count))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No seed file found", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	validator, err := NewValidator()
	if err != nil {
		return err
	}
	if err := validator.ValidateDocument(&doc); err != nil {
		return fmt.Errorf("seed file %s: %w", path, err)
	}

	logger.Info("Seeding from file", zap.String("path", path))
	_, err = Apply(ctx, &doc, store, registry, logger)
	return err
}
