package app

import (
	"context"
	"errors"
	"fmt"

	"dayline/internal/config"
	"dayline/internal/repo"
)

// ResolveConfig returns the workspace's effective config. Precedence: the
// settings row in the DB, then dayline.yml next to the workspace, then
// built-in defaults. Whatever wins is written back to the settings row so
// later calls and the HTTP API see the same thing.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetSettings(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := r.UpsertSettings(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return cfg, nil
}

// ImportConfig replaces the stored settings with the contents of a YAML file.
func ImportConfig(ctx context.Context, path string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertSettings(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
