package config

import (
	"context"
	"log/slog"

	"github.com/pgilab/pgilab/server/internal/filewatch"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file is saved. It runs until ctx is cancelled.
//
// If a reload fails (e.g. invalid YAML) the error is logged and onChange is
// not called, so the previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return filewatch.Watch(ctx, path, 0, func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Error("config: reload failed, keeping previous config",
				"path", path, "err", err)
			return
		}
		slog.Info("config: reloaded", "path", path)
		onChange(cfg)
	})
}
