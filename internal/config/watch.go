package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/contexttype/contexttype/internal/redact"
)

// Watch reloads path whenever it is written and hands the detector section of
// every valid revision to apply. Invalid revisions are logged and skipped. The
// parent directory is watched so editors that replace the file are seen. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(DetectorConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	dir := filepath.Dir(target)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err == nil {
				err = Validate(cfg)
			}
			if err != nil {
				redact.Logf("config: reload of %s rejected: %v", path, err)
				continue
			}
			redact.Logf("config: detector settings reloaded from %s", path)
			apply(cfg.Detector)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			redact.Logf("config: watcher error: %v", err)
		}
	}
}
