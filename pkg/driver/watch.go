package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/packages"
)

// DefaultDebounce is the quiet period Watch waits for before rebuilding.
const DefaultDebounce = 300 * time.Millisecond

// BuildFunc receives the outcome of every build started by Watch.
type BuildFunc func(report *Report, err error)

// Watch builds the project, then rebuilds it whenever a source, header,
// the graph table or the package manifest changes in the project root.
// Bursts of changes closer than debounce trigger one build. Builds run one
// at a time on the calling goroutine. Watch returns nil when ctx is done.
func (d *Driver) Watch(ctx context.Context, debounce time.Duration, onBuild BuildFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.cfg.Root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.cfg.Root, err)
	}

	if err := d.tel.StartMetricsServer(ctx); err != nil {
		return err
	}

	d.logger.Info().Dur("debounce", debounce).Msg("Started watching project")
	d.rebuild(ctx, onBuild)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			d.logger.Info().Msg("Stopped watching project")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 ||
				!watchedFile(event.Name) {
				continue
			}
			d.logger.Debug().
				Str("file", filepath.Base(event.Name)).
				Str("op", event.Op.String()).
				Msg("Project file changed")

			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			d.rebuild(ctx, onBuild)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (d *Driver) rebuild(ctx context.Context, onBuild BuildFunc) {
	report, err := d.Build(ctx)
	if onBuild != nil {
		onBuild(report, err)
	}
}

// watchedFile reports whether a change to name should trigger a build.
func watchedFile(name string) bool {
	base := filepath.Base(name)
	switch base {
	case engine.DefaultTableName, packages.ManifestName:
		return true
	}
	switch filepath.Ext(base) {
	case ".c", ".cpp", ".h", ".hpp":
		return true
	}
	return false
}
