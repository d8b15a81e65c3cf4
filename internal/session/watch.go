package session

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hot-reloads the blacklist file and seedpool directory while a
// session runs, so a long fuzzing run can pick up newly-added seeds or
// blacklist entries without a restart.
type Watcher struct {
	w             *fsnotify.Watcher
	log           zerolog.Logger
	blacklistPath string
	seedPoolDir   string
	onBlacklist   func()
	onNewSeed     func(path string)
}

// NewWatcher builds a Watcher. blacklistPath/seedPoolDir may be empty to
// skip watching that source; the corresponding callback is then never
// invoked.
func NewWatcher(blacklistPath, seedPoolDir string, onBlacklist func(), onNewSeed func(path string), log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watcher := &Watcher{
		w:             fw,
		log:           log,
		blacklistPath: blacklistPath,
		seedPoolDir:   seedPoolDir,
		onBlacklist:   onBlacklist,
		onNewSeed:     onNewSeed,
	}

	if blacklistPath != "" {
		if err := fw.Add(blacklistPath); err != nil {
			watcher.log.Warn().Err(err).Str("path", blacklistPath).Msg("could not watch blacklist file")
		}
	}

	if seedPoolDir != "" {
		if err := fw.Add(seedPoolDir); err != nil {
			watcher.log.Warn().Err(err).Str("path", seedPoolDir).Msg("could not watch seedpool directory")
		}
	}

	return watcher, nil
}

// Run consumes fsnotify events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}

			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}

			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	if w.blacklistPath != "" && ev.Name == w.blacklistPath {
		w.log.Info().Str("path", ev.Name).Msg("blacklist changed, reloading")

		if w.onBlacklist != nil {
			w.onBlacklist()
		}

		return
	}

	if w.seedPoolDir != "" && filepath.Dir(ev.Name) == filepath.Clean(w.seedPoolDir) && ev.Op&fsnotify.Create != 0 {
		w.log.Info().Str("path", ev.Name).Msg("new seedpool entry detected")

		if w.onNewSeed != nil {
			w.onNewSeed(ev.Name)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}
