package plugin

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ManifestWatcher re-scans the manifest directory when its *.json files
// change, so plugins can be toggled by editing manifests.
type ManifestWatcher struct {
	watcher    *fsnotify.Watcher
	discoverer *Discoverer
	logger     zerolog.Logger
	debounce   time.Duration
	timer      *time.Timer
	stopCh     chan struct{}
}

// NewManifestWatcher creates and starts a watcher over the discoverer's
// directory.
func NewManifestWatcher(discoverer *Discoverer, logger zerolog.Logger) (*ManifestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(discoverer.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	mw := &ManifestWatcher{
		watcher:    watcher,
		discoverer: discoverer,
		logger:     logger.With().Str("component", "manifest-watcher").Logger(),
		debounce:   500 * time.Millisecond,
		stopCh:     make(chan struct{}),
	}

	go mw.run()

	return mw, nil
}

// Stop stops the watcher.
func (mw *ManifestWatcher) Stop() error {
	close(mw.stopCh)
	return mw.watcher.Close()
}

func (mw *ManifestWatcher) run() {
	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				mw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Manifest change detected")

				mw.scheduleRescan()
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Error().Err(err).Msg("Manifest watcher error")

		case <-mw.stopCh:
			return
		}
	}
}

// scheduleRescan debounces bursts of manifest edits into one scan.
func (mw *ManifestWatcher) scheduleRescan() {
	if mw.timer != nil {
		mw.timer.Stop()
	}

	mw.timer = time.AfterFunc(mw.debounce, func() {
		if err := mw.discoverer.Scan(context.Background()); err != nil {
			mw.logger.Error().Err(err).Msg("Manifest rescan failed")
		}
	})
}
