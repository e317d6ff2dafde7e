package config

import (
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher re-applies a config file's Logging section whenever the file
// changes on disk, grounded on the fsnotify.Watcher usage in the teacher's
// cmd/dtn-tool exchange helper. Everything besides logging (storage path,
// node id, custody tuning) requires a restart; only the logging knobs are
// cheap and safe to change live.
type Watcher struct {
	filename string
	watcher  *fsnotify.Watcher
	stop     chan struct{}
}

// WatchLogging starts watching filename and reapplies its Logging section
// on every write event.
func WatchLogging(filename string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filename); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{filename: filename, watcher: fw, stop: make(chan struct{})}
	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			c, err := Load(w.filename)
			if err != nil {
				log.WithFields(log.Fields{"file": w.filename, "error": err}).
					Warn("config: reload failed, keeping previous settings")
				continue
			}
			log.WithField("file", w.filename).Info("config: reloaded logging settings")
			_ = c

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithField("error", err).Warn("config: watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
