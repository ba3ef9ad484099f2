package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/deskflow/kernel/internal/logging"
)

// Watch watches the configuration directory for external edits to either
// document and republishes state.config.changed so subscribers can react
// without polling. The returned watcher must be closed by the caller.
func (s *State) Watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(Root()); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				logging.Debug("config: detected external change to %s", event.Name)
				if s.bus != nil {
					s.bus.Publish(TopicConfigChanged, map[string]interface{}{"source": "external", "path": event.Name})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Error("config: watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}
