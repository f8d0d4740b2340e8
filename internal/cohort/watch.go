package cohort

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// #region watcher

// debounceWindow coalesces the multiple write events editors emit per save.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads a profiles file on change and hands the parsed result to a
// callback. The callback owns swapping the new *Profiles into the service.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// Watch starts watching path. onReload is called with each successfully
// parsed profile set; parse failures are logged and the previous profiles
// stay in effect.
func Watch(path string, onReload func(*Profiles)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-w.done:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceWindow, func() {
					p, err := LoadFile(path)
					if err != nil {
						log.Printf("[COHORT] reload %s failed: %v", path, err)
						return
					}
					log.Printf("[COHORT] reloaded profiles from %s", path)
					onReload(p)
				})
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Printf("[COHORT] watch error: %v", err)
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.fw.Close()
}

// #endregion
