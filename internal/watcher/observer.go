package watcher

import (
	"errors"
	"os"
	"sync"
	"time"

	"echo/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const (
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

// Handler receives create and modify notifications from observers. It is
// called from observer goroutines and must be safe for concurrent use.
type Handler interface {
	OnCreated(path string)
	OnModified(path string)
}

// observer watches one root recursively and forwards notifications to a
// Handler. Directories created after start are added as they appear.
type observer struct {
	root    string
	handler Handler
	logger  *logging.Logger
	onFail  func(error)

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
	retries int
}

func startObserver(root string, handler Handler, logger *logging.Logger, onFail func(error)) (*observer, error) {
	fsWatcher, err := newRecursiveWatcher(root, logger)
	if err != nil {
		return nil, err
	}
	obs := &observer{
		root:    root,
		handler: handler,
		logger:  logger,
		onFail:  onFail,
		fs:      fsWatcher,
		done:    make(chan struct{}),
	}
	obs.wg.Add(1)
	go obs.run(fsWatcher)
	return obs, nil
}

func newRecursiveWatcher(root string, logger *logging.Logger) (*fsnotify.Watcher, error) {
	dirs, err := collectDirs(root)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for idx, dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			if idx == 0 {
				_ = fsWatcher.Close()
				return nil, err
			}
			logger.Warn("watch add failed", map[string]string{
				logging.FieldPath:  dir,
				logging.FieldError: err.Error(),
			})
		}
	}
	return fsWatcher, nil
}

// stop closes the OS watcher and waits for the forwarding goroutine.
func (o *observer) stop() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	current := o.fs
	o.mu.Unlock()

	var err error
	if current != nil {
		err = current.Close()
	}
	o.wg.Wait()
	return err
}

func (o *observer) run(source *fsnotify.Watcher) {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-source.Events:
			if !ok {
				return
			}
			o.dispatch(source, ev)
		case err, ok := <-source.Errors:
			if !ok {
				return
			}
			if o.handleError(err) {
				return
			}
		}
	}
}

func (o *observer) dispatch(source *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			o.addTree(source, ev.Name)
		}
		o.handler.OnCreated(ev.Name)
	case ev.Has(fsnotify.Write):
		o.handler.OnModified(ev.Name)
	}
}

func (o *observer) addTree(source *fsnotify.Watcher, dir string) {
	dirs, err := collectDirs(dir)
	if err != nil {
		return
	}
	for _, path := range dirs {
		if err := source.Add(path); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
			o.logger.Warn("watch add failed", map[string]string{
				logging.FieldPath:  path,
				logging.FieldError: err.Error(),
			})
		}
	}
}

// handleError logs the failure and rebuilds the OS watcher with backoff. Once
// the attempts run out the observer closes itself before reporting the
// failure. It reports true when the current forwarding goroutine should exit.
func (o *observer) handleError(err error) bool {
	o.logger.Warn("watcher error", map[string]string{
		logging.FieldPath:  o.root,
		logging.FieldError: err.Error(),
	})

	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return true
		}
		if o.retries >= maxRestartAttempts {
			o.closed = true
			close(o.done)
			current := o.fs
			o.fs = nil
			o.mu.Unlock()
			if current != nil {
				_ = current.Close()
			}
			if o.onFail != nil {
				o.onFail(err)
			}
			return true
		}
		delay := restartBaseDelay * time.Duration(1<<o.retries)
		o.retries++
		o.mu.Unlock()

		select {
		case <-o.done:
			return true
		case <-time.After(delay):
		}

		replacement, restartErr := newRecursiveWatcher(o.root, o.logger)
		if restartErr != nil {
			err = restartErr
			o.logger.Warn("watcher restart failed", map[string]string{
				logging.FieldPath:  o.root,
				logging.FieldError: restartErr.Error(),
			})
			continue
		}

		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			_ = replacement.Close()
			return true
		}
		previous := o.fs
		o.fs = replacement
		o.retries = 0
		o.mu.Unlock()

		if previous != nil {
			_ = previous.Close()
		}
		o.logger.Info("watcher restarted", map[string]string{logging.FieldPath: o.root})
		o.wg.Add(1)
		go o.run(replacement)
		return true
	}
}
