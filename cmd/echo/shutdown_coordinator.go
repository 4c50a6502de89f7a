package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"echo/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator runs the registered phases once, in registration
// order. A failing phase does not stop the ones after it.
type shutdownCoordinator struct {
	logger *logging.Logger
	mu     sync.Mutex
	once   sync.Once
	phases []shutdownPhase
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger: logger,
	}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if coordinator == nil || stop == nil {
		return
	}
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	coordinator.phases = append(coordinator.phases, shutdownPhase{
		name: name,
		stop: stop,
	})
}

func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	if coordinator == nil {
		return nil
	}
	var runErr error
	coordinator.once.Do(func() {
		coordinator.mu.Lock()
		phases := append([]shutdownPhase(nil), coordinator.phases...)
		coordinator.mu.Unlock()

		for _, phase := range phases {
			started := time.Now()
			if coordinator.logger != nil {
				coordinator.logger.Debug("shutdown phase starting", map[string]string{
					"phase": phase.name,
				})
			}
			err := phase.stop(ctx)
			if err != nil {
				runErr = errors.Join(runErr, err)
				if coordinator.logger != nil {
					coordinator.logger.Warn("shutdown phase failed", map[string]string{
						"phase":            phase.name,
						logging.FieldError: err.Error(),
					})
				}
				continue
			}
			if coordinator.logger != nil {
				coordinator.logger.Debug("shutdown phase complete", map[string]string{
					"phase":    phase.name,
					"duration": time.Since(started).String(),
				})
			}
		}
	})
	return runErr
}
