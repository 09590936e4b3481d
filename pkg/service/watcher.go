package service

import (
	"context"
	"sync"
	"time"
)

// DefaultWatchInterval keeps the scan short relative to the 90-second
// acceptance window.
const DefaultWatchInterval = 5 * time.Second

// DeadlineWatcher periodically expires unaccepted urgent tasks. It holds
// no task-specific state: every run rescans the store and drives expiry
// through the compare-and-swap primitive, so any number of instances can
// run concurrently.
type DeadlineWatcher struct {
	svc      *TaskService
	interval time.Duration
	logger   Logger
	wg       sync.WaitGroup
}

func NewDeadlineWatcher(svc *TaskService, interval time.Duration, logger Logger) *DeadlineWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &DeadlineWatcher{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the background scan loop. It returns immediately; the
// loop stops when ctx is cancelled.
func (w *DeadlineWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Infof("Deadline watcher stopped: %v", ctx.Err())
				return
			case <-ticker.C:
				count, err := w.svc.ExpireDeadlines()
				if err != nil {
					w.logger.Errorf("Deadline scan failed: %v", err)
					continue
				}
				if count > 0 {
					w.logger.Infof("Deadline scan expired %d task(s)", count)
				}
			}
		}
	}()
}

// Wait blocks until the scan loop has exited.
func (w *DeadlineWatcher) Wait() {
	w.wg.Wait()
}
