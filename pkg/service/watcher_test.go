package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/service"
)

func TestDeadlineWatcher(t *testing.T) {
	t.Run("ExpiresOverdueTasksInBackground", func(t *testing.T) {
		f := newFixture()
		overdue := seedTask(t, f.store, func(task *models.Task) {
			past := time.Now().Add(-time.Minute)
			task.AcceptanceDeadline = &past
		})

		ctx, cancel := context.WithCancel(context.Background())
		watcher := service.NewDeadlineWatcher(f.svc, 10*time.Millisecond, logger{})
		watcher.Start(ctx)

		assert.Eventually(t, func() bool {
			task, err := f.store.GetTask(overdue.ID)
			return err == nil && task.Status == models.StatusCancelled
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		watcher.Wait()
	})

	t.Run("ConcurrentWatchersAreIdempotent", func(t *testing.T) {
		f := newFixture()
		overdue := seedTask(t, f.store, func(task *models.Task) {
			past := time.Now().Add(-time.Minute)
			task.AcceptanceDeadline = &past
		})

		ctx, cancel := context.WithCancel(context.Background())
		// Two instances scanning the same store, as in a multi-node deploy.
		w1 := service.NewDeadlineWatcher(f.svc, 10*time.Millisecond, logger{})
		w2 := service.NewDeadlineWatcher(f.svc, 10*time.Millisecond, logger{})
		w1.Start(ctx)
		w2.Start(ctx)

		assert.Eventually(t, func() bool {
			task, err := f.store.GetTask(overdue.ID)
			return err == nil && task.Status == models.StatusCancelled
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		w1.Wait()
		w2.Wait()

		task, err := f.store.GetTask(overdue.ID)
		assert.NoError(t, err)
		// One cancellation entry no matter how many scans ran.
		cancellations := 0
		for _, h := range task.StatusHistory {
			if h.Status == models.StatusCancelled {
				cancellations++
			}
		}
		assert.Equal(t, 1, cancellations)
	})

	t.Run("StopsWhenContextCancelled", func(t *testing.T) {
		f := newFixture()
		ctx, cancel := context.WithCancel(context.Background())
		watcher := service.NewDeadlineWatcher(f.svc, 10*time.Millisecond, logger{})
		watcher.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() {
			watcher.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("watcher did not stop after context cancellation")
		}
	})
}
