package cmd

import (
	"context"
	"time"

	"github.com/seqport/sracatch/pkg/jobs"
)

const managedHeartbeatInterval = 30 * time.Second

// startManagedHeartbeat keeps a detached job's registry record fresh
// while the fetch runs. The returned func stops the ticker and waits
// for the goroutine to drain.
func startManagedHeartbeat(ctx context.Context, store *jobs.Store, job *jobs.Record) func() {
	if store == nil || job == nil {
		return func() {}
	}

	// Only heartbeat for managed runs.
	if job.PID <= 0 {
		return func() {}
	}

	t := time.NewTicker(managedHeartbeatInterval)
	quit := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			case <-t.C:
				now := time.Now().UTC()
				job.LastHeartbeat = &now
				_ = store.Write(job)
			}
		}
	}()

	return func() {
		t.Stop()
		close(quit)
		<-stopped
	}
}
