package registry

import (
	"context"
	"time"

	"agenthub/internal/eventlog"
)

// RunSweeper periodically scans for workers whose heartbeats stopped
// arriving and surfaces each missed-heartbeat episode once. The socket
// level read deadline eventually tears the connection down; the sweeper
// only makes the degradation visible before that happens.
func (r *Registry) RunSweeper(ctx context.Context) {
	interval := time.Duration(r.cfg.StaleSweepSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Infof("Stale worker sweeper started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stale worker sweeper stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	threshold := time.Duration(r.cfg.HealthyHeartbeatSec) * time.Second
	now := time.Now()

	type staleWorker struct {
		id  string
		age time.Duration
	}
	var found []staleWorker

	r.mu.Lock()
	for id, worker := range r.workers {
		age := now.Sub(worker.lastSeen)
		if age >= threshold && !worker.stale {
			worker.stale = true
			found = append(found, staleWorker{id: id, age: age})
		}
	}
	r.mu.Unlock()

	for _, w := range found {
		r.logger.Warnf("Worker %s missed heartbeats for %s", w.id, w.age.Round(time.Second))
		r.events.System("registry", eventlog.SeverityWarn, w.id, "worker heartbeat overdue")
	}
}
