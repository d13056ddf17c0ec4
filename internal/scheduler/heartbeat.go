package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/greyhatharola/Oracular/internal/domain"
)

// nodeHeartbeat is the record a scheduler node periodically writes under
// scheduler_nodes/{node_id} (spec §4.5 "Node identity & discovery", §6).
type nodeHeartbeat struct {
	NodeID       string    `json:"node_id"`
	RunningTasks int       `json:"running_tasks"`
	TotalTasks   int       `json:"total_tasks"`
	Timestamp    time.Time `json:"ts"`
}

// RunHeartbeat writes this node's liveness record every HeartbeatInterval
// and evicts stale peer records, until ctx is cancelled.
func (s *Scheduler) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	s.writeHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeHeartbeat(ctx)
			s.evictStaleNodes(ctx)
		}
	}
}

func (s *Scheduler) writeHeartbeat(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.RLock()
	total := len(s.tasks)
	running := 0
	for _, n := range s.runningCount {
		running += n
	}
	s.mu.RUnlock()

	hb := nodeHeartbeat{
		NodeID:       s.cfg.NodeID,
		RunningTasks: running,
		TotalTasks:   total,
		Timestamp:    time.Now(),
	}
	data, err := json.Marshal(hb)
	if err != nil {
		return
	}
	_ = s.store.Save(ctx, fmt.Sprintf("scheduler_nodes/%s", s.cfg.NodeID), data)
}

// evictStaleNodes removes scheduler_nodes entries older than HeartbeatTTL
// (default 5 min); any node performing cleanup may do this (spec §4.5).
func (s *Scheduler) evictStaleNodes(ctx context.Context) {
	if s.store == nil {
		return
	}
	keys, err := s.store.Keys(ctx, "scheduler_nodes/")
	if err != nil {
		return
	}
	now := time.Now()
	for _, key := range keys {
		data, err := s.store.Load(ctx, key)
		if err != nil {
			continue
		}
		var hb nodeHeartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			continue
		}
		if now.Sub(hb.Timestamp) > s.cfg.HeartbeatTTL {
			_ = s.store.Delete(ctx, key)
		}
	}
}

// RunExecutionGC deletes terminal executions older than ExecutionRetention,
// force-fails stuck Running/Pending executions older than 1h, and drops
// expired maintenance windows, every hour (spec §4.5 "Housekeeping loops").
func (s *Scheduler) RunExecutionGC(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.gcExecutions(ctx)
			s.gcMaintenanceWindows(ctx)
		}
	}
}

// gcExecutions deletes terminal TaskExecution records past ExecutionRetention
// and forcibly fails executions stuck in Pending/Running beyond 1 hour.
func (s *Scheduler) gcExecutions(ctx context.Context) {
	if s.store == nil {
		return
	}
	keys, err := s.store.Keys(ctx, "task_executions/")
	if err != nil {
		return
	}

	now := time.Now()
	for _, key := range keys {
		data, err := s.store.Load(ctx, key)
		if err != nil {
			continue
		}
		var exec domain.TaskExecution
		if err := json.Unmarshal(data, &exec); err != nil {
			continue
		}

		if exec.IsTerminal() {
			if now.Sub(exec.UpdatedAt) > s.cfg.ExecutionRetention {
				_ = s.store.Delete(ctx, key)
			}
			continue
		}

		if (exec.Status == domain.ExecutionRunning || exec.Status == domain.ExecutionPending) &&
			now.Sub(exec.StartTime) > time.Hour {
			if exec.Status == domain.ExecutionRunning {
				s.decRunning(exec.TaskID)
			}
			exec.Status = domain.ExecutionFailed
			exec.Error = "Execution timed out"
			exec.UpdatedAt = now
			endTime := now
			exec.EndTime = &endTime
			if out, err := json.Marshal(&exec); err == nil {
				_ = s.store.Save(ctx, key, out)
			}
			if s.metrics != nil {
				s.metrics.RecordTaskExecution(exec.TaskID, string(domain.ExecutionFailed))
			}
		}
	}
}

func (s *Scheduler) gcMaintenanceWindows(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.maintenanceWindows {
		if now.After(w.End) {
			delete(s.maintenanceWindows, id)
			if s.store != nil {
				_ = s.store.Delete(ctx, fmt.Sprintf("maintenance_windows/%s", id))
			}
		}
	}
}
