package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
	"github.com/greyhatharola/Oracular/internal/logging"
	"github.com/greyhatharola/Oracular/internal/metrics"
	"github.com/greyhatharola/Oracular/internal/store"
)

// TickResult is what an Executor produces for one task execution attempt:
// the per-source points that survived the validator, the aggregated/signed
// value (nil if the tick failed before aggregation), and per-stage timings
// for TaskExecution.PerfMetrics.
type TickResult struct {
	DataPoints  []domain.DataPoint
	Aggregated  *domain.AggregatedValue
	PerfMetrics map[string]time.Duration
}

// Executor runs one task's full tick body: fan out SourceAdapter fetches,
// push survivors through Validator, Aggregator, Signer, then invoke
// TransactionManager for every contract in task.ContractIDs (spec §4.5
// "Execution body"). Kept as an interface so the scheduler's gate and
// state-machine logic can be tested without a live chain or adapters; the
// concrete wiring lives in internal/engine.
type Executor interface {
	Execute(ctx context.Context, task domain.TaskDefinition) (*TickResult, error)
}

// Config configures a Scheduler instance.
type Config struct {
	NodeID              string
	GraceWindow         time.Duration
	TickInterval        time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTTL        time.Duration
	ExecutionRetention  time.Duration
}

// DefaultConfig mirrors spec §4.5's stated defaults.
func DefaultConfig(nodeID string) Config {
	return Config{
		NodeID:             nodeID,
		GraceWindow:        300 * time.Second,
		TickInterval:       time.Second,
		HeartbeatInterval:  60 * time.Second,
		HeartbeatTTL:       5 * time.Minute,
		ExecutionRetention: 7 * 24 * time.Hour,
	}
}

// Scheduler evaluates triggers, enforces maintenance windows and
// per-task concurrency, and drives TaskExecution through its state
// machine (spec §4.5).
type Scheduler struct {
	cfg      Config
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *logging.Logger
	executor Executor

	mu                 sync.RWMutex
	tasks              map[string]*domain.TaskDefinition
	taskLocks          map[string]*sync.Mutex
	runningCount       map[string]int
	lastFire           map[string]time.Time
	maintenanceWindows map[string]*domain.MaintenanceWindow
}

// New builds a Scheduler. executor may be nil for tests that only exercise
// the gate/trigger logic.
func New(cfg Config, st *store.Store, met *metrics.Metrics, log *logging.Logger, executor Executor) *Scheduler {
	return &Scheduler{
		cfg:                cfg,
		store:              st,
		metrics:            met,
		logger:             log,
		executor:           executor,
		tasks:              make(map[string]*domain.TaskDefinition),
		taskLocks:          make(map[string]*sync.Mutex),
		runningCount:       make(map[string]int),
		lastFire:           make(map[string]time.Time),
		maintenanceWindows: make(map[string]*domain.MaintenanceWindow),
	}
}

// RegisterTask adds or replaces a task definition, seeding its last-fire
// watermark to now so that historical due fires are not immediately
// replayed on registration.
func (s *Scheduler) RegisterTask(task *domain.TaskDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	if _, ok := s.taskLocks[task.ID]; !ok {
		s.taskLocks[task.ID] = &sync.Mutex{}
	}
	if _, ok := s.lastFire[task.ID]; !ok {
		s.lastFire[task.ID] = time.Now()
	}
}

// RemoveTask stops scheduling a task; in-flight executions finish normally.
func (s *Scheduler) RemoveTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// AddMaintenanceWindow registers a window that suppresses matching task
// fires while active.
func (s *Scheduler) AddMaintenanceWindow(w *domain.MaintenanceWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenanceWindows[w.ID] = w
}

// RemoveMaintenanceWindow drops a window, e.g. once it has been GC'd past End.
func (s *Scheduler) RemoveMaintenanceWindow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.maintenanceWindows, id)
}

// Run drives the scheduler's tick loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every registered task's trigger and fires those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.RLock()
	tasks := make([]*domain.TaskDefinition, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, task := range tasks {
		s.mu.RLock()
		last := s.lastFire[task.ID]
		s.mu.RUnlock()

		due, missed, tooOld, ok := DueFires(task.Trigger, last, now, s.cfg.GraceWindow)
		if !ok {
			continue
		}

		s.mu.Lock()
		s.lastFire[task.ID] = due
		s.mu.Unlock()

		for i := 0; i < missed+tooOld; i++ {
			if s.metrics != nil {
				s.metrics.RecordTaskExecution(task.ID, "missed")
			}
		}

		s.fire(ctx, task, due)
	}
}

// fire is the execution gate of spec §4.5: maintenance window check,
// concurrency limit, per-task lock, then dispatch. The per-task mutex only
// guards the check-claim-reserve sequence below, not the execution itself —
// §5's concurrency bound is on `Running` executions, not on this gate.
func (s *Scheduler) fire(ctx context.Context, task *domain.TaskDefinition, firedAt time.Time) {
	if s.inMaintenanceWindow(task.ID, firedAt) {
		return
	}

	s.mu.Lock()
	lock := s.taskLocks[task.ID]
	if lock == nil {
		lock = &sync.Mutex{}
		s.taskLocks[task.ID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	maxConcurrent := task.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if s.runningCountFor(task.ID) >= maxConcurrent {
		return
	}

	if s.store != nil {
		claimKey := fmt.Sprintf("scheduler_claims/%s/%d", task.ID, firedAt.Unix())
		claimed, err := s.store.SaveIfAbsent(ctx, claimKey, []byte(s.cfg.NodeID))
		if err != nil || !claimed {
			return
		}
	}

	s.incRunning(task.ID)

	execution := &domain.TaskExecution{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		NodeID:    s.cfg.NodeID,
		StartTime: time.Now(),
		Status:    domain.ExecutionPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.persist(ctx, execution)

	go s.run(ctx, task, execution)
}

func (s *Scheduler) runningCountFor(taskID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runningCount[taskID]
}

func (s *Scheduler) incRunning(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningCount[taskID]++
}

func (s *Scheduler) decRunning(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningCount[taskID] > 0 {
		s.runningCount[taskID]--
	}
}

func (s *Scheduler) inMaintenanceWindow(taskID string, at time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.maintenanceWindows {
		if w.Active(at) && w.Affects(taskID) {
			return true
		}
	}
	return false
}

// run executes one attempt, applying the retry/backoff policy on
// classified failure (spec §4.5 "Failure handling").
func (s *Scheduler) run(ctx context.Context, task *domain.TaskDefinition, execution *domain.TaskExecution) {
	execution.Status = domain.ExecutionRunning
	execution.UpdatedAt = time.Now()
	s.persist(ctx, execution)

	deadline := task.Timeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	var result *TickResult
	var err error
	if s.executor != nil {
		result, err = s.executor.Execute(tickCtx, *task)
	} else {
		err = errs.Resource("no executor configured", nil)
	}
	elapsed := time.Since(start)

	if s.metrics != nil {
		priority := string(task.Priority)
		s.metrics.TaskDuration.WithLabelValues(task.ID, priority).Observe(elapsed.Seconds())
	}

	now := time.Now()
	if result != nil {
		execution.DataPoints = result.DataPoints
		execution.AggregatedValue = result.Aggregated
		execution.PerfMetrics = result.PerfMetrics
	}

	if err == nil {
		s.decRunning(task.ID)
		execution.Status = domain.ExecutionCompleted
		execution.EndTime = &now
		execution.UpdatedAt = now
		s.persist(ctx, execution)
		if s.metrics != nil {
			s.metrics.RecordTaskExecution(task.ID, string(domain.ExecutionCompleted))
		}
		return
	}

	s.handleFailure(ctx, task, execution, err, now)
}

func (s *Scheduler) handleFailure(ctx context.Context, task *domain.TaskDefinition, execution *domain.TaskExecution, err error, now time.Time) {
	kind := errs.Classify(err)
	retriable := errs.Retriable(kind, string(task.Priority))

	policy := task.Retry
	if policy.MaxAttempts == 0 {
		policy = domain.DefaultRetryPolicy(task.Priority)
	}

	if retriable && execution.RetryCount < policy.MaxAttempts {
		s.decRunning(task.ID)
		execution.RetryCount++
		execution.Status = domain.ExecutionRetrying
		execution.Error = err.Error()
		execution.UpdatedAt = now
		s.persist(ctx, execution)
		if s.metrics != nil {
			s.metrics.RecordTaskExecution(task.ID, string(domain.ExecutionRetrying))
		}

		delay := nextRetryDelay(policy, execution.RetryCount)
		time.AfterFunc(delay, func() {
			retryCtx, cancel := context.WithTimeout(context.Background(), task.Timeout)
			defer cancel()
			s.incRunning(task.ID)
			s.run(retryCtx, task, execution)
		})
		return
	}

	s.decRunning(task.ID)
	execution.Status = domain.ExecutionFailed
	execution.Error = err.Error()
	execution.EndTime = &now
	execution.UpdatedAt = now
	s.persist(ctx, execution)
	if s.metrics != nil {
		s.metrics.RecordTaskExecution(task.ID, string(domain.ExecutionFailed))
	}
}

func nextRetryDelay(policy domain.RetryPolicy, retryCount int) time.Duration {
	delay := time.Duration(float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(retryCount-1)))
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

func (s *Scheduler) persist(ctx context.Context, execution *domain.TaskExecution) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(execution)
	if err != nil {
		return
	}
	key := fmt.Sprintf("task_executions/%s", execution.ID)
	_ = s.store.Save(ctx, key, data)
}

// Cancel marks a Pending/Running/Retrying execution Cancelled.
func (s *Scheduler) Cancel(ctx context.Context, execution *domain.TaskExecution) {
	if execution.IsTerminal() {
		return
	}
	if execution.Status == domain.ExecutionRunning {
		s.decRunning(execution.TaskID)
	}
	now := time.Now()
	execution.Status = domain.ExecutionCancelled
	execution.EndTime = &now
	execution.UpdatedAt = now
	s.persist(ctx, execution)
	if s.metrics != nil {
		s.metrics.RecordTaskExecution(execution.TaskID, string(domain.ExecutionCancelled))
	}
}
