// Package scheduler runs Dayflow's periodic background tasks, the sync
// reconciliation pass chief among them.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dayflow/dayflow/internal/logging"
)

// TaskHandler is the function executed for a task
type TaskHandler func(ctx context.Context) error

// ScheduleType represents the type of schedule
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval" // Run every X duration
	ScheduleDaily    ScheduleType = "daily"    // Run at specific time daily
	ScheduleOnce     ScheduleType = "once"     // Run once at specific time
)

// Schedule defines when a task runs
type Schedule struct {
	Type     ScheduleType  `json:"type"`
	Interval time.Duration `json:"interval,omitempty"` // For interval schedules
	At       string        `json:"at,omitempty"`       // "08:00" for daily, RFC3339 for once
}

// Task represents a scheduled task
type Task struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Schedule   Schedule      `json:"schedule"`
	Handler    TaskHandler   `json:"-"`
	Enabled    bool          `json:"enabled"`
	LastRun    *time.Time    `json:"last_run,omitempty"`
	NextRun    *time.Time    `json:"next_run,omitempty"`
	RunCount   int64         `json:"run_count"`
	ErrorCount int64         `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Timeout    time.Duration `json:"timeout"`
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks    map[string]*Task
	running  map[string]context.CancelFunc
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	timezone *time.Location
	log      *logging.Logger
}

// NewScheduler creates a scheduler in the given timezone; an invalid
// name falls back to local time.
func NewScheduler(timezone string) *Scheduler {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		tz = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		tasks:    make(map[string]*Task),
		running:  make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
		timezone: tz,
		log:      logging.WithComponent("scheduler"),
	}
}

// Register adds a task to the scheduler
func (s *Scheduler) Register(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if task.Handler == nil {
		return fmt.Errorf("task handler is required")
	}
	if task.Timeout == 0 {
		task.Timeout = 5 * time.Minute
	}

	task.Enabled = true

	nextRun := s.calculateNextRun(task.Schedule)
	task.NextRun = &nextRun

	s.tasks[task.ID] = task

	if s.started {
		s.startTask(task)
	}
	return nil
}

// Unregister removes a task from the scheduler
func (s *Scheduler) Unregister(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.running[taskID]; ok {
		cancel()
		delete(s.running, taskID)
	}
	delete(s.tasks, taskID)
}

// Start starts all enabled tasks
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	for _, task := range s.tasks {
		if task.Enabled {
			s.startTask(task)
		}
	}

	s.log.WithField("tasks", len(s.tasks)).Info("scheduler started")
	return nil
}

// Stop cancels all running tasks and waits for them to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}

	s.cancel()
	for _, cancel := range s.running {
		cancel()
	}
	s.running = make(map[string]context.CancelFunc)
	s.started = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// startTask starts a single task's loop; caller holds the lock.
func (s *Scheduler) startTask(task *Task) {
	taskCtx, cancel := context.WithCancel(s.ctx)
	s.running[task.ID] = cancel

	s.wg.Add(1)
	go s.runTaskLoop(taskCtx, task)
}

func (s *Scheduler) runTaskLoop(ctx context.Context, task *Task) {
	defer s.wg.Done()

	for {
		s.mu.RLock()
		var waitDuration time.Duration
		if task.NextRun != nil {
			waitDuration = time.Until(*task.NextRun)
		} else {
			waitDuration = time.Until(s.calculateNextRun(task.Schedule))
		}
		s.mu.RUnlock()

		if waitDuration < 0 {
			waitDuration = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(waitDuration):
			s.executeTask(ctx, task)
		}

		if task.Schedule.Type == ScheduleOnce {
			return
		}
	}
}

func (s *Scheduler) executeTask(ctx context.Context, task *Task) {
	execCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	now := time.Now()
	s.mu.Lock()
	task.LastRun = &now
	task.RunCount++
	s.mu.Unlock()

	err := task.Handler(execCtx)

	s.mu.Lock()
	if err != nil {
		task.ErrorCount++
		task.LastError = err.Error()
	} else {
		task.LastError = ""
	}
	nextRun := s.calculateNextRun(task.Schedule)
	task.NextRun = &nextRun
	s.mu.Unlock()

	if err != nil {
		s.log.WithField("task", task.ID).Error("task failed: %v", err)
	}
}

func (s *Scheduler) calculateNextRun(schedule Schedule) time.Time {
	now := time.Now().In(s.timezone)

	switch schedule.Type {
	case ScheduleInterval:
		return now.Add(schedule.Interval)

	case ScheduleDaily:
		hour, minute := 8, 0
		fmt.Sscanf(schedule.At, "%d:%d", &hour, &minute)

		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.timezone)
		if next.Before(now) {
			next = next.Add(24 * time.Hour)
		}
		return next

	case ScheduleOnce:
		t, err := time.Parse(time.RFC3339, schedule.At)
		if err != nil {
			return now.Add(time.Minute)
		}
		return t

	default:
		return now.Add(time.Hour)
	}
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	task, ok := s.tasks[taskID]
	ctx := s.ctx
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}

	go s.executeTask(ctx, task)
	return nil
}

// GetTask returns a task by ID
func (s *Scheduler) GetTask(taskID string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	return task, ok
}

// ListTasks returns all tasks
func (s *Scheduler) ListTasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

// Stats contains scheduler statistics
type Stats struct {
	Started      bool   `json:"started"`
	TotalTasks   int    `json:"total_tasks"`
	RunningTasks int    `json:"running_tasks"`
	TotalRuns    int64  `json:"total_runs"`
	TotalErrors  int64  `json:"total_errors"`
	Timezone     string `json:"timezone"`
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Started:      s.started,
		TotalTasks:   len(s.tasks),
		RunningTasks: len(s.running),
		Timezone:     s.timezone.String(),
	}
	for _, task := range s.tasks {
		stats.TotalRuns += task.RunCount
		stats.TotalErrors += task.ErrorCount
	}
	return stats
}

// IntervalTask creates a task that runs at a fixed interval
func IntervalTask(id, name string, interval time.Duration, handler TaskHandler) *Task {
	return &Task{
		ID:       id,
		Name:     name,
		Schedule: Schedule{Type: ScheduleInterval, Interval: interval},
		Handler:  handler,
	}
}

// DailyTask creates a task that runs daily at a specific time
func DailyTask(id, name, at string, handler TaskHandler) *Task {
	return &Task{
		ID:       id,
		Name:     name,
		Schedule: Schedule{Type: ScheduleDaily, At: at},
		Handler:  handler,
	}
}

// OnceTask creates a task that runs once at a specific time
func OnceTask(id, name string, at time.Time, handler TaskHandler) *Task {
	return &Task{
		ID:       id,
		Name:     name,
		Schedule: Schedule{Type: ScheduleOnce, At: at.Format(time.RFC3339)},
		Handler:  handler,
	}
}
