package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okanya/webagentd/internal/observability"
	"github.com/okanya/webagentd/pkg/pool"
	"github.com/okanya/webagentd/pkg/worker"
)

// EventSink receives task lifecycle notifications. It must not block.
type EventSink func(event string, data map[string]interface{})

// WorkerFactoryBuilder builds the pool worker factory for one request's
// agent options.
type WorkerFactoryBuilder func(cfg worker.Config) pool.WorkerFactory

// Manager owns the running-task registry and drives each task through
// the pool: acquire, build worker, run, record, release.
type Manager struct {
	pool      *pool.Pool
	store     Store
	workerCfg worker.Config
	build     WorkerFactoryBuilder
	sink      EventSink

	mu      sync.Mutex
	running map[string]*runningTask
}

type runningTask struct {
	task   *Task
	cancel context.CancelFunc
}

// Config holds manager configuration.
type Config struct {
	Pool         *pool.Pool
	Provider     worker.Provider
	Store        Store
	WorkerConfig worker.Config
	EventSink    EventSink

	// BuildWorkerFactory overrides how per-request worker factories are
	// built. Defaults to binding Provider to the session's browser tools.
	BuildWorkerFactory WorkerFactoryBuilder
}

// NewManager creates a task manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	build := cfg.BuildWorkerFactory
	if build == nil {
		if cfg.Provider == nil {
			return nil, fmt.Errorf("provider is required")
		}
		provider := cfg.Provider
		build = func(c worker.Config) pool.WorkerFactory {
			return worker.NewSessionWorkerFactory(provider, c)
		}
	}

	return &Manager{
		pool:      cfg.Pool,
		store:     cfg.Store,
		workerCfg: cfg.WorkerConfig,
		build:     build,
		sink:      cfg.EventSink,
		running:   make(map[string]*runningTask),
	}, nil
}

// Submit runs a task. In async mode it returns as soon as the task is
// registered; otherwise it blocks until the task settles. The returned
// error reports pool admission failures so callers can map them to
// status codes; the task itself always records the outcome.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, fmt.Errorf("task cannot be empty")
	}
	req.Description = description

	task := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}

	log.Info().
		Str("task_id", task.ID).
		Bool("async", req.Async).
		Msg("Task submitted")

	if req.Async {
		snapshot := task.clone()
		// The HTTP request context dies with the response; async tasks
		// are canceled through Stop instead.
		go func() {
			if err := m.execute(context.Background(), task, req); err != nil {
				log.Debug().Err(err).Str("task_id", snapshot.ID).Msg("Async task settled with error")
			}
		}()
		return snapshot, nil
	}

	err := m.execute(ctx, task, req)
	m.mu.Lock()
	snapshot := task.clone()
	m.mu.Unlock()
	return snapshot, err
}

// execute drives one task to completion and records the outcome.
func (m *Manager) execute(ctx context.Context, task *Task, req SubmitRequest) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.register(task, cancel)
	defer m.unregister(task.ID)

	m.emit("task.started", map[string]interface{}{
		"task_id": task.ID,
		"task":    task.Description,
	})

	_, _, key, err := m.pool.Acquire(runCtx, req.Headers, req.SourceAddress)
	if err != nil {
		m.settle(task, StatusFailed, "", 0, err)
		return err
	}

	m.mu.Lock()
	task.UserKey = key
	m.mu.Unlock()

	defer func() {
		m.pool.Release(key)
		m.pool.ClearWorker(key)
	}()

	cfg := m.workerCfg
	if req.MaxSteps > 0 {
		cfg.MaxSteps = req.MaxSteps
	}

	handle, _, err := m.pool.GetOrCreateWorker(runCtx, key, task.Description, m.build(cfg))
	if err != nil {
		m.settle(task, StatusFailed, "", 0, err)
		return err
	}

	wk, ok := handle.(*worker.Worker)
	if !ok {
		err := fmt.Errorf("unexpected worker handle type %T", handle)
		m.settle(task, StatusFailed, "", 0, err)
		return err
	}

	result, err := wk.Run(runCtx)
	switch {
	case err == nil:
		m.settle(task, StatusCompleted, result.Output, result.Steps, nil)
		return nil
	case errors.Is(err, context.Canceled):
		m.settle(task, StatusStopped, "", 0, nil)
		return err
	default:
		m.settle(task, StatusFailed, "", 0, err)
		return err
	}
}

// settle records a task's final state exactly once. Later calls (for
// example the run loop observing the cancellation that Stop already
// recorded) are no-ops.
func (m *Manager) settle(task *Task, status Status, result string, steps int, cause error) {
	m.mu.Lock()
	if task.Status != StatusRunning {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	task.Status = status
	task.FinishedAt = &now
	task.Result = result
	task.Steps = steps
	task.Success = status == StatusCompleted
	if cause != nil {
		task.Error = cause.Error()
	}
	snapshot := task.clone()
	m.mu.Unlock()

	m.finalize(snapshot)
}

// finalize persists a settled task and reports it.
func (m *Manager) finalize(snapshot *Task) {
	if err := m.store.Save(context.Background(), snapshot); err != nil {
		log.Error().Err(err).Str("task_id", snapshot.ID).Msg("Failed to store task result")
	}

	duration := time.Duration(0)
	if snapshot.FinishedAt != nil {
		duration = snapshot.FinishedAt.Sub(snapshot.StartedAt)
	}
	observability.RecordTask(string(snapshot.Status), duration)

	event := "task." + string(snapshot.Status)
	data := map[string]interface{}{
		"task_id": snapshot.ID,
		"status":  string(snapshot.Status),
		"steps":   snapshot.Steps,
	}
	if snapshot.Error != "" {
		data["error"] = snapshot.Error
	}
	m.emit(event, data)

	log.Info().
		Str("task_id", snapshot.ID).
		Str("status", string(snapshot.Status)).
		Dur("duration", duration).
		Msg("Task settled")
}

// Stop cancels a running task. It returns the stopped task and true,
// or false when no task with that id is running.
func (m *Manager) Stop(id string) (*Task, bool) {
	m.mu.Lock()
	rt, exists := m.running[id]
	if !exists {
		m.mu.Unlock()
		return nil, false
	}

	alreadySettled := rt.task.Status != StatusRunning
	if !alreadySettled {
		now := time.Now()
		rt.task.Status = StatusStopped
		rt.task.FinishedAt = &now
	}
	snapshot := rt.task.clone()
	cancel := rt.cancel
	m.mu.Unlock()

	cancel()
	if !alreadySettled {
		m.finalize(snapshot)
	}
	return snapshot, true
}

// StopAll cancels every running task. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// Get returns a task by id, checking running tasks before the store.
func (m *Manager) Get(ctx context.Context, id string) (*Task, error) {
	m.mu.Lock()
	if rt, exists := m.running[id]; exists {
		snapshot := rt.task.clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	return m.store.Get(ctx, id)
}

// List returns the running tasks and the stored results.
func (m *Manager) List(ctx context.Context) (running []*Task, completed []*Task, err error) {
	m.mu.Lock()
	running = make([]*Task, 0, len(m.running))
	for _, rt := range m.running {
		running = append(running, rt.task.clone())
	}
	m.mu.Unlock()

	completed, err = m.store.List(ctx)
	return running, completed, err
}

// Remove deletes a stored task result and returns it. Running tasks
// cannot be removed, stop them first.
func (m *Manager) Remove(ctx context.Context, id string) (*Task, error) {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	return task, nil
}

// RunningCount returns the number of currently running tasks.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *Manager) register(task *Task, cancel context.CancelFunc) {
	m.mu.Lock()
	m.running[task.ID] = &runningTask{task: task, cancel: cancel}
	count := len(m.running)
	m.mu.Unlock()
	observability.SetTasksRunning(count)
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.running, id)
	count := len(m.running)
	m.mu.Unlock()
	observability.SetTasksRunning(count)
}

// SetEventSink registers a sink for task lifecycle events.
func (m *Manager) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

func (m *Manager) emit(event string, data map[string]interface{}) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return
	}
	sink(event, data)
}
