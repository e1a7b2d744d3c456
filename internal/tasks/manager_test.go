package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanya/webagentd/pkg/pool"
	"github.com/okanya/webagentd/pkg/worker"
)

type fakeDriver struct{}

func (d *fakeDriver) Probe(ctx context.Context) error { return nil }
func (d *fakeDriver) Close(ctx context.Context) error { return nil }

type fakeSession struct{}

func (s *fakeSession) PageCount(ctx context.Context) (int, error) { return 1, nil }
func (s *fakeSession) OpenProbePage(ctx context.Context) error    { return nil }
func (s *fakeSession) Close(ctx context.Context) error            { return nil }

type fakeSessionFactory struct{}

func (f *fakeSessionFactory) Create(ctx context.Context) (pool.DriverHandle, pool.SessionHandle, error) {
	return &fakeDriver{}, &fakeSession{}, nil
}

// staticProvider immediately answers with fixed content.
type staticProvider struct {
	content string
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) CreateCompletion(ctx context.Context, request worker.CompletionRequest) (*worker.CompletionResponse, error) {
	return &worker.CompletionResponse{
		Content: p.content,
		Usage:   &worker.TokenUsage{InputTokens: 1, OutputTokens: 1},
	}, nil
}

// blockingProvider parks until its context is canceled, signaling once
// the call has started.
type blockingProvider struct {
	started chan struct{}
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{}, 16)}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) CreateCompletion(ctx context.Context, request worker.CompletionRequest) (*worker.CompletionResponse, error) {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func buildFor(provider worker.Provider) WorkerFactoryBuilder {
	return func(cfg worker.Config) pool.WorkerFactory {
		return func(ctx context.Context, _ pool.DriverHandle, _ pool.SessionHandle, task string) (pool.WorkerHandle, error) {
			return worker.New(provider, worker.NewRegistry(), task, cfg), nil
		}
	}
}

func testPool(t *testing.T, maxSessions int) *pool.Pool {
	t.Helper()

	p := pool.New(&fakeSessionFactory{}, pool.Options{
		MaxSessions:      maxSessions,
		MaxIdleDuration:  time.Hour,
		SweepInterval:    time.Hour,
		ProbeTimeout:     50 * time.Millisecond,
		PageProbeTimeout: 50 * time.Millisecond,
		FactoryTimeout:   time.Second,
	})
	t.Cleanup(p.Shutdown)
	return p
}

func testManager(t *testing.T, p *pool.Pool, provider worker.Provider, sink EventSink) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		Pool:               p,
		Store:              NewMemoryStore(),
		WorkerConfig:       worker.Config{Model: "test-model", MaxSteps: 5},
		EventSink:          sink,
		BuildWorkerFactory: buildFor(provider),
	})
	require.NoError(t, err)
	return m
}

func submitReq(description string) SubmitRequest {
	return SubmitRequest{
		Description:   description,
		Headers:       map[string]string{"Authorization": "Bearer token-1"},
		SourceAddress: "10.0.0.1",
	}
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Task {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := m.Get(context.Background(), id)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", id, want)
	return nil
}

func TestNewManagerValidation(t *testing.T) {
	p := testPool(t, 2)

	_, err := NewManager(Config{Store: NewMemoryStore()})
	assert.ErrorContains(t, err, "pool")

	_, err = NewManager(Config{Pool: p})
	assert.ErrorContains(t, err, "store")

	_, err = NewManager(Config{Pool: p, Store: NewMemoryStore()})
	assert.ErrorContains(t, err, "provider")

	// A provider alone is enough, the default factory builder kicks in.
	m, err := NewManager(Config{Pool: p, Store: NewMemoryStore(), Provider: &staticProvider{}})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestSubmitSyncCompletes(t *testing.T) {
	p := testPool(t, 2)
	m := testManager(t, p, &staticProvider{content: "all done"}, nil)

	task, err := m.Submit(context.Background(), submitReq("check the weather"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.True(t, task.Success)
	assert.Equal(t, "all done", task.Result)
	assert.Equal(t, 1, task.Steps)
	assert.NotEmpty(t, task.UserKey)
	require.NotNil(t, task.FinishedAt)

	// The result is persisted and the session is released but kept.
	stored, err := m.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	status := p.Status()
	require.Contains(t, status.Sessions, task.UserKey)
	assert.Equal(t, 0, status.Sessions[task.UserKey].ActiveTasks)
	assert.False(t, status.Sessions[task.UserKey].HasWorker)
	assert.Equal(t, 0, m.RunningCount())
}

func TestSubmitRejectsEmptyDescription(t *testing.T) {
	p := testPool(t, 2)
	m := testManager(t, p, &staticProvider{content: "x"}, nil)

	_, err := m.Submit(context.Background(), submitReq("   "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestSubmitAsyncReturnsImmediately(t *testing.T) {
	p := testPool(t, 2)
	m := testManager(t, p, &staticProvider{content: "done later"}, nil)

	req := submitReq("slow thing")
	req.Async = true

	task, err := m.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)
	assert.Nil(t, task.FinishedAt)

	final := waitForStatus(t, m, task.ID, StatusCompleted)
	assert.Equal(t, "done later", final.Result)
}

func TestStopCancelsRunningTask(t *testing.T) {
	p := testPool(t, 2)
	provider := newBlockingProvider()
	m := testManager(t, p, provider, nil)

	req := submitReq("never finishes")
	req.Async = true

	task, err := m.Submit(context.Background(), req)
	require.NoError(t, err)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started")
	}

	stopped, ok := m.Stop(task.ID)
	require.True(t, ok)
	assert.Equal(t, StatusStopped, stopped.Status)
	assert.False(t, stopped.Success)
	require.NotNil(t, stopped.FinishedAt)

	final := waitForStatus(t, m, task.ID, StatusStopped)
	assert.Equal(t, StatusStopped, final.Status)

	// Stopping an unknown or already finished task reports false.
	_, ok = m.Stop("no-such-task")
	assert.False(t, ok)
}

func TestSubmitCapacityExceeded(t *testing.T) {
	p := testPool(t, 1)
	provider := newBlockingProvider()
	m := testManager(t, p, provider, nil)

	first := submitReq("occupies the only slot")
	first.Async = true
	running, err := m.Submit(context.Background(), first)
	require.NoError(t, err)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first task never started")
	}

	second := submitReq("wants a second session")
	second.Headers = map[string]string{"Authorization": "Bearer other-token"}

	task, err := m.Submit(context.Background(), second)
	require.Error(t, err)
	assert.True(t, pool.IsCapacityExceeded(err))
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Error, "pool is full")

	m.Stop(running.ID)
}

func TestSubmitWorkerFactoryFailure(t *testing.T) {
	p := testPool(t, 2)

	m, err := NewManager(Config{
		Pool:  p,
		Store: NewMemoryStore(),
		BuildWorkerFactory: func(cfg worker.Config) pool.WorkerFactory {
			return func(ctx context.Context, _ pool.DriverHandle, _ pool.SessionHandle, task string) (pool.WorkerHandle, error) {
				return nil, fmt.Errorf("no tools available")
			}
		},
	})
	require.NoError(t, err)

	task, err := m.Submit(context.Background(), submitReq("doomed"))
	require.Error(t, err)
	assert.True(t, pool.IsWorkerFactoryFailed(err))
	assert.Equal(t, StatusFailed, task.Status)

	// The implicated session was evicted.
	assert.Equal(t, 0, p.Size())
}

func TestListSplitsRunningAndCompleted(t *testing.T) {
	p := testPool(t, 2)
	provider := newBlockingProvider()
	m := testManager(t, p, provider, nil)

	done, err := NewManager(Config{
		Pool:               p,
		Store:              m.store,
		WorkerConfig:       worker.Config{Model: "test-model", MaxSteps: 5},
		BuildWorkerFactory: buildFor(&staticProvider{content: "finished"}),
	})
	require.NoError(t, err)

	finished, err := done.Submit(context.Background(), submitReq("quick"))
	require.NoError(t, err)

	req := submitReq("slow")
	req.Headers = map[string]string{"Authorization": "Bearer slow-token"}
	req.Async = true
	slow, err := m.Submit(context.Background(), req)
	require.NoError(t, err)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow task never started")
	}

	running, completed, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, slow.ID, running[0].ID)
	require.Len(t, completed, 1)
	assert.Equal(t, finished.ID, completed[0].ID)

	m.Stop(slow.ID)
}

func TestRemoveDeletesStoredResult(t *testing.T) {
	p := testPool(t, 2)
	m := testManager(t, p, &staticProvider{content: "done"}, nil)

	task, err := m.Submit(context.Background(), submitReq("short lived"))
	require.NoError(t, err)

	removed, err := m.Remove(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, removed.ID)

	_, err = m.Get(context.Background(), task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = m.Remove(context.Background(), task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEventsFollowTaskLifecycle(t *testing.T) {
	p := testPool(t, 2)

	var mu sync.Mutex
	events := []string{}
	sink := func(event string, data map[string]interface{}) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	m := testManager(t, p, &staticProvider{content: "ok"}, sink)

	_, err := m.Submit(context.Background(), submitReq("observe me"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "task.started", events[0])
	assert.Equal(t, "task.completed", events[1])
}

func TestStopAllCancelsEverything(t *testing.T) {
	p := testPool(t, 3)
	provider := newBlockingProvider()
	m := testManager(t, p, provider, nil)

	ids := []string{}
	for i := 0; i < 2; i++ {
		req := submitReq("long runner")
		req.Headers = map[string]string{"Authorization": fmt.Sprintf("Bearer token-%d", i)}
		req.Async = true

		task, err := m.Submit(context.Background(), req)
		require.NoError(t, err)
		ids = append(ids, task.ID)

		select {
		case <-provider.started:
		case <-time.After(5 * time.Second):
			t.Fatal("task never started")
		}
	}

	m.StopAll()

	for _, id := range ids {
		final := waitForStatus(t, m, id, StatusStopped)
		assert.Equal(t, StatusStopped, final.Status)
	}
}
