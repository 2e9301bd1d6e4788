package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
	"github.com/quizsmith/quizsmith-api/internal/generation"
	"github.com/quizsmith/quizsmith-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator is a controllable Generator for engine tests. If block is
// set, Synthesize waits on it (or the context) before returning.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	quiz    *domain.Quiz
	err     error
	block   chan struct{}
	started chan struct{}
}

func (g *fakeGenerator) Synthesize(ctx context.Context, text string) (*domain.Quiz, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if g.err != nil {
		return nil, g.err
	}
	return g.quiz.Clone(), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQuiz(t *testing.T) *domain.Quiz {
	t.Helper()

	quiz := &domain.Quiz{Questions: make([]domain.Question, domain.QuizQuestionCount)}
	for i := range quiz.Questions {
		quiz.Questions[i] = domain.Question{
			Prompt: fmt.Sprintf("What is fact number %d?", i),
			Options: []string{
				fmt.Sprintf("Right %d", i),
				fmt.Sprintf("Wrong %d-a", i),
				fmt.Sprintf("Wrong %d-b", i),
				fmt.Sprintf("Wrong %d-c", i),
			},
			CorrectIndex: 0,
			Explanation:  fmt.Sprintf("Option A states fact number %d.", i),
		}
	}
	require.NoError(t, quiz.Validate())
	return quiz
}

func newTestEngine(t *testing.T, gen generation.Generator) (*Engine, *store.MemoryTaskStore) {
	t.Helper()

	s := store.NewMemoryTaskStore()
	eng, err := New(s, gen, Config{MaxInputBytes: 1000, WorkerCount: 2, QueueSize: 8}, testLogger())
	require.NoError(t, err)
	return eng, s
}

// waitForState polls until the task reaches the wanted state or the deadline
// passes.
func waitForState(t *testing.T, eng *Engine, id uuid.UUID, want domain.TaskState) *domain.Task {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := eng.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if task.State == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", id, want)
	return nil
}

func TestEngineSubmitAndComplete(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "The water cycle has three phases.")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateSubmitted, task.State)

	done := waitForState(t, eng, task.ID, domain.TaskStateCompleted)
	require.NotNil(t, done.Result)
	assert.NoError(t, done.Result.Validate())
	assert.Nil(t, done.Error)
	assert.Equal(t, 1, gen.callCount())
}

func TestEngineSubmitEmptyInput(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, s := newTestEngine(t, gen)

	_, err := eng.Submit(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// No task record is left behind.
	tasks, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestEngineSubmitOversizedInput(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)

	_, err := eng.Submit(context.Background(), strings.Repeat("x", 1001))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineGetStatusUnknownTask(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)

	_, err := eng.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEngineCancelUnknownTask(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)

	_, err := eng.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestEngineCancelSubmittedTask(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, s := newTestEngine(t, gen)
	// The engine is never started, so no worker picks the task up and it
	// stays submitted.

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	canceled, err := eng.Cancel(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCanceled, canceled.State)

	stored, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCanceled, stored.State)
	assert.Equal(t, 0, gen.callCount())
}

func TestEngineCancelWorkingTask(t *testing.T) {
	gen := &fakeGenerator{
		quiz:    testQuiz(t),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis never started")
	}

	_, err = eng.Cancel(context.Background(), task.ID)
	require.NoError(t, err)

	done := waitForState(t, eng, task.ID, domain.TaskStateCanceled)
	assert.True(t, done.CancelRequested)
	assert.Nil(t, done.Result)
	assert.Nil(t, done.Error)
}

func TestEngineCancelTerminalTaskIsNoOp(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	done := waitForState(t, eng, task.ID, domain.TaskStateCompleted)

	after, err := eng.Cancel(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, after.State)
	assert.Equal(t, done.Version, after.Version)
	require.NotNil(t, after.Result)
}

func TestEngineSynthesisFailureRecordsCause(t *testing.T) {
	gen := &fakeGenerator{
		err: fmt.Errorf("%w: exhausted 3 attempts", generation.ErrCollaboratorUnavailable),
	}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	done := waitForState(t, eng, task.ID, domain.TaskStateFailed)
	require.NotNil(t, done.Error)
	assert.Equal(t, generation.CauseCollaboratorUnavailable, done.Error.Code)
	assert.Nil(t, done.Result)
}

func TestEngineValidationExhaustedRecordsCause(t *testing.T) {
	gen := &fakeGenerator{
		err: fmt.Errorf("%w: question 3 invalid", generation.ErrValidationExhausted),
	}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	done := waitForState(t, eng, task.ID, domain.TaskStateFailed)
	require.NotNil(t, done.Error)
	assert.Equal(t, generation.CauseValidationExhausted, done.Error.Code)
}

func TestEngineSubmitQueueFull(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	s := store.NewMemoryTaskStore()
	eng, err := New(s, gen, Config{MaxInputBytes: 1000, WorkerCount: 1, QueueSize: 1}, testLogger())
	require.NoError(t, err)
	// The pool is never started, so the single queue slot fills up.

	first, err := eng.Submit(context.Background(), "first")
	require.NoError(t, err)

	_, err = eng.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrOverloaded)

	// The first task is still scheduled; the rejected one was failed so
	// pollers are not stranded.
	tasks, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, stored := range tasks {
		if stored.ID == first.ID {
			assert.Equal(t, domain.TaskStateSubmitted, stored.State)
		} else {
			assert.Equal(t, domain.TaskStateFailed, stored.State)
		}
	}
}

func TestEngineRecoverRequeuesSubmittedAndFailsWorking(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	s := store.NewMemoryTaskStore()

	submitted, err := domain.NewTask("left submitted by previous run")
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), submitted))

	working, err := domain.NewTask("left working by previous run")
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), working))
	snapshot, err := s.GetByID(context.Background(), working.ID)
	require.NoError(t, err)
	require.NoError(t, snapshot.TransitionTo(domain.TaskStateWorking))
	require.NoError(t, s.CompareAndUpdate(context.Background(), snapshot, 1))

	eng, err := New(s, gen, Config{MaxInputBytes: 1000, WorkerCount: 1, QueueSize: 8}, testLogger())
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	waitForState(t, eng, submitted.ID, domain.TaskStateCompleted)

	interrupted, err := eng.GetStatus(context.Background(), working.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateFailed, interrupted.State)
	require.NotNil(t, interrupted.Error)
	assert.Equal(t, generation.CauseInternal, interrupted.Error.Code)
}

func TestEngineListNewestFirst(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, s := newTestEngine(t, gen)

	for i := 0; i < 3; i++ {
		task, err := domain.NewTask(fmt.Sprintf("text %d", i))
		require.NoError(t, err)
		task.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Create(context.Background(), task))
	}

	tasks, err := eng.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].CreatedAt.Before(tasks[1].CreatedAt))
}

func TestEngineStateVisibilityIsMonotonic(t *testing.T) {
	gen := &fakeGenerator{quiz: testQuiz(t)}
	eng, _ := newTestEngine(t, gen)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()

	task, err := eng.Submit(context.Background(), "some text")
	require.NoError(t, err)

	// Versions observed by a poller never go backwards.
	var lastVersion int64
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := eng.GetStatus(context.Background(), task.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, snapshot.Version, lastVersion)
		lastVersion = snapshot.Version

		if snapshot.IsTerminal() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
}
