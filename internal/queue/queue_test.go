package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/models"
)

func objectiveMsg(jobID, objectiveID string) models.QueueJob {
	return models.NewObjectiveMessage(models.ObjectiveJob{
		JobID:         jobID,
		ExamID:        "exam-1",
		ObjectiveID:   objectiveID,
		QuestionCount: 3,
		Difficulty:    models.DifficultyMixed,
	})
}

func TestMemory_DrainFollowsFanOut(t *testing.T) {
	q := NewMemory(3)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, objectiveMsg("job-1", "obj-1")))

	var handled []models.JobType
	err := q.Drain(ctx, func(ctx context.Context, msg models.QueueJob) error {
		handled = append(handled, msg.Type)
		if msg.Type == models.JobTypeObjective {
			return q.Send(ctx,
				models.NewGenerateMessage(models.GenerateJob{JobID: msg.JobID(), Difficulty: models.DifficultyEasy}),
				models.NewGenerateMessage(models.GenerateJob{JobID: msg.JobID(), Difficulty: models.DifficultyHard}),
			)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []models.JobType{models.JobTypeObjective, models.JobTypeGenerate, models.JobTypeGenerate}, handled)
	assert.Len(t, q.Sent(), 3)
	assert.Zero(t, q.Pending())
}

func TestMemory_RedeliversThenDeadLetters(t *testing.T) {
	q := NewMemory(3)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, objectiveMsg("job-1", "flaky"), objectiveMsg("job-1", "broken")))

	attempts := map[string]int{}
	err := q.Drain(ctx, func(_ context.Context, msg models.QueueJob) error {
		id := msg.Objective.ObjectiveID
		attempts[id]++
		if id == "flaky" && attempts[id] < 2 {
			return errors.New("transient")
		}
		if id == "broken" {
			panic("nil research")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts["flaky"])
	assert.Equal(t, 3, attempts["broken"])

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "broken", dead[0].Message.Objective.ObjectiveID)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Contains(t, dead[0].LastErr, "panic")
}

func TestMemory_ConsumeStopsOnCancel(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, func(_ context.Context, msg models.QueueJob) error {
			got <- msg.JobID()
			return nil
		})
	}()

	require.NoError(t, q.Send(context.Background(), objectiveMsg("job-7", "obj-1")))
	select {
	case id := <-got:
		assert.Equal(t, "job-7", id)
	case <-time.After(2 * time.Second):
		t.Fatal("message not consumed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestStream_SendConsumeAck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewStream(rdb, StreamOptions{
		Stream:            "test:jobs",
		Group:             "workers",
		Consumer:          "w1",
		DeadLetter:        "test:dead",
		VisibilityTimeout: time.Hour,
		Block:             50 * time.Millisecond,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.EnsureGroup(ctx))
	// A second call must tolerate the existing group.
	require.NoError(t, s.EnsureGroup(ctx))

	require.NoError(t, s.Send(ctx,
		objectiveMsg("job-1", "obj-1"),
		models.NewGenerateMessage(models.GenerateJob{JobID: "job-1", ObjectiveID: "obj-1", Difficulty: models.DifficultyMedium}),
	))

	var (
		mu   sync.Mutex
		seen []models.QueueJob
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Consume(ctx, func(_ context.Context, msg models.QueueJob) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, msg)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.JobTypeObjective, seen[0].Type)
	assert.Equal(t, "obj-1", seen[0].Objective.ObjectiveID)
	assert.Equal(t, models.JobTypeGenerate, seen[1].Type)
	assert.Equal(t, models.DifficultyMedium, seen[1].Generate.Difficulty)

	pending, err := rdb.XPending(context.Background(), "test:jobs", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "handled messages must be acknowledged")
}

func TestStream_PoisonMessageDeadLettered(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewStream(rdb, StreamOptions{
		Stream:     "test:jobs",
		Group:      "workers",
		Consumer:   "w1",
		DeadLetter: "test:dead",
		Block:      50 * time.Millisecond,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.EnsureGroup(ctx))
	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "test:jobs",
		Values: map[string]interface{}{"type": "objective", "payload": "{not json"},
	}).Err())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Consume(ctx, func(context.Context, models.QueueJob) error {
			t.Error("poison message must not reach the handler")
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		n, err := rdb.XLen(context.Background(), "test:dead").Result()
		return err == nil && n == 1
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
