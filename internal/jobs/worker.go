package jobs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/queue"
)

// Registry maps message types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.JobType]queue.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]queue.Handler)}
}

func (r *Registry) Register(t models.JobType, h queue.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

func (r *Registry) Get(t models.JobType) (queue.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// RegisterPipeline wires the objective and generate handlers.
func RegisterPipeline(r *Registry, objective *ObjectiveHandler, generate *GenerateHandler) {
	r.Register(models.JobTypeObjective, func(ctx context.Context, msg models.QueueJob) error {
		if msg.Objective == nil {
			return fmt.Errorf("objective message without payload")
		}
		return objective.Handle(ctx, *msg.Objective)
	})
	r.Register(models.JobTypeGenerate, func(ctx context.Context, msg models.QueueJob) error {
		if msg.Generate == nil {
			return fmt.Errorf("generate message without payload")
		}
		return generate.Handle(ctx, *msg.Generate)
	})
}

type missingHandlerError struct{ JobType models.JobType }

func (e *missingHandlerError) Error() string {
	return "no handler registered for type=" + string(e.JobType)
}

// Worker runs Concurrency consumers against a queue and dispatches each
// message through the registry.
type Worker struct {
	queue       queue.Queue
	registry    *Registry
	concurrency int
	log         *logger.Logger
}

func NewWorker(q queue.Queue, registry *Registry, concurrency int, baseLog *logger.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		registry:    registry,
		concurrency: concurrency,
		log:         baseLog.With("component", "JobWorker"),
	}
}

// Run blocks until ctx is cancelled or a consumer fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "concurrency", w.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.queue.Consume(gctx, w.Dispatch)
		})
	}
	err := g.Wait()
	w.log.Info("worker stopped")
	return err
}

// Dispatch handles one message. Handler panics become errors so the queue
// redelivers the message.
func (w *Worker) Dispatch(ctx context.Context, msg models.QueueJob) (err error) {
	h, ok := w.registry.Get(msg.Type)
	if !ok {
		metrics.QueueMessages.WithLabelValues(string(msg.Type), "unhandled").Inc()
		w.log.Warn("no handler registered for message type", "type", msg.Type, "job_id", msg.JobID())
		return &missingHandlerError{JobType: msg.Type}
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic", "type", msg.Type, "job_id", msg.JobID(), "panic", r)
			err = fmt.Errorf("handler panic: %v", r)
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.QueueMessages.WithLabelValues(string(msg.Type), result).Inc()
	}()

	return h(ctx, msg)
}
