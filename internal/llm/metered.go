package llm

import (
	"context"
	"sync"
	"time"

	"github.com/certforge/backend/internal/metrics"
)

// UsageRecorder accumulates the token usage and estimated cost of every
// call made with a context that carries it.
type UsageRecorder struct {
	mu    sync.Mutex
	usage Usage
	cost  float64
}

func (r *UsageRecorder) add(model string, u Usage) float64 {
	cost := EstimateCost(model, u)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = r.usage.Add(u)
	r.cost += cost
	return cost
}

func (r *UsageRecorder) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// CostUSD returns the accumulated cost estimate.
func (r *UsageRecorder) CostUSD() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cost
}

type recorderKey struct{}

func WithUsageRecorder(ctx context.Context, r *UsageRecorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func usageRecorderFrom(ctx context.Context) *UsageRecorder {
	r, _ := ctx.Value(recorderKey{}).(*UsageRecorder)
	return r
}

// Metered wraps a Client with Prometheus metrics and per-context usage
// recording.
type Metered struct {
	Client
}

func NewMetered(c Client) *Metered {
	return &Metered{Client: c}
}

func (m *Metered) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	purpose := string(req.Purpose)
	start := time.Now()
	resp, err := m.Client.Complete(ctx, req)
	metrics.LLMDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		return nil, err
	}
	metrics.LLMCalls.WithLabelValues(purpose, "ok").Inc()

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	cost := EstimateCost(model, resp.Usage)
	if r := usageRecorderFrom(ctx); r != nil {
		cost = r.add(model, resp.Usage)
	}
	if cost > 0 {
		metrics.LLMCostUSD.WithLabelValues(model).Add(cost)
	}
	return resp, nil
}
