package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_llm_calls_total",
			Help: "LLM completion calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "questiongen_llm_call_duration_seconds",
			Help:    "Duration of LLM completion calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"purpose"},
	)

	LLMCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD",
		},
		[]string{"model"},
	)

	QuestionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_questions_generated_total",
			Help: "Candidate questions produced by the generator",
		},
		[]string{"difficulty"},
	)

	ValidationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_validation_outcomes_total",
			Help: "Validation outcomes (valid, repaired, invalid)",
		},
		[]string{"outcome"},
	)

	ResearchLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_research_lookups_total",
			Help: "Research cache lookups by result",
		},
		[]string{"result"},
	)

	QueueMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_queue_messages_total",
			Help: "Queue messages handled by type and result",
		},
		[]string{"type", "result"},
	)

	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questiongen_jobs_finished_total",
			Help: "Generation jobs reaching a terminal status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			LLMCalls,
			LLMDuration,
			LLMCostUSD,
			QuestionsGenerated,
			ValidationOutcomes,
			ResearchLookups,
			QueueMessages,
			JobsFinished,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency labelled by the mux route
// template, so /status/{jobId} is one series rather than one per job.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
