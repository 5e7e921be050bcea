package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/generator"
	"github.com/certforge/backend/internal/jobs"
	"github.com/certforge/backend/internal/llm"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/queue"
	"github.com/certforge/backend/internal/research"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume objective and generate jobs from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd, "worker")
		if err != nil {
			return err
		}
		defer a.Close()

		metrics.Init()
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency < 1 {
			concurrency = a.cfg.Pipeline.WorkerConcurrency
		}

		stream := a.stream(consumerName())
		if err := stream.EnsureGroup(cmd.Context()); err != nil {
			return err
		}
		w, err := a.newWorker(stream, concurrency)
		if err != nil {
			return err
		}
		return runWorker(cmd.Context(), w)
	},
}

func init() {
	workerCmd.Flags().Int("concurrency", 0, "Concurrent consumers (defaults to pipeline.worker_concurrency)")
}

// newWorker wires the research, generation and validation pipeline onto q.
func (a *app) newWorker(q queue.Queue, concurrency int) (*jobs.Worker, error) {
	provider, err := llm.New(a.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	client := llm.NewMetered(provider)
	lc := a.cfg.LLM

	researcher := research.NewResearcher(
		catalog.NewPostgres(a.db),
		research.NewRedisCache(a.rdb, a.cfg.Pipeline.ResearchTTL),
		client,
		research.Options{Model: lc.ResearchModel, Temperature: lc.Temperature, MaxTokens: lc.MaxTokens},
		a.log,
	)
	gen := generator.NewGenerator(client, generator.Options{
		Model:       lc.GenerationModel,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		MaxRetries:  a.cfg.Pipeline.MaxRetries,
		BackoffBase: a.cfg.Pipeline.BackoffBase,
	}, a.log)
	val := generator.NewValidator(client, generator.ValidatorOptions{
		Model:     lc.ValidationModel,
		MaxTokens: lc.MaxTokens,
		BatchSize: a.cfg.Pipeline.ValidationBatchSize,
	}, a.log)

	reg := jobs.NewRegistry()
	jobs.RegisterPipeline(reg,
		jobs.NewObjectiveHandler(researcher, q, a.progress, a.log),
		jobs.NewGenerateHandler(gen, val, a.progress, a.log),
	)

	a.log.Info("pipeline ready",
		"provider", lc.Provider,
		"generation_model", gen.ModelName(),
		"validation_model", val.ModelName(),
	)
	return jobs.NewWorker(q, reg, concurrency, a.log), nil
}

func runWorker(ctx context.Context, w *jobs.Worker) error {
	err := w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
