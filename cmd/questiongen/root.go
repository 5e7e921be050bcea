package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/certforge/backend/internal/config"
	"github.com/certforge/backend/internal/database"
	"github.com/certforge/backend/internal/logger"
	"github.com/certforge/backend/internal/progress"
	"github.com/certforge/backend/internal/queue"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var rootCmd = &cobra.Command{
	Use:           "questiongen",
	Short:         "Certification exam question generation pipeline",
	Long:          "questiongen serves the question generation API and runs the queue workers that research objectives, generate questions and validate them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", ".", "Directory containing config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("questiongen", version)
	},
}

// app holds the connections shared by the serve and worker commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *sql.DB
	rdb      *redis.Client
	progress *progress.Aggregator
}

func loadApp(cmd *cobra.Command, component string) (*app, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	baseLog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log := baseLog.With("service", "questiongen", "cmd", component)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := database.ConnectRedis(cmd.Context(), cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		progress: progress.NewAggregator(progress.NewRedisStore(rdb), cfg.Pipeline.ErrorThreshold, log),
	}, nil
}

func (a *app) stream(consumer string) *queue.Stream {
	return queue.NewStream(a.rdb, queue.StreamOptions{
		Stream:            a.cfg.Pipeline.Stream,
		Group:             a.cfg.Pipeline.ConsumerGroup,
		Consumer:          consumer,
		DeadLetter:        a.cfg.Pipeline.DeadLetterStream,
		VisibilityTimeout: a.cfg.Pipeline.VisibilityTimeout,
		MaxDeliveries:     a.cfg.Pipeline.MaxDeliveries,
	}, a.log)
}

func (a *app) Close() {
	a.rdb.Close()
	a.db.Close()
	a.log.Sync()
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
