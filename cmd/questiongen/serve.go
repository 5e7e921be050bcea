package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/certforge/backend/internal/catalog"
	"github.com/certforge/backend/internal/metrics"
	"github.com/certforge/backend/internal/middleware"
	"github.com/certforge/backend/internal/questions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question generation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret must be set")
		}
		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := runMigrations(a); err != nil {
				return err
			}
		}

		metrics.Init()
		stream := a.stream(consumerName())
		if err := stream.EnsureGroup(cmd.Context()); err != nil {
			return err
		}

		svc := questions.NewService(catalog.NewPostgres(a.db), a.progress, stream, questions.NewStore(a.db), a.log)

		r := mux.NewRouter()
		r.Use(metrics.Middleware)
		questions.NewHandler(svc, a.log).RegisterRoutes(r, middleware.Auth([]byte(a.cfg.Auth.JWTSecret)))
		r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := a.rdb.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		}).Methods("GET")
		r.Handle("/metrics", metrics.Handler()).Methods("GET")

		c := cors.New(cors.Options{
			AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		})

		srv := &http.Server{
			Addr:              ":" + a.cfg.Server.Port,
			Handler:           c.Handler(r),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			a.log.Info("server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			a.log.Info("server shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		if withWorker, _ := cmd.Flags().GetBool("with-worker"); withWorker {
			w, err := a.newWorker(stream, a.cfg.Pipeline.WorkerConcurrency)
			if err != nil {
				return err
			}
			g.Go(func() error { return runWorker(ctx, w) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Apply database migrations before serving")
	serveCmd.Flags().Bool("with-worker", false, "Also run queue consumers in this process")
}
