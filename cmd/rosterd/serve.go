package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rosterd/internal/audit"
	auditkafka "rosterd/internal/audit/kafka"
	auditpg "rosterd/internal/audit/postgres"
	"rosterd/internal/docstore/memory"
	"rosterd/internal/docstore/redisfeed"
	"rosterd/internal/participant"
	pmetrics "rosterd/internal/participant/metrics"
	"rosterd/internal/platform/config"
	"rosterd/internal/platform/httpserver"
	"rosterd/internal/platform/logger"
	"rosterd/internal/platform/redis"
	httptransport "rosterd/internal/transport/http"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the roster HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit pipeline: memory store unless Postgres is configured, optional
	// Kafka fan-out, buffered persistence.
	var auditStore audit.Store = audit.NewMemoryStore()
	if dsn := cfg.Audit.PostgresDSN; dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping audit database: %w", err)
		}
		auditStore = auditpg.New(db)
	}

	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithAsyncBuffer(cfg.Audit.Buffer),
	}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := auditkafka.NewSink(ctx, auditkafka.Config{
			Brokers: cfg.Audit.KafkaBrokers,
			Topic:   cfg.Audit.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("connect audit kafka sink: %w", err)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	// Store engine, optionally mirroring commits to Redis pub/sub.
	var storeOpts []memory.Option
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		feed := redisfeed.New(redisClient, log)
		storeOpts = append(storeOpts, memory.WithCommitHook(feed.Hook()))
		log.Info().Msg("redis changefeed enabled")
	}
	store := memory.New(storeOpts...)
	defer store.Close()

	managerOpts := []participant.ManagerOption{
		participant.WithAudit(publisher),
		participant.WithLogger(log),
		participant.WithMetrics(pmetrics.New()),
	}
	if cfg.Roster.StrictTransitions {
		managerOpts = append(managerOpts, participant.WithStrictTransitions())
	}
	manager, err := participant.NewManager(ctx, store, managerOpts...)
	if err != nil {
		return err
	}

	handler := httptransport.NewHandler(manager, store, log, cfg.Roster.PageSize)
	router := httptransport.NewRouter(handler, log)
	srv := httpserver.New(cfg.Server, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting rosterd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
