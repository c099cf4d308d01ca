package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/checkpoint"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/report"
	pgstore "github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/tracing"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	dryRun     bool
	resume     bool
	windowSize int
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <collection> [since-unix-seconds]",
		Short: "Scan a collection and delete duplicate records",
		Long: `Scan a collection and delete all but the most recent record of every
natural key. Known collections: ` + strings.Join(dedup.CollectionNames(), ", ") + `.

The optional second argument restricts the scan to records created at or after
the given Unix time (seconds).

Examples:
  dedup run commits                  # deduplicate the whole commits collection
  dedup run events 1349049600        # only events created since 2012-10-01
  dedup run commits --dry-run        # report what would be deleted
  dedup run commits --resume         # continue after the last reconciled window`,
		Args: validateRunArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDedup(ctx, cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report removals without deleting anything")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "start after the last checkpointed window")
	cmd.Flags().IntVar(&opts.windowSize, "window-size", 0, "records per reconciliation window (overrides config)")
	return cmd
}

func validateRunArgs(_ *cobra.Command, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig,
			"expected <collection> [since-unix-seconds], got %d argument(s)", len(args))
	}
	return nil
}

// parseSince converts a Unix time in seconds into the smallest identifier a
// record created at or after that time can have.
func parseSince(arg string) (time.Time, uuid.UUID, error) {
	secs, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, uuid.Nil, apperrors.Newf(apperrors.ErrInvalidTimestamp, apperrors.ExitConfig,
			"%q is not a Unix time in seconds", arg)
	}
	t := time.Unix(secs, 0).UTC()
	return t, docid.FromTime(t), nil
}

func runDedup(ctx context.Context, out io.Writer, args []string, opts *runOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if opts.windowSize > 0 {
		cfg.Dedup.WindowSize = opts.windowSize
	}
	if opts.resume && !cfg.Checkpoint.Enabled {
		return apperrors.New(apperrors.ErrInvalidConfig, apperrors.ExitConfig, "--resume requires checkpoint.enabled")
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	coll, err := dedup.LookupCollection(args[0], cfg.Dedup.Collections)
	if err != nil {
		return err
	}
	var since *uuid.UUID
	if len(args) > 1 {
		t, id, err := parseSince(args[1])
		if err != nil {
			return err
		}
		slog.Info("searching for duplicates after", "time", t)
		since = &id
	}

	b, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("collection", coll.Name)

	filter := dedup.Filter{MinID: since}
	if opts.resume {
		cp, err := b.checkpoints.Load(ctx, coll.Name)
		if err != nil {
			return fmt.Errorf("reading resume checkpoint: %w", err)
		}
		filter.MinID = checkpoint.ResumeFrom(since, cp)
		if cp != nil {
			log.Info("resuming from checkpoint",
				"last_id", cp.LastID,
				"created_at", docid.Time(cp.LastID),
				"window", cp.Window,
				"saved_at", cp.SavedAt,
			)
		}
	}

	m := metrics.New()
	metricsObs := report.NewMetricsObserver(m)
	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	var store dedup.Store = pgstore.New(b.pg, pgstore.Options{
		PageSize:     cfg.Dedup.PageSize,
		QueryTimeout: cfg.Dedup.QueryTimeout,
		QueryRetries: cfg.Dedup.QueryRetries,
	})
	if opts.dryRun {
		fmt.Fprintln(out, "DRY RUN MODE - no records will be deleted")
		store = dedup.NewDryRunStore(store)
	}

	engineOpts := []dedup.Option{
		dedup.WithWindowSize(cfg.Dedup.WindowSize),
		dedup.WithBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Dedup.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Dedup.Breaker.ResetTimeout,
			OnStateChange:    metricsObs.BreakerStateHook(),
		}),
		dedup.WithObserver(report.NewProgress(out, cfg.Dedup.ProgressEvery)),
		dedup.WithObserver(metricsObs),
	}
	var recorder *checkpoint.Recorder
	if b.checkpoints != nil && !opts.dryRun {
		if !opts.resume {
			if err := b.checkpoints.Clear(ctx, coll.Name); err != nil {
				return fmt.Errorf("resetting checkpoint: %w", err)
			}
		}
		recorder = checkpoint.NewRecorder(ctx, b.checkpoints)
		engineOpts = append(engineOpts, dedup.WithObserver(recorder))
	}
	var sink *audit.Sink
	if b.producer != nil && !opts.dryRun {
		sink = audit.NewSink(ctx, b.producer, runID, cfg.Audit.BatchSize)
		engineOpts = append(engineOpts, dedup.WithObserver(sink))
	}

	engine, err := dedup.NewEngine(store, coll, engineOpts...)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "dedup.run", runID)
	stats, runErr := engine.Run(ctx, filter)
	span.SetAttr("collection", coll.Name)
	span.SetAttr("processed", stats.Processed)
	span.SetAttr("removed", stats.Removed)
	span.End()
	span.Log(log)

	if recorder != nil && runErr == nil {
		if err := recorder.Finish(coll.Name, stats); err != nil {
			log.Error("clearing checkpoint failed", "error", err)
		}
	}

	if sink != nil {
		sink.Flush()
		published, dropped := sink.Counts()
		log.Info("audit events published", "published", published, "dropped", dropped)
	}
	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, coll.Name); err != nil {
			log.Error("metrics push failed", "error", err)
		}
		cancel()
	}

	fmt.Fprintln(out)
	report.Summary(out, stats, opts.dryRun)
	return runErr
}

// backends holds the connections a run uses. Redis and Kafka are only opened
// when checkpoints or auditing are enabled.
type backends struct {
	pg          *postgres.Client
	redis       *pkgredis.Client
	checkpoints *checkpoint.Store
	producer    *kafka.Producer
}

func connect(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pg, err := postgres.New(gctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		b.pg = pg
		return nil
	})
	if cfg.Checkpoint.Enabled {
		g.Go(func() error {
			rc, err := pkgredis.NewClient(gctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			b.redis = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.Close()
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, apperrors.ExitFailure, "%v", err)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(b.pg.Ping))
	if b.redis != nil {
		checker.Register("redis", health.PingCheck(b.redis.Ping))
	}
	if cfg.Audit.Enabled {
		checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka)
		}))
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rep := checker.Run(checkCtx)
	cancel()
	if err := rep.Err(); err != nil {
		b.Close()
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, apperrors.ExitFailure, "%v", err)
	}

	if b.redis != nil {
		b.checkpoints = checkpoint.NewStore(b.redis, cfg.Checkpoint.KeyPrefix, cfg.Checkpoint.TTL, pkgredis.IsNilError)
	}
	if cfg.Audit.Enabled {
		b.producer = kafka.NewProducer(cfg.Kafka, cfg.Audit.Topic)
	}
	return b, nil
}

func (b *backends) Close() {
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			slog.Error("closing kafka producer", "error", err)
		}
	}
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}
