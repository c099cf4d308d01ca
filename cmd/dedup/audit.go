package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type auditOptions struct {
	fromBeginning bool
	collection    string
	limit         int
}

func newAuditCmd() *cobra.Command {
	opts := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print removal events published by dedup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return tailAudit(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.fromBeginning, "from-beginning", false, "read the topic from its first offset")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "only show events for this collection")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "stop after printing this many events (0 = follow)")
	return cmd
}

func tailAudit(ctx context.Context, out io.Writer, opts *auditOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	printed := 0
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Audit.Topic, opts.fromBeginning,
		func(_ context.Context, _ []byte, value []byte) error {
			ev, err := kafka.DecodeJSON[audit.Event](value)
			if err != nil {
				return err
			}
			if opts.collection != "" && ev.Collection != opts.collection {
				return nil
			}
			printEvent(out, ev)
			printed++
			if opts.limit > 0 && printed >= opts.limit {
				return kafka.ErrStop
			}
			return nil
		})
	return consumer.Start(ctx)
}

func printEvent(out io.Writer, ev audit.Event) {
	line := fmt.Sprintf("%s %s %s %s",
		ev.RemovedAt.Format(time.RFC3339),
		color.CyanString(ev.Collection),
		ev.ID,
		color.YellowString(string(ev.Reason)),
	)
	if ev.Key != "" {
		line += " key=" + ev.Key
	}
	fmt.Fprintf(out, "%s run=%s\n", line, ev.RunID)
}
