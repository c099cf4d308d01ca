// Package e2e exercises a dedup run end to end: records are scanned from
// PostgreSQL, removals are published to Kafka by the audit sink and read
// back through the audit consumer.
//
// Prerequisites:
//   - PostgreSQL reachable with a database the test user can create tables in
//   - Kafka running with topic auto-creation enabled
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	pgstore "github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/postgres"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestAuditEventsRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, config.PostgresConfig{
		Host:     envOrDefault("E2E_POSTGRES_HOST", "localhost"),
		Port:     5432,
		Database: envOrDefault("E2E_POSTGRES_DB", "githubarchive_test"),
		User:     envOrDefault("E2E_POSTGRES_USER", "dedup"),
		Password: envOrDefault("E2E_POSTGRES_PASSWORD", "localdev"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Skipf("skipping e2e test: postgres unavailable: %v", err)
	}
	defer db.Close()

	kcfg := config.KafkaConfig{Brokers: []string{envOrDefault("E2E_KAFKA_BROKER", "localhost:9092")}}
	if err := kafka.Ping(ctx, kcfg); err != nil {
		t.Skipf("skipping e2e test: kafka unavailable: %v", err)
	}

	table := fmt.Sprintf("events_e2e_%d", time.Now().UnixNano())
	require.NoError(t, db.EnsureCollection(ctx, table))
	defer db.DB.ExecContext(context.Background(), `DROP TABLE IF EXISTS `+pq.QuoteIdentifier(table))

	store := pgstore.New(db, pgstore.Options{PageSize: 100})
	for _, key := range []string{"x", "y", "x", "x"} {
		_, err := store.Insert(ctx, table, map[string]any{"id": key})
		require.NoError(t, err)
	}

	coll, err := dedup.LookupCollection("events", map[string]config.CollectionConfig{"events": {Table: table}})
	require.NoError(t, err)

	topic := fmt.Sprintf("dedup.removed.e2e.%d", time.Now().UnixNano())
	producer := kafka.NewProducer(kcfg, topic)
	defer producer.Close()
	runID := "e2e-" + table
	sink := audit.NewSink(ctx, producer, runID, 10)

	engine, err := dedup.NewEngine(store, coll, dedup.WithObserver(sink))
	require.NoError(t, err)
	stats, err := engine.Run(ctx, dedup.Filter{})
	require.NoError(t, err)
	sink.Flush()
	require.Equal(t, int64(2), stats.Removed)

	published, dropped := sink.Counts()
	require.Zero(t, dropped, "audit batch was dropped; is topic auto-creation enabled?")
	require.Equal(t, 2, published)

	var got []audit.Event
	consumer := kafka.NewConsumer(kcfg, topic, true, func(_ context.Context, _ []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[audit.Event](value)
		if err != nil {
			return err
		}
		got = append(got, ev)
		if len(got) == 2 {
			return kafka.ErrStop
		}
		return nil
	})
	require.NoError(t, consumer.Start(ctx))

	require.Len(t, got, 2)
	for _, ev := range got {
		assert.Equal(t, runID, ev.RunID)
		assert.Equal(t, "events", ev.Collection)
		assert.Equal(t, "x", ev.Key)
		assert.Equal(t, dedup.ReasonDuplicate, ev.Reason)
	}
}
