// Package integration runs the dedup engine against real backing services:
// the PostgreSQL document store and the Redis checkpoint store. Tests skip
// when a service is unreachable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/checkpoint"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	pgstore "github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/redis"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(context.Background(), testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	rc, err := pkgredis.NewClient(context.Background(), config.RedisConfig{
		Addr: envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:   envOrDefaultInt("TEST_REDIS_DB", 15),
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "githubarchive_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "dedup"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// freshCollection creates an empty, uniquely named table and drops it when
// the test ends.
func freshCollection(t *testing.T, db *postgres.Client, name string) dedup.Collection {
	t.Helper()
	ctx := context.Background()
	table := fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
	require.NoError(t, db.EnsureCollection(ctx, table))
	t.Cleanup(func() {
		db.DB.ExecContext(context.Background(), `DROP TABLE IF EXISTS `+pq.QuoteIdentifier(table))
	})
	coll, err := dedup.LookupCollection(name, map[string]config.CollectionConfig{name: {Table: table}})
	require.NoError(t, err)
	return coll
}

func insertAt(t *testing.T, s *pgstore.Store, table string, at time.Time, doc map[string]any) dedup.ID {
	t.Helper()
	id := docid.FromTime(at)
	// Fill the random tail so ids created in the same millisecond stay unique.
	fresh := uuid.New()
	copy(id[9:], fresh[9:])
	require.NoError(t, s.InsertWithID(context.Background(), table, id, doc))
	return id
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresDedupCommits(t *testing.T) {
	db := skipIfNoPostgres(t)
	coll := freshCollection(t, db, "commits")
	store := pgstore.New(db, pgstore.Options{PageSize: 2, QueryTimeout: 5 * time.Second, QueryRetries: 2})

	base := time.Date(2012, 10, 1, 0, 0, 0, 0, time.UTC)
	commit := func(sha string) map[string]any {
		return map[string]any{"commit": map[string]any{"id": sha}, "repo": "octocat/hello"}
	}
	insertAt(t, store, coll.Table, base, commit("aaa"))
	b1 := insertAt(t, store, coll.Table, base.Add(time.Second), commit("bbb"))
	insertAt(t, store, coll.Table, base.Add(2*time.Second), map[string]any{"repo": "no-commit"})
	insertAt(t, store, coll.Table, base.Add(3*time.Second), commit("aaa"))
	a3 := insertAt(t, store, coll.Table, base.Add(4*time.Second), commit("aaa"))

	engine, err := dedup.NewEngine(store, coll)
	require.NoError(t, err)
	stats, err := engine.Run(context.Background(), dedup.Filter{})
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(3), stats.Removed)
	assert.Equal(t, int64(1), stats.Malformed)

	n, err := store.Count(context.Background(), coll.Table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var remaining []dedup.ID
	c, err := store.Find(context.Background(), coll.Table, dedup.Filter{}, coll.Projection())
	require.NoError(t, err)
	for c.Next(context.Background()) {
		remaining = append(remaining, c.Record().ID)
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []dedup.ID{b1, a3}, remaining)
}

func TestPostgresLowerBound(t *testing.T) {
	db := skipIfNoPostgres(t)
	coll := freshCollection(t, db, "events")
	store := pgstore.New(db, pgstore.Options{PageSize: 10})

	old := time.Date(2012, 9, 1, 0, 0, 0, 0, time.UTC)
	since := time.Date(2012, 10, 1, 0, 0, 0, 0, time.UTC)
	insertAt(t, store, coll.Table, old, map[string]any{"id": 1})
	insertAt(t, store, coll.Table, old.Add(time.Hour), map[string]any{"id": 1})
	insertAt(t, store, coll.Table, since, map[string]any{"id": 1})
	insertAt(t, store, coll.Table, since.Add(time.Hour), map[string]any{"id": 1})

	engine, err := dedup.NewEngine(store, coll)
	require.NoError(t, err)
	from := docid.FromTime(since)
	stats, err := engine.Run(context.Background(), dedup.Filter{MinID: &from})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(1), stats.Removed)
	n, err := store.Count(context.Background(), coll.Table)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisCheckpointResume(t *testing.T) {
	db := skipIfNoPostgres(t)
	rc := skipIfNoRedis(t)
	coll := freshCollection(t, db, "events")
	store := pgstore.New(db, pgstore.Options{PageSize: 3})
	checkpoints := checkpoint.NewStore(rc, fmt.Sprintf("test:%d:", time.Now().UnixNano()), time.Minute, pkgredis.IsNilError)
	t.Cleanup(func() { checkpoints.Clear(context.Background(), coll.Name) })

	base := time.Date(2012, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		insertAt(t, store, coll.Table, base.Add(time.Duration(i)*time.Second), map[string]any{"id": i % 2})
	}

	engine, err := dedup.NewEngine(store, coll,
		dedup.WithWindowSize(2),
		dedup.WithObserver(checkpoint.NewRecorder(context.Background(), checkpoints)),
	)
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), dedup.Filter{})
	require.NoError(t, err)

	cp, err := checkpoints.Load(context.Background(), coll.Name)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.Window)
	assert.Equal(t, int64(6), cp.Processed)

	resumed, err := engine.Run(context.Background(), dedup.Filter{MinID: checkpoint.ResumeFrom(nil, cp)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resumed.Processed)
	assert.Zero(t, resumed.Removed)
}
