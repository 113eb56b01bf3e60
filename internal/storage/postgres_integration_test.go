package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/safetransit/safetransit/internal/log"
	"github.com/safetransit/safetransit/internal/report"
)

// Postgres must satisfy the intake flow's sink contract.
var _ report.Sink = (*Postgres)(nil)

// setupPostgres starts a disposable PostgreSQL container, applies the
// migrations, and returns a connected pool.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("safetransit_test"),
		postgres.WithUsername("safetransit_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgres_AppendAndRecent(t *testing.T) {
	pool := setupPostgres(t)
	store := NewPostgres(pool, log.NewNop())
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := testReport("Stazione FS", report.CrowdHigh, base)
	first.Concerns = []report.Concern{report.ConcernPoorLighting}
	first.AdditionalInfo = "dark platform"
	first.SafetyScore = report.SafetyScore(first.CrowdLevel, first.Concerns)

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, testReport("Ospedale", report.CrowdLow, base.Add(time.Minute))))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Ospedale", recent[0].Location, "newest first")

	got := recent[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, report.CrowdHigh, got.CrowdLevel)
	assert.Equal(t, []report.Concern{report.ConcernPoorLighting}, got.Concerns)
	assert.Equal(t, "dark platform", got.AdditionalInfo)
	assert.InDelta(t, 3.0, got.SafetyScore, 1e-9)
	assert.WithinDuration(t, base, got.Timestamp, time.Millisecond)
}

func TestPostgres_StopStatus(t *testing.T) {
	pool := setupPostgres(t)
	store := NewPostgres(pool, log.NewNop())
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Append(ctx, testReport("Stazione FS", report.CrowdLow, base)))
	require.NoError(t, store.Append(ctx, testReport("Stazione FS", report.CrowdHigh, base.Add(time.Hour))))
	require.NoError(t, store.Append(ctx, testReport("Ospedale", report.CrowdMedium, base)))

	statuses, err := store.StopStatus(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "Ospedale", statuses[0].Location)
	assert.Equal(t, "Stazione FS", statuses[1].Location)
	assert.Equal(t, report.CrowdHigh, statuses[1].CrowdLevel)
	assert.Equal(t, 2, statuses[1].ReportCount)
}

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	pool := setupPostgres(t)

	connStr := pool.Config().ConnString()
	require.NoError(t, Migrate(connStr))
}
