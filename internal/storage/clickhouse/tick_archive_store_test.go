package clickhouse

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"binarybot/internal/domain"
)

// setupTestDB creates a ClickHouse container and returns a connection with
// the archive tables applied. Skipped unless INTEGRATION_TESTS is set.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run container-backed storage tests")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port()))
	require.NoError(t, err)

	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ticks (
			symbol   String,
			epoch    UInt64,
			quote    Float64,
			pip_size UInt8
		) ENGINE = ReplacingMergeTree()
		ORDER BY (symbol, epoch)
	`)
	require.NoError(t, err)

	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS candles (
			symbol       String,
			epoch        UInt64,
			open         Float64,
			high         Float64,
			low          Float64,
			close        Float64,
			interval_sec UInt32
		) ENGINE = ReplacingMergeTree()
		ORDER BY (symbol, interval_sec, epoch)
	`)
	require.NoError(t, err)
}

func TestTickArchiveStore_InsertAndGetTicks(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickArchiveStore(conn)
	ctx := context.Background()

	ticks := []domain.Tick{
		{Symbol: "R_100", Epoch: 1000, Quote: 1234.56, PipSize: 2},
		{Symbol: "R_100", Epoch: 1002, Quote: 1234.78, PipSize: 2},
		{Symbol: "R_50", Epoch: 1001, Quote: 200.1, PipSize: 4},
	}
	require.NoError(t, store.InsertTicks(ctx, ticks))

	got, err := store.GetTicks(ctx, "R_100", 0, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].Epoch)
	assert.Equal(t, 1234.78, got[1].Quote)
	assert.Equal(t, 2, got[0].PipSize)
}

func TestTickArchiveStore_InsertAndGetCandles(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickArchiveStore(conn)
	ctx := context.Background()

	candles := []domain.Candle{
		{Symbol: "R_100", Epoch: 1000, Open: 1, High: 3, Low: 0.5, Close: 2, Interval: 60},
		{Symbol: "R_100", Epoch: 1060, Open: 2, High: 4, Low: 1.5, Close: 3, Interval: 60},
		{Symbol: "R_100", Epoch: 1000, Open: 1, High: 3, Low: 0.5, Close: 2, Interval: 120},
	}
	require.NoError(t, store.InsertCandles(ctx, candles))

	got, err := store.GetCandles(ctx, "R_100", 60, 0, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].Epoch)
	assert.Equal(t, 3.0, got[1].Close)
}

func TestTickArchiveStore_EmptyBatchesAreNoops(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTickArchiveStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertTicks(ctx, nil))
	assert.NoError(t, store.InsertCandles(ctx, nil))
}
