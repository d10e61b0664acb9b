// Package main runs one automated trading session: it connects to the
// trading API, authorizes, and drives repeated purchase cycles with a
// simple direction-following strategy until a risk limit triggers or a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"binarybot/internal/api"
	"binarybot/internal/domain"
	"binarybot/internal/engine"
	"binarybot/internal/events"
	"binarybot/internal/observability"
	"binarybot/internal/runtime"
	"binarybot/internal/storage"
	chstore "binarybot/internal/storage/clickhouse"
	"binarybot/internal/storage/memory"
	"binarybot/internal/storage/migrations"
	pgstore "binarybot/internal/storage/postgres"
)

// stores holds the storage implementations behind the engine.
type stores struct {
	records storage.TradeRecordStore
	totals  storage.TotalsStore
	archive storage.TickArchive
}

func main() {
	loadEnvFile()

	endpoint := flag.String("endpoint", os.Getenv("BOT_API_ENDPOINT"), "Trading API WebSocket endpoint")
	token := flag.String("token", os.Getenv("BOT_API_TOKEN"), "Session token")
	symbol := flag.String("symbol", "R_100", "Market symbol to trade")
	contractTypes := flag.String("contract-types", "CALL,PUT", "Comma-separated contract types")
	amount := flag.Float64("amount", 1.0, "Stake per contract")
	duration := flag.Int("duration", 5, "Contract duration")
	durationUnit := flag.String("duration-unit", "t", "Contract duration unit (t/s/m/h/d)")
	maxLoss := flag.Float64("max-loss", 0, "Session loss limit (0 disables, requires --max-trades)")
	maxTrades := flag.Int("max-trades", 0, "Session trade limit (0 disables, requires --max-loss)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	if *endpoint == "" {
		logger.Fatal("--endpoint is required")
	}
	if *token == "" {
		logger.Fatal("--token is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	observer := events.New()
	client, err := api.NewWSClient(ctx, *endpoint, observer, nil)
	if err != nil {
		logger.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	metrics := observability.NewMetrics("binarybot")
	eng := engine.New(client, observer, engine.Options{
		Symbol:  *symbol,
		Records: st.records,
		Totals:  st.totals,
		Archive: st.archive,
		Metrics: metrics,
	})
	bridge := runtime.New(eng)

	logTelemetry(observer, logger)

	go func() {
		http.Handle("/metrics", observability.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping session", sig)
		eng.Stop()
		cancel()
	}()

	opt := &domain.TradeOption{
		Symbol:        *symbol,
		ContractTypes: splitList(*contractTypes),
		Duration:      *duration,
		DurationUnit:  *durationUnit,
		Basis:         "stake",
		Amount:        *amount,
	}
	if *maxLoss > 0 && *maxTrades > 0 {
		opt.Limitations = &domain.Limitations{MaxLoss: *maxLoss, MaxTrades: *maxTrades}
	}

	if err := runSession(ctx, bridge, *token, opt, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Session error: %v", err)
	}

	totals := eng.Totals()
	logger.Printf("Session complete: runs=%d profit=%.2f wins=%d losses=%d",
		totals.SessionRuns, totals.SessionProfit, totals.TotalWins, totals.TotalLosses)
}

// runSession drives repeated purchase cycles until a limit triggers, the
// context cancels, or the engine stops.
func runSession(ctx context.Context, bridge *runtime.Bridge, token string, opt *domain.TradeOption, logger *log.Logger) error {
	table := bridge.Table()

	if err := table.Init(ctx, token); err != nil {
		return err
	}

	for {
		err := table.Start(ctx, opt)
		var limits *engine.LimitsError
		if errors.As(err, &limits) {
			logger.Printf("Risk limit reached: %s", limits.Reason)
			return nil
		}
		if err != nil {
			return err
		}

		inBefore, err := table.Watch(ctx, "before")
		if err != nil {
			return err
		}
		if !inBefore {
			return nil // stopped
		}

		contractType := pickContract(table.Direction(), opt.ContractTypes)
		if err := table.Purchase(ctx, contractType); err != nil {
			return err
		}

		for {
			holding, err := table.Watch(ctx, "during")
			if err != nil {
				return err
			}
			if !holding {
				break // settled or stopped
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// pickContract follows the last tick direction: rising markets buy the
// first contract type, falling the second.
func pickContract(direction string, contractTypes []string) string {
	if direction == domain.DirectionFall && len(contractTypes) > 1 {
		return contractTypes[1]
	}
	return contractTypes[0]
}

// logTelemetry mirrors the engine's telemetry stream to the log.
func logTelemetry(observer *events.Observer, logger *log.Logger) {
	observer.Register(engine.TopicLogin, func(payload any) {
		logger.Printf("Logged in: %v", payload)
	})
	observer.Register(engine.TopicPurchase, func(payload any) {
		if info, ok := payload.(engine.PurchaseInfo); ok {
			logger.Printf("Purchased %s contract %d at %.2f (run %d)",
				info.ContractType, info.ContractID, info.BuyPrice, info.TotalRuns)
		}
	})
	observer.Register(engine.TopicFinish, func(payload any) {
		if info, ok := payload.(engine.SettlementInfo); ok {
			logger.Printf("Settled contract %d: profit %.2f (session %.2f, lifetime %.2f)",
				info.Contract.ContractID, info.Profit,
				info.Totals.SessionProfit, info.Totals.TotalProfit)
		}
	})
	observer.Register(engine.TopicLimitsReached, func(payload any) {
		logger.Printf("Limits reached: %v", payload)
	})
	observer.Register(engine.TopicError, func(payload any) {
		logger.Printf("Engine error: %v", payload)
	})
}

// createStores creates the storage implementations and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*stores, func(), error) {
	if useMemory {
		return &stores{
			records: memory.NewTradeRecordStore(),
			totals:  memory.NewTotalsStore(),
			archive: memory.NewTickArchive(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	st := &stores{
		records: pgstore.NewTradeRecordStore(pool),
		totals:  pgstore.NewTotalsStore(pool),
		archive: chstore.NewTickArchiveStore(conn),
	}
	cleanup := func() {
		pool.Close()
		conn.Close()
	}
	return st, cleanup, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
