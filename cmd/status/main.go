// Package main prints the persisted trader state: open positions, risk
// counters and recent exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
	chstore "solana-token-trader/internal/storage/clickhouse"
	pgstore "solana-token-trader/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, for recent exits)")
	since := flag.Duration("since", 24*time.Hour, "Show exits newer than this")
	flag.Parse()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Stdout, *postgresDSN, *clickhouseDSN, *since); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, postgresDSN, clickhouseDSN string, since time.Duration) error {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	positions, err := pgstore.NewPositionStore(pool).LoadOpen(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	risk, err := pgstore.NewRiskStateStore(pool).Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		risk = nil
	} else if err != nil {
		return fmt.Errorf("load risk state: %w", err)
	}

	var exits []*domain.ExitEvent
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		now := time.Now()
		exits, err = chstore.NewTradeJournal(conn).ListByTimeRange(ctx, now.Add(-since).UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("load exits: %w", err)
		}
	}

	return render(w, positions, risk, exits)
}

// render writes the state as aligned text tables.
func render(w io.Writer, positions []*domain.Position, risk *domain.RiskState, exits []*domain.ExitEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "RISK")
	if risk == nil {
		fmt.Fprintln(tw, "  no risk state saved")
	} else {
		fmt.Fprintf(tw, "  day\t%s\n", risk.Day)
		fmt.Fprintf(tw, "  trades today\t%d\n", risk.TradeCountToday)
		fmt.Fprintf(tw, "  pnl today\t%+.4f SOL\n", risk.PnlToday)
		fmt.Fprintf(tw, "  pnl this week\t%+.4f SOL\n", risk.PnlThisWeek)
	}

	fmt.Fprintf(tw, "\nOPEN POSITIONS (%d)\n", len(positions))
	if len(positions) > 0 {
		fmt.Fprintln(tw, "  MINT\tSYMBOL\tSTATUS\tENTRY\tLAST\tQTY\tCOST SOL\tPNL %\tAGE")
		for _, p := range positions {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%.10f\t%.10f\t%.2f\t%.4f\t%+.2f\t%s\n",
				p.Mint, p.Symbol, p.Status, p.EntryPrice, p.CurrentPrice, p.Quantity,
				p.CostBasis, p.UnrealizedPnlPct, time.Since(p.EntryTime).Truncate(time.Second))
		}
	}

	if exits != nil {
		fmt.Fprintf(tw, "\nEXITS (%d)\n", len(exits))
		if len(exits) > 0 {
			fmt.Fprintln(tw, "  TIME\tMINT\tREASON\tSOLD %\tPROCEEDS SOL\tPNL SOL\tCLOSED")
			for _, e := range exits {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%.0f\t%.4f\t%+.4f\t%v\n",
					e.Timestamp.UTC().Format(time.DateTime), e.Mint, e.Reason, e.PercentSold,
					e.Proceeds, e.RealizedPnl, e.Closed)
			}
		}
	}

	return tw.Flush()
}
