package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// TradeJournal implements storage.TradeJournal on the exit_events table.
type TradeJournal struct {
	conn *Conn
}

// NewTradeJournal creates a new TradeJournal.
func NewTradeJournal(conn *Conn) *TradeJournal {
	return &TradeJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

const exitEventColumns = `event_id, position_id, mint, reason, percent_sold, quantity_sold,
	sell_price, proceeds, realized_pnl, remaining, closed, signature, timestamp`

// Record appends an event. Returns ErrDuplicateKey if event_id exists.
// MergeTree does not enforce keys, so existence is checked before insert.
func (j *TradeJournal) Record(ctx context.Context, e *domain.ExitEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	var count uint64
	if err := j.conn.QueryRow(ctx,
		`SELECT count() FROM exit_events WHERE event_id = ?`, e.EventID,
	).Scan(&count); err != nil {
		return fmt.Errorf("check exit event: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := j.conn.PrepareBatch(ctx, "INSERT INTO exit_events ("+exitEventColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var closed uint8
	if e.Closed {
		closed = 1
	}

	err = batch.Append(
		e.EventID, e.PositionID, e.Mint, string(e.Reason), e.PercentSold, e.QuantitySold,
		e.SellPrice, e.Proceeds, e.RealizedPnl, e.Remaining, closed, e.Signature, e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByMint retrieves all events for a mint, ordered by timestamp ASC.
func (j *TradeJournal) ListByMint(ctx context.Context, mint string) ([]*domain.ExitEvent, error) {
	query := `SELECT ` + exitEventColumns + ` FROM exit_events FINAL
		WHERE mint = ?
		ORDER BY timestamp ASC, event_id ASC`

	rows, err := j.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query exit events: %w", err)
	}
	defer rows.Close()

	return scanExitEvents(rows)
}

// ListByTimeRange retrieves events within [start, end] (inclusive, unix ms).
func (j *TradeJournal) ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.ExitEvent, error) {
	query := `SELECT ` + exitEventColumns + ` FROM exit_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, event_id ASC`

	rows, err := j.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query exit events: %w", err)
	}
	defer rows.Close()

	return scanExitEvents(rows)
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanExitEvents scans multiple rows into a slice.
func scanExitEvents(rows chRows) ([]*domain.ExitEvent, error) {
	var events []*domain.ExitEvent
	for rows.Next() {
		var (
			e         domain.ExitEvent
			reason    string
			closed    uint8
			timestamp int64
		)
		if err := rows.Scan(
			&e.EventID, &e.PositionID, &e.Mint, &reason, &e.PercentSold, &e.QuantitySold,
			&e.SellPrice, &e.Proceeds, &e.RealizedPnl, &e.Remaining, &closed, &e.Signature, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan exit event: %w", err)
		}
		e.Reason = domain.ExitReason(reason)
		e.Closed = closed == 1
		e.Timestamp = time.UnixMilli(timestamp)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit events: %w", err)
	}
	return events, nil
}
