package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, mint, symbol, status,
	entry_price, current_price, quantity, cost_basis,
	closed_quantity, realized_pnl, unrealized_pnl, unrealized_pnl_pct,
	highest_price, highest_price_at, entry_time, updated_at,
	tranches, rungs_hit
`

// trancheRow is the JSONB representation of a tranche.
type trancheRow struct {
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Timestamp int64   `json:"timestamp"`
	Signature string  `json:"signature,omitempty"`
}

// Save upserts a position by ID.
func (s *PositionStore) Save(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	tranches := make([]trancheRow, len(p.Tranches))
	for i, t := range p.Tranches {
		tranches[i] = trancheRow{
			Size:      t.Size,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: t.Timestamp.UnixMilli(),
			Signature: t.Signature,
		}
	}
	tranchesJSON, err := json.Marshal(tranches)
	if err != nil {
		return fmt.Errorf("marshal tranches: %w", err)
	}
	rungsJSON, err := json.Marshal(p.RungsHit)
	if err != nil {
		return fmt.Errorf("marshal rungs: %w", err)
	}

	query := `
		INSERT INTO positions (` + positionColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18
		)
		ON CONFLICT (position_id) DO UPDATE SET
			status = EXCLUDED.status,
			entry_price = EXCLUDED.entry_price,
			current_price = EXCLUDED.current_price,
			quantity = EXCLUDED.quantity,
			cost_basis = EXCLUDED.cost_basis,
			closed_quantity = EXCLUDED.closed_quantity,
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			unrealized_pnl_pct = EXCLUDED.unrealized_pnl_pct,
			highest_price = EXCLUDED.highest_price,
			highest_price_at = EXCLUDED.highest_price_at,
			updated_at = EXCLUDED.updated_at,
			tranches = EXCLUDED.tranches,
			rungs_hit = EXCLUDED.rungs_hit
	`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.Mint, p.Symbol, string(p.Status),
		p.EntryPrice, p.CurrentPrice, p.Quantity, p.CostBasis,
		p.ClosedQuantity, p.RealizedPnl, p.UnrealizedPnl, p.UnrealizedPnlPct,
		p.HighestPrice, p.HighestPriceAt.UnixMilli(), p.EntryTime.UnixMilli(), p.UpdatedAt.UnixMilli(),
		tranchesJSON, rungsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Delete removes a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE position_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// LoadOpen retrieves all non-closed positions ordered by entry time ASC.
func (s *PositionStore) LoadOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
		WHERE status <> $1
		ORDER BY entry_time ASC, position_id ASC`

	rows, err := s.pool.Query(ctx, query, string(domain.PositionStatusClosed))
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return result, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                               domain.Position
		status                          string
		highestAt, entryTime, updatedAt int64
		tranchesJSON, rungsJSON         []byte
	)

	err := row.Scan(
		&p.ID, &p.Mint, &p.Symbol, &status,
		&p.EntryPrice, &p.CurrentPrice, &p.Quantity, &p.CostBasis,
		&p.ClosedQuantity, &p.RealizedPnl, &p.UnrealizedPnl, &p.UnrealizedPnlPct,
		&p.HighestPrice, &highestAt, &entryTime, &updatedAt,
		&tranchesJSON, &rungsJSON,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(status)
	p.HighestPriceAt = time.UnixMilli(highestAt)
	p.EntryTime = time.UnixMilli(entryTime)
	p.UpdatedAt = time.UnixMilli(updatedAt)

	var tranches []trancheRow
	if err := json.Unmarshal(tranchesJSON, &tranches); err != nil {
		return nil, fmt.Errorf("unmarshal tranches: %w", err)
	}
	for _, t := range tranches {
		p.Tranches = append(p.Tranches, domain.Tranche{
			Size:      t.Size,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Timestamp: time.UnixMilli(t.Timestamp),
			Signature: t.Signature,
		})
	}
	if err := json.Unmarshal(rungsJSON, &p.RungsHit); err != nil {
		return nil, fmt.Errorf("unmarshal rungs: %w", err)
	}

	return &p, nil
}
