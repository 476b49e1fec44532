package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Rows are
// keyed by a surrogate id so the exchange position id can be adopted after
// the fact without losing the row.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, position_id, trading_pair_id, symbol, pos_type, status,
	size, entry_price, current_price, closing_price, leverage, allocated_amount,
	unrealized_pnl, unrealized_pnl_pc, realized_pnl, realized_pnl_pc,
	opening_fees, closing_fees, funding_fees,
	external_order_id, open_time, close_time, last_updated`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var posType, status string

	err := row.Scan(
		&p.ID, &p.PositionID, &p.TradingPairID, &p.Symbol, &posType, &status,
		&p.Size, &p.EntryPrice, &p.CurrentPrice, &p.ClosingPrice,
		&p.Leverage, &p.AllocatedAmount,
		&p.UnrealizedPnL, &p.UnrealizedPnLPc, &p.RealizedPnL, &p.RealizedPnLPc,
		&p.OpeningFees, &p.ClosingFees, &p.FundingFees,
		&p.ExternalOrderID, &p.OpenTime, &p.CloseTime, &p.LastUpdated,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Type = domain.PositionType(posType)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position and fills in its surrogate id.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			position_id, trading_pair_id, symbol, pos_type, status,
			size, entry_price, current_price, closing_price, leverage, allocated_amount,
			unrealized_pnl, unrealized_pnl_pc, realized_pnl, realized_pnl_pc,
			opening_fees, closing_fees, funding_fees,
			external_order_id, open_time, close_time, last_updated
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22
		)`

	_, err := s.pool.Exec(ctx, query,
		p.PositionID, p.TradingPairID, p.Symbol, string(p.Type), string(p.Status),
		p.Size, p.EntryPrice, p.CurrentPrice, p.ClosingPrice, p.Leverage, p.AllocatedAmount,
		p.UnrealizedPnL, p.UnrealizedPnLPc, p.RealizedPnL, p.RealizedPnLPc,
		p.OpeningFees, p.ClosingFees, p.FundingFees,
		p.ExternalOrderID, p.OpenTime, p.CloseTime, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.PositionID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position. The row is located by
// the surrogate id when known, by position_id otherwise.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			position_id       = $2,
			status            = $3,
			size              = $4,
			current_price     = $5,
			closing_price     = $6,
			allocated_amount  = $7,
			unrealized_pnl    = $8,
			unrealized_pnl_pc = $9,
			realized_pnl      = $10,
			realized_pnl_pc   = $11,
			opening_fees      = $12,
			closing_fees      = $13,
			funding_fees      = $14,
			close_time        = $15,
			last_updated      = $16
		WHERE ($1 > 0 AND id = $1) OR ($1 = 0 AND position_id = $2)`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.PositionID, string(p.Status),
		p.Size, p.CurrentPrice, p.ClosingPrice, p.AllocatedAmount,
		p.UnrealizedPnL, p.UnrealizedPnLPc, p.RealizedPnL, p.RealizedPnLPc,
		p.OpeningFees, p.ClosingFees, p.FundingFees,
		p.CloseTime, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByPositionID retrieves a single position by its exchange position id.
func (s *PositionStore) GetByPositionID(ctx context.Context, positionID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE position_id = $1`, positionID)

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", positionID, err)
	}
	return p, nil
}

// ListOpen returns all open positions, most recently opened first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY open_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListOpenBySymbol returns open positions on a single instrument.
func (s *PositionStore) ListOpenBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open' AND symbol = $1
		 ORDER BY open_time DESC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for %s: %w", symbol, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions for %s: %w", symbol, err)
	}
	return positions, nil
}

// ListClosed returns closed positions with pagination and optional time
// filtering on the close time.
func (s *PositionStore) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'closed'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND close_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND close_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY close_time DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}
