package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// CreateOrder stores an order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, exchange, pair, action, side, rate, amount, status, strategy, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Exchange, o.Pair, o.Action, o.Side, o.Rate, o.Amount, o.Status, o.Strategy, o.Reason)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderStatus updates the status of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// CreateTrade stores a confirmed fill.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, exchange, pair, side, rate, amount, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Exchange, t.Pair, t.Side, t.Rate, t.Amount, t.Fee)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// SaveStrategyState upserts a strategy state snapshot.
func (d *Database) SaveStrategyState(ctx context.Context, s StrategyState) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_states (config_nr, pair, strategy, state_data, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(config_nr, pair, strategy) DO UPDATE SET
			state_data = excluded.state_data,
			updated_at = CURRENT_TIMESTAMP
	`, s.ConfigNr, s.Pair, s.Strategy, s.StateData)
	if err != nil {
		return fmt.Errorf("save strategy state: %w", err)
	}
	return nil
}

// LoadStrategyState fetches the snapshot for one strategy instance.
func (d *Database) LoadStrategyState(ctx context.Context, configNr int, pair, strategy string) (StrategyState, error) {
	var s StrategyState
	err := d.DB.QueryRowContext(ctx, `
		SELECT config_nr, pair, strategy, state_data, updated_at
		FROM strategy_states
		WHERE config_nr = ? AND pair = ? AND strategy = ?
	`, configNr, pair, strategy).Scan(&s.ConfigNr, &s.Pair, &s.Strategy, &s.StateData, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("load strategy state: %w", err)
	}
	return s, nil
}

// LoadStrategyStatesForPair returns all snapshots stored for a
// (config nr, pair). Used by the cascading restore policy to borrow state
// from a peer strategy with the same candle size.
func (d *Database) LoadStrategyStatesForPair(ctx context.Context, configNr int, pair string) ([]StrategyState, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT config_nr, pair, strategy, state_data, updated_at
		FROM strategy_states
		WHERE config_nr = ? AND pair = ?
	`, configNr, pair)
	if err != nil {
		return nil, fmt.Errorf("load strategy states: %w", err)
	}
	defer rows.Close()

	var out []StrategyState
	for rows.Next() {
		var s StrategyState
		if err := rows.Scan(&s.ConfigNr, &s.Pair, &s.Strategy, &s.StateData, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentOrders lists the latest orders for the operational API.
func (d *Database) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, exchange, pair, action, side, rate, amount, status,
		       COALESCE(strategy, ''), COALESCE(reason, ''), created_at
		FROM orders ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Exchange, &o.Pair, &o.Action, &o.Side, &o.Rate,
			&o.Amount, &o.Status, &o.Strategy, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
