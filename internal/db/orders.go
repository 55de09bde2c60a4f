package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotx/internal/models"
	"spotx/internal/money"

	"github.com/jackc/pgx/v5"
)

const orderColumns = "id, user_id, symbol, side, price::text, amount::text, remaining_amount::text, status, cancelled_at, filled_at, created_at"

// InsertOrder persists a new order. Reservation of the backing funds or
// assets happens in the same transaction, before this call.
func (db *DB) InsertOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	created, err := scanOrderValues(tx.QueryRow(ctx,
		"INSERT INTO orders (user_id, symbol, side, price, amount, remaining_amount, status) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+orderColumns,
		order.UserID, order.Symbol, order.Side,
		money.String(order.Price), money.String(order.Amount), money.String(order.RemainingAmount),
		order.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrder retrieves an order without locking it. Returns nil when the
// order does not exist.
func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return scanOrder(db.Pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
}

// GetOrderForUpdate locks an order row for the duration of the
// transaction. Returns nil when the order does not exist.
func (db *DB) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	return scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
}

// FindCounterOrder selects and locks the single best eligible counter
// order for the given open order: same symbol, opposite side, price
// crossing the order's limit, and an exactly equal remaining amount.
// Best price wins, earliest placement breaks ties.
func (db *DB) FindCounterOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	var side, priceCond, priceOrder string
	if order.Side == models.SideBuy {
		side, priceCond, priceOrder = models.SideSell, "price <= $3", "price ASC"
	} else {
		side, priceCond, priceOrder = models.SideBuy, "price >= $3", "price DESC"
	}

	query := "SELECT " + orderColumns + " FROM orders" +
		" WHERE symbol = $1 AND status = 'open' AND side = $2 AND " + priceCond +
		" AND remaining_amount = $4" +
		" ORDER BY " + priceOrder + ", created_at ASC LIMIT 1 FOR UPDATE"

	return scanOrder(tx.QueryRow(ctx, query,
		order.Symbol, side, money.String(order.Price), money.String(order.RemainingAmount)))
}

// MarkOrderFilled transitions an open order to its terminal filled state.
// Returns nil when the order is not open.
func (db *DB) MarkOrderFilled(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		"UPDATE orders SET remaining_amount = 0, status = 'filled', filled_at = NOW() WHERE id = $1 AND status = 'open' RETURNING "+orderColumns,
		id))
	if err != nil {
		return nil, fmt.Errorf("failed to fill order %d: %w", id, err)
	}
	return order, nil
}

// MarkOrderCancelled transitions an open order to its terminal cancelled
// state. Returns nil when the order is not open.
func (db *DB) MarkOrderCancelled(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		"UPDATE orders SET status = 'cancelled', cancelled_at = NOW() WHERE id = $1 AND status = 'open' RETURNING "+orderColumns,
		id))
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %d: %w", id, err)
	}
	return order, nil
}

// ListOpenOrders returns one page of the order book for a symbol and
// side, plus the total count of open orders on that side. Bids are
// ordered highest price first, asks lowest first; earlier placement wins
// within a price level.
func (db *DB) ListOpenOrders(ctx context.Context, symbol, side string, page, perPage int) ([]models.Order, int, error) {
	priceOrder := "price ASC"
	if side == models.SideBuy {
		priceOrder = "price DESC"
	}
	if page < 1 {
		page = 1
	}

	var total int
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM orders WHERE symbol = $1 AND status = 'open' AND side = $2",
		symbol, side).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count open orders: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE symbol = $1 AND status = 'open' AND side = $2 ORDER BY "+priceOrder+", created_at ASC LIMIT $3 OFFSET $4",
		symbol, side, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get open orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListUserOrders retrieves a user's orders for a symbol, newest first.
func (db *DB) ListUserOrders(ctx context.Context, userID int64, symbol string) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND symbol = $2 ORDER BY created_at DESC",
		userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		order, err := scanOrderValues(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order, err := scanOrderValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func scanOrderValues(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var price, amount, remaining string
	var cancelledAt, filledAt *time.Time
	err := row.Scan(&order.ID, &order.UserID, &order.Symbol, &order.Side,
		&price, &amount, &remaining, &order.Status,
		&cancelledAt, &filledAt, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	order.CancelledAt = cancelledAt
	order.FilledAt = filledAt
	if order.Price, err = money.Parse(price); err != nil {
		return nil, err
	}
	if order.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	if order.RemainingAmount, err = money.Parse(remaining); err != nil {
		return nil, err
	}
	return order, nil
}

// InsertTrade records a settlement. Trades are append-only.
func (db *DB) InsertTrade(ctx context.Context, tx pgx.Tx, trade *models.Trade) (*models.Trade, error) {
	created := &models.Trade{}
	var price, amount, usdValue, commission string
	err := tx.QueryRow(ctx,
		"INSERT INTO trades (symbol, buy_order_id, sell_order_id, buyer_id, seller_id, price, amount, usd_value, commission) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, symbol, buy_order_id, sell_order_id, buyer_id, seller_id, price::text, amount::text, usd_value::text, commission::text, created_at",
		trade.Symbol, trade.BuyOrderID, trade.SellOrderID, trade.BuyerID, trade.SellerID,
		money.String(trade.Price), money.String(trade.Amount),
		money.String(trade.UsdValue), money.String(trade.Commission)).Scan(
		&created.ID, &created.Symbol, &created.BuyOrderID, &created.SellOrderID,
		&created.BuyerID, &created.SellerID,
		&price, &amount, &usdValue, &commission, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	if created.Price, err = money.Parse(price); err != nil {
		return nil, err
	}
	if created.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	if created.UsdValue, err = money.Parse(usdValue); err != nil {
		return nil, err
	}
	if created.Commission, err = money.Parse(commission); err != nil {
		return nil, err
	}
	return created, nil
}

// ListUserTrades retrieves trades where the user was buyer or seller,
// newest first.
func (db *DB) ListUserTrades(ctx context.Context, userID int64) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, symbol, buy_order_id, sell_order_id, buyer_id, seller_id, price::text, amount::text, usd_value::text, commission::text, created_at FROM trades WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		trade := models.Trade{}
		var price, amount, usdValue, commission string
		if err := rows.Scan(&trade.ID, &trade.Symbol, &trade.BuyOrderID, &trade.SellOrderID,
			&trade.BuyerID, &trade.SellerID,
			&price, &amount, &usdValue, &commission, &trade.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if trade.Price, err = money.Parse(price); err != nil {
			return nil, err
		}
		if trade.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		if trade.UsdValue, err = money.Parse(usdValue); err != nil {
			return nil, err
		}
		if trade.Commission, err = money.Parse(commission); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
