package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses. Filled and cancelled are terminal; an order never
// leaves a terminal state.
const (
	StatusOpen      = "open"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

// User represents a registered user. Balance is free USD; it is only
// mutated inside a transaction that also mutates an order, asset or trade.
type User struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Asset is a user's holding of one symbol. Amount is free, LockedAmount
// is reserved by the user's open sell orders. Rows are created lazily on
// first credit and are unique per (user_id, symbol).
type Asset struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order represents a resting or historical limit order. Funds (buy) or
// assets (sell) are reserved at creation time, so an open order is always
// fully backed.
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          string          `json:"status"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	FilledAt        *time.Time      `json:"filled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"` // Used for time priority
}

// IsOpen reports whether the order is still eligible for matching or
// cancellation.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// Trade is an immutable settlement record. It is created exactly once per
// match and never updated or deleted.
type Trade struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	BuyOrderID  int64           `json:"buy_order_id"`
	SellOrderID int64           `json:"sell_order_id"`
	BuyerID     int64           `json:"buyer_id"`
	SellerID    int64           `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	UsdValue    decimal.Decimal `json:"usd_value"`
	Commission  decimal.Decimal `json:"commission"`
	CreatedAt   time.Time       `json:"created_at"`
}
