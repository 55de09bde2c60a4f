package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// MatchEvent is the payload published to both counterparties after a
// trade commits.
type MatchEvent struct {
	Symbol      string          `json:"symbol"`
	BuyOrderID  int64           `json:"buy_order_id"`
	SellOrderID int64           `json:"sell_order_id"`
	BuyerID     int64           `json:"buyer_id"`
	SellerID    int64           `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	UsdValue    decimal.Decimal `json:"usd_value"`
	Commission  decimal.Decimal `json:"commission"`
	TradeID     int64           `json:"trade_id"`
}

// Notifier delivers match events to the two counterparties. It is called
// strictly after the settlement transaction commits; a delivery failure
// never rolls back the trade.
type Notifier interface {
	NotifyMatch(ctx context.Context, event MatchEvent) error
}

// Dispatcher schedules an asynchronous matching attempt for an order.
// Delivery is at least once; the matching engine re-checks order status
// under lock, so duplicates are harmless.
type Dispatcher interface {
	Enqueue(ctx context.Context, orderID int64) error
}
