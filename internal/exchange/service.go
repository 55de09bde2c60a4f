package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"spotx/internal/db"
	"spotx/internal/models"
	"spotx/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// Service implements the order lifecycle: placement with up-front
// reservation, idempotent cancellation, and single-shot matching with
// atomic settlement. All coordination happens through row locks and the
// per-symbol book lock inside one transaction per operation.
type Service struct {
	db             *db.DB
	dispatcher     Dispatcher
	notifier       Notifier
	commissionRate decimal.Decimal
	log            *slog.Logger
}

// NewService creates an order service. A nil dispatcher disables match
// scheduling and a nil notifier disables match events; matching and
// settlement behave identically either way.
func NewService(database *db.DB, dispatcher Dispatcher, notifier Notifier, commissionRate decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:             database,
		dispatcher:     dispatcher,
		notifier:       notifier,
		commissionRate: commissionRate,
		log:            logger,
	}
}

// SetDispatcher wires the match trigger queue after construction. The
// queue's handler is the service itself, so the two are created in
// sequence at startup.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// PlaceRequest carries a validated-on-entry order placement.
type PlaceRequest struct {
	Symbol string
	Side   string
	Price  string
	Amount string
}

// Place validates the request, reserves the user's funds (buy) or assets
// (sell) under row locks, persists the order as open, and schedules one
// matching attempt. On any failure the transaction rolls back with no
// partial reservation.
func (s *Service) Place(ctx context.Context, userID int64, req PlaceRequest) (*models.Order, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !symbolRegex.MatchString(symbol) {
		return nil, &ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return nil, &ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	price, err := money.Parse(req.Price)
	if err != nil || !money.GreaterThan(price, money.Zero()) {
		return nil, &ValidationError{Message: "price must be a positive decimal"}
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || !money.GreaterThan(amount, money.Zero()) {
		return nil, &ValidationError{Message: "amount must be a positive decimal"}
	}

	var order *models.Order
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		user, err := s.db.GetUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %d not found", userID)
		}

		if req.Side == models.SideBuy {
			// Reserve USD up front by deducting it.
			required := money.Mul(price, amount)
			if money.LessThan(user.Balance, required) {
				return ErrInsufficientFunds
			}
			if err := s.db.SetUserBalance(ctx, tx, user.ID, money.Sub(user.Balance, required)); err != nil {
				return err
			}
		} else {
			// Reserve the asset by moving it from free to locked.
			asset, err := s.db.GetAssetForUpdate(ctx, tx, user.ID, symbol)
			if err != nil {
				return err
			}
			if asset == nil || money.LessThan(asset.Amount, amount) {
				return ErrInsufficientAsset
			}
			if err := s.db.SetAssetAmounts(ctx, tx, asset.ID,
				money.Sub(asset.Amount, amount),
				money.Add(asset.LockedAmount, amount)); err != nil {
				return err
			}
		}

		order, err = s.db.InsertOrder(ctx, tx, &models.Order{
			UserID:          user.ID,
			Symbol:          symbol,
			Side:            req.Side,
			Price:           price,
			Amount:          amount,
			RemainingAmount: amount,
			Status:          models.StatusOpen,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// The reservation is committed; a lost trigger only delays matching
	// until the next attempt on this symbol, so enqueue failures are
	// logged rather than unwound.
	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(ctx, order.ID); err != nil {
			s.log.Error("failed to enqueue match attempt",
				slog.Int64("order_id", order.ID), slog.String("error", err.Error()))
		}
	}

	return order, nil
}

// Cancel reverses the reservation for an open order owned by the caller
// and marks it cancelled. Cancelling an order already in a terminal state
// returns it unchanged. Partially filled orders refund only the unfilled
// remainder.
func (s *Service) Cancel(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	var result *models.Order
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := s.db.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return ErrOrderNotFound
		}
		if !order.IsOpen() {
			result = order
			return nil
		}

		remaining := order.RemainingAmount
		if order.Side == models.SideBuy {
			user, err := s.db.GetUserForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			refund := money.Mul(order.Price, remaining)
			if err := s.db.SetUserBalance(ctx, tx, user.ID, money.Add(user.Balance, refund)); err != nil {
				return err
			}
		} else {
			asset, err := s.db.GetAssetForUpdate(ctx, tx, userID, order.Symbol)
			if err != nil {
				return err
			}
			if asset == nil || money.LessThan(asset.LockedAmount, remaining) {
				return fmt.Errorf("%w: locked %s asset missing for cancel of order %d",
					ErrInconsistency, order.Symbol, order.ID)
			}
			if err := s.db.SetAssetAmounts(ctx, tx, asset.ID,
				money.Add(asset.Amount, remaining),
				money.Sub(asset.LockedAmount, remaining)); err != nil {
				return err
			}
		}

		result, err = s.db.MarkOrderCancelled(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MatchOpenOrder attempts at most one match for the given order. The
// per-symbol book lock serializes attempts on the same book; when it is
// held the attempt is skipped and the order simply rests until the next
// trigger. Finding no counter order is not an error either.
func (s *Service) MatchOpenOrder(ctx context.Context, orderID int64) error {
	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil || !order.IsOpen() {
		return nil
	}

	var event *MatchEvent
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.db.TryBookLock(ctx, tx, order.Symbol)
		if err != nil {
			return err
		}
		if !locked {
			s.log.Debug("book busy, skipping match attempt",
				slog.String("symbol", order.Symbol), slog.Int64("order_id", orderID))
			return nil
		}

		event, err = s.matchLocked(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return err
	}

	if event != nil && s.notifier != nil {
		// The trade is committed; notification failure must not affect it.
		if err := s.notifier.NotifyMatch(ctx, *event); err != nil {
			s.log.Error("failed to publish match event",
				slog.Int64("trade_id", event.TradeID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// matchLocked runs under the symbol's book lock. It re-checks the order
// under its row lock, searches for the single best counter order with an
// exactly equal remaining amount, and settles the trade.
func (s *Service) matchLocked(ctx context.Context, tx pgx.Tx, orderID int64) (*MatchEvent, error) {
	order, err := s.db.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || !order.IsOpen() {
		// Filled or cancelled since the attempt was scheduled.
		return nil, nil
	}

	counter, err := s.db.FindCounterOrder(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, nil
	}

	buyOrder, sellOrder := order, counter
	if order.Side == models.SideSell {
		buyOrder, sellOrder = counter, order
	}

	amount := buyOrder.RemainingAmount

	// The incoming order takes the book price: the resting counter
	// order's limit sets the trade price.
	tradePrice := counter.Price

	usdValue := money.Mul(tradePrice, amount)
	commission := money.Mul(usdValue, s.commissionRate)

	// Lock users in a fixed order: the triggering order's user first,
	// then the counterparty.
	actor, err := s.db.GetUserForUpdate(ctx, tx, order.UserID)
	if err != nil {
		return nil, err
	}
	counterUser := actor
	if counter.UserID != order.UserID {
		counterUser, err = s.db.GetUserForUpdate(ctx, tx, counter.UserID)
		if err != nil {
			return nil, err
		}
	}
	if actor == nil || counterUser == nil {
		return nil, fmt.Errorf("%w: order user missing at settlement", ErrInconsistency)
	}

	buyer, seller := actor, counterUser
	if order.Side == models.SideSell {
		buyer, seller = counterUser, actor
	}

	// Release the seller's locked asset.
	sellerAsset, err := s.db.GetAssetForUpdate(ctx, tx, seller.ID, sellOrder.Symbol)
	if err != nil {
		return nil, err
	}
	if sellerAsset == nil || money.LessThan(sellerAsset.LockedAmount, amount) {
		return nil, fmt.Errorf("%w: seller %d locked %s asset short of %s",
			ErrInconsistency, seller.ID, sellOrder.Symbol, money.String(amount))
	}
	if err := s.db.SetAssetAmounts(ctx, tx, sellerAsset.ID,
		sellerAsset.Amount,
		money.Sub(sellerAsset.LockedAmount, amount)); err != nil {
		return nil, err
	}

	// Credit the seller's proceeds minus commission.
	seller.Balance = money.Add(seller.Balance, money.Sub(usdValue, commission))
	if err := s.db.SetUserBalance(ctx, tx, seller.ID, seller.Balance); err != nil {
		return nil, err
	}

	// Credit the buyer's asset, creating the row on first purchase.
	buyerAsset, err := s.db.GetOrCreateAssetForUpdate(ctx, tx, buyer.ID, buyOrder.Symbol)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetAssetAmounts(ctx, tx, buyerAsset.ID,
		money.Add(buyerAsset.Amount, amount),
		buyerAsset.LockedAmount); err != nil {
		return nil, err
	}

	// Refund the buyer's price improvement: they reserved at their own
	// limit but trade at the resting price.
	reserved := money.Mul(buyOrder.Price, amount)
	refund := money.Sub(reserved, usdValue)
	if money.GreaterThan(refund, money.Zero()) {
		buyer.Balance = money.Add(buyer.Balance, refund)
		if err := s.db.SetUserBalance(ctx, tx, buyer.ID, buyer.Balance); err != nil {
			return nil, err
		}
	}

	for _, id := range []int64{buyOrder.ID, sellOrder.ID} {
		filled, err := s.db.MarkOrderFilled(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if filled == nil {
			return nil, fmt.Errorf("%w: order %d left open state during settlement", ErrInconsistency, id)
		}
	}

	trade, err := s.db.InsertTrade(ctx, tx, &models.Trade{
		Symbol:      buyOrder.Symbol,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		Price:       tradePrice,
		Amount:      amount,
		UsdValue:    usdValue,
		Commission:  commission,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("orders matched",
		slog.String("symbol", trade.Symbol),
		slog.Int64("buy_order_id", trade.BuyOrderID),
		slog.Int64("sell_order_id", trade.SellOrderID),
		slog.String("price", money.String(trade.Price)),
		slog.String("amount", money.String(trade.Amount)))

	return &MatchEvent{
		Symbol:      trade.Symbol,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		Price:       trade.Price,
		Amount:      trade.Amount,
		UsdValue:    trade.UsdValue,
		Commission:  trade.Commission,
		TradeID:     trade.ID,
	}, nil
}
