package engine

import (
	"errors"
	"fmt"
	"time"

	"forge/internal/domain"
)

// Rejection causes. Order admission either fully applies or applies
// nothing; a rejected submission never creates an order.
var (
	ErrKillswitchActive   = errors.New("killswitch active: order admission disabled")
	ErrNoPrice            = errors.New("no price known for symbol")
	ErrInsufficientMargin = errors.New("insufficient margin balance")
	ErrNoOpenPosition     = errors.New("no open position for symbol")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrUnknownOrder       = errors.New("unknown order id")
	ErrWalletNotConnected = errors.New("wallet not connected")
)

// OrderRequest is a user order intent. Margin is the amount of account
// currency to lock as collateral; the token quantity is derived from
// margin × leverage at the reference price.
type OrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       domain.Side      `json:"side"`
	Type       domain.OrderType `json:"type"`
	Margin     float64          `json:"margin"`
	Leverage   int              `json:"leverage"`
	LimitPrice *float64         `json:"limit_price,omitempty"`
	StopPrice  *float64         `json:"stop_price,omitempty"`
}

func (r *OrderRequest) validate(maxLeverage int) error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	if r.Side != domain.SideBuy && r.Side != domain.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	switch r.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if r.LimitPrice == nil || *r.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit order requires a positive limit_price", ErrInvalidOrder)
		}
	case domain.OrderTypeStopMarket:
		if r.StopPrice == nil || *r.StopPrice <= 0 {
			return fmt.Errorf("%w: stop order requires a positive stop_price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: type must be MARKET, LIMIT or STOP_MARKET", ErrInvalidOrder)
	}
	if r.Margin <= 0 {
		return fmt.Errorf("%w: margin must be positive", ErrInvalidOrder)
	}
	if r.Leverage < 1 || r.Leverage > maxLeverage {
		return fmt.Errorf("%w: leverage must be between 1 and %d", ErrInvalidOrder, maxLeverage)
	}
	return nil
}

// referencePrice picks the price used to size the order: the limit price
// for limit orders, the stop price for stops, else the current mark.
func (r *OrderRequest) referencePrice(mark float64) float64 {
	if r.Type == domain.OrderTypeLimit && r.LimitPrice != nil {
		return *r.LimitPrice
	}
	if r.Type == domain.OrderTypeStopMarket && r.StopPrice != nil {
		return *r.StopPrice
	}
	return mark
}

// PlaceOrder validates and admits an order intent. BUY orders reserve
// margin immediately regardless of fill timing. MARKET orders fill
// synchronously at the current mark price; LIMIT and STOP_MARKET orders
// rest in the pending set until a tick triggers them.
func (s *Session) PlaceOrder(req OrderRequest) (*domain.TradeOrder, error) {
	s.mu.Lock()
	order, events, err := s.placeOrderLocked(req)
	s.mu.Unlock()
	s.emit(events)
	return order, err
}

func (s *Session) placeOrderLocked(req OrderRequest) (*domain.TradeOrder, []Event, error) {
	if err := req.validate(s.cfg.MaxLeverage); err != nil {
		return nil, nil, err
	}
	if s.status.KillswitchActive {
		return nil, nil, ErrKillswitchActive
	}
	tick, ok := s.market[req.Symbol]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoPrice, req.Symbol)
	}

	refPrice := req.referencePrice(tick.Price)
	buyingPower := req.Margin * float64(req.Leverage) * s.cfg.ConversionRate
	tokenQty := buyingPower / refPrice

	var events []Event
	switch req.Side {
	case domain.SideBuy:
		if s.balance < req.Margin {
			return nil, nil, ErrInsufficientMargin
		}
		// Reserve margin up front, even for resting orders. The risk
		// guardian re-evaluates on every balance change, reservations
		// included.
		s.balance -= req.Margin
		events = s.evaluateRiskLocked()
	case domain.SideSell:
		if _, ok := s.positions[req.Symbol]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoOpenPosition, req.Symbol)
		}
	}

	order := &domain.TradeOrder{
		ID:            s.nextID("ord"),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Amount:        tokenQty,
		Price:         refPrice,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Leverage:      req.Leverage,
		ReservedValue: req.Margin,
		Fee:           req.Margin * s.cfg.FeeRate,
		Status:        domain.OrderStatusOpen,
		Timestamp:     time.Now(),
	}

	if order.Type == domain.OrderTypeMarket {
		events = append(events, s.fillLocked(order, tick.Price)...)
		filled := s.history[0]
		s.logger.Info().
			Str("order_id", order.ID).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Float64("amount", order.Amount).
			Float64("price", tick.Price).
			Msg("market order filled")
		return &filled, events, nil
	}

	s.pending = append(s.pending, order)
	s.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Float64("amount", order.Amount).
		Msg("order resting")
	placed := *order
	return &placed, events, nil
}

// CancelOrder removes a pending order. Reserved margin is returned for
// BUY orders; SELL orders reserved nothing, so cancellation only removes
// them. A CANCELLED record is appended to the history.
func (s *Session) CancelOrder(orderID string) (*domain.TradeOrder, error) {
	s.mu.Lock()
	order, events, err := s.cancelOrderLocked(orderID)
	s.mu.Unlock()
	s.emit(events)
	return order, err
}

func (s *Session) cancelOrderLocked(orderID string) (*domain.TradeOrder, []Event, error) {
	idx := -1
	for i, o := range s.pending {
		if o.ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	order := s.pending[idx]
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)

	var events []Event
	if order.Side == domain.SideBuy {
		s.balance += order.ReservedValue
		events = s.evaluateRiskLocked()
	}

	order.Status = domain.OrderStatusCancelled
	order.Timestamp = time.Now()
	s.recordLocked(*order)

	cancelled := *order
	events = append(events, Event{
		Type:      EventOrderCancelled,
		Order:     &cancelled,
		Balance:   s.balance,
		Drawdown:  s.drawdownLocked(),
		Timestamp: time.Now(),
	})

	s.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Float64("margin_returned", order.ReservedValue).
		Msg("order cancelled")
	return &cancelled, events, nil
}
