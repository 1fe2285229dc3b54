package engine

import (
	"time"

	"forge/internal/domain"
)

// fullCloseRatio absorbs floating-point residue when a close amount is
// effectively the whole position.
const fullCloseRatio = 0.99

// TickOutcome is the diff produced by one tick: positions re-marked,
// positions liquidated and pending orders filled, applied atomically.
type TickOutcome struct {
	UpdatedPositions []domain.Position   `json:"updated_positions"`
	Liquidations     []domain.TradeOrder `json:"liquidations"`
	Fills            []domain.TradeOrder `json:"fills"`
}

// ProcessTick runs the matching pipeline for one price tick: first the
// liquidation and PnL pass over the position book, then the trigger pass
// over the pending order set. The whole reaction is atomic relative to
// order admission and other ticks.
func (s *Session) ProcessTick(tick domain.PriceTick) TickOutcome {
	s.mu.Lock()
	outcome, events := s.applyTickLocked(tick)
	s.mu.Unlock()
	s.emit(events)
	return outcome
}

func (s *Session) applyTickLocked(tick domain.PriceTick) (TickOutcome, []Event) {
	s.market[tick.Symbol] = tick

	var outcome TickOutcome
	var events []Event

	// Pass 1: liquidation check and mark-to-market for the tick's symbol.
	if pos, ok := s.positions[tick.Symbol]; ok {
		liquidated := pos.IsLong && tick.Price <= pos.LiquidationPrice ||
			!pos.IsLong && tick.Price >= pos.LiquidationPrice

		if liquidated {
			rec := s.liquidateLocked(pos, tick.Price)
			outcome.Liquidations = append(outcome.Liquidations, rec)
			events = append(events, Event{
				Type:      EventLiquidation,
				Order:     &rec,
				Balance:   s.balance,
				Drawdown:  s.drawdownLocked(),
				Timestamp: time.Now(),
			})
		} else {
			priceDiff := tick.Price - pos.AvgEntryPrice
			pnlRaw := priceDiff
			if !pos.IsLong {
				pnlRaw = -priceDiff
			}
			pnlQuote := pnlRaw * pos.Amount
			initialMargin := pos.AvgEntryPrice * pos.Amount / float64(pos.Leverage)

			pos.CurrentPrice = tick.Price
			pos.UnrealizedPnL = pnlQuote / s.cfg.ConversionRate
			pos.UnrealizedPnLPercent = pnlQuote / initialMargin * 100
			pos.NotionalValue = tick.Price * pos.Amount / s.cfg.ConversionRate
			outcome.UpdatedPositions = append(outcome.UpdatedPositions, *pos)
		}
	}

	// Pass 2: trigger check over the pending set. Orders for symbols with
	// no tick yet stay pending.
	pending := s.pending
	s.pending = nil
	var remaining []*domain.TradeOrder
	for _, order := range pending {
		mark, ok := s.market[order.Symbol]
		if !ok || !triggered(order, mark.Price) {
			remaining = append(remaining, order)
			continue
		}

		// Limit orders fill at their limit price, stops at the mark.
		fillPrice := mark.Price
		if order.LimitPrice != nil {
			fillPrice = *order.LimitPrice
		}
		events = append(events, s.fillLocked(order, fillPrice)...)
		outcome.Fills = append(outcome.Fills, s.history[0])
	}
	s.pending = remaining

	return outcome, events
}

func triggered(order *domain.TradeOrder, price float64) bool {
	switch order.Type {
	case domain.OrderTypeLimit:
		if order.LimitPrice == nil {
			return false
		}
		if order.Side == domain.SideBuy {
			return price <= *order.LimitPrice
		}
		return price >= *order.LimitPrice
	case domain.OrderTypeStopMarket:
		if order.StopPrice == nil {
			return false
		}
		// A SELL stop protects a long, a BUY stop a short.
		if order.Side == domain.SideSell {
			return price <= *order.StopPrice
		}
		return price >= *order.StopPrice
	}
	return false
}

// liquidationPrice computes the forced-closure price for a fresh long:
// the bankruptcy price plus the maintenance buffer.
func (s *Session) liquidationPrice(entryPrice float64, leverage int) float64 {
	return entryPrice * (1 - 1/float64(leverage) + s.cfg.MaintenanceMarginRate)
}

// liquidateLocked force-closes a position. The margin is forfeited: the
// balance is never credited. A synthetic LIQUIDATED record is written to
// the history.
func (s *Session) liquidateLocked(pos *domain.Position, price float64) domain.TradeOrder {
	side := domain.SideSell
	if !pos.IsLong {
		side = domain.SideBuy
	}
	order := domain.TradeOrder{
		ID:            s.nextID("liq"),
		Symbol:        pos.Symbol,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		Amount:        pos.Amount,
		Price:         price,
		Leverage:      pos.Leverage,
		ReservedValue: pos.MarginUsed,
		Fee:           0,
		Status:        domain.OrderStatusLiquidated,
		Timestamp:     time.Now(),
	}
	delete(s.positions, pos.Symbol)
	s.recordLocked(order)

	s.logger.Warn().
		Str("symbol", pos.Symbol).
		Float64("price", price).
		Float64("liquidation_price", pos.LiquidationPrice).
		Float64("margin_forfeited", pos.MarginUsed).
		Msg("position liquidated")
	return order
}

// fillLocked applies a fill to the ledger and position book, then writes
// a FILLED record to the history. BUY opens or averages into a long;
// SELL realizes PnL, releases margin proportionally and charges the
// close fee.
func (s *Session) fillLocked(order *domain.TradeOrder, fillPrice float64) []Event {
	notional := order.Amount * fillPrice // quote currency
	var events []Event

	switch order.Side {
	case domain.SideBuy:
		// The margin consumed is exactly what admission reserved. A stop
		// that triggers on a gapped mark fills above its sizing price;
		// recomputing margin from the fill notional would book more
		// collateral than was ever debited.
		marginUsed := order.ReservedValue

		if pos, ok := s.positions[order.Symbol]; ok {
			totalAmount := pos.Amount + order.Amount
			totalCost := pos.Amount*pos.AvgEntryPrice + notional
			pos.AvgEntryPrice = totalCost / totalAmount
			pos.Amount = totalAmount
			pos.MarginUsed += marginUsed
			if s.cfg.RecomputeLiquidationOnAverage {
				pos.LiquidationPrice = s.liquidationPrice(pos.AvgEntryPrice, pos.Leverage)
			}
		} else {
			s.positions[order.Symbol] = &domain.Position{
				Symbol:           order.Symbol,
				Amount:           order.Amount,
				AvgEntryPrice:    fillPrice,
				CurrentPrice:     fillPrice,
				LiquidationPrice: s.liquidationPrice(fillPrice, order.Leverage),
				NotionalValue:    notional / s.cfg.ConversionRate,
				MarginUsed:       marginUsed,
				Leverage:         order.Leverage,
				IsLong:           true,
				OpenedAt:         time.Now(),
			}
		}

	case domain.SideSell:
		pos, ok := s.positions[order.Symbol]
		if !ok {
			// Position vanished between admission and trigger
			// (liquidated by an earlier tick). Nothing to close.
			break
		}
		ratio := order.Amount / pos.Amount
		if ratio > 1 {
			ratio = 1
		}
		pnlRealized := pos.UnrealizedPnL * ratio
		marginReleased := pos.MarginUsed * ratio
		fee := notional * s.cfg.FeeRate / s.cfg.ConversionRate

		s.balance += marginReleased + pnlRealized - fee
		order.Fee = fee

		if ratio >= fullCloseRatio {
			delete(s.positions, order.Symbol)
		} else {
			pos.Amount -= order.Amount
			pos.MarginUsed -= marginReleased
		}
		events = s.evaluateRiskLocked()
	}

	order.Status = domain.OrderStatusFilled
	order.Price = fillPrice
	order.Timestamp = time.Now()
	s.recordLocked(*order)

	rec := s.history[0]
	events = append(events, Event{
		Type:      EventOrderFilled,
		Order:     &rec,
		Balance:   s.balance,
		Drawdown:  s.drawdownLocked(),
		Timestamp: time.Now(),
	})
	return events
}
