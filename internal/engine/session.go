package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge/internal/domain"
)

// Config holds the engine parameters for a trading session.
type Config struct {
	// InitialBalance is the starting margin balance in account currency.
	InitialBalance float64
	// FeeRate is the taker fee charged on close, as a fraction of notional.
	FeeRate float64
	// MaintenanceMarginRate is the buffer added to the bankruptcy price
	// when computing the liquidation price of a new position.
	MaintenanceMarginRate float64
	// MaxDrawdown is the peak-to-balance decline that trips the killswitch.
	MaxDrawdown float64
	// MaxLeverage bounds order admission.
	MaxLeverage int
	// ConversionRate divides quote-currency amounts into account currency.
	// 1.0 means the account is denominated in the quote currency.
	ConversionRate float64
	// RecomputeLiquidationOnAverage recomputes the liquidation price from
	// the new average entry when adding to a position. Off by default: the
	// liquidation price is fixed at open, a known accuracy limitation that
	// is preserved deliberately.
	RecomputeLiquidationOnAverage bool
}

// DefaultConfig returns the standard paper-trading parameters.
func DefaultConfig() Config {
	return Config{
		InitialBalance:        10000,
		FeeRate:               0.001,
		MaintenanceMarginRate: 0.005,
		MaxDrawdown:           0.15,
		MaxLeverage:           125,
		ConversionRate:        1.0,
	}
}

// EventType classifies engine events.
type EventType string

const (
	EventOrderFilled    EventType = "order_filled"
	EventOrderCancelled EventType = "order_cancelled"
	EventLiquidation    EventType = "liquidation"
	EventKillswitch     EventType = "killswitch"
)

// Event is emitted after a state mutation, outside the session lock.
type Event struct {
	Type      EventType          `json:"type"`
	Order     *domain.TradeOrder `json:"order,omitempty"`
	Position  *domain.Position   `json:"position,omitempty"`
	Balance   float64            `json:"balance"`
	Drawdown  float64            `json:"drawdown"`
	Timestamp time.Time          `json:"timestamp"`
}

// Notifier receives engine events. Implementations must not call back
// into the session from Notify.
type Notifier interface {
	Notify(evt Event)
}

// Session owns all mutable trading state: balance, positions, pending
// orders, order history and system status. Every operation runs to
// completion under one lock, so reactions to ticks and user actions
// never interleave.
type Session struct {
	mu  sync.Mutex
	cfg Config

	balance     float64
	peakBalance float64
	positions   map[string]*domain.Position
	pending     []*domain.TradeOrder
	history     []domain.TradeOrder
	market      map[string]domain.PriceTick
	status      domain.SystemStatus

	seq      int64
	notifier Notifier
	logger   zerolog.Logger
}

// NewSession creates a trading session with the given parameters.
func NewSession(cfg Config, notifier Notifier) *Session {
	if cfg.ConversionRate == 0 {
		cfg.ConversionRate = 1.0
	}
	if cfg.MaxLeverage == 0 {
		cfg.MaxLeverage = 125
	}
	s := &Session{
		cfg:         cfg,
		balance:     cfg.InitialBalance,
		peakBalance: cfg.InitialBalance,
		positions:   make(map[string]*domain.Position),
		market:      make(map[string]domain.PriceTick),
		status: domain.SystemStatus{
			SafetyScore:   100,
			SecurityLevel: domain.SecurityLevelSecure,
			TradingMode:   domain.ModePaper,
		},
		notifier: notifier,
		logger:   log.With().Str("component", "engine").Logger(),
	}
	return s
}

func (s *Session) emit(events []Event) {
	if s.notifier == nil {
		return
	}
	for _, evt := range events {
		s.notifier.Notify(evt)
	}
}

// AccountSnapshot is a read-only view of the ledger.
type AccountSnapshot struct {
	Balance          float64 `json:"balance"`
	PeakBalance      float64 `json:"peak_balance"`
	Drawdown         float64 `json:"drawdown"`
	MarginUsed       float64 `json:"margin_used"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	Equity           float64 `json:"equity"`
	OpenPositions    int     `json:"open_positions"`
	PendingOrders    int     `json:"pending_orders"`
	KillswitchActive bool    `json:"killswitch_active"`
}

// Account returns the current ledger summary.
func (s *Session) Account() AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marginUsed, unrealized float64
	for _, pos := range s.positions {
		marginUsed += pos.MarginUsed
		unrealized += pos.UnrealizedPnL
	}
	return AccountSnapshot{
		Balance:          s.balance,
		PeakBalance:      s.peakBalance,
		Drawdown:         s.drawdownLocked(),
		MarginUsed:       marginUsed,
		UnrealizedPnL:    unrealized,
		Equity:           s.balance + marginUsed + unrealized,
		OpenPositions:    len(s.positions),
		PendingOrders:    len(s.pending),
		KillswitchActive: s.status.KillswitchActive,
	}
}

// Positions returns open positions sorted by symbol.
func (s *Session) Positions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// PendingOrders returns resting orders in arrival order.
func (s *Session) PendingOrders() []domain.TradeOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]domain.TradeOrder, 0, len(s.pending))
	for _, o := range s.pending {
		orders = append(orders, *o)
	}
	return orders
}

// HistoryFilter defines filters for listing historical orders.
type HistoryFilter struct {
	Status domain.OrderStatus
	Symbol string
	Limit  int
}

// History returns historical orders, most recent first.
func (s *Session) History(filter HistoryFilter) []domain.TradeOrder {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]domain.TradeOrder, 0, filter.Limit)
	for _, o := range s.history {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		orders = append(orders, o)
		if len(orders) == filter.Limit {
			break
		}
	}
	return orders
}

// Market returns the latest tick per symbol.
func (s *Session) Market() map[string]domain.PriceTick {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]domain.PriceTick, len(s.market))
	for sym, tick := range s.market {
		m[sym] = tick
	}
	return m
}

// Ticker returns the latest tick for one symbol.
func (s *Session) Ticker(symbol string) (domain.PriceTick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tick, ok := s.market[symbol]
	return tick, ok
}

// Status returns the current system status.
func (s *Session) Status() domain.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetWalletConnected records the wallet connection state. Disconnecting
// always disables live trading.
func (s *Session) SetWalletConnected(connected bool) domain.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.WalletConnected = connected
	if !connected {
		s.status.LiveTradingEnabled = false
	}
	s.logger.Info().Bool("connected", connected).Msg("wallet state changed")
	return s.status
}

// SetTradingMode switches the trading mode. LIVE requires a connected
// wallet and an inactive killswitch.
func (s *Session) SetTradingMode(mode domain.TradingMode) (domain.SystemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case domain.ModePaper, domain.ModeTestnet:
		s.status.TradingMode = mode
		s.status.LiveTradingEnabled = false
	case domain.ModeLive:
		if !s.status.WalletConnected {
			return s.status, ErrWalletNotConnected
		}
		if s.status.KillswitchActive {
			return s.status, ErrKillswitchActive
		}
		s.status.TradingMode = mode
		s.status.LiveTradingEnabled = true
	default:
		return s.status, ErrInvalidOrder
	}
	s.logger.Info().Str("mode", string(mode)).Msg("trading mode changed")
	return s.status, nil
}

// ResetAccount restores the initial balance and clears all positions,
// pending orders and history. The peak balance is re-based, so this is
// the one path on which it may decrease.
func (s *Session) ResetAccount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balance = s.cfg.InitialBalance
	s.peakBalance = s.cfg.InitialBalance
	s.positions = make(map[string]*domain.Position)
	s.pending = nil
	s.history = nil
	s.status.KillswitchActive = false
	s.refreshSafetyLocked()
	s.logger.Info().Float64("balance", s.balance).Msg("account reset")
}

// nextID generates a session-unique order ID with the given prefix.
func (s *Session) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// recordLocked prepends an order record to the history (most recent first).
func (s *Session) recordLocked(order domain.TradeOrder) {
	s.history = append(s.history, domain.TradeOrder{})
	copy(s.history[1:], s.history)
	s.history[0] = order
}
