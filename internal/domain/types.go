package domain

import (
	"time"
)

// Side represents the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusOpen       OrderStatus = "OPEN"
	OrderStatusFilled     OrderStatus = "FILLED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusLiquidated OrderStatus = "LIQUIDATED"
)

// TradingMode represents where orders would be routed if live trading
// were enabled. The engine itself only ever simulates fills.
type TradingMode string

const (
	ModePaper   TradingMode = "PAPER"
	ModeTestnet TradingMode = "TESTNET"
	ModeLive    TradingMode = "LIVE"
)

// SecurityLevel is a coarse classification of account health.
type SecurityLevel string

const (
	SecurityLevelSecure      SecurityLevel = "SECURE"
	SecurityLevelCalibrating SecurityLevel = "CALIBRATING"
	SecurityLevelCritical    SecurityLevel = "CRITICAL"
)

// PriceTick is a single ticker update for one symbol. Ticks are consumed
// and discarded; only the latest tick per symbol is retained as the mark.
type PriceTick struct {
	Symbol             string    `json:"symbol"`
	Price              float64   `json:"price"`
	Bid                float64   `json:"bid"`
	Ask                float64   `json:"ask"`
	High24h            float64   `json:"high_24h"`
	Low24h             float64   `json:"low_24h"`
	Volume             float64   `json:"volume"`
	QuoteVolume        float64   `json:"quote_volume"`
	PriceChangePercent float64   `json:"price_change_percent"`
	Timestamp          time.Time `json:"timestamp"`
}

// TradeOrder is both a resting (pending) order and a historical record.
// ReservedValue is the margin locked at admission, in account currency.
type TradeOrder struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Amount        float64     `json:"amount"`
	Price         float64     `json:"price"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	StopPrice     *float64    `json:"stop_price,omitempty"`
	Leverage      int         `json:"leverage"`
	ReservedValue float64     `json:"reserved_value"`
	Fee           float64     `json:"fee"`
	Status        OrderStatus `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Position is an open leveraged position. At most one exists per symbol;
// Amount is always positive (a fully closed position is removed, never
// stored at zero).
type Position struct {
	Symbol               string    `json:"symbol"`
	Amount               float64   `json:"amount"`
	AvgEntryPrice        float64   `json:"avg_entry_price"`
	CurrentPrice         float64   `json:"current_price"`
	LiquidationPrice     float64   `json:"liquidation_price"`
	UnrealizedPnL        float64   `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64   `json:"unrealized_pnl_percent"`
	NotionalValue        float64   `json:"notional_value"`
	MarginUsed           float64   `json:"margin_used"`
	Leverage             int       `json:"leverage"`
	IsLong               bool      `json:"is_long"`
	OpenedAt             time.Time `json:"opened_at"`
}

// SystemStatus is process-wide trading state exposed to the UI.
type SystemStatus struct {
	SafetyScore        float64       `json:"safety_score"`
	SecurityLevel      SecurityLevel `json:"security_level"`
	KillswitchActive   bool          `json:"killswitch_active"`
	TradingMode        TradingMode   `json:"trading_mode"`
	WalletConnected    bool          `json:"wallet_connected"`
	LiveTradingEnabled bool          `json:"live_trading_enabled"`
}
