package ingest

import (
	"fmt"
	"time"

	"forge/internal/domain"
)

// TickEvent is the JSON structure for price ticks received via NATS.
// It mirrors the live ticker payload so recorded sessions can be
// replayed through the same matching pipeline.
type TickEvent struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	Bid                float64 `json:"bid"`
	Ask                float64 `json:"ask"`
	High24h            float64 `json:"high_24h"`
	Low24h             float64 `json:"low_24h"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
	PriceChangePercent float64 `json:"price_change_percent"`
	Timestamp          string  `json:"timestamp"`
}

// Validate checks that the tick event has all required fields and valid values.
func (e *TickEvent) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if e.Price <= 0 {
		return fmt.Errorf("price must be positive, got %f", e.Price)
	}
	if e.Bid < 0 {
		return fmt.Errorf("bid must not be negative, got %f", e.Bid)
	}
	if e.Ask < 0 {
		return fmt.Errorf("ask must not be negative, got %f", e.Ask)
	}
	if e.Volume < 0 {
		return fmt.Errorf("volume must not be negative, got %f", e.Volume)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}

// ToDomain converts a TickEvent to a domain PriceTick.
func (e *TickEvent) ToDomain() (domain.PriceTick, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse timestamp: %w", err)
	}

	return domain.PriceTick{
		Symbol:             e.Symbol,
		Price:              e.Price,
		Bid:                e.Bid,
		Ask:                e.Ask,
		High24h:            e.High24h,
		Low24h:             e.Low24h,
		Volume:             e.Volume,
		QuoteVolume:        e.QuoteVolume,
		PriceChangePercent: e.PriceChangePercent,
		Timestamp:          ts,
	}, nil
}
