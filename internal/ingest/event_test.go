package ingest

import (
	"strings"
	"testing"
	"time"
)

func validEvent() TickEvent {
	return TickEvent{
		Symbol:             "SOLUSDT",
		Price:              142.35,
		Bid:                142.34,
		Ask:                142.36,
		High24h:            148.90,
		Low24h:             139.20,
		Volume:             1520000.5,
		QuoteVolume:        216500000.75,
		PriceChangePercent: -2.14,
		Timestamp:          "2026-08-28T12:00:00Z",
	}
}

func TestTickEventValidate(t *testing.T) {
	event := validEvent()
	if err := event.Validate(); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}
}

func TestTickEventValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TickEvent)
		errPart string
	}{
		{
			name:    "missing symbol",
			mutate:  func(e *TickEvent) { e.Symbol = "" },
			errPart: "symbol",
		},
		{
			name:    "zero price",
			mutate:  func(e *TickEvent) { e.Price = 0 },
			errPart: "price must be positive",
		},
		{
			name:    "negative price",
			mutate:  func(e *TickEvent) { e.Price = -1 },
			errPart: "price must be positive",
		},
		{
			name:    "negative bid",
			mutate:  func(e *TickEvent) { e.Bid = -0.1 },
			errPart: "bid",
		},
		{
			name:    "negative ask",
			mutate:  func(e *TickEvent) { e.Ask = -0.1 },
			errPart: "ask",
		},
		{
			name:    "negative volume",
			mutate:  func(e *TickEvent) { e.Volume = -5 },
			errPart: "volume",
		},
		{
			name:    "missing timestamp",
			mutate:  func(e *TickEvent) { e.Timestamp = "" },
			errPart: "timestamp",
		},
		{
			name:    "malformed timestamp",
			mutate:  func(e *TickEvent) { e.Timestamp = "yesterday" },
			errPart: "invalid timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(&event)
			err := event.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q does not mention %q", err, tt.errPart)
			}
		})
	}
}

func TestTickEventToDomain(t *testing.T) {
	event := validEvent()

	tick, err := event.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain failed: %v", err)
	}

	if tick.Symbol != event.Symbol {
		t.Errorf("symbol = %q", tick.Symbol)
	}
	if tick.Price != event.Price {
		t.Errorf("price = %f", tick.Price)
	}
	if tick.Bid != event.Bid || tick.Ask != event.Ask {
		t.Errorf("bid/ask = %f/%f", tick.Bid, tick.Ask)
	}
	if tick.PriceChangePercent != event.PriceChangePercent {
		t.Errorf("change = %f", tick.PriceChangePercent)
	}

	want := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if !tick.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", tick.Timestamp, want)
	}
}

func TestTickEventToDomainBadTimestamp(t *testing.T) {
	event := validEvent()
	event.Timestamp = "not-a-time"
	if _, err := event.ToDomain(); err == nil {
		t.Error("expected an error for a malformed timestamp")
	}
}
