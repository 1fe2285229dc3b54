//go:build integration

package ingest_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"forge/internal/domain"
	"forge/internal/engine"
	"forge/internal/ingest"
)

// Integration test requires:
// - NATS with JetStream running on NATS_URLS (default: nats://localhost:4222)
//
// Run with: go test -tags=integration ./internal/ingest/ -v

func TestTickIngestionFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	natsURL := os.Getenv("NATS_URLS")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		t.Fatalf("connect to nats: %v", err)
	}
	defer nc.Close()

	session := engine.NewSession(engine.DefaultConfig(), nil)

	// Start consumer
	consumer := ingest.NewConsumer(nc, session)
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Wait a moment for consumer to be ready
	time.Sleep(time.Second)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("create jetstream: %v", err)
	}

	event := ingest.TickEvent{
		Symbol:    "BTCUSDT",
		Price:     50000,
		Bid:       49999,
		Ask:       50001,
		High24h:   51000,
		Low24h:    49000,
		Volume:    1200,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	_, err = js.Publish(ctx, ingest.SubjectPrefix+"btcusdt", data)
	if err != nil {
		t.Fatalf("publish tick: %v", err)
	}

	// Wait for processing
	time.Sleep(2 * time.Second)

	// The tick should now be the mark price for the symbol
	tick, ok := session.Ticker("BTCUSDT")
	if !ok {
		t.Fatal("tick not applied to session after ingestion")
	}
	if tick.Price != 50000 {
		t.Errorf("expected mark 50000, got %f", tick.Price)
	}

	// And orders against it should be admitted
	order, err := session.PlaceOrder(engine.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeMarket,
		Margin:   100,
		Leverage: 5,
	})
	if err != nil {
		t.Fatalf("place order against ingested tick: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", order.Status)
	}
}
