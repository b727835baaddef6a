package chain

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Submit(ctx context.Context, ev event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) byKind(kind event.Kind) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestFuelWatcherFirstPollEstablishesBaseline(t *testing.T) {
	srv := fuelServer(t, func(query string) string {
		switch {
		case strings.Contains(query, "health"):
			return `{"data": {"health": true}}`
		case strings.Contains(query, "latestBlock"):
			return `{"data": {"chain": {"latestBlock": {"height": "500"}}}}`
		default:
			t.Fatalf("unexpected query on first poll: %s", query)
			return ""
		}
	})
	defer srv.Close()

	sink := &recordingSink{}
	w := NewFuelWatcher(FuelWatcherOptions{PollInterval: time.Second}, newTestFuelClient(srv.URL), sink, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.poll(context.Background(), now))

	conn := sink.byKind(event.KindConnectivity)
	require.Len(t, conn, 1)
	require.True(t, conn[0].Connected)

	require.Len(t, sink.byKind(event.KindCheck), 1)

	blocks := sink.byKind(event.KindBlockProduced)
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(500), blocks[0].Height)

	// No withdrawal history is replayed on startup.
	require.Empty(t, sink.byKind(event.KindValueTransfer))
}

func TestFuelWatcherRoutesWithdrawals(t *testing.T) {
	height := "500"
	withdrawals := `{"data": {"blocks": {"nodes": []}}}`
	srv := fuelServer(t, func(query string) string {
		switch {
		case strings.Contains(query, "health"):
			return `{"data": {"health": true}}`
		case strings.Contains(query, "latestBlock"):
			return `{"data": {"chain": {"latestBlock": {"height": "` + height + `"}}}}`
		default:
			return withdrawals
		}
	})
	defer srv.Close()

	sink := &recordingSink{}
	w := NewFuelWatcher(FuelWatcherOptions{
		PollInterval:  time.Second,
		GatewayTokens: []WatchedToken{{Name: "USDC", Address: "0xTOKEN", Decimals: 9}},
	}, newTestFuelClient(srv.URL), sink, zerolog.Nop())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.poll(context.Background(), now))

	height = "510"
	withdrawals = `{"data": {"blocks": {"nodes": [{
		"header": {"height": "505"},
		"transactions": [{"receipts": [
			{"receiptType": "MESSAGE_OUT", "amount": "2000000000", "assetId": "0xtoken"},
			{"receiptType": "MESSAGE_OUT", "amount": "1000000000", "assetId": "0xother"}
		]}]
	}]}}}`
	require.NoError(t, w.poll(context.Background(), now.Add(6*time.Second)))

	transfers := sink.byKind(event.KindValueTransfer)
	require.Len(t, transfers, 2)

	// The watched asset routes to the gateway family, everything else to portal.
	require.Equal(t, event.ContractGateway, transfers[0].Contract)
	require.Equal(t, "USDC", transfers[0].TokenName)
	require.True(t, transfers[0].Amount.Equal(decimal.NewFromInt(2)))

	require.Equal(t, event.ContractPortal, transfers[1].Contract)
	require.Equal(t, "ETH", transfers[1].TokenName)
	require.Equal(t, event.DirectionWithdraw, transfers[1].Direction)
}

func TestFuelWatcherReportsDisconnect(t *testing.T) {
	srv := fuelServer(t, func(string) string {
		return `{"errors": [{"message": "node down"}]}`
	})
	defer srv.Close()

	sink := &recordingSink{}
	w := NewFuelWatcher(FuelWatcherOptions{PollInterval: time.Second}, newTestFuelClient(srv.URL), sink, zerolog.Nop())

	require.NoError(t, w.poll(context.Background(), time.Now()))

	conn := sink.byKind(event.KindConnectivity)
	require.Len(t, conn, 1)
	require.False(t, conn[0].Connected)
	// A failed connection check short-circuits the rest of the poll.
	require.Empty(t, sink.byKind(event.KindCheck))
}
