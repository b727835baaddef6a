package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fuelServer(t *testing.T, respond func(query string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(req.Query)))
	}))
}

func newTestFuelClient(url string) *FuelClient {
	return NewFuelClient(FuelClientOptions{GraphQLURL: url, Timeout: time.Second}, zerolog.Nop())
}

func TestFuelClientCheckConnection(t *testing.T) {
	srv := fuelServer(t, func(string) string {
		return `{"data": {"health": true}}`
	})
	defer srv.Close()

	require.NoError(t, newTestFuelClient(srv.URL).CheckConnection(context.Background()))
}

func TestFuelClientCheckConnectionUnhealthy(t *testing.T) {
	srv := fuelServer(t, func(string) string {
		return `{"data": {"health": false}}`
	})
	defer srv.Close()

	err := newTestFuelClient(srv.URL).CheckConnection(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unhealthy")
}

func TestFuelClientReportsGraphQLErrors(t *testing.T) {
	srv := fuelServer(t, func(string) string {
		return `{"errors": [{"message": "field not found"}]}`
	})
	defer srv.Close()

	err := newTestFuelClient(srv.URL).CheckConnection(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "field not found")
}

func TestFuelClientLatestBlockHeight(t *testing.T) {
	srv := fuelServer(t, func(string) string {
		return `{"data": {"chain": {"latestBlock": {"height": "123456"}}}}`
	})
	defer srv.Close()

	height, err := newTestFuelClient(srv.URL).LatestBlockHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(123456), height)
}

func TestFuelClientWithdrawalsSince(t *testing.T) {
	srv := fuelServer(t, func(query string) string {
		require.True(t, strings.Contains(query, "heightAbove: 100"))
		return `{"data": {"blocks": {"nodes": [{
			"header": {"height": "101"},
			"transactions": [{"receipts": [
				{"receiptType": "MESSAGE_OUT", "amount": "1500000000", "assetId": "0xbase"},
				{"receiptType": "TRANSFER", "amount": "999", "assetId": "0xbase"}
			]}]
		}]}}}`
	})
	defer srv.Close()

	withdrawals, err := newTestFuelClient(srv.URL).WithdrawalsSince(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	require.Equal(t, "0xbase", withdrawals[0].AssetID)
	require.Equal(t, uint64(101), withdrawals[0].Height)
	// 1_500_000_000 base units at 9 decimals is 1.5.
	require.True(t, withdrawals[0].Amount.Equal(decimal.NewFromFloat(1.5)))
}

func TestFuelClientWithdrawalsSincePagesThroughBacklog(t *testing.T) {
	pageNode := func(height uint64) string {
		return fmt.Sprintf(`{
			"header": {"height": "%d"},
			"transactions": [{"receipts": [
				{"receiptType": "MESSAGE_OUT", "amount": "1000000000", "assetId": "0xbase"}
			]}]
		}`, height)
	}

	var queries []string
	srv := fuelServer(t, func(query string) string {
		queries = append(queries, query)
		switch {
		case strings.Contains(query, "heightAbove: 100"):
			// A full page: heights 101..200, one withdrawal each.
			nodes := make([]string, 0, withdrawalPageSize)
			for h := uint64(101); h <= 200; h++ {
				nodes = append(nodes, pageNode(h))
			}
			return `{"data": {"blocks": {"nodes": [` + strings.Join(nodes, ",") + `]}}}`
		case strings.Contains(query, "heightAbove: 200"):
			return `{"data": {"blocks": {"nodes": [` + pageNode(201) + `]}}}`
		default:
			t.Fatalf("unexpected query: %s", query)
			return ""
		}
	})
	defer srv.Close()

	withdrawals, err := newTestFuelClient(srv.URL).WithdrawalsSince(context.Background(), 100)
	require.NoError(t, err)

	// All 101 withdrawals across both pages are counted, none skipped.
	require.Len(t, withdrawals, 101)
	require.Len(t, queries, 2)
	require.Equal(t, uint64(101), withdrawals[0].Height)
	require.Equal(t, uint64(201), withdrawals[100].Height)
}

func TestFuelClientVerifyBlockCommit(t *testing.T) {
	srv := fuelServer(t, func(query string) string {
		if strings.Contains(query, "0xknown") {
			return `{"data": {"block": {"id": "0xknown"}}}`
		}
		return `{"data": {"block": null}}`
	})
	defer srv.Close()

	client := newTestFuelClient(srv.URL)

	valid, err := client.VerifyBlockCommit(context.Background(), "0xknown")
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = client.VerifyBlockCommit(context.Background(), "0xforged")
	require.NoError(t, err)
	require.False(t, valid)
}
