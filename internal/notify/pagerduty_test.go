package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

func testAlert(level alerting.Level) alerting.Alert {
	return alerting.Alert{
		ID:      alerting.Identity{Chain: event.ChainEthereum, Kind: alerting.RuleInvalidStateCommit},
		Level:   level,
		FiredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary: "invalid state commit detected",
		Detail:  "An invalid commit was made on the state contract. Hash: 0xdead",
	}
}

func TestPagerDutyNotifierTriggersOnError(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/enqueue", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewPagerDutyNotifier("routing-key", srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), testAlert(alerting.LevelError)))

	require.Equal(t, "routing-key", received["routing_key"])
	require.Equal(t, "trigger", received["event_action"])
	require.Equal(t, "ethereum/invalid_state_commit", received["dedup_key"])

	payload, ok := received["payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "critical", payload["severity"])
	require.Contains(t, payload["summary"], "invalid state commit")
}

func TestPagerDutyNotifierMapsWarnToWarning(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewPagerDutyNotifier("routing-key", srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), testAlert(alerting.LevelWarn)))

	payload := received["payload"].(map[string]any)
	require.Equal(t, "warning", payload["severity"])
}

func TestPagerDutyNotifierSkipsInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("info alerts must not page")
	}))
	defer srv.Close()

	n := NewPagerDutyNotifier("routing-key", srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), testAlert(alerting.LevelInfo)))
}

func TestPagerDutyNotifierReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewPagerDutyNotifier("routing-key", srv.URL, time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), testAlert(alerting.LevelError))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
}
