package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return f.err
}

func (f *fakeNotifier) delivered() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}

type fakePauser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePauser) PauseAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakePauser) pauseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// runEngine feeds the events through a fresh engine and waits for the queues
// to drain.
func runEngine(t *testing.T, rules []*Rule, dedup *Deduplicator, dispatcher *Dispatcher, metrics *Metrics, events []event.Event) {
	t.Helper()

	engine := NewEngine(rules, dedup, dispatcher, metrics, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run(ctx)
	}()

	for _, ev := range events {
		require.True(t, engine.Submit(ctx, ev))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not drain in time")
	}
}

func TestEngineInvalidCommitPausesAndNotifiesOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	pauser := &fakePauser{}
	metrics := NewMetrics()

	rules := []*Rule{NewRule(RuleConfig{
		ID:     Identity{Chain: event.ChainEthereum, Kind: RuleInvalidStateCommit},
		Level:  LevelError,
		Action: ActionPauseAll,
	}, nil)}

	dedup := NewDeduplicator(5*time.Minute, metrics.AlertsSuppressed)
	dispatcher := NewDispatcher(notifier, pauser, nil, metrics, zerolog.Nop())

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runEngine(t, rules, dedup, dispatcher, metrics, []event.Event{
		event.StateCommit(false, "0xdead", base),
		// Second breach inside the cool-down: suppressed before dispatch,
		// so the pauser must not run again.
		event.StateCommit(false, "0xdead", base.Add(time.Second)),
	})

	require.Len(t, notifier.delivered(), 1)
	require.Equal(t, 1, pauser.pauseCalls())
	require.Equal(t, uint64(1), dedup.Suppressed())
}

func TestEnginePauseFailureDoesNotStopPipeline(t *testing.T) {
	notifier := &fakeNotifier{}
	pauser := &fakePauser{err: errors.New("rpc down")}
	metrics := NewMetrics()

	rules := []*Rule{
		NewRule(RuleConfig{
			ID:     Identity{Chain: event.ChainEthereum, Kind: RuleInvalidStateCommit},
			Level:  LevelError,
			Action: ActionPauseAll,
		}, nil),
		NewRule(RuleConfig{
			ID:    Identity{Chain: event.ChainEthereum, Kind: RuleConnection},
			Level: LevelError,
		}, nil),
	}

	dedup := NewDeduplicator(5*time.Minute, metrics.AlertsSuppressed)
	dispatcher := NewDispatcher(notifier, pauser, nil, metrics, zerolog.Nop())

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runEngine(t, rules, dedup, dispatcher, metrics, []event.Event{
		event.StateCommit(false, "0xdead", base),
		event.Connectivity(event.ChainEthereum, false, base.Add(time.Second)),
	})

	// The failed pause is recorded but later alerts still flow.
	require.Len(t, notifier.delivered(), 2)
	require.Equal(t, 1, pauser.pauseCalls())
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.PauseFailures))
}

func TestEngineIsolatesPanickingRule(t *testing.T) {
	notifier := &fakeNotifier{}
	metrics := NewMetrics()

	// A windowed rule built without a WindowSet panics on its first matching
	// transfer; the sibling connection rule must keep working.
	broken := NewRule(RuleConfig{
		ID:        windowedIdentity(60 * time.Second),
		Level:     LevelWarn,
		Threshold: decimal.NewFromInt(10),
	}, nil)
	healthy := NewRule(RuleConfig{
		ID:    Identity{Chain: event.ChainFuel, Kind: RuleConnection},
		Level: LevelError,
	}, nil)

	dedup := NewDeduplicator(5*time.Minute, metrics.AlertsSuppressed)
	dispatcher := NewDispatcher(notifier, nil, nil, metrics, zerolog.Nop())

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runEngine(t, []*Rule{broken, healthy}, dedup, dispatcher, metrics, []event.Event{
		event.Transfer(event.ChainFuel, event.DirectionWithdraw, event.ContractPortal, "ETH", "", decimal.NewFromInt(50), base),
		event.Connectivity(event.ChainFuel, false, base.Add(time.Second)),
	})

	delivered := notifier.delivered()
	require.Len(t, delivered, 1)
	require.Equal(t, RuleConnection, delivered[0].ID.Kind)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.RuleFailures.WithLabelValues(broken.ID().String())))
}

func TestEngineDropsEventForUnknownChain(t *testing.T) {
	metrics := NewMetrics()
	engine := NewEngine(nil, NewDeduplicator(time.Minute, nil),
		NewDispatcher(nil, nil, nil, metrics, zerolog.Nop()), metrics, zerolog.Nop())

	ev := event.Event{Kind: event.KindCheck, Chain: "solana", Time: time.Now()}
	require.False(t, engine.Submit(context.Background(), ev))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("solana")))
}

func TestEngineRoutesEventsBySide(t *testing.T) {
	notifier := &fakeNotifier{}
	metrics := NewMetrics()

	rules := []*Rule{
		NewRule(RuleConfig{
			ID:    Identity{Chain: event.ChainFuel, Kind: RuleConnection},
			Level: LevelError,
		}, nil),
		NewRule(RuleConfig{
			ID:    Identity{Chain: event.ChainEthereum, Kind: RuleConnection},
			Level: LevelError,
		}, nil),
	}

	dedup := NewDeduplicator(5*time.Minute, metrics.AlertsSuppressed)
	dispatcher := NewDispatcher(notifier, nil, nil, metrics, zerolog.Nop())

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runEngine(t, rules, dedup, dispatcher, metrics, []event.Event{
		event.Connectivity(event.ChainFuel, false, base),
		event.Connectivity(event.ChainEthereum, false, base),
	})

	delivered := notifier.delivered()
	require.Len(t, delivered, 2)
	chains := map[event.ChainSide]bool{}
	for _, a := range delivered {
		chains[a.ID.Chain] = true
	}
	require.True(t, chains[event.ChainFuel])
	require.True(t, chains[event.ChainEthereum])
}
