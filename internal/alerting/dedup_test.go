package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

func dedupAlert(id Identity, at time.Time) Alert {
	return Alert{ID: id, Level: LevelWarn, FiredAt: at}
}

func TestDeduplicatorSuppressesWithinDelay(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, nil)
	id := Identity{Chain: event.ChainFuel, Kind: RuleConnection}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, d.Admit(dedupAlert(id, base)))
	require.False(t, d.Admit(dedupAlert(id, base.Add(299*time.Second))))
	require.Equal(t, uint64(1), d.Suppressed())
}

func TestDeduplicatorAdmitsAtExactDelay(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, nil)
	id := Identity{Chain: event.ChainFuel, Kind: RuleConnection}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, d.Admit(dedupAlert(id, base)))
	require.True(t, d.Admit(dedupAlert(id, base.Add(5*time.Minute))))
	require.Equal(t, uint64(0), d.Suppressed())
}

func TestDeduplicatorSlidesOnAdmission(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, nil)
	id := Identity{Chain: event.ChainFuel, Kind: RuleConnection}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, d.Admit(dedupAlert(id, base)))
	require.True(t, d.Admit(dedupAlert(id, base.Add(5*time.Minute))))
	// The cool-down restarts from the second admission, not the first.
	require.False(t, d.Admit(dedupAlert(id, base.Add(9*time.Minute))))
	require.True(t, d.Admit(dedupAlert(id, base.Add(10*time.Minute))))
}

func TestDeduplicatorKeepsIdentitiesIndependent(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	fuelConn := Identity{Chain: event.ChainFuel, Kind: RuleConnection}
	ethConn := Identity{Chain: event.ChainEthereum, Kind: RuleConnection}

	require.True(t, d.Admit(dedupAlert(fuelConn, base)))
	require.True(t, d.Admit(dedupAlert(ethConn, base)))
	require.False(t, d.Admit(dedupAlert(fuelConn, base.Add(time.Second))))
	require.False(t, d.Admit(dedupAlert(ethConn, base.Add(time.Second))))
}

func TestDeduplicatorDistinguishesWindowedThresholds(t *testing.T) {
	d := NewDeduplicator(5*time.Minute, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	short := windowedIdentity(60 * time.Second)
	long := windowedIdentity(300 * time.Second)

	// Same contract and direction, different frames: separate dedup entries.
	require.True(t, d.Admit(dedupAlert(short, base)))
	require.True(t, d.Admit(dedupAlert(long, base)))
}
