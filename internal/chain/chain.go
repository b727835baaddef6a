package chain

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

// Sink receives normalized observations from a watcher. The engine's per-side
// queues satisfy it.
type Sink interface {
	Submit(ctx context.Context, ev event.Event) bool
}

// CommitVerifier checks a state commitment against the L2. The Fuel client
// satisfies it for the Ethereum watcher's commit scan.
type CommitVerifier interface {
	VerifyBlockCommit(ctx context.Context, blockHash string) (bool, error)
}

// WatchedToken identifies one gateway token whose transfers are observed.
type WatchedToken struct {
	Name     string
	Address  string
	Decimals int
}

// heartbeatSkip rate-limits the "still watching" log line to one per this
// many poll rounds.
const heartbeatSkip = 50

// fromBaseUnits converts an integral base-unit amount into a token amount.
func fromBaseUnits(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
