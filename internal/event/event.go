package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChainSide identifies which of the two monitored chains produced an event.
type ChainSide string

const (
	ChainFuel     ChainSide = "fuel"
	ChainEthereum ChainSide = "ethereum"
)

// Direction of a value transfer relative to the bridge.
type Direction string

const (
	DirectionDeposit  Direction = "deposit"
	DirectionWithdraw Direction = "withdraw"
)

// Contract names the bridge contract a transfer moved through.
type Contract string

const (
	ContractPortal  Contract = "portal"
	ContractGateway Contract = "gateway"
)

// Kind discriminates the event union.
type Kind int

const (
	KindConnectivity Kind = iota
	KindBlockProduced
	KindBalanceSample
	KindValueTransfer
	KindStateCommit
	// KindCheck is a periodic tick from the watcher's poll loop. It carries no
	// observation of its own; time-driven rules (block production) evaluate on it.
	KindCheck
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindBlockProduced:
		return "block_produced"
	case KindBalanceSample:
		return "balance_sample"
	case KindValueTransfer:
		return "value_transfer"
	case KindStateCommit:
		return "state_commit"
	case KindCheck:
		return "check"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a normalized observation from either chain watcher. It is a closed
// tagged union: Kind selects which field group is meaningful. Events are
// ephemeral; they are consumed by the rule evaluators and discarded.
type Event struct {
	Kind  Kind
	Chain ChainSide

	// Time is observed_at for watcher-stamped events and occurred_at for value
	// transfers. Per chain side it is monotonic non-decreasing up to a small
	// out-of-order slack tolerated by the window aggregator.
	Time time.Time

	// Connectivity
	Connected bool

	// BlockProduced
	Height uint64

	// BalanceSample
	Account string
	Balance decimal.Decimal

	// ValueTransfer
	Direction    Direction
	Contract     Contract
	TokenName    string
	TokenAddress string
	Amount       decimal.Decimal

	// StateCommit
	Valid      bool
	CommitHash string
}

// Connectivity builds a connectivity observation.
func Connectivity(chain ChainSide, connected bool, at time.Time) Event {
	return Event{Kind: KindConnectivity, Chain: chain, Connected: connected, Time: at}
}

// BlockProduced builds a new-block observation. The timestamp is the time of
// receipt, not the block's own time; production latency is measured against it.
func BlockProduced(chain ChainSide, height uint64, at time.Time) Event {
	return Event{Kind: KindBlockProduced, Chain: chain, Height: height, Time: at}
}

// BalanceSample builds an operator account balance observation.
func BalanceSample(chain ChainSide, account string, balance decimal.Decimal, at time.Time) Event {
	return Event{Kind: KindBalanceSample, Chain: chain, Account: account, Balance: balance, Time: at}
}

// Transfer builds a value-transfer observation.
func Transfer(chain ChainSide, dir Direction, contract Contract, tokenName, tokenAddress string, amount decimal.Decimal, at time.Time) Event {
	return Event{
		Kind:         KindValueTransfer,
		Chain:        chain,
		Direction:    dir,
		Contract:     contract,
		TokenName:    tokenName,
		TokenAddress: tokenAddress,
		Amount:       amount,
		Time:         at,
	}
}

// StateCommit builds a state-commitment validity observation.
func StateCommit(valid bool, commitHash string, at time.Time) Event {
	return Event{Kind: KindStateCommit, Chain: ChainEthereum, Valid: valid, CommitHash: commitHash, Time: at}
}

// Check builds a periodic evaluation tick.
func Check(chain ChainSide, at time.Time) Event {
	return Event{Kind: KindCheck, Chain: chain, Time: at}
}
