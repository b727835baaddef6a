package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

// Level grades alert severity. The zero value disables a rule.
type Level int

const (
	LevelNone Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a configured level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LevelNone, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelNone, fmt.Errorf("unknown alert level %q", s)
}

// Action is the protective side effect a rule may request alongside its alert.
type Action int

const (
	ActionNone Action = iota
	ActionPauseAll
)

func (a Action) String() string {
	if a == ActionPauseAll {
		return "pause_all"
	}
	return "none"
}

// ParseAction maps a configured action name to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ActionNone, nil
	case "pause_all", "pauseall":
		return ActionPauseAll, nil
	}
	return ActionNone, fmt.Errorf("unknown alert action %q", s)
}

// RuleKind enumerates the closed set of rule behaviours.
type RuleKind int

const (
	RuleConnection RuleKind = iota
	RuleBlockProduction
	RuleAccountFunds
	RuleInvalidStateCommit
	RuleWindowedAmount
)

func (k RuleKind) String() string {
	switch k {
	case RuleConnection:
		return "connection"
	case RuleBlockProduction:
		return "block_production"
	case RuleAccountFunds:
		return "account_funds"
	case RuleInvalidStateCommit:
		return "invalid_state_commit"
	case RuleWindowedAmount:
		return "windowed_amount"
	default:
		return fmt.Sprintf("rule(%d)", int(k))
	}
}

// Identity is the stable key distinguishing one configured rule from another.
// It is derived from the rule's configuration, never from a triggering value,
// so repeated breaches of the same rule share a dedup entry while distinct
// thresholds (60s vs 300s windows) stay independent.
type Identity struct {
	Chain        event.ChainSide
	Kind         RuleKind
	Contract     event.Contract
	Direction    event.Direction
	TokenAddress string
	TimeFrame    time.Duration
}

// String renders the identity as a stable map key.
func (id Identity) String() string {
	var b strings.Builder
	b.WriteString(string(id.Chain))
	b.WriteByte('/')
	b.WriteString(id.Kind.String())
	if id.Kind == RuleWindowedAmount {
		fmt.Fprintf(&b, "/%s/%s/%s/%ds", id.Contract, id.Direction, strings.ToLower(id.TokenAddress), int(id.TimeFrame.Seconds()))
	}
	return b.String()
}

// Alert is the engine's output record.
type Alert struct {
	ID      Identity
	Level   Level
	Action  Action
	FiredAt time.Time
	Summary string
	Detail  string
}
