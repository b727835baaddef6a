package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

// RuleConfig is the immutable, validated description of one configured rule.
// Which fields are meaningful depends on ID.Kind.
type RuleConfig struct {
	ID     Identity
	Level  Level
	Action Action

	// RuleBlockProduction
	MaxBlockTime time.Duration

	// RuleAccountFunds
	MinBalance decimal.Decimal

	// RuleWindowedAmount
	Threshold decimal.Decimal
	TokenName string
}

// Rule couples a RuleConfig with its private mutable state. A rule never reads
// another rule's state, so rules for the same chain side may be evaluated in
// any order or in parallel per identity.
type Rule struct {
	cfg RuleConfig

	// block production: receipt time of the newest block. While overdue the
	// rule keeps firing on every tick and relies on the deduplicator for
	// spacing; only a fresh block clears the condition.
	lastBlockAt time.Time

	windows *WindowSet
}

// NewRule builds a rule from validated configuration. Windowed rules must be
// given the shared WindowSet; other kinds ignore it.
func NewRule(cfg RuleConfig, windows *WindowSet) *Rule {
	if cfg.ID.Kind == RuleWindowedAmount && windows != nil {
		windows.Register(cfg.ID)
	}
	return &Rule{cfg: cfg, windows: windows}
}

// ID returns the rule's identity.
func (r *Rule) ID() Identity { return r.cfg.ID }

// Level returns the rule's configured severity.
func (r *Rule) Level() Level { return r.cfg.Level }

// Evaluate consumes one event and yields at most one raw alert. It is called
// from a single goroutine per chain side.
func (r *Rule) Evaluate(ev event.Event) (Alert, bool) {
	switch r.cfg.ID.Kind {
	case RuleConnection:
		return r.evalConnection(ev)
	case RuleBlockProduction:
		return r.evalBlockProduction(ev)
	case RuleAccountFunds:
		return r.evalAccountFunds(ev)
	case RuleInvalidStateCommit:
		return r.evalStateCommit(ev)
	case RuleWindowedAmount:
		return r.evalWindowedAmount(ev)
	}
	return Alert{}, false
}

func (r *Rule) evalConnection(ev event.Event) (Alert, bool) {
	if ev.Kind != event.KindConnectivity || ev.Chain != r.cfg.ID.Chain {
		return Alert{}, false
	}
	if ev.Connected {
		return Alert{}, false
	}
	// Fires on every disconnected observation until connectivity returns;
	// the cool-down lives in the deduplicator, not here.
	return r.alert(ev.Time,
		fmt.Sprintf("%s chain connection lost", r.cfg.ID.Chain),
		fmt.Sprintf("Failed to reach the %s chain endpoint.", r.cfg.ID.Chain),
	), true
}

func (r *Rule) evalBlockProduction(ev event.Event) (Alert, bool) {
	if ev.Chain != r.cfg.ID.Chain {
		return Alert{}, false
	}

	switch ev.Kind {
	case event.KindBlockProduced:
		r.lastBlockAt = ev.Time
		return Alert{}, false
	case event.KindCheck:
		if r.lastBlockAt.IsZero() {
			// First tick establishes the baseline so a freshly started
			// watchtower does not alarm on history it never saw.
			r.lastBlockAt = ev.Time
			return Alert{}, false
		}
		since := ev.Time.Sub(r.lastBlockAt)
		if since <= r.cfg.MaxBlockTime {
			return Alert{}, false
		}
		return r.alert(ev.Time,
			fmt.Sprintf("%s block production stalled", r.cfg.ID.Chain),
			fmt.Sprintf("Next %s block is taking longer than %s. Last block was %s ago.",
				r.cfg.ID.Chain, r.cfg.MaxBlockTime, since.Truncate(time.Second)),
		), true
	}
	return Alert{}, false
}

func (r *Rule) evalAccountFunds(ev event.Event) (Alert, bool) {
	if ev.Kind != event.KindBalanceSample || ev.Chain != r.cfg.ID.Chain {
		return Alert{}, false
	}
	if ev.Balance.GreaterThanOrEqual(r.cfg.MinBalance) {
		return Alert{}, false
	}
	return r.alert(ev.Time,
		fmt.Sprintf("%s account low on funds", r.cfg.ID.Chain),
		fmt.Sprintf("Account %s balance %s is below the configured minimum %s.",
			ev.Account, ev.Balance, r.cfg.MinBalance),
	), true
}

func (r *Rule) evalStateCommit(ev event.Event) (Alert, bool) {
	if ev.Kind != event.KindStateCommit {
		return Alert{}, false
	}
	if ev.Valid {
		return Alert{}, false
	}
	// The requested action rides on the alert so the dispatcher never has to
	// consult configuration again.
	return r.alert(ev.Time,
		"invalid state commit detected",
		fmt.Sprintf("An invalid commit was made on the state contract. Hash: %s", ev.CommitHash),
	), true
}

func (r *Rule) evalWindowedAmount(ev event.Event) (Alert, bool) {
	id := r.cfg.ID
	if ev.Kind != event.KindValueTransfer || ev.Chain != id.Chain {
		return Alert{}, false
	}
	if ev.Contract != id.Contract || ev.Direction != id.Direction {
		return Alert{}, false
	}
	if id.Contract == event.ContractGateway && !strings.EqualFold(ev.TokenAddress, id.TokenAddress) {
		return Alert{}, false
	}

	sum := r.windows.Observe(id, ev.Time, ev.Amount)
	if sum.LessThan(r.cfg.Threshold) {
		return Alert{}, false
	}

	token := r.cfg.TokenName
	if token == "" {
		token = "base asset"
	}
	return r.alert(ev.Time,
		fmt.Sprintf("%s %s %s threshold breached", r.cfg.ID.Chain, id.Contract, id.Direction),
		fmt.Sprintf("%s %s threshold of %s over %s has been reached. Amount moved: %s.",
			token, id.Direction, r.cfg.Threshold, id.TimeFrame, sum),
	), true
}

func (r *Rule) alert(at time.Time, summary, detail string) Alert {
	return Alert{
		ID:      r.cfg.ID,
		Level:   r.cfg.Level,
		Action:  r.cfg.Action,
		FiredAt: at,
		Summary: summary,
		Detail:  detail,
	}
}
