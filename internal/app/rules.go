package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/chain"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/config"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

const (
	ethereumTokenDecimals = 18
	fuelTokenDecimals     = 9
)

// compileRules turns the validated configuration into the engine's rule set.
// A rule whose level resolves to "none" is simply not compiled; this is how
// operators disable individual checks.
func compileRules(cfg *config.Config, windows *alerting.WindowSet) ([]*alerting.Rule, error) {
	var rules []*alerting.Rule

	add := func(rc alerting.RuleConfig) {
		if rc.Level == alerting.LevelNone {
			return
		}
		rules = append(rules, alerting.NewRule(rc, windows))
	}

	fw := cfg.FuelWatcher
	ew := cfg.EthereumWatcher

	level, err := alerting.ParseLevel(fw.ConnectionAlert.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("fuel connection alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:    alerting.Identity{Chain: event.ChainFuel, Kind: alerting.RuleConnection},
		Level: level,
	})

	level, err = alerting.ParseLevel(fw.BlockProductionAlert.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("fuel block production alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:           alerting.Identity{Chain: event.ChainFuel, Kind: alerting.RuleBlockProduction},
		Level:        level,
		MaxBlockTime: time.Duration(fw.BlockProductionAlert.MaxBlockTime) * time.Second,
	})

	for i, a := range fw.PortalWithdrawAlerts {
		rc, err := portalRule(event.ChainFuel, event.DirectionWithdraw, a)
		if err != nil {
			return nil, fmt.Errorf("fuel portal withdraw alert %d: %w", i, err)
		}
		add(rc)
	}
	for i, a := range fw.GatewayWithdrawAlerts {
		rc, err := gatewayRule(event.ChainFuel, event.DirectionWithdraw, a)
		if err != nil {
			return nil, fmt.Errorf("fuel gateway withdraw alert %d: %w", i, err)
		}
		add(rc)
	}

	level, err = alerting.ParseLevel(ew.ConnectionAlert.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("ethereum connection alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:    alerting.Identity{Chain: event.ChainEthereum, Kind: alerting.RuleConnection},
		Level: level,
	})

	level, err = alerting.ParseLevel(ew.BlockProductionAlert.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("ethereum block production alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:           alerting.Identity{Chain: event.ChainEthereum, Kind: alerting.RuleBlockProduction},
		Level:        level,
		MaxBlockTime: time.Duration(ew.BlockProductionAlert.MaxBlockTime) * time.Second,
	})

	level, err = alerting.ParseLevel(ew.AccountFundsAlert.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("ethereum account funds alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:         alerting.Identity{Chain: event.ChainEthereum, Kind: alerting.RuleAccountFunds},
		Level:      level,
		MinBalance: decimal.NewFromFloat(ew.AccountFundsAlert.MinBalance),
	})

	level, err = alerting.ParseLevel(ew.InvalidStateCommit.AlertLevel)
	if err != nil {
		return nil, fmt.Errorf("ethereum invalid state commit alert: %w", err)
	}
	action, err := alerting.ParseAction(ew.InvalidStateCommit.AlertAction)
	if err != nil {
		return nil, fmt.Errorf("ethereum invalid state commit alert: %w", err)
	}
	add(alerting.RuleConfig{
		ID:     alerting.Identity{Chain: event.ChainEthereum, Kind: alerting.RuleInvalidStateCommit},
		Level:  level,
		Action: action,
	})

	for i, a := range ew.PortalDepositAlerts {
		rc, err := portalRule(event.ChainEthereum, event.DirectionDeposit, a)
		if err != nil {
			return nil, fmt.Errorf("ethereum portal deposit alert %d: %w", i, err)
		}
		add(rc)
	}
	for i, a := range ew.GatewayDepositAlerts {
		rc, err := gatewayRule(event.ChainEthereum, event.DirectionDeposit, a)
		if err != nil {
			return nil, fmt.Errorf("ethereum gateway deposit alert %d: %w", i, err)
		}
		add(rc)
	}

	return rules, nil
}

func portalRule(side event.ChainSide, dir event.Direction, a config.PortalAlert) (alerting.RuleConfig, error) {
	level, err := alerting.ParseLevel(a.AlertLevel)
	if err != nil {
		return alerting.RuleConfig{}, err
	}
	return alerting.RuleConfig{
		ID: alerting.Identity{
			Chain:     side,
			Kind:      alerting.RuleWindowedAmount,
			Contract:  event.ContractPortal,
			Direction: dir,
			TimeFrame: time.Duration(a.TimeFrame) * time.Second,
		},
		Level:     level,
		Threshold: decimal.NewFromFloat(a.Amount),
	}, nil
}

func gatewayRule(side event.ChainSide, dir event.Direction, a config.GatewayAlert) (alerting.RuleConfig, error) {
	level, err := alerting.ParseLevel(a.AlertLevel)
	if err != nil {
		return alerting.RuleConfig{}, err
	}
	return alerting.RuleConfig{
		ID: alerting.Identity{
			Chain:        side,
			Kind:         alerting.RuleWindowedAmount,
			Contract:     event.ContractGateway,
			Direction:    dir,
			TokenAddress: a.TokenAddress,
			TimeFrame:    time.Duration(a.TimeFrame) * time.Second,
		},
		Level:     level,
		Threshold: decimal.NewFromFloat(a.Amount),
		TokenName: a.TokenName,
	}, nil
}

// gatewayTokens collects the distinct tokens a side's gateway alerts watch so
// the watcher knows which transfer logs to decode.
func gatewayTokens(alerts []config.GatewayAlert, defaultDecimals int) []chain.WatchedToken {
	seen := make(map[string]bool, len(alerts))
	var tokens []chain.WatchedToken
	for _, a := range alerts {
		if seen[a.TokenAddress] {
			continue
		}
		seen[a.TokenAddress] = true
		decimals := a.TokenDecimals
		if decimals <= 0 {
			decimals = defaultDecimals
		}
		tokens = append(tokens, chain.WatchedToken{
			Name:     a.TokenName,
			Address:  a.TokenAddress,
			Decimals: decimals,
		})
	}
	return tokens
}
