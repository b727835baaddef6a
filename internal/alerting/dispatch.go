package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers an admitted alert to the outside world. Delivery failures
// are the transport's concern; the engine logs and moves on.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Pauser executes the protective contract pause. Implementations are expected
// to be idempotent; the dispatcher never tracks whether a pause is already in
// effect and favours redundant calls over missed ones.
type Pauser interface {
	PauseAll(ctx context.Context) error
}

// AlertStore persists admitted alerts for auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, a Alert) error
}

// Dispatcher forwards surviving alerts to the notifier and, for alerts tagged
// with a pause action, invokes the pauser exactly once per admitted alert.
type Dispatcher struct {
	notifier Notifier
	pauser   Pauser
	store    AlertStore
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewDispatcher wires the dispatcher's collaborators. notifier, pauser and
// store may each be nil, which disables that output.
func NewDispatcher(notifier Notifier, pauser Pauser, store AlertStore, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		pauser:   pauser,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles one admitted alert. Nothing here may propagate an error
// back into the evaluation pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) {
	d.logAlert(a)
	if d.metrics != nil {
		d.metrics.AlertsFired.WithLabelValues(a.Level.String()).Inc()
	}

	if d.store != nil {
		if err := d.store.InsertAlert(ctx, a); err != nil {
			d.logger.Error().Err(err).Str("rule", a.ID.String()).Msg("failed to persist alert")
		}
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, a); err != nil {
			d.logger.Error().Err(err).Str("rule", a.ID.String()).Msg("failed to deliver alert")
		}
	}

	if a.Action == ActionPauseAll {
		d.pauseAll(ctx, a)
	}
}

func (d *Dispatcher) pauseAll(ctx context.Context, a Alert) {
	if d.pauser == nil {
		d.logger.Error().Str("rule", a.ID.String()).Msg("pause_all requested but no pauser configured; action skipped")
		return
	}

	if d.metrics != nil {
		d.metrics.PauseCalls.Inc()
	}
	d.logger.Warn().Str("rule", a.ID.String()).Msg("pausing all bridge contracts")

	if err := d.pauser.PauseAll(ctx); err != nil {
		// Safety-relevant: surface at the highest severity, but do not retry.
		if d.metrics != nil {
			d.metrics.PauseFailures.Inc()
		}
		d.logger.Error().Err(err).Str("rule", a.ID.String()).Msg("pause_all failed")
	}
}

func (d *Dispatcher) logAlert(a Alert) {
	var ev *zerolog.Event
	switch a.Level {
	case LevelError:
		ev = d.logger.Error()
	case LevelWarn:
		ev = d.logger.Warn()
	default:
		ev = d.logger.Info()
	}
	ev.Str("rule", a.ID.String()).
		Str("action", a.Action.String()).
		Time("fired_at", a.FiredAt).
		Str("detail", a.Detail).
		Msg(a.Summary)
}
