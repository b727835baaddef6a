package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

const enqueuePath = "/v2/enqueue"

// PagerDutyNotifier delivers alerts through the PagerDuty Events v2 API.
// Info-level alerts are not paged; they only appear in the log stream.
type PagerDutyNotifier struct {
	routingKey string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewPagerDutyNotifier constructs a PagerDuty alert sender.
func NewPagerDutyNotifier(routingKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *PagerDutyNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://events.eu.pagerduty.com"
	}

	return &PagerDutyNotifier{
		routingKey: routingKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_pagerduty").Logger(),
	}
}

// Notify enqueues a trigger event for warn and error alerts.
func (n *PagerDutyNotifier) Notify(ctx context.Context, a alerting.Alert) error {
	severity, page := severityFor(a.Level)
	if !page {
		return nil
	}

	payload := eventPayload{
		RoutingKey:  n.routingKey,
		EventAction: "trigger",
		DedupKey:    a.ID.String(),
		Payload: eventDetails{
			Summary:   fmt.Sprintf("%s: %s", a.Summary, a.Detail),
			Severity:  severity,
			Source:    "fuel-canary-watchtower",
			Timestamp: a.FiredAt.UTC().Format(time.RFC3339),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pagerduty payload: %w", err)
	}

	url := n.baseURL + enqueuePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send pagerduty request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("rule", a.ID.String()).
		Str("severity", severity).
		Msg("alert delivered to pagerduty")
	return nil
}

func severityFor(level alerting.Level) (string, bool) {
	switch level {
	case alerting.LevelError:
		return "critical", true
	case alerting.LevelWarn:
		return "warning", true
	default:
		return "", false
	}
}

type eventPayload struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventDetails `json:"payload"`
}

type eventDetails struct {
	Summary   string `json:"summary"`
	Severity  string `json:"severity"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp,omitempty"`
}

var _ alerting.Notifier = (*PagerDutyNotifier)(nil)
