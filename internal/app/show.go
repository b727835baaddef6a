package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
)

// Show prints the newest alerts from the history store.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, showHeader)

	for _, alert := range alerts {
		fmt.Fprintln(writer, showRow(alert))
	}

	writer.Flush()
	return nil
}

const showHeader = "Fired (UTC)\tChain\tKind\tLevel\tAction\tSummary"

func showRow(alert storage.AlertRecord) string {
	return fmt.Sprintf(
		"%s\t%s\t%s\t%s\t%s\t%s",
		alert.FiredAt.UTC().Format(time.RFC3339),
		alert.Chain,
		alert.Kind,
		alert.Level,
		alert.Action,
		sanitizeInline(alert.Summary),
	)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
