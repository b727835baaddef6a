package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
)

// exportDefaultWindow bounds the lookback when --from is not given.
const exportDefaultWindow = 7 * 24 * time.Hour

// Export writes alert history as CSV and/or an alert-frequency PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-exportDefaultWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}
	if len(alerts) > opts.MaxPoints {
		alerts = alerts[len(alerts)-opts.MaxPoints:]
	}
	a.Logger.Info().Int("exported", len(alerts)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, alerts); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, alerts, from, to); err != nil {
			return err
		}
	}

	return nil
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fired_at", "chain", "rule", "kind", "level", "action", "summary", "detail"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		record := []string{
			alert.FiredAt.UTC().Format(time.RFC3339),
			alert.Chain,
			alert.Rule,
			alert.Kind,
			alert.Level,
			alert.Action,
			alert.Summary,
			alert.Detail,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeAlertsPNG renders alert counts per hour, one series per severity.
func writeAlertsPNG(path string, alerts []storage.AlertRecord, from, to time.Time) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	buckets := make(map[string]map[time.Time]float64)
	for _, alert := range alerts {
		hour := alert.FiredAt.UTC().Truncate(time.Hour)
		if buckets[alert.Level] == nil {
			buckets[alert.Level] = make(map[time.Time]float64)
		}
		buckets[alert.Level][hour]++
	}

	hours := make([]time.Time, 0, int(to.Sub(from)/time.Hour)+1)
	for h := from.Truncate(time.Hour); h.Before(to); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}

	levels := make([]string, 0, len(buckets))
	for level := range buckets {
		levels = append(levels, level)
	}
	sort.Strings(levels)

	series := make([]chart.Series, 0, len(levels))
	for _, level := range levels {
		counts := make([]float64, len(hours))
		for i, hour := range hours {
			counts[i] = buckets[level][hour]
		}
		series = append(series, chart.TimeSeries{
			Name:    level,
			XValues: hours,
			YValues: counts,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Alerts per hour",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
