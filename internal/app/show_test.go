package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
)

func TestShowRowMatchesHeader(t *testing.T) {
	rec := storage.AlertRecord{
		Rule:    "ethereum/invalid_state_commit",
		Chain:   "ethereum",
		Kind:    "invalid_state_commit",
		Level:   "error",
		Action:  "pause_all",
		FiredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary: "invalid state commit detected",
	}

	headerCols := strings.Split(showHeader, "\t")
	rowCols := strings.Split(showRow(rec), "\t")
	require.Len(t, rowCols, len(headerCols))

	// Each column holds the field its header names.
	byHeader := map[string]string{}
	for i, name := range headerCols {
		byHeader[name] = rowCols[i]
	}
	require.Equal(t, "ethereum", byHeader["Chain"])
	require.Equal(t, "invalid_state_commit", byHeader["Kind"])
	require.Equal(t, "error", byHeader["Level"])
	require.Equal(t, "pause_all", byHeader["Action"])
	require.Equal(t, "2024-03-01T12:00:00Z", byHeader["Fired (UTC)"])
}

func TestShowRowStripsNewlines(t *testing.T) {
	rec := storage.AlertRecord{Summary: "line one\nline two"}
	require.NotContains(t, showRow(rec), "\n")
}
