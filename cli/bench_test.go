package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	at, err := parseSince("")
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	at, err = parseSince("15m")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-15*time.Minute), at, 2*time.Second)

	at, err = parseSince("2026-08-25T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, at.Year())

	_, err = parseSince("yesterday")
	require.Error(t, err)
}

func TestBenchStatusRejectsBadAddr(t *testing.T) {
	rootCmd.SetArgs([]string{"bench", "status", "--addr", "ftp://bench:21", "--plain"})
	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestBenchHistoryRejectsBadSince(t *testing.T) {
	rootCmd.SetArgs([]string{"bench", "history", "--since", "yesterday", "--plain"})
	err := rootCmd.Execute()
	require.Error(t, err)
}
