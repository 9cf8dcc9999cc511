package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
)

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "scan", "positions", "migrate"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestScanFlagDefaults(t *testing.T) {
	mode, err := scanCmd.Flags().GetString("mode")
	require.NoError(t, err)
	assert.Equal(t, opportunity.ModeRecent, mode)

	window, err := scanCmd.Flags().GetInt("window")
	require.NoError(t, err)
	assert.Zero(t, window, "zero falls back to SCANNER_LOOKBACK_DAYS")
}

func TestPositionsRejectsExtraArgs(t *testing.T) {
	err := positionsCmd.Args(positionsCmd, []string{"a", "b"})
	assert.Error(t, err)
	assert.NoError(t, positionsCmd.Args(positionsCmd, []string{"holder-1"}))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"created": 2}))
	assert.Equal(t, "{\n  \"created\": 2\n}\n", buf.String())
}
