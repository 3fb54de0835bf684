package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongroomhq/strongroom/pkg/types"
)

// TestNewRegistry verifies the built-in registry loads and resolves aliases
func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, EcosystemEVM, eth.Ecosystem)
	assert.Equal(t, int64(32), eth.ReorgThreshold)
	assert.Equal(t, "blockbook", eth.Provider)

	_, err = r.Get("dogecoin")
	assert.ErrorIs(t, err, types.ErrUnsupportedChain)
}

// TestReorgThreshold tests per-chain thresholds and the unknown-chain default
func TestReorgThreshold(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		name     string
		alias    string
		expected int64
	}{
		{name: "bitcoin", alias: "bitcoin", expected: 6},
		{name: "ethereum", alias: "ethereum", expected: 32},
		{name: "arbitrum l2", alias: "arbitrum", expected: 32},
		{name: "polygon", alias: "polygon", expected: 128},
		{name: "solana", alias: "solana", expected: 1},
		{name: "xrp", alias: "xrp", expected: 1},
		{name: "unknown falls back to default", alias: "dogecoin", expected: DefaultReorgThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.ReorgThreshold(tt.alias))
		})
	}
}

// TestSafeFromBlock tests the reorg-safe resume point computation
func TestSafeFromBlock(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		name       string
		checkpoint int64
		alias      string
		expected   int64
	}{
		{name: "ethereum well above threshold", checkpoint: 1000, alias: "ethereum", expected: 968},
		{name: "bitcoin well above threshold", checkpoint: 1000, alias: "bitcoin", expected: 994},
		{name: "clamped at zero", checkpoint: 10, alias: "polygon", expected: 0},
		{name: "checkpoint zero", checkpoint: 0, alias: "ethereum", expected: 0},
		{name: "solana single block window", checkpoint: 500, alias: "solana", expected: 499},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.SafeFromBlock(tt.checkpoint, tt.alias))
		})
	}
}

// TestNormalizeAddress tests per-ecosystem normalization rules
func TestNormalizeAddress(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		name     string
		alias    string
		in       string
		expected string
	}{
		{
			name:     "evm address lowercased",
			alias:    "ethereum",
			in:       "0xAbC1230000000000000000000000000000000DeF",
			expected: "0xabc1230000000000000000000000000000000def",
		},
		{
			name:     "evm trims whitespace",
			alias:    "polygon",
			in:       " 0xABCDEF0000000000000000000000000000000001 ",
			expected: "0xabcdef0000000000000000000000000000000001",
		},
		{
			name:     "solana kept raw",
			alias:    "solana",
			in:       "7sPsVf4en5PvMDXwdcBAHak9qgqXerqfQtwGs2AnSQeK",
			expected: "7sPsVf4en5PvMDXwdcBAHak9qgqXerqfQtwGs2AnSQeK",
		},
		{
			name:     "bitcoin kept raw",
			alias:    "bitcoin",
			in:       "bc1qXyZ",
			expected: "bc1qXyZ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.NormalizeAddress(tt.alias, tt.in))
		})
	}
}

// TestWithThresholdOverrides verifies config overrides replace thresholds
// without mutating the original registry
func TestWithThresholdOverrides(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	over := r.WithThresholdOverrides(map[string]int64{
		"ethereum": 64,
		"unknown":  99,
	})

	assert.Equal(t, int64(64), over.ReorgThreshold("ethereum"))
	assert.Equal(t, int64(32), r.ReorgThreshold("ethereum"), "original untouched")
	assert.Equal(t, int64(6), over.ReorgThreshold("bitcoin"), "others untouched")
	assert.False(t, over.Supported("unknown"))
}
