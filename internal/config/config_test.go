package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	os.Clearenv()
	cfg := Load("/nonexistent/.env")
	assert.Equal(t, []string{"BTC-USDT-SWAP"}, cfg.Symbols)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 0.05, cfg.MaxPositionSize)
}

func TestLoad_SplitsSymbolCSV(t *testing.T) {
	os.Clearenv()
	os.Setenv("SYMBOLS", "BTC-USDT-SWAP, ETH-USDT-SWAP ,SOL-USDT-SWAP")
	defer os.Unsetenv("SYMBOLS")
	cfg := Load("/nonexistent/.env")
	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP"}, cfg.Symbols)
}

func TestValidate_RequiresCredentialsWhenNotDryRun(t *testing.T) {
	cfg := Config{Symbols: []string{"BTC-USDT-SWAP"}, MaxPositionSize: 0.05, DryRun: false}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_NoSymbolsIsError(t *testing.T) {
	cfg := Config{DryRun: true, MaxPositionSize: 0.05}
	require.Error(t, cfg.Validate())
}

func TestValidate_OKWithDryRunAndSymbols(t *testing.T) {
	cfg := Config{Symbols: []string{"BTC-USDT-SWAP"}, DryRun: true, MaxPositionSize: 0.05}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MaxPositionSizeOutOfRange(t *testing.T) {
	cfg := Config{Symbols: []string{"BTC-USDT-SWAP"}, DryRun: true, MaxPositionSize: 1.5}
	require.Error(t, cfg.Validate())
}
