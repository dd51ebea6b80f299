package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmdDefaults(t *testing.T) {
	assert := assert.New(t)

	var captured *Config
	cmd := RootCmd(func(c *Config) error {
		captured = c
		return nil
	})
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.NoError(err)
	assert.NotNil(captured)
	assert.Equal("mainnet", captured.Network)
	assert.Equal(100, captured.UTXOsLimit)
	assert.Equal(100, captured.ElectrumTxsLimit)
	assert.False(captured.AddressSearch)
}

func TestRootCmdFlagOverride(t *testing.T) {
	assert := assert.New(t)

	var captured *Config
	cmd := RootCmd(func(c *Config) error {
		captured = c
		return nil
	})
	cmd.SetArgs([]string{"--network", "testnet", "--address-search", "--utxos-limit", "50"})
	err := cmd.Execute()
	assert.NoError(err)
	assert.Equal("testnet", captured.Network)
	assert.True(captured.AddressSearch)
	assert.Equal(50, captured.UTXOsLimit)
}
