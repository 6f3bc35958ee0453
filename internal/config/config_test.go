package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackflow/watchtower/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WATCHTOWER_HOST", "WATCHTOWER_PORT", "WATCHTOWER_DB_FILE",
		"WATCHTOWER_WATCHED_PRINCIPALS", "WATCHTOWER_STACKS_NETWORK",
		"WATCHTOWER_STACKS_API_URL", "WATCHTOWER_COUNTERPARTY_SIGNER_MODE",
		"WATCHTOWER_SIGNATURE_VERIFIER_MODE", "WATCHTOWER_DISPUTE_EXECUTOR_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHTOWER_STACKS_API_URL", "https://stacks.example")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "mainnet", cfg.StacksNetwork)
	require.Equal(t, "local-key", cfg.CounterpartySignerMode)
	require.Equal(t, "readonly", cfg.SignatureVerifierMode)
	require.True(t, cfg.MetricsEnabled)
}

func TestLoadFromEnvRejectsDuplicatePrincipals(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHTOWER_STACKS_API_URL", "https://stacks.example")
	t.Setenv("WATCHTOWER_WATCHED_PRINCIPALS", "SP1AAA,SP2BBB,SP1AAA")

	_, err := config.LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvRejectsInvalidNetwork(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHTOWER_STACKS_API_URL", "https://stacks.example")
	t.Setenv("WATCHTOWER_STACKS_NETWORK", "bogusnet")

	_, err := config.LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvRequiresStacksAPIURLForReadonlyVerifier(t *testing.T) {
	clearEnv(t)
	_, err := config.LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvAllowsAcceptAllWithoutStacksAPIURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHTOWER_SIGNATURE_VERIFIER_MODE", "accept-all")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, "accept-all", cfg.SignatureVerifierMode)
}
