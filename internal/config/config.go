// Package config resolves runtime configuration from environment
// variables, grounded on the teacher's services/payments-gateway
// LoadConfigFromEnv pattern (named env consts, getenvDefault/parseXDefault
// helpers, required-field checks) generalized to the option set spec.md
// §6 recognizes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	envHost                   = "WATCHTOWER_HOST"
	envPort                   = "WATCHTOWER_PORT"
	envDBFile                 = "WATCHTOWER_DB_FILE"
	envMaxRecentEvents        = "WATCHTOWER_MAX_RECENT_EVENTS"
	envLogRawEvents           = "WATCHTOWER_LOG_RAW_EVENTS"
	envWatchedContracts       = "WATCHTOWER_WATCHED_CONTRACTS"
	envWatchedPrincipals      = "WATCHTOWER_WATCHED_PRINCIPALS"
	envStacksNetwork          = "WATCHTOWER_STACKS_NETWORK"
	envStacksAPIURL           = "WATCHTOWER_STACKS_API_URL"
	envStacksAPIToken         = "WATCHTOWER_STACKS_API_TOKEN"
	envSignerKey              = "WATCHTOWER_SIGNER_KEY"
	envCounterpartyKey        = "WATCHTOWER_COUNTERPARTY_KEY"
	envCounterpartyPrincipal  = "WATCHTOWER_COUNTERPARTY_PRINCIPAL"
	envCounterpartySignerMode = "WATCHTOWER_COUNTERPARTY_SIGNER_MODE"
	envCounterpartyKMSKeyID   = "WATCHTOWER_COUNTERPARTY_KMS_KEY_ID"
	envCounterpartyKMSRegion  = "WATCHTOWER_COUNTERPARTY_KMS_REGION"
	envCounterpartyKMSURL     = "WATCHTOWER_COUNTERPARTY_KMS_ENDPOINT"
	envStackflowMessageVer    = "WATCHTOWER_STACKFLOW_MESSAGE_VERSION"
	envSignatureVerifierMode  = "WATCHTOWER_SIGNATURE_VERIFIER_MODE"
	envDisputeExecutorMode    = "WATCHTOWER_DISPUTE_EXECUTOR_MODE"
	envDisputeOnlyBeneficial  = "WATCHTOWER_DISPUTE_ONLY_BENEFICIAL"
	envContractPrincipal      = "WATCHTOWER_CONTRACT_PRINCIPAL"
	envContractName           = "WATCHTOWER_CONTRACT_NAME"
	envLogFile                = "WATCHTOWER_LOG_FILE"
	envOtelEndpoint           = "WATCHTOWER_OTEL_ENDPOINT"
	envOtelEnabled            = "WATCHTOWER_OTEL_ENABLED"
	envEnv                    = "WATCHTOWER_ENV"
	envMetricsEnabled         = "WATCHTOWER_METRICS_ENABLED"
	envStaticDir              = "WATCHTOWER_STATIC_DIR"

	maxWatchedPrincipals = 100
)

// Config is the fully resolved runtime configuration (spec.md §6).
type Config struct {
	Host            string
	Port            int
	DBFile          string
	MaxRecentEvents int
	LogRawEvents    bool

	WatchedContracts  []string
	WatchedPrincipals []string

	StacksNetwork  string
	StacksAPIURL   string
	StacksAPIToken string

	ContractPrincipal string
	ContractName      string

	SignerKey string

	CounterpartyKey       string
	CounterpartyPrincipal string
	CounterpartySignerMode string // local-key | kms
	CounterpartyKMSKeyID  string
	CounterpartyKMSRegion string
	CounterpartyKMSURL    string

	StackflowMessageVersion string

	SignatureVerifierMode string // readonly | accept-all | reject-all
	DisputeExecutorMode   string // auto | noop | mock
	DisputeOnlyBeneficial bool

	LogFile      string
	Env          string
	OtelEnabled  bool
	OtelEndpoint string
	MetricsEnabled bool
	StaticDir      string
}

// LoadFromEnv resolves a Config from the process environment, applying the
// defaults spec.md §6 implies and validating the enumerated options.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:            getenvDefault(envHost, "0.0.0.0"),
		Port:            parseIntDefault(envPort, 8080),
		DBFile:          getenvDefault(envDBFile, "watchtower.db"),
		MaxRecentEvents: parseIntDefault(envMaxRecentEvents, 500),
		LogRawEvents:    parseBoolDefault(envLogRawEvents, false),

		WatchedContracts:  splitList(os.Getenv(envWatchedContracts)),
		WatchedPrincipals: splitList(os.Getenv(envWatchedPrincipals)),

		StacksNetwork:  getenvDefault(envStacksNetwork, "mainnet"),
		StacksAPIURL:   os.Getenv(envStacksAPIURL),
		StacksAPIToken: os.Getenv(envStacksAPIToken),

		ContractPrincipal: os.Getenv(envContractPrincipal),
		ContractName:      os.Getenv(envContractName),

		SignerKey: os.Getenv(envSignerKey),

		CounterpartyKey:        os.Getenv(envCounterpartyKey),
		CounterpartyPrincipal:  os.Getenv(envCounterpartyPrincipal),
		CounterpartySignerMode: getenvDefault(envCounterpartySignerMode, "local-key"),
		CounterpartyKMSKeyID:   os.Getenv(envCounterpartyKMSKeyID),
		CounterpartyKMSRegion:  os.Getenv(envCounterpartyKMSRegion),
		CounterpartyKMSURL:     os.Getenv(envCounterpartyKMSURL),

		StackflowMessageVersion: getenvDefault(envStackflowMessageVer, "1"),

		SignatureVerifierMode: getenvDefault(envSignatureVerifierMode, "readonly"),
		DisputeExecutorMode:   getenvDefault(envDisputeExecutorMode, "auto"),
		DisputeOnlyBeneficial: parseBoolDefault(envDisputeOnlyBeneficial, false),

		LogFile:      os.Getenv(envLogFile),
		Env:          getenvDefault(envEnv, "production"),
		OtelEnabled:  parseBoolDefault(envOtelEnabled, false),
		OtelEndpoint: os.Getenv(envOtelEndpoint),

		MetricsEnabled: parseBoolDefault(envMetricsEnabled, true),
		StaticDir:      os.Getenv(envStaticDir),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.WatchedPrincipals) > maxWatchedPrincipals {
		return fmt.Errorf("%s: at most %d principals allowed, got %d", envWatchedPrincipals, maxWatchedPrincipals, len(cfg.WatchedPrincipals))
	}
	if dup := firstDuplicate(cfg.WatchedPrincipals); dup != "" {
		return fmt.Errorf("%s: duplicate principal %q", envWatchedPrincipals, dup)
	}
	switch cfg.StacksNetwork {
	case "mainnet", "testnet", "devnet", "mocknet":
	default:
		return fmt.Errorf("%s: invalid network %q", envStacksNetwork, cfg.StacksNetwork)
	}
	switch cfg.CounterpartySignerMode {
	case "local-key", "kms":
	default:
		return fmt.Errorf("%s: invalid mode %q", envCounterpartySignerMode, cfg.CounterpartySignerMode)
	}
	switch cfg.SignatureVerifierMode {
	case "readonly", "accept-all", "reject-all":
	default:
		return fmt.Errorf("%s: invalid mode %q", envSignatureVerifierMode, cfg.SignatureVerifierMode)
	}
	switch cfg.DisputeExecutorMode {
	case "auto", "noop", "mock":
	default:
		return fmt.Errorf("%s: invalid mode %q", envDisputeExecutorMode, cfg.DisputeExecutorMode)
	}
	if cfg.SignatureVerifierMode == "readonly" && cfg.StacksAPIURL == "" {
		return fmt.Errorf("%s is required when %s=readonly", envStacksAPIURL, envSignatureVerifierMode)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseBoolDefault(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstDuplicate(items []string) string {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			return item
		}
		seen[item] = struct{}{}
	}
	return ""
}
