// Copyright 2025 Shadow Atlas Project

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Shadow Atlas service. It is a
// plain struct populated once at startup by Load and passed explicitly
// to every component that needs it — no package-level globals.
type Config struct {
	// Server configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Local storage
	DBPath        string
	SnapshotsDir  string

	// Resolver cache
	CacheSize       int
	CacheTTLSeconds int

	// Rate limiting applied to the public lookup API
	RateLimitPerMinute int

	// Background sync cadence
	SyncIntervalSeconds int

	// IPFS pinning gateway for published snapshots
	IPFSGateway string

	// Postgres/PostGIS boundary data source (optional; empty disables it)
	PostgresURL string

	// Firestore audit/provenance mirror (optional; empty disables it)
	FirestoreProjectID       string
	FirestoreCredentialsFile string

	// Ethereum on-chain gate
	EthRPCURL                 string
	EthChainID                int64
	GateContractAddress       string
	EthPrivateKey             string
	GateRootGraceWindowDays   int
	GateEventPollIntervalSecs int

	// CometBFT quorum attestation gate
	CometBFTRPCURL  string
	AttestationPeers []string
	AttestationQuorum int

	// Discovery engine rate limiting
	DiscoveryRequestsPerSecond int
	DiscoveryMaxDepth          int

	// Extraction / orchestrator concurrency
	OrchestratorConcurrency int
	OrchestratorMaxRetries  int
	OrchestratorRetryDelayMS int

	LogLevel string
}

// Load reads Config from the environment, applying the defaults named in
// the Shadow Atlas ambient-stack configuration spec.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),
		HealthAddr:  getEnv("HEALTH_ADDR", "0.0.0.0:8081"),

		DBPath:       getEnv("DB_PATH", "./data/atlas.db"),
		SnapshotsDir: getEnv("SNAPSHOTS_DIR", "./data/snapshots"),

		CacheSize:       getEnvInt("CACHE_SIZE", 10000),
		CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 3600),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 600),

		SyncIntervalSeconds: getEnvInt("SYNC_INTERVAL_SECONDS", 86400),

		IPFSGateway: getEnv("IPFS_GATEWAY", "https://ipfs.io"),

		PostgresURL: getEnv("POSTGRES_URL", ""),

		FirestoreProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		EthRPCURL:                 getEnv("ETH_RPC_URL", ""),
		EthChainID:                getEnvInt64("ETH_CHAIN_ID", 11155111),
		GateContractAddress:       getEnv("GATE_CONTRACT_ADDRESS", ""),
		EthPrivateKey:             getEnv("ETH_PRIVATE_KEY", ""),
		GateRootGraceWindowDays:   getEnvInt("GATE_ROOT_GRACE_WINDOW_DAYS", 7),
		GateEventPollIntervalSecs: getEnvInt("GATE_EVENT_POLL_INTERVAL_SECONDS", 15),

		CometBFTRPCURL:    getEnv("COMETBFT_RPC_URL", ""),
		AttestationPeers:  parseCommaList(getEnv("ATTESTATION_PEERS", "")),
		AttestationQuorum: getEnvInt("ATTESTATION_QUORUM", 3),

		DiscoveryRequestsPerSecond: getEnvInt("DISCOVERY_REQUESTS_PER_SECOND", 10),
		DiscoveryMaxDepth:          getEnvInt("DISCOVERY_MAX_DEPTH", 5),

		OrchestratorConcurrency:  getEnvInt("ORCHESTRATOR_CONCURRENCY", 5),
		OrchestratorMaxRetries:   getEnvInt("ORCHESTRATOR_MAX_RETRIES", 3),
		OrchestratorRetryDelayMS: getEnvInt("ORCHESTRATOR_RETRY_DELAY_MS", 2000),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate enforces the preconditions the on-chain gate and attestation
// components require before the server accepts traffic. It is the
// production entrypoint's responsibility to call this; tests and offline
// tooling that don't need the chain or attestation layers can skip it.
func (c *Config) Validate() error {
	var errs []string

	if c.GateContractAddress != "" && c.EthRPCURL == "" {
		errs = append(errs, "ETH_RPC_URL is required when GATE_CONTRACT_ADDRESS is set")
	}
	if c.EthRPCURL != "" && c.EthPrivateKey == "" {
		errs = append(errs, "ETH_PRIVATE_KEY is required when ETH_RPC_URL is set")
	}
	if c.CometBFTRPCURL != "" && len(c.AttestationPeers) < c.AttestationQuorum {
		errs = append(errs, fmt.Sprintf("ATTESTATION_PEERS has %d entries, fewer than ATTESTATION_QUORUM=%d", len(c.AttestationPeers), c.AttestationQuorum))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseCommaList splits a comma-separated env var, trimming whitespace
// and dropping empty entries.
func parseCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
