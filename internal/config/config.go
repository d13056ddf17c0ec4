package config

import (
	"os"
	"time"
)

// Config is the process-wide configuration assembled from environment
// variables at startup (cmd/oracled/main.go).
type Config struct {
	NodeID      string
	LogLevel    string
	LogFormat   string
	AdminAddr   string
	MetricsPath string

	Scheduler  SchedulerConfig
	Chain      ChainConfig
	TxManager  TxManagerConfig
	Redis      RedisConfig
}

// SchedulerConfig configures the distributed scheduler (spec §4.5).
type SchedulerConfig struct {
	MaxConcurrentExecutions int
	ExecutionRetention      time.Duration
	HeartbeatInterval       time.Duration
	HeartbeatTTL            time.Duration
	GraceWindow             time.Duration
}

// ChainConfig configures the EVM RPC client (spec §4.6).
type ChainConfig struct {
	RPCEndpoints []string
	ChainID      int64
	IsPoA        bool
}

// TxManagerConfig configures nonce/gas behavior (spec §4.6).
type TxManagerConfig struct {
	MaxGasPriceWei         int64
	NonceCacheTTL          time.Duration
	StuckTxTimeout         time.Duration
	StuckBlockThreshold    uint64
	GasPriceUpdateInterval time.Duration
	MonitorInterval        time.Duration
	ReplacementGasBumpX    float64
	PrivateKeyHex          string
}

// RedisConfig configures the distributed ExecutionStore backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// Load assembles Config from the process environment, applying the
// defaults spec.md names where it is explicit (60s heartbeat, 5 min
// heartbeat TTL, 300s grace window, 300s nonce cache, 60s gas refresh) and
// otherwise the teacher's conservative service-startup defaults.
func Load() Config {
	return Config{
		NodeID:      GetEnv("NODE_ID", defaultNodeID()),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		LogFormat:   GetEnv("LOG_FORMAT", "json"),
		AdminAddr:   GetEnv("ADMIN_ADDR", ":9090"),
		MetricsPath: GetEnv("METRICS_PATH", "/metrics"),

		Scheduler: SchedulerConfig{
			MaxConcurrentExecutions: GetEnvInt("SCHEDULER_MAX_CONCURRENT", 50),
			ExecutionRetention:      GetEnvDuration("SCHEDULER_EXECUTION_RETENTION", 7*24*time.Hour),
			HeartbeatInterval:       GetEnvDuration("SCHEDULER_HEARTBEAT_INTERVAL", 60*time.Second),
			HeartbeatTTL:            GetEnvDuration("SCHEDULER_HEARTBEAT_TTL", 5*time.Minute),
			GraceWindow:             GetEnvDuration("SCHEDULER_GRACE_WINDOW", 300*time.Second),
		},

		Chain: ChainConfig{
			RPCEndpoints: SplitAndTrimCSV(GetEnv("CHAIN_RPC_ENDPOINTS", "")),
			ChainID:      int64(GetEnvInt("CHAIN_ID", 1)),
			IsPoA:        GetEnvBool("CHAIN_IS_POA", false),
		},

		TxManager: TxManagerConfig{
			MaxGasPriceWei:         int64(GetEnvInt("TXMANAGER_MAX_GAS_PRICE_WEI", 500_000_000_000)),
			NonceCacheTTL:          GetEnvDuration("TXMANAGER_NONCE_CACHE_TTL", 300*time.Second),
			StuckTxTimeout:         GetEnvDuration("TXMANAGER_STUCK_TX_TIMEOUT", 2*time.Minute),
			StuckBlockThreshold:    uint64(GetEnvInt("TXMANAGER_STUCK_BLOCK_THRESHOLD", 10)),
			GasPriceUpdateInterval: GetEnvDuration("TXMANAGER_GAS_PRICE_UPDATE_INTERVAL", 60*time.Second),
			MonitorInterval:        GetEnvDuration("TXMANAGER_MONITOR_INTERVAL", 60*time.Second),
			ReplacementGasBumpX:    GetEnvFloat("TXMANAGER_REPLACEMENT_GAS_BUMP", 1.2),
			PrivateKeyHex:          GetEnv("TXMANAGER_PRIVATE_KEY", ""),
		},

		Redis: RedisConfig{
			Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
			Enabled:  GetEnvBool("REDIS_ENABLED", false),
		},
	}
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "node-local"
	}
	return host
}
