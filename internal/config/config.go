package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the runtime configuration shared by the exchange and
// trading binaries. Everything has a compiled-in default; env vars
// override. Hot-path sizing limits live in internal/common and are
// not configurable.
type Config struct {
	// Service name
	ServiceName string

	// Log level: debug, info, warn, error
	LogLevel string

	// TCP endpoint of the exchange order server
	OrderGatewayAddr string

	// UDP multicast group for the incremental market data stream
	IncrementalGroup string

	// UDP multicast group for the snapshot stream
	SnapshotGroup string

	// Seconds between snapshot cycles
	SnapshotIntervalSecs int

	// HTTP port for /healthz
	HTTPPort int

	// gRPC port for the health service
	GRPCPort int

	// Kafka brokers for the drop-copy stream (comma-separated);
	// empty disables drop-copy
	DropCopyBrokers string

	// Kafka topic for the drop-copy stream
	DropCopyTopic string

	// SQLite path for the trade ledger
	LedgerDBPath string
}

// Load reads configuration from environment variables with defaults.
func Load(serviceName string) *Config {
	defaultHTTPPort := 8080
	defaultGRPCPort := 50051
	if serviceName == "trading" {
		defaultHTTPPort = 8081
		defaultGRPCPort = 50052
	}

	return &Config{
		ServiceName:          serviceName,
		LogLevel:             getEnvAsString("LOG_LEVEL", "info"),
		OrderGatewayAddr:     getEnvAsString("ORDER_GW_ADDR", "127.0.0.1:12345"),
		IncrementalGroup:     getEnvAsString("MD_INCREMENTAL_GROUP", "233.252.14.3:20001"),
		SnapshotGroup:        getEnvAsString("MD_SNAPSHOT_GROUP", "233.252.14.1:20000"),
		SnapshotIntervalSecs: getEnvAsInt("SNAPSHOT_INTERVAL_SECS", 60),
		HTTPPort:             getEnvAsInt("HTTP_PORT", defaultHTTPPort),
		GRPCPort:             getEnvAsInt("GRPC_PORT", defaultGRPCPort),
		DropCopyBrokers:      getEnvAsString("DROPCOPY_BROKERS", ""),
		DropCopyTopic:        getEnvAsString("DROPCOPY_TOPIC", "exchange.dropcopy"),
		LedgerDBPath:         getEnvAsString("LEDGER_DB_PATH", "data/tradeledger.db"),
	}
}

// HTTPAddr returns the HTTP server address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GRPCAddr returns the gRPC server address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
