package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Pipeline PipelineConfig
	Batch    BatchConfig
	Tool     ToolConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// PipelineConfig holds per-observation pipeline configuration
type PipelineConfig struct {
	DataRoot   string // <DataRoot>/<obsid>/ holds the processed observation
	OutputRoot string // <OutputRoot>/<obsid>/ receives light curves
	StagingDir string // parent for per-unit staging dirs; empty -> OutputRoot/<obsid>
	Catalog    string
}

// BatchConfig holds orchestrator configuration
type BatchConfig struct {
	Workers     int
	MaxObsIDs   int
	UnitTimeout time.Duration // 0 = none
}

// ToolConfig holds analysis tool configuration
type ToolConfig struct {
	BinDir           string
	SelectionProfile string
	TimeBin          float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ""),
		},
		Pipeline: PipelineConfig{
			DataRoot:   getEnv("LC_DATA_ROOT", "./data/proc"),
			OutputRoot: getEnv("LC_OUTPUT_ROOT", "./data/lc"),
			StagingDir: getEnv("LC_STAGING_DIR", ""),
			Catalog:    getEnv("LC_CATALOG", "./data/catalogs/qso_coords.csv"),
		},
		Batch: BatchConfig{
			Workers:     getEnvAsInt("LC_WORKERS", 4),
			MaxObsIDs:   getEnvAsInt("LC_MAX_OBSIDS", 0),
			UnitTimeout: getEnvAsDuration("LC_UNIT_TIMEOUT", 0),
		},
		Tool: ToolConfig{
			BinDir:           getEnv("LC_SAS_BIN_DIR", ""),
			SelectionProfile: getEnv("LC_SELECTION_PROFILE", ""),
			TimeBin:          getEnvAsFloat64("LC_BIN_SIZE", 1000),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.DataRoot == "" {
		return NewAppError("CONFIG_ERROR", "LC_DATA_ROOT is required", ErrInvalidInput)
	}
	if c.Pipeline.OutputRoot == "" {
		return NewAppError("CONFIG_ERROR", "LC_OUTPUT_ROOT is required", ErrInvalidInput)
	}
	if c.Batch.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "LC_WORKERS must be at least 1", ErrInvalidInput)
	}
	if c.Batch.MaxObsIDs < 0 {
		return NewAppError("CONFIG_ERROR", "LC_MAX_OBSIDS must not be negative", ErrInvalidInput)
	}
	if c.Tool.TimeBin <= 0 {
		return NewAppError("CONFIG_ERROR", "LC_BIN_SIZE must be positive", ErrInvalidInput)
	}
	return nil
}
