// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the settlement server.
type Config struct {
	Port int

	// DBDriver is "sqlite" or "postgres". DatabaseURL is a file path for
	// sqlite and a DSN for postgres.
	DBDriver    string
	DatabaseURL string

	// RedisURL enables the cross-process lease when set.
	RedisURL    string
	LeasePrefix string
	LeaseTTL    time.Duration

	// NATSURL enables alert publishing when set.
	NATSURL       string
	AlertSubjects string

	Concurrency int
	Timezone    string

	SchedulerEnabled bool
	DailyHour        int
	MonthlyDay       int
	AnomalyDelay     time.Duration
	FuelDelay        time.Duration
	MonthlyDelay     time.Duration

	AlertCooldownDays int
	ShutdownTimeout   time.Duration
}

// Load reads a .env file if one exists, then the environment.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] Could not read .env: %v", err)
	}

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBDriver:          getEnv("DB_DRIVER", DriverSQLite),
		DatabaseURL:       getEnv("DATABASE_URL", "settlement.db"),
		RedisURL:          getEnv("REDIS_URL", ""),
		LeasePrefix:       getEnv("LEASE_PREFIX", "settlement:lease:"),
		LeaseTTL:          getEnvAsDuration("LEASE_TTL", 30*time.Minute),
		NATSURL:           getEnv("NATS_URL", ""),
		AlertSubjects:     getEnv("ALERT_SUBJECT_PREFIX", "settlement.alert"),
		Concurrency:       getEnvAsInt("SETTLEMENT_CONCURRENCY", 4),
		Timezone:          getEnv("TZ_NAME", "UTC"),
		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
		DailyHour:         getEnvAsInt("SCHEDULE_DAILY_HOUR", 0),
		MonthlyDay:        getEnvAsInt("SCHEDULE_MONTHLY_DAY", 1),
		AnomalyDelay:      getEnvAsDuration("SCHEDULE_ANOMALY_DELAY", time.Hour),
		FuelDelay:         getEnvAsDuration("SCHEDULE_FUEL_DELAY", 2*time.Hour),
		MonthlyDelay:      getEnvAsDuration("SCHEDULE_MONTHLY_DELAY", 3*time.Hour),
		AlertCooldownDays: getEnvAsInt("ALERT_COOLDOWN_DAYS", 0),
		ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[Config] Unknown timezone %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
