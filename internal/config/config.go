// Package config resolves the gateway's tunable constants. The original
// gateway compiled these in (TIMEOUT, RUN_AVG_LENGTH, SET_MIN_TEMP,
// SET_MAX_TEMP, SQL_ATTEMPT, CLEAR_DATABASE, LOG_LENGTH); this rewrite
// reads them from the environment at startup with the same defaults (or
// lack thereof) the source declares, following the environment-first
// configuration convention used throughout the corpus this gateway is
// built from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultRunAvgLength = 5
	defaultSQLAttempts  = 3
	defaultClearDB      = false
	defaultLogLength    = 500
	defaultMapFile      = "room_sensor.map"
	defaultDBFile       = "Sensor.db"
	defaultTableName    = "SensorData"
	defaultLogFile      = "gateway.log"
	defaultFIFOName     = "logFifo"
)

// Config holds every tunable the gateway needs at startup. Fields with no
// compiled-in default in the source (Timeout, MinTemp, MaxTemp) are
// required; Load fails fast if they are unset.
type Config struct {
	Port int

	Timeout time.Duration

	RunAvgLength int
	MinTemp      float64
	MaxTemp      float64

	SQLAttempts   int
	ClearDatabase bool

	LogLength int

	MapFile   string
	DBFile    string
	TableName string
	LogFile   string
	FIFOName  string
}

// Load resolves a Config from a single CLI positional argument (the port)
// plus environment overrides. args is the program's argv[1:], matching
// the source's "single positional PORT argument" CLI contract.
func Load(args []string) (Config, error) {
	if len(args) != 1 {
		return Config{}, errUsage
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("config: PORT must be an integer in 1-65535, got %q", args[0])
	}

	cfg := Config{
		Port:          port,
		RunAvgLength:  envInt("RUN_AVG_LENGTH", defaultRunAvgLength),
		SQLAttempts:   envInt("SQL_ATTEMPT", defaultSQLAttempts),
		ClearDatabase: envBool("CLEAR_DATABASE", defaultClearDB),
		LogLength:     envInt("LOG_LENGTH", defaultLogLength),
		MapFile:       envString("MAP_NAME", defaultMapFile),
		DBFile:        envString("DB_NAME", defaultDBFile),
		TableName:     envString("TABLE_NAME", defaultTableName),
		LogFile:       envString("LOG_NAME", defaultLogFile),
		FIFOName:      envString("FIFO_NAME", defaultFIFOName),
	}

	timeoutSeconds, ok := os.LookupEnv("TIMEOUT")
	if !ok {
		return Config{}, fmt.Errorf("config: TIMEOUT not set")
	}
	ts, err := strconv.Atoi(timeoutSeconds)
	if err != nil || ts <= 0 {
		return Config{}, fmt.Errorf("config: TIMEOUT must be a positive integer of seconds, got %q", timeoutSeconds)
	}
	cfg.Timeout = time.Duration(ts) * time.Second

	minTemp, ok := os.LookupEnv("SET_MIN_TEMP")
	if !ok {
		return Config{}, fmt.Errorf("config: SET_MIN_TEMP not set")
	}
	cfg.MinTemp, err = strconv.ParseFloat(minTemp, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: SET_MIN_TEMP must be a float, got %q", minTemp)
	}

	maxTemp, ok := os.LookupEnv("SET_MAX_TEMP")
	if !ok {
		return Config{}, fmt.Errorf("config: SET_MAX_TEMP not set")
	}
	cfg.MaxTemp, err = strconv.ParseFloat(maxTemp, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: SET_MAX_TEMP must be a float, got %q", maxTemp)
	}

	return cfg, nil
}

var errUsage = fmt.Errorf("usage: gateway PORT")

// IsUsageError reports whether err is the "wrong arity" usage error, which
// the caller prints as a one-line usage message and exits 0 for, per the
// CLI contract.
func IsUsageError(err error) bool {
	return err == errUsage
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
