package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface, fixed at load. Control weights
// and thresholds are not reloadable mid-run.
type Config struct {
	DatabaseURL string
	NATSURL     string
	MetricsAddr string
	Location    *time.Location

	// Control surface (seconds unless noted)
	TargetHeadway     float64
	BunchingThreshold float64
	MaxHoldingTime    float64
	PassengerWeight   float64
	ScheduleWeight    float64
	BunchingPenalty   float64
	BaseFrequency     int // buses per hour
	BusCapacity       int // passengers per bus
	HorizonMinutes    int

	CycleInterval    time.Duration
	DispatchInterval time.Duration

	RouteIDs []string // empty means every route in the snapshot

	SyntheticDemand bool
	DemandSeed      int64
	DemandBaseRate  float64 // mean waiting passengers per stop at the off-peak baseline

	LogNATSSubjects bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (snapshot store DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	var err error
	if cfg.TargetHeadway, err = floatEnv("TARGET_HEADWAY_SEC", 300); err != nil {
		return nil, err
	}
	if cfg.BunchingThreshold, err = floatEnv("BUNCHING_THRESHOLD_SEC", 120); err != nil {
		return nil, err
	}
	if cfg.MaxHoldingTime, err = floatEnv("MAX_HOLDING_SEC", 180); err != nil {
		return nil, err
	}
	if cfg.PassengerWeight, err = floatEnv("PASSENGER_WEIGHT", 1.0); err != nil {
		return nil, err
	}
	if cfg.ScheduleWeight, err = floatEnv("SCHEDULE_WEIGHT", 0.5); err != nil {
		return nil, err
	}
	if cfg.BunchingPenalty, err = floatEnv("BUNCHING_PENALTY", 2.0); err != nil {
		return nil, err
	}
	if cfg.BaseFrequency, err = intEnv("BASE_FREQUENCY", 10); err != nil {
		return nil, err
	}
	if cfg.BusCapacity, err = intEnv("BUS_CAPACITY", 50); err != nil {
		return nil, err
	}
	if cfg.HorizonMinutes, err = intEnv("HORIZON_MINUTES", 30); err != nil {
		return nil, err
	}

	cycleSec, err := intEnv("CYCLE_INTERVAL_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.CycleInterval = time.Duration(cycleSec) * time.Second

	dispatchSec, err := intEnv("DISPATCH_INTERVAL_SEC", 600)
	if err != nil {
		return nil, err
	}
	cfg.DispatchInterval = time.Duration(dispatchSec) * time.Second

	if v := os.Getenv("ROUTE_IDS"); v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.RouteIDs = append(cfg.RouteIDs, r)
			}
		}
	}

	cfg.SyntheticDemand = boolEnv("SYNTHETIC_DEMAND")
	if v := os.Getenv("DEMAND_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEMAND_SEED: %q", v)
		}
		cfg.DemandSeed = seed
	}
	if cfg.DemandBaseRate, err = floatEnv("DEMAND_BASE_RATE", 10.0); err != nil {
		return nil, err
	}

	cfg.LogNATSSubjects = boolEnv("LOG_NATS_SUBJECTS")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.TargetHeadway <= 0:
		return errors.New("TARGET_HEADWAY_SEC must be positive")
	case c.BunchingThreshold <= 0:
		return errors.New("BUNCHING_THRESHOLD_SEC must be positive")
	case c.MaxHoldingTime < 0:
		return errors.New("MAX_HOLDING_SEC must be non-negative")
	case c.PassengerWeight < 0 || c.ScheduleWeight < 0 || c.BunchingPenalty < 0:
		return errors.New("objective weights must be non-negative")
	case c.BaseFrequency <= 0:
		return errors.New("BASE_FREQUENCY must be positive")
	case c.BusCapacity <= 0:
		return errors.New("BUS_CAPACITY must be positive")
	case c.HorizonMinutes <= 0:
		return errors.New("HORIZON_MINUTES must be positive")
	case c.CycleInterval <= 0:
		return errors.New("CYCLE_INTERVAL_SEC must be positive")
	case c.DispatchInterval <= 0:
		return errors.New("DISPATCH_INTERVAL_SEC must be positive")
	case c.DemandBaseRate < 0:
		return errors.New("DEMAND_BASE_RATE must be non-negative")
	}
	return nil
}

// MinServiceFloor is the minimum buses kept in service even when modeled
// demand is near zero.
func (c *Config) MinServiceFloor() int {
	return c.BaseFrequency / 2
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
