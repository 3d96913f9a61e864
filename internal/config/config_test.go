package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so host environments cannot leak
// into assertions. t.Setenv also restores prior values after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "PG_DSN", "PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE",
		"NATS_URL", "METRICS_ADDR", "TZ",
		"TARGET_HEADWAY_SEC", "BUNCHING_THRESHOLD_SEC", "MAX_HOLDING_SEC",
		"PASSENGER_WEIGHT", "SCHEDULE_WEIGHT", "BUNCHING_PENALTY",
		"BASE_FREQUENCY", "BUS_CAPACITY", "HORIZON_MINUTES",
		"CYCLE_INTERVAL_SEC", "DISPATCH_INTERVAL_SEC", "ROUTE_IDS",
		"SYNTHETIC_DEMAND", "DEMAND_SEED", "DEMAND_BASE_RATE", "LOG_NATS_SUBJECTS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://user@localhost:5432/fleet?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://user@localhost:5432/fleet?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, 300.0, cfg.TargetHeadway)
	assert.Equal(t, 120.0, cfg.BunchingThreshold)
	assert.Equal(t, 180.0, cfg.MaxHoldingTime)
	assert.Equal(t, 1.0, cfg.PassengerWeight)
	assert.Equal(t, 0.5, cfg.ScheduleWeight)
	assert.Equal(t, 2.0, cfg.BunchingPenalty)
	assert.Equal(t, 10, cfg.BaseFrequency)
	assert.Equal(t, 50, cfg.BusCapacity)
	assert.Equal(t, 30, cfg.HorizonMinutes)
	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
	assert.Equal(t, 10*time.Minute, cfg.DispatchInterval)
	assert.Equal(t, 10.0, cfg.DemandBaseRate)
	assert.Empty(t, cfg.RouteIDs)
	assert.False(t, cfg.SyntheticDemand)
	assert.Equal(t, 5, cfg.MinServiceFloor())
}

func TestLoadBuildsDSNFromPGVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGUSER", "fleet")
	t.Setenv("PGDATABASE", "snapshots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://fleet@db.internal:5432/snapshots?sslmode=disable", cfg.DatabaseURL)
}

func TestLoadRequiresDatabase(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesRouteIDs(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGDATABASE", "fleet")
	t.Setenv("ROUTE_IDS", "335E, 500D ,,G4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"335E", "500D", "G4"}, cfg.RouteIDs)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"negative target headway", "TARGET_HEADWAY_SEC", "-5"},
		{"zero bunching threshold", "BUNCHING_THRESHOLD_SEC", "0"},
		{"negative max holding", "MAX_HOLDING_SEC", "-1"},
		{"unparsable weight", "PASSENGER_WEIGHT", "heavy"},
		{"negative penalty", "BUNCHING_PENALTY", "-2"},
		{"zero capacity", "BUS_CAPACITY", "0"},
		{"unparsable cycle interval", "CYCLE_INTERVAL_SEC", "soon"},
		{"bad demand seed", "DEMAND_SEED", "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PGDATABASE", "fleet")
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadSyntheticDemandFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGDATABASE", "fleet")
	t.Setenv("SYNTHETIC_DEMAND", "true")
	t.Setenv("DEMAND_SEED", "1234")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SyntheticDemand)
	assert.EqualValues(t, 1234, cfg.DemandSeed)
}
