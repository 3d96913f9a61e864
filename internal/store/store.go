// Package store reads the snapshots the ingestion collaborators land in
// Postgres: normalized vehicle positions, passenger demand, and the fleet
// roster. The control core only ever sees the latest complete snapshot of
// each table, never a partially written one.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fleet-control/internal/fleet"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchBusSnapshot returns every vehicle row of the most recent complete
// position snapshot, ordered by route and stop sequence. Rows from older
// snapshots are never mixed in.
func FetchBusSnapshot(ctx context.Context, db *sql.DB) ([]fleet.BusState, error) {
	q := `
SELECT vehicle_id, route_id, stop_id, stop_sequence, position_time, schedule_delay
FROM vehicle_positions
WHERE snapshot_ts = (SELECT MAX(snapshot_ts) FROM vehicle_positions)
ORDER BY route_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query vehicle positions: %w", err)
	}
	defer rows.Close()

	var buses []fleet.BusState
	for rows.Next() {
		var b fleet.BusState
		if err := rows.Scan(&b.VehicleID, &b.RouteID, &b.CurrentStop, &b.StopSequence, &b.PositionTime, &b.ScheduleDelay); err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buses, nil
}

// FetchDemandSnapshot returns the most recent complete passenger-demand
// snapshot: waiting counts per stop with the mean wait observed so far.
func FetchDemandSnapshot(ctx context.Context, db *sql.DB) ([]fleet.PassengerDemandSample, error) {
	q := `
SELECT stop_id, route_id, waiting, COALESCE(avg_wait_sec, 0)
FROM passenger_demand
WHERE snapshot_ts = (SELECT MAX(snapshot_ts) FROM passenger_demand)`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query passenger demand: %w", err)
	}
	defer rows.Close()

	var samples []fleet.PassengerDemandSample
	for rows.Next() {
		var s fleet.PassengerDemandSample
		if err := rows.Scan(&s.StopID, &s.RouteID, &s.Waiting, &s.AvgWaitSec); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// FetchAvailableBuses counts vehicles currently available for dispatch.
func FetchAvailableBuses(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fleet_vehicles WHERE in_service`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available buses: %w", err)
	}
	return n, nil
}
