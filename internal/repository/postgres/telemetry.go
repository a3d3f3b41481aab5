package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"github.com/verdantio/greenhouse-backend/internal/models"
)

type TelemetryStore struct {
	pool *pgxpool.Pool
}

func NewTelemetryStore(pool *pgxpool.Pool) *TelemetryStore {
	return &TelemetryStore{pool: pool}
}

// History returns the module's samples inside the trailing window,
// oldest first. A module with no samples in the window yields an empty
// slice, not an error; only a missing module is ErrNotFound.
func (s *TelemetryStore) History(ctx context.Context, moduleID int64, window time.Duration) ([]models.TelemetrySample, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM modules WHERE module_id = $1)`, moduleID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check module: %w", err)
	}
	if !exists {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}

	since := time.Now().Add(-window)
	rows, err := s.pool.Query(ctx, `
		SELECT module_id, recorded_at, temperature, humidity, light
		FROM telemetry_samples
		WHERE module_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at`, moduleID, since)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	samples := make([]models.TelemetrySample, 0)
	for rows.Next() {
		var sm models.TelemetrySample
		if err := rows.Scan(&sm.ModuleID, &sm.RecordedAt, &sm.Temperature, &sm.Humidity, &sm.Light); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// Latest returns the most recent sample, or nil, nil when the module has
// never reported.
func (s *TelemetryStore) Latest(ctx context.Context, moduleID int64) (*models.TelemetrySample, error) {
	var sm models.TelemetrySample
	err := s.pool.QueryRow(ctx, `
		SELECT module_id, recorded_at, temperature, humidity, light
		FROM telemetry_samples
		WHERE module_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, moduleID,
	).Scan(&sm.ModuleID, &sm.RecordedAt, &sm.Temperature, &sm.Humidity, &sm.Light)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest sample: %w", err)
	}
	return &sm, nil
}

// Record appends a sample and refreshes the module's last_* readings in
// one transaction, so the module row and its history never disagree
// about the latest values.
func (s *TelemetryStore) Record(ctx context.Context, moduleID int64, temperature, humidity, light *float64) (*models.Module, error) {
	if temperature == nil && humidity == nil && light == nil {
		return nil, domain.Validationf("at least one reading is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE modules
		SET last_temperature = COALESCE($2, last_temperature),
		    last_humidity    = COALESCE($3, last_humidity),
		    last_light       = COALESCE($4, last_light),
		    last_seen_at     = now()
		WHERE module_id = $1
		RETURNING ` + moduleColumns

	m, err := scanModule(tx.QueryRow(ctx, query, moduleID, temperature, humidity, light))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundf("module %d does not exist", moduleID)
		}
		return nil, fmt.Errorf("update readings: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO telemetry_samples (module_id, recorded_at, temperature, humidity, light)
		VALUES ($1, now(), $2, $3, $4)`,
		moduleID, temperature, humidity, light); err != nil {
		return nil, fmt.Errorf("insert sample: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return m, nil
}
