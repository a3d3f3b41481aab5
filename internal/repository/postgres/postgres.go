// Package postgres implements the repository interfaces on pgx. Every
// compound operation (claim, unclaim cascade, greenhouse create/delete,
// main-module swap, settings copy) runs inside a single transaction so
// the cross-entity invariants (module ownership, greenhouse membership,
// favorite pointers) are never observable half-applied.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/verdantio/greenhouse-backend/internal/models"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// row-scanning helpers work inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const moduleColumns = `
	module_id, module_name, mac_address, ip_address, owner_user_id,
	is_active, greenhouse_id, greenhouse_slot,
	target_temperature, target_humidity, target_lighting,
	last_temperature, last_humidity, last_light, last_seen_at, created_at`

func scanModule(row pgx.Row) (*models.Module, error) {
	var m models.Module
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.MACAddress,
		&m.IPAddress,
		&m.OwnerUserID,
		&m.IsActive,
		&m.GreenhouseID,
		&m.GreenhouseSlot,
		&m.TargetTemperature,
		&m.TargetHumidity,
		&m.TargetLighting,
		&m.LastTemperature,
		&m.LastHumidity,
		&m.LastLight,
		&m.LastSeenAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanModules(rows pgx.Rows) ([]models.Module, error) {
	defer rows.Close()

	modules := make([]models.Module, 0)
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
