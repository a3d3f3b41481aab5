package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"github.com/verdantio/greenhouse-backend/internal/models"
)

type ModuleStore struct {
	pool *pgxpool.Pool
}

func NewModuleStore(pool *pgxpool.Pool) *ModuleStore {
	return &ModuleStore{pool: pool}
}

func (s *ModuleStore) ListAvailable(ctx context.Context) ([]models.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE owner_user_id IS NULL
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list available modules: %w", err)
	}
	return scanModules(rows)
}

func (s *ModuleStore) ListOwned(ctx context.Context, userID uuid.UUID) ([]models.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE owner_user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned modules: %w", err)
	}
	return scanModules(rows)
}

func (s *ModuleStore) GetByID(ctx context.Context, moduleID int64) (*models.Module, error) {
	return getModule(ctx, s.pool, moduleID)
}

func getModule(ctx context.Context, q querier, moduleID int64) (*models.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE module_id = $1`

	m, err := scanModule(q.QueryRow(ctx, query, moduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get module: %w", err)
	}
	return m, nil
}

func (s *ModuleStore) GetByMAC(ctx context.Context, mac string) (*models.Module, error) {
	query := `
		SELECT ` + moduleColumns + `
		FROM modules
		WHERE mac_address = $1`

	m, err := scanModule(s.pool.QueryRow(ctx, query, mac))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get module by mac: %w", err)
	}
	return m, nil
}

// Connect registers a device the first time its MAC shows up and
// refreshes the reported IP on every reconnect. New modules start
// unclaimed and inactive.
func (s *ModuleStore) Connect(ctx context.Context, mac, ip string) (*models.Module, bool, error) {
	update := `
		UPDATE modules
		SET ip_address = $2
		WHERE mac_address = $1
		RETURNING ` + moduleColumns

	m, err := scanModule(s.pool.QueryRow(ctx, update, mac, ip))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("refresh module: %w", err)
	}

	insert := `
		INSERT INTO modules (mac_address, ip_address, is_active)
		VALUES ($1, $2, false)
		ON CONFLICT (mac_address) DO UPDATE SET ip_address = EXCLUDED.ip_address
		RETURNING ` + moduleColumns

	m, err = scanModule(s.pool.QueryRow(ctx, insert, mac, ip))
	if err != nil {
		return nil, false, fmt.Errorf("register module: %w", err)
	}
	return m, false, nil
}

// Claim is a compare-and-swap: the UPDATE only matches while
// owner_user_id is still NULL, so of any set of concurrent claimants
// exactly one row-locks the transition and the rest fall through to the
// conflict diagnosis.
func (s *ModuleStore) Claim(ctx context.Context, userID uuid.UUID, moduleID int64) (*models.Module, error) {
	query := `
		UPDATE modules
		SET owner_user_id = $1
		WHERE module_id = $2 AND owner_user_id IS NULL
		RETURNING ` + moduleColumns

	m, err := scanModule(s.pool.QueryRow(ctx, query, userID, moduleID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim module: %w", err)
	}

	existing, err := s.GetByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}
	return nil, domain.Conflictf("module %d is already claimed", moduleID)
}

// Unclaim releases ownership and detaches the module from its
// greenhouse. A greenhouse's main module can only be unclaimed once the
// caller reassigns main, unless the main is the greenhouse's sole
// member, in which case the empty greenhouse is removed too.
func (s *ModuleStore) Unclaim(ctx context.Context, userID uuid.UUID, moduleID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unclaim: %w", err)
	}
	defer tx.Rollback(ctx)

	var m models.Module
	err = tx.QueryRow(ctx, `
		SELECT module_id, owner_user_id, greenhouse_id, greenhouse_slot
		FROM modules
		WHERE module_id = $1
		FOR UPDATE`, moduleID,
	).Scan(&m.ID, &m.OwnerUserID, &m.GreenhouseID, &m.GreenhouseSlot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFoundf("module %d does not exist", moduleID)
		}
		return fmt.Errorf("lock module: %w", err)
	}
	if m.OwnerUserID == nil || *m.OwnerUserID != userID {
		return domain.Forbiddenf("module %d is not owned by you", moduleID)
	}

	if m.GreenhouseID != nil {
		// Serialize against concurrent delete/setMainModule on the same
		// greenhouse.
		ghID := *m.GreenhouseID
		var ownerID uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT owner_user_id FROM greenhouses
			WHERE greenhouse_id = $1
			FOR UPDATE`, ghID,
		).Scan(&ownerID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock greenhouse: %w", err)
		}

		if err == nil && m.IsMain() {
			var others int
			err = tx.QueryRow(ctx, `
				SELECT count(*) FROM modules
				WHERE greenhouse_id = $1 AND module_id <> $2`, ghID, moduleID,
			).Scan(&others)
			if err != nil {
				return fmt.Errorf("count members: %w", err)
			}
			if others > 0 {
				return domain.Conflictf(
					"module %d is the main module of greenhouse %d; reassign main first", moduleID, ghID)
			}
			// Sole member: the greenhouse has no other use for it.
			// Remove the greenhouse and any favorite pointing at it.
			if _, err := tx.Exec(ctx, `
				UPDATE users SET favorite_greenhouse_id = NULL
				WHERE favorite_greenhouse_id = $1`, ghID); err != nil {
				return fmt.Errorf("clear favorite: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE modules SET greenhouse_id = NULL, greenhouse_slot = NULL
				WHERE greenhouse_id = $1`, ghID); err != nil {
				return fmt.Errorf("detach modules: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				DELETE FROM greenhouses WHERE greenhouse_id = $1`, ghID); err != nil {
				return fmt.Errorf("delete greenhouse: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE modules
		SET owner_user_id = NULL, greenhouse_id = NULL, greenhouse_slot = NULL, is_active = false
		WHERE module_id = $1`, moduleID)
	if err != nil {
		return fmt.Errorf("unclaim module: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unclaim: %w", err)
	}
	return nil
}

// SetStatus toggles is_active. Setting the current value again is a
// successful no-op.
func (s *ModuleStore) SetStatus(ctx context.Context, userID uuid.UUID, moduleID int64, active bool) (*models.Module, error) {
	query := `
		UPDATE modules
		SET is_active = $3
		WHERE module_id = $1 AND owner_user_id = $2
		RETURNING ` + moduleColumns

	m, err := scanModule(s.pool.QueryRow(ctx, query, moduleID, userID, active))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("set module status: %w", err)
	}
	return nil, s.ownershipError(ctx, moduleID)
}

func (s *ModuleStore) UpdateSettings(ctx context.Context, userID uuid.UUID, moduleID int64, settings models.ModuleSettings) (*models.Module, error) {
	if err := domain.ValidateSettings(settings); err != nil {
		return nil, err
	}

	query := `
		UPDATE modules
		SET module_name        = COALESCE($3, module_name),
		    target_temperature = COALESCE($4, target_temperature),
		    target_humidity    = COALESCE($5, target_humidity),
		    target_lighting    = COALESCE($6, target_lighting)
		WHERE module_id = $1 AND owner_user_id = $2
		RETURNING ` + moduleColumns

	m, err := scanModule(s.pool.QueryRow(ctx, query,
		moduleID, userID,
		settings.Name,
		settings.TargetTemperature,
		settings.TargetHumidity,
		settings.TargetLighting,
	))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update module settings: %w", err)
	}
	return nil, s.ownershipError(ctx, moduleID)
}

// CopySettings overwrites the target's setpoints with the source's in a
// single UPDATE ... FROM statement: the source is snapshotted and the
// target row-locked by the same statement, so a concurrent change to the
// source cannot produce a torn copy.
func (s *ModuleStore) CopySettings(ctx context.Context, userID uuid.UUID, targetModuleID, sourceModuleID int64) (*models.Module, error) {
	if targetModuleID == sourceModuleID {
		return nil, domain.Validationf("cannot copy settings from module %d onto itself", sourceModuleID)
	}

	query := `
		UPDATE modules AS t
		SET target_temperature = s.target_temperature,
		    target_humidity    = s.target_humidity,
		    target_lighting    = s.target_lighting
		FROM modules AS s
		WHERE t.module_id = $1 AND s.module_id = $2
		  AND t.owner_user_id = $3 AND s.owner_user_id = $3
		RETURNING
			t.module_id, t.module_name, t.mac_address, t.ip_address, t.owner_user_id,
			t.is_active, t.greenhouse_id, t.greenhouse_slot,
			t.target_temperature, t.target_humidity, t.target_lighting,
			t.last_temperature, t.last_humidity, t.last_light, t.last_seen_at, t.created_at`

	m, err := scanModule(s.pool.QueryRow(ctx, query, targetModuleID, sourceModuleID, userID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("copy module settings: %w", err)
	}

	source, err := s.GetByID(ctx, sourceModuleID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, domain.NotFoundf("source module %d does not exist", sourceModuleID)
	}
	target, err := s.GetByID(ctx, targetModuleID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.NotFoundf("module %d does not exist", targetModuleID)
	}
	return nil, domain.Forbiddenf("both modules must be owned by you")
}

// ownershipError diagnoses a zero-row owner-guarded write: the module is
// either missing or owned by someone else.
func (s *ModuleStore) ownershipError(ctx context.Context, moduleID int64) error {
	existing, err := s.GetByID(ctx, moduleID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.NotFoundf("module %d does not exist", moduleID)
	}
	return domain.Forbiddenf("module %d is not owned by you", moduleID)
}
