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

type GreenhouseStore struct {
	pool *pgxpool.Pool
}

func NewGreenhouseStore(pool *pgxpool.Pool) *GreenhouseStore {
	return &GreenhouseStore{pool: pool}
}

// Create inserts the greenhouse and attaches every referenced module in
// one transaction. Each attach is guarded by ownership and
// unattachedness in its WHERE clause, so any module that is not the
// caller's or already belongs elsewhere rolls the whole creation back.
func (s *GreenhouseStore) Create(ctx context.Context, userID uuid.UUID, name string, mainModuleID int64, secondaryModuleIDs []int64) (*models.Greenhouse, error) {
	if err := domain.ValidateComposition(name, mainModuleID, secondaryModuleIDs); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create greenhouse: %w", err)
	}
	defer tx.Rollback(ctx)

	var gh models.Greenhouse
	err = tx.QueryRow(ctx, `
		INSERT INTO greenhouses (owner_user_id, greenhouse_name)
		VALUES ($1, $2)
		RETURNING greenhouse_id, owner_user_id, greenhouse_name, created_at`,
		userID, name,
	).Scan(&gh.ID, &gh.OwnerUserID, &gh.Name, &gh.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflictf("you already have a greenhouse named %q", name)
		}
		return nil, fmt.Errorf("insert greenhouse: %w", err)
	}

	attach := func(moduleID int64, slot int16) error {
		tag, err := tx.Exec(ctx, `
			UPDATE modules
			SET greenhouse_id = $1, greenhouse_slot = $2
			WHERE module_id = $3 AND owner_user_id = $4 AND greenhouse_id IS NULL`,
			gh.ID, slot, moduleID, userID)
		if err != nil {
			return fmt.Errorf("attach module %d: %w", moduleID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Validationf(
				"module %d must exist, be owned by you, and not belong to another greenhouse", moduleID)
		}
		return nil
	}

	if err := attach(mainModuleID, 0); err != nil {
		return nil, err
	}
	for i, secID := range secondaryModuleIDs {
		if err := attach(secID, int16(i+1)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create greenhouse: %w", err)
	}

	gh.MainModuleID = mainModuleID
	gh.SecondaryModuleIDs = append([]int64(nil), secondaryModuleIDs...)
	return &gh, nil
}

func (s *GreenhouseStore) ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.Greenhouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT greenhouse_id, owner_user_id, greenhouse_name, created_at
		FROM greenhouses
		WHERE owner_user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list greenhouses: %w", err)
	}
	defer rows.Close()

	greenhouses := make([]models.Greenhouse, 0)
	index := make(map[int64]*models.Greenhouse)
	ids := make([]int64, 0)
	for rows.Next() {
		var gh models.Greenhouse
		if err := rows.Scan(&gh.ID, &gh.OwnerUserID, &gh.Name, &gh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan greenhouse: %w", err)
		}
		gh.SecondaryModuleIDs = make([]int64, 0)
		greenhouses = append(greenhouses, gh)
		ids = append(ids, gh.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate greenhouses: %w", err)
	}
	for i := range greenhouses {
		index[greenhouses[i].ID] = &greenhouses[i]
	}
	if len(ids) == 0 {
		return greenhouses, nil
	}

	memberRows, err := s.pool.Query(ctx, `
		SELECT greenhouse_id, module_id, greenhouse_slot
		FROM modules
		WHERE greenhouse_id = ANY($1)
		ORDER BY greenhouse_id, greenhouse_slot`, ids)
	if err != nil {
		return nil, fmt.Errorf("list greenhouse members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var ghID, moduleID int64
		var slot int16
		if err := memberRows.Scan(&ghID, &moduleID, &slot); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		gh, ok := index[ghID]
		if !ok {
			continue
		}
		if slot == 0 {
			gh.MainModuleID = moduleID
		} else {
			gh.SecondaryModuleIDs = append(gh.SecondaryModuleIDs, moduleID)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return greenhouses, nil
}

// GetResolved returns one greenhouse with its member modules populated,
// or nil, nil when it does not exist or belongs to someone else.
func (s *GreenhouseStore) GetResolved(ctx context.Context, userID uuid.UUID, greenhouseID int64) (*models.Greenhouse, error) {
	return resolveGreenhouse(ctx, s.pool, userID, greenhouseID)
}

func resolveGreenhouse(ctx context.Context, q querier, userID uuid.UUID, greenhouseID int64) (*models.Greenhouse, error) {
	var gh models.Greenhouse
	err := q.QueryRow(ctx, `
		SELECT greenhouse_id, owner_user_id, greenhouse_name, created_at
		FROM greenhouses
		WHERE greenhouse_id = $1 AND owner_user_id = $2`,
		greenhouseID, userID,
	).Scan(&gh.ID, &gh.OwnerUserID, &gh.Name, &gh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get greenhouse: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+moduleColumns+`
		FROM modules
		WHERE greenhouse_id = $1
		ORDER BY greenhouse_slot`, greenhouseID)
	if err != nil {
		return nil, fmt.Errorf("list greenhouse modules: %w", err)
	}
	members, err := scanModules(rows)
	if err != nil {
		return nil, err
	}

	gh.SecondaryModuleIDs = make([]int64, 0, len(members))
	gh.Modules = members
	for _, m := range members {
		if m.IsMain() {
			gh.MainModuleID = m.ID
		} else {
			gh.SecondaryModuleIDs = append(gh.SecondaryModuleIDs, m.ID)
		}
	}
	return &gh, nil
}

// Delete detaches every member module, clears the owner's favorite if it
// pointed here, and removes the greenhouse. One transaction: a partial
// cascade is never observable.
func (s *GreenhouseStore) Delete(ctx context.Context, userID uuid.UUID, greenhouseID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete greenhouse: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockGreenhouse(ctx, tx, userID, greenhouseID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE modules SET greenhouse_id = NULL, greenhouse_slot = NULL
		WHERE greenhouse_id = $1`, greenhouseID); err != nil {
		return fmt.Errorf("detach modules: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET favorite_greenhouse_id = NULL
		WHERE favorite_greenhouse_id = $1`, greenhouseID); err != nil {
		return fmt.Errorf("clear favorite: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM greenhouses WHERE greenhouse_id = $1`, greenhouseID); err != nil {
		return fmt.Errorf("delete greenhouse: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete greenhouse: %w", err)
	}
	return nil
}

// SetMainModule promotes an existing member to the main slot by swapping
// slot values with the previous main. Swapping keeps membership at the
// same size; a module outside the greenhouse is rejected outright.
func (s *GreenhouseStore) SetMainModule(ctx context.Context, userID uuid.UUID, greenhouseID, moduleID int64) (*models.Greenhouse, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin set main module: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockGreenhouse(ctx, tx, userID, greenhouseID); err != nil {
		return nil, err
	}

	var slot int16
	err = tx.QueryRow(ctx, `
		SELECT greenhouse_slot FROM modules
		WHERE module_id = $1 AND greenhouse_id = $2
		FOR UPDATE`, moduleID, greenhouseID,
	).Scan(&slot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Validationf(
				"module %d is not a member of greenhouse %d", moduleID, greenhouseID)
		}
		return nil, fmt.Errorf("lock member: %w", err)
	}

	if slot != 0 {
		// The slot-uniqueness constraint is deferred so the pair of
		// updates is checked once, at commit.
		if _, err := tx.Exec(ctx, `SET CONSTRAINTS modules_greenhouse_slot_key DEFERRED`); err != nil {
			return nil, fmt.Errorf("defer slot constraint: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE modules SET greenhouse_slot = $1
			WHERE greenhouse_id = $2 AND greenhouse_slot = 0`, slot, greenhouseID); err != nil {
			return nil, fmt.Errorf("demote main: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE modules SET greenhouse_slot = 0
			WHERE module_id = $1`, moduleID); err != nil {
			return nil, fmt.Errorf("promote module: %w", err)
		}
	}

	gh, err := resolveGreenhouse(ctx, tx, userID, greenhouseID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit set main module: %w", err)
	}
	return gh, nil
}

// lockGreenhouse row-locks the greenhouse and verifies ownership.
// Mutations on the same greenhouse serialize on this lock.
func lockGreenhouse(ctx context.Context, tx pgx.Tx, userID uuid.UUID, greenhouseID int64) error {
	var ownerID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT owner_user_id FROM greenhouses
		WHERE greenhouse_id = $1
		FOR UPDATE`, greenhouseID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFoundf("greenhouse %d does not exist", greenhouseID)
		}
		return fmt.Errorf("lock greenhouse: %w", err)
	}
	if ownerID != userID {
		return domain.Forbiddenf("greenhouse %d is not owned by you", greenhouseID)
	}
	return nil
}
