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

type FavoriteStore struct {
	pool *pgxpool.Pool
}

func NewFavoriteStore(pool *pgxpool.Pool) *FavoriteStore {
	return &FavoriteStore{pool: pool}
}

// Get returns the user's favorite greenhouse fully resolved, or nil, nil
// when no favorite is set. A dangling pointer cannot occur: greenhouse
// deletion clears the favorite in the same transaction.
func (s *FavoriteStore) Get(ctx context.Context, userID uuid.UUID) (*models.Greenhouse, error) {
	var favoriteID *int64
	err := s.pool.QueryRow(ctx, `
		SELECT favorite_greenhouse_id FROM users WHERE id = $1`, userID,
	).Scan(&favoriteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundf("user does not exist")
		}
		return nil, fmt.Errorf("get favorite: %w", err)
	}
	if favoriteID == nil {
		return nil, nil
	}
	return resolveGreenhouse(ctx, s.pool, userID, *favoriteID)
}

// Set replaces the mapping. The non-nil case verifies ownership in the
// same statement that writes the pointer, so a concurrent greenhouse
// delete cannot leave a favorite referencing a foreign or missing
// greenhouse.
func (s *FavoriteStore) Set(ctx context.Context, userID uuid.UUID, greenhouseID *int64) error {
	if greenhouseID == nil {
		if _, err := s.pool.Exec(ctx, `
			UPDATE users SET favorite_greenhouse_id = NULL WHERE id = $1`, userID); err != nil {
			return fmt.Errorf("clear favorite: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET favorite_greenhouse_id = $2
		WHERE id = $1
		  AND EXISTS (
			SELECT 1 FROM greenhouses
			WHERE greenhouse_id = $2 AND owner_user_id = $1
		  )`, userID, *greenhouseID)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM greenhouses WHERE greenhouse_id = $1)`, *greenhouseID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check greenhouse: %w", err)
	}
	if !exists {
		return domain.NotFoundf("greenhouse %d does not exist", *greenhouseID)
	}
	return domain.Forbiddenf("greenhouse %d is not owned by you", *greenhouseID)
}
