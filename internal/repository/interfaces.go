package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/verdantio/greenhouse-backend/internal/models"
)

// Every method takes a context so request cancellation propagates into
// the database driver, and every ownership-sensitive method takes the
// caller's userID so the store, not the handler, enforces who may
// touch what.
//
// Business-rule failures are reported as wrapped domain sentinels
// (domain.ErrValidation / ErrForbidden / ErrConflict / ErrNotFound);
// plain reads return nil, nil for a missing row.

// ModuleRepository owns module claim/release and per-module
// configuration state.
type ModuleRepository interface {
	// ListAvailable returns unclaimed modules, newest first.
	ListAvailable(ctx context.Context) ([]models.Module, error)

	// ListOwned returns the caller's modules, newest first.
	ListOwned(ctx context.Context, userID uuid.UUID) ([]models.Module, error)

	// GetByID returns a module regardless of owner. Returns nil, nil if
	// not found.
	GetByID(ctx context.Context, moduleID int64) (*models.Module, error)

	// GetByMAC returns a module by its hardware identity. Returns
	// nil, nil if not found.
	GetByMAC(ctx context.Context, mac string) (*models.Module, error)

	// Connect registers a device by MAC or refreshes its reported IP.
	// The bool is true when the module already existed.
	Connect(ctx context.Context, mac, ip string) (*models.Module, bool, error)

	// Claim makes userID the owner of an unclaimed module. Exactly one of
	// any set of concurrent claimants succeeds; the rest observe
	// ErrConflict.
	Claim(ctx context.Context, userID uuid.UUID, moduleID int64) (*models.Module, error)

	// Unclaim releases ownership and detaches the module from its
	// greenhouse. Unclaiming a greenhouse's main module is ErrConflict
	// while the greenhouse has other members; if the main is the sole
	// member, the now-empty greenhouse is removed in the same
	// transaction.
	Unclaim(ctx context.Context, userID uuid.UUID, moduleID int64) error

	// SetStatus toggles is_active. Idempotent.
	SetStatus(ctx context.Context, userID uuid.UUID, moduleID int64, active bool) (*models.Module, error)

	// UpdateSettings applies a partial settings update.
	UpdateSettings(ctx context.Context, userID uuid.UUID, moduleID int64, settings models.ModuleSettings) (*models.Module, error)

	// CopySettings overwrites the target module's setpoints with a
	// snapshot of the source's, in one transaction. The name is not
	// copied.
	CopySettings(ctx context.Context, userID uuid.UUID, targetModuleID, sourceModuleID int64) (*models.Module, error)
}

// GreenhouseRepository groups modules under named greenhouses.
type GreenhouseRepository interface {
	// Create makes a greenhouse and attaches the main and secondary
	// modules to it atomically.
	Create(ctx context.Context, userID uuid.UUID, name string, mainModuleID int64, secondaryModuleIDs []int64) (*models.Greenhouse, error)

	// ListByOwner returns the caller's greenhouses with membership
	// resolved (ids only, not full modules).
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.Greenhouse, error)

	// GetResolved returns one greenhouse with its member modules
	// populated. Returns nil, nil if not found or not owned by userID.
	GetResolved(ctx context.Context, userID uuid.UUID, greenhouseID int64) (*models.Greenhouse, error)

	// Delete detaches every member module, clears the owner's favorite if
	// it pointed here, and removes the greenhouse in one transaction; no
	// partial cascade is ever observable.
	Delete(ctx context.Context, userID uuid.UUID, greenhouseID int64) error

	// SetMainModule promotes an existing member to main, swapping slots
	// with the previous main. Membership never grows past four.
	SetMainModule(ctx context.Context, userID uuid.UUID, greenhouseID, moduleID int64) (*models.Greenhouse, error)
}

// FavoriteRepository is the per-user pointer to one greenhouse.
type FavoriteRepository interface {
	// Get returns the user's favorite greenhouse fully resolved, or
	// nil, nil when no favorite is set.
	Get(ctx context.Context, userID uuid.UUID) (*models.Greenhouse, error)

	// Set replaces the mapping. A nil greenhouseID clears the favorite
	// and always succeeds.
	Set(ctx context.Context, userID uuid.UUID, greenhouseID *int64) error
}

// TelemetryRepository serves historical samples and accepts device
// readings.
type TelemetryRepository interface {
	// History returns the module's samples inside the trailing window,
	// oldest first. ErrNotFound if the module does not exist; an empty
	// slice when it exists but has no samples in the window.
	History(ctx context.Context, moduleID int64, window time.Duration) ([]models.TelemetrySample, error)

	// Latest returns the module's most recent sample, or nil, nil when
	// it has never reported.
	Latest(ctx context.Context, moduleID int64) (*models.TelemetrySample, error)

	// Record appends a sample and refreshes the module's last_* readings
	// in one transaction. Nil metrics are left out of both.
	Record(ctx context.Context, moduleID int64, temperature, humidity, light *float64) (*models.Module, error)
}

// UserRepository handles account rows for the auth endpoints.
type UserRepository interface {
	Create(ctx context.Context, login, passwordHash string) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}
