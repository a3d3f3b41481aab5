package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can claim modules and compose greenhouses.
// Authentication itself lives in the auth package; the rest of the
// system only ever sees the user's UUID.
type User struct {
	ID                   uuid.UUID `json:"id"`
	Login                string    `json:"login"`
	PasswordHash         string    `json:"-"`
	FavoriteGreenhouseID *int64    `json:"favorite_greenhouse_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// Module is a physical sensor/actuator device. A row is created when the
// device first connects (unclaimed, inactive) and survives unclaim; only
// device decommissioning removes it.
//
// Pointer fields are nullable columns: an unclaimed module has no owner,
// an unconfigured one has no targets, and a module that has never reported
// has no last readings.
type Module struct {
	ID          int64      `json:"module_id"`
	Name        *string    `json:"module_name"`
	MACAddress  string     `json:"mac_address"`
	IPAddress   *string    `json:"ip_address"`
	OwnerUserID *uuid.UUID `json:"owner_user_id"`
	IsActive    bool       `json:"is_active"`

	// GreenhouseID and GreenhouseSlot are set together or not at all.
	// Slot 0 is the greenhouse's main module; 1..3 are secondaries.
	GreenhouseID   *int64 `json:"greenhouse_id"`
	GreenhouseSlot *int16 `json:"-"`

	TargetTemperature *float64 `json:"target_temperature"`
	TargetHumidity    *float64 `json:"target_humidity"`
	TargetLighting    *float64 `json:"target_lighting"`

	LastTemperature *float64   `json:"last_temperature"`
	LastHumidity    *float64   `json:"last_humidity"`
	LastLight       *float64   `json:"last_light"`
	LastSeenAt      *time.Time `json:"last_seen_at"`

	CreatedAt time.Time `json:"created_at"`
}

// IsClaimed reports whether any user currently owns the module.
func (m *Module) IsClaimed() bool {
	return m.OwnerUserID != nil
}

// IsMain reports whether the module occupies its greenhouse's main slot.
func (m *Module) IsMain() bool {
	return m.GreenhouseSlot != nil && *m.GreenhouseSlot == 0
}

// Greenhouse groups one main module and up to three secondary modules
// under a single owner. Membership is stored on the module rows
// (greenhouse_id + slot); MainModuleID and SecondaryModuleIDs here are
// assembled from those rows, ordered by slot.
type Greenhouse struct {
	ID                 int64     `json:"greenhouse_id"`
	OwnerUserID        uuid.UUID `json:"owner_id"`
	Name               string    `json:"greenhouse_name"`
	MainModuleID       int64     `json:"main_module_id"`
	SecondaryModuleIDs []int64   `json:"secondary_module_ids"`
	// Modules is populated only on fully-resolved reads (favorite fetch).
	Modules   []Module  `json:"modules,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TelemetrySample is one append-only reading reported by a module.
// Metrics the device did not include in the report stay nil.
type TelemetrySample struct {
	ModuleID    int64     `json:"module_id"`
	RecordedAt  time.Time `json:"time"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Light       *float64  `json:"light"`
}

// ModuleSettings is the partial-update payload for a module's
// configuration. Nil fields are left untouched.
type ModuleSettings struct {
	Name              *string  `json:"module_name"`
	TargetTemperature *float64 `json:"target_temperature"`
	TargetHumidity    *float64 `json:"target_humidity"`
	TargetLighting    *float64 `json:"target_lighting"`
}
