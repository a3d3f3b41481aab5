package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdantio/greenhouse-backend/internal/db"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"github.com/verdantio/greenhouse-backend/internal/models"
	"go.uber.org/zap"
)

// These tests run against a real database. Point TEST_DATABASE_URL at a
// throwaway Postgres; every test truncates all tables first.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := db.New(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.ApplySchema(ctx))

	pool := database.Pool()
	_, err = pool.Exec(ctx, `TRUNCATE telemetry_samples, modules, greenhouses, users CASCADE`)
	require.NoError(t, err)
	return pool
}

func createTestUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	store := NewUserStore(pool)
	u, err := store.Create(context.Background(), uuid.NewString(), "x")
	require.NoError(t, err)
	return u.ID
}

func connectTestModule(t *testing.T, pool *pgxpool.Pool) *models.Module {
	t.Helper()
	store := NewModuleStore(pool)
	m, existed, err := store.Connect(context.Background(), uuid.NewString(), "10.0.0.1")
	require.NoError(t, err)
	require.False(t, existed)
	return m
}

func claimTestModule(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) *models.Module {
	t.Helper()
	m := connectTestModule(t, pool)
	claimed, err := NewModuleStore(pool).Claim(context.Background(), userID, m.ID)
	require.NoError(t, err)
	return claimed
}

func TestClaimRace(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewModuleStore(pool)
	m := connectTestModule(t, pool)

	const claimants = 8
	userIDs := make([]uuid.UUID, claimants)
	for i := range userIDs {
		userIDs[i] = createTestUser(t, pool)
	}

	var wg sync.WaitGroup
	errs := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Claim(ctx, userIDs[i], m.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestUnclaimDetachesAndDeactivates(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewModuleStore(pool)
	userID := createTestUser(t, pool)
	m := claimTestModule(t, pool, userID)

	_, err := store.SetStatus(ctx, userID, m.ID, true)
	require.NoError(t, err)

	require.NoError(t, store.Unclaim(ctx, userID, m.ID))

	got, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.OwnerUserID)
	assert.Nil(t, got.GreenhouseID)
	assert.False(t, got.IsActive)
}

func TestUnclaimMainModule(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	modules := NewModuleStore(pool)
	greenhouses := NewGreenhouseStore(pool)
	userID := createTestUser(t, pool)

	main := claimTestModule(t, pool, userID)
	secondary := claimTestModule(t, pool, userID)
	gh, err := greenhouses.Create(ctx, userID, "north wing", main.ID, []int64{secondary.ID})
	require.NoError(t, err)

	// Refused while the secondary remains.
	err = modules.Unclaim(ctx, userID, main.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, modules.Unclaim(ctx, userID, secondary.ID))

	// Sole member now; releasing it removes the empty greenhouse.
	require.NoError(t, modules.Unclaim(ctx, userID, main.ID))
	got, err := greenhouses.GetResolved(ctx, userID, gh.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGreenhouseLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	greenhouses := NewGreenhouseStore(pool)
	favorites := NewFavoriteStore(pool)
	userID := createTestUser(t, pool)

	main := claimTestModule(t, pool, userID)
	s1 := claimTestModule(t, pool, userID)
	s2 := claimTestModule(t, pool, userID)

	gh, err := greenhouses.Create(ctx, userID, "north wing", main.ID, []int64{s1.ID, s2.ID})
	require.NoError(t, err)
	assert.Equal(t, main.ID, gh.MainModuleID)
	assert.Equal(t, []int64{s1.ID, s2.ID}, gh.SecondaryModuleIDs)

	// A module already attached elsewhere cannot seed another greenhouse.
	_, err = greenhouses.Create(ctx, userID, "south wing", s1.ID, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Same owner, same name: refused.
	other := claimTestModule(t, pool, userID)
	_, err = greenhouses.Create(ctx, userID, "north wing", other.ID, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, favorites.Set(ctx, userID, &gh.ID))

	require.NoError(t, greenhouses.Delete(ctx, userID, gh.ID))

	// Favorite fell back to none.
	fav, err := favorites.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, fav)

	// Members are detached but still owned.
	owned, err := NewModuleStore(pool).ListOwned(ctx, userID)
	require.NoError(t, err)
	for _, m := range owned {
		assert.Nil(t, m.GreenhouseID)
	}
}

func TestSetMainModuleSwapsSlots(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	greenhouses := NewGreenhouseStore(pool)
	userID := createTestUser(t, pool)

	main := claimTestModule(t, pool, userID)
	s1 := claimTestModule(t, pool, userID)
	s2 := claimTestModule(t, pool, userID)
	gh, err := greenhouses.Create(ctx, userID, "swap", main.ID, []int64{s1.ID, s2.ID})
	require.NoError(t, err)

	got, err := greenhouses.SetMainModule(ctx, userID, gh.ID, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, got.MainModuleID)
	assert.ElementsMatch(t, []int64{main.ID, s1.ID}, got.SecondaryModuleIDs)

	// A module outside the greenhouse cannot be promoted.
	stranger := claimTestModule(t, pool, userID)
	_, err = greenhouses.SetMainModule(ctx, userID, gh.ID, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCopySettingsSnapshot(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewModuleStore(pool)
	userID := createTestUser(t, pool)

	source := claimTestModule(t, pool, userID)
	target := claimTestModule(t, pool, userID)

	temp, hum := 22.5, 55.0
	_, err := store.UpdateSettings(ctx, userID, source.ID, models.ModuleSettings{
		TargetTemperature: &temp,
		TargetHumidity:    &hum,
	})
	require.NoError(t, err)

	got, err := store.CopySettings(ctx, userID, target.ID, source.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TargetTemperature)
	assert.Equal(t, temp, *got.TargetTemperature)
	require.NotNil(t, got.TargetHumidity)
	assert.Equal(t, hum, *got.TargetHumidity)
	assert.Nil(t, got.TargetLighting)

	_, err = store.CopySettings(ctx, userID, target.ID, target.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTelemetryRecordAndHistory(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	telemetry := NewTelemetryStore(pool)
	m := connectTestModule(t, pool)

	_, err := telemetry.Record(ctx, m.ID, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	temp := 21.0
	updated, err := telemetry.Record(ctx, m.ID, &temp, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.LastTemperature)
	assert.Equal(t, temp, *updated.LastTemperature)
	assert.NotNil(t, updated.LastSeenAt)

	samples, err := telemetry.History(ctx, m.ID, time.Hour)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, &temp, samples[0].Temperature)
	assert.Nil(t, samples[0].Humidity)

	latest, err := telemetry.Latest(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, &temp, latest.Temperature)

	_, err = telemetry.History(ctx, m.ID+999, time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
