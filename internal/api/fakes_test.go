package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"github.com/verdantio/greenhouse-backend/internal/models"
)

// fakeState is a single in-memory backend shared by the per-interface
// fakes below, honoring the same contract the Postgres stores do. The
// mutex around each operation mirrors the per-operation transaction
// boundary.
type fakeState struct {
	mu sync.Mutex

	nextModuleID     int64
	nextGreenhouseID int64

	users       map[uuid.UUID]*models.User
	modules     map[int64]*models.Module
	greenhouses map[int64]*models.Greenhouse // membership tracked on module rows
	samples     map[int64][]models.TelemetrySample
}

func newFakeState() *fakeState {
	return &fakeState{
		users:       make(map[uuid.UUID]*models.User),
		modules:     make(map[int64]*models.Module),
		greenhouses: make(map[int64]*models.Greenhouse),
		samples:     make(map[int64][]models.TelemetrySample),
	}
}

type fakeModules struct{ *fakeState }
type fakeGreenhouses struct{ *fakeState }
type fakeFavorites struct{ *fakeState }
type fakeTelemetry struct{ *fakeState }
type fakeUsers struct{ *fakeState }

// --- seeding helpers ---

func (f *fakeState) addUser() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &models.User{ID: id, Login: id.String(), CreatedAt: time.Now()}
	return id
}

func (f *fakeState) addModule(mac string, owner *uuid.UUID) *models.Module {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextModuleID++
	m := &models.Module{
		ID:          f.nextModuleID,
		MACAddress:  mac,
		OwnerUserID: owner,
		CreatedAt:   time.Now(),
	}
	f.modules[m.ID] = m
	return m
}

func copyModule(m *models.Module) *models.Module {
	cp := *m
	return &cp
}

func (f *fakeState) ownedModuleLocked(userID uuid.UUID, moduleID int64) (*models.Module, error) {
	m, ok := f.modules[moduleID]
	if !ok {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}
	if m.OwnerUserID == nil || *m.OwnerUserID != userID {
		return nil, domain.Forbiddenf("module %d is not owned by you", moduleID)
	}
	return m, nil
}

// --- ModuleRepository ---

func (f fakeModules) ListAvailable(ctx context.Context) ([]models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Module, 0)
	for _, m := range f.modules {
		if m.OwnerUserID == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f fakeModules) ListOwned(ctx context.Context, userID uuid.UUID) ([]models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Module, 0)
	for _, m := range f.modules {
		if m.OwnerUserID != nil && *m.OwnerUserID == userID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f fakeModules) GetByID(ctx context.Context, moduleID int64) (*models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[moduleID]
	if !ok {
		return nil, nil
	}
	return copyModule(m), nil
}

func (f fakeModules) GetByMAC(ctx context.Context, mac string) (*models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.modules {
		if m.MACAddress == mac {
			return copyModule(m), nil
		}
	}
	return nil, nil
}

func (f fakeModules) Connect(ctx context.Context, mac, ip string) (*models.Module, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.modules {
		if m.MACAddress == mac {
			m.IPAddress = &ip
			return copyModule(m), true, nil
		}
	}
	f.nextModuleID++
	m := &models.Module{
		ID:         f.nextModuleID,
		MACAddress: mac,
		IPAddress:  &ip,
		CreatedAt:  time.Now(),
	}
	f.modules[m.ID] = m
	return copyModule(m), false, nil
}

func (f fakeModules) Claim(ctx context.Context, userID uuid.UUID, moduleID int64) (*models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[moduleID]
	if !ok {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}
	if m.OwnerUserID != nil {
		return nil, domain.Conflictf("module %d is already claimed", moduleID)
	}
	owner := userID
	m.OwnerUserID = &owner
	return copyModule(m), nil
}

func (f fakeModules) Unclaim(ctx context.Context, userID uuid.UUID, moduleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[moduleID]
	if !ok {
		return domain.NotFoundf("module %d does not exist", moduleID)
	}
	if m.OwnerUserID == nil || *m.OwnerUserID != userID {
		return domain.Forbiddenf("module %d is not owned by you", moduleID)
	}
	if m.GreenhouseID != nil && m.IsMain() {
		ghID := *m.GreenhouseID
		others := 0
		for _, other := range f.modules {
			if other.GreenhouseID != nil && *other.GreenhouseID == ghID && other.ID != moduleID {
				others++
			}
		}
		if others > 0 {
			return domain.Conflictf("module %d is the main module of greenhouse %d; reassign main first", moduleID, ghID)
		}
		f.removeGreenhouseLocked(ghID)
	}
	m.OwnerUserID = nil
	m.GreenhouseID = nil
	m.GreenhouseSlot = nil
	m.IsActive = false
	return nil
}

func (f fakeModules) SetStatus(ctx context.Context, userID uuid.UUID, moduleID int64, active bool) (*models.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.ownedModuleLocked(userID, moduleID)
	if err != nil {
		return nil, err
	}
	m.IsActive = active
	return copyModule(m), nil
}

func (f fakeModules) UpdateSettings(ctx context.Context, userID uuid.UUID, moduleID int64, settings models.ModuleSettings) (*models.Module, error) {
	if err := domain.ValidateSettings(settings); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.ownedModuleLocked(userID, moduleID)
	if err != nil {
		return nil, err
	}
	if settings.Name != nil {
		m.Name = settings.Name
	}
	if settings.TargetTemperature != nil {
		m.TargetTemperature = settings.TargetTemperature
	}
	if settings.TargetHumidity != nil {
		m.TargetHumidity = settings.TargetHumidity
	}
	if settings.TargetLighting != nil {
		m.TargetLighting = settings.TargetLighting
	}
	return copyModule(m), nil
}

func (f fakeModules) CopySettings(ctx context.Context, userID uuid.UUID, targetModuleID, sourceModuleID int64) (*models.Module, error) {
	if targetModuleID == sourceModuleID {
		return nil, domain.Validationf("cannot copy settings from module %d onto itself", sourceModuleID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.modules[sourceModuleID]
	if !ok {
		return nil, domain.NotFoundf("source module %d does not exist", sourceModuleID)
	}
	target, ok := f.modules[targetModuleID]
	if !ok {
		return nil, domain.NotFoundf("module %d does not exist", targetModuleID)
	}
	if source.OwnerUserID == nil || *source.OwnerUserID != userID ||
		target.OwnerUserID == nil || *target.OwnerUserID != userID {
		return nil, domain.Forbiddenf("both modules must be owned by you")
	}
	target.TargetTemperature = source.TargetTemperature
	target.TargetHumidity = source.TargetHumidity
	target.TargetLighting = source.TargetLighting
	return copyModule(target), nil
}

// --- GreenhouseRepository ---

func (f fakeGreenhouses) Create(ctx context.Context, userID uuid.UUID, name string, mainModuleID int64, secondaryModuleIDs []int64) (*models.Greenhouse, error) {
	if err := domain.ValidateComposition(name, mainModuleID, secondaryModuleIDs); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, gh := range f.greenhouses {
		if gh.OwnerUserID == userID && gh.Name == name {
			return nil, domain.Conflictf("you already have a greenhouse named %q", name)
		}
	}

	attachable := func(moduleID int64) (*models.Module, error) {
		m, ok := f.modules[moduleID]
		if !ok || m.OwnerUserID == nil || *m.OwnerUserID != userID || m.GreenhouseID != nil {
			return nil, domain.Validationf(
				"module %d must exist, be owned by you, and not belong to another greenhouse", moduleID)
		}
		return m, nil
	}

	main, err := attachable(mainModuleID)
	if err != nil {
		return nil, err
	}
	secondaries := make([]*models.Module, 0, len(secondaryModuleIDs))
	for _, id := range secondaryModuleIDs {
		m, err := attachable(id)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, m)
	}

	f.nextGreenhouseID++
	gh := &models.Greenhouse{
		ID:          f.nextGreenhouseID,
		OwnerUserID: userID,
		Name:        name,
		CreatedAt:   time.Now(),
	}
	f.greenhouses[gh.ID] = gh

	attach := func(m *models.Module, slot int16) {
		ghID := gh.ID
		s := slot
		m.GreenhouseID = &ghID
		m.GreenhouseSlot = &s
	}
	attach(main, 0)
	for i, m := range secondaries {
		attach(m, int16(i+1))
	}

	out := *gh
	out.MainModuleID = mainModuleID
	out.SecondaryModuleIDs = append([]int64(nil), secondaryModuleIDs...)
	return &out, nil
}

func (f fakeGreenhouses) ListByOwner(ctx context.Context, userID uuid.UUID) ([]models.Greenhouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Greenhouse, 0)
	for _, gh := range f.greenhouses {
		if gh.OwnerUserID == userID {
			out = append(out, *f.assembleLocked(gh))
		}
	}
	return out, nil
}

func (f fakeGreenhouses) GetResolved(ctx context.Context, userID uuid.UUID, greenhouseID int64) (*models.Greenhouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gh, ok := f.greenhouses[greenhouseID]
	if !ok || gh.OwnerUserID != userID {
		return nil, nil
	}
	return f.assembleLocked(gh), nil
}

func (f *fakeState) assembleLocked(gh *models.Greenhouse) *models.Greenhouse {
	out := *gh
	out.SecondaryModuleIDs = make([]int64, 0)
	out.Modules = make([]models.Module, 0)
	for _, m := range f.modules {
		if m.GreenhouseID == nil || *m.GreenhouseID != gh.ID {
			continue
		}
		out.Modules = append(out.Modules, *m)
		if m.IsMain() {
			out.MainModuleID = m.ID
		} else {
			out.SecondaryModuleIDs = append(out.SecondaryModuleIDs, m.ID)
		}
	}
	return &out
}

func (f fakeGreenhouses) Delete(ctx context.Context, userID uuid.UUID, greenhouseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	gh, ok := f.greenhouses[greenhouseID]
	if !ok {
		return domain.NotFoundf("greenhouse %d does not exist", greenhouseID)
	}
	if gh.OwnerUserID != userID {
		return domain.Forbiddenf("greenhouse %d is not owned by you", greenhouseID)
	}
	f.removeGreenhouseLocked(greenhouseID)
	return nil
}

func (f *fakeState) removeGreenhouseLocked(greenhouseID int64) {
	for _, m := range f.modules {
		if m.GreenhouseID != nil && *m.GreenhouseID == greenhouseID {
			m.GreenhouseID = nil
			m.GreenhouseSlot = nil
		}
	}
	for _, u := range f.users {
		if u.FavoriteGreenhouseID != nil && *u.FavoriteGreenhouseID == greenhouseID {
			u.FavoriteGreenhouseID = nil
		}
	}
	delete(f.greenhouses, greenhouseID)
}

func (f fakeGreenhouses) SetMainModule(ctx context.Context, userID uuid.UUID, greenhouseID, moduleID int64) (*models.Greenhouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gh, ok := f.greenhouses[greenhouseID]
	if !ok {
		return nil, domain.NotFoundf("greenhouse %d does not exist", greenhouseID)
	}
	if gh.OwnerUserID != userID {
		return nil, domain.Forbiddenf("greenhouse %d is not owned by you", greenhouseID)
	}
	promoted, ok := f.modules[moduleID]
	if !ok || promoted.GreenhouseID == nil || *promoted.GreenhouseID != greenhouseID {
		return nil, domain.Validationf("module %d is not a member of greenhouse %d", moduleID, greenhouseID)
	}
	if !promoted.IsMain() {
		oldSlot := *promoted.GreenhouseSlot
		for _, m := range f.modules {
			if m.GreenhouseID != nil && *m.GreenhouseID == greenhouseID && m.IsMain() {
				s := oldSlot
				m.GreenhouseSlot = &s
				break
			}
		}
		zero := int16(0)
		promoted.GreenhouseSlot = &zero
	}
	return f.assembleLocked(gh), nil
}

// --- FavoriteRepository ---

func (f fakeFavorites) Get(ctx context.Context, userID uuid.UUID) (*models.Greenhouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.FavoriteGreenhouseID == nil {
		return nil, nil
	}
	gh, ok := f.greenhouses[*u.FavoriteGreenhouseID]
	if !ok {
		return nil, nil
	}
	return f.assembleLocked(gh), nil
}

func (f fakeFavorites) Set(ctx context.Context, userID uuid.UUID, greenhouseID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return domain.NotFoundf("user does not exist")
	}
	if greenhouseID == nil {
		u.FavoriteGreenhouseID = nil
		return nil
	}
	gh, ok := f.greenhouses[*greenhouseID]
	if !ok {
		return domain.NotFoundf("greenhouse %d does not exist", *greenhouseID)
	}
	if gh.OwnerUserID != userID {
		return domain.Forbiddenf("greenhouse %d is not owned by you", *greenhouseID)
	}
	id := *greenhouseID
	u.FavoriteGreenhouseID = &id
	return nil
}

// --- TelemetryRepository ---

func (f fakeTelemetry) History(ctx context.Context, moduleID int64, window time.Duration) ([]models.TelemetrySample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.modules[moduleID]; !ok {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}
	since := time.Now().Add(-window)
	out := make([]models.TelemetrySample, 0)
	for _, s := range f.samples[moduleID] {
		if !s.RecordedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fakeTelemetry) Latest(ctx context.Context, moduleID int64) (*models.TelemetrySample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	samples := f.samples[moduleID]
	if len(samples) == 0 {
		return nil, nil
	}
	s := samples[len(samples)-1]
	return &s, nil
}

func (f fakeTelemetry) Record(ctx context.Context, moduleID int64, temperature, humidity, light *float64) (*models.Module, error) {
	if temperature == nil && humidity == nil && light == nil {
		return nil, domain.Validationf("at least one reading is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[moduleID]
	if !ok {
		return nil, domain.NotFoundf("module %d does not exist", moduleID)
	}
	now := time.Now()
	if temperature != nil {
		m.LastTemperature = temperature
	}
	if humidity != nil {
		m.LastHumidity = humidity
	}
	if light != nil {
		m.LastLight = light
	}
	m.LastSeenAt = &now
	f.samples[moduleID] = append(f.samples[moduleID], models.TelemetrySample{
		ModuleID:    moduleID,
		RecordedAt:  now,
		Temperature: temperature,
		Humidity:    humidity,
		Light:       light,
	})
	return copyModule(m), nil
}

// --- UserRepository ---

func (f fakeUsers) Create(ctx context.Context, login, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Login == login {
			return nil, domain.Conflictf("login %q is already registered", login)
		}
	}
	u := &models.User{ID: uuid.New(), Login: login, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.users[u.ID] = u
	return u, nil
}

func (f fakeUsers) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeUsers) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}
