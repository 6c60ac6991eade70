package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	mu      sync.Mutex
	devices []crestron.NormalizedDevice
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (c *fakeCatalog) FetchCatalog(ctx context.Context, enabledTypes []string) ([]crestron.NormalizedDevice, error) {
	if c.block != nil {
		c.entered <- struct{}{}
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return append([]crestron.NormalizedDevice(nil), c.devices...), nil
}

func (c *fakeCatalog) set(devices []crestron.NormalizedDevice, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = devices
	c.err = err
}

type fakeAccessory struct {
	device   crestron.NormalizedDevice
	updates  []crestron.NormalizedDevice
	commands []domain.AccessoryCommand
	panics   bool
}

func (a *fakeAccessory) UUID() uuid.UUID {
	return domain.AccessoryUUID(a.device.Domain, a.device.ID)
}

func (a *fakeAccessory) CrestronID() int {
	return a.device.ID
}

func (a *fakeAccessory) Kind() domain.AccessoryKind {
	return domain.KIND_LIGHT
}

func (a *fakeAccessory) Descriptor() domain.AccessoryDescriptor {
	return domain.AccessoryDescriptor{UUID: a.UUID(), CrestronID: a.device.ID, Domain: a.device.Domain, Name: a.device.Name}
}

func (a *fakeAccessory) UpdateState(device crestron.NormalizedDevice) {
	if a.panics {
		panic("broken accessory")
	}
	a.updates = append(a.updates, device)
}

func (a *fakeAccessory) HandleCommand(ctx context.Context, cmd domain.AccessoryCommand) error {
	a.commands = append(a.commands, cmd)
	return nil
}

type fakeFactory struct {
	created map[string]*fakeAccessory
	panicOn string
}

func (f *fakeFactory) Create(device crestron.NormalizedDevice) (port.Accessory, bool) {
	switch device.Type {
	case crestron.DEVICE_TYPE_DIMMER, crestron.DEVICE_TYPE_SWITCH, crestron.DEVICE_TYPE_SHADE, crestron.DEVICE_TYPE_SCENE:
	default:
		return nil, false
	}
	acc := &fakeAccessory{device: device, panics: device.Key() == f.panicOn}
	f.created[device.Key()] = acc
	return acc, true
}

type fakePlatform struct {
	registered []uuid.UUID
	err        error
}

func (p *fakePlatform) RegisterAccessory(acc port.Accessory) error {
	if p.err != nil {
		return p.err
	}
	p.registered = append(p.registered, acc.UUID())
	return nil
}

func sampleDevices() []crestron.NormalizedDevice {
	return []crestron.NormalizedDevice{
		{ID: 201, Domain: crestron.DomainDevice, Name: "Living Room Ceiling", Type: crestron.DEVICE_TYPE_DIMMER, Level: 32768, Status: true},
		{ID: 203, Domain: crestron.DomainDevice, Name: "Living Room Blind", Type: crestron.DEVICE_TYPE_SHADE, Position: 65535},
		{ID: 204, Domain: crestron.DomainDevice, Name: "Living Room Thermostat", Type: "Thermostat"},
		{ID: 201, Domain: crestron.DomainScene, Name: "Kitchen Front Door", Type: crestron.DEVICE_TYPE_SCENE, SubType: crestron.SCENE_TYPE_GENERIC_IO},
	}
}

func newTestReconciler(catalog port.CatalogSource) (*Reconciler, *fakeFactory, *fakePlatform) {
	factory := &fakeFactory{created: map[string]*fakeAccessory{}}
	platform := &fakePlatform{}
	r := NewReconciler(catalog, factory, platform, ReconcilerConfig{FailureThreshold: 3}, zap.NewNop())
	return r, factory, platform
}

func TestDiscoverRegistersSupportedOnce(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, factory, platform := newTestReconciler(&fakeCatalog{devices: sampleDevices()})
	assert.False(r.Discovered())

	stats, err := r.DiscoverDevices(context.Background(), domain.NewRestoredAccessories())
	require.NoError(err)
	assert.True(r.Discovered())
	assert.Equal(4, stats.Entries)
	assert.Equal(3, stats.Created)
	assert.Equal(1, stats.Unsupported)
	assert.Len(platform.registered, 3)
	assert.Equal(3, r.AccessoryCount())

	// device 201 and scene 201 share the id but not the accessory
	assert.Contains(platform.registered, domain.AccessoryUUID(crestron.DomainDevice, 201))
	assert.Contains(platform.registered, domain.AccessoryUUID(crestron.DomainScene, 201))
	assert.NotContains(platform.registered, domain.AccessoryUUID(crestron.DomainDevice, 204))

	// initial state pushed to the adapter
	require.Len(factory.created["device:201"].updates, 1)
	assert.Equal(32768, factory.created["device:201"].updates[0].Level)

	for _, e := range r.Snapshot() {
		assert.Equal(domain.ENTRY_STATE_REGISTERED, e.State)
	}
}

func TestDiscoverReusesRestoredAccessories(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, factory, platform := newTestReconciler(&fakeCatalog{devices: sampleDevices()})
	restored := domain.NewRestoredAccessories(
		domain.AccessoryUUID(crestron.DomainDevice, 201),
		domain.AccessoryUUID(crestron.DomainDevice, 203),
	)

	stats, err := r.DiscoverDevices(context.Background(), restored)
	require.NoError(err)
	assert.Equal(2, stats.Restored)
	assert.Equal(1, stats.Created)
	assert.Equal([]uuid.UUID{domain.AccessoryUUID(crestron.DomainScene, 201)}, platform.registered)
	assert.Equal(3, r.AccessoryCount())
	assert.Len(factory.created["device:203"].updates, 1)
}

func TestUpdateRefreshesWithoutDuplicates(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: sampleDevices()}
	r, factory, platform := newTestReconciler(catalog)
	_, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)

	devices := sampleDevices()
	devices[0].Level = 0
	devices[0].Status = false
	catalog.set(devices, nil)

	stats, err := r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(3, stats.Updated)
	assert.Equal(0, stats.Created)
	assert.Len(platform.registered, 3)
	assert.Equal(3, r.AccessoryCount())

	updates := factory.created["device:201"].updates
	require.Len(updates, 2)
	assert.Equal(0, updates[1].Level)

	for _, e := range r.Snapshot() {
		assert.Equal(domain.ENTRY_STATE_SYNCED, e.State)
	}
}

func TestUpdateRegistersNewDevice(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: sampleDevices()[:1]}
	r, _, platform := newTestReconciler(catalog)
	_, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)
	require.Len(platform.registered, 1)

	catalog.set(sampleDevices(), nil)
	stats, err := r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(1, stats.Updated)
	assert.Equal(2, stats.Created)
	assert.Len(platform.registered, 3)

	// a second poll registers nothing
	_, err = r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Len(platform.registered, 3)
}

func TestUpdateHonorsRestoredCacheFromDiscovery(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: nil}
	r, _, platform := newTestReconciler(catalog)
	restored := domain.NewRestoredAccessories(domain.AccessoryUUID(crestron.DomainDevice, 203))
	_, err := r.DiscoverDevices(context.Background(), restored)
	require.NoError(err)

	catalog.set(sampleDevices()[1:2], nil)
	stats, err := r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(1, stats.Restored)
	assert.Empty(platform.registered)
	assert.Equal(1, r.AccessoryCount())
}

func TestMissingEntriesBecomeStale(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: sampleDevices()}
	r, _, _ := newTestReconciler(catalog)
	_, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)

	catalog.set(sampleDevices()[:1], nil)
	stats, err := r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(2, stats.Stale)
	assert.Equal(3, r.AccessoryCount(), "stale entries are not removed")

	states := map[uuid.UUID]domain.EntryState{}
	for _, e := range r.Snapshot() {
		states[e.UUID] = e.State
	}
	assert.Equal(domain.ENTRY_STATE_SYNCED, states[domain.AccessoryUUID(crestron.DomainDevice, 201)])
	assert.Equal(domain.ENTRY_STATE_STALE, states[domain.AccessoryUUID(crestron.DomainDevice, 203)])
	assert.Equal(domain.ENTRY_STATE_STALE, states[domain.AccessoryUUID(crestron.DomainScene, 201)])

	// already stale entries are reported once
	stats, err = r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(0, stats.Stale)

	// and come back when the hub lists them again
	catalog.set(sampleDevices(), nil)
	_, err = r.UpdateDevices(context.Background())
	require.NoError(err)
	for _, e := range r.Snapshot() {
		assert.Equal(domain.ENTRY_STATE_SYNCED, e.State)
	}
}

func TestFetchFailureKeepsState(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: sampleDevices()}
	r, _, _ := newTestReconciler(catalog)
	_, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)
	before := r.Snapshot()

	hubErr := &crestron.CatalogError{Resource: "devices", Err: errors.New("boom")}
	catalog.set(nil, hubErr)

	for i := 1; i <= 3; i++ {
		_, err = r.UpdateDevices(context.Background())
		require.Error(err)
		var catalogErr *crestron.CatalogError
		assert.ErrorAs(err, &catalogErr)
		assert.Equal(i, r.ConsecutiveFailures())
		assert.Equal(i < 3, r.Healthy())
	}
	assert.Equal(before, r.Snapshot())

	catalog.set(sampleDevices(), nil)
	_, err = r.UpdateDevices(context.Background())
	require.NoError(err)
	assert.Equal(0, r.ConsecutiveFailures())
	assert.True(r.Healthy())
}

func TestDeviceFailureSkipsOnlyThatDevice(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{devices: sampleDevices()}
	r, factory, _ := newTestReconciler(catalog)
	factory.panicOn = "device:203"

	stats, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)
	assert.Equal(1, stats.Failed)
	assert.Len(factory.created["device:201"].updates, 1)
	assert.Len(factory.created["scene:201"].updates, 1)
}

func TestRegistrationFailureSkipsDevice(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, _, platform := newTestReconciler(&fakeCatalog{devices: sampleDevices()})
	platform.err = errors.New("broker down")

	stats, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)
	assert.Equal(3, stats.Failed)
	assert.Equal(0, r.AccessoryCount())
}

func TestOverlappingCycleIsRejected(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	catalog := &fakeCatalog{
		devices: sampleDevices(),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r, _, _ := newTestReconciler(catalog)

	done := make(chan error, 1)
	go func() {
		_, err := r.UpdateDevices(context.Background())
		done <- err
	}()

	select {
	case <-catalog.entered:
	case <-time.After(2 * time.Second):
		require.Fail("cycle did not start")
	}

	_, err := r.UpdateDevices(context.Background())
	assert.ErrorIs(err, ErrPollInProgress)
	_, err = r.DiscoverDevices(context.Background(), nil)
	assert.ErrorIs(err, ErrPollInProgress)

	close(catalog.block)
	require.NoError(<-done)
}

func TestDispatch(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, factory, _ := newTestReconciler(&fakeCatalog{devices: sampleDevices()})
	_, err := r.DiscoverDevices(context.Background(), nil)
	require.NoError(err)

	cmd := domain.AccessoryCommand{
		UUID:       domain.AccessoryUUID(crestron.DomainDevice, 201),
		Domain:     crestron.DomainDevice,
		CrestronID: 201,
		Action:     domain.ACTION_SET_BRIGHTNESS,
		Payload:    "50",
	}
	require.NoError(r.Dispatch(context.Background(), cmd))
	assert.Equal([]domain.AccessoryCommand{cmd}, factory.created["device:201"].commands)

	cmd.UUID = domain.AccessoryUUID(crestron.DomainDevice, 999)
	assert.ErrorIs(r.Dispatch(context.Background(), cmd), ErrAccessoryNotFound)
}

func TestFailedDiscoveryIsNotDiscovered(t *testing.T) {
	assert := assert.New(t)

	r, _, _ := newTestReconciler(&fakeCatalog{err: errors.New("unreachable")})
	_, err := r.DiscoverDevices(context.Background(), nil)
	assert.Error(err)
	assert.False(r.Discovered())
	assert.Equal(0, r.AccessoryCount())
}
