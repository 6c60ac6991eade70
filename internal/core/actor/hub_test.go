package actor

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/adapter/accessory"
	"github.com/berfenger/crestron2mqtt/internal/config"
	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/service"
	"github.com/berfenger/crestron2mqtt/internal/util"
	"github.com/berfenger/crestron2mqtt/internal/util/actorutil"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type hubFixture struct {
	hub        *crestron.TestHub
	cfg        config.Config
	es         *eventstream.EventStream
	client     *crestron.Client
	reconciler *service.Reconciler

	mu     sync.Mutex
	events []any
}

func newHubFixture(t *testing.T) *hubFixture {
	hub := crestron.NewTestHub()
	t.Cleanup(hub.Close)
	hub.SetCatalog(crestron.SampleCatalog())

	cfg := util.LoadTestConfig()
	cfg.Crestron.Host = hub.Host()
	cfg.Crestron.PollIntervalSeconds = 1

	logger := zap.NewNop()
	f := &hubFixture{
		hub:    hub,
		cfg:    cfg,
		es:     &eventstream.EventStream{},
		client: crestron.NewClient(hub.ClientConfig(), logger),
	}
	f.es.Subscribe(func(evt any) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, evt)
	})
	factory := accessory.NewFactory(f.client, f.es, logger)
	platform := accessory.NewPlatform(f.es, cfg.MQTT.HADiscoveryEnable, logger)
	f.reconciler = service.NewReconciler(f.client, factory, platform, service.ReconcilerConfig{
		EnabledTypes:     cfg.Crestron.EnabledTypes,
		FailureThreshold: cfg.Crestron.PollFailureThreshold,
	}, logger)
	return f
}

func (f *hubFixture) provider(logger *zap.Logger) HubActorProvider {
	return func(es *eventstream.EventStream) *HubActor {
		return NewHubActor(&f.cfg, f.reconciler, f.client, es, logger)
	}
}

func (f *hubFixture) registered() []domain.AccessoryDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessoryDescriptor
	for _, evt := range f.events {
		if reg, ok := evt.(domain.AccessoryRegisteredEvent); ok {
			out = append(out, reg.Descriptor)
		}
	}
	return out
}

func (f *hubFixture) hubConnected() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if evt, ok := f.events[i].(domain.BinarySensorUpdateEvent); ok && evt.Id == domain.SENSOR_ID_HUB_CONNECTED {
			return evt.Value, true
		}
	}
	return false, false
}

// accessories and health are polled from Eventually conditions, failures read as empty answers.
func accessories(root *actor.RootContext, pid *actor.PID) []domain.AccessoryEntry {
	res, err := root.RequestFuture(pid, domain.GetAccessoriesRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil
	}
	resp, _ := res.(domain.GetAccessoriesResponse)
	return resp.Accessories
}

func health(root *actor.RootContext, pid *actor.PID) domain.ActorHealthResponse {
	res, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return domain.ActorHealthResponse{}
	}
	resp, _ := res.(domain.ActorHealthResponse)
	return resp
}

func TestHubActorDiscoversAfterPlatformReady(t *testing.T) {

	assert := assert.New(t)

	f := newHubFixture(t)
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))

	// nothing happens before the platform restored its cache
	time.Sleep(200 * time.Millisecond)
	assert.Equal("waitingPlatform", health(root, pid).State)
	assert.Empty(accessories(root, pid))

	restored := domain.NewRestoredAccessories(domain.AccessoryUUID(crestron.DomainDevice, 201))
	root.Send(pid, domain.PlatformReadyEvent{Restored: restored})

	assert.Eventually(func() bool {
		return len(accessories(root, pid)) == 5
	}, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(func() bool {
		return health(root, pid).State == "running"
	}, 2*time.Second, 50*time.Millisecond)

	// the restored dimmer is not announced again
	registered := f.registered()
	assert.Len(registered, 4)
	for _, d := range registered {
		assert.NotEqual("device_201", d.ObjectId())
	}

	assert.Eventually(func() bool {
		connected, ok := f.hubConnected()
		return ok && connected
	}, 2*time.Second, 50*time.Millisecond)

	root.Stop(pid)
}

func TestHubActorDispatchesCommands(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	f := newHubFixture(t)
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))
	root.Send(pid, domain.PlatformReadyEvent{Restored: domain.NewRestoredAccessories()})
	require.Eventually(func() bool {
		return len(accessories(root, pid)) == 5
	}, 5*time.Second, 50*time.Millisecond)

	cmd := domain.AccessoryCommand{
		UUID:       domain.AccessoryUUID(crestron.DomainDevice, 201),
		Domain:     crestron.DomainDevice,
		CrestronID: 201,
		Action:     domain.ACTION_SET_STATE,
		Payload:    domain.PAYLOAD_OFF,
	}
	res, err := root.RequestFuture(pid, domain.AccessoryCommandRequest{Command: cmd}, 3*time.Second).Result()
	require.NoError(err)
	resp := res.(domain.AccessoryCommandResponse)
	assert.False(resp.HasResponseError())
	assert.Equal([]crestron.LightState{{ID: 201, Level: 0, Time: 0}}, f.hub.LightsRequests())

	cmd.UUID = domain.AccessoryUUID(crestron.DomainDevice, 999)
	res, err = root.RequestFuture(pid, domain.AccessoryCommandRequest{Command: cmd}, 3*time.Second).Result()
	require.NoError(err)
	assert.ErrorIs(res.(domain.AccessoryCommandResponse).GetResponseError(), service.ErrAccessoryNotFound)

	root.Stop(pid)
}

func TestHubActorRunsCommandsOfAnAccessoryInOrder(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	f := newHubFixture(t)
	// no poll in between the commands
	f.cfg.Crestron.PollIntervalSeconds = 60
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))
	root.Send(pid, domain.PlatformReadyEvent{Restored: domain.NewRestoredAccessories()})
	require.Eventually(func() bool {
		return len(accessories(root, pid)) == 5
	}, 5*time.Second, 50*time.Millisecond)

	cmd := domain.AccessoryCommand{
		UUID:       domain.AccessoryUUID(crestron.DomainDevice, 201),
		Domain:     crestron.DomainDevice,
		CrestronID: 201,
	}
	brightness, on := cmd, cmd
	brightness.Action, brightness.Payload = domain.ACTION_SET_BRIGHTNESS, "30"
	on.Action, on.Payload = domain.ACTION_SET_STATE, domain.PAYLOAD_ON

	// the sequence Home Assistant sends when dimming from the UI
	root.Send(pid, domain.AccessoryCommandRequest{Command: brightness})
	root.Send(pid, domain.AccessoryCommandRequest{Command: on})

	require.Eventually(func() bool {
		return len(f.hub.LightsRequests()) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal([]crestron.LightState{
		{ID: 201, Level: 19661, Time: 0},
		{ID: 201, Level: 19661, Time: 0},
	}, f.hub.LightsRequests())

	root.Stop(pid)
}

func TestHubActorRetriesDiscoveryAndReportsUnhealthy(t *testing.T) {

	assert := assert.New(t)

	f := newHubFixture(t)
	f.cfg.Crestron.PollFailureThreshold = 1
	f.reconciler = service.NewReconciler(f.client, accessory.NewFactory(f.client, f.es, zap.NewNop()),
		accessory.NewPlatform(f.es, true, zap.NewNop()), service.ReconcilerConfig{
			EnabledTypes:     f.cfg.Crestron.EnabledTypes,
			FailureThreshold: 1,
		}, zap.NewNop())
	f.hub.FailWith("/devices", http.StatusInternalServerError)

	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))
	root.Send(pid, domain.PlatformReadyEvent{Restored: domain.NewRestoredAccessories()})

	assert.Eventually(func() bool {
		h := health(root, pid)
		return !h.Healthy && h.State == "discovering"
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(f.reconciler.Discovered())

	f.hub.FailWith("/devices", 0)
	assert.Eventually(func() bool {
		h := health(root, pid)
		return h.Healthy && h.State == "running"
	}, 5*time.Second, 100*time.Millisecond)
	assert.Len(accessories(root, pid), 5)

	root.Stop(pid)
}

func TestHubActorResumesAfterRestart(t *testing.T) {

	assert := assert.New(t)

	f := newHubFixture(t)
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	root := as.Root

	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))
	root.Send(pid, domain.PlatformReadyEvent{Restored: domain.NewRestoredAccessories()})
	assert.Eventually(func() bool {
		return len(accessories(root, pid)) == 5
	}, 5*time.Second, 50*time.Millisecond)
	root.Stop(pid)

	// a new incarnation sharing the reconciler skips the platform wait
	pid = root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return f.provider(zap.NewNop())(f.es)
	}))
	assert.Eventually(func() bool {
		return health(root, pid).State == "running"
	}, 2*time.Second, 50*time.Millisecond)
	assert.Len(accessories(root, pid), 5)
	assert.Len(f.registered(), 5)

	root.Stop(pid)
}
