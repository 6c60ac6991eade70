package actor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/mqtt"
	"github.com/berfenger/crestron2mqtt/internal/util"
	"github.com/berfenger/crestron2mqtt/internal/util/actorutil"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)
	assert.Equal(domain.ACTOR_ID_MQTT, resp.Id)

	result, err = context.RequestFuture(pid, domain.PublishStateUpdateRequest{
		Event: domain.LightStateUpdateEvent{
			StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "device_201"},
			On:                    true,
		},
	}, 2*time.Second).Result()
	require.NoError(err)
	assert.IsType(domain.PublishMessageResponse{}, result)

	context.Stop(pid)
}

func TestEventToMQTTMessages(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := NewMQTTActor(&cfg, &eventstream.EventStream{}, zap.NewNop())
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msgs := act.event2MQTTMessages(domain.LightStateUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "device_201"},
		On:                    true,
		Dimmable:              true,
		Brightness:            50,
	})
	assert.Equal([]rawMessage{
		{topic: "crestron/light/device_201/state", message: "on", retain: true},
		{topic: "crestron/light/device_201/brightness", message: "50", retain: true},
	}, msgs)

	msgs = act.event2MQTTMessages(domain.LightStateUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "device_202"},
	})
	assert.Len(msgs, 1)
	assert.Equal("off", msgs[0].message)

	msgs = act.event2MQTTMessages(domain.CoverStateUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "device_203"},
		Position:              25,
	})
	assert.Equal([]rawMessage{{topic: "crestron/cover/device_203/position", message: "25", retain: true}}, msgs)

	msgs = act.event2MQTTMessages(domain.LockStateUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "scene_201"},
		Locked:                true,
	})
	assert.Equal("crestron/lock/scene_201/state", msgs[0].topic)
	assert.Equal(domain.PAYLOAD_LOCKED, msgs[0].message)

	msgs = act.event2MQTTMessages(domain.SwitchStateUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: "scene_101"},
	})
	assert.Equal("crestron/switch/scene_101/state", msgs[0].topic)

	msgs = act.event2MQTTMessages(domain.FloatSensorUpdateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: domain.SENSOR_ID_ACCESSORY_COUNT},
		Value:                 3,
	})
	assert.Equal([]rawMessage{{topic: "crestron/sensor/accessory_count/state", message: "3"}}, msgs)

	msgs = act.event2MQTTMessages(domain.BridgeStateUpdateEvent{Value: false})
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, msgs[0].message)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
	go continuation(nil)
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func TestMQTTActorPublishesDiscoveryBurstInOrder(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()
	pub := &recordingPublisher{}

	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	context := as.Root

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		act := NewMQTTActor(&cfg, &eventstream.EventStream{}, zap.NewNop())
		act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)
		act.publisher = pub
		act.behavior.Become(act.DefaultReceive)
		return act
	}))

	const count = 20
	for i := 0; i < count; i++ {
		id := 201 + i
		context.Send(pid, onEventStreamMessage{message: domain.AccessoryRegisteredEvent{Descriptor: domain.AccessoryDescriptor{
			UUID:       domain.AccessoryUUID(crestron.DomainDevice, id),
			CrestronID: id,
			Domain:     crestron.DomainDevice,
			Kind:       domain.KIND_LIGHT,
			Component:  domain.COMPONENT_LIGHT,
			Name:       fmt.Sprintf("Light %d", id),
		}}})
		context.Send(pid, onEventStreamMessage{message: domain.LightStateUpdateEvent{
			StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: domain.ObjectId(crestron.DomainDevice, id)},
			On:                    true,
		}})
	}

	require.Eventually(func() bool {
		return len(pub.published()) == 2*count
	}, 3*time.Second, 20*time.Millisecond)

	// the actor still answers once the burst is out
	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)
	assert.True(result.(domain.ActorHealthResponse).Healthy)

	bridgeId := domain.BridgeDevice(cfg.MQTT.BaseTopic).Id
	topics := pub.published()
	for i := 0; i < count; i++ {
		objectId := domain.ObjectId(crestron.DomainDevice, 201+i)
		assert.Equal(fmt.Sprintf("homeassistant/light/%s/%s/config", bridgeId, objectId), topics[2*i])
		assert.Equal(fmt.Sprintf("crestron/light/%s/state", objectId), topics[2*i+1])
	}

	context.Stop(pid)
}
