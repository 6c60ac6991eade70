package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/config"
	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/mqtt"
	"github.com/berfenger/crestron2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	publisher      publisher
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	bridge         domain.Device
	restored       domain.RestoredAccessories
	outbox         []outgoingBatch
	pending        int
	logger         *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type onEventStreamMessage struct {
	message any
}

type restoreScanSubscribed struct {
}

type restoredConfig struct {
	id uuid.UUID
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
	qos     byte
}

// outgoingBatch is published as a whole before the next batch goes out.
type outgoingBatch struct {
	msgs    []rawMessage
	replyTo *actor.PID
}

// publisher is the part of the MQTT client the actor publishes through.
type publisher interface {
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		bridge:      domain.BridgeDevice(config.MQTT.BaseTopic),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		send := selfSender(ctx)

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			send(MQTTConnectionLost{Error: err})
		})
		state.publisher = state.client

		state.client.Connect(func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")
		send := selfSender(ctx)

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			send(onEventStreamMessage{message: value})
		})

		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				send(ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		state.logger.Debug("mqtt@starting subscribed")
		if !state.config.MQTT.HADiscoveryEnable {
			state.platformReady(ctx, domain.NewRestoredAccessories())
			return
		}
		state.startRestoreScan(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// startRestoreScan collects the retained discovery configs of a previous run. The scan ends
// once no config arrived for the restore window.
func (state *MQTTActor) startRestoreScan(ctx actor.Context) {
	send := selfSender(ctx)
	state.restored = domain.NewRestoredAccessories()
	state.behavior.Become(state.RestoringReceive)
	state.client.Subscribe(state.client.DiscoveryScanTopic(state.bridge.Id), 0, func(c pahomqtt.Client, m pahomqtt.Message) {
		id, err := mqtt.ParseDiscoveryUniqueId(m.Payload())
		if err == nil {
			send(restoredConfig{id: id})
		}
	}, func(err error) {
		if err != nil {
			send(MQTTConnectionLost{Error: err})
		} else {
			send(restoreScanSubscribed{})
		}
	}, 1*time.Second)
}

func (state *MQTTActor) RestoringReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case restoreScanSubscribed:
		state.logger.Debug("mqtt@restoring scan subscribed")
		ctx.SetReceiveTimeout(state.config.MQTT.RestoreWindow())
	case restoredConfig:
		state.restored[msg.id] = struct{}{}
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.client.Unsubscribe(state.client.DiscoveryScanTopic(state.bridge.Id), func(err error) {
			if err != nil {
				state.logger.Warn("mqtt@restoring could not unsubscribe scan topic", zap.Error(err))
			}
		}, 1*time.Second)
		state.logger.Info("mqtt@restoring restored accessories", zap.Int("count", len(state.restored)))
		state.platformReady(ctx, state.restored)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@restoring connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@restoring stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) platformReady(ctx actor.Context, restored domain.RestoredAccessories) {
	if ctx.Parent() != nil {
		ctx.Send(ctx.Parent(), domain.PlatformReadyEvent{Restored: restored})
	}
	state.behavior.Become(state.DefaultReceive)
	state.stash.UnstashAll(ctx)
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case onEventStreamMessage:
		switch evt := msg.message.(type) {
		case domain.StateUpdateEvent:
			state.publishStateUpdate(ctx, evt, false, nil)
		case domain.AccessoryRegisteredEvent:
			if err := state.publishDiscovery(ctx, nil, []domain.AccessoryDescriptor{evt.Descriptor}); err != nil {
				state.logger.Error("mqtt@default accessory discovery error", zap.Error(err))
			}
		}
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publish(ctx, []rawMessage{{topic: msg.Topic, message: msg.Payload, retain: msg.Retain}},
			actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishStateUpdateRequest:
		state.logger.Debug("mqtt@default PublishStateUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishStateUpdate(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.publishDiscovery(ctx, msg.Sensors, msg.Accessories)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case publishResult:
		state.publishDone(ctx, msg)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessages(event domain.StateUpdateEvent) []rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: strconv.FormatFloat(msg.Value, 'f', int(msg.Decimals), 64),
		}}
	case domain.BinarySensorUpdateEvent:
		return []rawMessage{{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}}
	case domain.TextSensorUpdateEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}}
	case domain.BridgeStateUpdateEvent:
		stringMessage := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return []rawMessage{{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}}
	case domain.LightStateUpdateEvent:
		msgs := []rawMessage{{
			topic:   state.client.EntityStateTopic(domain.COMPONENT_LIGHT, msg.Id),
			message: bool2MQTTPayload(msg.On),
			retain:  true,
		}}
		if msg.Dimmable {
			msgs = append(msgs, rawMessage{
				topic:   state.client.BrightnessStateTopic(msg.Id),
				message: strconv.Itoa(msg.Brightness),
				retain:  true,
			})
		}
		return msgs
	case domain.CoverStateUpdateEvent:
		return []rawMessage{{
			topic:   state.client.PositionStateTopic(msg.Id),
			message: strconv.Itoa(msg.Position),
			retain:  true,
		}}
	case domain.SwitchStateUpdateEvent:
		return []rawMessage{{
			topic:   state.client.EntityStateTopic(domain.COMPONENT_SWITCH, msg.Id),
			message: bool2MQTTPayload(msg.On),
			retain:  true,
		}}
	case domain.LockStateUpdateEvent:
		payload := domain.PAYLOAD_UNLOCKED
		if msg.Locked {
			payload = domain.PAYLOAD_LOCKED
		}
		return []rawMessage{{
			topic:   state.client.EntityStateTopic(domain.COMPONENT_LOCK, msg.Id),
			message: payload,
			retain:  true,
		}}
	default:
		return nil
	}
}

func (state *MQTTActor) publishStateUpdate(ctx actor.Context, event domain.StateUpdateEvent, retain bool, replyTo *actor.PID) {
	msgs := state.event2MQTTMessages(event)
	for i := range msgs {
		msgs[i].retain = msgs[i].retain || retain
		msgs[i].qos = 1
	}
	state.publish(ctx, msgs, replyTo)
}

// publish queues msgs behind the batches still in flight. Batches go out one at a time, so
// the broker sees them in arrival order.
func (state *MQTTActor) publish(ctx actor.Context, msgs []rawMessage, replyTo *actor.PID) {
	if len(msgs) == 0 {
		if replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
		return
	}
	state.outbox = append(state.outbox, outgoingBatch{msgs: msgs, replyTo: replyTo})
	state.flush(ctx)
}

func (state *MQTTActor) flush(ctx actor.Context) {
	if state.pending > 0 || len(state.outbox) == 0 {
		return
	}
	batch := state.outbox[0]
	state.outbox = state.outbox[1:]

	send := selfSender(ctx)
	state.pending = len(batch.msgs)
	for i, msg := range batch.msgs {
		state.logger.Sugar().Debugf("mqtt@publish: %s => %s", msg.topic, msg.message)
		var resultReplyTo *actor.PID
		if i == len(batch.msgs)-1 {
			resultReplyTo = batch.replyTo
		}
		state.publisher.Publish(msg.topic, msg.message, msg.qos, msg.retain, func(err error) {
			send(publishResult{ReplyTo: resultReplyTo, Error: err})
		}, 5*time.Second)
	}
}

func (state *MQTTActor) publishDone(ctx actor.Context, msg publishResult) {
	if msg.Error != nil {
		state.logger.Error("mqtt@publish could not publish a message", zap.Error(msg.Error))
	}
	if msg.ReplyTo != nil {
		ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
			ActorResponseMixIn: domain.ErrorResponse(msg.Error),
		})
	}
	if state.pending > 0 {
		state.pending--
	}
	state.flush(ctx)
}

func (state *MQTTActor) publishDiscovery(ctx actor.Context, sensors []domain.GenericSensor, accessories []domain.AccessoryDescriptor) error {
	var msgs []rawMessage
	for i := range sensors {
		payload, err := json.Marshal(mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i]))
		if err != nil {
			return err
		}
		msgs = append(msgs, rawMessage{topic: state.client.HADiscoverySensorTopic(sensors[i]), message: string(payload), retain: true})
	}
	for i := range accessories {
		payload, err := json.Marshal(mqtt.AccessoryToHADiscoveryMessage(state.client, accessories[i], state.bridge))
		if err != nil {
			return err
		}
		state.logger.Debug("mqtt: publish accessory discovery", zap.String("object_id", accessories[i].ObjectId()))
		msgs = append(msgs, rawMessage{topic: state.client.HADiscoveryAccessoryTopic(accessories[i], state.bridge.Id), message: string(payload), retain: true})
	}
	state.publish(ctx, msgs, nil)
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// selfSender delivers messages to the actor from client callbacks, which run on paho goroutines.
func selfSender(ctx actor.Context) func(any) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	return func(msg any) {
		root.Send(self, msg)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		bridge:      domain.BridgeDevice(config.MQTT.BaseTopic),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), domain.PlatformReadyEvent{Restored: domain.NewRestoredAccessories()})
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishStateUpdateRequest:
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
	case domain.PublishMessageRequest:
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{})
		}
	}
}
