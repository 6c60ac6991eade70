package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"

	COMMAND_SET            = "set"
	COMMAND_BRIGHTNESS_SET = "brightness/set"
	COMMAND_POSITION_SET   = "position/set"
)

var (
	ErrNotACommand = errors.New("not a command topic")
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("crestron2mqtt_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:         mqtt.NewClient(opts),
		cfg:            cfg.MQTT,
		commandRegexp:  commandExtractor(cfg.MQTT.BaseTopic),
		discoveryTopic: cfg.MQTT.HADiscoveryTopic,
	}
}

type MQTTClient struct {
	client         mqtt.Client
	cfg            config.MQTTConfig
	commandRegexp  *regexp.Regexp
	discoveryTopic string
}

// ParsedMQTTCommand is a command addressed to an accessory, e.g. crestron/light/device_201/brightness/set.
type ParsedMQTTCommand struct {
	Component string
	ObjectId  string
	Command   string
	Payload   string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) EntityStateTopic(component, objectId string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), component, objectId)
}

func (c *MQTTClient) EntityCommandTopic(component, objectId string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseTopic(), component, objectId, COMMAND_SET)
}

func (c *MQTTClient) BrightnessStateTopic(objectId string) string {
	return fmt.Sprintf("%s/light/%s/brightness", c.baseTopic(), objectId)
}

func (c *MQTTClient) BrightnessCommandTopic(objectId string) string {
	return fmt.Sprintf("%s/light/%s/%s", c.baseTopic(), objectId, COMMAND_BRIGHTNESS_SET)
}

func (c *MQTTClient) PositionStateTopic(objectId string) string {
	return fmt.Sprintf("%s/cover/%s/position", c.baseTopic(), objectId)
}

func (c *MQTTClient) PositionCommandTopic(objectId string) string {
	return fmt.Sprintf("%s/cover/%s/%s", c.baseTopic(), objectId, COMMAND_POSITION_SET)
}

// DiscoveryTopic is where the retained Home Assistant config of an entity lives.
func (c *MQTTClient) DiscoveryTopic(component, nodeId, objectId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.discoveryTopic, component, nodeId, objectId)
}

// DiscoveryScanTopic matches every config published for nodeId.
func (c *MQTTClient) DiscoveryScanTopic(nodeId string) string {
	return fmt.Sprintf("%s/+/%s/+/config", c.discoveryTopic, nodeId)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return parseCommand(c.commandRegexp, msg.Topic(), string(msg.Payload()))
}

func parseCommand(r *regexp.Regexp, topic string, payload string) (*ParsedMQTTCommand, error) {
	matches := r.FindStringSubmatch(topic)
	if len(matches) != 4 {
		return nil, ErrNotACommand
	}
	cmd := &ParsedMQTTCommand{
		Component: matches[1],
		ObjectId:  matches[2],
		Command:   matches[3],
		Payload:   payload,
	}
	switch {
	case cmd.Command == COMMAND_BRIGHTNESS_SET && cmd.Component != "light":
		return nil, fmt.Errorf("brightness command on %s: %w", cmd.Component, ErrNotACommand)
	case cmd.Command == COMMAND_POSITION_SET && cmd.Component != "cover":
		return nil, fmt.Errorf("position command on %s: %w", cmd.Component, ErrNotACommand)
	}
	return cmd, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/#", c.baseTopic())
}

func commandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/(light|cover|switch|lock)/((?:device|scene)_[0-9]+)/(set|brightness/set|position/set)$",
		regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
