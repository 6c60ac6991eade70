package mqtt

import (
	"encoding/json"
	"errors"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"

	"github.com/google/uuid"
)

type HADiscoveryConfig struct {
	Device                 HADiscoveryDevice `json:"device"`
	StateTopic             string            `json:"state_topic,omitempty"`
	CommandTopic           string            `json:"command_topic,omitempty"`
	StateClass             string            `json:"state_class,omitempty"`
	DeviceClass            string            `json:"device_class,omitempty"`
	UnitOfMeasurement      string            `json:"unit_of_measurement,omitempty"`
	AvTopic                string            `json:"availability_topic,omitempty"`
	EntityCategory         string            `json:"entity_category,omitempty"`
	Name                   *string           `json:"name"`
	UniqueId               string            `json:"unique_id"`
	Platform               string            `json:"platform"`
	EnabledByDefault       *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn              string            `json:"payload_on,omitempty"`
	PayloadOff             string            `json:"payload_off,omitempty"`
	Icon                   string            `json:"icon,omitempty"`
	BrightnessStateTopic   string            `json:"brightness_state_topic,omitempty"`
	BrightnessCommandTopic string            `json:"brightness_command_topic,omitempty"`
	BrightnessScale        int               `json:"brightness_scale,omitempty"`
	OnCommandType          string            `json:"on_command_type,omitempty"`
	PositionTopic          string            `json:"position_topic,omitempty"`
	SetPositionTopic       string            `json:"set_position_topic,omitempty"`
	PayloadOpen            string            `json:"payload_open,omitempty"`
	PayloadClose           string            `json:"payload_close,omitempty"`
	PayloadStop            string            `json:"payload_stop,omitempty"`
	PayloadLock            string            `json:"payload_lock,omitempty"`
	PayloadUnlock          string            `json:"payload_unlock,omitempty"`
	StateLocked            string            `json:"state_locked,omitempty"`
	StateUnlocked          string            `json:"state_unlocked,omitempty"`
}

type HADiscoveryDevice struct {
	Id            []string `json:"identifiers"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Version       string   `json:"sw_version,omitempty"`
	Model         string   `json:"model,omitempty"`
	Name          string   `json:"name,omitempty"`
	ViaDevice     string   `json:"via_device,omitempty"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return c.DiscoveryTopic(sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func (c *MQTTClient) HADiscoveryAccessoryTopic(d domain.AccessoryDescriptor, nodeId string) string {
	return c.DiscoveryTopic(d.Component, nodeId, d.ObjectId())
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_SENSOR:
		topic = client.SensorStateTopic(sensor.Id)
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		topic = client.BinarySensorStateTopic(sensor.Id)
	}
	name := sensor.Name
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           client.BridgeStateTopic(),
		EntityCategory:    sensor.EntityCategory,
		Name:              &name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else if sensor.SensorType == domain.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

// AccessoryToHADiscoveryMessage builds the config of an accessory. The entity has no name of its own,
// Home Assistant shows the accessory device name.
func AccessoryToHADiscoveryMessage(client *MQTTClient, d domain.AccessoryDescriptor, bridge domain.Device) HADiscoveryConfig {
	objectId := d.ObjectId()
	disConfig := HADiscoveryConfig{
		Device:       device(domain.AccessoryDevice(d, bridge)),
		CommandTopic: client.EntityCommandTopic(d.Component, objectId),
		AvTopic:      client.BridgeStateTopic(),
		UniqueId:     d.UUID.String(),
		Platform:     "mqtt",
	}
	switch d.Component {
	case domain.COMPONENT_LIGHT:
		disConfig.StateTopic = client.EntityStateTopic(d.Component, objectId)
		disConfig.PayloadOn = domain.PAYLOAD_ON
		disConfig.PayloadOff = domain.PAYLOAD_OFF
		if d.Dimmable {
			disConfig.BrightnessStateTopic = client.BrightnessStateTopic(objectId)
			disConfig.BrightnessCommandTopic = client.BrightnessCommandTopic(objectId)
			disConfig.BrightnessScale = 100
			// turning on with a brightness sends only the brightness command
			disConfig.OnCommandType = "brightness"
		}
	case domain.COMPONENT_COVER:
		disConfig.PositionTopic = client.PositionStateTopic(objectId)
		disConfig.SetPositionTopic = client.PositionCommandTopic(objectId)
		disConfig.PayloadOpen = domain.PAYLOAD_OPEN
		disConfig.PayloadClose = domain.PAYLOAD_CLOSE
		disConfig.PayloadStop = domain.PAYLOAD_STOP
	case domain.COMPONENT_SWITCH:
		disConfig.StateTopic = client.EntityStateTopic(d.Component, objectId)
		disConfig.PayloadOn = domain.PAYLOAD_ON
		disConfig.PayloadOff = domain.PAYLOAD_OFF
	case domain.COMPONENT_LOCK:
		disConfig.StateTopic = client.EntityStateTopic(d.Component, objectId)
		disConfig.PayloadLock = domain.PAYLOAD_LOCK
		disConfig.PayloadUnlock = domain.PAYLOAD_UNLOCK
		disConfig.StateLocked = domain.PAYLOAD_LOCKED
		disConfig.StateUnlocked = domain.PAYLOAD_UNLOCKED
	}
	return disConfig
}

// ParseDiscoveryUniqueId extracts the accessory UUID of a retained config.
// Empty payloads (deleted configs) and non accessory configs are rejected.
func ParseDiscoveryUniqueId(payload []byte) (uuid.UUID, error) {
	if len(payload) == 0 {
		return uuid.Nil, errors.New("empty discovery config")
	}
	var cfg struct {
		UniqueId string `json:"unique_id"`
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(cfg.UniqueId)
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:            []string{d.Id},
		Manufacturer:  d.Manufacturer,
		Version:       d.Version,
		Model:         d.Model,
		Name:          d.Name,
		ViaDevice:     d.ViaDevice,
		SuggestedArea: d.SuggestedArea,
	}
}
