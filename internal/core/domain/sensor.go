package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_HUB_CONNECTED   = "hub_connected"
	SENSOR_ID_HUB_VERSION     = "hub_version"
	SENSOR_ID_ACCESSORY_COUNT = "accessory_count"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           BridgeNodeId(baseTopic),
		Manufacturer: "ACasal",
		Model:        "Crestron2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Crestron %s", md5HashShort(baseTopic)),
	}
}

// BridgeNodeId groups every discovery config this bridge publishes.
func BridgeNodeId(baseTopic string) string {
	return fmt.Sprintf("crestron_bridge_%s", md5HashShort(baseTopic))
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// AccessoryDevice is the HA device of a single accessory, attached to the bridge.
func AccessoryDevice(d AccessoryDescriptor, bridge Device) Device {
	model := string(d.Kind)
	if d.SubType != "" {
		model = fmt.Sprintf("%s (%s)", d.Kind, d.SubType)
	}
	return Device{
		Id:            fmt.Sprintf("crestron_%s", d.ObjectId()),
		Name:          d.Name,
		Manufacturer:  "Crestron Electronics",
		Model:         model,
		ViaDevice:     bridge.Id,
		SuggestedArea: d.RoomName,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	idDevice := IdDevice(bridgeDevice)

	// Hub reachability, follows the poll failure threshold
	sensors = append(sensors, GenericSensor{
		Device:         idDevice,
		Id:             SENSOR_ID_HUB_CONNECTED,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Hub connected",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_HUB_CONNECTED),
	})

	sensors = append(sensors, GenericSensor{
		Device:           idDevice,
		Id:               SENSOR_ID_HUB_VERSION,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Hub version",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(bridgeDevice.Id, SENSOR_ID_HUB_VERSION),
	})

	sensors = append(sensors, GenericSensor{
		Device:         idDevice,
		Id:             SENSOR_ID_ACCESSORY_COUNT,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Accessories",
		StateClass:     STATE_CLASS_MEASUREMENT,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:lightbulb-group",
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_ACCESSORY_COUNT),
	})

	return sensors
}

// HubSensorsUpdateEvents reports the bridge view of the hub after a cycle.
func HubSensorsUpdateEvents(connected bool, version string, accessories int) []StateUpdateEvent {
	events := []StateUpdateEvent{
		BinarySensorUpdateEvent{
			StateUpdateEventMixIn: StateUpdateEventMixIn{Id: SENSOR_ID_HUB_CONNECTED},
			Value:                 connected,
		},
		FloatSensorUpdateEvent{
			StateUpdateEventMixIn: StateUpdateEventMixIn{Id: SENSOR_ID_ACCESSORY_COUNT},
			Value:                 float64(accessories),
			Decimals:              0,
		},
	}
	if version != "" {
		events = append(events, TextSensorUpdateEvent{
			StateUpdateEventMixIn: StateUpdateEventMixIn{Id: SENSOR_ID_HUB_VERSION},
			Value:                 version,
		})
	}
	return events
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
