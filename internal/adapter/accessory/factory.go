package accessory

import (
	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"go.uber.org/zap"
)

// Factory picks the adapter variant of a hub record.
type Factory struct {
	hub    port.HubCommander
	events port.EventPublisher
	logger *zap.Logger
}

func NewFactory(hub port.HubCommander, events port.EventPublisher, logger *zap.Logger) *Factory {
	return &Factory{
		hub:    hub,
		events: events,
		logger: logger,
	}
}

func (f *Factory) Create(device crestron.NormalizedDevice) (port.Accessory, bool) {
	descriptor := domain.AccessoryDescriptor{
		UUID:       domain.AccessoryUUID(device.Domain, device.ID),
		CrestronID: device.ID,
		Domain:     device.Domain,
		Name:       device.Name,
		RoomName:   device.RoomName,
		SubType:    device.SubType,
	}

	switch {
	case device.Domain == crestron.DomainDevice && device.Type == crestron.DEVICE_TYPE_DIMMER:
		descriptor.Kind = domain.KIND_LIGHT
		descriptor.Component = domain.COMPONENT_LIGHT
		descriptor.Dimmable = true
		return &Light{baseAccessory: f.base(descriptor), level: device.Level}, true
	case device.Domain == crestron.DomainDevice && device.Type == crestron.DEVICE_TYPE_SWITCH:
		descriptor.Kind = domain.KIND_LIGHT
		descriptor.Component = domain.COMPONENT_LIGHT
		return &Light{baseAccessory: f.base(descriptor), level: device.Level}, true
	case device.Domain == crestron.DomainDevice && device.Type == crestron.DEVICE_TYPE_SHADE:
		descriptor.Kind = domain.KIND_SHADE
		descriptor.Component = domain.COMPONENT_COVER
		return &Shade{baseAccessory: f.base(descriptor)}, true
	case device.Domain == crestron.DomainScene:
		descriptor.Kind = domain.KIND_SCENE
		descriptor.Component = domain.COMPONENT_SWITCH
		if device.SubType == crestron.SCENE_TYPE_GENERIC_IO {
			descriptor.Component = domain.COMPONENT_LOCK
		}
		return &Scene{baseAccessory: f.base(descriptor)}, true
	}
	return nil, false
}

func (f *Factory) base(descriptor domain.AccessoryDescriptor) baseAccessory {
	logger := f.logger.With(zap.String("accessory", descriptor.ObjectId()), zap.String("name", descriptor.Name))
	return baseAccessory{
		descriptor: descriptor,
		hub:        f.hub,
		events:     f.events,
		logger:     logger,
	}
}
