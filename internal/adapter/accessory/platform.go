package accessory

import (
	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// Platform exposes accessories to Home Assistant by announcing them on the event stream.
// The MQTT actor turns the announcements into retained discovery configs.
type Platform struct {
	events           port.EventPublisher
	discoveryEnabled bool
	logger           *zap.Logger
}

func NewPlatform(events port.EventPublisher, discoveryEnabled bool, logger *zap.Logger) *Platform {
	return &Platform{
		events:           events,
		discoveryEnabled: discoveryEnabled,
		logger:           logger,
	}
}

func (p *Platform) RegisterAccessory(acc port.Accessory) error {
	if !p.discoveryEnabled {
		return nil
	}
	d := acc.Descriptor()
	p.logger.Debug("platform: register accessory", zap.String("uuid", d.UUID.String()), zap.String("object_id", d.ObjectId()))
	p.events.Publish(domain.AccessoryRegisteredEvent{Descriptor: d})
	return nil
}
