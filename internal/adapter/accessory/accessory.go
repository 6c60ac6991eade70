package accessory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type baseAccessory struct {
	descriptor domain.AccessoryDescriptor
	hub        port.HubCommander
	events     port.EventPublisher
	logger     *zap.Logger
}

func (a *baseAccessory) UUID() uuid.UUID {
	return a.descriptor.UUID
}

func (a *baseAccessory) CrestronID() int {
	return a.descriptor.CrestronID
}

func (a *baseAccessory) Kind() domain.AccessoryKind {
	return a.descriptor.Kind
}

func (a *baseAccessory) Descriptor() domain.AccessoryDescriptor {
	return a.descriptor
}

func (a *baseAccessory) publish(evt domain.StateUpdateEvent) {
	a.events.Publish(evt)
}

func (a *baseAccessory) mixIn() domain.StateUpdateEventMixIn {
	return domain.StateUpdateEventMixIn{Id: a.descriptor.ObjectId()}
}

func (a *baseAccessory) unsupported(cmd domain.AccessoryCommand) error {
	a.logger.Warn("accessory: unsupported command", zap.String("action", string(cmd.Action)), zap.String("payload", cmd.Payload))
	return fmt.Errorf("%s %s %q: %w", a.descriptor.Kind, cmd.Action, cmd.Payload, domain.ErrUnsupportedCommand)
}

// parsePercentage accepts integer or decimal payloads in 0..100.
func parsePercentage(payload string) (int, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", payload, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("invalid percentage %q: out of range 0..100", payload)
	}
	return int(value + 0.5), nil
}

func normalizePayload(payload string) string {
	return strings.ToLower(strings.TrimSpace(payload))
}
