package accessory

import (
	"context"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"go.uber.org/zap"
)

type Shade struct {
	baseAccessory
}

func (s *Shade) UpdateState(device crestron.NormalizedDevice) {
	s.publishPosition(device.Position)
}

func (s *Shade) HandleCommand(ctx context.Context, cmd domain.AccessoryCommand) error {
	var position int
	switch cmd.Action {
	case domain.ACTION_SET_STATE:
		switch normalizePayload(cmd.Payload) {
		case domain.PAYLOAD_OPEN:
			position = crestron.LEVEL_MAX
		case domain.PAYLOAD_CLOSE:
			position = 0
		default:
			// the hub has no stop operation
			return s.unsupported(cmd)
		}
	case domain.ACTION_SET_POSITION:
		pct, err := parsePercentage(cmd.Payload)
		if err != nil {
			return err
		}
		position = crestron.ToRaw(pct)
	default:
		return s.unsupported(cmd)
	}

	err := s.hub.SetShadesState(ctx, []crestron.ShadeState{{ID: s.descriptor.CrestronID, Position: position}})
	if err != nil {
		return err
	}
	s.logger.Debug("shade: position set", zap.Int("position", position))
	s.publishPosition(position)
	return nil
}

func (s *Shade) publishPosition(position int) {
	s.publish(domain.CoverStateUpdateEvent{
		StateUpdateEventMixIn: s.mixIn(),
		Position:              crestron.ToPercentage(position),
	})
}
