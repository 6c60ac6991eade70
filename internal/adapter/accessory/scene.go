package accessory

import (
	"context"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"go.uber.org/zap"
)

// Scene recalls a hub scene. genericIO scenes are exposed as a lock that always reads locked.
type Scene struct {
	baseAccessory
}

func (s *Scene) isLock() bool {
	return s.descriptor.Component == domain.COMPONENT_LOCK
}

func (s *Scene) UpdateState(device crestron.NormalizedDevice) {
	s.publishStatus(device.Status)
}

func (s *Scene) HandleCommand(ctx context.Context, cmd domain.AccessoryCommand) error {
	if cmd.Action != domain.ACTION_SET_STATE {
		return s.unsupported(cmd)
	}
	switch normalizePayload(cmd.Payload) {
	case domain.PAYLOAD_ON, domain.PAYLOAD_OFF, domain.PAYLOAD_LOCK, domain.PAYLOAD_UNLOCK:
	default:
		return s.unsupported(cmd)
	}

	if err := s.hub.RecallScene(ctx, s.descriptor.CrestronID); err != nil {
		return err
	}
	s.logger.Debug("scene: recalled")

	// the hub only acknowledges the recall, read the status back
	scene, err := s.hub.GetScene(ctx, s.descriptor.CrestronID)
	if err != nil {
		s.logger.Warn("scene: status read failed after recall", zap.Error(err))
		s.publishStatus(true)
		return nil
	}
	s.publishStatus(scene.Status)
	return nil
}

func (s *Scene) publishStatus(status bool) {
	if s.isLock() {
		s.publish(domain.LockStateUpdateEvent{
			StateUpdateEventMixIn: s.mixIn(),
			Locked:                true,
		})
		return
	}
	s.publish(domain.SwitchStateUpdateEvent{
		StateUpdateEventMixIn: s.mixIn(),
		On:                    status,
	})
}
