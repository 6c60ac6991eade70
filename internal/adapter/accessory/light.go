package accessory

import (
	"context"
	"sync"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"go.uber.org/zap"
)

// Light covers Dimmer and Switch loads. Only dimmers take brightness commands.
type Light struct {
	baseAccessory

	mu    sync.Mutex
	level int
}

func (l *Light) UpdateState(device crestron.NormalizedDevice) {
	l.setLevel(device.Level)
	l.publishLevel(device.Level)
}

func (l *Light) setLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// onLevel is the level an ON command sends. A dimmer that is already on keeps its level,
// so an ON following a brightness command does not undo it.
func (l *Light) onLevel(ctx context.Context) int {
	if !l.descriptor.Dimmable {
		return crestron.LEVEL_MAX
	}
	l.mu.Lock()
	level := l.level
	l.mu.Unlock()
	if level == 0 {
		// it may have been switched on at a keypad since the last poll
		device, err := l.hub.GetDevice(ctx, l.descriptor.CrestronID)
		if err != nil {
			l.logger.Debug("light: level read failed", zap.Error(err))
		} else if device.Level != nil {
			level = *device.Level
		}
	}
	if level > 0 {
		return level
	}
	return crestron.LEVEL_MAX
}

func (l *Light) HandleCommand(ctx context.Context, cmd domain.AccessoryCommand) error {
	var level int
	switch cmd.Action {
	case domain.ACTION_SET_STATE:
		switch normalizePayload(cmd.Payload) {
		case domain.PAYLOAD_ON:
			level = l.onLevel(ctx)
		case domain.PAYLOAD_OFF:
			level = 0
		default:
			return l.unsupported(cmd)
		}
	case domain.ACTION_SET_BRIGHTNESS:
		if !l.descriptor.Dimmable {
			return l.unsupported(cmd)
		}
		pct, err := parsePercentage(cmd.Payload)
		if err != nil {
			return err
		}
		level = crestron.ToRaw(pct)
	default:
		return l.unsupported(cmd)
	}

	err := l.hub.SetLightsState(ctx, []crestron.LightState{{ID: l.descriptor.CrestronID, Level: level, Time: 0}})
	if err != nil {
		return err
	}
	l.logger.Debug("light: level set", zap.Int("level", level))
	l.setLevel(level)
	l.publishLevel(level)
	return nil
}

func (l *Light) publishLevel(level int) {
	l.publish(domain.LightStateUpdateEvent{
		StateUpdateEventMixIn: l.mixIn(),
		On:                    level > 0,
		Dimmable:              l.descriptor.Dimmable,
		Brightness:            crestron.ToPercentage(level),
	})
}
