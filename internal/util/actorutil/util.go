package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand resolves the accessory addressed by an MQTT command topic.
// Payload validation is left to the accessory.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.AccessoryCommand, error) {
	var action domain.CommandAction
	switch cmd.Command {
	case mqtt.COMMAND_SET:
		action = domain.ACTION_SET_STATE
	case mqtt.COMMAND_BRIGHTNESS_SET:
		action = domain.ACTION_SET_BRIGHTNESS
	case mqtt.COMMAND_POSITION_SET:
		action = domain.ACTION_SET_POSITION
	default:
		return domain.AccessoryCommand{}, fmt.Errorf("command %q: %w", cmd.Command, domain.ErrUnsupportedCommand)
	}
	crestronDomain, id, err := domain.ParseObjectId(cmd.ObjectId)
	if err != nil {
		return domain.AccessoryCommand{}, err
	}
	return domain.AccessoryCommand{
		UUID:       domain.AccessoryUUID(crestronDomain, id),
		Domain:     crestronDomain,
		CrestronID: id,
		Action:     action,
		Payload:    cmd.Payload,
	}, nil
}
