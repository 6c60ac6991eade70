package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/config"
	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"
	"github.com/berfenger/crestron2mqtt/internal/core/service"
	. "github.com/berfenger/crestron2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HubActor drives the reconciler: one discovery once the platform is ready, then a poll
// every interval. Cycles and commands run outside the actor, so health and snapshot
// requests are answered while the hub is slow.
type HubActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	stash       *Stash
	config      *config.Config
	eventStream *eventstream.EventStream
	reconciler  *service.Reconciler
	hubInfo     port.HubInfo
	restored    domain.RestoredAccessories
	inFlight    bool
	// commands per accessory, the head is running
	commands map[uuid.UUID][]queuedCommand

	logger *zap.Logger
}

type hubTick struct {
}

type hubCycleDone struct {
	discovery bool
	stats     service.CycleStats
	err       error
}

type queuedCommand struct {
	command domain.AccessoryCommand
	replyTo *actor.PID
}

type hubCommandDone struct {
	replyTo  *actor.PID
	response domain.AccessoryCommandResponse
}

func NewHubActor(config *config.Config, reconciler *service.Reconciler, hubInfo port.HubInfo, eventStream *eventstream.EventStream, logger *zap.Logger) *HubActor {
	act := &HubActor{
		config:      config,
		stash:       &Stash{},
		eventStream: eventStream,
		reconciler:  reconciler,
		hubInfo:     hubInfo,
		commands:    map[uuid.UUID][]queuedCommand{},
		logger:      ActorLogger(domain.ACTOR_ID_HUB, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(HubStartingState{
		actor: act,
	})
	return act
}

func (state *HubActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type HubStartingState struct {
	ActorState
	actor *HubActor
}

func (state HubStartingState) Name() string {
	return "starting"
}

func (state HubStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("hub@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		// a restarted actor keeps the accessories of the previous incarnation
		if state.actor.reconciler.Discovered() {
			state.actor.logger.Info("hub@starting already discovered, resuming polls")
			state.actor.Become(HubRunningState{actor: state.actor})
			state.actor.scheduleTick(ctx, 0)
		} else {
			state.actor.Become(HubWaitingPlatformState{actor: state.actor})
		}
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("hub@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting platform state, until the accessories of a previous run are known

type HubWaitingPlatformState struct {
	ActorState
	actor *HubActor
}

func (state HubWaitingPlatformState) Name() string {
	return "waitingPlatform"
}

func (state HubWaitingPlatformState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PlatformReadyEvent:
		state.actor.logger.Info("hub@waitingPlatform platform ready", zap.Int("restored", len(msg.Restored)))
		state.actor.restored = msg.Restored
		state.actor.Become(HubDiscoveringState{actor: state.actor})
		state.actor.startCycle(ctx, true)
	default:
		state.actor.commonReceive(ctx)
	}
}

// Discovering state, retried every poll interval until a catalog is fetched

type HubDiscoveringState struct {
	ActorState
	actor *HubActor
}

func (state HubDiscoveringState) Name() string {
	return "discovering"
}

func (state HubDiscoveringState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case hubTick:
		if state.actor.inFlight {
			state.actor.logger.Debug("hub@discovering tick skipped, discovery in flight")
			return
		}
		state.actor.startCycle(ctx, true)
	case hubCycleDone:
		state.actor.cycleDone(ctx, msg)
		if msg.err == nil {
			state.actor.Become(HubRunningState{actor: state.actor})
		}
		state.actor.scheduleTick(ctx, state.actor.config.Crestron.PollInterval())
	case domain.PlatformReadyEvent:
		state.actor.logger.Debug("hub@discovering platform ready ignored")
	default:
		state.actor.commonReceive(ctx)
	}
}

// Running state

type HubRunningState struct {
	ActorState
	actor *HubActor
}

func (state HubRunningState) Name() string {
	return "running"
}

func (state HubRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case hubTick:
		if state.actor.inFlight {
			state.actor.logger.Debug("hub@running tick skipped, poll in flight")
			return
		}
		state.actor.startCycle(ctx, false)
	case hubCycleDone:
		state.actor.cycleDone(ctx, msg)
		state.actor.scheduleTick(ctx, state.actor.config.Crestron.PollInterval())
	case domain.PlatformReadyEvent:
		// the MQTT actor restarted, discovery configs are retained so nothing to do
		state.actor.logger.Debug("hub@running platform ready ignored")
	default:
		state.actor.commonReceive(ctx)
	}
}

// commonReceive handles the requests every state answers the same way.
func (state *HubActor) commonReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("hub@" + state.StateName() + " ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HUB,
			Healthy: state.reconciler.Healthy(),
			State:   state.StateName(),
		})
	case domain.GetAccessoriesRequest:
		ForRequest(msg).Respond(ctx, domain.GetAccessoriesResponse{
			Accessories: state.reconciler.Snapshot(),
		})
	case domain.AccessoryCommandRequest:
		state.dispatchCommand(ctx, msg)
	case hubCommandDone:
		if msg.response.HasResponseError() {
			state.logger.Error("hub: command failed",
				zap.String("uuid", msg.response.Command.UUID.String()),
				zap.String("action", string(msg.response.Command.Action)),
				zap.String("payload", msg.response.Command.Payload),
				zap.Error(msg.response.GetResponseError()))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.response)
		}
		state.nextCommand(ctx, msg.response.Command.UUID)
	case hubCycleDone:
		// result of a cycle started by a previous incarnation
		state.inFlight = false
	case hubTick:
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("hub@"+state.StateName()+" unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HubActor) startCycle(ctx actor.Context, discovery bool) {
	state.inFlight = true
	timeout := state.config.Crestron.PollTimeout()
	reconciler := state.reconciler
	restored := state.restored

	NewBackgroundTaskNoError(ctx, func() *hubCycleDone {
		cctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var stats service.CycleStats
		var err error
		if discovery {
			stats, err = reconciler.DiscoverDevices(cctx, restored)
		} else {
			stats, err = reconciler.UpdateDevices(cctx)
		}
		return &hubCycleDone{discovery: discovery, stats: stats, err: err}
	}).WithTimeout(timeout + time.Second).Recover(func(err error) hubCycleDone {
		return hubCycleDone{discovery: discovery, err: err}
	}).PipeToAsync(ctx.Self())
}

func (state *HubActor) cycleDone(ctx actor.Context, msg hubCycleDone) {
	state.inFlight = false
	switch {
	case errors.Is(msg.err, service.ErrPollInProgress):
		state.logger.Debug("hub: cycle overlapped a running one")
	case msg.err != nil && msg.discovery:
		state.logger.Warn("hub: discovery failed, retrying", zap.Duration("in", state.config.Crestron.PollInterval()), zap.Error(msg.err))
	case msg.err != nil:
		state.logger.Debug("hub: poll failed", zap.Error(msg.err))
	}
	for _, evt := range domain.HubSensorsUpdateEvents(state.reconciler.Healthy(), state.hubInfo.Version(), state.reconciler.AccessoryCount()) {
		state.eventStream.Publish(evt)
	}
}

// dispatchCommand runs commands of one accessory in arrival order. Commands of different
// accessories run concurrently.
func (state *HubActor) dispatchCommand(ctx actor.Context, msg domain.AccessoryCommandRequest) {
	id := msg.Command.UUID
	state.commands[id] = append(state.commands[id], queuedCommand{
		command: msg.Command,
		replyTo: ForRequest(msg).ReplyTo(ctx),
	})
	if len(state.commands[id]) == 1 {
		state.runCommand(ctx, state.commands[id][0])
	} else {
		state.logger.Debug("hub: command queued", zap.String("uuid", id.String()), zap.Int("queued", len(state.commands[id])-1))
	}
}

func (state *HubActor) nextCommand(ctx actor.Context, id uuid.UUID) {
	queue := state.commands[id]
	if len(queue) <= 1 {
		delete(state.commands, id)
		return
	}
	state.commands[id] = queue[1:]
	state.runCommand(ctx, queue[1])
}

func (state *HubActor) runCommand(ctx actor.Context, queued queuedCommand) {
	replyTo := queued.replyTo
	cmd := queued.command
	timeout := state.config.Crestron.PollTimeout()
	reconciler := state.reconciler

	state.logger.Debug("hub: dispatch command", zap.String("uuid", cmd.UUID.String()), zap.String("action", string(cmd.Action)))
	NewBackgroundTaskNoError(ctx, func() *hubCommandDone {
		cctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := reconciler.Dispatch(cctx, cmd)
		return &hubCommandDone{
			replyTo: replyTo,
			response: domain.AccessoryCommandResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Command:            cmd,
			},
		}
	}).WithTimeout(timeout + time.Second).Recover(func(err error) hubCommandDone {
		return hubCommandDone{
			replyTo: replyTo,
			response: domain.AccessoryCommandResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Command:            cmd,
			},
		}
	}).PipeToAsync(ctx.Self())
}

func (state *HubActor) scheduleTick(ctx actor.Context, delay time.Duration) {
	if state.cancelTick != nil {
		state.cancelTick()
	}
	state.cancelTick = state.scheduler.SendOnce(delay, ctx.Self(), hubTick{})
}

func (state *HubActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
