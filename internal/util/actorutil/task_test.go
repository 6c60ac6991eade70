package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type taskResult struct {
	value string
	err   error
}

func TestSafeBackgroundTask(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	defer as.Shutdown()

	results := make(chan taskResult, 4)
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case string:
			switch msg {
			case "ok":
				NewBackgroundTaskNoError(ctx, func() *taskResult {
					return &taskResult{value: "done"}
				}).PipeToAsync(ctx.Self())
			case "panic":
				NewBackgroundTaskNoError(ctx, func() *taskResult {
					panic(errors.New("boom"))
				}).Recover(func(err error) taskResult {
					return taskResult{err: err}
				}).PipeToAsync(ctx.Self())
			case "slow":
				NewBackgroundTaskNoError(ctx, func() *taskResult {
					time.Sleep(time.Second)
					return &taskResult{value: "late"}
				}).WithTimeout(50 * time.Millisecond).Recover(func(err error) taskResult {
					return taskResult{err: err}
				}).PipeToAsync(ctx.Self())
			}
		case taskResult:
			results <- msg
		}
	}))

	as.Root.Send(pid, "ok")
	select {
	case res := <-results:
		assert.Equal("done", res.value)
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	as.Root.Send(pid, "panic")
	select {
	case res := <-results:
		assert.Error(res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	as.Root.Send(pid, "slow")
	select {
	case res := <-results:
		assert.Error(res.err)
		assert.Empty(res.value)
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
}
