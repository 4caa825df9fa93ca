package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

var (
	_ Callback = (*FunctionCallback)(nil)
	_ Callback = (*LoggingCallback)(nil)
	_ Callback = (*TransitionGuard)(nil)
)

func TestCallbackManager_OrderAndVeto(t *testing.T) {
	cm := NewCallbackManager()
	var order []string
	record := func(name string, err error) Callback {
		return NewFunctionCallback(CallbackBeforeDrop, func(context.Context, *CallbackContext) error {
			order = append(order, name)
			return err
		})
	}
	cm.RegisterCallback(record("first", nil))
	cm.RegisterCallback(record("veto", errors.New("budget frozen")))
	cm.RegisterCallback(record("never", nil))

	cbCtx := &CallbackContext{Ref: ref}
	err := cm.ExecuteCallbacks(context.Background(), CallbackBeforeDrop, cbCtx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "before_drop callback: budget frozen")
	assert.Equal(t, []string{"first", "veto"}, order)
	assert.Equal(t, CallbackBeforeDrop, cbCtx.CallbackType)

	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackAfterDrop, &CallbackContext{}))
}

func TestCallbackManager_Nil(t *testing.T) {
	var cm *CallbackManager
	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackOnError, &CallbackContext{}))
}

func TestLoggingCallback(t *testing.T) {
	var lines []string
	log := func(msg string) { lines = append(lines, msg) }
	ctx := context.Background()

	require.NoError(t, NewLoggingCallback(CallbackAfterTask, log).Execute(ctx, &CallbackContext{
		Ref:  ref,
		Task: &core.WorkerTask{ID: "task-1", Mission: core.WorkerMission{ID: "m1"}, Status: core.TaskSucceeded},
	}))
	require.NoError(t, NewLoggingCallback(CallbackAfterDrop, log).Execute(ctx, &CallbackContext{
		Ref:     ref,
		Summary: &core.DropSummary{DropID: "drop-1", Outcome: core.OutcomePartial},
	}))
	require.NoError(t, NewLoggingCallback(CallbackOnError, log).Execute(ctx, &CallbackContext{
		Ref: ref,
		Err: errors.New("boom"),
	}))
	require.NoError(t, NewLoggingCallback(CallbackOnError, nil).Execute(ctx, &CallbackContext{Ref: ref}))

	assert.Equal(t, []string{
		"[after_task] session=acme/s1 task=task-1 mission=m1 status=" + string(core.TaskSucceeded),
		"[after_drop] session=acme/s1 drop=drop-1 outcome=" + string(core.OutcomePartial),
		"[on_error] session=acme/s1 error=boom",
	}, lines)
}

func TestTransitionGuard(t *testing.T) {
	guard := NewTransitionGuard(func(_, to core.SessionState) error {
		if to == core.StateExecuting {
			return errors.New("frozen")
		}
		return nil
	})

	assert.Equal(t, CallbackOnStateChange, guard.Type())
	assert.Error(t, guard.Execute(context.Background(), &CallbackContext{From: core.StatePlanApproved, To: core.StateExecuting}))
	assert.NoError(t, guard.Execute(context.Background(), &CallbackContext{From: core.StatePlanProposed, To: core.StatePlanApproved}))
	assert.NoError(t, NewTransitionGuard(nil).Execute(context.Background(), &CallbackContext{}))
}
