package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks hook into the research workflow without modifying it:
//   - BeforeDrop: after the session entered executing, before any worker runs
//   - AfterTask: once per terminal worker task
//   - AfterDrop: after the drop summary was persisted
//   - OnStateChange: before a session state transition is persisted
//   - OnError: when an operation fails
//
// BeforeDrop and OnStateChange callbacks can veto the operation by returning
// an error. Errors from the other types are logged and otherwise ignored: the
// work they observe has already been persisted.
type CallbackType string

const (
	CallbackBeforeDrop    CallbackType = "before_drop"
	CallbackAfterTask     CallbackType = "after_task"
	CallbackAfterDrop     CallbackType = "after_drop"
	CallbackOnStateChange CallbackType = "on_state_change"
	CallbackOnError       CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect. Fields that do not
// apply to the callback type are nil or zero.
type CallbackContext struct {
	Ref          core.SessionRef
	CallbackType CallbackType
	Plan         *core.DropPlan
	Task         *core.WorkerTask
	Summary      *core.DropSummary
	From         core.SessionState
	To           core.SessionState
	Err          error
}

// Callback is an execution lifecycle hook. Implementations run synchronously
// on the engine's goroutine and should be fast.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterDrop, func(ctx context.Context, c *CallbackContext) error {
//	    log.Printf("drop %s finished: %s", c.Summary.DropID, c.Summary.Outcome)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager is a registry of callbacks by type. Callbacks run in
// registration order and the first error stops the chain. It is safe to
// register while drops of other sessions are running; a chain already in
// progress keeps the callbacks it started with.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t][:len(cm.callbacks[t]):len(cm.callbacks[t])], callback)
}

// ExecuteCallbacks runs all callbacks registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cbCtx *CallbackContext) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	chain := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	cbCtx.CallbackType = callbackType
	for _, cb := range chain {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	msg := fmt.Sprintf("[%s] session=%s", c.callbackType, cbCtx.Ref)
	switch {
	case cbCtx.Task != nil:
		msg += fmt.Sprintf(" task=%s mission=%s status=%s", cbCtx.Task.ID, cbCtx.Task.Mission.ID, cbCtx.Task.Status)
	case cbCtx.Summary != nil:
		msg += fmt.Sprintf(" drop=%s outcome=%s", cbCtx.Summary.DropID, cbCtx.Summary.Outcome)
	case cbCtx.Plan != nil:
		msg += fmt.Sprintf(" drop=%s missions=%d", cbCtx.Plan.DropID, len(cbCtx.Plan.Missions))
	case cbCtx.From != "" || cbCtx.To != "":
		msg += fmt.Sprintf(" %s -> %s", cbCtx.From, cbCtx.To)
	}
	if cbCtx.Err != nil {
		msg += " error=" + cbCtx.Err.Error()
	}
	c.logger(msg)
	return nil
}

// TransitionGuard vetoes session state transitions.
//
// Example:
//
//	guard := NewTransitionGuard(func(from, to core.SessionState) error {
//	    if to == core.StateExecuting && outsideBusinessHours() {
//	        return errors.New("drops only run during business hours")
//	    }
//	    return nil
//	})
type TransitionGuard struct {
	validator func(from, to core.SessionState) error
}

// NewTransitionGuard creates an OnStateChange callback from validator.
func NewTransitionGuard(validator func(from, to core.SessionState) error) *TransitionGuard {
	return &TransitionGuard{validator: validator}
}

// Type implements Callback.
func (c *TransitionGuard) Type() CallbackType { return CallbackOnStateChange }

// Execute implements Callback.
func (c *TransitionGuard) Execute(_ context.Context, cbCtx *CallbackContext) error {
	if c.validator == nil {
		return nil
	}
	return c.validator(cbCtx.From, cbCtx.To)
}
