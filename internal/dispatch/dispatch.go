// Package dispatch resolves and executes the tool calls a run requests.
// Resolution tries, in order, registered external integrations, the
// caller's compiled function definitions, and the static registry; an
// unresolvable call produces a fixed placeholder output instead of an
// error. One output is returned per input call, in input order, and a
// failing call never aborts its siblings.
package dispatch

import (
	"context"
	"encoding/json"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/logging"
	"aide/internal/store"
)

const (
	// OutputUnknownFunction is returned when no resolution arm matches.
	OutputUnknownFunction = "This function doesn't exist."
	// OutputFunctionError is returned when a resolved call fails.
	OutputFunctionError = "An error occurred while processing the function."
)

// Dispatcher executes pending tool calls for an assistant.
type Dispatcher struct {
	integrations *IntegrationExecutor
	dynamic      *DynamicRegistry
	static       *StaticRegistry
	logger       logging.Logger
}

// New wires a Dispatcher. Any executor may be nil, in which case its
// resolution arm never matches.
func New(integrations *IntegrationExecutor, dynamic *DynamicRegistry, static *StaticRegistry, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		integrations: integrations,
		dynamic:      dynamic,
		static:       static,
		logger:       logging.OrNop(logger),
	}
}

type resolutionKind int

const (
	resolveIntegration resolutionKind = iota
	resolveDynamic
	resolveStatic
	resolveUnknown
)

type resolution struct {
	kind        resolutionKind
	integration store.Integration
	dynamic     *CompiledFunction
	static      StaticFunc
}

func (d *Dispatcher) resolve(ctx context.Context, assistant store.Assistant, name string) resolution {
	if d.integrations != nil {
		if integration, ok := d.integrations.Resolve(ctx, name); ok {
			return resolution{kind: resolveIntegration, integration: integration}
		}
	}
	if assistant.FunctionCallingMode == store.ModeCustom && d.dynamic != nil {
		if fn, ok := d.dynamic.Lookup(ctx, assistant.UserID, name); ok {
			return resolution{kind: resolveDynamic, dynamic: fn}
		}
	}
	if d.static != nil {
		if fn, ok := d.static.Lookup(name); ok {
			return resolution{kind: resolveStatic, static: fn}
		}
	}
	return resolution{kind: resolveUnknown}
}

// Dispatch executes every pending call and returns one output per call, in
// input order. Execution errors are absorbed into the call's own output.
func (d *Dispatcher) Dispatch(ctx context.Context, assistant store.Assistant, calls []assistants.ToolCall) []assistants.ToolOutput {
	outputs := make([]assistants.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, assistants.ToolOutput{
			ToolCallID: call.ID,
			Output:     d.dispatchOne(ctx, assistant, call),
		})
	}
	return outputs
}

func (d *Dispatcher) dispatchOne(ctx context.Context, assistant store.Assistant, call assistants.ToolCall) string {
	name := call.Function.Name
	args := call.Function.Arguments

	var (
		output string
		err    error
	)
	switch res := d.resolve(ctx, assistant, name); res.kind {
	case resolveIntegration:
		output, err = d.integrations.Execute(ctx, assistant.UserID, res.integration, args)
	case resolveDynamic:
		output, err = res.dynamic.Invoke(ctx, json.RawMessage(args))
	case resolveStatic:
		output, err = res.static(ctx, json.RawMessage(args))
	case resolveUnknown:
		return OutputUnknownFunction
	}
	if err != nil {
		toolErr := &aideerrors.ToolExecutionError{ToolCallID: call.ID, Function: name, Err: err}
		d.logger.Warn("tool call failed: %v", toolErr)
		return OutputFunctionError
	}
	return output
}
