// Package orchestrator drives a run from creation to its terminal status.
// It polls the remote API at a fixed interval, hands requires_action pauses
// to the dispatcher, and resolves the final assistant message on completion.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/logging"
	"aide/internal/store"
)

// API is the slice of the remote client the runner needs.
type API interface {
	RetrieveRun(ctx context.Context, threadID, runID string) (*assistants.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistants.ToolOutput) (*assistants.Run, error)
	ListMessages(ctx context.Context, threadID string, query assistants.ListMessagesQuery) (*assistants.MessageList, error)
}

// ToolDispatcher resolves and executes a run's pending tool calls.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, assistant store.Assistant, calls []assistants.ToolCall) []assistants.ToolOutput
}

// Config tunes the polling loop.
type Config struct {
	// PollInterval is the sleep between status checks. Defaults to 1s.
	PollInterval time.Duration
	// RunDeadline bounds the total wait for a terminal status. Defaults
	// to 5m. Exceeding it yields ErrRunTimeout.
	RunDeadline time.Duration
	// Metrics defaults to the shared package collectors.
	Metrics *Metrics
	Logger  logging.Logger
}

// Runner awaits run completion for one request at a time. Instances are
// stateless and safe for concurrent use across requests.
type Runner struct {
	api        API
	dispatcher ToolDispatcher
	interval   time.Duration
	deadline   time.Duration
	metrics    *Metrics
	logger     logging.Logger
}

// NewRunner wires a Runner over the remote API and the dispatcher.
func NewRunner(api API, dispatcher ToolDispatcher, cfg Config) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 5 * time.Minute
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	return &Runner{
		api:        api,
		dispatcher: dispatcher,
		interval:   cfg.PollInterval,
		deadline:   cfg.RunDeadline,
		metrics:    metrics,
		logger:     logging.OrNop(cfg.Logger),
	}
}

// Await polls the run until it reaches a terminal status and returns the
// assistant message it produced. A dispatch or submission failure ends the
// run immediately; nothing is retried.
func (r *Runner) Await(ctx context.Context, assistant store.Assistant, threadID, runID string) (assistants.Message, error) {
	start := time.Now()
	deadline := start.Add(r.deadline)
	r.metrics.IncActiveRuns()
	defer r.metrics.DecActiveRuns()

	for {
		run, err := r.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			r.metrics.IncRunFailure("retrieve")
			return assistants.Message{}, fmt.Errorf("retrieve run %s: %w", runID, err)
		}
		r.metrics.IncPollCycle()

		switch {
		case run.Status == assistants.RunStatusRequiresAction:
			if err := r.handleRequiredAction(ctx, assistant, run); err != nil {
				r.metrics.IncRunFailure("submit")
				r.logger.Error("run %s tool submission: %v", runID, err)
				return assistants.Message{}, fmt.Errorf("%w: %v", aideerrors.ErrRunFailed, err)
			}
		case run.Status == assistants.RunStatusCompleted:
			r.metrics.ObserveRunDuration(string(run.Status), time.Since(start))
			return r.finalMessage(ctx, threadID, runID)
		case run.Status.TerminalFailure():
			r.metrics.IncRunFailure(string(run.Status))
			r.metrics.ObserveRunDuration(string(run.Status), time.Since(start))
			if run.LastError != nil {
				r.logger.Error("run %s ended %s: %s (%s)", runID, run.Status, run.LastError.Message, run.LastError.Code)
			} else {
				r.logger.Error("run %s ended %s", runID, run.Status)
			}
			return assistants.Message{}, fmt.Errorf("run %s ended %s: %w", runID, run.Status, aideerrors.ErrRunFailed)
		}

		if time.Now().After(deadline) {
			r.metrics.IncRunFailure("timeout")
			return assistants.Message{}, fmt.Errorf("run %s exceeded %s: %w", runID, r.deadline, aideerrors.ErrRunTimeout)
		}
		select {
		case <-ctx.Done():
			return assistants.Message{}, ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

// handleRequiredAction dispatches the run's pending tool calls and submits
// the outputs as one batch. The freshly retrieved run is authoritative for
// the call list.
func (r *Runner) handleRequiredAction(ctx context.Context, assistant store.Assistant, run *assistants.Run) error {
	calls := run.PendingToolCalls()
	if len(calls) == 0 {
		return fmt.Errorf("run %s requires action with no tool calls", run.ID)
	}
	outputs := r.dispatcher.Dispatch(ctx, assistant, calls)
	r.metrics.IncToolDispatch()
	if _, err := r.api.SubmitToolOutputs(ctx, run.ThreadID, run.ID, outputs); err != nil {
		return fmt.Errorf("submit %d tool outputs: %w", len(outputs), err)
	}
	return nil
}

func (r *Runner) finalMessage(ctx context.Context, threadID, runID string) (assistants.Message, error) {
	list, err := r.api.ListMessages(ctx, threadID, assistants.ListMessagesQuery{})
	if err != nil {
		return assistants.Message{}, fmt.Errorf("list messages for run %s: %w", runID, err)
	}
	for _, msg := range list.Data {
		if msg.RunID == runID && msg.Role == assistants.RoleAssistant {
			return msg, nil
		}
	}
	return assistants.Message{}, aideerrors.ErrNoAssistantReply
}
