package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/store"
)

type scriptedAPI struct {
	statuses     []assistants.RunStatus
	pendingAt    map[int][]assistants.ToolCall
	messages     []assistants.Message
	retrieves    int
	submits      int
	submitted    []assistants.ToolOutput
	submitErr    error
	retrieveErr  error
	listMessages int
}

func (s *scriptedAPI) RetrieveRun(_ context.Context, threadID, runID string) (*assistants.Run, error) {
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	idx := s.retrieves
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.retrieves++
	run := &assistants.Run{ID: runID, ThreadID: threadID, Status: s.statuses[idx]}
	if calls, ok := s.pendingAt[idx]; ok {
		run.RequiredAction = &assistants.RequiredAction{
			Type:              "submit_tool_outputs",
			SubmitToolOutputs: &assistants.SubmitToolOutputsAction{ToolCalls: calls},
		}
	}
	return run, nil
}

func (s *scriptedAPI) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []assistants.ToolOutput) (*assistants.Run, error) {
	s.submits++
	s.submitted = outputs
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &assistants.Run{ID: runID, ThreadID: threadID, Status: assistants.RunStatusInProgress}, nil
}

func (s *scriptedAPI) ListMessages(_ context.Context, threadID string, _ assistants.ListMessagesQuery) (*assistants.MessageList, error) {
	s.listMessages++
	return &assistants.MessageList{Data: s.messages}, nil
}

type countingDispatcher struct {
	calls int
}

func (d *countingDispatcher) Dispatch(_ context.Context, _ store.Assistant, calls []assistants.ToolCall) []assistants.ToolOutput {
	d.calls++
	outputs := make([]assistants.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, assistants.ToolOutput{ToolCallID: call.ID, Output: "done"})
	}
	return outputs
}

func newTestRunner(api API, dispatcher ToolDispatcher, deadline time.Duration) *Runner {
	return NewRunner(api, dispatcher, Config{
		PollInterval: time.Millisecond,
		RunDeadline:  deadline,
		Metrics:      MustNewMetrics(prometheus.NewRegistry()),
	})
}

func TestAwaitSingleDispatchCycle(t *testing.T) {
	call := assistants.ToolCall{ID: "call_1", Type: "function"}
	call.Function.Name = "lookup"
	api := &scriptedAPI{
		statuses: []assistants.RunStatus{
			assistants.RunStatusQueued,
			assistants.RunStatusInProgress,
			assistants.RunStatusRequiresAction,
			assistants.RunStatusInProgress,
			assistants.RunStatusCompleted,
		},
		pendingAt: map[int][]assistants.ToolCall{2: {call}},
		messages: []assistants.Message{
			{ID: "msg_2", RunID: "run_1", Role: assistants.RoleAssistant},
			{ID: "msg_1", RunID: "run_0", Role: assistants.RoleAssistant},
		},
	}
	dispatcher := &countingDispatcher{}
	runner := newTestRunner(api, dispatcher, time.Minute)

	msg, err := runner.Await(context.Background(), store.Assistant{UserID: "u1"}, "thread_1", "run_1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if msg.ID != "msg_2" {
		t.Fatalf("final message = %q, want msg_2", msg.ID)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("dispatch cycles = %d, want 1", dispatcher.calls)
	}
	if api.submits != 1 {
		t.Fatalf("submits = %d, want 1", api.submits)
	}
	if len(api.submitted) != 1 || api.submitted[0].ToolCallID != "call_1" {
		t.Fatalf("submitted outputs = %+v", api.submitted)
	}
}

func TestAwaitTerminalFailure(t *testing.T) {
	api := &scriptedAPI{
		statuses: []assistants.RunStatus{assistants.RunStatusFailed},
	}
	runner := newTestRunner(api, &countingDispatcher{}, time.Minute)

	_, err := runner.Await(context.Background(), store.Assistant{}, "thread_1", "run_1")
	if !errors.Is(err, aideerrors.ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if api.retrieves != 1 {
		t.Fatalf("retrieves after terminal failure = %d, want 1", api.retrieves)
	}
	if api.listMessages != 0 {
		t.Fatalf("messages listed for a failed run")
	}
}

func TestAwaitNoAssistantReply(t *testing.T) {
	api := &scriptedAPI{
		statuses: []assistants.RunStatus{assistants.RunStatusCompleted},
		messages: []assistants.Message{
			{ID: "msg_1", RunID: "run_1", Role: assistants.RoleUser},
		},
	}
	runner := newTestRunner(api, &countingDispatcher{}, time.Minute)

	_, err := runner.Await(context.Background(), store.Assistant{}, "thread_1", "run_1")
	if !errors.Is(err, aideerrors.ErrNoAssistantReply) {
		t.Fatalf("expected ErrNoAssistantReply, got %v", err)
	}
}

func TestAwaitDeadline(t *testing.T) {
	api := &scriptedAPI{
		statuses: []assistants.RunStatus{assistants.RunStatusInProgress},
	}
	runner := newTestRunner(api, &countingDispatcher{}, 5*time.Millisecond)

	_, err := runner.Await(context.Background(), store.Assistant{}, "thread_1", "run_1")
	if !errors.Is(err, aideerrors.ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
}

func TestAwaitSubmitFailureEndsRun(t *testing.T) {
	call := assistants.ToolCall{ID: "call_1", Type: "function"}
	api := &scriptedAPI{
		statuses:  []assistants.RunStatus{assistants.RunStatusRequiresAction},
		pendingAt: map[int][]assistants.ToolCall{0: {call}},
		submitErr: errors.New("remote unavailable"),
	}
	runner := newTestRunner(api, &countingDispatcher{}, time.Minute)

	_, err := runner.Await(context.Background(), store.Assistant{}, "thread_1", "run_1")
	if !errors.Is(err, aideerrors.ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if api.submits != 1 {
		t.Fatalf("submits = %d, want exactly 1 (no retry)", api.submits)
	}
}

func TestAwaitContextCancellation(t *testing.T) {
	api := &scriptedAPI{
		statuses: []assistants.RunStatus{assistants.RunStatusInProgress},
	}
	runner := newTestRunner(api, &countingDispatcher{}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Await(ctx, store.Assistant{}, "thread_1", "run_1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
