package assistants

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aide/internal/aideerrors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	return client, srv
}

func TestCreateThreadSeedsMessages(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if beta := r.Header.Get("OpenAI-Beta"); beta != "assistants=v2" {
			t.Errorf("OpenAI-Beta = %q", beta)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Thread{ID: "thread_1"})
	}))

	thread, err := client.CreateThread(context.Background(), []SeedMessage{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.ID != "thread_1" {
		t.Errorf("thread ID = %q", thread.ID)
	}
	messages, ok := got["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("seed messages not sent: %v", got)
	}
}

func TestRetrieveRunDecodesRequiredAction(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/thread_1/runs/run_1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "run_1",
			"thread_id": "thread_1",
			"status": "requires_action",
			"required_action": {
				"type": "submit_tool_outputs",
				"submit_tool_outputs": {
					"tool_calls": [
						{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}
					]
				}
			}
		}`))
	}))

	run, err := client.RetrieveRun(context.Background(), "thread_1", "run_1")
	if err != nil {
		t.Fatalf("RetrieveRun: %v", err)
	}
	if run.Status != RunStatusRequiresAction {
		t.Errorf("status = %q", run.Status)
	}
	calls := run.PendingToolCalls()
	if len(calls) != 1 || calls[0].ID != "call_1" || calls[0].Function.Name != "lookup" {
		t.Errorf("tool calls = %+v", calls)
	}
}

func TestSubmitToolOutputsPayload(t *testing.T) {
	var payload struct {
		ToolOutputs []ToolOutput `json:"tool_outputs"`
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/t/runs/r/submit_tool_outputs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(Run{ID: "r", Status: RunStatusQueued})
	}))

	outputs := []ToolOutput{{ToolCallID: "call_1", Output: `{"ok":true}`}}
	if _, err := client.SubmitToolOutputs(context.Background(), "t", "r", outputs); err != nil {
		t.Fatalf("SubmitToolOutputs: %v", err)
	}
	if len(payload.ToolOutputs) != 1 || payload.ToolOutputs[0].ToolCallID != "call_1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestAPIErrorSurfacesAsRemoteError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "No thread found", "type": "invalid_request_error"}}`))
	}))

	_, err := client.RetrieveRun(context.Background(), "missing", "run_1")
	if !aideerrors.IsRemote(err) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	var remote *aideerrors.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusNotFound || remote.Message != "No thread found" {
		t.Errorf("remote = %+v", remote)
	}
}

func TestListMessagesQueryEncoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("order") != "desc" || q.Get("limit") != "20" || q.Get("after") != "msg_5" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(MessageList{FirstID: "msg_1", LastID: "msg_5", HasMore: true})
	}))

	list, err := client.ListMessages(context.Background(), "t", ListMessagesQuery{Order: "desc", Limit: 20, After: "msg_5"})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if !list.HasMore || list.FirstID != "msg_1" {
		t.Errorf("list = %+v", list)
	}
}

func TestParameterSchemaPreservesPropertyOrder(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"city": {"type": "string"},
			"date": {"type": "string"},
			"unit": {"type": "string"}
		},
		"required": ["city"]
	}`
	var schema ParameterSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"city", "date", "unit"}
	got := schema.OrderedProperties()
	if len(got) != len(want) {
		t.Fatalf("OrderedProperties = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrderedProperties = %v, want %v", got, want)
		}
	}
}
