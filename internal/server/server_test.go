package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aide/internal/assistants"
	"aide/internal/auth"
	"aide/internal/chat"
	"aide/internal/dispatch"
	"aide/internal/store"
	"aide/internal/usage"
)

// fakeRemote stands in for the remote API on both the handler and the chat
// service side.
type fakeRemote struct {
	nextAssistantID int
	deleted         []string
	replyText       string
	fileContent     string
	fileIDs         []string
}

func (f *fakeRemote) CreateAssistant(_ context.Context, req assistants.CreateAssistantRequest) (*assistants.Assistant, error) {
	f.nextAssistantID++
	return &assistants.Assistant{ID: "asst_" + strings.Repeat("x", f.nextAssistantID), Model: req.Model, Name: req.Name, Tools: req.Tools}, nil
}

func (f *fakeRemote) RetrieveAssistant(_ context.Context, assistantID string) (*assistants.Assistant, error) {
	a := &assistants.Assistant{ID: assistantID, Model: "gpt-4"}
	if len(f.fileIDs) > 0 {
		a.ToolResources = &assistants.ToolResources{
			CodeInterpreter: &assistants.CodeInterpreterResources{FileIDs: f.fileIDs},
		}
	}
	return a, nil
}

func (f *fakeRemote) UpdateAssistant(_ context.Context, assistantID string, req assistants.UpdateAssistantRequest) (*assistants.Assistant, error) {
	updated := &assistants.Assistant{ID: assistantID, Model: "gpt-4", Name: req.Name}
	if req.Model != "" {
		updated.Model = req.Model
	}
	if req.Tools != nil {
		updated.Tools = *req.Tools
	}
	return updated, nil
}

func (f *fakeRemote) DeleteAssistant(_ context.Context, assistantID string) error {
	f.deleted = append(f.deleted, assistantID)
	return nil
}

func (f *fakeRemote) RetrieveFile(_ context.Context, fileID string) (*assistants.File, error) {
	return &assistants.File{ID: fileID, Filename: "report.csv", Bytes: int64(len(f.fileContent))}, nil
}

func (f *fakeRemote) FileContent(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.fileContent)), nil
}

func (f *fakeRemote) CreateThread(_ context.Context, _ []assistants.SeedMessage) (*assistants.Thread, error) {
	return &assistants.Thread{ID: "thread_1"}, nil
}

func (f *fakeRemote) CreateMessage(_ context.Context, _, _, _ string) (*assistants.Message, error) {
	return &assistants.Message{ID: "msg_user"}, nil
}

func (f *fakeRemote) DeleteMessage(context.Context, string, string) error { return nil }

func (f *fakeRemote) ListMessages(_ context.Context, _ string, _ assistants.ListMessagesQuery) (*assistants.MessageList, error) {
	return &assistants.MessageList{
		Data: []assistants.Message{
			{ID: "msg_2", CreatedAt: 20, Role: assistants.RoleAssistant, RunID: "run_1", Content: []assistants.Content{
				{Type: "text", Text: &assistants.TextContent{Value: f.replyText}},
			}},
			{ID: "msg_1", CreatedAt: 10, Role: assistants.RoleUser, Content: []assistants.Content{
				{Type: "text", Text: &assistants.TextContent{Value: "the question"}},
			}},
		},
		FirstID: "msg_2",
		LastID:  "msg_1",
	}, nil
}

func (f *fakeRemote) CreateRun(_ context.Context, threadID, assistantID string) (*assistants.Run, error) {
	return &assistants.Run{ID: "run_1", ThreadID: threadID, AssistantID: assistantID, Status: assistants.RunStatusQueued}, nil
}

type instantRunner struct {
	remote *fakeRemote
}

func (r instantRunner) Await(ctx context.Context, _ store.Assistant, threadID, runID string) (assistants.Message, error) {
	list, _ := r.remote.ListMessages(ctx, threadID, assistants.ListMessagesQuery{})
	for _, msg := range list.Data {
		if msg.RunID == runID {
			return msg, nil
		}
	}
	return assistants.Message{}, nil
}

type fixture struct {
	server *Server
	remote *fakeRemote
	stores *store.MemoryStores
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	remote := &fakeRemote{replyText: "the reply", fileContent: "a,b\n1,2\n"}
	stores := store.NewMemoryStores()
	tokens := auth.NewTokenManager("test-secret", "aide", time.Minute)
	estimator := usage.NewEstimator(usage.EstimatorConfig{})
	chatSvc := chat.NewService(remote, instantRunner{remote: remote}, stores.Assistants(), stores.Threads(), stores.Users(), stores.Usage(), estimator, nil)

	srv := New(Config{Addr: ":0"}, Deps{
		Chat:       chatSvc,
		Remote:     remote,
		Tokens:     tokens,
		Users:      stores.Users(),
		Assistants: stores.Assistants(),
		Threads:    stores.Threads(),
		Functions:  stores.Functions(),
		Usage:      stores.Usage(),
		Dynamic:    dispatch.NewDynamicRegistry(stores.Functions(), nil),
	})

	f := &fixture{server: srv, remote: remote, stores: stores}
	resp := f.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "dev@example.com", "password": "long-enough", "name": "Dev",
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var body tokenResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	f.token = body.Token
	return f
}

func (f *fixture) do(t *testing.T, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createAssistant(t *testing.T, name string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/assistants", map[string]any{
		"name": name, "model": "gpt-4",
	}, f.token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var body assistantResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.AssistantID
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	dup := f.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "dev@example.com", "password": "long-enough",
	}, "")
	require.Equal(t, http.StatusConflict, dup.Code)

	wrong := f.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "dev@example.com", "password": "not-the-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, wrong.Code)

	ok := f.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "dev@example.com", "password": "long-enough",
	}, "")
	require.Equal(t, http.StatusOK, ok.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/assistants/asst_x/chats", map[string]any{"question": "hi"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAssistantLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.createAssistant(t, "helper")

	dup := f.do(t, http.MethodPost, "/api/assistants", map[string]any{
		"name": "helper", "model": "gpt-4",
	}, f.token)
	require.Equal(t, http.StatusConflict, dup.Code)
	require.Len(t, f.remote.deleted, 1, "conflicting create must clean up the remote assistant")

	get := f.do(t, http.MethodGet, "/api/assistants/"+id, nil, f.token)
	require.Equal(t, http.StatusOK, get.Code)

	del := f.do(t, http.MethodDelete, "/api/assistants/"+id, nil, f.token)
	require.Equal(t, http.StatusNoContent, del.Code)

	missing := f.do(t, http.MethodGet, "/api/assistants/"+id, nil, f.token)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAssistantListSearchAndPagination(t *testing.T) {
	f := newFixture(t)
	f.createAssistant(t, "billing helper")
	f.createAssistant(t, "support helper")

	var body struct {
		Assistants []assistantResponse `json:"assistants"`
		Total      int                 `json:"total"`
	}

	resp := f.do(t, http.MethodGet, "/api/assistants?search=billing", nil, f.token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Assistants, 1)
	require.Equal(t, "billing helper", body.Assistants[0].Name)
	require.Equal(t, 1, body.Total)

	resp = f.do(t, http.MethodGet, "/api/assistants?limit=1", nil, f.token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Assistants, 1)
	require.Equal(t, 2, body.Total)

	bad := f.do(t, http.MethodGet, "/api/assistants?offset=-1", nil, f.token)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAssistantListResolvesFileNames(t *testing.T) {
	f := newFixture(t)
	f.remote.fileIDs = []string{"file_1"}
	f.createAssistant(t, "analyst")

	var body struct {
		Assistants []assistantResponse `json:"assistants"`
	}
	resp := f.do(t, http.MethodGet, "/api/assistants", nil, f.token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Assistants, 1)
	require.Equal(t, []string{"report.csv"}, body.Assistants[0].FileNames)
}

func TestSendMessageEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createAssistant(t, "helper")

	resp := f.do(t, http.MethodPost, "/api/assistants/"+id+"/chats", map[string]any{
		"question": "what is in the report?",
	}, f.token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body sendMessageResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "the reply", body.Response)
	require.Equal(t, "thread_1", body.ThreadID)
	require.Equal(t, "msg_2", body.MsgID)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	id := f.createAssistant(t, "helper")

	resp := f.do(t, http.MethodPost, "/api/assistants/"+id+"/chats", map[string]any{
		"question": "",
	}, f.token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createAssistant(t, "helper")

	send := f.do(t, http.MethodPost, "/api/assistants/"+id+"/chats", map[string]any{
		"question": "what is in the report?",
	}, f.token)
	require.Equal(t, http.StatusOK, send.Code, send.Body.String())

	resp := f.do(t, http.MethodGet, "/api/assistants/"+id+"/chats?thread_id=thread_1", nil, f.token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Messages []chat.DisplayPair `json:"messages"`
		Metadata struct {
			FirstID string `json:"first_id"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	require.Equal(t, "the question", body.Messages[0].Question)
	require.Equal(t, "the reply", body.Messages[0].Answer)
	require.Equal(t, "msg_2", body.Metadata.FirstID)

	noThread := f.do(t, http.MethodGet, "/api/assistants/"+id+"/chats", nil, f.token)
	require.Equal(t, http.StatusBadRequest, noThread.Code)

	foreign := f.do(t, http.MethodGet, "/api/assistants/"+id+"/chats?thread_id=thread_someone_elses", nil, f.token)
	require.Equal(t, http.StatusNotFound, foreign.Code)
}

func TestFunctionEndpointRejectsBadSource(t *testing.T) {
	f := newFixture(t)

	bad := f.do(t, http.MethodPost, "/api/functions", map[string]any{
		"name": "broken", "source": "return function( nope",
	}, f.token)
	require.Equal(t, http.StatusBadRequest, bad.Code)

	good := f.do(t, http.MethodPost, "/api/functions", map[string]any{
		"name": "greet", "source": `return function() return "hi" end`,
	}, f.token)
	require.Equal(t, http.StatusCreated, good.Code, good.Body.String())

	check := f.do(t, http.MethodPost, "/api/functions/validate", map[string]any{
		"source": "return function( nope",
	}, f.token)
	require.Equal(t, http.StatusOK, check.Code)
	require.Contains(t, check.Body.String(), `"valid":false`)
}

func TestFunctionUpdateDeleteRequireOwnership(t *testing.T) {
	f := newFixture(t)

	created := f.do(t, http.MethodPost, "/api/functions", map[string]any{
		"name": "greet", "source": `return function() return "hi" end`,
	}, f.token)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var fn functionResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &fn))

	other := f.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "other@example.com", "password": "long-enough", "name": "Other",
	}, "")
	require.Equal(t, http.StatusCreated, other.Code)
	var otherBody tokenResponse
	require.NoError(t, json.Unmarshal(other.Body.Bytes(), &otherBody))

	update := f.do(t, http.MethodPut, "/api/functions/"+fn.ID, map[string]any{
		"source": `return function() return "stolen" end`,
	}, otherBody.Token)
	require.Equal(t, http.StatusNotFound, update.Code)

	del := f.do(t, http.MethodDelete, "/api/functions/"+fn.ID, nil, otherBody.Token)
	require.Equal(t, http.StatusNotFound, del.Code)

	// The owner can still do both.
	update = f.do(t, http.MethodPut, "/api/functions/"+fn.ID, map[string]any{
		"source": `return function() return "bye" end`,
	}, f.token)
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())

	del = f.do(t, http.MethodDelete, "/api/functions/"+fn.ID, nil, f.token)
	require.Equal(t, http.StatusNoContent, del.Code)
}

func TestFileDownload(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/files/file_1", nil, f.token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "a,b\n1,2\n", resp.Body.String())
	require.Contains(t, resp.Header().Get("Content-Disposition"), "report.csv")
}
