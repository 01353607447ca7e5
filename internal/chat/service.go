// Package chat implements the conversation session flow: message intake,
// model/tool compatibility checks, run execution, and history display.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/usage"
)

const (
	// maxQuestionChars bounds prompt length before any remote call.
	maxQuestionChars = 32700
	// titleChars is how much of the first question becomes the thread title.
	titleChars = 50
	// reasoningModel cannot run with code_interpreter or file_search. The
	// check is tied to this identifier and re-runs on every message.
	reasoningModel = "o3-mini"
)

// API is the slice of the remote client the session flow needs.
type API interface {
	RetrieveAssistant(ctx context.Context, assistantID string) (*assistants.Assistant, error)
	UpdateAssistant(ctx context.Context, assistantID string, req assistants.UpdateAssistantRequest) (*assistants.Assistant, error)
	CreateThread(ctx context.Context, seed []assistants.SeedMessage) (*assistants.Thread, error)
	CreateMessage(ctx context.Context, threadID, role, content string) (*assistants.Message, error)
	DeleteMessage(ctx context.Context, threadID, messageID string) error
	ListMessages(ctx context.Context, threadID string, query assistants.ListMessagesQuery) (*assistants.MessageList, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*assistants.Run, error)
}

// RunAwaiter blocks until a run reaches a terminal status.
type RunAwaiter interface {
	Await(ctx context.Context, assistant store.Assistant, threadID, runID string) (assistants.Message, error)
}

// Service handles send, edit, and history operations for one assistant.
type Service struct {
	api        API
	runner     RunAwaiter
	assistants store.AssistantRepo
	threads    store.ThreadRepo
	users      store.UserRepo
	usageRepo  store.UsageRepo
	estimator  *usage.Estimator
	logger     logging.Logger
}

// NewService wires the session flow. userRepo, usageRepo, and estimator may
// be nil to disable usage recording.
func NewService(api API, runner RunAwaiter, assistantRepo store.AssistantRepo, threadRepo store.ThreadRepo, userRepo store.UserRepo, usageRepo store.UsageRepo, estimator *usage.Estimator, logger logging.Logger) *Service {
	return &Service{
		api:        api,
		runner:     runner,
		assistants: assistantRepo,
		threads:    threadRepo,
		users:      userRepo,
		usageRepo:  usageRepo,
		estimator:  estimator,
		logger:     logging.OrNop(logger),
	}
}

// SendRequest carries one user message.
type SendRequest struct {
	AssistantID string
	UserID      string
	Question    string
	ThreadID    string
}

// EditRequest replaces a previous prompt and regenerates its reply.
type EditRequest struct {
	AssistantID string
	UserID      string
	ThreadID    string
	MessageID   string
	NewPrompt   string
}

// Reply is the outcome of a completed exchange.
type Reply struct {
	Answer    string
	MessageID string
	ThreadID  string
}

// SendMessage appends the question to a thread, creating the thread when
// none is given, runs the assistant, and returns its reply.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (Reply, error) {
	if err := validateQuestion(req.Question); err != nil {
		return Reply{}, err
	}
	local, remote, err := s.prepare(ctx, req.AssistantID)
	if err != nil {
		return Reply{}, err
	}

	threadID := req.ThreadID
	if threadID != "" {
		if err := s.authorizeThread(ctx, req.UserID, remote.ID, threadID); err != nil {
			return Reply{}, err
		}
	}
	if threadID == "" {
		thread, err := s.api.CreateThread(ctx, []assistants.SeedMessage{
			{Role: assistants.RoleUser, Content: req.Question},
		})
		if err != nil {
			return Reply{}, fmt.Errorf("create thread: %w", err)
		}
		threadID = thread.ID
		record := store.Thread{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			AssistantID: remote.ID,
			RemoteID:    threadID,
			Title:       firstChars(req.Question, titleChars),
		}
		if _, err := s.threads.Create(ctx, record); err != nil {
			s.logger.Warn("persist thread %s: %v", threadID, err)
		}
	} else {
		if _, err := s.api.CreateMessage(ctx, threadID, assistants.RoleUser, req.Question); err != nil {
			return Reply{}, fmt.Errorf("append message: %w", err)
		}
	}

	return s.complete(ctx, local, remote, req.UserID, threadID, req.Question)
}

// EditPrompt deletes the given message and the assistant reply that follows
// it, if one exists before the next user message, then re-asks with the new
// prompt. Everything before the edited message is preserved.
func (s *Service) EditPrompt(ctx context.Context, req EditRequest) (Reply, error) {
	if err := validateQuestion(req.NewPrompt); err != nil {
		return Reply{}, err
	}
	if req.ThreadID == "" {
		return Reply{}, &aideerrors.ValidationError{Field: "thread_id", Message: "required"}
	}
	local, remote, err := s.prepare(ctx, req.AssistantID)
	if err != nil {
		return Reply{}, err
	}
	if err := s.authorizeThread(ctx, req.UserID, remote.ID, req.ThreadID); err != nil {
		return Reply{}, err
	}

	list, err := s.api.ListMessages(ctx, req.ThreadID, assistants.ListMessagesQuery{Order: "asc"})
	if err != nil {
		return Reply{}, fmt.Errorf("list messages: %w", err)
	}
	edited := -1
	for i, msg := range list.Data {
		if msg.ID == req.MessageID {
			edited = i
			break
		}
	}
	if edited < 0 {
		return Reply{}, &aideerrors.NotFoundError{Resource: "message", Key: req.MessageID}
	}

	replyID := ""
	for _, msg := range list.Data[edited+1:] {
		if msg.Role == assistants.RoleAssistant {
			replyID = msg.ID
			break
		}
		if msg.Role == assistants.RoleUser {
			break
		}
	}

	if err := s.api.DeleteMessage(ctx, req.ThreadID, req.MessageID); err != nil {
		return Reply{}, fmt.Errorf("delete edited message: %w", err)
	}
	if replyID != "" {
		if err := s.api.DeleteMessage(ctx, req.ThreadID, replyID); err != nil {
			return Reply{}, fmt.Errorf("delete stale reply: %w", err)
		}
	}
	if _, err := s.api.CreateMessage(ctx, req.ThreadID, assistants.RoleUser, req.NewPrompt); err != nil {
		return Reply{}, fmt.Errorf("append edited prompt: %w", err)
	}

	return s.complete(ctx, local, remote, req.UserID, req.ThreadID, req.NewPrompt)
}

// HistoryRequest selects a window of a thread's messages.
type HistoryRequest struct {
	AssistantID string
	UserID      string
	ThreadID    string
	Limit       int
	After       string
	Before      string
}

// HistoryPage is a formatted slice of conversation history.
type HistoryPage struct {
	Messages []DisplayPair `json:"messages"`
	FirstID  string        `json:"first_id"`
	LastID   string        `json:"last_id"`
	HasMore  bool          `json:"has_more"`
}

// History returns the thread's messages as display pairs, most recent first.
func (s *Service) History(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	if req.ThreadID == "" {
		return HistoryPage{}, &aideerrors.ValidationError{Field: "thread_id", Message: "required"}
	}
	if err := s.authorizeThread(ctx, req.UserID, req.AssistantID, req.ThreadID); err != nil {
		return HistoryPage{}, err
	}
	list, err := s.api.ListMessages(ctx, req.ThreadID, assistants.ListMessagesQuery{
		Limit:  req.Limit,
		After:  req.After,
		Before: req.Before,
	})
	if err != nil {
		return HistoryPage{}, fmt.Errorf("list messages: %w", err)
	}
	return HistoryPage{
		Messages: FormatHistory(list.Data),
		FirstID:  list.FirstID,
		LastID:   list.LastID,
		HasMore:  list.HasMore,
	}, nil
}

// authorizeThread confirms the thread is registered to the requesting user
// and assistant. A record owned by anyone else reads as absent so callers
// cannot distinguish other users' threads from nonexistent ones.
func (s *Service) authorizeThread(ctx context.Context, userID, assistantID, threadID string) error {
	thread, err := s.threads.FindByRemoteID(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.UserID != userID || thread.AssistantID != assistantID {
		return &aideerrors.NotFoundError{Resource: "thread", Key: threadID}
	}
	return nil
}

// prepare loads the local registration, fetches the remote assistant, and
// applies the model/tool compatibility policy.
func (s *Service) prepare(ctx context.Context, assistantID string) (store.Assistant, *assistants.Assistant, error) {
	local, err := s.assistants.FindByRemoteID(ctx, assistantID)
	if err != nil {
		return store.Assistant{}, nil, err
	}
	remote, err := s.api.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return store.Assistant{}, nil, fmt.Errorf("retrieve assistant: %w", err)
	}
	remote, err = s.ensureToolCompatibility(ctx, remote)
	if err != nil {
		return store.Assistant{}, nil, err
	}
	if local.Model != remote.Model {
		local.Model = remote.Model
	}
	return local, remote, nil
}

// ensureToolCompatibility strips code_interpreter and file_search from the
// remote tool list when the reasoning model carries both. The rewrite happens
// remotely first so the local view never drifts ahead of the API.
func (s *Service) ensureToolCompatibility(ctx context.Context, remote *assistants.Assistant) (*assistants.Assistant, error) {
	if remote.Model != reasoningModel {
		return remote, nil
	}
	if !remote.HasToolType(assistants.ToolTypeCodeInterpreter) || !remote.HasToolType(assistants.ToolTypeFileSearch) {
		return remote, nil
	}
	kept := make([]assistants.Tool, 0, len(remote.Tools))
	for _, tool := range remote.Tools {
		if tool.Type == assistants.ToolTypeCodeInterpreter || tool.Type == assistants.ToolTypeFileSearch {
			continue
		}
		kept = append(kept, tool)
	}
	updated, err := s.api.UpdateAssistant(ctx, remote.ID, assistants.UpdateAssistantRequest{Tools: &kept})
	if err != nil {
		return nil, fmt.Errorf("strip incompatible tools: %w", err)
	}
	s.logger.Info("assistant %s: removed code_interpreter and file_search for model %s", remote.ID, remote.Model)
	return updated, nil
}

func (s *Service) complete(ctx context.Context, local store.Assistant, remote *assistants.Assistant, userID, threadID, question string) (Reply, error) {
	run, err := s.api.CreateRun(ctx, threadID, remote.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("start run: %w", err)
	}
	msg, err := s.runner.Await(ctx, local, threadID, run.ID)
	if err != nil {
		return Reply{}, err
	}
	answer := MessageText(msg)
	s.recordUsage(ctx, local, userID, threadID, remote.Model, question, answer)
	return Reply{Answer: answer, MessageID: msg.ID, ThreadID: threadID}, nil
}

func (s *Service) recordUsage(ctx context.Context, local store.Assistant, userID, threadID, model, question, answer string) {
	if s.usageRepo == nil || s.estimator == nil {
		return
	}
	rec, err := s.estimator.Estimate(ctx, question, answer, model, local.Provider)
	if err != nil {
		s.logger.Warn("estimate usage for thread %s: %v", threadID, err)
		return
	}
	rec.UserID = userID
	rec.AssistantID = local.RemoteID
	rec.ThreadID = threadID
	if err := s.usageRepo.Insert(ctx, rec); err != nil {
		s.logger.Warn("record usage for thread %s: %v", threadID, err)
	}
	if s.users != nil {
		if err := s.users.AddTokenUsage(ctx, userID, int64(rec.TotalTokens)); err != nil {
			s.logger.Warn("update token total for user %s: %v", userID, err)
		}
	}
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return &aideerrors.ValidationError{Field: "question", Message: "required"}
	}
	if len([]rune(question)) > maxQuestionChars {
		return &aideerrors.ValidationError{Field: "question", Message: fmt.Sprintf("exceeds %d characters", maxQuestionChars)}
	}
	return nil
}

func firstChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
