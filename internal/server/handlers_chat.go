package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"aide/internal/auth"
	"aide/internal/chat"
)

type sendMessageRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

type sendMessageResponse struct {
	Response string `json:"response"`
	MsgID    string `json:"msg_id"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	reply, err := s.deps.Chat.SendMessage(c.Request.Context(), chat.SendRequest{
		AssistantID: c.Param("assistant_id"),
		UserID:      auth.UserID(c),
		Question:    req.Question,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sendMessageResponse{
		Response: reply.Answer,
		MsgID:    reply.MessageID,
		ThreadID: reply.ThreadID,
	})
}

type editPromptRequest struct {
	MessageID string `json:"message_id"`
	NewPrompt string `json:"new_prompt"`
	ThreadID  string `json:"thread_id"`
}

type editPromptResponse struct {
	Response     string `json:"response"`
	MsgID        string `json:"msg_id"`
	ThreadID     string `json:"thread_id"`
	EditedPrompt string `json:"edited_prompt"`
}

func (s *Server) handleEditPrompt(c *gin.Context) {
	var req editPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.MessageID == "" {
		badRequest(c, "message_id is required")
		return
	}
	reply, err := s.deps.Chat.EditPrompt(c.Request.Context(), chat.EditRequest{
		AssistantID: c.Param("assistant_id"),
		UserID:      auth.UserID(c),
		ThreadID:    req.ThreadID,
		MessageID:   req.MessageID,
		NewPrompt:   req.NewPrompt,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, editPromptResponse{
		Response:     reply.Answer,
		MsgID:        reply.MessageID,
		ThreadID:     reply.ThreadID,
		EditedPrompt: req.NewPrompt,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	page, err := s.deps.Chat.History(c.Request.Context(), chat.HistoryRequest{
		AssistantID: c.Param("assistant_id"),
		UserID:      auth.UserID(c),
		ThreadID:    c.Query("thread_id"),
		Limit:       limit,
		After:       c.Query("after"),
		Before:      c.Query("before"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": page.Messages,
		"metadata": gin.H{
			"first_id": page.FirstID,
			"last_id":  page.LastID,
			"has_more": page.HasMore,
		},
	})
}

func (s *Server) handleListThreads(c *gin.Context) {
	threads, err := s.deps.Threads.ListByUser(c.Request.Context(), auth.UserID(c), c.Query("assistant_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(threads))
	for _, thread := range threads {
		out = append(out, gin.H{
			"thread_id":    thread.RemoteID,
			"assistant_id": thread.AssistantID,
			"title":        thread.Title,
			"created_at":   thread.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"threads": out})
}
