package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aide/internal/assistants"
	"aide/internal/auth"
	"aide/internal/store"
	"aide/internal/usage"
)

type createAssistantRequest struct {
	Name                string            `json:"name"`
	Model               string            `json:"model"`
	Instructions        string            `json:"instructions"`
	Tools               []assistants.Tool `json:"tools"`
	Provider            string            `json:"provider"`
	FunctionCallingMode string            `json:"function_calling_mode"`
}

type assistantResponse struct {
	AssistantID         string            `json:"assistant_id"`
	Name                string            `json:"name"`
	Model               string            `json:"model"`
	Provider            string            `json:"provider"`
	FunctionCallingMode string            `json:"function_calling_mode"`
	Instructions        string            `json:"instructions,omitempty"`
	Tools               []assistants.Tool `json:"tools,omitempty"`
	FileNames           []string          `json:"file_names,omitempty"`
}

func toAssistantResponse(local store.Assistant, remote *assistants.Assistant) assistantResponse {
	resp := assistantResponse{
		AssistantID:         local.RemoteID,
		Name:                local.Name,
		Model:               local.Model,
		Provider:            string(local.Provider),
		FunctionCallingMode: string(local.FunctionCallingMode),
	}
	if remote != nil {
		resp.Model = remote.Model
		resp.Instructions = remote.Instructions
		resp.Tools = remote.Tools
	}
	return resp
}

func (s *Server) handleCreateAssistant(c *gin.Context) {
	var req createAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Model == "" {
		badRequest(c, "name and model are required")
		return
	}
	mode := store.FunctionCallingMode(req.FunctionCallingMode)
	if mode == "" {
		mode = store.ModeDefault
	}
	if mode != store.ModeDefault && mode != store.ModeCustom {
		badRequest(c, "function_calling_mode must be default or custom")
		return
	}
	provider := usage.Provider(req.Provider)
	if provider == "" {
		provider = usage.ProviderOpenAI
	}

	ctx := c.Request.Context()
	remote, err := s.deps.Remote.CreateAssistant(ctx, assistants.CreateAssistantRequest{
		Name:         req.Name,
		Model:        req.Model,
		Instructions: req.Instructions,
		Tools:        req.Tools,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	local, err := s.deps.Assistants.Create(ctx, store.Assistant{
		ID:                  uuid.NewString(),
		UserID:              auth.UserID(c),
		RemoteID:            remote.ID,
		Name:                req.Name,
		Model:               remote.Model,
		Provider:            provider,
		FunctionCallingMode: mode,
	})
	if err != nil {
		// The local name is taken; do not leave the remote orphaned.
		if cleanupErr := s.deps.Remote.DeleteAssistant(ctx, remote.ID); cleanupErr != nil {
			s.logger.Warn("orphaned remote assistant %s: %v", remote.ID, cleanupErr)
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAssistantResponse(local, remote))
}

func (s *Server) handleListAssistants(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := s.deps.Assistants.ListByUser(ctx, auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if search := strings.ToLower(c.Query("search")); search != "" {
		filtered := list[:0]
		for _, local := range list {
			if strings.Contains(strings.ToLower(local.Name), search) {
				filtered = append(filtered, local)
			}
		}
		list = filtered
	}
	total := len(list)
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}
	if offset > len(list) {
		offset = len(list)
	}
	list = list[offset:]
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	// Only the returned page is enriched from the remote; a fetch failure
	// degrades that row to the local record.
	out := make([]assistantResponse, 0, len(list))
	for _, local := range list {
		remote, err := s.deps.Remote.RetrieveAssistant(ctx, local.RemoteID)
		if err != nil {
			s.logger.Warn("retrieve assistant %s for listing: %v", local.RemoteID, err)
			out = append(out, toAssistantResponse(local, nil))
			continue
		}
		resp := toAssistantResponse(local, remote)
		resp.FileNames = s.fileNames.ResolveAll(ctx, remote.FileIDs())
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"assistants": out, "total": total})
}

func (s *Server) handleGetAssistant(c *gin.Context) {
	ctx := c.Request.Context()
	local, err := s.deps.Assistants.FindByRemoteID(ctx, c.Param("assistant_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	remote, err := s.deps.Remote.RetrieveAssistant(ctx, local.RemoteID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	resp := toAssistantResponse(local, remote)
	resp.FileNames = s.fileNames.ResolveAll(ctx, remote.FileIDs())
	c.JSON(http.StatusOK, resp)
}

type updateAssistantRequest struct {
	Name                string             `json:"name"`
	Model               string             `json:"model"`
	Instructions        string             `json:"instructions"`
	Tools               *[]assistants.Tool `json:"tools"`
	FunctionCallingMode string             `json:"function_calling_mode"`
}

func (s *Server) handleUpdateAssistant(c *gin.Context) {
	var req updateAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()
	local, err := s.deps.Assistants.FindByRemoteID(ctx, c.Param("assistant_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	remote, err := s.deps.Remote.UpdateAssistant(ctx, local.RemoteID, assistants.UpdateAssistantRequest{
		Name:         req.Name,
		Model:        req.Model,
		Instructions: req.Instructions,
		Tools:        req.Tools,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	if req.Name != "" {
		local.Name = req.Name
	}
	local.Model = remote.Model
	if req.FunctionCallingMode != "" {
		mode := store.FunctionCallingMode(req.FunctionCallingMode)
		if mode != store.ModeDefault && mode != store.ModeCustom {
			badRequest(c, "function_calling_mode must be default or custom")
			return
		}
		local.FunctionCallingMode = mode
	}
	local, err = s.deps.Assistants.Update(ctx, local)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAssistantResponse(local, remote))
}

func (s *Server) handleDeleteAssistant(c *gin.Context) {
	ctx := c.Request.Context()
	local, err := s.deps.Assistants.FindByRemoteID(ctx, c.Param("assistant_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Remote.DeleteAssistant(ctx, local.RemoteID); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Assistants.Delete(ctx, local.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
