package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/auth"
	"aide/internal/dispatch"
	"aide/internal/store"
)

type functionRequest struct {
	Name       string                      `json:"name"`
	Source     string                      `json:"source"`
	Parameters *assistants.ParameterSchema `json:"parameters"`
}

type functionResponse struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	Source     string                     `json:"source"`
	Parameters assistants.ParameterSchema `json:"parameters"`
}

func toFunctionResponse(def store.FunctionDefinition) functionResponse {
	return functionResponse{ID: def.ID, Name: def.Name, Source: def.Source, Parameters: def.Parameters}
}

func (s *Server) handleCreateFunction(c *gin.Context) {
	var req functionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Source == "" {
		badRequest(c, "name and source are required")
		return
	}
	def := store.FunctionDefinition{
		ID:     uuid.NewString(),
		UserID: auth.UserID(c),
		Name:   req.Name,
		Source: req.Source,
	}
	if req.Parameters != nil {
		def.Parameters = *req.Parameters
	}
	// Reject sources that will never run rather than storing them.
	if _, err := dispatch.Compile(def); err != nil {
		badRequest(c, "source does not compile: "+err.Error())
		return
	}
	created, err := s.deps.Functions.Create(c.Request.Context(), def)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.deps.Dynamic.Invalidate(def.UserID)
	c.JSON(http.StatusCreated, toFunctionResponse(created))
}

// handleValidateFunction compile-checks a source without storing it, so
// editors can check a draft before saving.
func (s *Server) handleValidateFunction(c *gin.Context) {
	var req functionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Source == "" {
		badRequest(c, "source is required")
		return
	}
	def := store.FunctionDefinition{Name: req.Name, Source: req.Source}
	if req.Parameters != nil {
		def.Parameters = *req.Parameters
	}
	if def.Name == "" {
		def.Name = "candidate"
	}
	if _, err := dispatch.Compile(def); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) handleListFunctions(c *gin.Context) {
	defs, err := s.deps.Functions.ListByUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]functionResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, toFunctionResponse(def))
	}
	c.JSON(http.StatusOK, gin.H{"functions": out})
}

func (s *Server) handleUpdateFunction(c *gin.Context) {
	var req functionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Source == "" {
		badRequest(c, "source is required")
		return
	}
	ctx := c.Request.Context()
	userID := auth.UserID(c)
	def, err := s.ownedFunction(ctx, userID, c.Param("function_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	def.Source = req.Source
	if req.Name != "" {
		def.Name = req.Name
	}
	if req.Parameters != nil {
		def.Parameters = *req.Parameters
	}
	if _, err := dispatch.Compile(def); err != nil {
		badRequest(c, "source does not compile: "+err.Error())
		return
	}
	updated, err := s.deps.Functions.Update(ctx, def)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.deps.Dynamic.Invalidate(userID)
	c.JSON(http.StatusOK, toFunctionResponse(updated))
}

func (s *Server) handleDeleteFunction(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)
	def, err := s.ownedFunction(ctx, userID, c.Param("function_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Functions.Delete(ctx, def.ID); err != nil {
		s.respondError(c, err)
		return
	}
	s.deps.Dynamic.Invalidate(userID)
	c.Status(http.StatusNoContent)
}

// ownedFunction loads the record and hides other users' functions behind a
// not-found error.
func (s *Server) ownedFunction(ctx context.Context, userID, functionID string) (store.FunctionDefinition, error) {
	def, err := s.deps.Functions.Find(ctx, functionID)
	if err != nil {
		return store.FunctionDefinition{}, err
	}
	if def.UserID != userID {
		return store.FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: functionID}
	}
	return def, nil
}
