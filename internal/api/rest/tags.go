package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

func normalizeTag(t *tags.Tag) {
	if t.Scale == 0 {
		t.Scale = 1
	}
	if t.Group == "" {
		t.Group = "Group1"
	}
}

// tagError maps resolution failures onto status codes: address format
// problems are the caller's fault, everything else is ours.
func tagError(c *gin.Context, err error) {
	var afe *modbus.AddressFormatError
	if errors.As(err, &afe) {
		c.JSON(http.StatusBadRequest, NewErrorResponse("TAG_400", "Invalid address", err.Error()))
		return
	}
	c.JSON(http.StatusBadRequest, NewErrorResponse("TAG_400", "Invalid tag", err.Error()))
}

// GET /api/v1/tags
func (s *Server) listTags(c *gin.Context) {
	allTags := s.lm.Registry().Tags()
	c.JSON(http.StatusOK, gin.H{
		"tags":  allTags,
		"count": len(allTags),
	})
}

// GET /api/v1/tags/:id
func (s *Server) getTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	tag, exists := s.lm.Registry().Tag(id)
	if !exists {
		c.JSON(http.StatusNotFound, NewErrorResponse("TAG_404", "Tag not found", id))
		return
	}

	c.JSON(http.StatusOK, tag)
}

// POST /api/v1/tags
func (s *Server) createTag(c *gin.Context) {
	var tag tags.Tag
	if err := c.ShouldBindJSON(&tag); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("TAG_400", "Invalid request body", err.Error()))
		return
	}
	tag.ID = 0
	normalizeTag(&tag)

	// Resolve before persisting so a bad address or duplicate binding
	// never reaches the database.
	resolved, err := s.lm.Registry().ResolveTag(tag)
	if err != nil {
		tagError(c, err)
		return
	}

	created, err := s.lm.Storage().CreateTag(c.Request.Context(), resolved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("TAG_500", "Failed to persist tag", err.Error()))
		return
	}

	if _, err := s.lm.Registry().UpsertTag(created); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("TAG_500", "Failed to activate tag", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, created)
}

// PUT /api/v1/tags/:id
func (s *Server) updateTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if _, exists := s.lm.Registry().Tag(id); !exists {
		c.JSON(http.StatusNotFound, NewErrorResponse("TAG_404", "Tag not found", id))
		return
	}

	var tag tags.Tag
	if err := c.ShouldBindJSON(&tag); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("TAG_400", "Invalid request body", err.Error()))
		return
	}
	tag.ID = id
	normalizeTag(&tag)

	resolved, err := s.lm.Registry().ResolveTag(tag)
	if err != nil {
		tagError(c, err)
		return
	}

	if err := s.lm.Storage().UpdateTag(c.Request.Context(), resolved); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("TAG_404", "Tag not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("TAG_500", "Failed to update tag", err.Error()))
		return
	}

	if _, err := s.lm.Registry().UpsertTag(resolved); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("TAG_500", "Failed to activate tag", err.Error()))
		return
	}

	c.JSON(http.StatusOK, resolved)
}

type writeTagRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// POST /api/v1/tags/:id/write
//
// Writes an engineering value to a coil or holding-register tag. The
// value is de-scaled before it hits the wire; the snapshot picks the new
// reading up on the next cycle.
func (s *Server) writeTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if _, exists := s.lm.Registry().Tag(id); !exists {
		c.JSON(http.StatusNotFound, NewErrorResponse("TAG_404", "Tag not found", id))
		return
	}

	var req writeTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("TAG_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.lm.Scheduler().WriteTag(id, *req.Value); err != nil {
		c.JSON(http.StatusBadGateway, NewErrorResponse("TAG_502", "Write failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Value written", "value": *req.Value})
}

// DELETE /api/v1/tags/:id
func (s *Server) deleteTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := s.lm.Storage().DeleteTag(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("TAG_404", "Tag not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("TAG_500", "Failed to delete tag", err.Error()))
		return
	}

	s.lm.Registry().RemoveTag(id)

	c.JSON(http.StatusOK, gin.H{"message": "Tag deleted successfully"})
}
