package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modbusmon/modbusmon/internal/provision"
)

// POST /api/v1/provision
//
// Accepts a full provisioning document as JSON. The document is
// schema-validated and staged before any write, so a rejected document
// changes nothing.
func (s *Server) applyProvision(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PROV_400", "Failed to read request body", err.Error()))
		return
	}

	if err := s.validator.ValidateJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PROV_400", "Document rejected", err.Error()))
		return
	}

	var doc provision.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("PROV_400", "Invalid JSON", err.Error()))
		return
	}

	result, err := provision.Apply(c.Request.Context(), &doc, s.lm.Storage(), s.lm.Registry(), s.logger)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("PROV_422", "Provisioning failed", err.Error()))
		return
	}

	s.reloadRules(c)
	c.JSON(http.StatusCreated, result)
}
