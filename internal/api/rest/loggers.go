package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

func (s *Server) checkLoggerTags(l tags.DataLogger) error {
	for _, id := range l.TagIDs {
		if _, ok := s.lm.Registry().Tag(id); !ok {
			return fmt.Errorf("unknown tag %d", id)
		}
	}
	return nil
}

// GET /api/v1/loggers
func (s *Server) listLoggers(c *gin.Context) {
	loggers, err := s.lm.Storage().ListDataLoggers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("LOGGER_500", "Failed to list loggers", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"loggers": loggers,
		"count":   len(loggers),
	})
}

// GET /api/v1/loggers/:id
func (s *Server) getLogger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	logger, err := s.lm.Storage().GetDataLogger(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("LOGGER_404", "Logger not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("LOGGER_500", "Failed to get logger", err.Error()))
		return
	}

	c.JSON(http.StatusOK, logger)
}

// POST /api/v1/loggers
func (s *Server) createLogger(c *gin.Context) {
	var logger tags.DataLogger
	if err := c.ShouldBindJSON(&logger); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("LOGGER_400", "Invalid request body", err.Error()))
		return
	}
	logger.ID = 0

	if logger.Name == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("LOGGER_400", "Logger name is required", nil))
		return
	}
	if err := s.checkLoggerTags(logger); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("LOGGER_400", "Invalid tag reference", err.Error()))
		return
	}

	created, err := s.lm.Storage().CreateDataLogger(c.Request.Context(), logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("LOGGER_500", "Failed to persist logger", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, created)
}

// PUT /api/v1/loggers/:id
func (s *Server) updateLogger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var logger tags.DataLogger
	if err := c.ShouldBindJSON(&logger); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("LOGGER_400", "Invalid request body", err.Error()))
		return
	}
	logger.ID = id

	if err := s.checkLoggerTags(logger); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("LOGGER_400", "Invalid tag reference", err.Error()))
		return
	}

	if err := s.lm.Storage().UpdateDataLogger(c.Request.Context(), logger); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("LOGGER_404", "Logger not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("LOGGER_500", "Failed to update logger", err.Error()))
		return
	}

	c.JSON(http.StatusOK, logger)
}

// DELETE /api/v1/loggers/:id
func (s *Server) deleteLogger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := s.lm.Storage().DeleteDataLogger(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("LOGGER_404", "Logger not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("LOGGER_500", "Failed to delete logger", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logger deleted successfully"})
}
