package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/storage"
)

// reloadRules pushes rule changes to the running engine so edits take
// effect before the next scheduled reload.
func (s *Server) reloadRules(c *gin.Context) {
	if engine := s.lm.AlarmEngine(); engine != nil {
		if err := engine.Reload(c.Request.Context()); err != nil {
			s.logger.Warn("Alarm rule reload after edit failed", zap.Error(err))
		}
	}
}

// GET /api/v1/alarms/rules
func (s *Server) listAlarmRules(c *gin.Context) {
	rules, err := s.lm.Storage().ListAlarmRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("ALARM_500", "Failed to list rules", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// clampLimit parses an optional ?limit= value. Missing and non-positive
// values fall back to def; postgres rejects a negative LIMIT outright.
func clampLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return def, nil
	}
	return n, nil
}

// GET /api/v1/alarms/events?limit=N
func (s *Server) listAlarmEvents(c *gin.Context) {
	limit, err := clampLimit(c.Query("limit"), 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Invalid limit", c.Query("limit")))
		return
	}

	events, err := s.lm.Storage().ListAlarmEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("ALARM_500", "Failed to list events", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// POST /api/v1/alarms/rules
func (s *Server) createAlarmRule(c *gin.Context) {
	var rule alarms.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Invalid request body", err.Error()))
		return
	}
	rule.ID = 0
	if rule.Level == "" {
		rule.Level = alarms.LevelWarning
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Invalid rule", err.Error()))
		return
	}
	if _, ok := s.lm.Registry().Tag(rule.TagID); !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Unknown tag", rule.TagID))
		return
	}

	created, err := s.lm.Storage().CreateAlarmRule(c.Request.Context(), rule)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("ALARM_500", "Failed to persist rule", err.Error()))
		return
	}

	s.reloadRules(c)
	c.JSON(http.StatusCreated, created)
}

// PUT /api/v1/alarms/rules/:id
func (s *Server) updateAlarmRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var rule alarms.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Invalid request body", err.Error()))
		return
	}
	rule.ID = id
	if rule.Level == "" {
		rule.Level = alarms.LevelWarning
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("ALARM_400", "Invalid rule", err.Error()))
		return
	}

	if err := s.lm.Storage().UpdateAlarmRule(c.Request.Context(), rule); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("ALARM_404", "Rule not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("ALARM_500", "Failed to update rule", err.Error()))
		return
	}

	s.reloadRules(c)
	c.JSON(http.StatusOK, rule)
}

// DELETE /api/v1/alarms/rules/:id
func (s *Server) deleteAlarmRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := s.lm.Storage().DeleteAlarmRule(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("ALARM_404", "Rule not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("ALARM_500", "Failed to delete rule", err.Error()))
		return
	}

	s.reloadRules(c)
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}
