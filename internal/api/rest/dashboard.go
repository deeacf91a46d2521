package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modbusmon/modbusmon/internal/snapshot"
)

// tagRow is the dashboard wire format for one tag. Values marshal as a
// JSON number for numeric readings and as a string otherwise; ts is
// epoch milliseconds of the last read and is omitted for tags that have
// not been polled yet.
type tagRow struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Value    snapshot.Value `json:"value"`
	TS       int64          `json:"ts,omitempty"`
	Status   string         `json:"status"`
	Unit     string         `json:"unit,omitempty"`
	Group    string         `json:"group"`
	DeviceID int64          `json:"device_id"`
}

// GET /api/tags
//
// Returns the latest value of every configured tag. Optional filters:
// device (device ID), group (group name), logger (data logger ID).
func (s *Server) dashboardTags(c *gin.Context) {
	registry := s.lm.Registry()
	store := s.lm.Snapshots()

	var loggerTags map[int64]struct{}
	if loggerStr := c.Query("logger"); loggerStr != "" {
		loggerID, err := strconv.ParseInt(loggerStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse("DASH_400", "Invalid logger ID", loggerStr))
			return
		}
		ids, err := s.lm.Storage().ListDataLoggerTags(c.Request.Context(), loggerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse("DASH_500", "Failed to resolve logger", err.Error()))
			return
		}
		loggerTags = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			loggerTags[id] = struct{}{}
		}
	}

	var deviceFilter int64
	if deviceStr := c.Query("device"); deviceStr != "" {
		id, err := strconv.ParseInt(deviceStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse("DASH_400", "Invalid device ID", deviceStr))
			return
		}
		deviceFilter = id
	}
	groupFilter := c.Query("group")

	rows := make([]tagRow, 0)
	for _, tag := range registry.Tags() {
		if deviceFilter != 0 && tag.DeviceID != deviceFilter {
			continue
		}
		if groupFilter != "" && tag.Group != groupFilter {
			continue
		}
		if loggerTags != nil {
			if _, ok := loggerTags[tag.ID]; !ok {
				continue
			}
		}

		row := tagRow{
			ID:       tag.ID,
			Name:     tag.Name,
			Unit:     tag.Unit,
			Group:    tag.Group,
			DeviceID: tag.DeviceID,
		}
		if entry, ok := store.Get(tag.ID); ok {
			row.Value = entry.Value
			row.TS = entry.Timestamp.UnixMilli()
			row.Status = string(entry.Status)
		} else {
			// Not yet polled.
			row.Value = snapshot.Text("--")
			row.Status = "pending"
		}
		rows = append(rows, row)
	}

	c.JSON(http.StatusOK, gin.H{"tags": rows})
}

// GET /api/dashboard/config
//
// Client refresh cadence is cosmetic: the server polls on its own
// fixed interval regardless of what clients do with this value.
func (s *Server) dashboardConfig(c *gin.Context) {
	cfg := s.lm.Config()
	c.JSON(http.StatusOK, gin.H{
		"refresh_ms": cfg.Dashboard.RefreshInterval.Milliseconds(),
		"poll_ms":    cfg.Polling.Interval.Milliseconds(),
	})
}
