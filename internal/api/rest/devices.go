package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse("API_400", "Invalid ID", c.Param("id")))
		return 0, false
	}
	return id, true
}

// normalizeDevice fills defaults a request body may omit.
func normalizeDevice(d *tags.Device) {
	if d.TimeoutMS <= 0 {
		d.TimeoutMS = 1000
	}
	d.Timeout = time.Duration(d.TimeoutMS) * time.Millisecond
	if d.ByteOrder == "" {
		d.ByteOrder = "BigEndian"
	}
	if d.WordOrder == "" {
		d.WordOrder = "AB"
	}
	if d.Protocol == tags.ProtocolTCP && d.Port == 0 {
		d.Port = 502
	}
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices := s.lm.Registry().Devices()
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	device, exists := s.lm.Registry().Device(id)
	if !exists {
		c.JSON(http.StatusNotFound, NewErrorResponse("DEVICE_404", "Device not found", id))
		return
	}

	deviceTags := make([]tags.Tag, 0)
	for _, t := range s.lm.Registry().Tags() {
		if t.DeviceID == id {
			deviceTags = append(deviceTags, t)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device,
		"tags":   deviceTags,
	})
}

// POST /api/v1/devices
func (s *Server) createDevice(c *gin.Context) {
	var device tags.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("DEVICE_400", "Invalid request body", err.Error()))
		return
	}
	device.ID = 0
	normalizeDevice(&device)

	if err := device.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("DEVICE_400", "Invalid device", err.Error()))
		return
	}

	created, err := s.lm.Storage().CreateDevice(c.Request.Context(), device)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("DEVICE_500", "Failed to persist device", err.Error()))
		return
	}

	if err := s.lm.Registry().UpsertDevice(created); err != nil {
		s.logger.Error("Persisted device rejected by registry", zap.Int64("id", created.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse("DEVICE_500", "Failed to activate device", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, created)
}

// PUT /api/v1/devices/:id
func (s *Server) updateDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var device tags.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("DEVICE_400", "Invalid request body", err.Error()))
		return
	}
	device.ID = id
	normalizeDevice(&device)

	if err := device.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("DEVICE_400", "Invalid device", err.Error()))
		return
	}

	if err := s.lm.Storage().UpdateDevice(c.Request.Context(), device); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("DEVICE_404", "Device not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("DEVICE_500", "Failed to update device", err.Error()))
		return
	}

	if err := s.lm.Registry().UpsertDevice(device); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("DEVICE_500", "Failed to activate device", err.Error()))
		return
	}

	c.JSON(http.StatusOK, device)
}

// DELETE /api/v1/devices/:id
func (s *Server) deleteDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := s.lm.Storage().DeleteDevice(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("DEVICE_404", "Device not found", id))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse("DEVICE_500", "Failed to delete device", err.Error()))
		return
	}

	// Registry removal cascades to the device's tags; their snapshot
	// entries disappear at the next cycle boundary.
	s.lm.Registry().RemoveDevice(id)

	c.JSON(http.StatusOK, gin.H{"message": "Device deleted successfully"})
}
