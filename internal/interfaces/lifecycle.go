package interfaces

import (
	"context"
	"time"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/config"
	"github.com/modbusmon/modbusmon/internal/poller"
	"github.com/modbusmon/modbusmon/internal/snapshot"
	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State         string    `json:"state"`
	DeviceCount   int       `json:"device_count"`
	ActiveDevices int       `json:"active_devices"`
	TagCount      int       `json:"tag_count"`
	Cycles        uint64    `json:"cycles"`
	SkippedTicks  uint64    `json:"skipped_ticks"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
}

// LifecycleManager gives the API layer access to the running system
// without binding it to the concrete lifecycle implementation.
type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	Registry() *tags.Registry
	Snapshots() *snapshot.Store
	Scheduler() *poller.Scheduler
	AlarmEngine() *alarms.Engine
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
