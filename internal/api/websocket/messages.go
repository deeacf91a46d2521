package websocket

import (
	"time"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/snapshot"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// One polling cycle's worth of tag values
	MessageTypeTagUpdate MessageType = "tag_update"

	// A device failed during the last cycle
	MessageTypeDeviceError MessageType = "device_error"

	// An alarm rule fired or cleared
	MessageTypeAlarmEvent MessageType = "alarm_event"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TagRow is one tag's latest observation on the wire. Timestamps are
// epoch milliseconds to match the REST dashboard payload.
type TagRow struct {
	ID     int64          `json:"id"`
	Value  snapshot.Value `json:"value"`
	TS     int64          `json:"ts"`
	Status string         `json:"status"`
}

// TagUpdateData carries a full cycle's entries.
type TagUpdateData struct {
	Cycle uint64   `json:"cycle"`
	Tags  []TagRow `json:"tags"`
}

// DeviceErrorData reports a device whose poll failed.
type DeviceErrorData struct {
	DeviceID int64  `json:"device_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTagUpdateMessage(cycle uint64, entries []snapshot.Entry) Message {
	rows := make([]TagRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, TagRow{
			ID:     e.TagID,
			Value:  e.Value,
			TS:     e.Timestamp.UnixMilli(),
			Status: string(e.Status),
		})
	}
	return NewMessage(MessageTypeTagUpdate, TagUpdateData{Cycle: cycle, Tags: rows})
}

func NewAlarmEventMessage(ev alarms.Event) Message {
	return NewMessage(MessageTypeAlarmEvent, ev)
}

func NewDeviceErrorMessage(deviceID int64, name, status string) Message {
	return NewMessage(MessageTypeDeviceError, DeviceErrorData{
		DeviceID: deviceID,
		Name:     name,
		Status:   status,
	})
}
