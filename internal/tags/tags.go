package tags

import (
	"fmt"
	"strings"
	"time"

	"github.com/modbusmon/modbusmon/internal/modbus"
)

// Protocol names match the persisted device records.
const (
	ProtocolTCP = "ModbusTCP"
	ProtocolRTU = "ModbusRTU"
)

// Device is one Modbus-reachable endpoint, TCP or RTU serial. It owns zero
// or more Tags; deactivating a device removes its tags from active polling
// without deleting their configuration.
type Device struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`

	// TCP
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// RTU
	SerialPort string `json:"serial_port,omitempty"`
	BaudRate   int    `json:"baud_rate,omitempty"`
	DataBits   int    `json:"data_bits,omitempty"`
	Parity     string `json:"parity,omitempty"`
	StopBits   int    `json:"stop_bits,omitempty"`

	UnitID    uint8         `json:"unit_id"`
	Timeout   time.Duration `json:"-"`
	TimeoutMS int           `json:"timeout_ms"`
	ByteOrder string        `json:"byte_order"` // BigEndian | LittleEndian
	WordOrder string        `json:"word_order"` // AB | BA
	Active    bool          `json:"active"`
}

// ConnConfig maps the device onto the transport layer's configuration.
func (d Device) ConnConfig() modbus.ConnConfig {
	return modbus.ConnConfig{
		Protocol:   d.Protocol,
		Host:       d.Host,
		Port:       d.Port,
		SerialPort: d.SerialPort,
		BaudRate:   d.BaudRate,
		DataBits:   d.DataBits,
		StopBits:   d.StopBits,
		Parity:     d.Parity,
		UnitID:     d.UnitID,
		Timeout:    d.Timeout,
	}
}

// Validate rejects device records that cannot be polled.
func (d Device) Validate() error {
	switch d.Protocol {
	case ProtocolTCP:
		if strings.TrimSpace(d.Host) == "" {
			return fmt.Errorf("device %q: host is required for %s", d.Name, ProtocolTCP)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("device %q: invalid port %d", d.Name, d.Port)
		}
	case ProtocolRTU:
		if strings.TrimSpace(d.SerialPort) == "" {
			return fmt.Errorf("device %q: serial port is required for %s", d.Name, ProtocolRTU)
		}
	default:
		return fmt.Errorf("device %q: unsupported protocol %q", d.Name, d.Protocol)
	}
	return nil
}

// Tag binds one monitored register to its owning device. Address holds the
// user-facing token as configured; RegisterType and WireAddress are the
// resolved binding and only change through an explicit edit.
type Tag struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Name     string `json:"name"`

	Address      string              `json:"address"`
	ZeroBased    bool                `json:"zero_based"`
	RegisterType modbus.RegisterType `json:"-"`
	RegisterName string              `json:"register_type"`
	WireAddress  uint16              `json:"wire_address"`

	Datatype string  `json:"datatype"`
	Scale    float64 `json:"scale"`
	Offset   float64 `json:"offset"`
	Unit     string  `json:"unit,omitempty"`
	Group    string  `json:"group"`
}

// Quantity is the register count one read of this tag requests.
func (t Tag) Quantity() uint16 {
	return modbus.Quantity(t.Datatype)
}

// DataLogger is a named grouping of tags used purely to select which tags a
// dashboard view displays. It carries no polling semantics.
type DataLogger struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Enabled     bool    `json:"enabled"`
	Description string  `json:"description,omitempty"`
	TagIDs      []int64 `json:"tag_ids"`
}
