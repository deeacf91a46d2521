package modbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"
	"go.uber.org/zap"
)

var errNotConnected = errors.New("modbus: not connected")

// ConnConfig carries the transport parameters for one Modbus endpoint.
type ConnConfig struct {
	Protocol   string // "ModbusTCP" or "ModbusRTU"
	Host       string
	Port       int
	SerialPort string
	BaudRate   int
	DataBits   int
	StopBits   int
	Parity     string // "N", "E", "O"
	UnitID     byte
	Timeout    time.Duration
}

// Target returns a human-readable endpoint address for logs.
func (c ConnConfig) Target() string {
	if strings.EqualFold(c.Protocol, "ModbusRTU") {
		return c.SerialPort
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientHandler joins the driver's ClientHandler with the connection
// lifecycle both the TCP and RTU handlers expose.
type clientHandler interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// Conn owns one transport session to a Modbus endpoint. A single link,
// especially an RTU serial line, cannot service concurrent requests, so all
// reads are serialized behind a mutex. The session is opened lazily on the
// first read; any transport failure closes it so the next read dials fresh
// instead of reusing a broken socket.
type Conn struct {
	cfg    ConnConfig
	logger *zap.Logger

	mu        sync.Mutex
	handler   clientHandler
	client    mb.Client
	connected bool
}

func NewConn(cfg ConnConfig, logger *zap.Logger) *Conn {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &Conn{cfg: cfg, logger: logger}
}

func (c *Conn) newHandler() (clientHandler, error) {
	switch {
	case strings.EqualFold(c.cfg.Protocol, "ModbusTCP"):
		h := mb.NewTCPClientHandler(fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port))
		h.Timeout = c.cfg.Timeout
		h.SlaveId = c.cfg.UnitID
		return h, nil
	case strings.EqualFold(c.cfg.Protocol, "ModbusRTU"):
		if strings.TrimSpace(c.cfg.SerialPort) == "" {
			return nil, fmt.Errorf("serial port is required for RTU")
		}
		h := mb.NewRTUClientHandler(c.cfg.SerialPort)
		if c.cfg.BaudRate > 0 {
			h.BaudRate = c.cfg.BaudRate
		}
		if c.cfg.DataBits > 0 {
			h.DataBits = c.cfg.DataBits
		}
		if c.cfg.StopBits > 0 {
			h.StopBits = c.cfg.StopBits
		}
		if p := strings.ToUpper(strings.TrimSpace(c.cfg.Parity)); p != "" {
			h.Parity = p
		}
		h.Timeout = c.cfg.Timeout
		h.SlaveId = c.cfg.UnitID
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %q", c.cfg.Protocol)
	}
}

// ensureConnected must be called with c.mu held.
func (c *Conn) ensureConnected() error {
	if c.connected {
		return nil
	}
	h, err := c.newHandler()
	if err != nil {
		return err
	}
	if err := h.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.Target(), err)
	}
	c.handler = h
	c.client = mb.NewClient(h)
	c.connected = true
	c.logger.Debug("modbus session opened", zap.String("target", c.cfg.Target()))
	return nil
}

// invalidate must be called with c.mu held.
func (c *Conn) invalidate() {
	if c.handler != nil {
		_ = c.handler.Close()
	}
	c.handler = nil
	c.client = nil
	c.connected = false
}

// Read issues one request for count points starting at the zero-based wire
// address. Register tables return two bytes per register; bit tables return
// LSB-first packed bytes. Failures are returned to the caller for status
// classification and additionally invalidate the session.
func (c *Conn) Read(rt RegisterType, address, count uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		c.invalidate()
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	switch rt {
	case RegisterTypeCoil:
		data, err = c.client.ReadCoils(address, count)
	case RegisterTypeDiscreteInput:
		data, err = c.client.ReadDiscreteInputs(address, count)
	case RegisterTypeInputRegister:
		data, err = c.client.ReadInputRegisters(address, count)
	case RegisterTypeHoldingRegister:
		data, err = c.client.ReadHoldingRegisters(address, count)
	default:
		return nil, fmt.Errorf("unsupported register type: %v", rt)
	}

	if err != nil {
		c.invalidate()
		return nil, fmt.Errorf("read %s@%d on %s: %w", rt, address, c.cfg.Target(), err)
	}
	return data, nil
}

// Write sets a single coil or holding register. Only these two tables are
// writable in Modbus; the poll path never calls this.
func (c *Conn) Write(rt RegisterType, address, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		c.invalidate()
		return err
	}

	var err error
	switch rt {
	case RegisterTypeCoil:
		coil := uint16(0x0000)
		if value != 0 {
			coil = 0xFF00
		}
		_, err = c.client.WriteSingleCoil(address, coil)
	case RegisterTypeHoldingRegister:
		_, err = c.client.WriteSingleRegister(address, value)
	default:
		return fmt.Errorf("register type %s is not writable", rt)
	}

	if err != nil {
		c.invalidate()
		return fmt.Errorf("write %s@%d on %s: %w", rt, address, c.cfg.Target(), err)
	}
	return nil
}

// Close releases the transport session.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.client = nil
	c.connected = false
	return err
}
