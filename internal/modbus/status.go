package modbus

import (
	"context"
	"errors"
	"net"
	"os"

	mb "github.com/goburrow/modbus"
)

// Status is the per-read outcome recorded in a tag's snapshot entry.
// Every failure kind is recoverable: it degrades the tag's status for the
// cycle and never propagates out of the poll path.
type Status string

const (
	StatusOK            Status = "ok"
	StatusTimeout       Status = "timeout"
	StatusUnreachable   Status = "device-unreachable"
	StatusProtocolError Status = "protocol-error"
)

// Classify maps a transport or protocol error onto the snapshot status
// taxonomy. Timeouts (socket deadlines, expired device budgets) map to
// StatusTimeout, connection-level failures to StatusUnreachable, and
// everything else, including Modbus exception responses, to
// StatusProtocolError.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return StatusTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	var mbErr *mb.ModbusError
	if errors.As(err, &mbErr) {
		return StatusProtocolError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StatusUnreachable
	}
	if errors.Is(err, errNotConnected) {
		return StatusUnreachable
	}

	return StatusProtocolError
}
