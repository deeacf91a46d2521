package modbus

import (
	"fmt"
	"strconv"
	"strings"
)

// RegisterType classifies the four Modbus register tables.
type RegisterType uint8

const (
	RegisterTypeCoil RegisterType = iota + 1
	RegisterTypeDiscreteInput
	RegisterTypeInputRegister
	RegisterTypeHoldingRegister
)

func (t RegisterType) String() string {
	switch t {
	case RegisterTypeCoil:
		return "coil"
	case RegisterTypeDiscreteInput:
		return "discrete"
	case RegisterTypeInputRegister:
		return "input"
	case RegisterTypeHoldingRegister:
		return "holding"
	default:
		return "unknown"
	}
}

// ParseRegisterType parses the persisted register type names.
func ParseRegisterType(s string) (RegisterType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coil", "coils":
		return RegisterTypeCoil, nil
	case "discrete", "discrete_input", "discrete_inputs":
		return RegisterTypeDiscreteInput, nil
	case "input", "input_register", "input_registers":
		return RegisterTypeInputRegister, nil
	case "holding", "holding_register", "holding_registers":
		return RegisterTypeHoldingRegister, nil
	default:
		return 0, fmt.Errorf("unknown register type: %q", s)
	}
}

// Conventional 1-based address ranges per register table.
var addressRanges = map[RegisterType]struct{ lo, hi uint32 }{
	RegisterTypeCoil:            {1, 9999},
	RegisterTypeDiscreteInput:   {10001, 19999},
	RegisterTypeInputRegister:   {30001, 39999},
	RegisterTypeHoldingRegister: {40001, 49999},
}

// AddressFormatError reports a user-facing address token that cannot be
// bound to a wire address. It is raised at configuration-edit time, never
// during polling.
type AddressFormatError struct {
	Token  string
	Reason string
}

func (e *AddressFormatError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Token, e.Reason)
}

// ResolveAddress converts a user-facing address token into a zero-based wire
// address. By default the token is interpreted in the conventional 1-based
// convention (e.g. 40001..49999 for holding registers) and must fall inside
// the range of the declared register type. With zeroBased set, the token is
// taken as a raw zero-based address and passes through unchanged.
//
// The function is pure: equal inputs always produce equal outputs.
func ResolveAddress(token string, hint RegisterType, zeroBased bool) (RegisterType, uint16, error) {
	trimmed := strings.TrimSpace(token)
	n, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return 0, 0, &AddressFormatError{Token: token, Reason: "not a non-negative integer"}
	}

	if zeroBased {
		if n > 0xFFFF {
			return 0, 0, &AddressFormatError{Token: token, Reason: "zero-based address exceeds 65535"}
		}
		if _, ok := addressRanges[hint]; !ok {
			return 0, 0, &AddressFormatError{Token: token, Reason: "register type required for zero-based address"}
		}
		return hint, uint16(n), nil
	}

	rt, ok := classifyConventional(uint32(n))
	if !ok {
		return 0, 0, &AddressFormatError{Token: token, Reason: "outside the conventional 1-based ranges"}
	}
	if hint != 0 && hint != rt {
		return 0, 0, &AddressFormatError{
			Token:  token,
			Reason: fmt.Sprintf("range implies %s but tag declares %s", rt, hint),
		}
	}
	return rt, uint16(uint32(n) - addressRanges[rt].lo), nil
}

func classifyConventional(n uint32) (RegisterType, bool) {
	for rt, r := range addressRanges {
		if n >= r.lo && n <= r.hi {
			return rt, true
		}
	}
	return 0, false
}
