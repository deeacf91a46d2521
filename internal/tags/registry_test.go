package tags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modbusmon/modbusmon/internal/modbus"
)

func testDevice(id int64, name string) Device {
	return Device{
		ID:        id,
		Name:      name,
		Protocol:  ProtocolTCP,
		Host:      "10.0.0.1",
		Port:      502,
		UnitID:    1,
		Timeout:   time.Second,
		TimeoutMS: 1000,
		ByteOrder: "BigEndian",
		WordOrder: "AB",
		Active:    true,
	}
}

func testTag(id, deviceID int64, name, address string) Tag {
	return Tag{
		ID:       id,
		DeviceID: deviceID,
		Name:     name,
		Address:  address,
		Datatype: "uint16",
		Scale:    1,
		Group:    "Group1",
	}
}

func TestUpsertTagResolvesAddress(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.UpsertDevice(testDevice(1, "plc")))

	resolved, err := r.UpsertTag(testTag(10, 1, "speed", "40100"))
	require.NoError(t, err)
	assert.Equal(t, modbus.RegisterTypeHoldingRegister, resolved.RegisterType)
	assert.Equal(t, "holding", resolved.RegisterName)
	assert.Equal(t, uint16(99), resolved.WireAddress)
	// The user-facing token is preserved as entered.
	assert.Equal(t, "40100", resolved.Address)
}

func TestUpsertTagUnknownDevice(t *testing.T) {
	r := NewRegistry()
	_, err := r.UpsertTag(testTag(10, 99, "speed", "40001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device")
}

func TestUpsertTagDuplicateBinding(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.UpsertDevice(testDevice(1, "plc")))
	require.NoError(t, r.UpsertDevice(testDevice(2, "meter")))

	_, err := r.UpsertTag(testTag(10, 1, "a", "40001"))
	require.NoError(t, err)

	// Same register on the same device is rejected.
	_, err = r.UpsertTag(testTag(11, 1, "b", "40001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already bound")

	// Same register on another device is fine.
	_, err = r.UpsertTag(testTag(12, 2, "c", "40001"))
	assert.NoError(t, err)

	// Re-upserting the same tag ID is an edit, not a duplicate.
	_, err = r.UpsertTag(testTag(10, 1, "a-renamed", "40001"))
	assert.NoError(t, err)
}

func TestRemoveDeviceCascades(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.UpsertDevice(testDevice(1, "plc")))
	require.NoError(t, r.UpsertDevice(testDevice(2, "meter")))
	_, err := r.UpsertTag(testTag(10, 1, "a", "40001"))
	require.NoError(t, err)
	_, err = r.UpsertTag(testTag(11, 2, "b", "30001"))
	require.NoError(t, err)

	r.RemoveDevice(1)

	_, ok := r.Device(1)
	assert.False(t, ok)
	_, ok = r.Tag(10)
	assert.False(t, ok)
	_, ok = r.Tag(11)
	assert.True(t, ok)
}

func TestViewExcludesInactiveDevices(t *testing.T) {
	r := NewRegistry()
	active := testDevice(1, "plc")
	inactive := testDevice(2, "meter")
	inactive.Active = false
	require.NoError(t, r.UpsertDevice(active))
	require.NoError(t, r.UpsertDevice(inactive))
	_, err := r.UpsertTag(testTag(10, 1, "a", "40001"))
	require.NoError(t, err)
	_, err = r.UpsertTag(testTag(11, 2, "b", "40001"))
	require.NoError(t, err)

	v := r.View()
	require.Len(t, v.Devices, 1)
	assert.Equal(t, int64(1), v.Devices[0].ID)
	assert.Len(t, v.Tags[1], 1)
	assert.Empty(t, v.Tags[2])
}

func TestViewTagOrderIsStable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.UpsertDevice(testDevice(1, "plc")))
	for i, addr := range []string{"40005", "40001", "40003"} {
		_, err := r.UpsertTag(testTag(int64(i+1), 1, addr, addr))
		require.NoError(t, err)
	}

	v := r.View()
	ids := []int64{v.Tags[1][0].ID, v.Tags[1][1].ID, v.Tags[1][2].ID}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestDeviceValidate(t *testing.T) {
	d := testDevice(1, "plc")
	assert.NoError(t, d.Validate())

	d.Host = ""
	assert.Error(t, d.Validate())

	rtu := Device{ID: 2, Name: "meter", Protocol: ProtocolRTU, SerialPort: "/dev/ttyUSB0", Active: true}
	assert.NoError(t, rtu.Validate())
	rtu.SerialPort = ""
	assert.Error(t, rtu.Validate())

	bad := Device{ID: 3, Name: "x", Protocol: "DNP3"}
	assert.Error(t, bad.Validate())
}

func TestReplaceAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.UpsertDevice(testDevice(9, "old")))

	err := r.ReplaceAll(
		[]Device{testDevice(1, "plc")},
		[]Tag{testTag(10, 1, "a", "40001")},
	)
	require.NoError(t, err)

	_, ok := r.Device(9)
	assert.False(t, ok)
	_, ok = r.Device(1)
	assert.True(t, ok)

	// A failing load leaves the registry untouched.
	err = r.ReplaceAll(
		[]Device{testDevice(2, "meter")},
		[]Tag{testTag(11, 2, "b", "99999")},
	)
	require.Error(t, err)
	_, ok = r.Device(1)
	assert.True(t, ok)
}
