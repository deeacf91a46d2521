package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/tags"
)

func sampleDocJSON() []byte {
	return []byte(`{
		"version": 1,
		"devices": [
			{
				"name": "plc-line-1",
				"protocol": "ModbusTCP",
				"host": "10.0.0.5",
				"unit_id": 1,
				"tags": [
					{"name": "speed", "address": "40001", "datatype": "uint16", "unit": "rpm"},
					{"name": "temp", "address": "40002", "datatype": "int16", "scale": 0.1}
				]
			}
		],
		"loggers": [
			{"name": "line-overview", "tags": ["plc-line-1/speed"]}
		],
		"alarms": [
			{"name": "overspeed", "tag": "plc-line-1/speed", "operator": ">", "threshold": 1500}
		]
	}`)
}

func TestValidateJSONAcceptsWellFormedDocument(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	assert.NoError(t, v.ValidateJSON(sampleDocJSON()))
}

func TestValidateJSONRejections(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
	}{
		{
			"wrong version",
			`{"version": 2, "devices": []}`,
		},
		{
			"missing devices",
			`{"version": 1}`,
		},
		{
			"unknown protocol",
			`{"version": 1, "devices": [{"name": "d", "protocol": "DNP3"}]}`,
		},
		{
			"non-numeric address",
			`{"version": 1, "devices": [{"name": "d", "protocol": "ModbusTCP",
				"tags": [{"name": "t", "address": "4x0001", "datatype": "uint16"}]}]}`,
		},
		{
			"bad alarm operator",
			`{"version": 1, "devices": [], "alarms":
				[{"name": "a", "tag": "d/t", "operator": "~=", "threshold": 1}]}`,
		},
		{
			"alarm tag reference without device part",
			`{"version": 1, "devices": [], "alarms":
				[{"name": "a", "tag": "speed", "operator": ">", "threshold": 1}]}`,
		},
		{
			"unknown top-level field",
			`{"version": 1, "devices": [], "writers": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, v.ValidateJSON([]byte(tt.doc)))
		})
	}
}

func TestValidateDocumentRoundTripsYAMLShape(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	doc := &Document{
		Version: 1,
		Devices: []DeviceSpec{{
			Name:     "meter",
			Protocol: "ModbusRTU",
			Tags: []TagSpec{
				{Name: "energy", Address: "30001", Datatype: "uint32"},
			},
		}},
	}
	assert.NoError(t, v.ValidateDocument(doc))

	doc.Version = 3
	assert.Error(t, v.ValidateDocument(doc))
}

func TestToDeviceDefaults(t *testing.T) {
	d := toDevice(DeviceSpec{Name: "plc", Protocol: "ModbusTCP", Host: "10.0.0.5"})
	assert.Equal(t, 502, d.Port)
	assert.Equal(t, 9600, d.BaudRate)
	assert.Equal(t, 8, d.DataBits)
	assert.Equal(t, 1, d.StopBits)
	assert.Equal(t, "N", d.Parity)
	assert.Equal(t, 1000, d.TimeoutMS)
	assert.Equal(t, "BigEndian", d.ByteOrder)
	assert.Equal(t, "AB", d.WordOrder)
	assert.True(t, d.Active)

	inactive := false
	d = toDevice(DeviceSpec{Name: "plc", Protocol: "ModbusTCP", Host: "h", Port: 1502, Active: &inactive})
	assert.Equal(t, 1502, d.Port)
	assert.False(t, d.Active)
}

func TestToTagDefaults(t *testing.T) {
	tag := toTag(TagSpec{Name: "speed", Address: "40001", Datatype: "uint16"})
	assert.Equal(t, 1.0, tag.Scale)
	assert.Equal(t, "Group1", tag.Group)

	tag = toTag(TagSpec{Name: "temp", Address: "40002", Datatype: "int16", Scale: 0.1, Group: "Oven"})
	assert.Equal(t, 0.1, tag.Scale)
	assert.Equal(t, "Oven", tag.Group)
}

func TestStageResolvesAddresses(t *testing.T) {
	doc := &Document{
		Version: 1,
		Devices: []DeviceSpec{{
			Name:     "plc",
			Protocol: "ModbusTCP",
			Host:     "10.0.0.5",
			Tags: []TagSpec{
				{Name: "speed", Address: "40100", Datatype: "uint16"},
				{Name: "running", Address: "1", Datatype: "bool"},
			},
		}},
	}

	staged, err := stage(doc, tags.NewRegistry())
	require.NoError(t, err)
	require.Len(t, staged.devices, 1)
	require.Len(t, staged.tags[0], 2)

	speed := staged.tags[0][0]
	assert.Equal(t, modbus.RegisterTypeHoldingRegister, speed.RegisterType)
	assert.Equal(t, uint16(99), speed.WireAddress)

	running := staged.tags[0][1]
	assert.Equal(t, modbus.RegisterTypeCoil, running.RegisterType)
	assert.Equal(t, uint16(0), running.WireAddress)
}

func TestStageRejectsDuplicateBindingInDocument(t *testing.T) {
	doc := &Document{
		Version: 1,
		Devices: []DeviceSpec{{
			Name:     "plc",
			Protocol: "ModbusTCP",
			Host:     "10.0.0.5",
			Tags: []TagSpec{
				{Name: "a", Address: "40001", Datatype: "uint16"},
				{Name: "b", Address: "40001", Datatype: "uint16"},
			},
		}},
	}

	_, err := stage(doc, tags.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already bound")
}

func TestStageRejectsInvalidDevice(t *testing.T) {
	doc := &Document{
		Version: 1,
		Devices: []DeviceSpec{{Name: "plc", Protocol: "ModbusTCP"}},
	}
	_, err := stage(doc, tags.NewRegistry())
	assert.Error(t, err, "TCP device without a host cannot be staged")
}
