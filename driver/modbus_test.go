package driver

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/modbus"
	"github.com/arloliu/go-plclink/point"
)

func TestModbusDriver_OpenDefaults(t *testing.T) {
	d, _ := newTestModbusDriver(t, newDevice(modbus.TCP))

	n, err := d.Open(Params{Endpoint: "plc.local", Mode: modbus.TCP, Station: 1})
	require.NoError(t, err)
	assert.Equal(t, "tcp://plc.local", n.Key())
	assert.Equal(t, modbus.ReadRegister, n.ReadFunction)
	assert.Equal(t, modbus.WriteRegisters, n.WriteFunction)

	rtu, err := d.Open(Params{Endpoint: "/dev/ttyS1", Mode: modbus.RTU})
	require.NoError(t, err)
	assert.Equal(t, "serial:///dev/ttyS1", rtu.Key())

	_, err = d.Open(Params{Endpoint: "plc.local", ReadFunction: modbus.WriteCoil})
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = d.Open(Params{Endpoint: "plc.local", WriteFunction: modbus.ReadCoil})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestModbusDriver_ReadRegistersTCP(t *testing.T) {
	dev := newDevice(modbus.TCP)
	dev.registers[100] = 0x1234
	dev.registers[101] = 0xABCD
	bits := math.Float32bits(-2.25)
	dev.registers[110] = uint16(bits >> 16)
	dev.registers[111] = uint16(bits)

	d, b := newTestModbusDriver(t, dev)
	n, err := d.Open(Params{Endpoint: "plc.local", Mode: modbus.TCP, Station: 1, Step: 10})
	require.NoError(t, err)

	values, err := d.Read(context.Background(), n, []point.Point{
		{Name: "a", Address: "100"},
		{Name: "b", Address: "0x0065"},
		{Name: "t", Address: "110", Type: "float"},
		{Name: "bad", Address: "D1"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"a": uint16(0x1234),
		"b": uint16(0xABCD),
		"t": float32(-2.25),
	}, values)
	assert.Equal(t, []modbus.Function{modbus.ReadRegister}, dev.seen(), "merged into one request")
	assert.EqualValues(t, 1, b.dials.Load())
}

func TestModbusDriver_ReadMaxRegistersTCP(t *testing.T) {
	dev := newDevice(modbus.TCP)
	for i := range modbus.MaxReadRegisters {
		dev.registers[uint16(i)] = uint16(0xA000 + i)
	}

	d, _ := newTestModbusDriver(t, dev)
	n, err := d.Open(Params{Endpoint: "plc.local", Mode: modbus.TCP, Station: 1})
	require.NoError(t, err)
	assert.Equal(t, modbus.MaxADUSize, d.Session(n).Config().BufferSize())

	points := make([]point.Point, modbus.MaxReadRegisters)
	for i := range points {
		points[i] = point.Point{Name: "r" + strconv.Itoa(i), Address: strconv.Itoa(i)}
	}

	values, err := d.Read(context.Background(), n, points)
	require.NoError(t, err)
	require.Len(t, values, modbus.MaxReadRegisters)
	assert.Equal(t, uint16(0xA000), values["r0"])
	assert.Equal(t, uint16(0xA07C), values["r124"])
	assert.Equal(t, []modbus.Function{modbus.ReadRegister}, dev.seen())
}

func TestModbusDriver_WriteUpgradesSingleFunction(t *testing.T) {
	dev := newDevice(modbus.TCP)
	d, _ := newTestModbusDriver(t, dev)
	ctx := context.Background()

	n, err := d.Open(Params{Endpoint: "plc.local", Mode: modbus.TCP, WriteFunction: modbus.WriteRegister})
	require.NoError(t, err)

	written, err := d.Write(ctx, n, point.Point{Name: "sp", Address: "200", Type: "float"}, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, uint16(0x4020), dev.register(200))
	assert.Equal(t, uint16(0x0000), dev.register(201))

	written, err = d.Write(ctx, n, point.Point{Name: "mode", Address: "300"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, uint16(7), dev.register(300))

	assert.Equal(t, []modbus.Function{modbus.WriteRegisters, modbus.WriteRegister}, dev.seen())
}

func TestModbusDriver_CoilsRTU(t *testing.T) {
	dev := newDevice(modbus.RTU)
	d, _ := newTestModbusDriver(t, dev)
	ctx := context.Background()

	n, err := d.Open(Params{
		Endpoint:      "/dev/ttyS2",
		Mode:          modbus.RTU,
		Station:       3,
		ReadFunction:  modbus.ReadCoil,
		WriteFunction: modbus.WriteCoil,
	})
	require.NoError(t, err)

	written, err := d.Write(ctx, n, point.Point{Name: "pump", Address: "5"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, byte(1), dev.coil(5))

	values, err := d.Read(ctx, n, []point.Point{
		{Name: "pump", Address: "5"},
		{Name: "fan", Address: "6"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"pump": true, "fan": false}, values)
	assert.Equal(t, []modbus.Function{modbus.WriteCoil, modbus.ReadCoil}, dev.seen())
}

func TestModbusDriver_CloseDisposesSession(t *testing.T) {
	d, _ := newTestModbusDriver(t, newDevice(modbus.TCP))

	p := Params{Endpoint: "plc.local", Mode: modbus.TCP}
	n1, err := d.Open(p)
	require.NoError(t, err)
	n2, err := d.Open(p)
	require.NoError(t, err)

	require.NoError(t, d.Close(n1))
	assert.NotNil(t, d.Session(n2))
	require.NoError(t, d.Close(n2))
	assert.Nil(t, d.Session(n2))
	require.ErrorIs(t, d.Close(n1), ErrNodeClosed)

	_, err = d.Write(context.Background(), n2, point.Point{Address: "1"}, 1)
	require.ErrorIs(t, err, ErrNodeClosed)
}
