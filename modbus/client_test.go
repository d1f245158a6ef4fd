package modbus

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RegistersBothModes(t *testing.T) {
	for _, mode := range []Mode{RTU, TCP} {
		t.Run(mode.String(), func(t *testing.T) {
			mem := newMemory(mode)
			client, _ := newTestClient(t, mode, mem.handle)
			ctx := context.Background()

			n, err := client.WriteRegisters(ctx, 1, 100, 0x1234, 0xABCD)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			words, err := client.ReadRegisters(ctx, 1, 100, 3)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0x1234, 0xABCD, 0}, words)

			n, err = client.WriteRegister(ctx, 1, 102, 7)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			v, err := client.Read(ctx, ReadInput, 1, 102, 1)
			require.NoError(t, err)
			assert.Equal(t, []uint16{7}, v)
		})
	}
}

func TestClient_CoilsBothModes(t *testing.T) {
	for _, mode := range []Mode{RTU, TCP} {
		t.Run(mode.String(), func(t *testing.T) {
			mem := newMemory(mode)
			client, _ := newTestClient(t, mode, mem.handle)
			ctx := context.Background()

			n, err := client.WriteCoils(ctx, 1, 0, 1, 0, 1, 1, 0, 0, 0, 0, 1)
			require.NoError(t, err)
			assert.Equal(t, 9, n)

			bits, err := client.ReadCoils(ctx, 1, 0, 9)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 0, 1, 1, 0, 0, 0, 0, 1}, bits)

			n, err = client.WriteCoil(ctx, 1, 1, 5)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			bits, err = client.ReadDiscretes(ctx, 1, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, []byte{1}, bits)
		})
	}
}

func TestClient_TransactionIDs(t *testing.T) {
	mem := newMemory(TCP)
	client, s := newTestClient(t, TCP, mem.handle, WithProtocolID(0))

	for range 3 {
		_, err := client.ReadRegisters(context.Background(), 1, 0, 1)
		require.NoError(t, err)
	}

	var ids []uint16
	for range 3 {
		ids = append(ids, (<-s.requests).TransactionID)
	}
	assert.Equal(t, []uint16{1, 2, 3}, ids)
}

func TestClient_TransactionMismatch(t *testing.T) {
	client, _ := newTestClient(t, TCP, func(req *Request) []byte {
		rs := req.CreateReply()
		rs.TransactionID++
		rs.Payload = []byte{0, 1}

		return rs.Encode(TCP)
	})

	_, err := client.ReadRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrTransactionMismatch)
}

func TestClient_Exception(t *testing.T) {
	client, _ := newTestClient(t, RTU, func(req *Request) []byte {
		rs := req.CreateReply()
		rs.Exception = IllegalDataAddress

		return rs.Encode(RTU)
	})

	_, err := client.ReadRegisters(context.Background(), 1, 9999, 1)
	require.ErrorIs(t, err, ErrException)

	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, IllegalDataAddress, exc.Code)
	assert.Equal(t, uint64(1), client.Session().Metrics().ProtocolErrCount.Load())
}

func TestClient_CRCMismatchUsesData(t *testing.T) {
	client, _ := newTestClient(t, RTU, func(req *Request) []byte {
		rs := req.CreateReply()
		rs.Payload = []byte{0x00, 0x2A}
		buf := rs.Encode(RTU)
		buf[len(buf)-2] ^= 0x55

		return buf
	})

	words, err := client.ReadRegisters(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, words)
	assert.Equal(t, uint64(1), client.Session().Metrics().ChecksumErrCount.Load())
}

func TestClient_TimeoutReturnsNil(t *testing.T) {
	client, _ := newTestClient(t, RTU, func(*Request) []byte { return nil })

	words, err := client.ReadRegisters(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, words)

	n, err := client.WriteRegister(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestClient_UnsupportedFunctionsFailBeforeIO(t *testing.T) {
	client, s := newTestClient(t, RTU, func(*Request) []byte { return nil })
	ctx := context.Background()

	for _, fn := range []Function{Diagnostics, WriteFileRecord, ReadWriteMultipleRegisters} {
		_, err := client.SendCommand(ctx, 1, fn, 0, nil)
		require.ErrorIs(t, err, ErrUnsupportedFunction)

		_, err = client.Read(ctx, fn, 1, 0, 1)
		require.ErrorIs(t, err, ErrUnsupportedFunction)

		_, err = client.Write(ctx, fn, 1, 0, []uint16{1})
		require.ErrorIs(t, err, ErrUnsupportedFunction)
	}

	_, err := client.Write(ctx, WriteRegister, 1, 0, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, s.requests)
	assert.Zero(t, client.Session().Metrics().FrameSendCount.Load())
}

func TestClient_WriteCoilEncodesOn(t *testing.T) {
	mem := newMemory(RTU)
	client, s := newTestClient(t, RTU, mem.handle)

	_, err := client.Write(context.Background(), WriteCoil, 1, 3, []uint16{0x0001})
	require.NoError(t, err)

	req := <-s.requests
	assert.Equal(t, CoilOn, binary.BigEndian.Uint16(req.Payload))
}

func TestClient_FunctionMismatch(t *testing.T) {
	client, _ := newTestClient(t, RTU, func(req *Request) []byte {
		rs := &Reply{Host: req.Host, Function: ReadInput, Payload: []byte{0, 1}}
		return rs.Encode(RTU)
	})

	_, err := client.ReadRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, RTU)
	require.Error(t, err)

	client, _ := newTestClient(t, TCP, func(*Request) []byte { return nil })
	assert.Equal(t, TCP, client.Mode())

	_, err = NewClient(client.Session(), Mode(9))
	require.Error(t, err)

	_, err = NewClient(client.Session(), RTU, WithLogger(nil))
	require.Error(t, err)
}
