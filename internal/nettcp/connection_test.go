package nettcp

import (
	"testing"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeNotifier records every message posted to it, letting tests assert on
// the notifications a connection/listener emits without a real actor loop.
type fakeNotifier struct {
	received []actor.Message
}

func (f *fakeNotifier) Post(msg actor.Message, front bool) error {
	f.received = append(f.received, msg)
	return nil
}

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	c, err := NewConnection("test", testLogger())
	require.NoError(t, err)
	return c
}

func TestConnection_Ingest_AcceptAllConsumesEverything(t *testing.T) {
	c := newTestConnection(t)
	var got []byte
	c.ReceiveHandler = func(data []byte) int {
		got = append([]byte{}, data...)
		return len(data)
	}

	copy(c.recvBuf[:], []byte("hello"))
	c.ingest(5)

	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 0, c.recvLen)
}

func TestConnection_Ingest_PartialAcceptLeavesRemainderForNextCall(t *testing.T) {
	c := newTestConnection(t)
	var calls [][]byte
	c.ReceiveHandler = func(data []byte) int {
		calls = append(calls, append([]byte{}, data...))
		if len(data) >= 4 {
			return 4 // only ever consume one fixed-size frame at a time
		}
		return 0
	}

	copy(c.recvBuf[:], []byte("ABCDEFGHIJ"))
	c.ingest(10)

	require.Len(t, calls, 3)
	assert.Equal(t, []byte("ABCDEFGHIJ"), calls[0])
	assert.Equal(t, []byte("EFGHIJ"), calls[1])
	assert.Equal(t, 2, c.recvLen)
}

func TestConnection_Ingest_ZeroAcceptedStopsWithoutLoss(t *testing.T) {
	c := newTestConnection(t)
	c.ReceiveHandler = func(data []byte) int { return 0 } // waiting for more bytes

	copy(c.recvBuf[:], []byte("partial"))
	c.ingest(7)

	assert.Equal(t, 7, c.recvLen)
}

func TestConnection_Ingest_OutOfRangeAcceptedForcesFullAdvanceAndReportsIllegalUse(t *testing.T) {
	c := newTestConnection(t)
	fn := &fakeNotifier{}
	c.SetNotifier(fn)
	c.ReceiveHandler = func(data []byte) int { return len(data) + 100 } // illegal

	copy(c.recvBuf[:], []byte("data"))
	c.ingest(4)

	assert.Equal(t, 0, c.recvLen)
	require.Len(t, fn.received, 1)
	em, ok := fn.received[0].(ErrorMsg)
	require.True(t, ok)
	assert.Equal(t, ErrAPIllegalUse, em.Code)
}

func TestConnection_SetServerAddr_RejectsZeroPort(t *testing.T) {
	c := newTestConnection(t)
	err := c.SetServerAddr("127.0.0.1", 0, DefaultT1MS, DefaultT2MS)
	assert.Error(t, err)
}

func TestConnection_GetStatus_DefaultsToDisconnected(t *testing.T) {
	c := newTestConnection(t)
	assert.Equal(t, StatusDisconnected, c.GetStatus())
}
