package netudp

import (
	"testing"
	"time"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeNotifier struct {
	received []actor.Message
}

func (f *fakeNotifier) Post(msg actor.Message, front bool) error {
	f.received = append(f.received, msg)
	return nil
}

func TestSocket_SetBindPort_RejectsZero(t *testing.T) {
	s, err := NewSocket("test", 0, testLogger())
	require.NoError(t, err)
	err = s.SetBindPort(0)
	assert.Error(t, err)
}

func TestSocket_Send_RejectsEmptyData(t *testing.T) {
	s, err := NewSocket("test", 0, testLogger())
	require.NoError(t, err)
	err = s.Send(nil, "127.0.0.1", 9999)
	assert.Error(t, err)
}

func TestSocket_Send_RejectsMissingPeerAddr(t *testing.T) {
	s, err := NewSocket("test", 0, testLogger())
	require.NoError(t, err)
	err = s.Send([]byte("hi"), "", 9999)
	assert.Error(t, err)
}

func TestSocket_Send_RejectsZeroPeerPort(t *testing.T) {
	s, err := NewSocket("test", 0, testLogger())
	require.NoError(t, err)
	err = s.Send([]byte("hi"), "127.0.0.1", 0)
	assert.Error(t, err)
}

// boundLoopbackFD opens a real, non-blocking UDP socket bound to loopback on
// an ephemeral port, letting tests drive sendTo/drainReadable without SetBindPort's
// port=0 rejection getting in the way.
func boundLoopbackFD(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })

	sa := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	require.NoError(t, unix.Bind(fd, sa))
	require.NoError(t, unix.SetNonblock(fd, true))

	bound, err := unix.Getsockname(fd)
	require.NoError(t, err)
	return fd, bound.(*unix.SockaddrInet4).Port
}

func TestSocket_SendTo_DeliversDatagramToRealPeer(t *testing.T) {
	s, err := NewSocket("sender", 0, testLogger())
	require.NoError(t, err)
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	require.NoError(t, unix.SetNonblock(fd, true))
	s.fd = fd

	peerFD, peerPort := boundLoopbackFD(t)

	s.sendTo([]byte("ping"), "127.0.0.1", peerPort)

	deadline := time.Now().Add(time.Second)
	var buf [16]byte
	var n int
	for time.Now().Before(deadline) {
		n, _, err = unix.Recvfrom(peerFD, buf[:], 0)
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestSocket_SendTo_RegistersReadInterestLazilyOnFirstCall(t *testing.T) {
	s, err := NewSocket("sender", 0, testLogger())
	require.NoError(t, err)
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	require.NoError(t, unix.SetNonblock(fd, true))
	s.fd = fd

	assert.False(t, s.registered)
	s.sendTo([]byte("x"), "127.0.0.1", 1)
	assert.True(t, s.registered, "sendTo should register read interest on first call")
}

func TestSocket_OnThreadInitiate_RegistersImmediatelyWhenBound(t *testing.T) {
	s, err := NewSocket("bound", 0, testLogger())
	require.NoError(t, err)
	reserved, port := boundLoopbackFD(t) // reserve a free port, then release it
	unix.Close(reserved)
	require.NoError(t, s.SetBindPort(port))

	require.NoError(t, s.OnThreadInitiate())
	defer s.OnThreadTerminate()

	assert.True(t, s.registered)
}

func TestSocket_OnThreadInitiate_DoesNotRegisterWhenSendOnly(t *testing.T) {
	s, err := NewSocket("send-only", 0, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.OnThreadInitiate())
	defer s.OnThreadTerminate()

	assert.False(t, s.registered)
}

func TestSocket_SendTo_ReportsErrorOnInvalidPeerAddr(t *testing.T) {
	s, err := NewSocket("sender", 0, testLogger())
	require.NoError(t, err)
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	s.fd = fd
	fn := &fakeNotifier{}
	s.SetNotifier(fn)

	s.sendTo([]byte("x"), "not-an-ip", 1234)

	require.Len(t, fn.received, 1)
	em, ok := fn.received[0].(ErrorMsg)
	require.True(t, ok)
	assert.Equal(t, ErrAPICall, em.Code)
}

func TestSocket_DrainReadable_DeliversViaOnReceiveCallback(t *testing.T) {
	recvFD, recvPort := boundLoopbackFD(t)
	s := &Socket{label: "recv", logger: testLogger(), fd: recvFD}

	sendFD, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(sendFD)
	sa := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: recvPort}
	require.NoError(t, unix.Sendto(sendFD, []byte("hello"), 0, sa))

	time.Sleep(20 * time.Millisecond)

	var gotData []byte
	var gotAddr string
	var gotPort int
	done := make(chan struct{})
	s.OnReceive = func(data []byte, peerAddr string, peerPort int) {
		gotData = data
		gotAddr = peerAddr
		gotPort = peerPort
		close(done)
	}

	s.drainReadable()

	select {
	case <-done:
	default:
		t.Fatal("OnReceive was not invoked")
	}
	assert.Equal(t, "hello", string(gotData))
	assert.Equal(t, "127.0.0.1", gotAddr)
	assert.NotZero(t, gotPort)
}

func TestSocket_DrainReadable_FallsBackToNotifierWithoutOnReceive(t *testing.T) {
	recvFD, recvPort := boundLoopbackFD(t)
	s := &Socket{label: "recv", logger: testLogger(), fd: recvFD}
	fn := &fakeNotifier{}
	s.SetNotifier(fn)

	sendFD, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	defer unix.Close(sendFD)
	sa := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}, Port: recvPort}
	require.NoError(t, unix.Sendto(sendFD, []byte("via-notifier"), 0, sa))

	time.Sleep(20 * time.Millisecond)
	s.drainReadable()

	require.Len(t, fn.received, 1)
	rm, ok := fn.received[0].(ReceiveMsg)
	require.True(t, ok)
	assert.Equal(t, "via-notifier", string(rm.Data))
}
