package natsnotify

import (
	"errors"
	"testing"
	"time"

	"github.com/adred-codev/threadbase/internal/nettcp"
	"github.com/adred-codev/threadbase/internal/netudp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestConfig_WithDefaults_FillsZeroValues(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222"}.withDefaults()
	assert.Equal(t, "threadbase", cfg.SubjectPrefix)
	assert.Equal(t, 60, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, 3, cfg.MaxPingsOut)
	assert.Equal(t, 20*time.Second, cfg.PingInterval)
}

func TestConfig_WithDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		URL:           "nats://localhost:4222",
		SubjectPrefix: "custom",
		MaxReconnects: 5,
	}.withDefaults()
	assert.Equal(t, "custom", cfg.SubjectPrefix)
	assert.Equal(t, 5, cfg.MaxReconnects)
}

func TestNewRelay_OnPreCreate_RejectsEmptyURL(t *testing.T) {
	r, err := NewRelay(Config{}, testLogger())
	require.NoError(t, err)
	assert.Error(t, r.OnPreCreate())
}

func TestNewRelay_OnPreCreate_AcceptsConfiguredURL(t *testing.T) {
	r, err := NewRelay(Config{URL: "nats://localhost:4222"}, testLogger())
	require.NoError(t, err)
	assert.NoError(t, r.OnPreCreate())
}

func TestClassify_ReturnsEmptyKindForUnrecognizedMessage(t *testing.T) {
	type unknownMsg struct{}
	kind, source, payload := classify(unknownMsg{})
	assert.Equal(t, "", kind)
	assert.Equal(t, "", source)
	assert.Nil(t, payload)
}

func TestClassify_TCPChangeStatus(t *testing.T) {
	conn, err := nettcp.NewConnection("conn-a", testLogger())
	require.NoError(t, err)

	kind, source, payload := classify(nettcp.ChangeStatusMsg{Conn: conn, Status: nettcp.StatusConnected})
	assert.Equal(t, "tcp.status", kind)
	assert.Equal(t, "conn-a", source)
	assert.NotNil(t, payload)
}

func TestClassify_TCPError(t *testing.T) {
	conn, err := nettcp.NewConnection("conn-b", testLogger())
	require.NoError(t, err)

	kind, source, _ := classify(nettcp.ErrorMsg{Conn: conn, Code: nettcp.ErrAPICall, Err: errors.New("boom")})
	assert.Equal(t, "tcp.error", kind)
	assert.Equal(t, "conn-b", source)
}

func TestClassify_TCPReceive(t *testing.T) {
	conn, err := nettcp.NewConnection("conn-c", testLogger())
	require.NoError(t, err)

	kind, source, _ := classify(nettcp.ReceiveMsg{Conn: conn, Data: []byte("hi")})
	assert.Equal(t, "tcp.receive", kind)
	assert.Equal(t, "conn-c", source)
}

func TestClassify_TCPConnect(t *testing.T) {
	l, err := nettcp.NewListener("listener-a", "127.0.0.1", 9999, testLogger())
	require.NoError(t, err)

	kind, source, _ := classify(nettcp.ConnectMsg{Listener: l, ClientAddr: "10.0.0.1:1", ListenPort: 9999})
	assert.Equal(t, "tcp.connect", kind)
	assert.Equal(t, "listener-a", source)
}

func TestClassify_UDPReceive(t *testing.T) {
	s, err := netudp.NewSocket("udp-a", 4000, testLogger())
	require.NoError(t, err)

	kind, source, _ := classify(netudp.ReceiveMsg{Socket: s, Data: []byte("dg"), PeerAddr: "1.2.3.4", PeerPort: 5})
	assert.Equal(t, "udp.receive", kind)
	assert.Equal(t, "udp-a", source)
}

func TestClassify_UDPError(t *testing.T) {
	s, err := netudp.NewSocket("udp-b", 4001, testLogger())
	require.NoError(t, err)

	kind, source, _ := classify(netudp.ErrorMsg{Socket: s, Code: netudp.ErrAPICall, Err: errors.New("bad")})
	assert.Equal(t, "udp.error", kind)
	assert.Equal(t, "udp-b", source)
}
