package nettcp

import (
	"fmt"
	"net"
	"sync"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Connection is a server- or client-role TCP endpoint with an auto-reconnect
// state machine (client role) and a byte-stream receive protocol driven by
// ReceiveHandler's accept_len contract.
type Connection struct {
	Base *actor.BaseActor

	logger zerolog.Logger
	label  string

	role Role
	fd   int

	mu         sync.Mutex
	status     Status
	connecting bool

	recvBuf [MaxBufLen]byte
	recvLen int

	notifier notifier

	serverAddr string
	serverPort int
	t1MS       int64
	t2MS       int64

	// ReceiveHandler implements SPEC_FULL.md §4.5's accept_len contract:
	// called repeatedly with the unconsumed buffer tail, returns how many
	// bytes it consumed. The default consumes everything on each call.
	ReceiveHandler func(data []byte) int
}

// NewConnection builds an unstarted connection actor labeled for metrics
// and logging; role is resolved by the first of SetFD / SetServerAddr.
func NewConnection(label string, logger zerolog.Logger) (*Connection, error) {
	c := &Connection{
		label:      label,
		logger:     logger.With().Str("connection", label).Logger(),
		fd:         -1,
		t1MS:       DefaultT1MS,
		t2MS:       DefaultT2MS,
		ReceiveHandler: func(data []byte) int { return len(data) },
	}
	base, err := actor.NewBaseActor("tcp_connection", c, c.logger)
	if err != nil {
		return nil, err
	}
	c.Base = base
	return c, nil
}

// SetNotifier configures the actor that receives ReceiveMsg/ChangeStatusMsg/
// ErrorMsg notifications. Without one, notifications are logged instead.
func (c *Connection) SetNotifier(n notifier) { c.notifier = n }

// SetFD forces role=Server. Called pre-start it sets the fd directly; called
// post-start it re-homes the running actor onto fd via an internal message.
func (c *Connection) SetFD(fd int) error {
	c.role = RoleServer
	if c.Base.State() == actor.StateRunning {
		return c.Base.Post(setFDMsg{fd: fd}, false)
	}
	c.fd = fd
	return nil
}

// SetServerAddr forces role=Client and must be called pre-start. port=0 is
// rejected outright (this implementation does not carry forward the
// source's quirk of silently keeping a prior port on a zero argument).
func (c *Connection) SetServerAddr(host string, port int, t1MS, t2MS int64) error {
	if c.Base.State() != actor.StateUnknown && c.Base.State() != actor.StateReady {
		return actor.NewError(actor.ErrContext, nil)
	}
	if port == 0 {
		return actor.NewError(actor.ErrParam, nil)
	}
	c.role = RoleClient
	c.serverAddr = host
	c.serverPort = port
	if t1MS > 0 {
		c.t1MS = t1MS
	}
	c.t2MS = t2MS
	return nil
}

// Label returns the connection's metrics/logging label.
func (c *Connection) Label() string { return c.label }

// GetStatus is safe to call from any goroutine.
func (c *Connection) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send posts an owned copy of data for transmission once Connected.
func (c *Connection) Send(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	return c.Base.Post(sendMsg{data: cp}, false)
}

// --- actor.Behavior ---

func (c *Connection) OnPreCreate() error {
	if c.role == RoleUnknown {
		c.role = RoleServer
	}
	if c.role == RoleClient && c.serverPort == 0 {
		return actor.NewError(actor.ErrParam, nil)
	}
	return nil
}

func (c *Connection) OnThreadInitiate() error {
	switch c.role {
	case RoleServer:
		if c.fd >= 0 {
			c.Base.AppendFD(c.fd, true, false, false)
			c.changeStatus(StatusConnected)
		}
		return nil
	case RoleClient:
		return c.openClient()
	default:
		return nil
	}
}

func (c *Connection) OnThreadTerminate() {
	c.closeSocket()
}

func (c *Connection) OnPostJoin() {}

func (c *Connection) OnTimer(id int) {
	if id == ReconnectTimerID {
		c.openClient()
	}
}

func (c *Connection) OnMsg(msg actor.Message) {
	switch m := msg.(type) {
	case sendMsg:
		c.handleSend(m.data)
	case setFDMsg:
		c.handleSetFD(m.fd)
	}
}

func (c *Connection) OnEvent(readable, writable, exceptional []int) {
	if c.fd < 0 {
		return
	}
	if c.connecting && (contains(writable, c.fd) || contains(exceptional, c.fd) || contains(readable, c.fd)) {
		c.finishConnect()
		return
	}
	if contains(readable, c.fd) {
		c.handleReadable()
	}
}

func contains(set []int, fd int) bool {
	for _, v := range set {
		if v == fd {
			return true
		}
	}
	return false
}

// --- internals ---

func (c *Connection) handleSetFD(fd int) {
	c.closeSocket()
	c.fd = fd
	c.recvLen = 0
	c.Base.AppendFD(fd, true, false, false)
	c.changeStatus(StatusConnected)
}

func (c *Connection) handleSend(data []byte) {
	if c.GetStatus() != StatusConnected {
		c.reportError(ErrSendDataWasLost, nil)
		return
	}
	n, err := unix.Write(c.fd, data)
	if err != nil || n != len(data) {
		c.reportError(ErrAPICall, err)
		return
	}
	obs.TCPBytesSent.WithLabelValues(c.label).Add(float64(n))
}

func (c *Connection) openClient() error {
	if !c.Base.Active() {
		return nil
	}

	ip, err := resolveIP(c.serverAddr)
	if err != nil {
		c.reportError(ErrAPICall, err)
		c.armReconnect(c.t2MS)
		return nil
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		c.reportError(ErrAPICall, err)
		c.armReconnect(c.t2MS)
		return nil
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		c.reportError(ErrAPICall, err)
		c.armReconnect(c.t2MS)
		return nil
	}

	var sa unix.SockaddrInet4
	sa.Port = c.serverPort
	copy(sa.Addr[:], ip.To4())

	c.fd = fd
	err = unix.Connect(fd, &sa)
	switch {
	case err == nil:
		c.Base.AppendFD(fd, true, false, false)
		c.changeStatus(StatusConnected)
	case err == unix.EINPROGRESS:
		c.connecting = true
		c.Base.AppendFD(fd, true, true, false)
	default:
		unix.Close(fd)
		c.fd = -1
		c.reportError(ErrAPICall, err)
		c.armReconnect(c.t2MS)
	}
	return nil
}

func (c *Connection) finishConnect() {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	c.connecting = false
	c.Base.RemoveFD(c.fd)
	if err == nil && errno == 0 {
		c.Base.AppendFD(c.fd, true, false, false)
		c.changeStatus(StatusConnected)
		return
	}
	unix.Close(c.fd)
	c.fd = -1
	c.reportError(ErrAPICall, fmt.Errorf("connect failed: errno %d", errno))
	c.armReconnect(c.t1MS)
}

func (c *Connection) handleReadable() {
	n, err := unix.Read(c.fd, c.recvBuf[c.recvLen:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.dropAndReconnect(c.t2MS)
		return
	}
	if n == 0 {
		c.dropAndReconnect(c.t2MS)
		return
	}
	obs.TCPBytesReceived.WithLabelValues(c.label).Add(float64(n))
	if c.notifier != nil {
		data := make([]byte, n)
		copy(data, c.recvBuf[c.recvLen:c.recvLen+n])
		c.notifier.Post(ReceiveMsg{Conn: c, Data: data}, false)
	} else {
		c.logger.Debug().Int("bytes", n).Msg("data received")
	}
	c.ingest(n)
}

// ingest runs the accept_len protocol over the n freshly-read bytes already
// sitting at recvBuf[recvLen:recvLen+n], advancing recvLen and compacting
// any unconsumed tail back to offset 0. Split out from handleReadable so the
// buffer-consumption contract can be exercised without a real socket.
func (c *Connection) ingest(n int) {
	c.recvLen += n

	pos := 0
	for pos < c.recvLen {
		remaining := c.recvLen - pos
		accepted := c.ReceiveHandler(c.recvBuf[pos:c.recvLen])
		if accepted < 0 || accepted > remaining {
			c.reportError(ErrAPIllegalUse, nil)
			accepted = remaining
		}
		if accepted == 0 {
			break
		}
		pos += accepted
	}
	if pos > 0 {
		copy(c.recvBuf[0:], c.recvBuf[pos:c.recvLen])
		c.recvLen -= pos
	}
}

func (c *Connection) dropAndReconnect(timerMS int64) {
	c.closeSocket()
	c.changeStatus(StatusDisconnected)
	if c.role == RoleClient {
		c.armReconnect(timerMS)
	}
}

func (c *Connection) armReconnect(timerMS int64) {
	if timerMS <= 0 || !c.Base.Active() {
		return
	}
	obs.TCPReconnectAttempts.WithLabelValues(c.label).Inc()
	c.Base.SetTimer(timerMS, ReconnectTimerID, 0)
}

func (c *Connection) closeSocket() {
	if c.fd < 0 {
		return
	}
	c.Base.RemoveFD(c.fd)
	unix.Close(c.fd)
	c.fd = -1
	c.connecting = false
	c.recvLen = 0
}

func (c *Connection) changeStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	if c.notifier != nil {
		c.notifier.Post(ChangeStatusMsg{Conn: c, Status: s}, false)
	} else {
		c.logger.Info().Str("status", s.String()).Msg("connection status changed")
	}
}

func (c *Connection) reportError(code ErrCode, err error) {
	if c.notifier != nil {
		c.notifier.Post(ErrorMsg{Conn: c, Code: code, Err: err}, false)
		return
	}
	c.logger.Warn().Err(err).Str("code", code.String()).Msg("connection error")
}

func resolveIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("no A record for %s", host)
}
