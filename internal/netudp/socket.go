// Package netudp implements the UDP socket actor: an optionally bound
// datagram endpoint that plugs into the actor event loop defined by package
// actor, analogous in shape to package nettcp's connection/listener pair.
package netudp

import (
	"fmt"
	"net"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// MaxBufLen is the fixed receive buffer capacity, matching the window-size
// idiom used throughout the framework's socket actors.
const MaxBufLen = 65535

// ErrCode is the UDP socket's own error taxonomy, distinct from the
// framework-wide actor.Code.
type ErrCode int

const (
	ErrOK ErrCode = iota
	ErrAPICall
)

func (c ErrCode) String() string {
	if c == ErrAPICall {
		return "API_CALL"
	}
	return "OK"
}

type notifier interface {
	Post(msg actor.Message, front bool) error
}

type sendMsg struct {
	data     []byte
	peerAddr string
	peerPort int
}

func (sendMsg) isMessage() {}

// ReceiveMsg notifies that a datagram arrived (for notifier-based delivery;
// most callers instead set OnReceive directly for lower overhead).
type ReceiveMsg struct {
	Socket   *Socket
	Data     []byte
	PeerAddr string
	PeerPort int
}

func (ReceiveMsg) isMessage() {}

// ErrorMsg notifies a socket-path error. PeerAddr/PeerPort are zero-valued
// when the error isn't associated with a specific peer.
type ErrorMsg struct {
	Socket   *Socket
	Code     ErrCode
	Err      error
	PeerAddr string
	PeerPort int
}

func (ErrorMsg) isMessage() {}

// Socket is a UDP datagram actor. With bindPort==0 it is send-only (an
// ephemeral source port is assigned by the kernel on first use); with a
// non-zero bindPort it additionally accepts inbound datagrams.
type Socket struct {
	Base *actor.BaseActor

	logger zerolog.Logger
	label  string

	bindPort int
	fd       int

	notifier notifier
	recvBuf  [MaxBufLen]byte

	// registered tracks whether fd currently has read interest appended to
	// the actor's fd set. A bound socket registers at open time; a
	// send-only (ephemeral-port) socket only starts watching for replies
	// once it has actually sent something, matching the source's lazy
	// registration on first sendTo.
	registered bool

	// OnReceive is invoked directly (bypassing notifier/ReceiveMsg) when
	// set, for callers that want in-actor handling without a message hop.
	OnReceive func(data []byte, peerAddr string, peerPort int)
}

// NewSocket builds an unstarted UDP socket actor. bindPort=0 means send-only.
func NewSocket(label string, bindPort int, logger zerolog.Logger) (*Socket, error) {
	s := &Socket{
		label:    label,
		logger:   logger.With().Str("udp_socket", label).Logger(),
		bindPort: bindPort,
		fd:       -1,
	}
	base, err := actor.NewBaseActor("udp_socket", s, s.logger)
	if err != nil {
		return nil, err
	}
	s.Base = base
	return s, nil
}

// Label returns the socket's metrics/logging label.
func (s *Socket) Label() string { return s.label }

// SetBindPort must be called before Start; 0 is rejected outright.
func (s *Socket) SetBindPort(port int) error {
	if port == 0 {
		return actor.NewError(actor.ErrParam, nil)
	}
	if s.Base.State() != actor.StateUnknown && s.Base.State() != actor.StateReady {
		return actor.NewError(actor.ErrContext, nil)
	}
	s.bindPort = port
	return nil
}

// SetNotifier configures the actor that receives ReceiveMsg/ErrorMsg
// notifications when OnReceive is unset.
func (s *Socket) SetNotifier(n notifier) { s.notifier = n }

// Send posts a datagram for delivery to peerAddr:peerPort.
func (s *Socket) Send(data []byte, peerAddr string, peerPort int) error {
	if len(data) == 0 || peerAddr == "" || peerPort == 0 {
		return actor.NewError(actor.ErrParam, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return s.Base.Post(sendMsg{data: cp, peerAddr: peerAddr, peerPort: peerPort}, false)
}

// --- actor.Behavior ---

func (s *Socket) OnPreCreate() error { return nil }

func (s *Socket) OnThreadInitiate() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return actor.NewError(actor.ErrSystem, err)
	}
	if s.bindPort != 0 {
		var sa unix.SockaddrInet4
		sa.Port = s.bindPort
		if err := unix.Bind(fd, &sa); err != nil {
			unix.Close(fd)
			return actor.NewError(actor.ErrSystem, err)
		}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return actor.NewError(actor.ErrSystem, err)
	}
	s.fd = fd
	if s.bindPort != 0 {
		s.Base.AppendFD(fd, true, false, false)
		s.registered = true
	}
	return nil
}

func (s *Socket) OnThreadTerminate() {
	if s.fd >= 0 {
		s.Base.RemoveFD(s.fd)
		unix.Close(s.fd)
		s.fd = -1
	}
}

func (s *Socket) OnPostJoin() {}

func (s *Socket) OnTimer(id int) {}

func (s *Socket) OnMsg(msg actor.Message) {
	m, ok := msg.(sendMsg)
	if !ok {
		return
	}
	s.sendTo(m.data, m.peerAddr, m.peerPort)
}

func (s *Socket) OnEvent(readable, writable, exceptional []int) {
	if s.fd < 0 {
		return
	}
	for _, fd := range readable {
		if fd == s.fd {
			s.drainReadable()
			return
		}
	}
}

func (s *Socket) drainReadable() {
	for {
		n, from, err := unix.Recvfrom(s.fd, s.recvBuf[:], 0)
		if err != nil {
			if err != unix.EAGAIN {
				s.reportError(ErrAPICall, err, "", 0)
			}
			return
		}
		obs.UDPDatagramsReceived.WithLabelValues(s.label).Inc()

		peerAddr, peerPort := "", 0
		if v4, ok := from.(*unix.SockaddrInet4); ok {
			peerAddr = net.IPv4(v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3]).String()
			peerPort = v4.Port
		}

		data := make([]byte, n)
		copy(data, s.recvBuf[:n])

		if s.OnReceive != nil {
			s.OnReceive(data, peerAddr, peerPort)
		} else if s.notifier != nil {
			s.notifier.Post(ReceiveMsg{Socket: s, Data: data, PeerAddr: peerAddr, PeerPort: peerPort}, false)
		}
	}
}

func (s *Socket) sendTo(data []byte, peerAddr string, peerPort int) {
	if !s.registered {
		s.Base.AppendFD(s.fd, true, false, false)
		s.registered = true
	}

	ip := net.ParseIP(peerAddr)
	if ip == nil || ip.To4() == nil {
		s.reportError(ErrAPICall, fmt.Errorf("invalid peer address %q", peerAddr), peerAddr, peerPort)
		return
	}
	var sa unix.SockaddrInet4
	sa.Port = peerPort
	copy(sa.Addr[:], ip.To4())

	if err := unix.Sendto(s.fd, data, 0, &sa); err != nil {
		s.reportError(ErrAPICall, err, peerAddr, peerPort)
	}
}

func (s *Socket) reportError(code ErrCode, err error, peerAddr string, peerPort int) {
	if s.notifier != nil {
		s.notifier.Post(ErrorMsg{Socket: s, Code: code, Err: err, PeerAddr: peerAddr, PeerPort: peerPort}, false)
		return
	}
	s.logger.Warn().Err(err).Str("code", code.String()).Msg("udp socket error")
}
