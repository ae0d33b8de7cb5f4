package nettcp

import (
	"fmt"
	"net"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/limits"
	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Listener is a bind/listen/accept actor. On every readable event it drains
// the accept backlog, consulting a rate limiter and resource guard before
// handing each accepted fd to its notifier as a ConnectMsg.
type Listener struct {
	Base *actor.BaseActor

	logger zerolog.Logger
	label  string

	addr string
	port int
	fd   int

	notifier    notifier
	rateLimiter *limits.ConnectionRateLimiter
	guard       *limits.ResourceGuard
}

// NewListener builds an unstarted listener bound to addr:port (port=0 is
// rejected, see SPEC_FULL.md §4.6 — this never silently assigns an ephemeral
// port the way a plain net.Listen("tcp", ":0") would).
func NewListener(label, addr string, port int, logger zerolog.Logger) (*Listener, error) {
	if port == 0 {
		return nil, actor.NewError(actor.ErrParam, nil)
	}
	l := &Listener{
		label:  label,
		logger: logger.With().Str("listener", label).Logger(),
		addr:   addr,
		port:   port,
		fd:     -1,
	}
	base, err := actor.NewBaseActor("tcp_listener", l, l.logger)
	if err != nil {
		return nil, err
	}
	l.Base = base
	return l, nil
}

// Label returns the listener's metrics/logging label.
func (l *Listener) Label() string { return l.label }

// SetNotifier configures the actor that receives ConnectMsg notifications.
func (l *Listener) SetNotifier(n notifier) { l.notifier = n }

// SetRateLimiter wires an admission-control rate limiter into the accept
// path; nil (the default) admits unconditionally.
func (l *Listener) SetRateLimiter(rl *limits.ConnectionRateLimiter) { l.rateLimiter = rl }

// SetResourceGuard wires a goroutine/memory admission guard into the accept
// path; nil (the default) admits unconditionally.
func (l *Listener) SetResourceGuard(g *limits.ResourceGuard) { l.guard = g }

// --- actor.Behavior ---

func (l *Listener) OnPreCreate() error {
	if l.port == 0 {
		return actor.NewError(actor.ErrParam, nil)
	}
	return nil
}

func (l *Listener) OnThreadInitiate() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return actor.NewError(actor.ErrSystem, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return actor.NewError(actor.ErrSystem, err)
	}

	var sa unix.SockaddrInet4
	sa.Port = l.port
	if l.addr != "" && l.addr != "0.0.0.0" {
		ip := net.ParseIP(l.addr)
		if ip == nil {
			unix.Close(fd)
			return actor.NewError(actor.ErrParam, fmt.Errorf("invalid listen address %q", l.addr))
		}
		copy(sa.Addr[:], ip.To4())
	}

	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return actor.NewError(actor.ErrSystem, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return actor.NewError(actor.ErrSystem, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return actor.NewError(actor.ErrSystem, err)
	}

	l.fd = fd
	l.Base.AppendFD(fd, true, false, false)
	l.logger.Info().Str("addr", l.addr).Int("port", l.port).Msg("listening")
	return nil
}

func (l *Listener) OnThreadTerminate() {
	if l.fd >= 0 {
		l.Base.RemoveFD(l.fd)
		unix.Close(l.fd)
		l.fd = -1
	}
}

func (l *Listener) OnPostJoin() {}

func (l *Listener) OnMsg(msg actor.Message) {}

func (l *Listener) OnTimer(id int) {}

func (l *Listener) OnEvent(readable, writable, exceptional []int) {
	if l.fd < 0 || !contains(readable, l.fd) {
		return
	}
	l.acceptAll()
}

func (l *Listener) acceptAll() {
	for {
		connFD, sa, err := unix.Accept(l.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			l.logger.Warn().Err(err).Msg("accept failed; closing listener")
			obs.ListenerRejected.WithLabelValues(l.label, "accept_error").Inc()
			l.OnThreadTerminate()
			return
		}

		clientAddr := formatSockaddr(sa)
		ip := hostOf(clientAddr)

		if l.rateLimiter != nil && !l.rateLimiter.Allow(ip) {
			unix.Close(connFD)
			continue
		}
		if l.guard != nil {
			if ok, reason := l.guard.Admit(); !ok {
				obs.ListenerRejected.WithLabelValues(l.label, "resource_guard").Inc()
				l.logger.Debug().Str("reason", reason).Msg("rejecting connection")
				unix.Close(connFD)
				continue
			}
		}

		obs.ListenerAccepted.WithLabelValues(l.label).Inc()

		if l.notifier == nil {
			l.logger.Warn().Str("client", clientAddr).Msg("no notifier configured; dropping accepted connection")
			unix.Close(connFD)
			continue
		}

		if err := l.notifier.Post(ConnectMsg{
			Listener:   l,
			ListenPort: l.port,
			ConnFD:     connFD,
			ClientAddr: clientAddr,
		}, false); err != nil {
			unix.Close(connFD)
		}
	}
}

func formatSockaddr(sa unix.Sockaddr) string {
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	ip := net.IPv4(v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3])
	return fmt.Sprintf("%s:%d", ip.String(), v4.Port)
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
