// Package natsnotify implements a notifier actor that republishes TCP and UDP
// collaborator events onto a NATS subject tree (log-sink lines are not
// relayed), grounded on the
// teacher's pkg/nats client: the same connect/disconnect/reconnect/error
// handler shape, re-expressed against this framework's actor lifecycle and
// Prometheus metrics instead of a custom metrics interface.
package natsnotify

import (
	"encoding/json"
	"time"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/nettcp"
	"github.com/adred-codev/threadbase/internal/netudp"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config configures the underlying NATS connection and subject prefix.
type Config struct {
	URL             string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "threadbase"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxPingsOut == 0 {
		c.MaxPingsOut = 3
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	return c
}

// envelope is the wire format published for every event, regardless of
// originating collaborator type.
type envelope struct {
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Relay is an actor.Behavior that connects to NATS on OnThreadInitiate and
// republishes every message posted to it (by a Connection, Listener, or
// Socket configured with it as their notifier) onto a subject derived from
// the event's kind and source label.
type Relay struct {
	Base *actor.BaseActor

	logger zerolog.Logger
	cfg    Config
	conn   *nats.Conn
}

// NewRelay builds an unstarted relay. The NATS connection itself is opened
// in OnThreadInitiate, on the relay's own goroutine.
func NewRelay(cfg Config, logger zerolog.Logger) (*Relay, error) {
	r := &Relay{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "nats_relay").Logger(),
	}
	base, err := actor.NewBaseActor("nats_relay", r, r.logger)
	if err != nil {
		return nil, err
	}
	r.Base = base
	return r, nil
}

// Post satisfies the notifier interface shared by nettcp and netudp
// collaborators, so a Relay can be wired in directly via SetNotifier.
func (r *Relay) Post(msg actor.Message, front bool) error {
	return r.Base.Post(msg, front)
}

// --- actor.Behavior ---

func (r *Relay) OnPreCreate() error {
	if r.cfg.URL == "" {
		return actor.NewError(actor.ErrParam, nil)
	}
	return nil
}

func (r *Relay) OnThreadInitiate() error {
	opts := []nats.Option{
		nats.MaxReconnects(r.cfg.MaxReconnects),
		nats.ReconnectWait(r.cfg.ReconnectWait),
		nats.ReconnectJitter(r.cfg.ReconnectJitter, r.cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(r.cfg.MaxPingsOut),
		nats.PingInterval(r.cfg.PingInterval),
		nats.ConnectHandler(r.onConnect),
		nats.DisconnectErrHandler(r.onDisconnect),
		nats.ReconnectHandler(r.onReconnect),
		nats.ErrorHandler(r.onError),
	}

	conn, err := nats.Connect(r.cfg.URL, opts...)
	if err != nil {
		return actor.NewError(actor.ErrSystem, err)
	}
	r.conn = conn
	return nil
}

func (r *Relay) OnThreadTerminate() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

func (r *Relay) OnPostJoin() {}

func (r *Relay) OnTimer(id int) {}

func (r *Relay) OnEvent(readable, writable, exceptional []int) {}

func (r *Relay) OnMsg(msg actor.Message) {
	kind, source, payload := classify(msg)
	if kind == "" {
		return
	}
	r.publish(kind, source, payload)
}

func (r *Relay) publish(kind, source string, payload any) {
	if r.conn == nil {
		return
	}
	data, err := json.Marshal(envelope{
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to marshal event for NATS publish")
		return
	}
	subject := r.cfg.SubjectPrefix + "." + kind
	if err := r.conn.Publish(subject, data); err != nil {
		r.logger.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed")
	}
}

func classify(msg actor.Message) (kind, source string, payload any) {
	switch m := msg.(type) {
	case nettcp.ChangeStatusMsg:
		return "tcp.status", m.Conn.Label(), struct {
			Status string `json:"status"`
		}{m.Status.String()}
	case nettcp.ErrorMsg:
		errText := ""
		if m.Err != nil {
			errText = m.Err.Error()
		}
		return "tcp.error", m.Conn.Label(), struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}{m.Code.String(), errText}
	case nettcp.ReceiveMsg:
		return "tcp.receive", m.Conn.Label(), struct {
			Bytes int `json:"bytes"`
		}{len(m.Data)}
	case nettcp.ConnectMsg:
		return "tcp.connect", m.Listener.Label(), struct {
			ClientAddr string `json:"client_addr"`
			ListenPort int    `json:"listen_port"`
		}{m.ClientAddr, m.ListenPort}
	case netudp.ReceiveMsg:
		return "udp.receive", m.Socket.Label(), struct {
			PeerAddr string `json:"peer_addr"`
			PeerPort int    `json:"peer_port"`
			Bytes    int    `json:"bytes"`
		}{m.PeerAddr, m.PeerPort, len(m.Data)}
	case netudp.ErrorMsg:
		errText := ""
		if m.Err != nil {
			errText = m.Err.Error()
		}
		return "udp.error", m.Socket.Label(), struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}{m.Code.String(), errText}
	default:
		return "", "", nil
	}
}

func (r *Relay) onConnect(conn *nats.Conn) {
	r.logger.Info().Str("url", conn.ConnectedUrl()).Msg("connected to NATS")
}

func (r *Relay) onDisconnect(conn *nats.Conn, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Msg("disconnected from NATS")
	} else {
		r.logger.Info().Msg("disconnected from NATS")
	}
}

func (r *Relay) onReconnect(conn *nats.Conn) {
	r.logger.Info().Str("url", conn.ConnectedUrl()).Msg("reconnected to NATS")
}

func (r *Relay) onError(conn *nats.Conn, sub *nats.Subscription, err error) {
	r.logger.Warn().Err(err).Msg("NATS error")
}
