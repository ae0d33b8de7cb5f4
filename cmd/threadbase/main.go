// Command threadbase wires the actor framework's network collaborators
// (TCP listener, TCP client connections, log sink, optional NATS relay) into
// a running process, following the same boot sequence as the teacher's
// monolithic entrypoint: automaxprocs, configuration load, structured
// logging, Prometheus endpoint, then start the actor topology and wait for
// a shutdown signal.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adred-codev/threadbase/internal/actor"
	"github.com/adred-codev/threadbase/internal/config"
	"github.com/adred-codev/threadbase/internal/limits"
	"github.com/adred-codev/threadbase/internal/logsink"
	"github.com/adred-codev/threadbase/internal/natsnotify"
	"github.com/adred-codev/threadbase/internal/nettcp"
	"github.com/adred-codev/threadbase/internal/obs"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
)

func main() {
	bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	obs.InitGlobalLogger(obs.LoggerConfig{Level: config.LogLevel(cfg.LogLevel), Format: config.LogFormat(cfg.LogFormat)})
	logger := obs.NewLogger(obs.LoggerConfig{Level: config.LogLevel(cfg.LogLevel), Format: config.LogFormat(cfg.LogFormat)})
	cfg.LogConfig(logger)

	sink, err := logsink.NewSink("default", cfg.LogSinkDir, cfg.LogSinkPrefix, cfg.LogSinkMaxLine, cfg.LogSinkMaxFiles, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build log sink")
	}
	sink.RegisterDefault()
	if err := sink.Base.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start log sink")
	}

	guard := limits.NewResourceGuard(cfg.ResourceMaxGoroutines, cfg.ResourceMaxRSSFraction, logger)
	rateLimiter := limits.NewConnectionRateLimiter(limits.ConnectionRateLimiterConfig{
		IPBurst:       cfg.RateLimitIPBurst,
		IPRate:        cfg.RateLimitIPRate,
		GlobalBurst:   cfg.RateLimitGlobalBurst,
		GlobalRate:    cfg.RateLimitGlobalRate,
		ListenerLabel: "main",
		Logger:        logger,
	})

	guardCtx, cancelGuard := context.WithCancel(context.Background())
	go guard.Run(guardCtx, cfg.MetricsInterval)

	var relay *natsnotify.Relay
	if cfg.NATSURL != "" {
		relay, err = natsnotify.NewRelay(natsnotify.Config{URL: cfg.NATSURL, SubjectPrefix: "threadbase"}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build NATS relay")
		}
		if err := relay.Base.Start(); err != nil {
			logger.Warn().Err(err).Msg("NATS relay failed to start; continuing without event relay")
			relay = nil
		}
	}

	acceptor, err := newAcceptor(cfg, guard, rateLimiter, relay, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build TCP listener")
	}
	if err := acceptor.listener.Base.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start TCP listener")
	}

	clients := startClientConnections(cfg, relay, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: obs.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	cancelGuard()
	rateLimiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)

	acceptor.listener.Base.Stop(true, false, 0)
	for _, c := range clients {
		c.Base.Stop(true, false, 0)
	}
	if relay != nil {
		relay.Base.Stop(true, false, 0)
	}
	sink.Base.Stop(true, false, 0)
}

// acceptor owns the listener and the notifier it posts accepted connections
// to (the default relay, falling back to logging when none is configured).
type acceptor struct {
	listener *nettcp.Listener
}

func newAcceptor(cfg *config.Config, guard *limits.ResourceGuard, rl *limits.ConnectionRateLimiter, relay *natsnotify.Relay, logger zerolog.Logger) (*acceptor, error) {
	host, port, err := splitListenAddr(cfg.TCPListenAddr)
	if err != nil {
		return nil, err
	}

	l, err := nettcp.NewListener("main", host, port, logger)
	if err != nil {
		return nil, err
	}
	l.SetResourceGuard(guard)
	l.SetRateLimiter(rl)
	if relay != nil {
		l.SetNotifier(relay)
	}
	return &acceptor{listener: l}, nil
}

func startClientConnections(cfg *config.Config, relay *natsnotify.Relay, logger zerolog.Logger) []*nettcp.Connection {
	var conns []*nettcp.Connection
	for _, addr := range cfg.TCPClientAddrs() {
		host, port, err := splitListenAddr(addr)
		if err != nil {
			logger.Warn().Err(err).Str("target", addr).Msg("skipping invalid TCP_CLIENT_TARGETS entry")
			continue
		}
		c, err := nettcp.NewConnection(addr, logger)
		if err != nil {
			logger.Warn().Err(err).Str("target", addr).Msg("failed to build client connection")
			continue
		}
		if err := c.SetServerAddr(host, port, nettcp.DefaultT1MS, nettcp.DefaultT2MS); err != nil {
			logger.Warn().Err(err).Str("target", addr).Msg("failed to configure client connection")
			continue
		}
		if relay != nil {
			c.SetNotifier(relay)
		}
		if err := c.Base.Start(); err != nil {
			logger.Warn().Err(err).Str("target", addr).Msg("failed to start client connection")
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

func splitListenAddr(addr string) (host string, port int, err error) {
	h, p, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		return "", 0, actor.NewError(actor.ErrParam, splitErr)
	}
	portNum, convErr := strconv.Atoi(p)
	if convErr != nil {
		return "", 0, actor.NewError(actor.ErrParam, convErr)
	}
	return h, portNum, nil
}
