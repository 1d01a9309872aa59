// File: server/broker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Broker is the single process-wide context: configuration, reactor,
// kernel, message queues, metrics and every client connection.

package server

import (
	"bytes"
	"context"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/kbroker/control"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/msgqueue"
	"github.com/momentics/kbroker/pool"
	"github.com/momentics/kbroker/protocol"
	"github.com/momentics/kbroker/reactor"
)

// frameBufSize covers every fixed reply body with room for small payloads.
const frameBufSize = 256

// Broker owns all broker state. It is driven by one goroutine.
type Broker struct {
	store      *control.ConfigStore
	configPath string
	log        *zap.Logger
	level      *zap.AtomicLevel

	reactorOpts []reactor.Option
	r           *reactor.Reactor
	k           *kernel.Kernel
	msgs        *msgqueue.System
	frames      *pool.BytePool
	metrics     *control.MetricsRegistry
	probes      *control.DebugProbes

	listener *listener
	signals  *signalPipe
	conns    map[*conn]struct{}
	stopped  bool
}

// New builds a broker from cfg. Nothing is bound until Listen.
func New(cfg control.Config, opts ...BrokerOption) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Broker{
		store:   control.NewConfigStore(cfg),
		log:     zap.NewNop(),
		frames:  pool.NewBytePool(frameBufSize, cfg.MaxRequestData+protocol.ReplyHeaderSize+frameBufSize),
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
		conns:   make(map[*conn]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	ropts := append([]reactor.Option{
		reactor.WithLogger(b.log.Named("reactor")),
		reactor.WithMaxUsers(cfg.MaxUsers),
	}, b.reactorOpts...)
	b.r = reactor.New(ropts...)
	b.k = kernel.New(b.r, kernel.WithLogger(b.log.Named("kernel")), kernel.WithMaxHandles(cfg.MaxHandles))
	b.msgs = msgqueue.New(b.k)

	if b.level != nil {
		b.store.OnReload("log_level", control.LevelReloader(*b.level))
	}
	b.registerProbes()
	return b, nil
}

func (b *Broker) registerProbes() {
	control.RegisterPlatformProbes(b.probes)
	b.probes.RegisterProbe("kernel.objects", func() any { return b.k.LiveObjects() })
	b.probes.RegisterProbe("kernel.processes", func() any { return b.k.Processes() })
	b.probes.RegisterProbe("kernel.threads", func() any { return b.k.Threads() })
	b.probes.RegisterProbe("msgqueue.results", func() any { return b.msgs.LiveResults() })
	b.probes.RegisterProbe("reactor.users", func() any { return b.r.Users() })
	b.probes.RegisterProbe("reactor.timeouts", func() any { return b.r.PendingTimeouts() })
	b.probes.RegisterProbe("server.connections", func() any { return len(b.conns) })
	b.probes.RegisterProbe("server.frame_buffers", func() any {
		gets, allocs := b.frames.Stats()
		return map[string]int64{"gets": gets, "allocs": allocs}
	})
}

// Config returns the live configuration snapshot.
func (b *Broker) Config() control.Config { return b.store.Snapshot() }

// Kernel exposes the object kernel.
func (b *Broker) Kernel() *kernel.Kernel { return b.k }

// Reactor exposes the event loop.
func (b *Broker) Reactor() *reactor.Reactor { return b.r }

// Messages exposes the message queue system.
func (b *Broker) Messages() *msgqueue.System { return b.msgs }

// Metrics returns the metrics registry.
func (b *Broker) Metrics() *control.MetricsRegistry { return b.metrics }

// Probes returns the debug probe registry.
func (b *Broker) Probes() *control.DebugProbes { return b.probes }

// Listen binds the configured socket and installs the signal pipe.
func (b *Broker) Listen() error {
	cfg := b.store.Snapshot()
	l, err := listen(b, cfg.SocketPath)
	if err != nil {
		return err
	}
	b.listener = l
	sp, err := newSignalPipe(b)
	if err != nil {
		return multierr.Append(err, b.listener.close())
	}
	b.signals = sp
	b.log.Info("listening", zap.String("socket", cfg.SocketPath))
	return nil
}

// Serve runs the reactor until Stop, a terminating signal or ctx ends.
func (b *Broker) Serve(ctx context.Context) error {
	if b.signals != nil {
		stop := context.AfterFunc(ctx, func() { b.signals.post(sigContextDone) })
		defer stop()
	}
	for !b.stopped {
		if err := ctx.Err(); err != nil {
			return multierr.Append(err, b.Stop())
		}
		if b.r.Users() == 0 {
			break
		}
		if err := b.r.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Stop closes the listener, every connection and the signal pipe. The
// reactor loop ends once they are gone.
func (b *Broker) Stop() error {
	if b.stopped {
		return nil
	}
	b.stopped = true
	var err error
	for c := range b.conns {
		c.close("broker stopping")
	}
	if b.listener != nil {
		err = multierr.Append(err, b.listener.close())
	}
	if b.signals != nil {
		err = multierr.Append(err, b.signals.close())
	}
	b.log.Info("stopped", zap.Int("live_objects", b.k.LiveObjects()))
	return err
}

// Reload re-reads the configuration file and applies it through the hooks.
func (b *Broker) Reload() error {
	if b.configPath == "" {
		return nil
	}
	cfg, err := control.LoadConfig(b.configPath)
	if err != nil {
		return err
	}
	// socket and capacity changes need a restart; only hooks see them
	return b.store.Set(cfg)
}

// DumpState logs every live object and probe.
func (b *Broker) DumpState() {
	var buf bytes.Buffer
	b.k.DumpObjects(&buf)
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) > 0 {
			b.log.Info("object", zap.ByteString("dump", line))
		}
	}
	state := b.probes.DumpState()
	fields := make([]zap.Field, 0, len(state))
	for k, v := range state {
		fields = append(fields, zap.Any(k, v))
	}
	b.log.Info("probes", fields...)
}

func (b *Broker) handleSignal(sig unix.Signal) {
	switch sig {
	case unix.SIGINT, unix.SIGTERM, sigContextDone:
		b.log.Info("shutdown requested", zap.Stringer("signal", sig))
		if err := b.Stop(); err != nil {
			b.log.Warn("shutdown", zap.Error(err))
		}
	case unix.SIGHUP:
		if err := b.Reload(); err != nil {
			b.log.Error("reload failed", zap.Error(err))
			return
		}
		b.log.Info("configuration reloaded", zap.String("path", b.configPath))
	case unix.SIGUSR1:
		if b.store.Snapshot().DebugDumpOnSignal {
			b.DumpState()
		}
	}
}

func (b *Broker) updateGauges() {
	b.metrics.Set("kernel.objects", int64(b.k.LiveObjects()))
	b.metrics.Set("msgqueue.results", int64(b.msgs.LiveResults()))
	b.metrics.Set("server.connections", int64(len(b.conns)))
}

// removeSocket unlinks a stale socket file left by a previous run.
func removeSocket(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
