// File: server/options.go
// Package server defines functional options for the Broker.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/kbroker/reactor"
)

// BrokerOption customizes broker initialization.
type BrokerOption func(*Broker)

// WithLogger sets the broker logger; subsystems get named children.
func WithLogger(l *zap.Logger) BrokerOption {
	return func(b *Broker) {
		b.log = l
	}
}

// WithLevel hands the broker the runtime log level so a reload can change it.
func WithLevel(level zap.AtomicLevel) BrokerOption {
	return func(b *Broker) {
		b.level = &level
	}
}

// WithConfigPath names the file SIGHUP reloads.
func WithConfigPath(path string) BrokerOption {
	return func(b *Broker) {
		b.configPath = path
	}
}

// WithReactorOptions passes options through to the reactor, e.g. a fake
// clock in tests.
func WithReactorOptions(opts ...reactor.Option) BrokerOption {
	return func(b *Broker) {
		b.reactorOpts = append(b.reactorOpts, opts...)
	}
}
