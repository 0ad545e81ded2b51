//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
)

// BuildApp wires the server components using Google Wire.
func BuildApp(path ConfigPath) (*App, func(), error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideHub,
		provideStore,
		provideRegistry,
		provideCollector,
		provideWebhooks,
		provideService,
		provideHandler,
		provideServer,
		provideMetricsServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
