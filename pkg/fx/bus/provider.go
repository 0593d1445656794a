// Package bus wires the websocket event bus and the broadcast publisher
// the rest of the application emits through.
package bus

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/lib/eventbus"
	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/events"
)

var log = logging.Logger("fx/bus")

var Module = fx.Module("bus",
	fx.Provide(
		ProvideBus,
		ProvideBroadcastPublisher,
	),
)

// ProvideBus creates the subscriber bus and ties its delivery loops to the
// fx lifecycle.
func ProvideBus(lc fx.Lifecycle, cfg app.EventsConfig) (*eventbus.Bus[events.Message], error) {
	var opts []eventbus.Option
	if cfg.ProbeInterval > 0 {
		opts = append(opts, eventbus.WithProbeInterval(cfg.ProbeInterval))
	}
	if cfg.BufferSize > 0 {
		opts = append(opts, eventbus.WithBufferSize(cfg.BufferSize))
	}

	bus, err := eventbus.New[events.Message](opts...)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// The delivery loops must outlive startup, so the bus gets a
			// detached context rather than fx's short-lived start context.
			return bus.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return bus.Stop(ctx)
		},
	})

	return bus, nil
}

// ProvideBroadcastPublisher adapts the bus into the Publisher that the
// engine, job store, activity feed and result cache emit through. Each
// message lands on the channel its type maps to; types without a channel
// (connection handshake replies) are never broadcast.
func ProvideBroadcastPublisher(bus *eventbus.Bus[events.Message]) events.Publisher {
	return events.PublisherFunc(func(msg events.Message) {
		channel := events.ChannelFor(msg.Type)
		if channel == "" {
			log.Debugw("message type has no broadcast channel", "type", msg.Type)
			return
		}
		bus.Broadcast(msg, channel)
	})
}
