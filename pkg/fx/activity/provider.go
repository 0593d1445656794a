// Package activity wires the in-memory activity feed.
package activity

import (
	"go.uber.org/fx"

	"github.com/sidequest-dev/foreman/pkg/activity"
	"github.com/sidequest-dev/foreman/pkg/config/app"
	"github.com/sidequest-dev/foreman/pkg/events"
)

var Module = fx.Module("activity",
	fx.Provide(
		NewFeed,
	),
)

// NewFeed builds the activity feed. Entries it derives from job events are
// re-announced on the activity channel through the broadcast publisher.
func NewFeed(cfg app.EventsConfig, pub events.Publisher) (*activity.Feed, error) {
	opts := []activity.Option{activity.WithPublisher(pub)}
	if cfg.Activity.MaxEntries > 0 {
		opts = append(opts, activity.WithMax(cfg.Activity.MaxEntries))
	}
	return activity.NewFeed(opts...)
}
