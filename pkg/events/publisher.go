package events

// Publisher accepts messages for fan-out. Implementations must not block:
// producers publish from hot paths and expect enqueue semantics.
type Publisher interface {
	Publish(msg Message)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(msg Message)

func (f PublisherFunc) Publish(msg Message) { f(msg) }

// NopPublisher discards everything. Useful as a default and in tests that
// do not care about events.
type NopPublisher struct{}

func (NopPublisher) Publish(Message) {}

// MultiPublisher fans each message out to every member in order. Members
// that also produce messages (the activity feed, the result cache) sit in
// the same fan-out as the transport bus.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(msg Message) {
	for _, p := range m {
		p.Publish(msg)
	}
}
