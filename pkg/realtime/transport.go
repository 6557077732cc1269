package realtime

import "context"

// Transport abstracts the realtime push transport that delivers database
// change feeds over a persistent connection.
type Transport interface {
	// Channel starts building a subscription for the named channel.
	Channel(name string) ChannelBuilder
}

// ChannelBuilder accumulates table listeners before the subscribe call is
// finalized. Builders are single-use.
type ChannelBuilder interface {
	// On attaches a handler for events matching spec. Returns the builder
	// for chaining.
	On(spec EventSpec, handler PayloadHandler) ChannelBuilder

	// Subscribe finalizes the subscription and returns a live handle.
	Subscribe(ctx context.Context) (ChannelHandle, error)
}

// ChannelHandle is a live transport subscription for one channel name.
type ChannelHandle interface {
	// Close tears down the subscription. Best effort; safe to call on an
	// already-dead handle.
	Close(ctx context.Context) error
}
