package events

import "context"

// Publisher is the interface for announcing platform broadcasts.
type Publisher interface {
	Broadcast(ctx context.Context, event *BroadcastEvent) error
}

// NoOpPublisher is a Publisher that does nothing (for in-process usage without a bus).
type NoOpPublisher struct{}

// Broadcast is a no-op.
func (p *NoOpPublisher) Broadcast(_ context.Context, _ *BroadcastEvent) error {
	return nil
}

// CallbackPublisher is a Publisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *BroadcastEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *BroadcastEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// Broadcast calls the callback.
func (p *CallbackPublisher) Broadcast(ctx context.Context, event *BroadcastEvent) error {
	return p.callback(ctx, event)
}
