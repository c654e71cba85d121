package observability

import "context"

// NoOpObserver drops every event. Stores fall back to it when no observer
// is configured.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
