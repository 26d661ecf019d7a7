package events

import "context"

// Envelope is what ChannelSink delivers to its consumer: a record type
// tag plus the already-typed payload (no JSON round-trip, since both
// ends are in the same process).
type Envelope struct {
	Type string
	Data any
}

// ChannelSink is an in-process bounded channel between the scan core and
// an external progress consumer (e.g. a WebSocket bridge or the HTTP
// control surface). Backpressure is applied by dropping log-level
// events; progress, scan_start, warning, error, unknown_status_code,
// and scan_complete are never dropped. A full channel blocks the sender
// (bounded by ctx) instead.
type ChannelSink struct {
	ch chan Envelope
}

// NewChannelSink builds a ChannelSink with the given channel capacity.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		capacity = 1
	}
	return &ChannelSink{ch: make(chan Envelope, capacity)}
}

// Events returns the receive side of the channel for the consumer.
func (s *ChannelSink) Events() <-chan Envelope {
	return s.ch
}

func (s *ChannelSink) WriteScanStart(ctx context.Context, p ScanStartPayload) error {
	return s.send(ctx, Envelope{Type: TypeScanStart, Data: p})
}

func (s *ChannelSink) WriteProgress(ctx context.Context, p ProgressPayload) error {
	return s.send(ctx, Envelope{Type: TypeProgress, Data: p})
}

// WriteLog drops the event (rather than blocking the scan) if the
// channel is full.
func (s *ChannelSink) WriteLog(ctx context.Context, p LogPayload) error {
	select {
	case s.ch <- (Envelope{Type: TypeLog, Data: p}):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *ChannelSink) WriteWarning(ctx context.Context, p WarningPayload) error {
	return s.send(ctx, Envelope{Type: TypeWarning, Data: p})
}

func (s *ChannelSink) WriteError(ctx context.Context, p ErrorPayload) error {
	return s.send(ctx, Envelope{Type: TypeError, Data: p})
}

func (s *ChannelSink) WriteUnknownStatusCode(ctx context.Context, p UnknownStatusCodePayload) error {
	return s.send(ctx, Envelope{Type: TypeUnknownStatusCode, Data: p})
}

func (s *ChannelSink) WriteScanComplete(ctx context.Context, p ScanCompletePayload) error {
	return s.send(ctx, Envelope{Type: TypeScanComplete, Data: p})
}

// Close closes the channel. The sender, not the consumer, owns Close:
// calling it while a Write is in flight will panic the sender, so it
// must only be called after the coordinator's Run has returned.
func (s *ChannelSink) Close() error {
	close(s.ch)
	return nil
}

func (s *ChannelSink) send(ctx context.Context, e Envelope) error {
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Sink = (*ChannelSink)(nil)
