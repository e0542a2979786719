package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by AsyncSink.Send when the buffer is full.
var ErrQueueFull = errors.New("notification queue full")

const defaultAsyncBuffer = 256

// AsyncSink moves a slow sink (the broker) off the request goroutine. Send
// only enqueues; Run delivers in order and logs delivery failures.
type AsyncSink struct {
	sink  Sink
	log   *zap.Logger
	queue chan Message
	done  chan struct{}
}

// NewAsync wraps sink with a buffer of size messages. size <= 0 uses the
// default.
func NewAsync(sink Sink, size int, log *zap.Logger) *AsyncSink {
	if size <= 0 {
		size = defaultAsyncBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncSink{
		sink:  sink,
		log:   log,
		queue: make(chan Message, size),
		done:  make(chan struct{}),
	}
}

func (a *AsyncSink) Name() string { return a.sink.Name() }

// Send never blocks. A full buffer drops the message and reports it to the
// Fanout, which logs it.
func (a *AsyncSink) Send(ctx context.Context, msg Message) error {
	select {
	case a.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled, then flushes what is
// already buffered and closes Done.
func (a *AsyncSink) Run(ctx context.Context) {
	defer close(a.done)
	deliverCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-a.queue:
					a.deliver(deliverCtx, msg)
				default:
					return
				}
			}
		case msg := <-a.queue:
			a.deliver(deliverCtx, msg)
		}
	}
}

// Done is closed once Run has flushed and returned.
func (a *AsyncSink) Done() <-chan struct{} { return a.done }

func (a *AsyncSink) deliver(ctx context.Context, msg Message) {
	if err := a.sink.Send(ctx, msg); err != nil {
		a.log.Warn("notification dropped",
			zap.String("sink", a.sink.Name()),
			zap.String("event", msg.Event),
			zap.String("session_id", msg.SessionID.String()),
			zap.Error(err),
		)
	}
}
