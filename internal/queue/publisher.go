package queue

import (
	"context"
	"time"

	"github.com/tableside/api/internal/notify"
)

const defaultPublishTimeout = 2 * time.Second

type jsonPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error
}

// Publisher is a notify.Sink that forwards events to the events exchange
// with routing key "order.<event>".
type Publisher struct {
	client   jsonPublisher
	exchange string
	timeout  time.Duration
}

func NewPublisher(client jsonPublisher) *Publisher {
	return &Publisher{client: client, exchange: EventsExchange, timeout: defaultPublishTimeout}
}

func (p *Publisher) Name() string { return "rabbitmq" }

// Send runs detached from the request context so a client disconnect right
// after commit does not cancel the publish.
func (p *Publisher) Send(ctx context.Context, msg notify.Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.client.PublishJSON(ctx, p.exchange, RoutingKey(msg.Event), msg)
}

// RoutingKey maps an event name to its topic routing key.
func RoutingKey(event string) string {
	return "order." + event
}
