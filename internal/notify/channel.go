package notify

import (
	"context"
	"log"
)

// Message is one notification addressed to a single recipient.
type Message struct {
	Phone     string
	Recipient string
	Body      string
}

// Channel delivers a message to its recipient. Implementations must be safe
// for concurrent use.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// LogChannel records messages to a logger instead of delivering them. Used
// when no delivery credentials are configured.
type LogChannel struct {
	logger *log.Logger
}

// NewLogChannel constructs a log-only channel.
func NewLogChannel(logger *log.Logger) *LogChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{logger: logger}
}

// Send logs the message.
func (c *LogChannel) Send(_ context.Context, msg Message) error {
	c.logger.Printf("notify (log only): to=%s recipient=%q body=%q", msg.Phone, msg.Recipient, msg.Body)
	return nil
}
