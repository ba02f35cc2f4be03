package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderCarrier exposes Kafka message headers to OTel propagators so trace
// context survives the hop through the status topic.
type HeaderCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = (*HeaderCarrier)(nil)

func NewHeaderCarrier(msg *kafka.Message) *HeaderCarrier {
	return &HeaderCarrier{msg: msg}
}

func (c *HeaderCarrier) index(key string) int {
	return slices.IndexFunc(c.msg.Headers, func(h kafka.Header) bool { return h.Key == key })
}

func (c *HeaderCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string(c.msg.Headers[i].Value)
	}
	return ""
}

// Set overwrites an existing header rather than adding a duplicate.
func (c *HeaderCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		c.msg.Headers[i].Value = []byte(value)
		return
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
