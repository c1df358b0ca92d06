// Package notify carries payment status nudges over MQTT. A nudge only says
// "look again"; the payment's status is always re-read from the API.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"rentflow/config"
	"rentflow/lifecycle"
)

// Nudge is the message published when the gateway reports on a payment.
type Nudge struct {
	PaymentID string                  `json:"payment_id"`
	Status    lifecycle.PaymentStatus `json:"status,omitempty"`
}

// Decode parses a nudge payload.
func Decode(payload []byte) (Nudge, error) {
	var n Nudge
	if err := json.Unmarshal(payload, &n); err != nil {
		return Nudge{}, fmt.Errorf("notify: decode nudge: %w", err)
	}
	if n.PaymentID == "" {
		return Nudge{}, fmt.Errorf("notify: nudge without payment id")
	}
	return n, nil
}

// Topic returns the concrete topic for a payment under a pattern such as
// rentflow/payments/+/status.
func Topic(pattern, paymentID string) string {
	return strings.Replace(pattern, "+", paymentID, 1)
}

// Client wraps a connected paho client.
type Client struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger

	mu   sync.Mutex
	subs []chan string
}

// Connect dials the broker in cfg.
func Connect(cfg config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("notify: MQTT broker not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect to %s: %w", cfg.Broker, token.Error())
	}
	return &Client{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Nudges subscribes to the configured topic and returns a channel of payment
// ids. Nudges are hints: when the receiver falls behind they are dropped.
func (c *Client) Nudges() (<-chan string, error) {
	ch := make(chan string, 16)
	c.mu.Lock()
	first := len(c.subs) == 0
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	if first {
		token := c.client.Subscribe(c.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			c.dispatch(msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("notify: subscribe %s: %w", c.topic, token.Error())
		}
	}
	return ch, nil
}

func (c *Client) dispatch(payload []byte) {
	n, err := Decode(payload)
	if err != nil {
		c.logger.Warn("ignoring malformed nudge", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- n.PaymentID:
		default:
			c.logger.Debug("nudge dropped", zap.String("payment_id", n.PaymentID))
		}
	}
}

// Publish sends a nudge for n.PaymentID.
func (c *Client) Publish(n Nudge) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode nudge: %w", err)
	}
	token := c.client.Publish(Topic(c.topic, n.PaymentID), 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("notify: publish %s: %w", n.PaymentID, token.Error())
	}
	return nil
}

// Close disconnects and closes every nudge channel.
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}
