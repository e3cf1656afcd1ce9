package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures an MQTTChannel.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	OrderMatters   bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func MQTTOptionsFrom(cfg config.MQTTConfig) MQTTOptions {
	return MQTTOptions{
		Broker:         cfg.Broker,
		ClientID:       cfg.ClientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		QoS:            byte(cfg.QoS),
		OrderMatters:   cfg.OrderMatters,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		PublishTimeout: time.Duration(cfg.PublishTimeoutSeconds) * time.Second,
	}
}

// MQTTChannel is a Channel backed by an MQTT broker. Subscriptions are
// remembered and restored every time the client (re)connects.
type MQTTChannel struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration

	mu   sync.Mutex
	subs map[string]Handler
}

// DialMQTT connects to the broker. The client keeps retrying in the
// background after the first connection, until Close is called.
func DialMQTT(ctx context.Context, opts MQTTOptions) (*MQTTChannel, error) {
	c := &MQTTChannel{
		qos:     opts.QoS,
		timeout: opts.PublishTimeout,
		subs:    make(map[string]Handler),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}

	c.client = mqtt.NewClient(c.clientOptions(opts))

	connectCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
		}
	case <-connectCtx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, connectCtx.Err())
	}
	return c, nil
}

func (c *MQTTChannel) clientOptions(opts MQTTOptions) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(opts.OrderMatters).
		SetCleanSession(true)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[MQTT] Connected to %s", opts.Broker)
		c.resubscribe()
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v", err)
	})
	return o
}

func (c *MQTTChannel) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", topic, ErrNotConnected)
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("publish %s: timed out after %s", topic, c.timeout)
	}
}

func (c *MQTTChannel) Subscribe(pattern string, handler Handler) error {
	c.mu.Lock()
	c.subs[pattern] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// restored by the connect handler
		return nil
	}
	return c.subscribe(pattern, handler)
}

func (c *MQTTChannel) subscribe(pattern string, handler Handler) error {
	token := c.client.Subscribe(pattern, c.qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timed out after %s", pattern, c.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	return nil
}

func (c *MQTTChannel) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for p, h := range c.subs {
		subs[p] = h
	}
	c.mu.Unlock()

	for pattern, handler := range subs {
		// the connect handler runs on the client goroutine, don't block it
		go func(pattern string, handler Handler) {
			if err := c.subscribe(pattern, handler); err != nil {
				log.Printf("[MQTT] Resubscribe failed: %v", err)
			}
		}(pattern, handler)
	}
}

func (c *MQTTChannel) Unsubscribe(pattern string) error {
	c.mu.Lock()
	delete(c.subs, pattern)
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	token := c.client.Unsubscribe(pattern)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("unsubscribe %s: timed out after %s", pattern, c.timeout)
	}
	return token.Error()
}

func (c *MQTTChannel) Close() {
	c.client.Disconnect(250)
}
