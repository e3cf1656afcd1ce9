package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "devices/pi-1/schedule", ScheduleTopic("pi-1"))
	assert.Equal(t, "devices/pi-1/ack", AckTopic("pi-1"))

	id, err := DeviceIDFromTopic("devices/pi-1/ack")
	require.NoError(t, err)
	assert.Equal(t, "pi-1", id)

	for _, bad := range []string{"devices/pi-1", "devices//ack", "things/pi-1/ack", "devices/pi-1/status"} {
		_, err := DeviceIDFromTopic(bad)
		assert.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
}

func TestValidateDeviceID(t *testing.T) {
	assert.NoError(t, ValidateDeviceID("pi-1"))
	for _, bad := range []string{"", "a/b", "a+", "#"} {
		assert.Error(t, ValidateDeviceID(bad))
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		match          bool
	}{
		{"devices/pi-1/ack", "devices/pi-1/ack", true},
		{"devices/+/ack", "devices/pi-1/ack", true},
		{"devices/+/ack", "devices/pi-1/schedule", false},
		{"devices/+/ack", "devices/pi-1/ack/extra", false},
		{"devices/#", "devices/pi-1/ack", true},
		{"#", "devices/pi-1/ack", true},
		{"devices/pi-1/#", "devices/pi-2/ack", false},
		{"devices/+", "devices/pi-1/ack", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, MatchTopic(c.pattern, c.topic), "%s ~ %s", c.pattern, c.topic)
	}
}

func TestMemoryChannelDispatchesSynchronously(t *testing.T) {
	ch := NewMemoryChannel()
	var got []string
	require.NoError(t, ch.Subscribe(AckWildcard, func(topic string, payload []byte) {
		got = append(got, topic+"="+string(payload))
	}))

	require.NoError(t, ch.Publish(context.Background(), AckTopic("pi-1"), []byte("a")))
	require.NoError(t, ch.Publish(context.Background(), AckTopic("pi-2"), []byte("b")))
	require.NoError(t, ch.Publish(context.Background(), ScheduleTopic("pi-1"), []byte("c")))

	assert.Equal(t, []string{"devices/pi-1/ack=a", "devices/pi-2/ack=b"}, got)
	assert.Len(t, ch.Published(), 3)
	assert.Len(t, ch.PublishedTo(ScheduleTopic("pi-1")), 1)
}

func TestMemoryChannelHandlersCanPublish(t *testing.T) {
	ch := NewMemoryChannel()
	require.NoError(t, ch.Subscribe(ScheduleTopic("pi-1"), func(_ string, payload []byte) {
		_ = ch.Publish(context.Background(), AckTopic("pi-1"), payload)
	}))

	var acks [][]byte
	require.NoError(t, ch.Subscribe(AckTopic("pi-1"), func(_ string, payload []byte) {
		acks = append(acks, payload)
	}))

	require.NoError(t, ch.Publish(context.Background(), ScheduleTopic("pi-1"), []byte("s")))
	assert.Equal(t, [][]byte{[]byte("s")}, acks)
}

func TestMemoryChannelUnsubscribeAndClose(t *testing.T) {
	ch := NewMemoryChannel()
	calls := 0
	require.NoError(t, ch.Subscribe("devices/+/schedule", func(string, []byte) { calls++ }))
	require.NoError(t, ch.Publish(context.Background(), ScheduleTopic("pi-1"), nil))
	require.NoError(t, ch.Unsubscribe("devices/+/schedule"))
	require.NoError(t, ch.Publish(context.Background(), ScheduleTopic("pi-1"), nil))
	assert.Equal(t, 1, calls)

	ch.Close()
	assert.ErrorIs(t, ch.Publish(context.Background(), ScheduleTopic("pi-1"), nil), ErrClosed)
	assert.ErrorIs(t, ch.Subscribe("x", func(string, []byte) {}), ErrClosed)
}

func TestMemoryChannelRespectsContext(t *testing.T) {
	ch := NewMemoryChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.Publish(ctx, "devices/pi-1/ack", nil), context.Canceled)
	assert.Empty(t, ch.Published())
}

func TestMemoryChannelConcurrentPublish(t *testing.T) {
	ch := NewMemoryChannel()
	var mu sync.Mutex
	count := 0
	require.NoError(t, ch.Subscribe("#", func(string, []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ch.Publish(context.Background(), AckTopic("pi-1"), []byte("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, count)
	assert.Len(t, ch.Published(), 20)
}

func TestMQTTClientOptions(t *testing.T) {
	c := &MQTTChannel{subs: make(map[string]Handler)}
	o := c.clientOptions(MQTTOptions{
		Broker:       "tcp://localhost:1883",
		ClientID:     "issuer-1",
		OrderMatters: true,
	})

	require.Len(t, o.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", o.Servers[0].String())
	assert.Equal(t, "issuer-1", o.ClientID)
	assert.True(t, o.AutoReconnect)
	assert.True(t, o.ConnectRetry)
	assert.True(t, o.Order)
}

func TestMQTTOptionsFromConfig(t *testing.T) {
	opts := MQTTOptionsFrom(config.DefaultIssuerConfig().MQTT)
	assert.Equal(t, "tcp://localhost:1883", opts.Broker)
	assert.Equal(t, byte(1), opts.QoS)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 10*time.Second, opts.PublishTimeout)
}

func TestDialMQTTGivesUpAfterTimeout(t *testing.T) {
	start := time.Now()
	_, err := DialMQTT(context.Background(), MQTTOptions{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "test",
		ConnectTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
