// Package mqtttest runs an in-process MQTT broker for tests.
package mqtttest

import (
	"fmt"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

// Broker is a running test broker.
type Broker struct {
	Server *mochi.Server
	URL    string // tcp://127.0.0.1:port
}

// Start serves a broker on a free local port. It is closed on test cleanup.
func Start(t testing.TB) *Broker {
	t.Helper()

	// Reserve a free port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return &Broker{Server: server, URL: fmt.Sprintf("tcp://%s", addr)}
}

// Connect returns a paho client connected to the broker.
func (b *Broker) Connect(t testing.TB, clientID string, configure ...func(*mqtt.ClientOptions)) mqtt.Client {
	t.Helper()
	opts := mqtt.NewClientOptions().
		AddBroker(b.URL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second)
	for _, fn := range configure {
		fn(opts)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "connect timeout")
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

// Subscribe collects every payload on topic into a channel.
func Subscribe(t testing.TB, client mqtt.Client, topic string) <-chan []byte {
	t.Helper()
	ch := make(chan []byte, 1024)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		ch <- m.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())
	return ch
}
