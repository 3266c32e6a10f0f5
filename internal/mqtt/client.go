package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// Message is one outbound publish.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Client is the broker connection used by the [Publisher].
type Client interface {
	Publish(ctx context.Context, m Message) error
	Subscribe(ctx context.Context, topics []string) error
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Hooks receive connection lifecycle events. They are called from the
// client's goroutines and must not block.
type Hooks struct {
	OnConnect        func()
	OnConnectError   func(error)
	OnConnectionLost func(error)
	OnMessage        func(topic string, payload []byte)
}

// DialOptions configures a broker connection.
type DialOptions struct {
	URL      *url.URL
	User     string
	Password string
	ClientID string

	// WillTopic receives a retained "offline" if the connection drops.
	WillTopic string
}

// Dialer opens a broker connection that reconnects on its own.
type Dialer func(ctx context.Context, opts DialOptions, hooks Hooks) (Client, error)

// ClientID returns a per-process client id for node. A random suffix
// keeps a restarted process from colliding with its lingering session.
func ClientID(node string) string {
	return "kioskbridge-" + node + "-" + uuid.NewString()[:8]
}

// pahoClient adapts an autopaho connection manager to [Client].
type pahoClient struct {
	cm *autopaho.ConnectionManager
}

// DialPaho connects with Eclipse Paho's autopaho. TLS is enabled for
// mqtts:// and ssl:// URLs.
func DialPaho(ctx context.Context, opts DialOptions, hooks Hooks) (Client, error) {
	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{opts.URL},
		KeepAlive:  30,
		WillMessage: &paho.WillMessage{
			Topic:   opts.WillTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			hooks.OnConnect()
		},
		OnConnectError: func(err error) {
			hooks.OnConnectError(err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					hooks.OnMessage(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				hooks.OnConnectionLost(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				hooks.OnConnectionLost(fmt.Errorf("server disconnect: reason code %d", d.ReasonCode))
			},
		},
	}

	// Credentials are only sent when both are configured.
	if opts.User != "" && opts.Password != "" {
		cfg.ConnectUsername = opts.User
		cfg.ConnectPassword = []byte(opts.Password)
	}

	if opts.URL.Scheme == "mqtts" || opts.URL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &pahoClient{cm: cm}, nil
}

func (c *pahoClient) Publish(ctx context.Context, m Message) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   m.Topic,
		Payload: m.Payload,
		QoS:     m.QoS,
		Retain:  m.Retain,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	subs := make([]paho.SubscribeOptions, len(topics))
	for i, t := range topics {
		subs[i] = paho.SubscribeOptions{Topic: t, QoS: 1}
	}
	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) Disconnect(ctx context.Context) error {
	return c.cm.Disconnect(ctx)
}
