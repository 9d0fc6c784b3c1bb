package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/errors"
)

const (
	// requestBacklog bounds requests received while the previous one is
	// still being dispatched.
	requestBacklog = 16

	disconnectTimeout = 5 * time.Second
	connectRetryDelay = 3 * time.Second
)

// MQTT subscribes to a request topic and publishes replies to a response
// topic. The connection is maintained by autopaho and resubscribes after
// every reconnect.
type MQTT struct {
	log      *slog.Logger
	opts     config.MQTTOptions
	cm       *autopaho.ConnectionManager
	requests chan string
	cancel   context.CancelFunc
	once     sync.Once
	closed   chan struct{}
}

// Compile-time verification that MQTT implements config.Transport.
var _ config.Transport = (*MQTT)(nil)

// ClientID returns opts.ClientID, or a fresh "llamabridge-<uuid>" when unset.
func ClientID(opts config.MQTTOptions) string {
	if opts.ClientID != "" {
		return opts.ClientID
	}

	return "llamabridge-" + uuid.NewString()
}

// NewMQTT starts connecting to the broker in the background. Serve waits
// for the connection.
func NewMQTT(log *slog.Logger, opts config.MQTTOptions) (*MQTT, error) {
	cfg, err := clientConfig(opts)
	if err != nil {
		return nil, err
	}

	m := &MQTT{
		log:      log.With("component", "mqtt_transport", "broker", opts.Broker),
		opts:     opts,
		requests: make(chan string, requestBacklog),
		closed:   make(chan struct{}),
	}

	cfg.OnConnectionUp = m.onConnectionUp
	cfg.OnConnectError = func(err error) {
		m.log.Warn("MQTT connection attempt failed", "error", err)
	}
	cfg.ClientConfig.OnPublishReceived = []func(paho.PublishReceived) (bool, error){
		m.onPublishReceived,
	}
	cfg.ClientConfig.OnClientError = func(err error) {
		m.log.Warn("MQTT client error", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("create mqtt connection: %w", err)
	}

	m.cm = cm

	return m, nil
}

func clientConfig(opts config.MQTTOptions) (autopaho.ClientConfig, error) {
	broker, err := url.Parse(opts.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse broker url: %w", err)
	}

	if broker.Host == "" {
		return autopaho.ClientConfig{}, fmt.Errorf("broker url %q has no host", opts.Broker)
	}

	username, password := opts.Username, opts.Password
	if broker.User != nil && username == "" {
		username = broker.User.Username()
		password, _ = broker.User.Password()
	}

	return autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     opts.KeepAlive,
		CleanStartOnInitialConnection: true,
		ConnectRetryDelay:             connectRetryDelay,
		ConnectPacketBuilder: func(pc *paho.Connect, _ *url.URL) (*paho.Connect, error) {
			if username == "" {
				pc.UsernameFlag = false
				pc.PasswordFlag = false
				pc.Username = ""
				pc.Password = nil

				return pc, nil
			}

			pc.UsernameFlag = true
			pc.Username = username
			pc.PasswordFlag = password != ""
			pc.Password = []byte(password)

			return pc, nil
		},
		ClientConfig: paho.ClientConfig{
			ClientID: ClientID(opts),
		},
	}, nil
}

// onConnectionUp subscribes on every (re)connection.
func (m *MQTT) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	m.log.Info("MQTT connection up")

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: m.opts.RequestTopic, QoS: m.opts.QoS},
		},
	}); err != nil {
		m.log.Error("MQTT subscribe failed", "topic", m.opts.RequestTopic, "error", err)

		return
	}

	m.log.Debug("Subscribed", "topic", m.opts.RequestTopic)
}

func (m *MQTT) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	if pr.Packet.Topic != m.opts.RequestTopic {
		return false, nil
	}

	m.enqueue(string(pr.Packet.Payload))

	return true, nil
}

// enqueue hands a request to Serve. Requests beyond the backlog are dropped.
func (m *MQTT) enqueue(text string) {
	select {
	case m.requests <- text:
	default:
		m.log.Warn("Request backlog full, dropping request", "text_len", len(text))
	}
}

// Serve waits for the broker connection, then dispatches requests one at
// a time until ctx is done or the transport is closed.
func (m *MQTT) Serve(ctx context.Context, handle config.RequestHandler) error {
	if err := m.cm.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("await mqtt connection: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.closed:
			return nil
		case <-m.cm.Done():
			return stderrors.New("mqtt connection manager stopped")
		case text := <-m.requests:
			if err := handle(ctx, text); err != nil {
				m.log.Warn("Request dropped", "error", err)
			}
		}
	}
}

// Publish sends text to the response topic.
func (m *MQTT) Publish(ctx context.Context, text string) error {
	select {
	case <-m.closed:
		return errors.ErrTransportClosed
	default:
	}

	if _, err := m.cm.Publish(ctx, &paho.Publish{
		Topic:   m.opts.ResponseTopic,
		QoS:     m.opts.QoS,
		Payload: []byte(text),
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", m.opts.ResponseTopic, err)
	}

	m.log.Info("Published response", "topic", m.opts.ResponseTopic, "text", text)

	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	var err error

	m.once.Do(func() {
		close(m.closed)

		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()

		err = m.cm.Disconnect(ctx)
		m.cancel()
	})

	return err
}
