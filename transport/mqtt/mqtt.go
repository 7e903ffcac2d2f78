// Package mqtt provides the MQTT gateway of the smart antenna.
//
// Engine events are published as JSON to "{prefix}/{deviceID}/events/{kind}".
// Raw command frames, base64 encoded, are accepted on
// "{prefix}/{deviceID}/commands" and handed to the command handler. The
// gateway announces itself on "{prefix}/{deviceID}/status" with a retained
// "online" message and a last-will "offline".
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/kabili207/smartantenna-go/core/dedupe"
	"github.com/kabili207/smartantenna-go/core/event"
	"github.com/kabili207/smartantenna-go/transport"
)

// Compile-time interface check.
var _ event.Sink = (*Gateway)(nil)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix.
	DefaultTopicPrefix = "smartantenna"

	statusOnline  = "online"
	statusOffline = "offline"

	publishTimeout = 10 * time.Second
)

// CommandHandler receives a raw command frame from the gateway.
type CommandHandler func(frame []byte) error

// Config holds the configuration for an MQTT gateway.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "smartantenna").
	TopicPrefix string
	// DeviceID identifies this antenna under the prefix.
	DeviceID string
	// QoS used for event publications.
	QoS byte
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Gateway publishes engine events to an MQTT broker and relays remote
// command frames.
type Gateway struct {
	cfg            Config
	client         paho.Client
	log            *slog.Logger
	mu             sync.RWMutex
	connected      bool
	commandHandler CommandHandler
	stateHandler   func(transport.Event)

	// seen drops QoS 1 redeliveries of commands already handed on. Message
	// IDs restart with every clean session, so it is cleared on connect.
	seen *dedupe.Window
}

// New creates a new MQTT gateway with the given configuration.
func New(cfg Config) *Gateway {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.QoS > 2 {
		cfg.QoS = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gateway{
		cfg:  cfg,
		log:  cfg.Logger.WithGroup("mqtt"),
		seen: dedupe.New(),
	}
}

// Start connects to the MQTT broker and subscribes to the command topic.
func (g *Gateway) Start(ctx context.Context) error {
	if g.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if g.cfg.DeviceID == "" {
		return errors.New("device ID is required")
	}

	clientID := g.cfg.ClientID
	if clientID == "" {
		clientID = "smartantenna-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(g.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetWill(g.statusTopic(), statusOffline, 1, true).
		SetOnConnectHandler(g.onConnected).
		SetConnectionLostHandler(g.onConnectionLost).
		SetReconnectingHandler(g.onReconnecting)

	if g.cfg.Username != "" {
		opts.SetUsername(g.cfg.Username)
	}
	if g.cfg.Password != "" {
		opts.SetPassword(g.cfg.Password)
	}
	if g.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := paho.NewClient(opts)
	g.mu.Lock()
	g.client = client
	g.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(30 * time.Second):
		return errors.New("connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	return nil
}

// Stop announces the device offline and disconnects from the broker.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	client := g.client
	wasConnected := g.connected
	g.connected = false
	g.mu.Unlock()

	if client == nil {
		return nil
	}
	if wasConnected {
		token := client.Publish(g.statusTopic(), 1, true, statusOffline)
		token.WaitTimeout(time.Second)
	}
	client.Disconnect(1000)
	return nil
}

// IsConnected returns true if the gateway is connected to the broker.
func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected && g.client != nil && g.client.IsConnected()
}

// SetCommandHandler sets the callback for remote command frames.
func (g *Gateway) SetCommandHandler(fn CommandHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commandHandler = fn
}

// SetStateHandler sets the callback for broker connection changes.
func (g *Gateway) SetStateHandler(fn func(transport.Event)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stateHandler = fn
}

// Emit publishes ev without waiting for the broker. Events emitted while
// disconnected are dropped.
func (g *Gateway) Emit(ev event.Event) {
	if !g.IsConnected() {
		g.log.Debug("dropping event, not connected", "kind", ev.Kind)
		return
	}

	topic, payload, err := g.encodeEvent(ev)
	if err != nil {
		g.log.Warn("failed to encode event", "kind", ev.Kind, "error", err)
		return
	}

	g.mu.RLock()
	client := g.client
	g.mu.RUnlock()

	token := client.Publish(topic, g.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			g.log.Warn("timeout publishing event", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			g.log.Warn("failed to publish event", "topic", topic, "error", err)
		}
	}()
}

func (g *Gateway) encodeEvent(ev event.Event) (string, []byte, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", nil, err
	}
	return g.eventTopic(ev.Kind), payload, nil
}

func (g *Gateway) baseTopic() string {
	return g.cfg.TopicPrefix + "/" + g.cfg.DeviceID
}

func (g *Gateway) eventTopic(k event.Kind) string {
	return g.baseTopic() + "/events/" + k.String()
}

func (g *Gateway) commandTopic() string {
	return g.baseTopic() + "/commands"
}

func (g *Gateway) statusTopic() string {
	return g.baseTopic() + "/status"
}

func (g *Gateway) subscribe(client paho.Client) {
	topic := g.commandTopic()
	client.Subscribe(topic, 1, g.handleMessage)
	g.log.Debug("subscribed to command topic", "topic", topic)
}

func (g *Gateway) handleMessage(_ paho.Client, message paho.Message) {
	g.mu.RLock()
	handler := g.commandHandler
	g.mu.RUnlock()

	if handler == nil {
		return
	}

	id := message.MessageID()
	if g.seen.HasSeen([]byte{byte(id >> 8), byte(id)}, message.Payload()) && message.Duplicate() {
		g.log.Debug("dropping redelivered command", "message_id", id)
		return
	}

	frame, err := decodeCommand(message.Payload())
	if err != nil {
		g.log.Debug("failed to decode command payload", "error", err)
		return
	}

	if err := handler(frame); err != nil {
		g.log.Warn("remote command rejected", "error", err)
	}
}

func decodeCommand(payload []byte) ([]byte, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, errors.New("empty command payload")
	}
	frame, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 command: %w", err)
	}
	return frame, nil
}

func (g *Gateway) onConnected(client paho.Client) {
	g.mu.Lock()
	g.connected = true
	handler := g.stateHandler
	g.mu.Unlock()

	g.seen.Clear()
	g.subscribe(client)
	client.Publish(g.statusTopic(), 1, true, statusOnline)
	g.log.Info("connected to MQTT broker", "broker", g.cfg.Broker)

	if handler != nil {
		handler(transport.EventConnected)
	}
}

func (g *Gateway) onConnectionLost(_ paho.Client, err error) {
	g.mu.Lock()
	g.connected = false
	handler := g.stateHandler
	g.mu.Unlock()

	g.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(transport.EventDisconnected)
	}
}

func (g *Gateway) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	g.mu.RLock()
	handler := g.stateHandler
	g.mu.RUnlock()

	g.log.Info("reconnecting to MQTT broker")

	if handler != nil {
		handler(transport.EventReconnecting)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
