package transport

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gopcua/opcua/ua"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttDefaultQoS     = 1
)

// PublishHandler is invoked for every PUBLISH received on a registered queue.
// The state is whatever was attached via SetPublishState.
type PublishHandler func(state any, topic string, payload []byte)

// MQTTLayer implements the MQTT transport profiles. One layer instance serves
// one profile URI (UADP or JSON encoding); the channels are plain MQTT
// clients either way, the encoding is decided by the message pipeline.
type MQTTLayer struct {
	profileURI string
	onPublish  PublishHandler
}

// NewMQTTLayer creates an MQTT transport layer for the given profile URI,
// which must belong to the MQTT family.
func NewMQTTLayer(profileURI string, onPublish PublishHandler) (*MQTTLayer, error) {
	if !strings.HasPrefix(profileURI, ProfileMQTTFamilyPrefix) {
		return nil, fmt.Errorf("profile %q is not an MQTT transport", profileURI)
	}
	return &MQTTLayer{profileURI: profileURI, onPublish: onPublish}, nil
}

// ProfileURI implements Layer.
func (l *MQTTLayer) ProfileURI() string {
	return l.profileURI
}

// CreateChannel implements Layer. The URL must use an mqtt/tcp/ssl scheme
// understood by the broker client, or opc.mqtt, which is mapped to tcp on the
// same host. Username and password may be supplied via the connection
// properties.
func (l *MQTTLayer) CreateChannel(cfg ChannelConfig) (Channel, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, cfg.URL)
	}

	broker := cfg.URL
	if u.Scheme == "opc.mqtt" {
		broker = "tcp://" + u.Host
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID(cfg.Name)).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true)
	if user := cfg.Properties["username"]; user != "" {
		opts.SetUsername(user)
		opts.SetPassword(cfg.Properties["password"])
	}

	ch := &mqttChannel{
		layer:        l,
		defaultTopic: cfg.Properties["topic"],
		qos:          mqttDefaultQoS,
	}
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		ch.deliver(msg.Topic(), msg.Payload())
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrBrokerUnreached, broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnreached, err)
	}

	ch.client = client
	log.Debugf("opened MQTT channel to %s", broker)
	return ch, nil
}

func clientID(name string) string {
	if name == "" {
		return "ua-pubsub"
	}
	return "ua-pubsub-" + name
}

type mqttChannel struct {
	layer        *MQTTLayer
	client       mqtt.Client
	defaultTopic string
	qos          byte

	mu           sync.Mutex
	publishState any
	closed       bool
}

// SetPublishState implements PublishStateSetter.
func (c *mqttChannel) SetPublishState(state any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishState = state
}

func (c *mqttChannel) deliver(topic string, payload []byte) {
	c.mu.Lock()
	state := c.publishState
	handler := c.layer.onPublish
	c.mu.Unlock()
	if handler != nil {
		handler(state, topic, payload)
	}
}

// Register subscribes the queue named by transportSettings, falling back to
// the channel's default topic.
func (c *mqttChannel) Register(transportSettings *ua.Variant) ua.StatusCode {
	topic := c.defaultTopic
	if transportSettings != nil {
		if s, ok := transportSettings.Value().(string); ok && s != "" {
			topic = s
		}
	}
	if topic == "" {
		log.Errorf("MQTT register failed: no queue name configured")
		return ua.StatusBadInvalidArgument
	}

	token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		c.deliver(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(mqttConnectTimeout) || token.Error() != nil {
		log.Errorf("MQTT subscribe %q failed: %v", topic, token.Error())
		return ua.StatusBadCommunicationError
	}
	log.Debugf("registered MQTT queue %q", topic)
	return ua.StatusOK
}

func (c *mqttChannel) Send(payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	token := c.client.Publish(c.defaultTopic, c.qos, false, payload)
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("publish to %q timed out", c.defaultTopic)
	}
	return token.Error()
}

func (c *mqttChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.client.Disconnect(250)
	return nil
}
