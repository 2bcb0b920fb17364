// Package transport provides the PubSub transport-layer plugins and the
// registry that matches them by transport-profile URI.
package transport

import (
	"errors"
	"sync"

	"github.com/gopcua/opcua/ua"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ua-transport")

// Transport errors.
var (
	ErrLayerNotFound   = errors.New("no transport layer registered for profile")
	ErrDuplicateLayer  = errors.New("transport layer already registered for profile")
	ErrInvalidAddress  = errors.New("invalid network address URL")
	ErrChannelClosed   = errors.New("transport channel is closed")
	ErrBrokerUnreached = errors.New("could not reach broker")
)

// Recognized transport-profile URIs.
const (
	ProfileMQTTUADP = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-uadp"
	ProfileMQTTJSON = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt-json"
	ProfileUDPUADP  = "http://opcfoundation.org/UA-Profile/Transport/pubsub-udp-uadp"

	// ProfileMQTTFamilyPrefix is shared by every MQTT-based profile.
	ProfileMQTTFamilyPrefix = "http://opcfoundation.org/UA-Profile/Transport/pubsub-mqtt"
)

// ChannelConfig carries the connection parameters a layer needs to open a
// channel. The manager builds it from its own connection configuration.
type ChannelConfig struct {
	Name             string
	URL              string
	NetworkInterface string
	Properties       map[string]string
}

// Channel is an opened communication channel of a connection.
type Channel interface {
	// Register binds the receive side of the channel. For broker transports
	// this subscribes the queue carried in transportSettings; nil settings
	// select the channel default.
	Register(transportSettings *ua.Variant) ua.StatusCode

	// Send transmits one encoded network message.
	Send(payload []byte) error

	Close() error
}

// PublishStateSetter is implemented by channels of the MQTT family. The state
// is handed back on every received publish.
type PublishStateSetter interface {
	SetPublishState(state any)
}

// Layer creates channels for one transport profile.
type Layer interface {
	ProfileURI() string
	CreateChannel(cfg ChannelConfig) (Channel, error)
}

// Registry holds the transport layers of a server, matched by exact
// transport-profile URI.
type Registry struct {
	mu     sync.RWMutex
	layers map[string]Layer
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{layers: make(map[string]Layer)}
}

// Register adds a layer. Registering a second layer for the same profile is
// rejected.
func (r *Registry) Register(layer Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	uri := layer.ProfileURI()
	if _, ok := r.layers[uri]; ok {
		return ErrDuplicateLayer
	}
	r.layers[uri] = layer
	log.Infof("registered transport layer for %s", uri)
	return nil
}

// Lookup returns the layer for the given profile URI.
func (r *Registry) Lookup(profileURI string) (Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	layer, ok := r.layers[profileURI]
	return layer, ok
}

// Profiles returns the registered profile URIs.
func (r *Registry) Profiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uris := make([]string, 0, len(r.layers))
	for uri := range r.layers {
		uris = append(uris, uri)
	}
	return uris
}

// Clear drops all registered layers. Called during manager teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = make(map[string]Layer)
}
