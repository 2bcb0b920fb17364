package pubsub

import (
	"strings"

	"github.com/gopcua/opcua/ua"

	"github.com/opcmesh/uapubsub/internal/transport"
)

// Connection is a transport binding owning writer and reader groups.
type Connection struct {
	ID                  *ua.NodeID
	Config              *ConnectionConfig
	Channel             transport.Channel
	IsRegistered        bool
	ConfigurationFrozen bool

	WriterGroups []*WriterGroup
	ReaderGroups []*ReaderGroup
}

// TopicAssign binds a reader group to a broker topic.
type TopicAssign struct {
	ReaderGroupID *ua.NodeID
	Topic         string
}

// AddConnection creates a connection from the config and opens its transport
// channel. The config is deep-copied.
func (m *Manager) AddConnection(cfg *ConnectionConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("PubSub Connection creation failed. No connection configuration supplied")
		return ua.StatusBadInternalError, nil
	}

	layer, ok := m.lookupTransportLayer(cfg.TransportProfileURI)
	if !ok {
		log.Error("PubSub Connection creation failed. Requested transport layer not found")
		return ua.StatusBadNotFound, nil
	}

	for _, existing := range m.connections {
		if existing.Config.Name == cfg.Name {
			log.Error("PubSub Connection creation failed. Connection with the same name already exists")
			return ua.StatusBadBrowseNameDuplicated, nil
		}
	}

	c := &Connection{Config: cfg.Copy()}
	m.connections = append(m.connections, c)

	channel, err := layer.CreateChannel(channelConfig(c.Config))
	if err != nil {
		m.unlinkConnection(c)
		log.Errorf("PubSub Connection creation failed. Transport layer creation problem: %v", err)
		return ua.StatusBadInternalError, nil
	}
	c.Channel = channel

	// MQTT-family channels deliver received publishes back to the host; hand
	// them the state to deliver with.
	if strings.HasPrefix(c.Config.TransportProfileURI, transport.ProfileMQTTFamilyPrefix) {
		if setter, ok := channel.(transport.PublishStateSetter); ok {
			setter.SetPublishState(m.opts.PublishState)
		}
	}

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddConnectionRepresentation(c)
		if res != ua.StatusOK {
			log.Errorf("adding connection representation failed: %v", res)
		}
		c.ID = id
	}
	if c.ID == nil {
		c.ID = m.GenerateUniqueNodeID()
	}

	log.Infof("added PubSub connection %q (%s)", c.Config.Name, c.Config.TransportProfileURI)
	return ua.StatusOK, c.ID
}

func (m *Manager) lookupTransportLayer(profileURI string) (transport.Layer, bool) {
	if m.opts.Transports == nil {
		return nil, false
	}
	return m.opts.Transports.Lookup(profileURI)
}

func channelConfig(cfg *ConnectionConfig) transport.ChannelConfig {
	props := make(map[string]string, len(cfg.ConnectionProperties))
	for _, kv := range cfg.ConnectionProperties {
		if kv.Value == nil {
			continue
		}
		if s, ok := kv.Value.Value().(string); ok {
			props[kv.Key] = s
		}
	}
	return transport.ChannelConfig{
		Name:             cfg.Name,
		URL:              cfg.Address.URL,
		NetworkInterface: cfg.Address.NetworkInterface,
		Properties:       props,
	}
}

// RemoveConnection disables, unfreezes and removes all groups below the
// connection, then removes the connection itself.
func (m *Manager) RemoveConnection(id *ua.NodeID) ua.StatusCode {
	c := m.FindConnectionByID(id)
	if c == nil {
		return ua.StatusBadNotFound
	}

	for _, wgID := range collectIDs(c.WriterGroups, func(wg *WriterGroup) *ua.NodeID { return wg.ID }) {
		if res := m.SetWriterGroupState(wgID, PubSubStateDisabled, ua.StatusBadShutdown); res != ua.StatusOK {
			log.Errorf("disabling writer group %s failed: %v", wgID, res)
		}
		if res := m.UnfreezeWriterGroupConfiguration(wgID); res != ua.StatusOK {
			log.Errorf("unfreezing writer group %s failed: %v", wgID, res)
		}
		if res := m.RemoveWriterGroup(wgID); res != ua.StatusOK {
			log.Errorf("removing writer group %s failed: %v", wgID, res)
		}
	}

	for _, rgID := range collectIDs(c.ReaderGroups, func(rg *ReaderGroup) *ua.NodeID { return rg.ID }) {
		if res := m.SetReaderGroupState(rgID, PubSubStateDisabled, ua.StatusBadShutdown); res != ua.StatusOK {
			log.Errorf("disabling reader group %s failed: %v", rgID, res)
		}
		if res := m.UnfreezeReaderGroupConfiguration(rgID); res != ua.StatusOK {
			log.Errorf("unfreezing reader group %s failed: %v", rgID, res)
		}
		if res := m.RemoveReaderGroup(rgID); res != ua.StatusOK {
			log.Errorf("removing reader group %s failed: %v", rgID, res)
		}
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveConnectionRepresentation(c)
	}

	m.unlinkConnection(c)

	if c.Channel != nil {
		if err := c.Channel.Close(); err != nil {
			log.Errorf("closing channel of connection %q: %v", c.Config.Name, err)
		}
	}

	log.Infof("removed PubSub connection %q", c.Config.Name)
	return ua.StatusOK
}

func (m *Manager) unlinkConnection(c *Connection) {
	for i, cand := range m.connections {
		if cand == c {
			m.connections = append(m.connections[:i], m.connections[i+1:]...)
			return
		}
	}
}

// RegisterConnection binds the receive side of the connection's channel,
// passing the reader group's transport settings when supplied. Registering an
// already-registered connection is a no-op.
func (m *Manager) RegisterConnection(id *ua.NodeID, rgCfg *ReaderGroupConfig) ua.StatusCode {
	c := m.FindConnectionByID(id)
	if c == nil {
		return ua.StatusBadNotFound
	}

	if c.IsRegistered {
		log.Info("connection already registered")
		return ua.StatusOK
	}

	var settings *ua.Variant
	if rgCfg != nil {
		settings = rgCfg.TransportSettings
	}
	res := c.Channel.Register(settings)
	if res != ua.StatusOK {
		log.Warnf("register channel failed: %v", res)
	}

	c.IsRegistered = true
	return res
}

// FindConnectionByID returns the connection with the given id, or nil.
func (m *Manager) FindConnectionByID(id *ua.NodeID) *Connection {
	for _, c := range m.connections {
		if equalNodeID(c.ID, id) {
			return c
		}
	}
	return nil
}

// AddTopicAssign records a reader group / topic binding, used by the broker
// transports.
func (m *Manager) AddTopicAssign(readerGroupID *ua.NodeID, topic string) ua.StatusCode {
	m.topicAssigns = append(m.topicAssigns, &TopicAssign{
		ReaderGroupID: readerGroupID,
		Topic:         topic,
	})
	return ua.StatusOK
}

// TopicAssigns returns the topic bindings of a reader group.
func (m *Manager) TopicAssigns(readerGroupID *ua.NodeID) []string {
	var topics []string
	for _, ta := range m.topicAssigns {
		if equalNodeID(ta.ReaderGroupID, readerGroupID) {
			topics = append(topics, ta.Topic)
		}
	}
	return topics
}

func (m *Manager) removeTopicAssigns(readerGroupID *ua.NodeID) {
	kept := m.topicAssigns[:0]
	for _, ta := range m.topicAssigns {
		if !equalNodeID(ta.ReaderGroupID, readerGroupID) {
			kept = append(kept, ta)
		}
	}
	m.topicAssigns = kept
}
