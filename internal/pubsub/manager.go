// Package pubsub implements the PubSub management core of the server: the
// authoritative in-memory model of connections, writer and reader groups,
// writers and readers, published and subscribed datasets, together with the
// transport-scoped id reservation service and the receive-timeout monitor.
package pubsub

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"
	logging "github.com/ipfs/go-log/v2"

	"github.com/opcmesh/uapubsub/internal/eventloop"
	"github.com/opcmesh/uapubsub/internal/transport"
)

var log = logging.Logger("ua-pubsub")

const nodeIDNamespace = 1

// SessionRegistry is the liveness view of the host server's sessions.
type SessionRegistry interface {
	AdminSessionID() *ua.NodeID
	ActiveSessionIDs() []*ua.NodeID
}

// KeyStorage holds PubSub security keys. The manager only consumes the
// teardown hook; rollover and distribution live elsewhere.
type KeyStorage interface {
	Close()
}

// AddressSpaceMirror surfaces PubSub entities as nodes of the server's
// address space. A nil mirror makes the manager generate identifiers locally.
type AddressSpaceMirror interface {
	AddConnectionRepresentation(c *Connection) (*ua.NodeID, ua.StatusCode)
	RemoveConnectionRepresentation(c *Connection) ua.StatusCode
	AddWriterGroupRepresentation(wg *WriterGroup) (*ua.NodeID, ua.StatusCode)
	RemoveWriterGroupRepresentation(wg *WriterGroup) ua.StatusCode
	AddDataSetWriterRepresentation(dsw *DataSetWriter) (*ua.NodeID, ua.StatusCode)
	RemoveDataSetWriterRepresentation(dsw *DataSetWriter) ua.StatusCode
	AddReaderGroupRepresentation(rg *ReaderGroup) (*ua.NodeID, ua.StatusCode)
	RemoveReaderGroupRepresentation(rg *ReaderGroup) ua.StatusCode
	AddDataSetReaderRepresentation(dsr *DataSetReader) (*ua.NodeID, ua.StatusCode)
	RemoveDataSetReaderRepresentation(dsr *DataSetReader) ua.StatusCode
	AddPublishedDataSetRepresentation(pds *PublishedDataSet) (*ua.NodeID, ua.StatusCode)
	RemovePublishedDataSetRepresentation(pds *PublishedDataSet) ua.StatusCode
	AddSubscribedDataSetRepresentation(sds *StandaloneSubscribedDataSet) (*ua.NodeID, ua.StatusCode)
	RemoveSubscribedDataSetRepresentation(sds *StandaloneSubscribedDataSet) ua.StatusCode
	NodeExists(id *ua.NodeID) bool
}

// PublishCallback is invoked on every publishing-interval tick of an
// operational writer group, with the manager lock held.
type PublishCallback func(c *Connection, wg *WriterGroup)

// Options wires the manager's collaborators.
type Options struct {
	Sessions   SessionRegistry
	Transports *transport.Registry
	EventLoop  *eventloop.Loop
	Mirror     AddressSpaceMirror
	Monitoring MonitoringInterface
	KeyStorage KeyStorage

	// Publish is called on writer-group publish ticks. Nil leaves the tick
	// as a no-op; the message pipeline is an external collaborator.
	Publish PublishCallback

	// PublishState is attached to MQTT-family channels and handed back on
	// every received PUBLISH.
	PublishState any
}

// reserveIDFirst is the first id of the reserved range [0x8000, 0xFFFF] used
// for both writer-group and dataset-writer ids.
const reserveIDFirst uint16 = 0x8000

// Manager is the root aggregate of the PubSub configuration tree. All methods
// except the explicitly locking ones assume the service mutex is held; use
// Lock/Unlock (the host server's wrappers do).
type Manager struct {
	mu sync.Mutex

	opts Options

	connections        []*Connection
	publishedDataSets  []*PublishedDataSet
	subscribedDataSets []*StandaloneSubscribedDataSet
	topicAssigns       []*TopicAssign
	reserveIDs         []*ReserveID
	securityGroups     []*SecurityGroup

	defaultPublisherID uint64
	uniqueIDCount      uint32

	// Per-kind cursors of the reserve allocator. Manager-scoped so two
	// managers never share allocator state; reset only by Destroy.
	nextWriterGroupID   uint16
	nextDataSetWriterID uint16
}

// NewManager initializes an empty manager. The default publisher id is seeded
// from a fresh UUID.
func NewManager(opts Options) *Manager {
	m := &Manager{
		opts:                opts,
		defaultPublisherID:  randomPublisherID(),
		nextWriterGroupID:   reserveIDFirst,
		nextDataSetWriterID: reserveIDFirst,
	}
	if m.opts.Monitoring == nil {
		m.opts.Monitoring = &defaultMonitoring{m: m}
	}
	return m
}

// randomPublisherID folds the leading fields of a fresh UUID into 64 bits.
func randomPublisherID() uint64 {
	u := uuid.New()
	id := uint64(binary.BigEndian.Uint32(u[0:4]))
	id = (id << 32) + uint64(binary.BigEndian.Uint16(u[4:6]))
	id = (id << 16) + uint64(binary.BigEndian.Uint16(u[6:8]))
	return id
}

// Lock acquires the service mutex serializing all manager mutations.
func (m *Manager) Lock() { m.mu.Lock() }

// Unlock releases the service mutex.
func (m *Manager) Unlock() { m.mu.Unlock() }

// Monitoring returns the monitoring interface in use.
func (m *Manager) Monitoring() MonitoringInterface { return m.opts.Monitoring }

// DefaultPublisherID returns the publisher id used when a connection config
// carries none.
func (m *Manager) DefaultPublisherID() uint64 { return m.defaultPublisherID }

// Destroy removes the whole PubSub configuration: connections (cascading
// through their groups), published datasets, topic assigns, reservations,
// transport layers, standalone subscribed datasets, security groups and the
// key storage, in that order. Destroying an empty manager is a no-op.
func (m *Manager) Destroy() {
	log.Info("PubSub cleanup was called")

	for _, id := range collectIDs(m.connections, func(c *Connection) *ua.NodeID { return c.ID }) {
		if res := m.RemoveConnection(id); res != ua.StatusOK {
			log.Errorf("cleanup: removing connection %s failed: %v", id, res)
		}
	}

	for _, id := range collectIDs(m.publishedDataSets, func(p *PublishedDataSet) *ua.NodeID { return p.ID }) {
		// Cleanup overrides the frozen latch.
		if pds := m.FindPublishedDataSetByID(id); pds != nil {
			pds.ConfigurationFrozen = false
		}
		if res := m.RemovePublishedDataSet(id); res != ua.StatusOK {
			log.Errorf("cleanup: removing published dataset %s failed: %v", id, res)
		}
	}

	m.topicAssigns = nil
	m.reserveIDs = nil
	m.nextWriterGroupID = reserveIDFirst
	m.nextDataSetWriterID = reserveIDFirst

	if m.opts.Transports != nil {
		m.opts.Transports.Clear()
	}

	for _, id := range collectIDs(m.subscribedDataSets, func(s *StandaloneSubscribedDataSet) *ua.NodeID { return s.ID }) {
		if res := m.RemoveStandaloneSubscribedDataSet(id); res != ua.StatusOK {
			log.Errorf("cleanup: removing subscribed dataset %s failed: %v", id, res)
		}
	}

	for _, id := range collectIDs(m.securityGroups, func(g *SecurityGroup) *ua.NodeID { return g.ID }) {
		if res := m.RemoveSecurityGroup(id); res != ua.StatusOK {
			log.Errorf("cleanup: removing security group %s failed: %v", id, res)
		}
	}

	if m.opts.KeyStorage != nil {
		m.opts.KeyStorage.Close()
	}
}

// GenerateUniqueNodeID returns a numeric node id unique within the manager's
// lifetime. With a mirror present the id is checked against real nodes.
func (m *Manager) GenerateUniqueNodeID() *ua.NodeID {
	for {
		m.uniqueIDCount++
		id := ua.NewNumericNodeID(nodeIDNamespace, m.uniqueIDCount)
		if m.opts.Mirror == nil || !m.opts.Mirror.NodeExists(id) {
			return id
		}
	}
}

// GenerateUniqueGUID returns a GUID node id that does not designate an
// existing node.
func (m *Manager) GenerateUniqueGUID() *ua.NodeID {
	for {
		id := ua.NewGUIDNodeID(nodeIDNamespace, uuid.NewString())
		if m.opts.Mirror == nil || !m.opts.Mirror.NodeExists(id) {
			return id
		}
	}
}

// epoch2000 is 2000-01-01T00:00:00Z, the zero point of PubSub configuration
// versions.
var epoch2000 = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ConfigurationVersionTimeDifference returns the time since the 2000 epoch in
// 100ns ticks, truncated to 32 bits. Two calls within the same tick return
// equal values.
func ConfigurationVersionTimeDifference() uint32 {
	return uint32(time.Since(epoch2000) / 100)
}

// AddRepeatedCallback schedules a periodic callback on the event loop. The
// callback runs on a goroutine of the loop and must acquire the manager lock
// itself.
func (m *Manager) AddRepeatedCallback(cb eventloop.Callback, interval time.Duration) (uint64, error) {
	return m.opts.EventLoop.AddCyclicCallback(cb, interval, nil, eventloop.HandleCycleMissWithCurrentTime)
}

// ChangeRepeatedCallbackInterval modifies the interval of a scheduled
// callback.
func (m *Manager) ChangeRepeatedCallbackInterval(id uint64, interval time.Duration) error {
	return m.opts.EventLoop.ModifyCyclicCallback(id, interval, nil, eventloop.HandleCycleMissWithCurrentTime)
}

// RemoveRepeatedCallback unschedules a callback.
func (m *Manager) RemoveRepeatedCallback(id uint64) {
	m.opts.EventLoop.RemoveCyclicCallback(id)
}

// ConnectionCount returns the number of connections.
func (m *Manager) ConnectionCount() int { return len(m.connections) }

// PublishedDataSetCount returns the number of published datasets.
func (m *Manager) PublishedDataSetCount() int { return len(m.publishedDataSets) }

// SubscribedDataSetCount returns the number of standalone subscribed
// datasets.
func (m *Manager) SubscribedDataSetCount() int { return len(m.subscribedDataSets) }

// ReserveIDCount returns the number of live reservations.
func (m *Manager) ReserveIDCount() int { return len(m.reserveIDs) }

// Connections returns the connection list. Callers must hold the lock and
// must not mutate the slice.
func (m *Manager) Connections() []*Connection { return m.connections }

func equalNodeID(a, b *ua.NodeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

func collectIDs[T any](items []T, id func(T) *ua.NodeID) []*ua.NodeID {
	ids := make([]*ua.NodeID, 0, len(items))
	for _, it := range items {
		ids = append(ids, id(it))
	}
	return ids
}
