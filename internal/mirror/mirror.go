// Package mirror provides an in-memory stand-in for the address-space mirror
// of the host server. It records which PubSub entities are represented and
// hands out node ids, which is all the management core needs from the
// information model.
package mirror

import (
	"sync"

	"github.com/gopcua/opcua/ua"
	logging "github.com/ipfs/go-log/v2"

	"github.com/opcmesh/uapubsub/internal/pubsub"
)

var log = logging.Logger("ua-mirror")

const mirrorNamespace = 1

// Mirror implements pubsub.AddressSpaceMirror with an in-memory node table.
type Mirror struct {
	mu     sync.Mutex
	nextID uint32
	nodes  map[string]string // node id -> browse name
}

// New creates an empty mirror.
func New() *Mirror {
	return &Mirror{nodes: make(map[string]string)}
}

func (m *Mirror) add(name string) (*ua.NodeID, ua.StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := ua.NewNumericNodeID(mirrorNamespace, m.nextID)
	m.nodes[id.String()] = name
	log.Debugf("added representation %s for %q", id, name)
	return id, ua.StatusOK
}

func (m *Mirror) remove(id *ua.NodeID) ua.StatusCode {
	if id == nil {
		return ua.StatusBadNodeIDInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id.String()]; !ok {
		return ua.StatusBadNodeIDUnknown
	}
	delete(m.nodes, id.String())
	return ua.StatusOK
}

// NodeCount returns the number of represented entities.
func (m *Mirror) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// NodeExists implements pubsub.AddressSpaceMirror.
func (m *Mirror) NodeExists(id *ua.NodeID) bool {
	if id == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[id.String()]
	return ok
}

// AddConnectionRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddConnectionRepresentation(c *pubsub.Connection) (*ua.NodeID, ua.StatusCode) {
	return m.add(c.Config.Name)
}

// RemoveConnectionRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveConnectionRepresentation(c *pubsub.Connection) ua.StatusCode {
	return m.remove(c.ID)
}

// AddWriterGroupRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddWriterGroupRepresentation(wg *pubsub.WriterGroup) (*ua.NodeID, ua.StatusCode) {
	return m.add(wg.Config.Name)
}

// RemoveWriterGroupRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveWriterGroupRepresentation(wg *pubsub.WriterGroup) ua.StatusCode {
	return m.remove(wg.ID)
}

// AddDataSetWriterRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddDataSetWriterRepresentation(dsw *pubsub.DataSetWriter) (*ua.NodeID, ua.StatusCode) {
	return m.add(dsw.Config.Name)
}

// RemoveDataSetWriterRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveDataSetWriterRepresentation(dsw *pubsub.DataSetWriter) ua.StatusCode {
	return m.remove(dsw.ID)
}

// AddReaderGroupRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddReaderGroupRepresentation(rg *pubsub.ReaderGroup) (*ua.NodeID, ua.StatusCode) {
	return m.add(rg.Config.Name)
}

// RemoveReaderGroupRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveReaderGroupRepresentation(rg *pubsub.ReaderGroup) ua.StatusCode {
	return m.remove(rg.ID)
}

// AddDataSetReaderRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddDataSetReaderRepresentation(dsr *pubsub.DataSetReader) (*ua.NodeID, ua.StatusCode) {
	return m.add(dsr.Config.Name)
}

// RemoveDataSetReaderRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveDataSetReaderRepresentation(dsr *pubsub.DataSetReader) ua.StatusCode {
	return m.remove(dsr.ID)
}

// AddPublishedDataSetRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddPublishedDataSetRepresentation(pds *pubsub.PublishedDataSet) (*ua.NodeID, ua.StatusCode) {
	return m.add(pds.Config.Name)
}

// RemovePublishedDataSetRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemovePublishedDataSetRepresentation(pds *pubsub.PublishedDataSet) ua.StatusCode {
	return m.remove(pds.ID)
}

// AddSubscribedDataSetRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) AddSubscribedDataSetRepresentation(sds *pubsub.StandaloneSubscribedDataSet) (*ua.NodeID, ua.StatusCode) {
	return m.add(sds.Config.Name)
}

// RemoveSubscribedDataSetRepresentation implements pubsub.AddressSpaceMirror.
func (m *Mirror) RemoveSubscribedDataSetRepresentation(sds *pubsub.StandaloneSubscribedDataSet) ua.StatusCode {
	return m.remove(sds.ID)
}
