package pubsub

import (
	"github.com/gopcua/opcua/ua"
)

// WriterGroup is the scheduling and encoding envelope of one or more dataset
// writers sharing a publishing interval.
type WriterGroup struct {
	ID                  *ua.NodeID
	ConnectionID        *ua.NodeID
	Config              *WriterGroupConfig
	State               PubSubState
	ConfigurationFrozen bool

	Writers []*DataSetWriter

	publishCallbackID uint64
}

// DataSetWriter emits network messages for a single published dataset. A nil
// ConnectedDataSet means heartbeat mode.
type DataSetWriter struct {
	ID                  *ua.NodeID
	WriterGroupID       *ua.NodeID
	Config              *DataSetWriterConfig
	ConnectedDataSet    *ua.NodeID
	State               PubSubState
	ConfigurationFrozen bool
}

// AddWriterGroup creates a writer group under the connection. A zero
// writer-group id is auto-assigned from the reserved range; an explicit id
// must not collide with a live writer group in the same transport-profile
// scope.
func (m *Manager) AddWriterGroup(connectionID *ua.NodeID, cfg *WriterGroupConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("WriterGroup creation failed. No config passed in")
		return ua.StatusBadInvalidArgument, nil
	}
	c := m.FindConnectionByID(connectionID)
	if c == nil {
		log.Error("WriterGroup creation failed. Connection not found")
		return ua.StatusBadNotFound, nil
	}
	if c.ConfigurationFrozen {
		log.Warn("WriterGroup creation failed. Connection configuration is frozen")
		return ua.StatusBadConfigurationError, nil
	}

	wg := &WriterGroup{
		ConnectionID: c.ID,
		Config:       cfg.Copy(),
		State:        PubSubStateDisabled,
	}

	uri := c.Config.TransportProfileURI
	if wg.Config.WriterGroupID == 0 {
		id, ok := m.findFreeID(uri, ReserveIDWriterGroup)
		if !ok {
			log.Error("WriterGroup creation failed. No free writer group id")
			return ua.StatusBadInternalError, nil
		}
		wg.Config.WriterGroupID = id
	} else if m.writerGroupIDInUse(uri, wg.Config.WriterGroupID) {
		log.Errorf("WriterGroup creation failed. Id %d already in use", wg.Config.WriterGroupID)
		return ua.StatusBadInvalidArgument, nil
	}

	c.WriterGroups = append(c.WriterGroups, wg)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddWriterGroupRepresentation(wg)
		if res != ua.StatusOK {
			log.Errorf("adding writer group representation failed: %v", res)
		}
		wg.ID = id
	}
	if wg.ID == nil {
		wg.ID = m.GenerateUniqueNodeID()
	}

	log.Infof("added WriterGroup %q (id %d)", wg.Config.Name, wg.Config.WriterGroupID)
	return ua.StatusOK, wg.ID
}

// RemoveWriterGroup removes a writer group and its writers. Frozen groups are
// rejected.
func (m *Manager) RemoveWriterGroup(id *ua.NodeID) ua.StatusCode {
	wg, c := m.findWriterGroupByID(id)
	if wg == nil {
		return ua.StatusBadNotFound
	}
	if wg.ConfigurationFrozen {
		log.Warn("Remove WriterGroup failed. WriterGroup is frozen")
		return ua.StatusBadConfigurationError
	}

	m.unschedulePublish(wg)

	for _, wid := range collectIDs(wg.Writers, func(dsw *DataSetWriter) *ua.NodeID { return dsw.ID }) {
		if res := m.RemoveDataSetWriter(wid); res != ua.StatusOK {
			log.Errorf("removing dataset writer %s failed: %v", wid, res)
		}
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveWriterGroupRepresentation(wg)
	}

	for i, cand := range c.WriterGroups {
		if cand == wg {
			c.WriterGroups = append(c.WriterGroups[:i], c.WriterGroups[i+1:]...)
			break
		}
	}
	log.Infof("removed WriterGroup %q", wg.Config.Name)
	return ua.StatusOK
}

// AddDataSetWriter creates a dataset writer under the writer group,
// referencing the published dataset. A nil dataset id selects heartbeat mode.
func (m *Manager) AddDataSetWriter(writerGroupID *ua.NodeID, dataSetID *ua.NodeID, cfg *DataSetWriterConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("DataSetWriter creation failed. No config passed in")
		return ua.StatusBadInvalidArgument, nil
	}
	wg, c := m.findWriterGroupByID(writerGroupID)
	if wg == nil {
		log.Error("DataSetWriter creation failed. WriterGroup not found")
		return ua.StatusBadNotFound, nil
	}
	if wg.ConfigurationFrozen {
		log.Warn("DataSetWriter creation failed. WriterGroup configuration is frozen")
		return ua.StatusBadConfigurationError, nil
	}
	if dataSetID != nil && m.FindPublishedDataSetByID(dataSetID) == nil {
		log.Error("DataSetWriter creation failed. PublishedDataSet not found")
		return ua.StatusBadNotFound, nil
	}

	dsw := &DataSetWriter{
		WriterGroupID:    wg.ID,
		Config:           cfg.Copy(),
		ConnectedDataSet: dataSetID,
		State:            wg.State,
	}

	uri := c.Config.TransportProfileURI
	if dsw.Config.DataSetWriterID == 0 {
		id, ok := m.findFreeID(uri, ReserveIDDataSetWriter)
		if !ok {
			log.Error("DataSetWriter creation failed. No free dataset writer id")
			return ua.StatusBadInternalError, nil
		}
		dsw.Config.DataSetWriterID = id
	} else if m.dataSetWriterIDInUse(uri, dsw.Config.DataSetWriterID) {
		log.Errorf("DataSetWriter creation failed. Id %d already in use", dsw.Config.DataSetWriterID)
		return ua.StatusBadInvalidArgument, nil
	}

	wg.Writers = append(wg.Writers, dsw)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddDataSetWriterRepresentation(dsw)
		if res != ua.StatusOK {
			log.Errorf("adding dataset writer representation failed: %v", res)
		}
		dsw.ID = id
	}
	if dsw.ID == nil {
		dsw.ID = m.GenerateUniqueNodeID()
	}

	log.Infof("added DataSetWriter %q (id %d)", dsw.Config.Name, dsw.Config.DataSetWriterID)
	return ua.StatusOK, dsw.ID
}

// RemoveDataSetWriter removes a dataset writer. Frozen writers are rejected.
func (m *Manager) RemoveDataSetWriter(id *ua.NodeID) ua.StatusCode {
	dsw, wg := m.findDataSetWriterByID(id)
	if dsw == nil {
		return ua.StatusBadNotFound
	}
	if dsw.ConfigurationFrozen {
		log.Warn("Remove DataSetWriter failed. DataSetWriter is frozen")
		return ua.StatusBadConfigurationError
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveDataSetWriterRepresentation(dsw)
	}

	for i, cand := range wg.Writers {
		if cand == dsw {
			wg.Writers = append(wg.Writers[:i], wg.Writers[i+1:]...)
			break
		}
	}
	log.Infof("removed DataSetWriter %q", dsw.Config.Name)
	return ua.StatusOK
}

// SetWriterGroupState transitions a writer group and its writers. The cause
// is logged for Disabled and Error transitions. An Operational group has its
// publish callback scheduled at the publishing interval.
func (m *Manager) SetWriterGroupState(id *ua.NodeID, state PubSubState, cause ua.StatusCode) ua.StatusCode {
	wg, c := m.findWriterGroupByID(id)
	if wg == nil {
		return ua.StatusBadNotFound
	}
	if wg.State == state {
		return ua.StatusOK
	}

	switch state {
	case PubSubStateDisabled, PubSubStatePaused, PubSubStateError:
		m.unschedulePublish(wg)
	case PubSubStateOperational:
		if err := m.schedulePublish(c, wg); err != nil {
			log.Errorf("scheduling publish callback for %q failed: %v", wg.Config.Name, err)
			wg.State = PubSubStateError
			return ua.StatusBadInternalError
		}
	}

	if state == PubSubStateDisabled || state == PubSubStateError {
		log.Infof("WriterGroup %q state %s -> %s (cause %v)", wg.Config.Name, wg.State, state, cause)
	}
	wg.State = state
	for _, dsw := range wg.Writers {
		dsw.State = state
	}
	return ua.StatusOK
}

func (m *Manager) schedulePublish(c *Connection, wg *WriterGroup) error {
	if wg.publishCallbackID != 0 || wg.Config.PublishingInterval <= 0 {
		return nil
	}
	id, err := m.AddRepeatedCallback(func() { m.publishTick(wg.ID) }, wg.Config.PublishingInterval)
	if err != nil {
		return err
	}
	wg.publishCallbackID = id
	return nil
}

func (m *Manager) unschedulePublish(wg *WriterGroup) {
	if wg.publishCallbackID == 0 {
		return
	}
	m.RemoveRepeatedCallback(wg.publishCallbackID)
	wg.publishCallbackID = 0
}

// publishTick runs on the event loop; it reacquires the manager lock and
// tolerates the group having been removed in the meantime.
func (m *Manager) publishTick(wgID *ua.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wg, c := m.findWriterGroupByID(wgID)
	if wg == nil || wg.State != PubSubStateOperational {
		return
	}
	if m.opts.Publish != nil {
		m.opts.Publish(c, wg)
		return
	}
	log.Debugf("publish tick for WriterGroup %q (no pipeline attached)", wg.Config.Name)
}

// FreezeWriterGroupConfiguration latches the writer group, its writers, the
// referenced published datasets and the owning connection against mutation.
func (m *Manager) FreezeWriterGroupConfiguration(id *ua.NodeID) ua.StatusCode {
	wg, c := m.findWriterGroupByID(id)
	if wg == nil {
		return ua.StatusBadNotFound
	}

	c.ConfigurationFrozen = true
	wg.ConfigurationFrozen = true
	for _, dsw := range wg.Writers {
		dsw.ConfigurationFrozen = true
		if dsw.ConnectedDataSet != nil {
			if pds := m.FindPublishedDataSetByID(dsw.ConnectedDataSet); pds != nil {
				pds.ConfigurationFrozen = true
			}
		}
	}
	return ua.StatusOK
}

// UnfreezeWriterGroupConfiguration releases the latch set by
// FreezeWriterGroupConfiguration. The connection and referenced datasets stay
// frozen while another frozen group still needs them.
func (m *Manager) UnfreezeWriterGroupConfiguration(id *ua.NodeID) ua.StatusCode {
	wg, c := m.findWriterGroupByID(id)
	if wg == nil {
		return ua.StatusBadNotFound
	}

	wg.ConfigurationFrozen = false
	for _, dsw := range wg.Writers {
		dsw.ConfigurationFrozen = false
		if dsw.ConnectedDataSet != nil {
			if pds := m.FindPublishedDataSetByID(dsw.ConnectedDataSet); pds != nil && !m.datasetReferencedByFrozenWriter(pds.ID) {
				pds.ConfigurationFrozen = false
			}
		}
	}
	if !m.connectionHasFrozenGroup(c) {
		c.ConfigurationFrozen = false
	}
	return ua.StatusOK
}

func (m *Manager) datasetReferencedByFrozenWriter(pdsID *ua.NodeID) bool {
	for _, c := range m.connections {
		for _, wg := range c.WriterGroups {
			for _, dsw := range wg.Writers {
				if dsw.ConfigurationFrozen && equalNodeID(dsw.ConnectedDataSet, pdsID) {
					return true
				}
			}
		}
	}
	return false
}

func (m *Manager) connectionHasFrozenGroup(c *Connection) bool {
	for _, wg := range c.WriterGroups {
		if wg.ConfigurationFrozen {
			return true
		}
	}
	for _, rg := range c.ReaderGroups {
		if rg.ConfigurationFrozen {
			return true
		}
	}
	return false
}

// FindWriterGroupByID returns the writer group with the given id, or nil.
func (m *Manager) FindWriterGroupByID(id *ua.NodeID) *WriterGroup {
	wg, _ := m.findWriterGroupByID(id)
	return wg
}

func (m *Manager) findWriterGroupByID(id *ua.NodeID) (*WriterGroup, *Connection) {
	for _, c := range m.connections {
		for _, wg := range c.WriterGroups {
			if equalNodeID(wg.ID, id) {
				return wg, c
			}
		}
	}
	return nil, nil
}

// FindDataSetWriterByID returns the dataset writer with the given id, or nil.
func (m *Manager) FindDataSetWriterByID(id *ua.NodeID) *DataSetWriter {
	dsw, _ := m.findDataSetWriterByID(id)
	return dsw
}

func (m *Manager) findDataSetWriterByID(id *ua.NodeID) (*DataSetWriter, *WriterGroup) {
	for _, c := range m.connections {
		for _, wg := range c.WriterGroups {
			for _, dsw := range wg.Writers {
				if equalNodeID(dsw.ID, id) {
					return dsw, wg
				}
			}
		}
	}
	return nil, nil
}

// writerGroupIDInUse reports whether a live writer group under a connection
// with the given transport profile carries the id.
func (m *Manager) writerGroupIDInUse(transportProfileURI string, id uint16) bool {
	for _, c := range m.connections {
		if c.Config.TransportProfileURI != transportProfileURI {
			continue
		}
		for _, wg := range c.WriterGroups {
			if wg.Config.WriterGroupID == id {
				return true
			}
		}
	}
	return false
}

// dataSetWriterIDInUse reports whether a live dataset writer under a
// connection with the given transport profile carries the id.
func (m *Manager) dataSetWriterIDInUse(transportProfileURI string, id uint16) bool {
	for _, c := range m.connections {
		if c.Config.TransportProfileURI != transportProfileURI {
			continue
		}
		for _, wg := range c.WriterGroups {
			for _, dsw := range wg.Writers {
				if dsw.Config.DataSetWriterID == id {
					return true
				}
			}
		}
	}
	return false
}
