package pubsub

import (
	"github.com/gopcua/opcua/ua"
)

// ReaderGroup is the reception context of one or more dataset readers.
type ReaderGroup struct {
	ID                  *ua.NodeID
	ConnectionID        *ua.NodeID
	Config              *ReaderGroupConfig
	State               PubSubState
	ConfigurationFrozen bool

	Readers []*DataSetReader
}

// DataSetReader consumes network messages for a single dataset and raises a
// receive timeout when the publisher falls silent.
type DataSetReader struct {
	ID                  *ua.NodeID
	ReaderGroupID       *ua.NodeID
	Config              *DataSetReaderConfig
	State               PubSubState
	ConfigurationFrozen bool

	msgRcvTimeoutCallback ComponentCallback
	msgRcvTimeoutTimerID  uint64
}

// TimerHandle returns the id of the armed receive-timeout timer, zero when
// unarmed.
func (r *DataSetReader) TimerHandle() uint64 { return r.msgRcvTimeoutTimerID }

// AddReaderGroup creates a reader group under the connection.
func (m *Manager) AddReaderGroup(connectionID *ua.NodeID, cfg *ReaderGroupConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("ReaderGroup creation failed. No config passed in")
		return ua.StatusBadInvalidArgument, nil
	}
	c := m.FindConnectionByID(connectionID)
	if c == nil {
		log.Error("ReaderGroup creation failed. Connection not found")
		return ua.StatusBadNotFound, nil
	}
	if c.ConfigurationFrozen {
		log.Warn("ReaderGroup creation failed. Connection configuration is frozen")
		return ua.StatusBadConfigurationError, nil
	}

	rg := &ReaderGroup{
		ConnectionID: c.ID,
		Config:       cfg.Copy(),
		State:        PubSubStateDisabled,
	}
	c.ReaderGroups = append(c.ReaderGroups, rg)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddReaderGroupRepresentation(rg)
		if res != ua.StatusOK {
			log.Errorf("adding reader group representation failed: %v", res)
		}
		rg.ID = id
	}
	if rg.ID == nil {
		rg.ID = m.GenerateUniqueNodeID()
	}

	log.Infof("added ReaderGroup %q", rg.Config.Name)
	return ua.StatusOK, rg.ID
}

// RemoveReaderGroup removes a reader group, its readers and its topic
// bindings. Frozen groups are rejected.
func (m *Manager) RemoveReaderGroup(id *ua.NodeID) ua.StatusCode {
	rg, c := m.findReaderGroupByID(id)
	if rg == nil {
		return ua.StatusBadNotFound
	}
	if rg.ConfigurationFrozen {
		log.Warn("Remove ReaderGroup failed. ReaderGroup is frozen")
		return ua.StatusBadConfigurationError
	}

	for _, rid := range collectIDs(rg.Readers, func(r *DataSetReader) *ua.NodeID { return r.ID }) {
		if res := m.RemoveDataSetReader(rid); res != ua.StatusOK {
			log.Errorf("removing dataset reader %s failed: %v", rid, res)
		}
	}

	m.removeTopicAssigns(rg.ID)

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveReaderGroupRepresentation(rg)
	}

	for i, cand := range c.ReaderGroups {
		if cand == rg {
			c.ReaderGroups = append(c.ReaderGroups[:i], c.ReaderGroups[i+1:]...)
			break
		}
	}
	log.Infof("removed ReaderGroup %q", rg.Config.Name)
	return ua.StatusOK
}

// AddDataSetReader creates a dataset reader under the reader group. A
// positive message-receive timeout installs the default timeout monitoring;
// a configured standalone subscribed dataset name binds that dataset to the
// reader.
func (m *Manager) AddDataSetReader(readerGroupID *ua.NodeID, cfg *DataSetReaderConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("DataSetReader creation failed. No config passed in")
		return ua.StatusBadInvalidArgument, nil
	}
	rg, _ := m.findReaderGroupByID(readerGroupID)
	if rg == nil {
		log.Error("DataSetReader creation failed. ReaderGroup not found")
		return ua.StatusBadNotFound, nil
	}
	if rg.ConfigurationFrozen {
		log.Warn("DataSetReader creation failed. ReaderGroup configuration is frozen")
		return ua.StatusBadConfigurationError, nil
	}

	var sds *StandaloneSubscribedDataSet
	if cfg.StandaloneSubscribedDataSetName != "" {
		sds = m.FindSubscribedDataSetByName(cfg.StandaloneSubscribedDataSetName)
		if sds == nil {
			log.Errorf("DataSetReader creation failed. SubscribedDataSet %q not found",
				cfg.StandaloneSubscribedDataSetName)
			return ua.StatusBadNotFound, nil
		}
		if sds.IsConnected {
			log.Errorf("DataSetReader creation failed. SubscribedDataSet %q already connected",
				cfg.StandaloneSubscribedDataSetName)
			return ua.StatusBadInvalidArgument, nil
		}
	}

	r := &DataSetReader{
		ReaderGroupID: rg.ID,
		Config:        cfg.Copy(),
		State:         PubSubStateDisabled,
	}
	rg.Readers = append(rg.Readers, r)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddDataSetReaderRepresentation(r)
		if res != ua.StatusOK {
			log.Errorf("adding dataset reader representation failed: %v", res)
		}
		r.ID = id
	}
	if r.ID == nil {
		r.ID = m.GenerateUniqueNodeID()
	}

	if sds != nil {
		sds.ConnectedReader = r.ID
		sds.IsConnected = true
	}

	if r.Config.MessageReceiveTimeout > 0 {
		res := m.opts.Monitoring.CreateMonitoring(r.ID, ComponentDataSetReader,
			MonitoringMessageReceiveTimeout, r, m.handleReaderTimeout)
		if res != ua.StatusOK {
			log.Errorf("creating receive-timeout monitoring for %q failed: %v", r.Config.Name, res)
		}
	}

	log.Infof("added DataSetReader %q", r.Config.Name)
	return ua.StatusOK, r.ID
}

// handleReaderTimeout is the default receive-timeout callback: the reader
// goes to Error state.
func (m *Manager) handleReaderTimeout(component any) {
	r, ok := component.(*DataSetReader)
	if !ok {
		return
	}
	log.Warnf("DataSetReader %q message receive timeout", r.Config.Name)
	r.State = PubSubStateError
}

// RemoveDataSetReader removes a dataset reader, stopping its timeout monitor
// and unbinding a connected standalone subscribed dataset. Frozen readers are
// rejected.
func (m *Manager) RemoveDataSetReader(id *ua.NodeID) ua.StatusCode {
	r, rg := m.findDataSetReaderByID(id)
	if r == nil {
		return ua.StatusBadNotFound
	}
	if r.ConfigurationFrozen {
		log.Warn("Remove DataSetReader failed. DataSetReader is frozen")
		return ua.StatusBadConfigurationError
	}

	if r.msgRcvTimeoutTimerID != 0 {
		m.opts.Monitoring.StopMonitoring(r.ID, ComponentDataSetReader, MonitoringMessageReceiveTimeout, r)
		r.msgRcvTimeoutTimerID = 0
	}

	for _, sds := range m.subscribedDataSets {
		if equalNodeID(sds.ConnectedReader, r.ID) {
			sds.ConnectedReader = nil
			sds.IsConnected = false
		}
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveDataSetReaderRepresentation(r)
	}

	for i, cand := range rg.Readers {
		if cand == r {
			rg.Readers = append(rg.Readers[:i], rg.Readers[i+1:]...)
			break
		}
	}
	log.Infof("removed DataSetReader %q", r.Config.Name)
	return ua.StatusOK
}

// SetReaderGroupState transitions a reader group and its readers. Timeout
// monitors of the readers follow the state: armed on Operational, stopped on
// Disabled.
func (m *Manager) SetReaderGroupState(id *ua.NodeID, state PubSubState, cause ua.StatusCode) ua.StatusCode {
	rg, _ := m.findReaderGroupByID(id)
	if rg == nil {
		return ua.StatusBadNotFound
	}
	if rg.State == state {
		return ua.StatusOK
	}

	if state == PubSubStateDisabled || state == PubSubStateError {
		log.Infof("ReaderGroup %q state %s -> %s (cause %v)", rg.Config.Name, rg.State, state, cause)
	}
	rg.State = state
	for _, r := range rg.Readers {
		m.setDataSetReaderState(r, state)
	}
	return ua.StatusOK
}

// SetDataSetReaderState transitions a single reader.
func (m *Manager) SetDataSetReaderState(id *ua.NodeID, state PubSubState) ua.StatusCode {
	r, _ := m.findDataSetReaderByID(id)
	if r == nil {
		return ua.StatusBadNotFound
	}
	m.setDataSetReaderState(r, state)
	return ua.StatusOK
}

func (m *Manager) setDataSetReaderState(r *DataSetReader, state PubSubState) {
	if r.State == state {
		return
	}
	r.State = state

	if r.Config.MessageReceiveTimeout <= 0 {
		return
	}
	switch state {
	case PubSubStateOperational:
		m.opts.Monitoring.StartMonitoring(r.ID, ComponentDataSetReader, MonitoringMessageReceiveTimeout, r)
	case PubSubStateDisabled:
		if r.msgRcvTimeoutTimerID != 0 {
			m.opts.Monitoring.StopMonitoring(r.ID, ComponentDataSetReader, MonitoringMessageReceiveTimeout, r)
			r.msgRcvTimeoutTimerID = 0
		}
	}
}

// FreezeReaderGroupConfiguration latches the reader group, its readers and
// the owning connection against mutation.
func (m *Manager) FreezeReaderGroupConfiguration(id *ua.NodeID) ua.StatusCode {
	rg, c := m.findReaderGroupByID(id)
	if rg == nil {
		return ua.StatusBadNotFound
	}
	c.ConfigurationFrozen = true
	rg.ConfigurationFrozen = true
	for _, r := range rg.Readers {
		r.ConfigurationFrozen = true
	}
	return ua.StatusOK
}

// UnfreezeReaderGroupConfiguration releases the latch set by
// FreezeReaderGroupConfiguration.
func (m *Manager) UnfreezeReaderGroupConfiguration(id *ua.NodeID) ua.StatusCode {
	rg, c := m.findReaderGroupByID(id)
	if rg == nil {
		return ua.StatusBadNotFound
	}
	rg.ConfigurationFrozen = false
	for _, r := range rg.Readers {
		r.ConfigurationFrozen = false
	}
	if !m.connectionHasFrozenGroup(c) {
		c.ConfigurationFrozen = false
	}
	return ua.StatusOK
}

// FindReaderGroupByID returns the reader group with the given id, or nil.
func (m *Manager) FindReaderGroupByID(id *ua.NodeID) *ReaderGroup {
	rg, _ := m.findReaderGroupByID(id)
	return rg
}

func (m *Manager) findReaderGroupByID(id *ua.NodeID) (*ReaderGroup, *Connection) {
	for _, c := range m.connections {
		for _, rg := range c.ReaderGroups {
			if equalNodeID(rg.ID, id) {
				return rg, c
			}
		}
	}
	return nil, nil
}

// FindDataSetReaderByID returns the dataset reader with the given id, or nil.
func (m *Manager) FindDataSetReaderByID(id *ua.NodeID) *DataSetReader {
	r, _ := m.findDataSetReaderByID(id)
	return r
}

func (m *Manager) findDataSetReaderByID(id *ua.NodeID) (*DataSetReader, *ReaderGroup) {
	for _, c := range m.connections {
		for _, rg := range c.ReaderGroups {
			for _, r := range rg.Readers {
				if equalNodeID(r.ID, id) {
					return r, rg
				}
			}
		}
	}
	return nil, nil
}
