package pubsub

import (
	"github.com/gopcua/opcua/ua"
)

// StandaloneSubscribedDataSet is a subscriber-side dataset target, optionally
// bound to a single dataset reader.
type StandaloneSubscribedDataSet struct {
	ID              *ua.NodeID
	Config          *StandaloneSubscribedDataSetConfig
	ConnectedReader *ua.NodeID
	IsConnected     bool
}

// AddStandaloneSubscribedDataSet creates a standalone subscribed dataset from
// the config. Names must be unique among standalone subscribed datasets.
func (m *Manager) AddStandaloneSubscribedDataSet(cfg *StandaloneSubscribedDataSetConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil {
		log.Error("SubscribedDataSet creation failed. No config passed in")
		return ua.StatusBadInvalidArgument, nil
	}
	if cfg.Name == "" {
		log.Error("SubscribedDataSet creation failed. Invalid name")
		return ua.StatusBadInvalidArgument, nil
	}
	if m.FindSubscribedDataSetByName(cfg.Name) != nil {
		log.Error("SubscribedDataSet creation failed. DataSet with the same name already exists")
		return ua.StatusBadBrowseNameDuplicated, nil
	}

	sds := &StandaloneSubscribedDataSet{
		Config:          cfg.Copy(),
		ConnectedReader: nil,
	}
	m.subscribedDataSets = append(m.subscribedDataSets, sds)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddSubscribedDataSetRepresentation(sds)
		if res != ua.StatusOK {
			log.Errorf("adding subscribed dataset representation failed: %v", res)
		}
		sds.ID = id
	}
	if sds.ID == nil {
		sds.ID = m.GenerateUniqueNodeID()
	}

	log.Infof("added StandaloneSubscribedDataSet %q", sds.Config.Name)
	return ua.StatusOK, sds.ID
}

// RemoveStandaloneSubscribedDataSet removes a standalone subscribed dataset.
// Every reader bound to it is removed first.
func (m *Manager) RemoveStandaloneSubscribedDataSet(id *ua.NodeID) ua.StatusCode {
	sds := m.FindSubscribedDataSetByID(id)
	if sds == nil {
		return ua.StatusBadNotFound
	}

	// Collect the bound readers before removing; removal mutates the graph
	// being iterated.
	var readerIDs []*ua.NodeID
	if sds.ConnectedReader != nil {
		for _, c := range m.connections {
			for _, rg := range c.ReaderGroups {
				for _, r := range rg.Readers {
					if equalNodeID(r.ID, sds.ConnectedReader) {
						readerIDs = append(readerIDs, r.ID)
					}
				}
			}
		}
	}
	for _, rid := range readerIDs {
		if res := m.RemoveDataSetReader(rid); res != ua.StatusOK {
			log.Errorf("removing dataset reader %s failed: %v", rid, res)
		}
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemoveSubscribedDataSetRepresentation(sds)
	}

	for i, cand := range m.subscribedDataSets {
		if cand == sds {
			m.subscribedDataSets = append(m.subscribedDataSets[:i], m.subscribedDataSets[i+1:]...)
			break
		}
	}
	log.Infof("removed StandaloneSubscribedDataSet %q", sds.Config.Name)
	return ua.StatusOK
}

// FindSubscribedDataSetByID returns the standalone subscribed dataset with
// the given id, or nil.
func (m *Manager) FindSubscribedDataSetByID(id *ua.NodeID) *StandaloneSubscribedDataSet {
	for _, sds := range m.subscribedDataSets {
		if equalNodeID(sds.ID, id) {
			return sds
		}
	}
	return nil
}

// FindSubscribedDataSetByName returns the standalone subscribed dataset with
// the given name, or nil.
func (m *Manager) FindSubscribedDataSetByName(name string) *StandaloneSubscribedDataSet {
	for _, sds := range m.subscribedDataSets {
		if sds.Config.Name == name {
			return sds
		}
	}
	return nil
}
