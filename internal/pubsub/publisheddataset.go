package pubsub

import (
	"github.com/gopcua/opcua/ua"
)

// PublishedDataSet is a named, versioned collection of fields offered by the
// publisher side.
type PublishedDataSet struct {
	ID                  *ua.NodeID
	Config              *PublishedDataSetConfig
	MetaData            DataSetMetaData
	ConfigurationFrozen bool
}

// AddPublishedDataSetResult carries the outcome of AddPublishedDataSet.
type AddPublishedDataSetResult struct {
	Status               ua.StatusCode
	ID                   *ua.NodeID
	ConfigurationVersion ConfigurationVersion
}

// AddPublishedDataSet creates a published dataset from the config. Only the
// PublishedItems type is supported; names must be unique among published
// datasets.
func (m *Manager) AddPublishedDataSet(cfg *PublishedDataSetConfig) AddPublishedDataSetResult {
	result := AddPublishedDataSetResult{Status: ua.StatusBadInvalidArgument}
	if cfg == nil {
		log.Error("PublishedDataSet creation failed. No config passed in")
		return result
	}
	if cfg.Type != PublishedDataSetTypeItems {
		switch cfg.Type {
		case PublishedDataSetTypeEvents, PublishedDataSetTypeEventsTemplate:
			result.Status = ua.StatusBadNotSupported
		default:
			// Template variants are not implemented.
			result.Status = ua.StatusBadInternalError
		}
		log.Error("PublishedDataSet creation failed. Unsupported PublishedDataSet type")
		return result
	}
	if cfg.Name == "" {
		log.Error("PublishedDataSet creation failed. Invalid name")
		return result
	}
	if m.FindPublishedDataSetByName(cfg.Name) != nil {
		log.Error("PublishedDataSet creation failed. DataSet with the same name already exists")
		result.Status = ua.StatusBadBrowseNameDuplicated
		return result
	}

	pds := &PublishedDataSet{Config: cfg.Copy()}

	// Both version fields come from independent clock reads; on a fast
	// machine they coincide.
	result.ConfigurationVersion.Major = ConfigurationVersionTimeDifference()
	result.ConfigurationVersion.Minor = ConfigurationVersionTimeDifference()

	pds.MetaData = DataSetMetaData{
		Name:        pds.Config.Name,
		Description: ua.LocalizedText{},
		Fields:      append([]FieldMetaData(nil), pds.Config.Fields...),
		ConfigurationVersion: ConfigurationVersion{
			Major: ConfigurationVersionTimeDifference(),
			Minor: ConfigurationVersionTimeDifference(),
		},
	}

	m.publishedDataSets = append(m.publishedDataSets, pds)

	if m.opts.Mirror != nil {
		id, res := m.opts.Mirror.AddPublishedDataSetRepresentation(pds)
		if res != ua.StatusOK {
			log.Errorf("adding published dataset representation failed: %v", res)
		}
		pds.ID = id
	}
	if pds.ID == nil {
		pds.ID = m.GenerateUniqueNodeID()
	}

	result.Status = ua.StatusOK
	result.ID = pds.ID
	log.Infof("added PublishedDataSet %q", pds.Config.Name)
	return result
}

// RemovePublishedDataSet removes a published dataset. Every dataset writer
// referring to it is removed first.
func (m *Manager) RemovePublishedDataSet(id *ua.NodeID) ua.StatusCode {
	pds := m.FindPublishedDataSetByID(id)
	if pds == nil {
		return ua.StatusBadNotFound
	}
	if pds.ConfigurationFrozen {
		log.Warn("Remove PublishedDataSet failed. PublishedDataSet is frozen")
		return ua.StatusBadConfigurationError
	}

	// The standard requires writers to be connected to a dataset; collect
	// the referencing writers first, then remove.
	var writerIDs []*ua.NodeID
	for _, c := range m.connections {
		for _, wg := range c.WriterGroups {
			for _, dsw := range wg.Writers {
				if equalNodeID(dsw.ConnectedDataSet, pds.ID) {
					writerIDs = append(writerIDs, dsw.ID)
				}
			}
		}
	}
	for _, wid := range writerIDs {
		if res := m.RemoveDataSetWriter(wid); res != ua.StatusOK {
			log.Errorf("removing dataset writer %s failed: %v", wid, res)
		}
	}

	if m.opts.Mirror != nil {
		m.opts.Mirror.RemovePublishedDataSetRepresentation(pds)
	}

	for i, cand := range m.publishedDataSets {
		if cand == pds {
			m.publishedDataSets = append(m.publishedDataSets[:i], m.publishedDataSets[i+1:]...)
			break
		}
	}
	log.Infof("removed PublishedDataSet %q", pds.Config.Name)
	return ua.StatusOK
}

// FindPublishedDataSetByName returns the published dataset with the given
// name, or nil.
func (m *Manager) FindPublishedDataSetByName(name string) *PublishedDataSet {
	for _, pds := range m.publishedDataSets {
		if pds.Config.Name == name {
			return pds
		}
	}
	return nil
}

// FindPublishedDataSetByID returns the published dataset with the given id,
// or nil.
func (m *Manager) FindPublishedDataSetByID(id *ua.NodeID) *PublishedDataSet {
	for _, pds := range m.publishedDataSets {
		if equalNodeID(pds.ID, id) {
			return pds
		}
	}
	return nil
}
