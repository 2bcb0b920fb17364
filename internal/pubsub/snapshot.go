package pubsub

import (
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"
)

// The snapshot types are the declarative, serializable view of the
// configuration tree, consumed by the configuration store. Entities are
// referenced by name; node ids are runtime state and not part of a snapshot.

// PublisherIDValue is the serializable form of a publisher id variant.
type PublisherIDValue struct {
	Kind    string `json:"kind"` // "byte", "uint16", "uint32", "uint64", "string"
	Numeric uint64 `json:"numeric,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ConfigSnapshot captures the whole PubSub configuration tree.
type ConfigSnapshot struct {
	Connections        []ConnectionSnapshot        `json:"connections"`
	PublishedDataSets  []PublishedDataSetSnapshot  `json:"publishedDataSets"`
	SubscribedDataSets []SubscribedDataSetSnapshot `json:"subscribedDataSets"`
}

// ConnectionSnapshot captures one connection and its groups.
type ConnectionSnapshot struct {
	Name                string                `json:"name"`
	TransportProfileURI string                `json:"transportProfileUri"`
	URL                 string                `json:"url"`
	NetworkInterface    string                `json:"networkInterface,omitempty"`
	PublisherID         *PublisherIDValue     `json:"publisherId,omitempty"`
	Properties          map[string]string     `json:"properties,omitempty"`
	WriterGroups        []WriterGroupSnapshot `json:"writerGroups,omitempty"`
	ReaderGroups        []ReaderGroupSnapshot `json:"readerGroups,omitempty"`
}

// WriterGroupSnapshot captures one writer group and its writers.
type WriterGroupSnapshot struct {
	Name               string                  `json:"name"`
	WriterGroupID      uint16                  `json:"writerGroupId"`
	PublishingInterval time.Duration           `json:"publishingInterval"`
	KeepAliveTime      time.Duration           `json:"keepAliveTime,omitempty"`
	Priority           uint8                   `json:"priority,omitempty"`
	Encoding           string                  `json:"encoding"`
	Writers            []DataSetWriterSnapshot `json:"writers,omitempty"`
}

// DataSetWriterSnapshot captures one dataset writer; the published dataset is
// referenced by name, empty meaning heartbeat mode.
type DataSetWriterSnapshot struct {
	Name            string `json:"name"`
	DataSetWriterID uint16 `json:"dataSetWriterId"`
	KeyFrameCount   uint32 `json:"keyFrameCount,omitempty"`
	DataSetName     string `json:"dataSetName,omitempty"`
}

// ReaderGroupSnapshot captures one reader group and its readers.
type ReaderGroupSnapshot struct {
	Name    string                  `json:"name"`
	Readers []DataSetReaderSnapshot `json:"readers,omitempty"`
}

// DataSetReaderSnapshot captures one dataset reader.
type DataSetReaderSnapshot struct {
	Name                  string            `json:"name"`
	PublisherID           *PublisherIDValue `json:"publisherId,omitempty"`
	WriterGroupID         uint16            `json:"writerGroupId"`
	DataSetWriterID       uint16            `json:"dataSetWriterId"`
	MessageReceiveTimeout time.Duration     `json:"messageReceiveTimeout,omitempty"`
	SubscribedDataSetName string            `json:"subscribedDataSetName,omitempty"`
}

// PublishedDataSetSnapshot captures one published dataset.
type PublishedDataSetSnapshot struct {
	Name   string          `json:"name"`
	Fields []FieldSnapshot `json:"fields,omitempty"`
}

// FieldSnapshot captures one dataset field.
type FieldSnapshot struct {
	Name        string `json:"name"`
	BuiltInType uint8  `json:"builtInType,omitempty"`
}

// SubscribedDataSetSnapshot captures one standalone subscribed dataset.
type SubscribedDataSetSnapshot struct {
	Name string `json:"name"`
}

func publisherIDValue(v *ua.Variant) *PublisherIDValue {
	if v == nil {
		return nil
	}
	switch val := v.Value().(type) {
	case uint8:
		return &PublisherIDValue{Kind: "byte", Numeric: uint64(val)}
	case uint16:
		return &PublisherIDValue{Kind: "uint16", Numeric: uint64(val)}
	case uint32:
		return &PublisherIDValue{Kind: "uint32", Numeric: uint64(val)}
	case uint64:
		return &PublisherIDValue{Kind: "uint64", Numeric: val}
	case string:
		return &PublisherIDValue{Kind: "string", Text: val}
	}
	return nil
}

func (p *PublisherIDValue) variant() (*ua.Variant, error) {
	if p == nil {
		return nil, nil
	}
	switch p.Kind {
	case "byte":
		return ua.NewVariant(uint8(p.Numeric))
	case "uint16":
		return ua.NewVariant(uint16(p.Numeric))
	case "uint32":
		return ua.NewVariant(uint32(p.Numeric))
	case "uint64":
		return ua.NewVariant(p.Numeric)
	case "string":
		return ua.NewVariant(p.Text)
	}
	return nil, fmt.Errorf("unknown publisher id kind %q", p.Kind)
}

// Snapshot exports the current configuration tree.
func (m *Manager) Snapshot() *ConfigSnapshot {
	snap := &ConfigSnapshot{}

	for _, pds := range m.publishedDataSets {
		ps := PublishedDataSetSnapshot{Name: pds.Config.Name}
		for _, f := range pds.Config.Fields {
			ps.Fields = append(ps.Fields, FieldSnapshot{Name: f.Name, BuiltInType: f.BuiltInType})
		}
		snap.PublishedDataSets = append(snap.PublishedDataSets, ps)
	}

	for _, sds := range m.subscribedDataSets {
		snap.SubscribedDataSets = append(snap.SubscribedDataSets, SubscribedDataSetSnapshot{Name: sds.Config.Name})
	}

	for _, c := range m.connections {
		cs := ConnectionSnapshot{
			Name:                c.Config.Name,
			TransportProfileURI: c.Config.TransportProfileURI,
			URL:                 c.Config.Address.URL,
			NetworkInterface:    c.Config.Address.NetworkInterface,
			PublisherID:         publisherIDValue(c.Config.PublisherID),
		}
		for _, kv := range c.Config.ConnectionProperties {
			if kv.Value == nil {
				continue
			}
			if s, ok := kv.Value.Value().(string); ok {
				if cs.Properties == nil {
					cs.Properties = make(map[string]string)
				}
				cs.Properties[kv.Key] = s
			}
		}

		for _, wg := range c.WriterGroups {
			ws := WriterGroupSnapshot{
				Name:               wg.Config.Name,
				WriterGroupID:      wg.Config.WriterGroupID,
				PublishingInterval: wg.Config.PublishingInterval,
				KeepAliveTime:      wg.Config.KeepAliveTime,
				Priority:           wg.Config.Priority,
				Encoding:           wg.Config.Encoding.String(),
			}
			for _, dsw := range wg.Writers {
				ds := DataSetWriterSnapshot{
					Name:            dsw.Config.Name,
					DataSetWriterID: dsw.Config.DataSetWriterID,
					KeyFrameCount:   dsw.Config.KeyFrameCount,
				}
				if dsw.ConnectedDataSet != nil {
					if pds := m.FindPublishedDataSetByID(dsw.ConnectedDataSet); pds != nil {
						ds.DataSetName = pds.Config.Name
					}
				}
				ws.Writers = append(ws.Writers, ds)
			}
			cs.WriterGroups = append(cs.WriterGroups, ws)
		}

		for _, rg := range c.ReaderGroups {
			rs := ReaderGroupSnapshot{Name: rg.Config.Name}
			for _, r := range rg.Readers {
				rs.Readers = append(rs.Readers, DataSetReaderSnapshot{
					Name:                  r.Config.Name,
					PublisherID:           publisherIDValue(r.Config.PublisherID),
					WriterGroupID:         r.Config.WriterGroupID,
					DataSetWriterID:       r.Config.DataSetWriterID,
					MessageReceiveTimeout: r.Config.MessageReceiveTimeout,
					SubscribedDataSetName: r.Config.StandaloneSubscribedDataSetName,
				})
			}
			cs.ReaderGroups = append(cs.ReaderGroups, rs)
		}

		snap.Connections = append(snap.Connections, cs)
	}
	return snap
}

// ApplySnapshot recreates the configuration tree from a snapshot. Datasets
// are created before the connections that reference them.
func (m *Manager) ApplySnapshot(snap *ConfigSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	pdsIDs := make(map[string]*ua.NodeID, len(snap.PublishedDataSets))
	for _, ps := range snap.PublishedDataSets {
		cfg := &PublishedDataSetConfig{Name: ps.Name, Type: PublishedDataSetTypeItems}
		for _, f := range ps.Fields {
			cfg.Fields = append(cfg.Fields, FieldMetaData{Name: f.Name, BuiltInType: f.BuiltInType})
		}
		result := m.AddPublishedDataSet(cfg)
		if result.Status != ua.StatusOK {
			return fmt.Errorf("published dataset %q: %w", ps.Name, result.Status)
		}
		pdsIDs[ps.Name] = result.ID
	}

	for _, ss := range snap.SubscribedDataSets {
		if res, _ := m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: ss.Name}); res != ua.StatusOK {
			return fmt.Errorf("subscribed dataset %q: %w", ss.Name, res)
		}
	}

	for _, cs := range snap.Connections {
		publisherID, err := cs.PublisherID.variant()
		if err != nil {
			return fmt.Errorf("connection %q: %w", cs.Name, err)
		}
		cfg := &ConnectionConfig{
			Name:                cs.Name,
			TransportProfileURI: cs.TransportProfileURI,
			Address:             NetworkAddressURL{URL: cs.URL, NetworkInterface: cs.NetworkInterface},
			PublisherID:         publisherID,
		}
		for k, v := range cs.Properties {
			val, err := ua.NewVariant(v)
			if err != nil {
				return fmt.Errorf("connection %q property %q: %w", cs.Name, k, err)
			}
			cfg.ConnectionProperties = append(cfg.ConnectionProperties, KeyValuePair{Key: k, Value: val})
		}
		res, connID := m.AddConnection(cfg)
		if res != ua.StatusOK {
			return fmt.Errorf("connection %q: %w", cs.Name, res)
		}

		for _, ws := range cs.WriterGroups {
			wgCfg := &WriterGroupConfig{
				Name:               ws.Name,
				WriterGroupID:      ws.WriterGroupID,
				PublishingInterval: ws.PublishingInterval,
				KeepAliveTime:      ws.KeepAliveTime,
				Priority:           ws.Priority,
			}
			if ws.Encoding == "JSON" {
				wgCfg.Encoding = EncodingJSON
			}
			res, wgID := m.AddWriterGroup(connID, wgCfg)
			if res != ua.StatusOK {
				return fmt.Errorf("writer group %q: %w", ws.Name, res)
			}

			for _, ds := range ws.Writers {
				var dataSetID *ua.NodeID
				if ds.DataSetName != "" {
					dataSetID = pdsIDs[ds.DataSetName]
					if dataSetID == nil {
						return fmt.Errorf("dataset writer %q: unknown dataset %q", ds.Name, ds.DataSetName)
					}
				}
				dswCfg := &DataSetWriterConfig{
					Name:            ds.Name,
					DataSetWriterID: ds.DataSetWriterID,
					KeyFrameCount:   ds.KeyFrameCount,
				}
				if res, _ := m.AddDataSetWriter(wgID, dataSetID, dswCfg); res != ua.StatusOK {
					return fmt.Errorf("dataset writer %q: %w", ds.Name, res)
				}
			}
		}

		for _, rs := range cs.ReaderGroups {
			res, rgID := m.AddReaderGroup(connID, &ReaderGroupConfig{Name: rs.Name})
			if res != ua.StatusOK {
				return fmt.Errorf("reader group %q: %w", rs.Name, res)
			}
			for _, r := range rs.Readers {
				publisherID, err := r.PublisherID.variant()
				if err != nil {
					return fmt.Errorf("dataset reader %q: %w", r.Name, err)
				}
				rCfg := &DataSetReaderConfig{
					Name:                            r.Name,
					PublisherID:                     publisherID,
					WriterGroupID:                   r.WriterGroupID,
					DataSetWriterID:                 r.DataSetWriterID,
					MessageReceiveTimeout:           r.MessageReceiveTimeout,
					StandaloneSubscribedDataSetName: r.SubscribedDataSetName,
				}
				if res, _ := m.AddDataSetReader(rgID, rCfg); res != ua.StatusOK {
					return fmt.Errorf("dataset reader %q: %w", r.Name, res)
				}
			}
		}
	}
	return nil
}
