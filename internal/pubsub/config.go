package pubsub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"
)

// KeyValuePair is one entry of a connection's property list.
type KeyValuePair struct {
	Key   string
	Value *ua.Variant
}

// NetworkAddressURL is the address of a connection.
type NetworkAddressURL struct {
	NetworkInterface string
	URL              string
}

// ConnectionConfig is the user-supplied configuration of a PubSub connection.
// Add operations deep-copy the config; ownership of the copy, including a
// string-valued publisher id, transfers to the connection.
type ConnectionConfig struct {
	Name                 string
	TransportProfileURI  string
	Address              NetworkAddressURL
	PublisherID          *ua.Variant
	Enabled              bool
	ConnectionProperties []KeyValuePair
	TransportSettings    *ua.Variant
}

// Copy returns a deep copy of the config.
func (c *ConnectionConfig) Copy() *ConnectionConfig {
	dst := *c
	dst.PublisherID = copyVariant(c.PublisherID)
	dst.TransportSettings = copyVariant(c.TransportSettings)
	dst.ConnectionProperties = make([]KeyValuePair, len(c.ConnectionProperties))
	for i, kv := range c.ConnectionProperties {
		dst.ConnectionProperties[i] = KeyValuePair{Key: kv.Key, Value: copyVariant(kv.Value)}
	}
	return &dst
}

// WriterGroupConfig configures a writer group. A WriterGroupID of zero asks
// the manager to assign a free id from the reserved range.
type WriterGroupConfig struct {
	Name               string
	WriterGroupID      uint16
	PublishingInterval time.Duration
	KeepAliveTime      time.Duration
	Priority           uint8
	Encoding           MessageEncoding
	SecurityGroupID    string
	MessageSettings    *ua.Variant
	TransportSettings  *ua.Variant
}

// Copy returns a deep copy of the config.
func (c *WriterGroupConfig) Copy() *WriterGroupConfig {
	dst := *c
	dst.MessageSettings = copyVariant(c.MessageSettings)
	dst.TransportSettings = copyVariant(c.TransportSettings)
	return &dst
}

// DataSetWriterConfig configures a dataset writer. A DataSetWriterID of zero
// asks the manager to assign a free id from the reserved range.
type DataSetWriterConfig struct {
	Name             string
	DataSetWriterID  uint16
	KeyFrameCount    uint32
	FieldContentMask uint32
	MessageSettings  *ua.Variant
}

// Copy returns a deep copy of the config.
func (c *DataSetWriterConfig) Copy() *DataSetWriterConfig {
	dst := *c
	dst.MessageSettings = copyVariant(c.MessageSettings)
	return &dst
}

// PublishedVariable names one source variable of a published dataset.
type PublishedVariable struct {
	PublishedVariable *ua.NodeID
	AttributeID       uint32
}

// PublishedDataSetConfig configures a published dataset. Only the
// PublishedItems type is supported.
type PublishedDataSetConfig struct {
	Name          string
	Type          PublishedDataSetType
	PublishedData []PublishedVariable
	Fields        []FieldMetaData
}

// Copy returns a deep copy of the config.
func (c *PublishedDataSetConfig) Copy() *PublishedDataSetConfig {
	dst := *c
	dst.PublishedData = append([]PublishedVariable(nil), c.PublishedData...)
	dst.Fields = make([]FieldMetaData, len(c.Fields))
	for i := range c.Fields {
		dst.Fields[i] = c.Fields[i].copy()
	}
	return &dst
}

// ConfigurationVersion is the (major, minor) schema version of a dataset.
type ConfigurationVersion struct {
	Major uint32
	Minor uint32
}

// FieldMetaData describes one field of a dataset.
type FieldMetaData struct {
	Name        string
	Description ua.LocalizedText
	DataType    *ua.NodeID
	BuiltInType uint8
	ValueRank   int32
}

func (f FieldMetaData) copy() FieldMetaData {
	return f
}

// DataSetMetaData is the self-description a publisher offers for a dataset.
type DataSetMetaData struct {
	Name                 string
	Description          ua.LocalizedText
	Fields               []FieldMetaData
	DataSetClassID       *uuid.UUID
	ConfigurationVersion ConfigurationVersion
}

// Copy returns a deep copy of the metadata.
func (md *DataSetMetaData) Copy() DataSetMetaData {
	dst := *md
	dst.Fields = make([]FieldMetaData, len(md.Fields))
	for i := range md.Fields {
		dst.Fields[i] = md.Fields[i].copy()
	}
	return dst
}

// ReaderGroupConfig configures a reader group.
type ReaderGroupConfig struct {
	Name              string
	SecurityMode      int
	SecurityGroupID   string
	TransportSettings *ua.Variant
}

// Copy returns a deep copy of the config.
func (c *ReaderGroupConfig) Copy() *ReaderGroupConfig {
	dst := *c
	dst.TransportSettings = copyVariant(c.TransportSettings)
	return &dst
}

// FieldTargetData maps one dataset field onto a target variable.
type FieldTargetData struct {
	DataSetFieldID string
	TargetNodeID   *ua.NodeID
	AttributeID    uint32
}

// SubscribedDataSetSettings selects the subscriber-side mapping of a reader.
type SubscribedDataSetSettings struct {
	Kind                 SubscribedDataSetKind
	TargetVariables      []FieldTargetData
	MirrorParentNodeName string
}

func (s *SubscribedDataSetSettings) copy() SubscribedDataSetSettings {
	dst := *s
	dst.TargetVariables = append([]FieldTargetData(nil), s.TargetVariables...)
	return dst
}

// DataSetReaderConfig configures a dataset reader. When
// StandaloneSubscribedDataSetName is set, the reader binds to that standalone
// subscribed dataset on creation.
type DataSetReaderConfig struct {
	Name                            string
	PublisherID                     *ua.Variant
	WriterGroupID                   uint16
	DataSetWriterID                 uint16
	MetaData                        DataSetMetaData
	SubscribedDataSet               SubscribedDataSetSettings
	StandaloneSubscribedDataSetName string
	MessageReceiveTimeout           time.Duration
	MessageSettings                 *ua.Variant
}

// Copy returns a deep copy of the config.
func (c *DataSetReaderConfig) Copy() *DataSetReaderConfig {
	dst := *c
	dst.PublisherID = copyVariant(c.PublisherID)
	dst.MetaData = c.MetaData.Copy()
	dst.SubscribedDataSet = c.SubscribedDataSet.copy()
	dst.MessageSettings = copyVariant(c.MessageSettings)
	return &dst
}

// StandaloneSubscribedDataSetConfig configures a standalone subscribed
// dataset.
type StandaloneSubscribedDataSetConfig struct {
	Name              string
	MetaData          DataSetMetaData
	SubscribedDataSet SubscribedDataSetSettings
}

// Copy returns a deep copy of the config.
func (c *StandaloneSubscribedDataSetConfig) Copy() *StandaloneSubscribedDataSetConfig {
	dst := *c
	dst.MetaData = c.MetaData.Copy()
	dst.SubscribedDataSet = c.SubscribedDataSet.copy()
	return &dst
}

// SecurityGroupConfig configures a security group. Key material lives behind
// the KeyStorage collaborator.
type SecurityGroupConfig struct {
	Name              string
	SecurityPolicyURI string
	KeyLifetime       time.Duration
	MaxFutureKeyCount uint32
	MaxPastKeyCount   uint32
}

// Copy returns a deep copy of the config.
func (c *SecurityGroupConfig) Copy() *SecurityGroupConfig {
	dst := *c
	return &dst
}

// copyVariant deep-copies a variant. String payloads are rebuilt so the copy
// owns its value.
func copyVariant(v *ua.Variant) *ua.Variant {
	if v == nil {
		return nil
	}
	nv, err := ua.NewVariant(v.Value())
	if err != nil {
		// Opaque payload the variant codec cannot rebuild; share it.
		return v
	}
	return nv
}
