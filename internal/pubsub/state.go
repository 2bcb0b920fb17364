package pubsub

// PubSubState is the operational state of a PubSub component.
type PubSubState int

const (
	PubSubStateDisabled PubSubState = iota
	PubSubStatePaused
	PubSubStateOperational
	PubSubStateError
)

func (s PubSubState) String() string {
	switch s {
	case PubSubStateDisabled:
		return "Disabled"
	case PubSubStatePaused:
		return "Paused"
	case PubSubStateOperational:
		return "Operational"
	case PubSubStateError:
		return "Error"
	}
	return "Unknown"
}

// MessageEncoding selects the network message encoding of a writer group.
type MessageEncoding int

const (
	EncodingUADP MessageEncoding = iota
	EncodingJSON
)

func (e MessageEncoding) String() string {
	if e == EncodingJSON {
		return "JSON"
	}
	return "UADP"
}

// PublishedDataSetType discriminates the kinds of published datasets.
type PublishedDataSetType int

const (
	PublishedDataSetTypeItems PublishedDataSetType = iota
	PublishedDataSetTypeEvents
	PublishedDataSetTypeItemsTemplate
	PublishedDataSetTypeEventsTemplate
)

// ReserveIDKind scopes a reservation to writer-group or dataset-writer ids.
type ReserveIDKind int

const (
	ReserveIDWriterGroup ReserveIDKind = iota
	ReserveIDDataSetWriter
)

func (k ReserveIDKind) String() string {
	if k == ReserveIDDataSetWriter {
		return "DataSetWriter"
	}
	return "WriterGroup"
}

// ComponentType identifies the PubSub component kind in the monitoring
// interface.
type ComponentType int

const (
	ComponentConnection ComponentType = iota
	ComponentWriterGroup
	ComponentDataSetWriter
	ComponentReaderGroup
	ComponentDataSetReader
)

// MonitoringType identifies what is being monitored on a component.
type MonitoringType int

const (
	MonitoringMessageReceiveTimeout MonitoringType = iota
)

// SubscribedDataSetKind selects how a reader maps dataset fields into the
// address space.
type SubscribedDataSetKind int

const (
	SubscribedDataSetTargetVariables SubscribedDataSetKind = iota
	SubscribedDataSetMirror
)
