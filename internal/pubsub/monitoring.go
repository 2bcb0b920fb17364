package pubsub

import (
	"github.com/gopcua/opcua/ua"

	"github.com/opcmesh/uapubsub/internal/eventloop"
)

// ComponentCallback is a monitoring callback. It is invoked with the manager
// lock held; the component is the monitored entity.
type ComponentCallback func(component any)

// MonitoringInterface is the pluggable monitoring backend of the manager.
// Only the dataset-reader message-receive timeout is supported by the default
// implementation.
type MonitoringInterface interface {
	CreateMonitoring(id *ua.NodeID, component ComponentType, kind MonitoringType, data any, cb ComponentCallback) ua.StatusCode
	StartMonitoring(id *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode
	StopMonitoring(id *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode
	UpdateMonitoringInterval(id *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode
	DeleteMonitoring(id *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode
}

// defaultMonitoring implements the receive-timeout monitor on the event
// loop's cyclic-callback facility.
type defaultMonitoring struct {
	m *Manager
}

func (dm *defaultMonitoring) reader(component ComponentType, kind MonitoringType, data any) (*DataSetReader, ua.StatusCode) {
	if data == nil {
		log.Error("monitoring: null component")
		return nil, ua.StatusBadInvalidArgument
	}
	if component != ComponentDataSetReader || kind != MonitoringMessageReceiveTimeout {
		log.Errorf("monitoring: component type %d / monitoring type %d not supported", component, kind)
		return nil, ua.StatusBadNotSupported
	}
	r, ok := data.(*DataSetReader)
	if !ok {
		log.Error("monitoring: component is not a DataSetReader")
		return nil, ua.StatusBadInvalidArgument
	}
	return r, ua.StatusOK
}

// CreateMonitoring records the timeout callback on the reader.
func (dm *defaultMonitoring) CreateMonitoring(_ *ua.NodeID, component ComponentType, kind MonitoringType, data any, cb ComponentCallback) ua.StatusCode {
	r, res := dm.reader(component, kind, data)
	if res != ua.StatusOK {
		return res
	}
	log.Debugf("createMonitoring: DataSetReader %q - MessageReceiveTimeout", r.Config.Name)
	r.msgRcvTimeoutCallback = cb
	return ua.StatusOK
}

// StartMonitoring arms a one-shot timer at the reader's message-receive
// timeout. One notification is enough; the trampoline removes the cyclic
// callback after the first firing.
func (dm *defaultMonitoring) StartMonitoring(_ *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode {
	r, res := dm.reader(component, kind, data)
	if res != ua.StatusOK {
		return res
	}

	readerID := r.ID
	id, err := dm.m.opts.EventLoop.AddCyclicCallback(func() {
		dm.m.fireReceiveTimeout(readerID)
	}, r.Config.MessageReceiveTimeout, nil, eventloop.HandleCycleMissWithCurrentTime)
	if err != nil {
		log.Errorf("startMonitoring: DataSetReader %q - start timer failed: %v", r.Config.Name, err)
		return ua.StatusBadInternalError
	}
	r.msgRcvTimeoutTimerID = id
	log.Debugf("startMonitoring: DataSetReader %q - MessageReceiveTimeout %v, timer id %d",
		r.Config.Name, r.Config.MessageReceiveTimeout, id)
	return ua.StatusOK
}

// StopMonitoring removes the reader's cyclic callback.
func (dm *defaultMonitoring) StopMonitoring(_ *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode {
	r, res := dm.reader(component, kind, data)
	if res != ua.StatusOK {
		return res
	}
	dm.m.opts.EventLoop.RemoveCyclicCallback(r.msgRcvTimeoutTimerID)
	log.Debugf("stopMonitoring: DataSetReader %q - timer id %d", r.Config.Name, r.msgRcvTimeoutTimerID)
	return ua.StatusOK
}

// UpdateMonitoringInterval applies the reader's current message-receive
// timeout to the armed timer.
func (dm *defaultMonitoring) UpdateMonitoringInterval(_ *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode {
	r, res := dm.reader(component, kind, data)
	if res != ua.StatusOK {
		return res
	}
	err := dm.m.opts.EventLoop.ModifyCyclicCallback(r.msgRcvTimeoutTimerID,
		r.Config.MessageReceiveTimeout, nil, eventloop.HandleCycleMissWithCurrentTime)
	if err != nil {
		log.Errorf("updateMonitoringInterval: DataSetReader %q - update timer interval failed: %v",
			r.Config.Name, err)
		return ua.StatusBadInternalError
	}
	log.Debugf("updateMonitoringInterval: DataSetReader %q - new MessageReceiveTimeout %v",
		r.Config.Name, r.Config.MessageReceiveTimeout)
	return ua.StatusOK
}

// DeleteMonitoring is informational; StopMonitoring already released the
// timer.
func (dm *defaultMonitoring) DeleteMonitoring(_ *ua.NodeID, component ComponentType, kind MonitoringType, data any) ua.StatusCode {
	r, res := dm.reader(component, kind, data)
	if res != ua.StatusOK {
		return res
	}
	log.Debugf("deleteMonitoring: DataSetReader %q - timer id %d", r.Config.Name, r.msgRcvTimeoutTimerID)
	return ua.StatusOK
}

// fireReceiveTimeout runs on the event loop. It reacquires the manager lock
// and re-resolves the reader by id: a removal racing the firing leaves
// nothing to do.
func (m *Manager) fireReceiveTimeout(readerID *ua.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, _ := m.findDataSetReaderByID(readerID)
	if r == nil || r.msgRcvTimeoutTimerID == 0 {
		return
	}

	timerID := r.msgRcvTimeoutTimerID
	r.msgRcvTimeoutTimerID = 0
	m.opts.EventLoop.RemoveCyclicCallback(timerID)

	if r.msgRcvTimeoutCallback != nil {
		r.msgRcvTimeoutCallback(r)
	}
}
