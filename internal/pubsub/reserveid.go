package pubsub

import (
	"github.com/gopcua/opcua/ua"

	"github.com/opcmesh/uapubsub/internal/transport"
)

// ReserveID is an exclusive pre-allocation of a 16-bit wire id, scoped by
// transport profile and kind, owned by a session.
type ReserveID struct {
	ID                  uint16
	TransportProfileURI string
	Kind                ReserveIDKind
	SessionID           *ua.NodeID
}

// ReserveIDs pre-allocates numWriterGroupIDs writer-group ids and
// numDataSetWriterIDs dataset-writer ids for the session in the scope of the
// transport profile. Stale reservations of dead sessions are reclaimed first.
// The returned slices always have the requested lengths; an id that cannot
// be allocated because the range is exhausted is returned as 0.
func (m *Manager) ReserveIDs(sessionID *ua.NodeID, numWriterGroupIDs, numDataSetWriterIDs uint16,
	transportProfileURI string) (ua.StatusCode, []uint16, []uint16) {

	m.FreeIDs()

	switch transportProfileURI {
	case transport.ProfileMQTTUADP, transport.ProfileMQTTJSON, transport.ProfileUDPUADP:
	default:
		log.Error("PubSub ReserveId creation failed. No valid transport profile uri")
		return ua.StatusBadInvalidArgument, nil, nil
	}

	writerGroupIDs := make([]uint16, numWriterGroupIDs)
	dataSetWriterIDs := make([]uint16, numDataSetWriterIDs)

	for i := range writerGroupIDs {
		writerGroupIDs[i] = m.createID(sessionID, transportProfileURI, ReserveIDWriterGroup)
	}
	for i := range dataSetWriterIDs {
		dataSetWriterIDs[i] = m.createID(sessionID, transportProfileURI, ReserveIDDataSetWriter)
	}
	return ua.StatusOK, writerGroupIDs, dataSetWriterIDs
}

// FreeIDs reclaims every reservation whose owning session is neither the
// admin session nor in the active session list.
func (m *Manager) FreeIDs() {
	admin := m.adminSessionID()
	active := m.activeSessionIDs()

	kept := m.reserveIDs[:0]
	for _, rid := range m.reserveIDs {
		if equalNodeID(admin, rid.SessionID) || containsNodeID(active, rid.SessionID) {
			kept = append(kept, rid)
			continue
		}
		log.Debugf("reclaimed reserved %s id %d (%s)", rid.Kind, rid.ID, rid.TransportProfileURI)
	}
	m.reserveIDs = kept
}

func (m *Manager) adminSessionID() *ua.NodeID {
	if m.opts.Sessions == nil {
		return nil
	}
	return m.opts.Sessions.AdminSessionID()
}

func (m *Manager) activeSessionIDs() []*ua.NodeID {
	if m.opts.Sessions == nil {
		return nil
	}
	return m.opts.Sessions.ActiveSessionIDs()
}

func containsNodeID(ids []*ua.NodeID, id *ua.NodeID) bool {
	for _, cand := range ids {
		if equalNodeID(cand, id) {
			return true
		}
	}
	return false
}

// createID finds a free id in the reserved range, records the reservation and
// returns the id. Zero signals an exhausted range.
func (m *Manager) createID(sessionID *ua.NodeID, transportProfileURI string, kind ReserveIDKind) uint16 {
	id, ok := m.findFreeID(transportProfileURI, kind)
	if !ok {
		log.Error("PubSub ReserveId creation failed. No free ID could be found")
		return 0
	}
	m.reserveIDs = append(m.reserveIDs, &ReserveID{
		ID:                  id,
		TransportProfileURI: transportProfileURI,
		Kind:                kind,
		SessionID:           sessionID,
	})
	return id
}

// findFreeID probes the reserved range [0x8000, 0xFFFF] from the per-kind
// cursor; a full sweep guarantees a free id is found under fragmentation. The
// cursor advances past the returned id.
func (m *Manager) findFreeID(transportProfileURI string, kind ReserveIDKind) (uint16, bool) {
	next := m.nextWriterGroupID
	if kind == ReserveIDDataSetWriter {
		next = m.nextDataSetWriterID
	}

	found := false
	for remaining := 0x8000; remaining > 0; remaining-- {
		if next < reserveIDFirst {
			// uint16 wraparound lands below the range; fold back in.
			next = reserveIDFirst
		}
		if m.idIsFree(next, transportProfileURI, kind) {
			found = true
			break
		}
		next++
	}
	if !found {
		return 0, false
	}

	if kind == ReserveIDDataSetWriter {
		m.nextDataSetWriterID = next + 1
	} else {
		m.nextWriterGroupID = next + 1
	}
	return next, true
}

// idIsFree reports whether the id collides with neither a reservation nor a
// live entity in the same (transport profile, kind) scope.
func (m *Manager) idIsFree(id uint16, transportProfileURI string, kind ReserveIDKind) bool {
	for _, rid := range m.reserveIDs {
		if rid.TransportProfileURI == transportProfileURI && rid.Kind == kind && rid.ID == id {
			return false
		}
	}
	if kind == ReserveIDWriterGroup {
		return !m.writerGroupIDInUse(transportProfileURI, id)
	}
	return !m.dataSetWriterIDInUse(transportProfileURI, id)
}
