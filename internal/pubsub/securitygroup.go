package pubsub

import (
	"github.com/gopcua/opcua/ua"
)

// SecurityGroup names the key material shared by a set of publishers and
// subscribers. The keys themselves live in the KeyStorage collaborator.
type SecurityGroup struct {
	ID     *ua.NodeID
	Config *SecurityGroupConfig
}

// AddSecurityGroup creates a security group. Names must be unique among
// security groups.
func (m *Manager) AddSecurityGroup(cfg *SecurityGroupConfig) (ua.StatusCode, *ua.NodeID) {
	if cfg == nil || cfg.Name == "" {
		log.Error("SecurityGroup creation failed. Invalid config")
		return ua.StatusBadInvalidArgument, nil
	}
	if cfg.KeyLifetime <= 0 {
		log.Error("SecurityGroup creation failed. Invalid key lifetime")
		return ua.StatusBadInvalidArgument, nil
	}
	for _, g := range m.securityGroups {
		if g.Config.Name == cfg.Name {
			log.Error("SecurityGroup creation failed. Group with the same name already exists")
			return ua.StatusBadBrowseNameDuplicated, nil
		}
	}

	g := &SecurityGroup{Config: cfg.Copy()}
	m.securityGroups = append(m.securityGroups, g)
	g.ID = m.GenerateUniqueNodeID()

	log.Infof("added SecurityGroup %q", g.Config.Name)
	return ua.StatusOK, g.ID
}

// RemoveSecurityGroup removes a security group.
func (m *Manager) RemoveSecurityGroup(id *ua.NodeID) ua.StatusCode {
	for i, g := range m.securityGroups {
		if equalNodeID(g.ID, id) {
			m.securityGroups = append(m.securityGroups[:i], m.securityGroups[i+1:]...)
			log.Infof("removed SecurityGroup %q", g.Config.Name)
			return ua.StatusOK
		}
	}
	return ua.StatusBadNotFound
}

// FindSecurityGroupByID returns the security group with the given id, or nil.
func (m *Manager) FindSecurityGroupByID(id *ua.NodeID) *SecurityGroup {
	for _, g := range m.securityGroups {
		if equalNodeID(g.ID, id) {
			return g
		}
	}
	return nil
}

// FindSecurityGroupByName returns the security group with the given name, or
// nil.
func (m *Manager) FindSecurityGroupByName(name string) *SecurityGroup {
	for _, g := range m.securityGroups {
		if g.Config.Name == name {
			return g
		}
	}
	return nil
}
