// Package server wires the PubSub manager to its collaborators: the session
// registry, the event loop, the transport layers and the configuration store.
// Its exported operations acquire the service mutex; the manager underneath
// assumes the caller holds it.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/gopcua/opcua/ua"
	logging "github.com/ipfs/go-log/v2"

	"github.com/opcmesh/uapubsub/internal/config"
	"github.com/opcmesh/uapubsub/internal/eventloop"
	"github.com/opcmesh/uapubsub/internal/mirror"
	"github.com/opcmesh/uapubsub/internal/pubsub"
	"github.com/opcmesh/uapubsub/internal/sessions"
	"github.com/opcmesh/uapubsub/internal/store"
	"github.com/opcmesh/uapubsub/internal/transport"
)

var log = logging.Logger("ua-server")

// Server is the host of the PubSub management core.
type Server struct {
	cfg        *config.Config
	sessions   *sessions.Registry
	loop       *eventloop.Loop
	transports *transport.Registry
	mirror     *mirror.Mirror
	manager    *pubsub.Manager
	store      *store.ConfigStore
}

// New creates a server from the configuration.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		cfg:        cfg,
		sessions:   sessions.NewRegistry(),
		loop:       eventloop.New(clock.New()),
		transports: transport.NewRegistry(),
	}

	if cfg.Transports.UDP {
		if err := s.transports.Register(transport.NewUDPLayer()); err != nil {
			return nil, fmt.Errorf("failed to register UDP transport: %w", err)
		}
	}
	for _, uri := range mqttProfiles(cfg) {
		layer, err := transport.NewMQTTLayer(uri, s.onPublishReceived)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT transport: %w", err)
		}
		if err := s.transports.Register(layer); err != nil {
			return nil, fmt.Errorf("failed to register MQTT transport: %w", err)
		}
	}

	if cfg.Server.EnableMirror {
		s.mirror = mirror.New()
	}

	opts := pubsub.Options{
		Sessions:     s.sessions,
		Transports:   s.transports,
		EventLoop:    s.loop,
		PublishState: s,
	}
	if s.mirror != nil {
		opts.Mirror = s.mirror
	}
	s.manager = pubsub.NewManager(opts)

	if cfg.Storage.Path != "" {
		st, err := store.NewConfigStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open configuration store: %w", err)
		}
		s.store = st
	}

	log.Infof("server %q initialized (%d transport layers)", cfg.Server.Name, len(s.transports.Profiles()))
	return s, nil
}

func mqttProfiles(cfg *config.Config) []string {
	var uris []string
	if cfg.Transports.MQTTUADP {
		uris = append(uris, transport.ProfileMQTTUADP)
	}
	if cfg.Transports.MQTTJSON {
		uris = append(uris, transport.ProfileMQTTJSON)
	}
	return uris
}

// onPublishReceived handles PUBLISH messages delivered by MQTT channels. The
// message pipeline is an external collaborator; the server only accounts for
// the delivery here.
func (s *Server) onPublishReceived(state any, topic string, payload []byte) {
	log.Debugf("received publish on %q (%d bytes)", topic, len(payload))
}

// Manager exposes the manager for callers that manage locking themselves.
func (s *Server) Manager() *pubsub.Manager { return s.manager }

// Sessions exposes the session registry.
func (s *Server) Sessions() *sessions.Registry { return s.sessions }

// OpenSession opens a client session.
func (s *Server) OpenSession(name string) *ua.NodeID {
	return s.sessions.Open(name)
}

// CloseSession closes a client session and reclaims its id reservations.
func (s *Server) CloseSession(id *ua.NodeID) {
	s.sessions.Close(id)
	s.manager.Lock()
	defer s.manager.Unlock()
	s.manager.FreeIDs()
}

// AddConnection adds a PubSub connection.
func (s *Server) AddConnection(cfg *pubsub.ConnectionConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddConnection(cfg)
}

// RemoveConnection removes a PubSub connection and everything below it.
func (s *Server) RemoveConnection(id *ua.NodeID) ua.StatusCode {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.RemoveConnection(id)
}

// RegisterConnection binds the receive side of a connection.
func (s *Server) RegisterConnection(id *ua.NodeID, rgCfg *pubsub.ReaderGroupConfig) ua.StatusCode {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.RegisterConnection(id, rgCfg)
}

// AddPublishedDataSet adds a published dataset.
func (s *Server) AddPublishedDataSet(cfg *pubsub.PublishedDataSetConfig) pubsub.AddPublishedDataSetResult {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddPublishedDataSet(cfg)
}

// RemovePublishedDataSet removes a published dataset and its writers.
func (s *Server) RemovePublishedDataSet(id *ua.NodeID) ua.StatusCode {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.RemovePublishedDataSet(id)
}

// AddWriterGroup adds a writer group under a connection.
func (s *Server) AddWriterGroup(connectionID *ua.NodeID, cfg *pubsub.WriterGroupConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddWriterGroup(connectionID, cfg)
}

// AddDataSetWriter adds a dataset writer under a writer group.
func (s *Server) AddDataSetWriter(writerGroupID, dataSetID *ua.NodeID, cfg *pubsub.DataSetWriterConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddDataSetWriter(writerGroupID, dataSetID, cfg)
}

// AddReaderGroup adds a reader group under a connection.
func (s *Server) AddReaderGroup(connectionID *ua.NodeID, cfg *pubsub.ReaderGroupConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddReaderGroup(connectionID, cfg)
}

// AddDataSetReader adds a dataset reader under a reader group.
func (s *Server) AddDataSetReader(readerGroupID *ua.NodeID, cfg *pubsub.DataSetReaderConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddDataSetReader(readerGroupID, cfg)
}

// AddStandaloneSubscribedDataSet adds a standalone subscribed dataset.
func (s *Server) AddStandaloneSubscribedDataSet(cfg *pubsub.StandaloneSubscribedDataSetConfig) (ua.StatusCode, *ua.NodeID) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.AddStandaloneSubscribedDataSet(cfg)
}

// RemoveStandaloneSubscribedDataSet removes a standalone subscribed dataset
// and its bound reader.
func (s *Server) RemoveStandaloneSubscribedDataSet(id *ua.NodeID) ua.StatusCode {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.RemoveStandaloneSubscribedDataSet(id)
}

// ReserveIDs pre-allocates writer-group and dataset-writer ids for a session.
func (s *Server) ReserveIDs(sessionID *ua.NodeID, numWriterGroupIDs, numDataSetWriterIDs uint16, transportProfileURI string) (ua.StatusCode, []uint16, []uint16) {
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.ReserveIDs(sessionID, numWriterGroupIDs, numDataSetWriterIDs, transportProfileURI)
}

// SaveConfiguration persists the current configuration tree.
func (s *Server) SaveConfiguration(ctx context.Context) error {
	if s.store == nil {
		return errors.New("no configuration store configured")
	}
	s.manager.Lock()
	snap := s.manager.Snapshot()
	s.manager.Unlock()
	return s.store.Save(ctx, snap)
}

// RestoreConfiguration applies the newest stored configuration tree. A store
// without a snapshot is not an error.
func (s *Server) RestoreConfiguration(ctx context.Context) error {
	if s.store == nil {
		return errors.New("no configuration store configured")
	}
	snap, err := s.store.Load(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	s.manager.Lock()
	defer s.manager.Unlock()
	return s.manager.ApplySnapshot(snap)
}

// Shutdown destroys the PubSub configuration and stops the event loop.
func (s *Server) Shutdown() {
	s.manager.Lock()
	s.manager.Destroy()
	s.manager.Unlock()

	s.loop.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Errorf("closing configuration store: %v", err)
		}
	}
	log.Infof("server %q shut down", s.cfg.Server.Name)
}
