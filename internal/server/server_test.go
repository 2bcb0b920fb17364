package server

import (
	"context"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/opcmesh/uapubsub/internal/config"
	"github.com/opcmesh/uapubsub/internal/pubsub"
	"github.com/opcmesh/uapubsub/internal/transport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func udpConfig(name string) *pubsub.ConnectionConfig {
	return &pubsub.ConnectionConfig{
		Name:                name,
		TransportProfileURI: transport.ProfileUDPUADP,
		Address:             pubsub.NetworkAddressURL{URL: "opc.udp://127.0.0.1:4840"},
		PublisherID:         ua.MustVariant(uint64(1)),
	}
}

func TestServerEndToEndConfiguration(t *testing.T) {
	s := newTestServer(t)

	res, connID := s.AddConnection(udpConfig("c1"))
	if res != ua.StatusOK {
		t.Fatalf("AddConnection failed: %v", res)
	}

	result := s.AddPublishedDataSet(&pubsub.PublishedDataSetConfig{
		Name: "pds1",
		Type: pubsub.PublishedDataSetTypeItems,
	})
	if result.Status != ua.StatusOK {
		t.Fatalf("AddPublishedDataSet failed: %v", result.Status)
	}

	res, wgID := s.AddWriterGroup(connID, &pubsub.WriterGroupConfig{
		Name:               "wg1",
		PublishingInterval: time.Second,
	})
	if res != ua.StatusOK {
		t.Fatalf("AddWriterGroup failed: %v", res)
	}
	if res, _ := s.AddDataSetWriter(wgID, result.ID, &pubsub.DataSetWriterConfig{Name: "w1"}); res != ua.StatusOK {
		t.Fatalf("AddDataSetWriter failed: %v", res)
	}

	if res := s.RegisterConnection(connID, nil); res != ua.StatusOK {
		t.Fatalf("RegisterConnection failed: %v", res)
	}

	if res := s.RemoveConnection(connID); res != ua.StatusOK {
		t.Fatalf("RemoveConnection failed: %v", res)
	}
}

func TestServerMirrorAssignsIdentifiers(t *testing.T) {
	s := newTestServer(t)

	res, connID := s.AddConnection(udpConfig("c1"))
	if res != ua.StatusOK {
		t.Fatalf("AddConnection failed: %v", res)
	}
	if s.mirror == nil {
		t.Fatal("expected mirror enabled by default config")
	}
	if !s.mirror.NodeExists(connID) {
		t.Error("connection id must designate a mirror node")
	}
}

func TestServerSessionReservations(t *testing.T) {
	s := newTestServer(t)

	session := s.OpenSession("client-1")
	res, wgIDs, _ := s.ReserveIDs(session, 2, 0, transport.ProfileUDPUADP)
	if res != ua.StatusOK {
		t.Fatalf("ReserveIDs failed: %v", res)
	}
	if len(wgIDs) != 2 {
		t.Fatalf("expected two reserved ids, got %d", len(wgIDs))
	}

	// Closing the session reclaims its reservations.
	s.CloseSession(session)
	s.Manager().Lock()
	count := s.Manager().ReserveIDCount()
	s.Manager().Unlock()
	if count != 0 {
		t.Errorf("expected reservations reclaimed on session close, got %d", count)
	}
}

func TestServerSaveAndRestoreConfiguration(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, connID := s.AddConnection(udpConfig("c1"))
	result := s.AddPublishedDataSet(&pubsub.PublishedDataSetConfig{Name: "pds1", Type: pubsub.PublishedDataSetTypeItems})
	_, wgID := s.AddWriterGroup(connID, &pubsub.WriterGroupConfig{Name: "wg1", WriterGroupID: 0x8010})
	s.AddDataSetWriter(wgID, result.ID, &pubsub.DataSetWriterConfig{Name: "w1", DataSetWriterID: 0x8020})

	ctx := context.Background()
	if err := s.SaveConfiguration(ctx); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}
	s.Shutdown()

	restored, err := New(cfg)
	if err != nil {
		t.Fatalf("New (restore) failed: %v", err)
	}
	defer restored.Shutdown()

	if err := restored.RestoreConfiguration(ctx); err != nil {
		t.Fatalf("RestoreConfiguration failed: %v", err)
	}

	m := restored.Manager()
	m.Lock()
	defer m.Unlock()
	if m.ConnectionCount() != 1 || m.PublishedDataSetCount() != 1 {
		t.Fatalf("restored %d connections / %d datasets", m.ConnectionCount(), m.PublishedDataSetCount())
	}
	wg := m.Connections()[0].WriterGroups
	if len(wg) != 1 || wg[0].Config.WriterGroupID != 0x8010 {
		t.Error("writer group not restored")
	}
}

func TestRestoreConfigurationEmptyStore(t *testing.T) {
	s := newTestServer(t)
	if err := s.RestoreConfiguration(context.Background()); err != nil {
		t.Errorf("restore from empty store must not fail: %v", err)
	}
}
