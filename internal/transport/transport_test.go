package transport

import (
	"testing"

	"github.com/gopcua/opcua/ua"
)

type fakeLayer struct {
	uri string
}

func (l *fakeLayer) ProfileURI() string { return l.uri }

func (l *fakeLayer) CreateChannel(cfg ChannelConfig) (Channel, error) {
	return nil, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&fakeLayer{uri: ProfileUDPUADP}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := r.Lookup(ProfileUDPUADP); !ok {
		t.Error("expected to find registered layer")
	}
	if _, ok := r.Lookup(ProfileMQTTJSON); ok {
		t.Error("expected lookup of unregistered profile to fail")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&fakeLayer{uri: ProfileUDPUADP}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&fakeLayer{uri: ProfileUDPUADP}); err != ErrDuplicateLayer {
		t.Errorf("expected ErrDuplicateLayer, got %v", err)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeLayer{uri: ProfileMQTTUADP}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	r.Clear()
	if got := len(r.Profiles()); got != 0 {
		t.Errorf("expected empty registry after Clear, got %d layers", got)
	}
}

func TestParseUDPAddress(t *testing.T) {
	addr, err := parseUDPAddress("opc.udp://224.0.0.22:4840")
	if err != nil {
		t.Fatalf("parseUDPAddress failed: %v", err)
	}
	if addr.Port != 4840 {
		t.Errorf("expected port 4840, got %d", addr.Port)
	}

	if _, err := parseUDPAddress("opc.tcp://localhost:4840"); err == nil {
		t.Error("expected error for non-UDP scheme")
	}
	if _, err := parseUDPAddress("not a url at all\x00"); err == nil {
		t.Error("expected error for unparsable URL")
	}
}

func TestNewMQTTLayerRejectsForeignProfile(t *testing.T) {
	if _, err := NewMQTTLayer(ProfileUDPUADP, nil); err == nil {
		t.Error("expected error for non-MQTT profile")
	}
	layer, err := NewMQTTLayer(ProfileMQTTJSON, nil)
	if err != nil {
		t.Fatalf("NewMQTTLayer failed: %v", err)
	}
	if layer.ProfileURI() != ProfileMQTTJSON {
		t.Errorf("unexpected profile URI %q", layer.ProfileURI())
	}
}

func TestUDPChannelRegisterIsNoOp(t *testing.T) {
	layer := NewUDPLayer()
	ch, err := layer.CreateChannel(ChannelConfig{Name: "c1", URL: "opc.udp://127.0.0.1:4840"})
	if err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}
	defer ch.Close()

	if got := ch.Register(nil); got != ua.StatusOK {
		t.Errorf("expected StatusOK from Register, got %v", got)
	}
	if err := ch.Send([]byte{0x01}); err != nil {
		t.Errorf("Send failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := ch.Send([]byte{0x01}); err != ErrChannelClosed {
		t.Errorf("expected ErrChannelClosed after Close, got %v", err)
	}
}
