package pubsub

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/gopcua/opcua/ua"

	"github.com/opcmesh/uapubsub/internal/eventloop"
	"github.com/opcmesh/uapubsub/internal/sessions"
	"github.com/opcmesh/uapubsub/internal/transport"
)

type fakeChannel struct {
	registerCalls  int
	registerStatus ua.StatusCode
	sent           [][]byte
	closed         bool
	publishState   any
}

func (ch *fakeChannel) Register(settings *ua.Variant) ua.StatusCode {
	ch.registerCalls++
	return ch.registerStatus
}

func (ch *fakeChannel) Send(payload []byte) error {
	ch.sent = append(ch.sent, payload)
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.closed = true
	return nil
}

func (ch *fakeChannel) SetPublishState(state any) {
	ch.publishState = state
}

type fakeLayer struct {
	uri         string
	failCreate  bool
	lastChannel *fakeChannel
}

func (l *fakeLayer) ProfileURI() string { return l.uri }

func (l *fakeLayer) CreateChannel(cfg transport.ChannelConfig) (transport.Channel, error) {
	if l.failCreate {
		return nil, transport.ErrBrokerUnreached
	}
	l.lastChannel = &fakeChannel{registerStatus: ua.StatusOK}
	return l.lastChannel, nil
}

type testEnv struct {
	m        *Manager
	loop     *eventloop.Loop
	sessions *sessions.Registry
	udp      *fakeLayer
	mqtt     *fakeLayer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	loop := eventloop.New(clock.New())
	t.Cleanup(loop.Close)

	registry := transport.NewRegistry()
	udp := &fakeLayer{uri: transport.ProfileUDPUADP}
	mqtt := &fakeLayer{uri: transport.ProfileMQTTUADP}
	if err := registry.Register(udp); err != nil {
		t.Fatalf("registering UDP layer: %v", err)
	}
	if err := registry.Register(mqtt); err != nil {
		t.Fatalf("registering MQTT layer: %v", err)
	}

	sess := sessions.NewRegistry()
	m := NewManager(Options{
		Sessions:     sess,
		Transports:   registry,
		EventLoop:    loop,
		PublishState: "publish-state",
	})
	return &testEnv{m: m, loop: loop, sessions: sess, udp: udp, mqtt: mqtt}
}

func udpConnectionConfig(name string) *ConnectionConfig {
	return &ConnectionConfig{
		Name:                name,
		TransportProfileURI: transport.ProfileUDPUADP,
		Address:             NetworkAddressURL{URL: "opc.udp://224.0.0.22:4840"},
		PublisherID:         ua.MustVariant(uint64(2234)),
	}
}

func (env *testEnv) addConnection(t *testing.T, name string) *ua.NodeID {
	t.Helper()
	res, id := env.m.AddConnection(udpConnectionConfig(name))
	if res != ua.StatusOK {
		t.Fatalf("AddConnection(%q) failed: %v", name, res)
	}
	return id
}

func (env *testEnv) addPDS(t *testing.T, name string) *ua.NodeID {
	t.Helper()
	result := env.m.AddPublishedDataSet(&PublishedDataSetConfig{
		Name: name,
		Type: PublishedDataSetTypeItems,
	})
	if result.Status != ua.StatusOK {
		t.Fatalf("AddPublishedDataSet(%q) failed: %v", name, result.Status)
	}
	return result.ID
}

func TestAddAndRemoveConnectionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	connID := env.addConnection(t, "c1")
	pdsID := env.addPDS(t, "pds1")

	res, wgID := m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg1", PublishingInterval: 1000000000})
	if res != ua.StatusOK {
		t.Fatalf("AddWriterGroup failed: %v", res)
	}
	wg := m.FindWriterGroupByID(wgID)
	if wg == nil {
		t.Fatal("writer group not found after add")
	}
	if wg.Config.WriterGroupID < 0x8000 {
		t.Errorf("auto-assigned writer group id %#x outside the reserved range", wg.Config.WriterGroupID)
	}

	res, dswID := m.AddDataSetWriter(wgID, pdsID, &DataSetWriterConfig{Name: "dsw1"})
	if res != ua.StatusOK {
		t.Fatalf("AddDataSetWriter failed: %v", res)
	}
	if m.FindDataSetWriterByID(dswID) == nil {
		t.Fatal("dataset writer not found after add")
	}

	if res := m.RemoveConnection(connID); res != ua.StatusOK {
		t.Fatalf("RemoveConnection failed: %v", res)
	}

	if m.FindConnectionByID(connID) != nil {
		t.Error("connection still found after removal")
	}
	if m.FindWriterGroupByID(wgID) != nil {
		t.Error("writer group survived connection removal")
	}
	if m.FindDataSetWriterByID(dswID) != nil {
		t.Error("dataset writer survived connection removal")
	}
	if m.FindPublishedDataSetByID(pdsID) == nil {
		t.Error("published dataset must survive connection removal")
	}
	if !env.udp.lastChannel.closed {
		t.Error("transport channel not closed on connection removal")
	}
}

func TestAddConnectionUnknownTransport(t *testing.T) {
	env := newTestEnv(t)

	cfg := udpConnectionConfig("c1")
	cfg.TransportProfileURI = "http://opcfoundation.org/UA-Profile/Transport/pubsub-eth-uadp"
	res, _ := env.m.AddConnection(cfg)
	if res != ua.StatusBadNotFound {
		t.Errorf("expected BadNotFound for unknown transport, got %v", res)
	}
	if env.m.ConnectionCount() != 0 {
		t.Error("failed add must not leave a connection behind")
	}
}

func TestAddConnectionChannelFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.udp.failCreate = true

	res, _ := env.m.AddConnection(udpConnectionConfig("c1"))
	if res != ua.StatusBadInternalError {
		t.Errorf("expected BadInternalError on channel failure, got %v", res)
	}
	if env.m.ConnectionCount() != 0 {
		t.Error("partially-inserted connection must be rolled back")
	}
}

func TestAddConnectionDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	env.addConnection(t, "c1")

	if res, _ := env.m.AddConnection(udpConnectionConfig("c1")); res != ua.StatusBadBrowseNameDuplicated {
		t.Errorf("expected BadBrowseNameDuplicated, got %v", res)
	}
	if env.m.ConnectionCount() != 1 {
		t.Errorf("expected one connection, got %d", env.m.ConnectionCount())
	}
}

func TestAddConnectionNilConfig(t *testing.T) {
	env := newTestEnv(t)
	if res, _ := env.m.AddConnection(nil); res != ua.StatusBadInternalError {
		t.Errorf("expected BadInternalError for nil config, got %v", res)
	}
}

func TestAddConnectionDeepCopiesConfig(t *testing.T) {
	env := newTestEnv(t)

	cfg := udpConnectionConfig("c1")
	cfg.ConnectionProperties = []KeyValuePair{{Key: "topic", Value: ua.MustVariant("plant/line1")}}
	res, id := env.m.AddConnection(cfg)
	if res != ua.StatusOK {
		t.Fatalf("AddConnection failed: %v", res)
	}

	// Mutating the caller's config must not affect the stored copy.
	cfg.Name = "mutated"
	cfg.ConnectionProperties[0].Key = "mutated"

	c := env.m.FindConnectionByID(id)
	if c.Config.Name != "c1" {
		t.Errorf("stored config name changed to %q", c.Config.Name)
	}
	if c.Config.ConnectionProperties[0].Key != "topic" {
		t.Errorf("stored property key changed to %q", c.Config.ConnectionProperties[0].Key)
	}
}

func TestMQTTConnectionReceivesPublishState(t *testing.T) {
	env := newTestEnv(t)

	cfg := &ConnectionConfig{
		Name:                "mq",
		TransportProfileURI: transport.ProfileMQTTUADP,
		Address:             NetworkAddressURL{URL: "opc.mqtt://broker:1883"},
	}
	res, _ := env.m.AddConnection(cfg)
	if res != ua.StatusOK {
		t.Fatalf("AddConnection failed: %v", res)
	}
	if env.mqtt.lastChannel.publishState != "publish-state" {
		t.Errorf("publish state not wired into MQTT channel: %v", env.mqtt.lastChannel.publishState)
	}
	if env.udp.lastChannel != nil && env.udp.lastChannel.publishState != nil {
		t.Error("publish state must only reach MQTT-family channels")
	}
}

func TestRegisterConnectionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	connID := env.addConnection(t, "c1")

	if res := env.m.RegisterConnection(connID, nil); res != ua.StatusOK {
		t.Fatalf("RegisterConnection failed: %v", res)
	}
	if res := env.m.RegisterConnection(connID, nil); res != ua.StatusOK {
		t.Fatalf("second RegisterConnection failed: %v", res)
	}
	if got := env.udp.lastChannel.registerCalls; got != 1 {
		t.Errorf("expected exactly one channel register call, got %d", got)
	}

	if res := env.m.RegisterConnection(ua.NewNumericNodeID(1, 9999), nil); res != ua.StatusBadNotFound {
		t.Errorf("expected BadNotFound for unknown connection, got %v", res)
	}
}

func TestRegisterConnectionSetsFlagOnFailure(t *testing.T) {
	env := newTestEnv(t)
	connID := env.addConnection(t, "c1")
	env.udp.lastChannel.registerStatus = ua.StatusBadCommunicationError

	if res := env.m.RegisterConnection(connID, nil); res != ua.StatusBadCommunicationError {
		t.Errorf("expected the channel's status to surface, got %v", res)
	}
	// The registered flag latches regardless of the outcome.
	if res := env.m.RegisterConnection(connID, nil); res != ua.StatusOK {
		t.Errorf("expected OK on latched connection, got %v", res)
	}
	if got := env.udp.lastChannel.registerCalls; got != 1 {
		t.Errorf("expected one register call, got %d", got)
	}
}

func TestDuplicatePublishedDataSetName(t *testing.T) {
	env := newTestEnv(t)
	env.addPDS(t, "x")

	result := env.m.AddPublishedDataSet(&PublishedDataSetConfig{Name: "x", Type: PublishedDataSetTypeItems})
	if result.Status != ua.StatusBadBrowseNameDuplicated {
		t.Errorf("expected BadBrowseNameDuplicated, got %v", result.Status)
	}
	if env.m.PublishedDataSetCount() != 1 {
		t.Errorf("expected one dataset, got %d", env.m.PublishedDataSetCount())
	}
}

func TestUnsupportedPublishedDataSetTypes(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		typ  PublishedDataSetType
		want ua.StatusCode
	}{
		{"events", PublishedDataSetTypeEvents, ua.StatusBadNotSupported},
		{"eventsTemplate", PublishedDataSetTypeEventsTemplate, ua.StatusBadNotSupported},
		{"itemsTemplate", PublishedDataSetTypeItemsTemplate, ua.StatusBadInternalError},
	}
	for _, tc := range cases {
		result := env.m.AddPublishedDataSet(&PublishedDataSetConfig{Name: tc.name, Type: tc.typ})
		if result.Status != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, result.Status)
		}
	}
	if env.m.PublishedDataSetCount() != 0 {
		t.Errorf("rejected datasets must not be inserted, have %d", env.m.PublishedDataSetCount())
	}

	if result := env.m.AddPublishedDataSet(nil); result.Status != ua.StatusBadInvalidArgument {
		t.Errorf("nil config: expected BadInvalidArgument, got %v", result.Status)
	}
	if result := env.m.AddPublishedDataSet(&PublishedDataSetConfig{Type: PublishedDataSetTypeItems}); result.Status != ua.StatusBadInvalidArgument {
		t.Errorf("empty name: expected BadInvalidArgument, got %v", result.Status)
	}
}

func TestAddPublishedDataSetVersion(t *testing.T) {
	env := newTestEnv(t)

	result := env.m.AddPublishedDataSet(&PublishedDataSetConfig{Name: "v", Type: PublishedDataSetTypeItems})
	if result.Status != ua.StatusOK {
		t.Fatalf("AddPublishedDataSet failed: %v", result.Status)
	}
	if result.ConfigurationVersion.Major == 0 || result.ConfigurationVersion.Minor == 0 {
		t.Error("expected non-zero configuration version")
	}

	pds := env.m.FindPublishedDataSetByID(result.ID)
	if pds.MetaData.Name != "v" {
		t.Errorf("metadata name %q, want %q", pds.MetaData.Name, "v")
	}
	if pds.MetaData.DataSetClassID != nil {
		t.Error("expected null dataset class id")
	}
}

func TestRemovePublishedDataSetCascades(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	connID := env.addConnection(t, "c1")
	pdsID := env.addPDS(t, "pds1")
	otherID := env.addPDS(t, "pds2")

	_, wgID := m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg1"})
	_, dsw1 := m.AddDataSetWriter(wgID, pdsID, &DataSetWriterConfig{Name: "w1"})
	_, dsw2 := m.AddDataSetWriter(wgID, otherID, &DataSetWriterConfig{Name: "w2"})
	_, heartbeat := m.AddDataSetWriter(wgID, nil, &DataSetWriterConfig{Name: "hb"})

	if res := m.RemovePublishedDataSet(pdsID); res != ua.StatusOK {
		t.Fatalf("RemovePublishedDataSet failed: %v", res)
	}

	if m.FindDataSetWriterByID(dsw1) != nil {
		t.Error("writer referencing the removed dataset must be gone")
	}
	if m.FindDataSetWriterByID(dsw2) == nil {
		t.Error("writer referencing another dataset must survive")
	}
	if m.FindDataSetWriterByID(heartbeat) == nil {
		t.Error("heartbeat writer must survive")
	}
}

func TestRemovePublishedDataSetFrozen(t *testing.T) {
	env := newTestEnv(t)
	pdsID := env.addPDS(t, "pds1")

	env.m.FindPublishedDataSetByID(pdsID).ConfigurationFrozen = true
	if res := env.m.RemovePublishedDataSet(pdsID); res != ua.StatusBadConfigurationError {
		t.Errorf("expected BadConfigurationError for frozen dataset, got %v", res)
	}

	if res := env.m.RemovePublishedDataSet(ua.NewNumericNodeID(1, 4242)); res != ua.StatusBadNotFound {
		t.Errorf("expected BadNotFound, got %v", res)
	}
}

func TestHeartbeatWriterAndMissingDataSet(t *testing.T) {
	env := newTestEnv(t)
	connID := env.addConnection(t, "c1")
	_, wgID := env.m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg1"})

	if res, _ := env.m.AddDataSetWriter(wgID, nil, &DataSetWriterConfig{Name: "hb"}); res != ua.StatusOK {
		t.Errorf("heartbeat writer must be allowed, got %v", res)
	}
	missing := ua.NewNumericNodeID(1, 31337)
	if res, _ := env.m.AddDataSetWriter(wgID, missing, &DataSetWriterConfig{Name: "w"}); res != ua.StatusBadNotFound {
		t.Errorf("expected BadNotFound for missing dataset, got %v", res)
	}
}

func TestWriterIDUniquenessAcrossProfileScope(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	c1 := env.addConnection(t, "c1")
	c2 := env.addConnection(t, "c2")

	res, _ := m.AddWriterGroup(c1, &WriterGroupConfig{Name: "wg1", WriterGroupID: 100})
	if res != ua.StatusOK {
		t.Fatalf("AddWriterGroup failed: %v", res)
	}
	// Same id under another connection with the same transport profile.
	if res, _ := m.AddWriterGroup(c2, &WriterGroupConfig{Name: "wg2", WriterGroupID: 100}); res != ua.StatusBadInvalidArgument {
		t.Errorf("expected BadInvalidArgument for duplicate writer group id, got %v", res)
	}

	_, wg1 := m.AddWriterGroup(c1, &WriterGroupConfig{Name: "wg3", WriterGroupID: 101})
	if res, _ := m.AddDataSetWriter(wg1, nil, &DataSetWriterConfig{Name: "w1", DataSetWriterID: 7}); res != ua.StatusOK {
		t.Fatalf("AddDataSetWriter failed: %v", res)
	}
	if res, _ := m.AddDataSetWriter(wg1, nil, &DataSetWriterConfig{Name: "w2", DataSetWriterID: 7}); res != ua.StatusBadInvalidArgument {
		t.Errorf("expected BadInvalidArgument for duplicate dataset writer id, got %v", res)
	}
}

func TestStandaloneSubscribedDataSetBindingAndCascade(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	res, sdsID := m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: "sds1"})
	if res != ua.StatusOK {
		t.Fatalf("AddStandaloneSubscribedDataSet failed: %v", res)
	}
	sds := m.FindSubscribedDataSetByID(sdsID)
	if sds.ConnectedReader != nil || sds.IsConnected {
		t.Error("fresh subscribed dataset must be unbound")
	}

	connID := env.addConnection(t, "c1")
	_, rgID := m.AddReaderGroup(connID, &ReaderGroupConfig{Name: "rg1"})
	res, readerID := m.AddDataSetReader(rgID, &DataSetReaderConfig{
		Name:                            "r1",
		StandaloneSubscribedDataSetName: "sds1",
	})
	if res != ua.StatusOK {
		t.Fatalf("AddDataSetReader failed: %v", res)
	}
	if !sds.IsConnected || !equalNodeID(sds.ConnectedReader, readerID) {
		t.Error("subscribed dataset not bound to the reader")
	}

	// A second reader cannot bind the same dataset.
	if res, _ := m.AddDataSetReader(rgID, &DataSetReaderConfig{
		Name:                            "r2",
		StandaloneSubscribedDataSetName: "sds1",
	}); res != ua.StatusBadInvalidArgument {
		t.Errorf("expected BadInvalidArgument for double binding, got %v", res)
	}

	if res := m.RemoveStandaloneSubscribedDataSet(sdsID); res != ua.StatusOK {
		t.Fatalf("RemoveStandaloneSubscribedDataSet failed: %v", res)
	}
	if m.FindDataSetReaderByID(readerID) != nil {
		t.Error("bound reader must be removed with the subscribed dataset")
	}
	if m.SubscribedDataSetCount() != 0 {
		t.Error("subscribed dataset still present")
	}
}

func TestRemoveReaderUnbindsSubscribedDataSet(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	_, sdsID := m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: "sds1"})
	connID := env.addConnection(t, "c1")
	_, rgID := m.AddReaderGroup(connID, &ReaderGroupConfig{Name: "rg1"})
	_, readerID := m.AddDataSetReader(rgID, &DataSetReaderConfig{
		Name:                            "r1",
		StandaloneSubscribedDataSetName: "sds1",
	})

	if res := m.RemoveDataSetReader(readerID); res != ua.StatusOK {
		t.Fatalf("RemoveDataSetReader failed: %v", res)
	}
	sds := m.FindSubscribedDataSetByID(sdsID)
	if sds.IsConnected || sds.ConnectedReader != nil {
		t.Error("subscribed dataset must be unbound after reader removal")
	}
}

func TestDuplicateSubscribedDataSetName(t *testing.T) {
	env := newTestEnv(t)
	if res, _ := env.m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: "s"}); res != ua.StatusOK {
		t.Fatalf("first add failed: %v", res)
	}
	if res, _ := env.m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: "s"}); res != ua.StatusBadBrowseNameDuplicated {
		t.Errorf("expected BadBrowseNameDuplicated, got %v", res)
	}
}

func TestFrozenGroupRejectsMutationAndRemoval(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	connID := env.addConnection(t, "c1")
	pdsID := env.addPDS(t, "pds1")
	_, wgID := m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg1"})
	_, dswID := m.AddDataSetWriter(wgID, pdsID, &DataSetWriterConfig{Name: "w1"})

	if res := m.FreezeWriterGroupConfiguration(wgID); res != ua.StatusOK {
		t.Fatalf("FreezeWriterGroupConfiguration failed: %v", res)
	}

	if res := m.RemoveWriterGroup(wgID); res != ua.StatusBadConfigurationError {
		t.Errorf("expected BadConfigurationError removing frozen group, got %v", res)
	}
	if res := m.RemoveDataSetWriter(dswID); res != ua.StatusBadConfigurationError {
		t.Errorf("expected BadConfigurationError removing frozen writer, got %v", res)
	}
	if res := m.RemovePublishedDataSet(pdsID); res != ua.StatusBadConfigurationError {
		t.Errorf("expected BadConfigurationError removing frozen dataset, got %v", res)
	}
	if res, _ := m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg2"}); res != ua.StatusBadConfigurationError {
		t.Errorf("expected BadConfigurationError adding group under frozen connection, got %v", res)
	}

	if res := m.UnfreezeWriterGroupConfiguration(wgID); res != ua.StatusOK {
		t.Fatalf("UnfreezeWriterGroupConfiguration failed: %v", res)
	}
	if res := m.RemoveWriterGroup(wgID); res != ua.StatusOK {
		t.Errorf("expected removal to succeed after unfreeze, got %v", res)
	}
	if res := m.RemovePublishedDataSet(pdsID); res != ua.StatusOK {
		t.Errorf("expected dataset removal to succeed after unfreeze, got %v", res)
	}
}

func TestRemoveConnectionCascadesThroughFrozenGroups(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	connID := env.addConnection(t, "c1")
	_, wgID := m.AddWriterGroup(connID, &WriterGroupConfig{Name: "wg1"})
	_, rgID := m.AddReaderGroup(connID, &ReaderGroupConfig{Name: "rg1"})
	m.FreezeWriterGroupConfiguration(wgID)
	m.FreezeReaderGroupConfiguration(rgID)

	if res := m.RemoveConnection(connID); res != ua.StatusOK {
		t.Fatalf("RemoveConnection failed: %v", res)
	}
	if m.FindWriterGroupByID(wgID) != nil || m.FindReaderGroupByID(rgID) != nil {
		t.Error("frozen groups must be unfrozen and removed with the connection")
	}
}

func TestTopicAssigns(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	connID := env.addConnection(t, "c1")
	_, rgID := m.AddReaderGroup(connID, &ReaderGroupConfig{Name: "rg1"})

	if res := m.AddTopicAssign(rgID, "plant/line1/data"); res != ua.StatusOK {
		t.Fatalf("AddTopicAssign failed: %v", res)
	}
	m.AddTopicAssign(rgID, "plant/line2/data")

	topics := m.TopicAssigns(rgID)
	if len(topics) != 2 {
		t.Fatalf("expected two topics, got %d", len(topics))
	}

	m.RemoveReaderGroup(rgID)
	if got := m.TopicAssigns(rgID); len(got) != 0 {
		t.Errorf("topic assigns must go with the reader group, got %v", got)
	}
}

func TestGenerateUniqueNodeID(t *testing.T) {
	env := newTestEnv(t)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := env.m.GenerateUniqueNodeID()
		if seen[id.String()] {
			t.Fatalf("duplicate node id %s", id)
		}
		seen[id.String()] = true
	}

	guid := env.m.GenerateUniqueGUID()
	if guid == nil {
		t.Fatal("expected GUID node id")
	}
}

func TestDefaultPublisherIDSeeded(t *testing.T) {
	first := NewManager(Options{})
	second := NewManager(Options{})
	if first.DefaultPublisherID() == 0 {
		t.Error("expected non-zero default publisher id")
	}
	if first.DefaultPublisherID() == second.DefaultPublisherID() {
		t.Error("two managers must not share a default publisher id")
	}
}

func TestConfigurationVersionTimeDifference(t *testing.T) {
	first := ConfigurationVersionTimeDifference()
	second := ConfigurationVersionTimeDifference()
	if first == 0 {
		t.Error("expected non-zero version value")
	}
	// Counter runs forward; truncation wraps only every ~7 minutes.
	if second < first {
		t.Errorf("version value went backwards: %d -> %d", first, second)
	}
}

func TestDestroyEmptiesManager(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	env.addConnection(t, "c1")
	env.addPDS(t, "pds1")
	m.AddStandaloneSubscribedDataSet(&StandaloneSubscribedDataSetConfig{Name: "sds1"})
	m.AddSecurityGroup(&SecurityGroupConfig{Name: "sg1", KeyLifetime: 1000})
	m.ReserveIDs(env.sessions.AdminSessionID(), 2, 2, transport.ProfileUDPUADP)

	m.Destroy()

	if m.ConnectionCount() != 0 || m.PublishedDataSetCount() != 0 ||
		m.SubscribedDataSetCount() != 0 || m.ReserveIDCount() != 0 {
		t.Error("Destroy must empty all collections")
	}
	if len(env.m.opts.Transports.Profiles()) != 0 {
		t.Error("Destroy must clear the transport layers")
	}

	// Idempotent on an already-empty manager.
	m.Destroy()
}

func TestSecurityGroups(t *testing.T) {
	env := newTestEnv(t)
	m := env.m

	res, id := m.AddSecurityGroup(&SecurityGroupConfig{Name: "sg1", KeyLifetime: 5000})
	if res != ua.StatusOK {
		t.Fatalf("AddSecurityGroup failed: %v", res)
	}
	if m.FindSecurityGroupByName("sg1") == nil {
		t.Error("security group not found by name")
	}

	if res, _ := m.AddSecurityGroup(&SecurityGroupConfig{Name: "sg1", KeyLifetime: 5000}); res != ua.StatusBadBrowseNameDuplicated {
		t.Errorf("expected BadBrowseNameDuplicated, got %v", res)
	}
	if res, _ := m.AddSecurityGroup(&SecurityGroupConfig{Name: "sg2"}); res != ua.StatusBadInvalidArgument {
		t.Errorf("expected BadInvalidArgument for missing key lifetime, got %v", res)
	}

	if res := m.RemoveSecurityGroup(id); res != ua.StatusOK {
		t.Fatalf("RemoveSecurityGroup failed: %v", res)
	}
	if res := m.RemoveSecurityGroup(id); res != ua.StatusBadNotFound {
		t.Errorf("expected BadNotFound, got %v", res)
	}
}
