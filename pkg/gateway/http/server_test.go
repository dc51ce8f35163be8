package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
)

func init() {
	log.SetLevel(log.DebugLevel)
}

type fakeController struct {
	mu        sync.Mutex
	snapshot  controller.Snapshot
	faults    []controller.FaultEvent
	resets    int
	charges   int
	listeners []func(controller.Snapshot)
}

func (f *fakeController) Snapshot() controller.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeController) Faults() []controller.FaultEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *fakeController) RequestReset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeController) RequestManualCharge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges++
}

func (f *fakeController) OnSnapshot(listener func(controller.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
}

func (f *fakeController) publish(s controller.Snapshot) {
	f.mu.Lock()
	f.snapshot = s
	listeners := f.listeners
	f.mu.Unlock()
	for _, listener := range listeners {
		listener(s)
	}
}

func createClient(mode controller.Mode) (*GatewayClient, *fakeController, *httptest.Server) {
	ctrl := &fakeController{snapshot: controller.Snapshot{Mode: mode.String(), ModeCode: mode.Code()}}
	gw := NewGatewayServer(gateway.NewBaseGateway(ctrl, 0x00010203))
	ts := httptest.NewServer(gw.Handler())
	return NewGatewayClient(ts.URL, API_VERSION), ctrl, ts
}

func TestInvalidURIs(t *testing.T) {
	client, _, ts := createClient(controller.NormalOp)
	defer ts.Close()
	resp := new(GatewayResponseBase)
	err := client.Do(http.MethodGet, "/unknown/command", nil, resp)
	assert.Equal(t, ErrGwRequestNotSupported, err)

	// Reset is not a read
	err = client.Do(http.MethodGet, "/reset", nil, resp)
	assert.Equal(t, ErrGwRequestNotSupported, err)

	client.apiVersion = "9.9"
	err = client.Do(http.MethodGet, "/status", nil, resp)
	assert.Equal(t, ErrGwRequestNotSupported, err)
}

func TestStatus(t *testing.T) {
	client, ctrl, ts := createClient(controller.NormalOp)
	defer ts.Close()
	ctrl.publish(controller.Snapshot{Mode: "NORMALOP", ModeCode: 7, ClosedRelays: []string{"battery", "array", "motor"}})

	status, err := client.Status()
	assert.Nil(t, err)
	assert.Equal(t, "NORMALOP", status.Mode)
	assert.EqualValues(t, 7, status.ModeCode)
	assert.Equal(t, []string{"battery", "array", "motor"}, status.ClosedRelays)
}

func TestFaults(t *testing.T) {
	client, ctrl, ts := createClient(controller.ErrorMode)
	defer ts.Close()
	faults, err := client.Faults()
	assert.Nil(t, err)
	assert.Empty(t, faults)

	resp := new(FaultResponse)
	assert.Nil(t, client.Do(http.MethodGet, "/faults/latest", nil, resp))
	assert.Nil(t, resp.Fault)

	ctrl.faults = []controller.FaultEvent{
		{ID: "a", Code: 0x30, Mode: "NORMALOP"},
		{ID: "b", Code: 0x12, Mode: "CHARGE"},
	}
	faults, err = client.Faults()
	assert.Nil(t, err)
	assert.Len(t, faults, 2)

	resp = new(FaultResponse)
	assert.Nil(t, client.Do(http.MethodGet, "/faults/latest", nil, resp))
	require.NotNil(t, resp.Fault)
	assert.EqualValues(t, 0x12, resp.Fault.Code)
}

func TestOperatorRequests(t *testing.T) {
	client, ctrl, ts := createClient(controller.ErrorMode)
	defer ts.Close()
	assert.Nil(t, client.Reset())
	assert.Equal(t, 1, ctrl.resets)

	assert.Equal(t, ErrGwWrongMode, client.Charge())
	assert.Equal(t, 0, ctrl.charges)

	ctrl.publish(controller.Snapshot{Mode: "sleeping"})
	assert.Equal(t, ErrGwWrongMode, client.Charge())
	ctrl.publish(controller.Snapshot{Mode: "initialize"})
	assert.Equal(t, ErrGwWrongMode, client.Charge())
	assert.Equal(t, 0, ctrl.charges)

	ctrl.publish(controller.Snapshot{Mode: controller.NormalOp.String()})
	assert.Nil(t, client.Charge())
	assert.Equal(t, 1, ctrl.charges)
}

func TestVersion(t *testing.T) {
	client, _, ts := createClient(controller.NormalOp)
	defer ts.Close()
	version, err := client.GetVersion()
	assert.Nil(t, err)
	require.NotNil(t, version)
	assert.Equal(t, "0x00010203", version.SerialNumber)
	assert.Equal(t, "BPv1", version.Signature)
}

func TestCellsAndTemperatures(t *testing.T) {
	client, ctrl, ts := createClient(controller.NormalOp)
	defer ts.Close()
	ctrl.publish(controller.Snapshot{
		PackVoltage:       126.0,
		Cells:             []controller.CellReading{{Index: 0, Volts: 3.6}, {Index: 1, Volts: 3.61}},
		TemperatureStatus: "OK",
		Temperatures:      []controller.TemperatureReading{{Channel: 0, Code: 0x600000, Celsius: 26.1}},
	})
	cells := new(CellsResponse)
	assert.Nil(t, client.Do(http.MethodGet, "/cells", nil, cells))
	assert.Len(t, cells.Cells, 2)
	assert.Len(t, cells.BankStatus, 3)
	assert.InDelta(t, 126.0, cells.PackVoltage, 0.01)

	temps := new(TemperaturesResponse)
	assert.Nil(t, client.Do(http.MethodGet, "/temperatures", nil, temps))
	assert.Equal(t, "OK", temps.Status)
	assert.Len(t, temps.Temperatures, 1)
}

func TestStream(t *testing.T) {
	_, ctrl, ts := createClient(controller.CanCheck)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + STREAM_PATH
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello StreamMessage
	require.Nil(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.Client)
	require.NotNil(t, hello.Snapshot)
	assert.Equal(t, "CANCHECK", hello.Snapshot.Mode)

	ctrl.publish(controller.Snapshot{Mode: "PRECHARGE"})
	var msg StreamMessage
	require.Nil(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Equal(t, "PRECHARGE", msg.Snapshot.Mode)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 1)}
	require.True(t, hub.register(c))
	hub.Publish(StreamMessage{Type: "snapshot"})
	hub.Publish(StreamMessage{Type: "snapshot"})
	assert.EqualValues(t, 1, hub.Dropped())
	hub.Close()
	assert.Equal(t, 0, hub.Clients())
	assert.False(t, hub.register(&Client{hub: hub, send: make(chan []byte, 1)}))
}
