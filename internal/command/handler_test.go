package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/node"
)

// fakeNode records calls and returns err from every method.
type fakeNode struct {
	mu        sync.Mutex
	calls     []string
	err       error
	snap      node.Snapshot
	ip        core.IPv4Addr
	brokerMAC core.HardwareAddr
	topic     string
	data      []byte
}

func (f *fakeNode) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeNode) Status(context.Context) (node.Snapshot, error) {
	return f.snap, f.record("Status")
}
func (f *fakeNode) Connect(context.Context) error { return f.record("Connect") }
func (f *fakeNode) Reset(context.Context) error   { return f.record("Reset") }
func (f *fakeNode) SetIP(_ context.Context, ip core.IPv4Addr) error {
	f.ip = ip
	return f.record("SetIP")
}
func (f *fakeNode) SetSubnetMask(_ context.Context, ip core.IPv4Addr) error {
	f.ip = ip
	return f.record("SetSubnetMask")
}
func (f *fakeNode) SetGateway(_ context.Context, ip core.IPv4Addr) error {
	f.ip = ip
	return f.record("SetGateway")
}
func (f *fakeNode) SetBrokerIP(_ context.Context, ip core.IPv4Addr) error {
	f.ip = ip
	return f.record("SetBrokerIP")
}
func (f *fakeNode) SetBrokerMAC(_ context.Context, hw core.HardwareAddr) error {
	f.brokerMAC = hw
	return f.record("SetBrokerMAC")
}
func (f *fakeNode) MQTTConnect(context.Context) error { return f.record("MQTTConnect") }
func (f *fakeNode) Subscribe(_ context.Context, topic string) error {
	f.topic = topic
	return f.record("Subscribe")
}
func (f *fakeNode) Unsubscribe(_ context.Context, topic string) error {
	f.topic = topic
	return f.record("Unsubscribe")
}
func (f *fakeNode) Publish(_ context.Context, topic string, data []byte) error {
	f.topic, f.data = topic, data
	return f.record("Publish")
}
func (f *fakeNode) Disconnect(context.Context) error { return f.record("Disconnect") }

func command(t *testing.T, method string, params interface{}) Command {
	t.Helper()
	cmd := Command{Method: method, ID: "1"}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		cmd.Params = raw
	}
	return cmd
}

func TestHandleDispatch(t *testing.T) {
	tests := []struct {
		method string
		params interface{}
		call   string
	}{
		{MethodNodeConnect, nil, "Connect"},
		{MethodNodeReset, nil, "Reset"},
		{MethodMQTTConnect, nil, "MQTTConnect"},
		{MethodMQTTDisconnect, nil, "Disconnect"},
		{MethodMQTTSubscribe, TopicParams{Topic: "lights"}, "Subscribe"},
		{MethodMQTTUnsubscribe, TopicParams{Topic: "lights"}, "Unsubscribe"},
		{MethodMQTTPublish, PublishParams{Topic: "lights", Data: "on"}, "Publish"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			n := &fakeNode{}
			h := NewCommandHandler(n)
			resp := h.Handle(context.Background(), command(t, tt.method, tt.params))
			require.Nil(t, resp.Error)
			assert.Equal(t, "1", resp.ID)
			assert.Equal(t, []string{tt.call}, n.calls)
		})
	}
}

func TestHandlePublishPassesTopicAndData(t *testing.T) {
	n := &fakeNode{}
	h := NewCommandHandler(n)
	resp := h.Handle(context.Background(), command(t, MethodMQTTPublish, PublishParams{Topic: "a/b", Data: "hello world"}))
	require.Nil(t, resp.Error)
	assert.Equal(t, "a/b", n.topic)
	assert.Equal(t, []byte("hello world"), n.data)
}

func TestHandleMissingTopic(t *testing.T) {
	h := NewCommandHandler(&fakeNode{})
	for _, method := range []string{MethodMQTTSubscribe, MethodMQTTUnsubscribe, MethodMQTTPublish} {
		resp := h.Handle(context.Background(), command(t, method, map[string]string{}))
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code, method)
	}
}

func TestHandleNodeSet(t *testing.T) {
	tests := []struct {
		field string
		value string
		call  string
	}{
		{FieldIP, "10.0.0.5", "SetIP"},
		{FieldBroker, "10.0.0.1", "SetBrokerIP"},
		{FieldMask, "255.255.255.0", "SetSubnetMask"},
		{FieldGateway, "10.0.0.254", "SetGateway"},
		{"IP", "10.0.0.6", "SetIP"},
	}
	for _, tt := range tests {
		n := &fakeNode{}
		h := NewCommandHandler(n)
		resp := h.Handle(context.Background(), command(t, MethodNodeSet, SetParams{Field: tt.field, Value: tt.value}))
		require.Nil(t, resp.Error, tt.field)
		assert.Equal(t, []string{tt.call}, n.calls)
		assert.Equal(t, tt.value, n.ip.String())
	}

	n := &fakeNode{}
	h := NewCommandHandler(n)
	resp := h.Handle(context.Background(), command(t, MethodNodeSet, SetParams{Field: FieldBrokerMAC, Value: "10:20:30:40:50:60"}))
	require.Nil(t, resp.Error)
	assert.Equal(t, "10:20:30:40:50:60", n.brokerMAC.String())
}

func TestHandleNodeSetInvalid(t *testing.T) {
	h := NewCommandHandler(&fakeNode{})
	for _, p := range []SetParams{
		{Field: FieldIP, Value: "300.1.1.1"},
		{Field: FieldBrokerMAC, Value: "zz"},
		{Field: "dns", Value: "1.1.1.1"},
	} {
		resp := h.Handle(context.Background(), command(t, MethodNodeSet, p))
		require.NotNil(t, resp.Error, p.Field)
		assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	}

	resp := h.Handle(context.Background(), Command{Method: MethodNodeSet, Params: json.RawMessage(`{`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestHandleErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{core.ErrNotConnected, ErrCodeNotConnected},
		{core.ErrBusy, ErrCodeBusy},
		{core.ErrConfigInvalid, ErrCodeInvalidParams},
		{core.ErrNodeStopped, ErrCodeInternalError},
	}
	for _, tt := range tests {
		h := NewCommandHandler(&fakeNode{err: tt.err})
		resp := h.Handle(context.Background(), command(t, MethodNodeConnect, nil))
		require.NotNil(t, resp.Error)
		assert.Equal(t, tt.code, resp.Error.Code, tt.err.Error())
		assert.Contains(t, resp.Error.Message, tt.err.Error())
	}
}

func TestHandleNodeStatus(t *testing.T) {
	n := &fakeNode{snap: node.Snapshot{State: "Idle", Indicator: true}}
	n.snap.IP = core.IPv4Addr{192, 168, 1, 112}
	h := NewCommandHandler(n)

	resp := h.Handle(context.Background(), command(t, MethodNodeStatus, nil))
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(StatusResult)
	require.True(t, ok)
	assert.Equal(t, "Idle", result.State)
	assert.True(t, result.Indicator)
	assert.Equal(t, "192.168.1.112", result.IP.String())
}

func TestHandleUnknownMethod(t *testing.T) {
	h := NewCommandHandler(&fakeNode{})
	resp := h.Handle(context.Background(), Command{Method: "task_create", ID: "7"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "7", resp.ID)
}

func TestHandleDaemonShutdown(t *testing.T) {
	h := NewCommandHandler(&fakeNode{})
	resp := h.Handle(context.Background(), Command{Method: MethodDaemonShutdown})
	require.NotNil(t, resp.Error)

	called := make(chan struct{})
	h.SetShutdownFunc(func() { close(called) })
	resp = h.Handle(context.Background(), Command{Method: MethodDaemonShutdown})
	require.Nil(t, resp.Error)
	<-called
}
