// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/log"
	"firestige.xyz/ethmqtt/internal/node"
)

// Method names served over the control socket.
const (
	MethodNodeStatus      = "node_status"
	MethodNodeConnect     = "node_connect"
	MethodNodeReset       = "node_reset"
	MethodNodeSet         = "node_set"
	MethodMQTTConnect     = "mqtt_connect"
	MethodMQTTSubscribe   = "mqtt_subscribe"
	MethodMQTTUnsubscribe = "mqtt_unsubscribe"
	MethodMQTTPublish     = "mqtt_publish"
	MethodMQTTDisconnect  = "mqtt_disconnect"
	MethodDaemonShutdown  = "daemon_shutdown"
)

// Fields accepted by node_set.
const (
	FieldIP        = "ip"
	FieldBroker    = "mqtt"
	FieldMask      = "mask"
	FieldGateway   = "gw"
	FieldBrokerMAC = "broker_mac"
)

// Node is the part of node.Node the handler drives.
type Node interface {
	Status(ctx context.Context) (node.Snapshot, error)
	Connect(ctx context.Context) error
	Reset(ctx context.Context) error
	SetIP(ctx context.Context, ip core.IPv4Addr) error
	SetSubnetMask(ctx context.Context, mask core.IPv4Addr) error
	SetGateway(ctx context.Context, gw core.IPv4Addr) error
	SetBrokerIP(ctx context.Context, ip core.IPv4Addr) error
	SetBrokerMAC(ctx context.Context, hw core.HardwareAddr) error
	MQTTConnect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, data []byte) error
	Disconnect(ctx context.Context) error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	node         Node
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(n Node) *CommandHandler {
	return &CommandHandler{
		node:      n,
		startTime: time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "node_status", "mqtt_publish"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error

	ErrCodeNotConnected = -32001 // No active TCP connection to the broker
	ErrCodeBusy         = -32002 // Connection attempt already in progress
)

// StatusResult is the node_status result.
type StatusResult struct {
	node.Snapshot
	UptimeSec int64 `json:"uptime_sec"`
}

// SetParams represents parameters for node_set.
type SetParams struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// TopicParams represents parameters for mqtt_subscribe and mqtt_unsubscribe.
type TopicParams struct {
	Topic string `json:"topic"`
}

// PublishParams represents parameters for mqtt_publish.
type PublishParams struct {
	Topic string `json:"topic"`
	Data  string `json:"data"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	log.GetLogger().WithFields(map[string]interface{}{
		"method": cmd.Method,
		"id":     cmd.ID,
	}).Info("Handling command")

	switch cmd.Method {
	case MethodNodeStatus:
		return h.handleNodeStatus(ctx, cmd)
	case MethodNodeConnect:
		return h.done(cmd, "connecting", h.node.Connect(ctx))
	case MethodNodeReset:
		return h.done(cmd, "reset", h.node.Reset(ctx))
	case MethodNodeSet:
		return h.handleNodeSet(ctx, cmd)
	case MethodMQTTConnect:
		return h.done(cmd, "sent", h.node.MQTTConnect(ctx))
	case MethodMQTTSubscribe, MethodMQTTUnsubscribe:
		return h.handleTopic(ctx, cmd)
	case MethodMQTTPublish:
		return h.handlePublish(ctx, cmd)
	case MethodMQTTDisconnect:
		return h.done(cmd, "sent", h.node.Disconnect(ctx))
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

// done maps the outcome of a node call to a response.
func (h *CommandHandler) done(cmd Command, status string, err error) Response {
	if err != nil {
		return Response{ID: cmd.ID, Error: errorInfo(cmd.Method, err)}
	}
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": status},
	}
}

func errorInfo(method string, err error) *ErrorInfo {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, core.ErrConfigInvalid):
		code = ErrCodeInvalidParams
	case errors.Is(err, core.ErrNotConnected):
		code = ErrCodeNotConnected
	case errors.Is(err, core.ErrBusy):
		code = ErrCodeBusy
	}
	return &ErrorInfo{Code: code, Message: fmt.Sprintf("%s failed: %v", method, err)}
}

func invalidParams(cmd Command, err error) Response {
	return Response{
		ID: cmd.ID,
		Error: &ErrorInfo{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %v", err),
		},
	}
}

// handleNodeStatus returns the node snapshot with the daemon uptime.
func (h *CommandHandler) handleNodeStatus(ctx context.Context, cmd Command) Response {
	snap, err := h.node.Status(ctx)
	if err != nil {
		return Response{ID: cmd.ID, Error: errorInfo(cmd.Method, err)}
	}
	return Response{
		ID: cmd.ID,
		Result: StatusResult{
			Snapshot:  snap,
			UptimeSec: time.Now().Unix() - h.startTime,
		},
	}
}

// handleNodeSet changes one address.
func (h *CommandHandler) handleNodeSet(ctx context.Context, cmd Command) Response {
	var params SetParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return invalidParams(cmd, err)
	}

	var err error
	switch strings.ToLower(params.Field) {
	case FieldBrokerMAC:
		var hw core.HardwareAddr
		if hw, err = core.ParseHardwareAddr(params.Value); err != nil {
			return invalidParams(cmd, err)
		}
		err = h.node.SetBrokerMAC(ctx, hw)
	case FieldIP, FieldBroker, FieldMask, FieldGateway:
		var ip core.IPv4Addr
		if ip, err = core.ParseIPv4Addr(params.Value); err != nil {
			return invalidParams(cmd, err)
		}
		switch strings.ToLower(params.Field) {
		case FieldIP:
			err = h.node.SetIP(ctx, ip)
		case FieldBroker:
			err = h.node.SetBrokerIP(ctx, ip)
		case FieldMask:
			err = h.node.SetSubnetMask(ctx, ip)
		case FieldGateway:
			err = h.node.SetGateway(ctx, ip)
		}
	default:
		return invalidParams(cmd, fmt.Errorf("unknown field %q", params.Field))
	}
	if err != nil {
		return Response{ID: cmd.ID, Error: errorInfo(cmd.Method, err)}
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"field":  strings.ToLower(params.Field),
			"value":  params.Value,
			"status": "set",
		},
	}
}

// handleTopic handles mqtt_subscribe and mqtt_unsubscribe.
func (h *CommandHandler) handleTopic(ctx context.Context, cmd Command) Response {
	var params TopicParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return invalidParams(cmd, err)
	}
	if params.Topic == "" {
		return invalidParams(cmd, errors.New("topic is required"))
	}

	var err error
	if cmd.Method == MethodMQTTSubscribe {
		err = h.node.Subscribe(ctx, params.Topic)
	} else {
		err = h.node.Unsubscribe(ctx, params.Topic)
	}
	return h.done(cmd, "sent", err)
}

// handlePublish handles mqtt_publish.
func (h *CommandHandler) handlePublish(ctx context.Context, cmd Command) Response {
	var params PublishParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return invalidParams(cmd, err)
	}
	if params.Topic == "" {
		return invalidParams(cmd, errors.New("topic is required"))
	}
	return h.done(cmd, "sent", h.node.Publish(ctx, params.Topic, []byte(params.Data)))
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	log.GetLogger().Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}
