// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	// Create connection with timeout
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to socket %s: %v", core.ErrDaemonNotRunning, c.socketPath, err)
	}
	defer conn.Close()

	// Set deadline
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	// Marshal params
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	// Create JSON-RPC request
	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano()) // Use string ID
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	// Send request
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// Read response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	// Parse JSON-RPC response
	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Verify response ID matches (convert both to string for comparison)
	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	// Convert to internal Response format
	resp := &Response{
		ID:     fmt.Sprintf("%v", jsonrpcResp.ID),
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}

	return resp, nil
}

// Console forwards console lines from in to the daemon over one connection
// and copies each text reply to out. It returns when in is exhausted or the
// daemon hangs up.
func (c *UDSClient) Console(ctx context.Context, in io.Reader, out io.Writer) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to socket %s: %v", core.ErrDaemonNotRunning, c.socketPath, err)
	}
	defer conn.Close()

	lines := bufio.NewScanner(in)
	replies := bufio.NewReader(conn)
	fmt.Fprint(out, "> ")
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "{"):
			fmt.Fprintln(out, "Enter a valid command")
		default:
			if err := c.consoleLine(ctx, conn, replies, line, out); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return lines.Err()
}

// consoleLine sends one line and copies the reply up to its empty line.
func (c *UDSClient) consoleLine(ctx context.Context, conn net.Conn, replies *bufio.Reader, line string, out io.Writer) error {
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	for {
		reply, err := replies.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read reply: %w", err)
		}
		if reply == "\n" {
			return nil
		}
		if _, err := io.WriteString(out, reply); err != nil {
			return err
		}
	}
}

// Status is a convenience method for the node_status command.
func (c *UDSClient) Status(ctx context.Context) (*StatusResult, error) {
	resp, err := c.Call(ctx, MethodNodeStatus, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var status StatusResult
	if err := resp.Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Connect is a convenience method for the node_connect command.
func (c *UDSClient) Connect(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodNodeConnect, nil)
}

// Reset is a convenience method for the node_reset command.
func (c *UDSClient) Reset(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodNodeReset, nil)
}

// Set is a convenience method for the node_set command.
func (c *UDSClient) Set(ctx context.Context, field, value string) (*Response, error) {
	return c.Call(ctx, MethodNodeSet, SetParams{Field: field, Value: value})
}

// Publish is a convenience method for the mqtt_publish command.
func (c *UDSClient) Publish(ctx context.Context, topic, data string) (*Response, error) {
	return c.Call(ctx, MethodMQTTPublish, PublishParams{Topic: topic, Data: data})
}

// Shutdown asks the daemon to stop.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodDaemonShutdown, nil)
}

// Ping sends a simple ping command to check if daemon is alive.
// This is a convenience wrapper around node_status.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, MethodNodeStatus, nil)
	return err
}

// Decode re-marshals Result into v.
func (r *Response) Decode(v interface{}) error {
	data, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
