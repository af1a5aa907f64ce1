package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"firestige.xyz/ethmqtt/internal/core"
	"firestige.xyz/ethmqtt/internal/node"
)

// startServer serves handler on a socket in a temp dir until the test ends.
func startServer(t *testing.T, handler *CommandHandler) (string, context.CancelFunc, chan error) {
	t.Helper()
	return startServerTimeout(t, handler, 0)
}

func startServerTimeout(t *testing.T, handler *CommandHandler, timeout time.Duration) (string, context.CancelFunc, chan error) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewUDSServer(socketPath, handler, timeout)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return socketPath, cancel, errCh
}

func TestUDSServerClient_Integration(t *testing.T) {
	n := &fakeNode{snap: node.Snapshot{State: "TCPConnectionActive", MQTTConnected: true}}
	n.snap.BrokerIP = core.IPv4Addr{192, 168, 1, 1}
	socketPath, cancel, errCh := startServer(t, NewCommandHandler(n))

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("node_status", func(t *testing.T) {
		status, err := client.Status(context.Background())
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.State != "TCPConnectionActive" {
			t.Errorf("state = %q, want TCPConnectionActive", status.State)
		}
		if !status.MQTTConnected {
			t.Error("mqtt_connected = false, want true")
		}
		if status.BrokerIP.String() != "192.168.1.1" {
			t.Errorf("broker_ip = %s, want 192.168.1.1", status.BrokerIP)
		}
	})

	t.Run("node_set", func(t *testing.T) {
		resp, err := client.Set(context.Background(), FieldBroker, "10.1.1.1")
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
	})

	t.Run("mqtt_publish", func(t *testing.T) {
		resp, err := client.Publish(context.Background(), "lights", "on")
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if result["status"] != "sent" {
			t.Errorf("status = %v, want sent", result["status"])
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Fatal("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})

	// Stop server
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}

	// Verify socket file is removed
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSClient_StatusError(t *testing.T) {
	socketPath, _, _ := startServer(t, NewCommandHandler(&fakeNode{err: core.ErrNodeStopped}))
	client := NewUDSClient(socketPath, 5*time.Second)

	_, err := client.Status(context.Background())
	var info *ErrorInfo
	if !errors.As(err, &info) {
		t.Fatalf("error = %v, want *ErrorInfo", err)
	}
	if info.Code != ErrCodeInternalError {
		t.Errorf("code = %d, want %d", info.Code, ErrCodeInternalError)
	}
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "missing.sock"), 1*time.Second)

	_, err := client.Connect(context.Background())
	if !errors.Is(err, core.ErrDaemonNotRunning) {
		t.Errorf("error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	socketPath, _, _ := startServer(t, NewCommandHandler(&fakeNode{}))

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			client := NewUDSClient(socketPath, 5*time.Second)
			_, err := client.Reset(context.Background())
			errCh <- err
		}()
	}

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("client %d failed: %v", i, err)
		}
	}
}

func TestUDSServer_Shutdown(t *testing.T) {
	handler := NewCommandHandler(&fakeNode{})
	stopped := make(chan struct{})
	handler.SetShutdownFunc(func() { close(stopped) })
	socketPath, _, _ := startServer(t, handler)

	resp, err := NewUDSClient(socketPath, 5*time.Second).Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Error("shutdown func not called")
	}
}

func TestNewUDSClient_DefaultTimeout(t *testing.T) {
	client := NewUDSClient("/tmp/test.sock", 0)
	if client.timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", client.timeout)
	}

	client2 := NewUDSClient("/tmp/test.sock", 5*time.Second)
	if client2.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client2.timeout)
	}
}

// stalledNode never finishes Connect until its context ends, like a node
// whose loop has stopped draining requests.
type stalledNode struct {
	fakeNode
}

func (s *stalledNode) Connect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestUDSServer_RequestTimeout(t *testing.T) {
	socketPath, _, _ := startServerTimeout(t, NewCommandHandler(&stalledNode{}), 50*time.Millisecond)
	client := NewUDSClient(socketPath, 5*time.Second)

	start := time.Now()
	resp, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected error for stalled node")
	}
	if !strings.Contains(resp.Error.Message, context.DeadlineExceeded.Error()) {
		t.Errorf("message = %q, want deadline exceeded", resp.Error.Message)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("reply took %v, want about the request timeout", elapsed)
	}
}

func TestNewUDSServer_DefaultRequestTimeout(t *testing.T) {
	server := NewUDSServer("/tmp/test.sock", nil, 0)
	if server.requestTimeout != DefaultRequestTimeout {
		t.Errorf("request timeout = %v, want %v", server.requestTimeout, DefaultRequestTimeout)
	}
}

func TestUDSClient_Console(t *testing.T) {
	n := &fakeNode{}
	n.snap.IP = core.IPv4Addr{192, 168, 1, 112}
	n.snap.State = "Idle"
	socketPath, _, _ := startServer(t, NewCommandHandler(n))
	client := NewUDSClient(socketPath, 5*time.Second)

	in := strings.NewReader("STATUS\n\nSET IP 10 0 0 5\nBOGUS\n{\"method\":\"node_reset\"}\nPUBLISH sensors/t 21.5 C\n")
	var out bytes.Buffer
	if err := client.Console(context.Background(), in, &out); err != nil {
		t.Fatalf("Console failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"192.168.1.112", "Idle", "Enter a valid command"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if got := strings.Count(text, "Enter a valid command"); got != 2 {
		t.Errorf("invalid command replies = %d, want 2", got)
	}
	if got := strings.Count(text, "OK\n"); got != 2 {
		t.Errorf("OK replies = %d, want 2", got)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	want := []string{"Status", "SetIP", "Publish"}
	if strings.Join(n.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", n.calls, want)
	}
	if n.topic != "sensors/t" || string(n.data) != "21.5 C" {
		t.Errorf("publish = %q %q, want sensors/t \"21.5 C\"", n.topic, n.data)
	}
}

func TestUDSClient_ConsoleDaemonUnreachable(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "missing.sock"), 1*time.Second)

	err := client.Console(context.Background(), strings.NewReader("STATUS\n"), &bytes.Buffer{})
	if !errors.Is(err, core.ErrDaemonNotRunning) {
		t.Errorf("error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestUDSServer_RawConnection(t *testing.T) {
	socketPath, _, _ := startServer(t, NewCommandHandler(&fakeNode{err: core.ErrNotConnected}))

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)

	readLine := func() string {
		t.Helper()
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return line
	}

	// Malformed JSON gets a parse error and the connection stays usable.
	conn.Write([]byte("{not json\n"))
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(readLine()), &resp); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeParseError {
		t.Fatalf("error = %+v, want code %d", resp.Error, ErrCodeParseError)
	}

	// Console replies end with an empty line.
	conn.Write([]byte("CONNECT MQTT\n"))
	if line := readLine(); !strings.HasPrefix(line, "Error: ") || !strings.Contains(line, "not active") {
		t.Errorf("reply = %q, want not connected error", line)
	}
	if line := readLine(); line != "\n" {
		t.Errorf("terminator = %q, want empty line", line)
	}

	conn.Write([]byte("HELLO\n"))
	if line := readLine(); !strings.HasPrefix(line, "Enter a valid command") {
		t.Errorf("reply = %q, want invalid command", line)
	}
	if line := readLine(); line != "\n" {
		t.Errorf("terminator = %q, want empty line", line)
	}
}
