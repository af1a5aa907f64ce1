// Package command implements command channels.
package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"firestige.xyz/ethmqtt/internal/log"
)

// DefaultRequestTimeout bounds one request when the server is created
// without a timeout.
const DefaultRequestTimeout = 5 * time.Second

// consoleID is the command ID of requests that arrive as console lines.
const consoleID = "console"

// UDSServer serves the node control channel on a Unix Domain Socket.
//
// Every line is one request. A line starting with '{' is a JSON-RPC 2.0
// request answered with one JSON line. Any other line is a console command
// (see ParseLine) answered with plain text closed by an empty line.
type UDSServer struct {
	socketPath     string
	handler        *CommandHandler
	requestTimeout time.Duration
	listener       net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewUDSServer creates a server. Each request may wait on the node for at
// most requestTimeout.
func NewUDSServer(socketPath string, handler *CommandHandler, requestTimeout time.Duration) *UDSServer {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &UDSServer{
		socketPath:     socketPath,
		handler:        handler,
		requestTimeout: requestTimeout,
		conns:          make(map[net.Conn]struct{}),
	}
}

// Start listens and serves until ctx is cancelled.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	s.listener = listener

	// Owner only: the socket can reconfigure the node
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"socket":          s.socketPath,
		"request_timeout": s.requestTimeout.String(),
	}).Info("Control socket listening")

	go s.acceptLoop(ctx)

	<-ctx.Done()
	return s.Stop()
}

func (s *UDSServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			log.GetLogger().WithError(err).Error("Failed to accept control connection")
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *UDSServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// serveConn answers requests on conn until the peer hangs up or a reply
// cannot be written.
func (s *UDSServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var reply []byte
		if line[0] == '{' {
			reply = s.serveJSON(ctx, line)
		} else {
			reply = []byte(s.serveConsole(ctx, string(line)) + "\n")
		}
		if _, err := conn.Write(reply); err != nil {
			log.GetLogger().WithError(err).Warn("Failed to write control reply")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.GetLogger().WithError(err).Debug("Control connection closed with error")
	}
}

// serveJSON answers one JSON-RPC request with one newline-terminated line.
func (s *UDSServer) serveJSON(ctx context.Context, line []byte) []byte {
	var req JSONRPCRequest
	resp := JSONRPCResponse{JSONRPC: "2.0"}
	if err := json.Unmarshal(line, &req); err != nil {
		resp.Error = &ErrorInfo{Code: ErrCodeParseError, Message: fmt.Sprintf("parse error: %v", err)}
	} else {
		result := s.handle(ctx, Command{Method: req.Method, Params: req.Params, ID: fmt.Sprint(req.ID)})
		resp.ID, resp.Result, resp.Error = req.ID, result.Result, result.Error
	}

	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ErrorInfo{Code: ErrCodeInternalError, Message: err.Error()},
		})
	}
	return append(out, '\n')
}

// serveConsole answers one console line. The reply always ends in a newline.
func (s *UDSServer) serveConsole(ctx context.Context, line string) string {
	method, params, err := ParseLine(line)
	if err != nil {
		return fmt.Sprintf("Enter a valid command: %v\n", err)
	}

	cmd := Command{Method: method, ID: consoleID}
	if params != nil {
		if cmd.Params, err = json.Marshal(params); err != nil {
			return fmt.Sprintf("Error: %v\n", err)
		}
	}

	resp := s.handle(ctx, cmd)
	if resp.Error != nil {
		return fmt.Sprintf("Error: %s\n", resp.Error.Message)
	}
	if status, ok := resp.Result.(StatusResult); ok {
		var b strings.Builder
		WriteStatus(&b, &status)
		return b.String()
	}
	return "OK\n"
}

// handle runs one command with the request deadline so a stalled node loop
// cannot hold the connection.
func (s *UDSServer) handle(ctx context.Context, cmd Command) Response {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	resp := s.handler.Handle(ctx, cmd)
	if resp.Error != nil {
		log.GetLogger().WithFields(map[string]interface{}{
			"method": cmd.Method,
			"code":   resp.Error.Code,
		}).Warn(resp.Error.Message)
	}
	return resp
}

// Stop closes the listener and every connection and removes the socket file.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	log.GetLogger().Info("Control socket closed")
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
