package toolclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"deskbroker/internal/shared/async"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

const defaultCallTimeout = 30 * time.Second

// ServerInfo identifies a tool server's implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities is the server's advertised capability set, passed
// through opaquely.
type ServerCapabilities map[string]any

// NotificationHandler receives server-initiated notifications (messages
// with a method but no id).
type NotificationHandler func(method string, params map[string]any)

// Client speaks JSON-RPC 2.0 to one tool server process over its stdio
// pipes, correlating requests by ID.
type Client struct {
	name    string
	process *ProcessManager
	logger  *logging.Logger
	idGen   *RequestIDGenerator

	mu                  sync.Mutex
	pendingCalls        map[string]chan *Response
	notificationHandler NotificationHandler
	serverInfo          *ServerInfo
	capabilities        ServerCapabilities
	initialized         bool
}

func NewClient(name string, process *ProcessManager) *Client {
	return &Client{
		name:         name,
		process:      process,
		logger:       logging.NewComponentLogger("ToolClient"),
		idGen:        NewRequestIDGenerator(),
		pendingCalls: make(map[string]chan *Response),
	}
}

func (c *Client) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationHandler = h
}

// Start spawns the underlying process, begins the read loop, and runs
// the initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	if err := c.process.Start(ctx); err != nil {
		return brokerrors.Wrap(brokerrors.KindTransport, err, fmt.Sprintf("spawn tool server %q", c.name))
	}
	async.Go(c.logger, "toolclient.readLoop."+c.name, c.readLoop)
	return c.initialize(ctx)
}

func (c *Client) Stop() error {
	return c.process.Stop(time.Second)
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": MCPProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "deskbroker", "version": "1"},
	}

	resp, err := c.sendRequest(ctx, "initialize", params)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return brokerrors.New(brokerrors.KindProtocol, resp.Error.Error())
	}

	result, _ := resp.Result.(map[string]any)
	if info, ok := result["serverInfo"].(map[string]any); ok {
		c.mu.Lock()
		c.serverInfo = &ServerInfo{
			Name:    fmt.Sprint(info["name"]),
			Version: fmt.Sprint(info["version"]),
		}
		c.mu.Unlock()
	}
	if caps, ok := result["capabilities"].(map[string]any); ok {
		c.mu.Lock()
		c.capabilities = ServerCapabilities(caps)
		c.mu.Unlock()
	}

	if err := c.sendNotification("notifications/initialized", nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// ListTools calls tools/list and returns the raw tool schemas.
func (c *Client) ListTools(ctx context.Context) ([]map[string]any, error) {
	resp, err := c.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, brokerrors.New(brokerrors.KindProtocol, resp.Error.Error())
	}
	result, _ := resp.Result.(map[string]any)
	rawTools, _ := result["tools"].([]any)
	tools := make([]map[string]any, 0, len(rawTools))
	for _, rt := range rawTools {
		if m, ok := rt.(map[string]any); ok {
			tools = append(tools, m)
		}
	}
	return tools, nil
}

// ToolCallResult is the parsed result of a tools/call invocation.
type ToolCallResult struct {
	Text    string
	IsError bool
}

// CallTool invokes tools/call with name and arguments, returning the
// concatenated text content.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (ToolCallResult, error) {
	resp, err := c.sendRequest(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return ToolCallResult{}, err
	}
	if resp.IsError() {
		return ToolCallResult{}, brokerrors.New(brokerrors.KindProtocol, resp.Error.Error())
	}

	result, _ := resp.Result.(map[string]any)
	isError, _ := result["isError"].(bool)
	content, _ := result["content"].([]any)

	text := ""
	for _, block := range content {
		m, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["text"].(string); ok {
			text += s
		}
	}
	return ToolCallResult{Text: text, IsError: isError}, nil
}

func (c *Client) sendRequest(ctx context.Context, method string, params map[string]any) (*Response, error) {
	id := strconv.FormatInt(c.idGen.Next(), 10)
	req := NewRequest(id, method, params)

	ch := make(chan *Response, 1)
	c.mu.Lock()
	c.pendingCalls[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingCalls, id)
		c.mu.Unlock()
	}()

	if err := c.writeLine(req); err != nil {
		return nil, err
	}

	timeout := defaultCallTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, brokerrors.Wrap(brokerrors.KindTimeout, ctx.Err(), fmt.Sprintf("tool call %q timed out", method))
	case <-time.After(timeout):
		return nil, brokerrors.New(brokerrors.KindTimeout, fmt.Sprintf("tool call %q timed out after %s", method, timeout))
	}
}

func (c *Client) sendNotification(method string, params map[string]any) error {
	return c.writeLine(NewNotification(method, params))
}

func (c *Client) writeLine(req *Request) error {
	data, err := Marshal(req)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "marshal jsonrpc request")
	}
	data = append(data, '\n')
	if _, err := c.process.stdin.Write(data); err != nil {
		return brokerrors.Wrap(brokerrors.KindTransport, err, "write to tool server stdin")
	}
	return nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.process.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		c.handleLine(scanner.Bytes())
	}
}

type rawMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *RPCError      `json:"error,omitempty"`
}

func (c *Client) handleLine(line []byte) {
	var msg rawMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		c.logger.Warn("discarding unparsable line from %q: %v", c.name, err)
		return
	}

	if msg.Method != "" {
		c.mu.Lock()
		handler := c.notificationHandler
		c.mu.Unlock()
		if handler != nil {
			handler(msg.Method, msg.Params)
		}
		return
	}

	key := idKey(msg.ID)
	c.mu.Lock()
	ch, ok := c.pendingCalls[key]
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- &Response{JSONRPC: msg.JSONRPC, ID: msg.ID, Result: msg.Result, Error: msg.Error}
}

func idKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

func (c *Client) GetServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

func (c *Client) GetCapabilities() ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}
