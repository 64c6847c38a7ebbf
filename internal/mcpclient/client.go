// Package mcpclient connects to a single MCP server over stdio, SSE, or
// streamable-http and exposes it as an mcporchestrator.Target, so the
// orchestrator can route requests onto a real mcp-go transport instead of
// a test fake.
package mcpclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/chatbridge/internal/mcporchestrator"
)

const (
	healthCheckTimeout   = 10 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// Config describes how to reach one MCP server.
type Config struct {
	Name       string
	Transport  string // "stdio", "sse", or "streamable-http"
	Command    string
	Args       []string
	Env        map[string]string
	URL        string
	Headers    map[string]string
	TimeoutSec int
}

// Client wraps a connected mcp-go client as an mcporchestrator.Target.
// A failed HealthCheck waits out an exponential backoff and pings the
// same mcp-go client again, bounded by maxReconnectAttempts, rather than
// running its own background loop — the orchestrator already drives
// HealthCheck on its own schedule. The client and its transport are not
// recreated.
type Client struct {
	name      string
	transport string
	timeout   time.Duration

	mu                sync.Mutex
	client            *mcpclient.Client
	reconnectAttempts int
	lastErr           string
}

// Connect creates the appropriate mcp-go client, starts its transport
// where required, performs the MCP initialize handshake, and discovers
// its tools.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := newMCPClient(cfg.Transport, cfg.Command, cfg.Args, cfg.Env, cfg.URL, cfg.Headers)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: create client: %w", err)
	}

	if cfg.Transport != "stdio" {
		if err := mc.Start(ctx); err != nil {
			_ = mc.Close()
			return nil, fmt.Errorf("mcpclient: start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "chatbridge", Version: "1.0.0"}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("mcpclient: initialize: %w", err)
	}

	if _, err := mc.ListTools(ctx, mcpgo.ListToolsRequest{}); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("mcpclient: list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	return &Client{
		name:      cfg.Name,
		transport: cfg.Transport,
		timeout:   time.Duration(timeoutSec) * time.Second,
		client:    mc,
	}, nil
}

func newMCPClient(transportType, command string, args []string, env map[string]string, url string, headers map[string]string) (*mcpclient.Client, error) {
	switch transportType {
	case "stdio":
		return mcpclient.NewStdioMCPClient(command, mapToEnvSlice(env), args...)
	case "sse":
		var opts []transport.ClientOption
		if len(headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(headers))
		}
		return mcpclient.NewSSEMCPClient(url, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		return mcpclient.NewStreamableHttpClient(url, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
}

// ProcessRequest implements mcporchestrator.Target by calling the tool
// named req.Method with req.Params as its arguments.
func (c *Client) ProcessRequest(ctx context.Context, req mcporchestrator.Request) (mcporchestrator.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := mcpgo.CallToolRequest{}
	call.Params.Name = req.Method
	call.Params.Arguments = req.Params

	c.mu.Lock()
	mc := c.client
	c.mu.Unlock()

	result, err := mc.CallTool(ctx, call)
	if err != nil {
		return mcporchestrator.Response{ID: req.ID, Success: false, Error: &mcporchestrator.ResponseError{
			Code: "TOOL_CALL_FAILED", Message: err.Error(),
		}}, nil
	}

	text := joinToolContent(result)
	if result.IsError {
		return mcporchestrator.Response{ID: req.ID, Success: false, Error: &mcporchestrator.ResponseError{
			Code: "TOOL_ERROR", Message: text,
		}}, nil
	}
	return mcporchestrator.Response{ID: req.ID, Success: true, Result: map[string]any{"text": text}}, nil
}

func joinToolContent(result *mcpgo.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", c))
	}
	return strings.Join(parts, "\n")
}

// HealthCheck pings the server. A failed ping is followed by a second
// ping on the same client after an exponential backoff (2s, 4s, 8s, ...
// capped at 60s, growing with each consecutive failure); after
// maxReconnectAttempts consecutive failures it reports unhealthy without
// retrying. The backoff wait shares the healthCheckTimeout deadline, so a
// wait longer than that ends with the context's error.
func (c *Client) HealthCheck(ctx context.Context) (mcporchestrator.HealthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	c.mu.Lock()
	mc := c.client
	c.mu.Unlock()

	if err := mc.Ping(ctx); err == nil {
		c.mu.Lock()
		c.reconnectAttempts = 0
		c.lastErr = ""
		c.mu.Unlock()
		return mcporchestrator.HealthReport{Healthy: true, Score: 10.0}, nil
	} else if strings.Contains(strings.ToLower(err.Error()), "method not found") {
		// Servers that don't implement ping are still alive.
		return mcporchestrator.HealthReport{Healthy: true, Score: 10.0}, nil
	}

	return c.reconnect(ctx)
}

func (c *Client) reconnect(ctx context.Context) (mcporchestrator.HealthReport, error) {
	c.mu.Lock()
	if c.reconnectAttempts >= maxReconnectAttempts {
		c.mu.Unlock()
		return mcporchestrator.HealthReport{Healthy: false, Score: 0}, fmt.Errorf("mcpclient: %s: reconnect attempts exhausted", c.name)
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	select {
	case <-ctx.Done():
		return mcporchestrator.HealthReport{Healthy: false, Score: 0}, ctx.Err()
	case <-time.After(backoff):
	}

	c.mu.Lock()
	mc := c.client
	c.mu.Unlock()

	if err := mc.Ping(ctx); err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		return mcporchestrator.HealthReport{Healthy: false, Score: 3.0}, nil
	}

	c.mu.Lock()
	c.reconnectAttempts = 0
	c.lastErr = ""
	c.mu.Unlock()
	return mcporchestrator.HealthReport{Healthy: true, Score: 8.0}, nil
}

// Close shuts down the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}

func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	s := make([]string, 0, len(env))
	for k, v := range env {
		s = append(s, k+"="+v)
	}
	return s
}
