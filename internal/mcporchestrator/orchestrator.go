package mcporchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes the orchestrator's background loops.
type Config struct {
	HealthCheckInterval       time.Duration
	MessageProcessingInterval time.Duration
	EnableLoadBalancing       bool
	EnableInterServerMessaging bool
	DefaultRoutingEnabled     bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:        DefaultHealthCheckInterval,
		MessageProcessingInterval:  DefaultMessageProcessingInterval,
		EnableLoadBalancing:        true,
		EnableInterServerMessaging: true,
		DefaultRoutingEnabled:      true,
	}
}

// Orchestrator registers MCP servers by type, routes requests to them,
// load-balances among healthy targets, probes health on a fixed
// interval, and (optionally) delivers a priority-ordered queue of
// inter-server messages.
type Orchestrator struct {
	name string
	cfg  Config
	now  func() time.Time

	mu           sync.RWMutex
	servers      map[string]*ServerRegistration
	routingRules map[string]*RoutingRule
	loadCounters map[string]int
	healthLog    map[string][]HealthRecord
	handlers     map[string]map[string]MessageHandlerFunc

	msgMu   sync.Mutex
	queue   []*InterServerMessage

	statsMu sync.Mutex
	stats   Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Orchestrator. name identifies it in routing metadata.
func New(name string, cfg Config) *Orchestrator {
	return &Orchestrator{
		name:         name,
		cfg:          cfg,
		now:          time.Now,
		servers:      make(map[string]*ServerRegistration),
		routingRules: make(map[string]*RoutingRule),
		loadCounters: make(map[string]int),
		healthLog:    make(map[string][]HealthRecord),
		handlers:     make(map[string]map[string]MessageHandlerFunc),
		stats:        Stats{StartedAt: time.Now()},
	}
}

// Start launches the health-check loop and, if enabled, the
// inter-server message processor. Both exit when ctx is cancelled or
// Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.healthCheckLoop(runCtx)
	}()

	if o.cfg.EnableInterServerMessaging {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.messageProcessorLoop(runCtx)
		}()
	}
}

// Stop cancels the background loops and waits for them to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// RegisterServer adds a server to the registry and, if default routing
// is enabled, wires a priority-10 prefix rule for well-known types.
func (o *Orchestrator) RegisterServer(reg *ServerRegistration) {
	now := o.now()
	reg.Health = HealthUnknown
	reg.RegisteredAt = now
	reg.LastActivity = now

	o.mu.Lock()
	o.servers[reg.Name] = reg
	o.mu.Unlock()

	slog.Info("mcporchestrator.server_registered", "server", reg.Name, "type", reg.Type)

	if o.cfg.DefaultRoutingEnabled {
		o.setupDefaultRoutingFor(reg)
	}
}

// UnregisterServer removes a server from the registry.
func (o *Orchestrator) UnregisterServer(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.servers[name]; !ok {
		return false
	}
	delete(o.servers, name)
	delete(o.loadCounters, name)
	delete(o.handlers, name)
	slog.Info("mcporchestrator.server_unregistered", "server", name)
	return true
}

// ListServers returns a snapshot of every registered server.
func (o *Orchestrator) ListServers() []*ServerRegistration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*ServerRegistration, 0, len(o.servers))
	for _, reg := range o.servers {
		out = append(out, reg)
	}
	return out
}

// GetServer returns one registered server by name.
func (o *Orchestrator) GetServer(name string) (*ServerRegistration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.servers[name]
	return reg, ok
}

// RegisterHandler wires a MessageHandlerFunc for the given server and
// message type, used by _deliver_message-equivalent dispatch.
func (o *Orchestrator) RegisterHandler(serverName, messageType string, fn MessageHandlerFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handlers[serverName] == nil {
		o.handlers[serverName] = make(map[string]MessageHandlerFunc)
	}
	o.handlers[serverName][messageType] = fn
}

func newMessageID() string { return uuid.NewString() }

// Stats returns a snapshot of orchestrator activity counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	s := o.stats
	o.statsMu.Unlock()

	o.mu.RLock()
	s.RoutingRulesCount = len(o.routingRules)
	historySize := 0
	for _, h := range o.healthLog {
		historySize += len(h)
	}
	s.HealthHistorySize = historySize
	o.mu.RUnlock()

	o.msgMu.Lock()
	s.MessageQueueSize = len(o.queue)
	o.msgMu.Unlock()

	return s
}

func (o *Orchestrator) incrRequestsRouted() {
	o.statsMu.Lock()
	o.stats.RequestsRouted++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incrMessagesProcessed() {
	o.statsMu.Lock()
	o.stats.MessagesProcessed++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incrHealthChecksPerformed() {
	o.statsMu.Lock()
	o.stats.HealthChecksPerformed++
	o.statsMu.Unlock()
}

func routingError(id, code, message string) Response {
	return Response{ID: id, Success: false, Error: &ResponseError{Code: code, Message: message}}
}

func serverUnavailable(id, name string) Response {
	return routingError(id, "SERVER_UNAVAILABLE", fmt.Sprintf("server %q is not available", name))
}
