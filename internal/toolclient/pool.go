package toolclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

const evictionGrace = time.Second

// pooledClient wraps one pooled Client. Its circuit breaker is kept
// separately in Pool.breakers, keyed by server name, and is not removed
// on eviction.
type pooledClient struct {
	client *Client
}

// Pool owns every running tool-server child process, keyed by server
// name, each guarded by its own circuit breaker so a crash-looping
// server stops being respawned on every call.
type Pool struct {
	mu       sync.Mutex
	clients  map[string]*pooledClient
	breakers *brokerrors.CircuitBreakerManager
	log      *logging.Logger
}

func NewPool() *Pool {
	return &Pool{
		clients:  make(map[string]*pooledClient),
		breakers: brokerrors.NewCircuitBreakerManager(brokerrors.DefaultCircuitBreakerConfig()),
		log:      logging.NewComponentLogger("ToolClientPool"),
	}
}

// Acquire returns a live, initialized client for the descriptor's
// server, spawning or respawning it as needed.
func (p *Pool) Acquire(ctx context.Context, descriptor model.ToolServerDescriptor) (*Client, error) {
	breaker := p.breakers.Get(descriptor.ServerName)
	return brokerrors.ExecuteFunc(breaker, ctx, func(ctx context.Context) (*Client, error) {
		return p.acquireLocked(ctx, descriptor)
	})
}

func (p *Pool) acquireLocked(ctx context.Context, descriptor model.ToolServerDescriptor) (*Client, error) {
	p.mu.Lock()
	existing, ok := p.clients[descriptor.ServerName]
	p.mu.Unlock()

	if ok && existing.client.process.IsRunning() {
		return existing.client, nil
	}
	if ok {
		p.evict(descriptor.ServerName)
	}

	command, args, err := parseInvocation(descriptor.Invocation)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindValidation, err, fmt.Sprintf("invocation for %q", descriptor.ServerName))
	}

	process := NewProcessManager(ProcessConfig{Command: command, Args: args})
	client := NewClient(descriptor.ServerName, process)
	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.clients[descriptor.ServerName] = &pooledClient{client: client}
	p.mu.Unlock()

	return client, nil
}

// parseInvocation splits a shell-command word list into program and a
// single trailing argument string, per the head+tail contract.
func parseInvocation(words []string) (string, []string, error) {
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty invocation")
	}
	if len(words) == 1 {
		return words[0], nil, nil
	}
	return words[0], []string{strings.Join(words[1:], " ")}, nil
}

// Evict disposes a named client's process, waiting up to 1s.
func (p *Pool) Evict(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evict(name)
}

func (p *Pool) evict(name string) {
	pooled, ok := p.clients[name]
	if !ok {
		return
	}
	delete(p.clients, name)
	if err := pooled.client.Stop(); err != nil {
		p.log.Warn("evicting %q: %v", name, err)
	}
}

// Shutdown evicts every pooled client, bounding total wait.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			p.Evict(name)
		}(name)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(evictionGrace * 2):
		p.log.Warn("shutdown timed out waiting for all tool clients to evict")
	}
}

// Len reports how many clients are pooled, for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
