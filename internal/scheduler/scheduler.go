// Package scheduler drives the broker's three durable timers: the
// foreground-app poll that keeps the ring in sync with whatever the
// user is looking at, the interaction sweep, and the background
// workflow pipeline that learns from usage and reorders slots.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	"deskbroker/internal/observability"
	"deskbroker/internal/registry"
	"deskbroker/internal/ring"
	"deskbroker/internal/shared/async"
	"deskbroker/internal/shared/logging"
	"deskbroker/internal/suggester"
)

const (
	foregroundPollInterval = 500 * time.Millisecond
	interactionSweepPeriod = 5 * time.Minute
	workflowFirstDelay     = time.Minute
	workflowPeriod         = 15 * time.Minute
	shutdownGrace          = 2 * time.Second
)

// ForegroundInfo is one snapshot of the OS collaborator's notion of the
// focused window.
type ForegroundInfo struct {
	ProcessName string
	WindowTitle string
	PID         int
}

// OSCollaborator reports which app currently has focus.
type OSCollaborator interface {
	ForegroundApp(ctx context.Context) (ForegroundInfo, error)
}

// ClusterMatch is a candidate cluster for a workflow embedding, decoupled
// from the store package's own cgo-gated type.
type ClusterMatch struct {
	Cluster  model.WorkflowCluster
	Distance float64
}

// Store is the subset of *store.Store the scheduler and workflow
// pipeline need.
type Store interface {
	TouchApp(ctx context.Context, appName string) error
	SweepExpiredInteractions(ctx context.Context, now time.Time) (int64, error)
	DistinctActiveApps(ctx context.Context, since time.Time) ([]string, error)
	RecentInteractions(ctx context.Context, appName string, since time.Time) ([]model.InteractionEvent, error)
	SaveWorkflowWithEmbedding(ctx context.Context, wf model.SemanticWorkflow, emb model.WorkflowEmbedding) error
	NearestClusters(ctx context.Context, appName string, embedding []float32, limit int) ([]ClusterMatch, error)
	CreateCluster(ctx context.Context, appName string, label int, representative string) (model.WorkflowCluster, error)
	IncrementClusterCount(ctx context.Context, clusterID string) error
	ReorderSlots(ctx context.Context, appName string, newOrder [8]int) error
	LoadSlots(ctx context.Context, appName string) ([]model.RingSlot, error)
}

// Scheduler owns the three cooperative timers and coordinates the
// components each one drives.
type Scheduler struct {
	os        OSCollaborator
	ring      *ring.Manager
	resolver  *registry.Resolver
	suggester *suggester.Suggester
	store     Store
	embedder  *llm.Embedder
	helper    *llm.Helper
	log       *logging.Logger
	metrics   *observability.BrokerMetrics

	mu      sync.Mutex
	lastApp string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(os OSCollaborator, ringMgr *ring.Manager, resolver *registry.Resolver, sugg *suggester.Suggester, store Store, embedder *llm.Embedder, helper *llm.Helper) *Scheduler {
	return &Scheduler{
		os:        os,
		ring:      ringMgr,
		resolver:  resolver,
		suggester: sugg,
		store:     store,
		embedder:  embedder,
		helper:    helper,
		log:       logging.NewComponentLogger("Scheduler"),
	}
}

// WithMetrics attaches a metrics sink the workflow pipeline increments as
// it processes each app. Optional: a nil or never-called WithMetrics
// leaves workflow counting off, same as before this existed.
func (s *Scheduler) WithMetrics(metrics *observability.BrokerMetrics) *Scheduler {
	s.metrics = metrics
	return s
}

// Start launches the three timers as panic-isolated goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	async.Go(s.log, "scheduler.foregroundPoll", func() { defer s.wg.Done(); s.runForegroundPoll(ctx) })
	async.Go(s.log, "scheduler.interactionSweep", func() { defer s.wg.Done(); s.runInteractionSweep(ctx) })
	async.Go(s.log, "scheduler.workflowPipeline", func() { defer s.wg.Done(); s.runWorkflowPipeline(ctx) })
}

// Stop cancels every timer and waits up to shutdownGrace for inflight
// work to finish before returning.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.log.Warn("scheduler shutdown timed out waiting for timers to stop")
	}
}

func (s *Scheduler) runForegroundPoll(ctx context.Context) {
	ticker := time.NewTicker(foregroundPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	info, err := s.os.ForegroundApp(ctx)
	if err != nil {
		s.log.Warn("foreground app lookup failed: %v", err)
		return
	}

	appName := normalizeAppName(info.ProcessName)
	if appName == "" {
		return
	}

	s.mu.Lock()
	unchanged := appName == s.lastApp
	s.lastApp = appName
	s.mu.Unlock()
	if unchanged {
		return
	}

	if s.metrics != nil {
		s.metrics.ForegroundTransitions.WithLabelValues("poll").Inc()
	}
	if err := s.transition(ctx, appName, info); err != nil {
		s.log.Warn("transition to %q failed: %v", appName, err)
	}
}

func (s *Scheduler) transition(ctx context.Context, appName string, info ForegroundInfo) error {
	if err := s.ring.Load(ctx, appName); err != nil {
		return err
	}

	hasSlots := false
	for i := 0; i < 8; i++ {
		if _, ok := s.ring.Get(i); ok {
			hasSlots = true
			break
		}
	}
	if hasSlots {
		if err := s.store.TouchApp(ctx, appName); err != nil {
			s.log.Warn("touch app failed for %q: %v", appName, err)
		}
		return nil
	}

	descriptor, err := s.resolver.Resolve(ctx, appName)
	if err != nil {
		return err
	}

	specs := s.suggester.Suggest(ctx, appName, descriptor)
	toolServerName := ""
	if descriptor != nil {
		toolServerName = descriptor.ServerName
	}

	displayName := info.ProcessName
	if displayName == "" {
		displayName = appName
	}
	return s.ring.Save(ctx, appName, displayName, specs, toolServerName)
}

func normalizeAppName(processName string) string {
	name := strings.ToLower(strings.TrimSpace(processName))
	name = strings.TrimSuffix(name, ".exe")
	return name
}

func (s *Scheduler) runInteractionSweep(ctx context.Context) {
	ticker := time.NewTicker(interactionSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.store.SweepExpiredInteractions(ctx, time.Now()); err != nil {
				s.log.Warn("interaction sweep failed: %v", err)
			} else if n > 0 {
				s.log.Info("swept %d expired interactions", n)
			}
		}
	}
}

func (s *Scheduler) runWorkflowPipeline(ctx context.Context) {
	timer := time.NewTimer(workflowFirstDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.processWorkflows(ctx)
			timer.Reset(workflowPeriod)
		}
	}
}
