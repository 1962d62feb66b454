// Package core composes the broker's seven components into one value,
// handed into every transport handler and the scheduler instead of
// relying on package-level globals. It also hosts the small adapter
// types that let sibling packages talk to toolclient.Pool through their
// own narrow interfaces.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"deskbroker/internal/dispatch"
	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	"deskbroker/internal/observability"
	"deskbroker/internal/registry"
	"deskbroker/internal/ring"
	"deskbroker/internal/scheduler"
	"deskbroker/internal/shared/logging"
	"deskbroker/internal/store"
	"deskbroker/internal/suggester"
	"deskbroker/internal/toolclient"
)

// Config carries the external collaborators Core cannot construct for
// itself: where the database lives, how to reach the LLM helper and
// embedding service, and which script interpreter runs InlineScript.
type Config struct {
	DBPath                 string
	HelperBinary           string
	EmbeddingEndpoint      string
	EmbeddingAPIKey        string
	ScriptInterpreter      string
	ToolServerManifestPath string
	PrimaryRegistry        registry.RemoteClient
	SecondaryRegistry      registry.RemoteClient
}

// Core owns every long-lived component and is the single place that
// knows how they're wired together.
type Core struct {
	Store     *store.Store
	Resolver  *registry.Resolver
	Pool      *toolclient.Pool
	Suggester *suggester.Suggester
	Ring      *ring.Manager
	Dispatch  *dispatch.Dispatcher
	Scheduler *scheduler.Scheduler
	Metrics   *observability.BrokerMetrics
	Registry  *prometheus.Registry

	log *logging.Logger
}

// New opens the store and wires every component against it and against
// each other. The caller is responsible for calling Close when done.
func New(ctx context.Context, cfg Config, os scheduler.OSCollaborator, sender dispatch.KeySender, notifier dispatch.ResultNotifier) (*Core, error) {
	log := logging.NewComponentLogger("Core")

	db, err := store.Open(cfg.DBPath, logging.NewComponentLogger("Store"))
	if err != nil {
		return nil, err
	}

	seedLocalIndex(ctx, cfg.ToolServerManifestPath, db, log)

	resolver := registry.New(db,
		registry.WithPrimaryRegistry(cfg.PrimaryRegistry),
		registry.WithSecondaryRegistry(cfg.SecondaryRegistry),
	)

	pool := toolclient.NewPool()
	helper := llm.NewHelper(cfg.HelperBinary)
	embedder := llm.NewEmbedder(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey)
	sugg := suggester.New(helper)
	ringMgr := ring.New(db)

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewBrokerMetricsWithRegisterer(promRegistry)

	toolPool := &poolAdapter{pool: pool, db: db, metrics: metrics}
	instrumentedNotifier := &metricsNotifier{inner: notifier, metrics: metrics}
	dispatcher := dispatch.New(sender, toolPool, helper, cfg.ScriptInterpreter, db, instrumentedNotifier)

	sched := scheduler.New(os, ringMgr, resolver, sugg, &schedulerStoreAdapter{db}, embedder, helper).WithMetrics(metrics)

	return &Core{
		Store:     db,
		Resolver:  resolver,
		Pool:      pool,
		Suggester: sugg,
		Ring:      ringMgr,
		Dispatch:  dispatcher,
		Scheduler: sched,
		Metrics:   metrics,
		Registry:  promRegistry,
		log:       log,
	}, nil
}

// seedLocalIndex loads the tool-server manifest, if one is configured,
// and upserts its active servers into the local tool index so the
// registry cascade's local stage has data before any client ever
// dispatches a tool call. A missing or unreadable manifest is not
// fatal: the cascade simply falls through to the remote registries.
func seedLocalIndex(ctx context.Context, path string, index toolclient.LocalIndexStore, log *logging.Logger) {
	if path == "" {
		return
	}
	config, err := toolclient.NewConfigLoader().LoadFromPath(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("load tool-server manifest %q: %v", path, err)
		}
		return
	}
	if err := config.SeedLocalIndex(ctx, index); err != nil {
		log.Warn("seed local tool index from %q: %v", path, err)
	}
}

// metricsNotifier records dispatch outcomes and per-slot usage before
// forwarding to the caller's own ResultNotifier.
type metricsNotifier struct {
	inner   dispatch.ResultNotifier
	metrics *observability.BrokerMetrics
}

func (n *metricsNotifier) Notify(appName string, position int, ok bool, message string) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	n.metrics.DispatchOutcomes.WithLabelValues("unknown", outcome).Inc()
	if ok {
		n.metrics.RingSlotUsage.WithLabelValues(appName, strconv.Itoa(position)).Inc()
	}
	if n.inner != nil {
		n.inner.Notify(appName, position, ok, message)
	}
}

// Close shuts the tool-client pool down and closes the database,
// bounding both within the caller's usual process-exit budget.
func (c *Core) Close() error {
	c.Scheduler.Stop()
	c.Pool.Shutdown()
	return c.Store.Close()
}

// poolAdapter resolves a bare server name to the descriptor
// toolclient.Pool.Acquire needs by replaying the registry cache entry
// already persisted for appName, then adapts *toolclient.Client to the
// dispatch.ToolClient interface so the dispatch package never imports
// toolclient directly.
type poolAdapter struct {
	pool    *toolclient.Pool
	db      *store.Store
	metrics *observability.BrokerMetrics
}

func (a *poolAdapter) AcquireForApp(ctx context.Context, appName, serverName string) (dispatch.ToolClient, error) {
	entry, err := a.db.GetCacheEntry(ctx, appName)
	if err != nil {
		return nil, err
	}
	var descriptor model.ToolServerDescriptor
	if entry == nil || entry.ServerName != serverName {
		descriptor = model.ToolServerDescriptor{ServerName: serverName}
	} else if err := json.Unmarshal(entry.ServerJSON, &descriptor); err != nil {
		return nil, err
	}

	client, err := a.pool.Acquire(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.ActiveToolClients.Set(float64(a.pool.Len()))
	}
	return clientAdapter{client: client, serverName: descriptor.ServerName, metrics: a.metrics}, nil
}

type clientAdapter struct {
	client     *toolclient.Client
	serverName string
	metrics    *observability.BrokerMetrics
}

func (c clientAdapter) ListTools(ctx context.Context) ([]map[string]any, error) {
	return c.client.ListTools(ctx)
}

func (c clientAdapter) CallTool(ctx context.Context, name string, arguments map[string]any) (result dispatch.ToolCallResult, err error) {
	ctx, span := observability.StartSpan(ctx, observability.TraceSpanToolCall,
		attribute.String(observability.TraceAttrServer, c.serverName),
		attribute.String(observability.TraceAttrToolName, name),
	)
	start := time.Now()
	defer func() {
		observability.MarkSpanResult(span, err)
		span.End()
		if c.metrics != nil {
			outcome := "success"
			if err != nil || result.IsError {
				outcome = "error"
			}
			c.metrics.ToolCalls.WithLabelValues(c.serverName, outcome).Inc()
			c.metrics.ToolCallLatency.WithLabelValues(c.serverName).Observe(time.Since(start).Seconds())
		}
	}()

	raw, err := c.client.CallTool(ctx, name, arguments)
	if err != nil {
		return dispatch.ToolCallResult{}, err
	}
	result = dispatch.ToolCallResult{Text: raw.Text, IsError: raw.IsError}
	return result, nil
}

// schedulerStoreAdapter narrows *store.Store's cluster-candidate return
// type to scheduler.ClusterMatch, matching the decoupling already used
// by registry.Store and dispatch.ToolPool.
type schedulerStoreAdapter struct {
	db *store.Store
}

func (a *schedulerStoreAdapter) TouchApp(ctx context.Context, appName string) error {
	return a.db.TouchApp(ctx, appName)
}

func (a *schedulerStoreAdapter) SweepExpiredInteractions(ctx context.Context, now time.Time) (int64, error) {
	return a.db.SweepExpiredInteractions(ctx, now)
}

func (a *schedulerStoreAdapter) DistinctActiveApps(ctx context.Context, since time.Time) ([]string, error) {
	return a.db.DistinctActiveApps(ctx, since)
}

func (a *schedulerStoreAdapter) RecentInteractions(ctx context.Context, appName string, since time.Time) ([]model.InteractionEvent, error) {
	return a.db.RecentInteractions(ctx, appName, since)
}

func (a *schedulerStoreAdapter) SaveWorkflowWithEmbedding(ctx context.Context, wf model.SemanticWorkflow, emb model.WorkflowEmbedding) error {
	return a.db.SaveWorkflowWithEmbedding(ctx, wf, emb)
}

func (a *schedulerStoreAdapter) NearestClusters(ctx context.Context, appName string, embedding []float32, limit int) ([]scheduler.ClusterMatch, error) {
	candidates, err := a.db.NearestClusters(ctx, appName, embedding, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]scheduler.ClusterMatch, len(candidates))
	for i, c := range candidates {
		matches[i] = scheduler.ClusterMatch{Cluster: c.Cluster, Distance: c.Distance}
	}
	return matches, nil
}

func (a *schedulerStoreAdapter) CreateCluster(ctx context.Context, appName string, label int, representative string) (model.WorkflowCluster, error) {
	return a.db.CreateCluster(ctx, appName, label, representative)
}

func (a *schedulerStoreAdapter) IncrementClusterCount(ctx context.Context, clusterID string) error {
	return a.db.IncrementClusterCount(ctx, clusterID)
}

func (a *schedulerStoreAdapter) ReorderSlots(ctx context.Context, appName string, newOrder [8]int) error {
	return a.db.ReorderSlots(ctx, appName, newOrder)
}

func (a *schedulerStoreAdapter) LoadSlots(ctx context.Context, appName string) ([]model.RingSlot, error) {
	return a.db.LoadSlots(ctx, appName)
}
