// Package registry resolves an application name to a tool-server
// descriptor via a cache/local-index/remote cascade with negative
// caching, grounded on the teacher's MCP registry's staged-lookup shape
// but built around app-to-server discovery rather than process
// lifecycle.
package registry

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"deskbroker/internal/model"
	"deskbroker/internal/observability"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

const (
	freshnessWindow   = 7 * 24 * time.Hour
	remoteQueryBudget = 10 * time.Second
	localIndexLimit   = 10
	cacheSize         = 256
)

// Store is the subset of *store.Store the resolver needs, kept as an
// interface so tests can substitute a fake without a cgo dependency.
type Store interface {
	GetCacheEntry(ctx context.Context, appName string) (*model.RegistryCacheEntry, error)
	SaveCacheEntry(ctx context.Context, entry model.RegistryCacheEntry) error
	SearchLocalIndex(ctx context.Context, query string, limit int) ([]model.ToolServerDescriptor, error)
}

// Resolver implements the C2 cascade: in-process LRU -> Store cache ->
// local index -> parallel remote registries -> negative cache.
type Resolver struct {
	store     Store
	cache     *lru.Cache[string, model.RegistryCacheEntry]
	primary   RemoteClient
	secondary RemoteClient
	breakers  *brokerrors.CircuitBreakerManager
	log       *logging.Logger
	now       func() time.Time
}

// Option customises resolver construction.
type Option func(*Resolver)

func WithPrimaryRegistry(c RemoteClient) Option   { return func(r *Resolver) { r.primary = c } }
func WithSecondaryRegistry(c RemoteClient) Option { return func(r *Resolver) { r.secondary = c } }
func WithClock(now func() time.Time) Option       { return func(r *Resolver) { r.now = now } }

func New(store Store, opts ...Option) *Resolver {
	cache, _ := lru.New[string, model.RegistryCacheEntry](cacheSize)
	r := &Resolver{
		store:    store,
		cache:    cache,
		breakers: brokerrors.NewCircuitBreakerManager(brokerrors.DefaultCircuitBreakerConfig()),
		log:      logging.NewComponentLogger("RegistryResolver"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best tool-server descriptor for appName, or nil if
// none is known. A nil, nil result is a legitimate "no tools for this
// app" outcome, not a failure.
func (r *Resolver) Resolve(ctx context.Context, appName string) (descriptor *model.ToolServerDescriptor, err error) {
	ctx, span := observability.StartSpan(ctx, observability.TraceSpanRegistryResolve,
		attribute.String(observability.TraceAttrAppName, appName))
	defer func() { observability.MarkSpanResult(span, err); span.End() }()

	normalized := normalize(appName)

	if entry, ok := r.cache.Get(normalized); ok && r.fresh(entry) {
		return decodeCacheEntry(entry)
	}

	if entry, err := r.store.GetCacheEntry(ctx, normalized); err != nil {
		r.log.Warn("cache lookup failed for %q: %v", normalized, err)
	} else if entry != nil && r.fresh(*entry) {
		r.cache.Add(normalized, *entry)
		return decodeCacheEntry(*entry)
	}

	variants := nameVariants(normalized)

	if descriptor, found := r.searchLocalIndex(ctx, normalized, variants); found {
		r.persist(ctx, normalized, model.SourceLocalIndex, descriptor)
		return &descriptor, nil
	}

	if descriptor, found := r.searchRemote(ctx, normalized, variants); found {
		r.persist(ctx, normalized, descriptor.Source, descriptor)
		return &descriptor, nil
	}

	r.persist(ctx, normalized, model.SourceLocalIndex, model.ToolServerDescriptor{ServerName: model.NotFoundSentinel})
	return nil, nil
}

func (r *Resolver) fresh(entry model.RegistryCacheEntry) bool {
	return r.now().Sub(entry.CachedAt) <= freshnessWindow
}

func (r *Resolver) searchLocalIndex(ctx context.Context, normalized string, variants []string) (model.ToolServerDescriptor, bool) {
	var candidates []model.ToolServerDescriptor
	for _, variant := range variants {
		found, err := r.store.SearchLocalIndex(ctx, variant, localIndexLimit)
		if err != nil {
			r.log.Warn("local index search failed for %q: %v", variant, err)
			continue
		}
		candidates = append(candidates, found...)
	}
	return bestCandidate(candidates, normalized)
}

func (r *Resolver) searchRemote(ctx context.Context, normalized string, variants []string) (model.ToolServerDescriptor, bool) {
	budgetCtx, cancel := context.WithTimeout(ctx, remoteQueryBudget)
	defer cancel()

	var primaryResults, secondaryResults []model.ToolServerDescriptor
	group, gctx := errgroup.WithContext(budgetCtx)

	if r.primary != nil {
		group.Go(func() error {
			results, err := r.queryWithBreaker(gctx, "primary-registry", r.primary, variants)
			primaryResults = results
			if err != nil {
				r.log.Warn("primary registry query failed: %v", err)
			}
			return nil
		})
	}
	if r.secondary != nil {
		group.Go(func() error {
			results, err := r.queryWithBreaker(gctx, "secondary-registry", r.secondary, variants)
			secondaryResults = results
			if err != nil {
				r.log.Warn("secondary registry query failed: %v", err)
			}
			return nil
		})
	}
	_ = group.Wait()

	candidates := append(tagSource(primaryResults, model.SourcePrimaryRegistry), tagSource(secondaryResults, model.SourceSecondaryRegistry)...)
	return bestCandidate(candidates, normalized)
}

func (r *Resolver) queryWithBreaker(ctx context.Context, breakerName string, client RemoteClient, variants []string) ([]model.ToolServerDescriptor, error) {
	breaker := r.breakers.Get(breakerName)
	return brokerrors.ExecuteFunc(breaker, ctx, func(ctx context.Context) ([]model.ToolServerDescriptor, error) {
		var all []model.ToolServerDescriptor
		for _, variant := range variants {
			results, err := client.Search(ctx, variant)
			if err != nil {
				return all, err
			}
			all = append(all, results...)
		}
		return all, nil
	})
}

func tagSource(descriptors []model.ToolServerDescriptor, source model.RegistrySource) []model.ToolServerDescriptor {
	for i := range descriptors {
		descriptors[i].Source = source
	}
	return descriptors
}

func (r *Resolver) persist(ctx context.Context, appName string, source model.RegistrySource, descriptor model.ToolServerDescriptor) {
	descriptor.Source = source
	payload, err := json.Marshal(descriptor)
	if err != nil {
		r.log.Warn("marshal descriptor for cache failed: %v", err)
		return
	}
	entry := model.RegistryCacheEntry{
		AppName:    appName,
		Source:     source,
		ServerName: descriptor.ServerName,
		ServerJSON: payload,
		CachedAt:   r.now(),
	}
	r.cache.Add(appName, entry)
	if err := r.store.SaveCacheEntry(ctx, entry); err != nil {
		r.log.Warn("persist cache entry for %q failed: %v", appName, err)
	}
}

func decodeCacheEntry(entry model.RegistryCacheEntry) (*model.ToolServerDescriptor, error) {
	if entry.ServerName == model.NotFoundSentinel {
		return nil, nil
	}
	var descriptor model.ToolServerDescriptor
	if err := json.Unmarshal(entry.ServerJSON, &descriptor); err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "decode cached descriptor")
	}
	return &descriptor, nil
}

func normalize(appName string) string {
	return nameVariants(appName)[0]
}
