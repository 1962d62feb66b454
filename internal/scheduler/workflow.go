package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel/attribute"

	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	"deskbroker/internal/observability"
)

const (
	minRecentInteractions = 3
	interactionWindow     = 15 * time.Minute
	clusterJoinEpsilon    = 0.3
	nearestClusterLimit   = 5
	usageHalfLifeDays     = 30
)

type analyzeResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// processWorkflows summarises each active app's recent interactions into
// a SemanticWorkflow, embeds it, assigns it to a cluster, and reorders
// the app's ring by the resulting composite scores.
func (s *Scheduler) processWorkflows(ctx context.Context) {
	since := time.Now().Add(-interactionWindow)
	apps, err := s.store.DistinctActiveApps(ctx, since)
	if err != nil {
		s.log.Warn("distinct active apps lookup failed: %v", err)
		return
	}

	for _, appName := range apps {
		if err := s.processAppWorkflow(ctx, appName, since); err != nil {
			s.log.Warn("workflow processing failed for %q: %v", appName, err)
		}
	}
}

func (s *Scheduler) processAppWorkflow(ctx context.Context, appName string, since time.Time) (err error) {
	ctx, span := observability.StartSpan(ctx, observability.TraceSpanWorkflowProcess,
		attribute.String(observability.TraceAttrAppName, appName))
	skipped := false
	defer func() {
		observability.MarkSpanResult(span, err)
		span.End()
		if s.metrics != nil {
			outcome := "processed"
			switch {
			case err != nil:
				outcome = "error"
			case skipped:
				outcome = "skipped"
			}
			s.metrics.WorkflowsProcessed.WithLabelValues(outcome).Inc()
		}
	}()

	interactions, err := s.store.RecentInteractions(ctx, appName, since)
	if err != nil {
		return err
	}
	if len(interactions) < minRecentInteractions {
		skipped = true
		return nil
	}

	summary := summarizeInteractions(interactions)

	raw, err := s.helper.Invoke(ctx, llm.ModeAnalyze, map[string]any{
		"app_name": appName,
		"summary":  summary,
	})
	if err != nil {
		return err
	}

	var analysis analyzeResponse
	if jsonErr := json.Unmarshal(raw, &analysis); jsonErr != nil || strings.TrimSpace(analysis.Label) == "" {
		skipped = true
		return nil
	}

	ids := make([]string, len(interactions))
	for i, ev := range interactions {
		ids[i] = ev.ID
	}

	workflow := model.SemanticWorkflow{
		ID:                uuid.NewString(),
		AppName:           appName,
		WorkflowText:      analysis.Label,
		RawInteractionIDs: ids,
		CreatedAt:         time.Now(),
		Confidence:        analysis.Confidence,
	}

	embedding := model.WorkflowEmbedding{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		AppName:    appName,
		CreatedAt:  time.Now(),
	}

	if s.embedder != nil && s.embedder.Enabled() {
		vector, err := s.embedder.Embed(ctx, analysis.Label)
		if err != nil {
			s.log.Warn("embedding request failed for %q: %v", appName, err)
		} else if len(vector) == model.EmbeddingDim {
			embedding.Embedding = vector
			label, clusterErr := s.clusterWorkflow(ctx, appName, vector)
			if clusterErr != nil {
				s.log.Warn("clustering failed for %q: %v", appName, clusterErr)
			} else {
				embedding.ClusterLabel = &label
			}
		}
	}

	if err := s.store.SaveWorkflowWithEmbedding(ctx, workflow, embedding); err != nil {
		return err
	}

	return s.reorderByScore(ctx, appName)
}

func summarizeInteractions(events []model.InteractionEvent) string {
	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s:%s", ev.InteractionType, ev.SimplifiedDescription)
	}
	return b.String()
}

// clusterWorkflow performs one step of online DBSCAN-flavoured
// assignment: join the nearest existing cluster if it's within epsilon,
// otherwise mint a new one.
func (s *Scheduler) clusterWorkflow(ctx context.Context, appName string, embedding []float32) (int, error) {
	candidates, err := s.store.NearestClusters(ctx, appName, embedding, nearestClusterLimit)
	if err != nil {
		return 0, err
	}

	if len(candidates) > 0 && candidates[0].Distance < clusterJoinEpsilon {
		best := candidates[0].Cluster
		if err := s.store.IncrementClusterCount(ctx, best.ID); err != nil {
			return 0, err
		}
		return best.ClusterLabel, nil
	}

	maxLabel := -1
	for _, c := range candidates {
		if c.Cluster.ClusterLabel > maxLabel {
			maxLabel = c.Cluster.ClusterLabel
		}
	}

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		created, err := s.store.CreateCluster(ctx, appName, maxLabel+1+attempt, "")
		if err == nil {
			return created.ClusterLabel, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// reorderByScore recomputes each slot's composite score and permutes
// positions by descending score, logging the before/after diff.
func (s *Scheduler) reorderByScore(ctx context.Context, appName string) error {
	slots, err := s.store.LoadSlots(ctx, appName)
	if err != nil {
		return err
	}
	if len(slots) != 8 {
		return nil
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })
	before := positionOrder(slots)

	now := time.Now()
	ranked := append([]model.RingSlot(nil), slots...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return compositeScore(ranked[i], now) > compositeScore(ranked[j], now)
	})

	var newOrder [8]int
	for newPos, slot := range ranked {
		newOrder[newPos] = slot.Position
	}

	if err := s.store.ReorderSlots(ctx, appName, newOrder); err != nil {
		return err
	}

	after := positionOrder(ranked)
	logReorderDiff(s.log, appName, before, after)
	return nil
}

func compositeScore(slot model.RingSlot, now time.Time) float64 {
	usage := 0.6 * math.Log(1+float64(slot.UsageCount))
	recency := 0.0
	if slot.LastUsedAt != nil {
		days := now.Sub(*slot.LastUsedAt).Hours() / 24
		recency = math.Max(0, 1-days/usageHalfLifeDays)
	}
	return usage + 0.4*recency
}

func positionOrder(slots []model.RingSlot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = s.ActionName
	}
	return strings.Join(parts, "\n")
}

func positionOrderFromPermutation(newOrder [8]int) string {
	parts := make([]string, len(newOrder))
	for i, oldPos := range newOrder {
		parts[i] = fmt.Sprintf("pos%d", oldPos)
	}
	return strings.Join(parts, "\n")
}

func logReorderDiff(log interface{ Info(string, ...any) }, appName, before, after string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	log.Info("reordered ring for %q: %s", appName, dmp.DiffPrettyText(diffs))
}
