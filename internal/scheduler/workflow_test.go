package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"deskbroker/internal/model"
	"deskbroker/internal/shared/logging"
)

func noopLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError, "TEST").NewComponentLogger("test")
}

func TestCompositeScoreRewardsUsageAndRecency(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	old := now.Add(-60 * 24 * time.Hour)

	fresh := model.RingSlot{UsageCount: 10, LastUsedAt: &recent}
	stale := model.RingSlot{UsageCount: 10, LastUsedAt: &old}
	neverUsed := model.RingSlot{UsageCount: 0}

	if compositeScore(fresh, now) <= compositeScore(stale, now) {
		t.Fatalf("expected recently used slot to score higher: fresh=%v stale=%v", compositeScore(fresh, now), compositeScore(stale, now))
	}
	if compositeScore(stale, now) <= compositeScore(neverUsed, now) {
		t.Fatalf("expected any usage to beat none: stale=%v never=%v", compositeScore(stale, now), compositeScore(neverUsed, now))
	}
}

func TestSummarizeInteractionsJoinsEvents(t *testing.T) {
	events := []model.InteractionEvent{
		{InteractionType: "click", SimplifiedDescription: "save button"},
		{InteractionType: "type", SimplifiedDescription: "filename"},
	}
	got := summarizeInteractions(events)
	want := "click:save button; type:filename"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type fakeClusterStore struct {
	candidates []ClusterMatch
	created    []int
	incremented string
}

func (f *fakeClusterStore) TouchApp(context.Context, string) error { return nil }
func (f *fakeClusterStore) SweepExpiredInteractions(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeClusterStore) DistinctActiveApps(context.Context, time.Time) ([]string, error)    { return nil, nil }
func (f *fakeClusterStore) RecentInteractions(context.Context, string, time.Time) ([]model.InteractionEvent, error) {
	return nil, nil
}
func (f *fakeClusterStore) SaveWorkflowWithEmbedding(context.Context, model.SemanticWorkflow, model.WorkflowEmbedding) error {
	return nil
}
func (f *fakeClusterStore) NearestClusters(context.Context, string, []float32, int) ([]ClusterMatch, error) {
	return f.candidates, nil
}
func (f *fakeClusterStore) CreateCluster(_ context.Context, _ string, label int, _ string) (model.WorkflowCluster, error) {
	f.created = append(f.created, label)
	return model.WorkflowCluster{ID: "new", ClusterLabel: label, WorkflowCount: 1}, nil
}
func (f *fakeClusterStore) IncrementClusterCount(_ context.Context, clusterID string) error {
	f.incremented = clusterID
	return nil
}
func (f *fakeClusterStore) ReorderSlots(context.Context, string, [8]int) error { return nil }
func (f *fakeClusterStore) LoadSlots(context.Context, string) ([]model.RingSlot, error) {
	return nil, nil
}

func TestClusterWorkflowJoinsWithinEpsilon(t *testing.T) {
	store := &fakeClusterStore{candidates: []ClusterMatch{
		{Cluster: model.WorkflowCluster{ID: "c1", ClusterLabel: 2}, Distance: 0.1},
	}}
	s := &Scheduler{store: store, log: noopLogger()}

	label, err := s.clusterWorkflow(context.Background(), "chrome", make([]float32, model.EmbeddingDim))
	if err != nil {
		t.Fatalf("clusterWorkflow: %v", err)
	}
	if label != 2 {
		t.Fatalf("expected to join cluster label 2, got %d", label)
	}
	if store.incremented != "c1" {
		t.Fatalf("expected c1 to be incremented, got %q", store.incremented)
	}
}

func TestClusterWorkflowCreatesNewBeyondEpsilon(t *testing.T) {
	store := &fakeClusterStore{candidates: []ClusterMatch{
		{Cluster: model.WorkflowCluster{ID: "c1", ClusterLabel: 2}, Distance: 0.9},
	}}
	s := &Scheduler{store: store, log: noopLogger()}

	label, err := s.clusterWorkflow(context.Background(), "chrome", make([]float32, model.EmbeddingDim))
	if err != nil {
		t.Fatalf("clusterWorkflow: %v", err)
	}
	if label != 3 {
		t.Fatalf("expected new cluster label 3, got %d", label)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one cluster creation, got %d", len(store.created))
	}
}

func TestClusterWorkflowCreatesFirstClusterWhenNoneExist(t *testing.T) {
	store := &fakeClusterStore{}
	s := &Scheduler{store: store, log: noopLogger()}

	label, err := s.clusterWorkflow(context.Background(), "chrome", make([]float32, model.EmbeddingDim))
	if err != nil {
		t.Fatalf("clusterWorkflow: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected first cluster label 0, got %d", label)
	}
}
