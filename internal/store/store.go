//go:build cgo

// Package store is the broker's single embedded persistence layer: one
// SQLite file per user, opened exactly once, with the sqlite-vec
// extension loaded for workflow embedding search. No other package may
// open this file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"

	"deskbroker/internal/model"
)

func init() {
	vec.Auto()
}

// Store owns the single *sql.DB handle for the broker's database file.
type Store struct {
	db     *sql.DB
	log    *logging.Logger
	mu     sync.Mutex // serialises multi-statement transactions
	dim    int
}

// Open opens (creating if absent) the SQLite database at path, loads the
// sqlite-vec extension, and runs migrations.
func Open(path string, log *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "open sqlite database")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log, dim: model.EmbeddingDim}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS apps (
			app_name TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			tool_server_name TEXT,
			created_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ring_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app_name TEXT NOT NULL REFERENCES apps(app_name) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			kind TEXT NOT NULL,
			action_name TEXT NOT NULL,
			action_payload BLOB NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			usage_count INTEGER NOT NULL DEFAULT 0,
			last_used_at INTEGER,
			UNIQUE(app_name, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ring_slots_app ON ring_slots(app_name)`,
		`CREATE TABLE IF NOT EXISTS registry_cache (
			app_name TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			server_name TEXT NOT NULL,
			server_json BLOB,
			cached_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS local_tool_index (
			package_name TEXT PRIMARY KEY,
			category TEXT,
			validated INTEGER NOT NULL DEFAULT 0,
			invocation_json BLOB,
			tools_json BLOB,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			window_title TEXT,
			interaction_type TEXT NOT NULL,
			element_name TEXT,
			simplified_description TEXT,
			timestamp INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_app_ts ON interactions(app_name, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_expires ON interactions(expires_at)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			workflow_text TEXT NOT NULL,
			raw_interaction_ids BLOB,
			created_at INTEGER NOT NULL,
			confidence REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_app ON workflows(app_name)`,
		`CREATE TABLE IF NOT EXISTS workflow_embeddings (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			app_name TEXT NOT NULL,
			embedding BLOB NOT NULL,
			cluster_label INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_cluster ON workflow_embeddings(cluster_label)`,
		`CREATE TABLE IF NOT EXISTS workflow_clusters (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			cluster_label INTEGER NOT NULL,
			representative_text TEXT NOT NULL,
			workflow_count INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(app_name, cluster_label)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_app ON workflow_clusters(app_name)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return brokerrors.Wrap(brokerrors.KindInternal, err, "run migration")
		}
	}

	vecStmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS workflow_vectors USING vec0(embedding float[%d])`, s.dim)
	if _, err := s.db.ExecContext(ctx, vecStmt); err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "create vector table")
	}

	return nil
}

// --- apps & ring slots -----------------------------------------------

// SaveAppWithSlots upserts the AppRecord and atomically replaces its
// eight ring slots. specs must cover positions 0..7 exactly.
func (s *Store) SaveAppWithSlots(ctx context.Context, app model.AppRecord, specs [8]model.ActionSpec) error {
	seen := map[int]bool{}
	for _, spec := range specs {
		if spec.Position < 0 || spec.Position > 7 || seen[spec.Position] {
			return brokerrors.New(brokerrors.KindValidation, "ring slot positions must be a permutation of 0..7")
		}
		seen[spec.Position] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO apps(app_name, display_name, tool_server_name, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			display_name = excluded.display_name,
			tool_server_name = excluded.tool_server_name,
			last_seen_at = excluded.last_seen_at
	`, app.AppName, app.DisplayName, nullable(app.ToolServerName), now, now)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "upsert app")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ring_slots WHERE app_name = ?`, app.AppName); err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "clear ring slots")
	}

	for _, spec := range specs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ring_slots(app_name, position, kind, action_name, action_payload, enabled, usage_count, last_used_at)
			VALUES (?, ?, ?, ?, ?, 1, 0, NULL)
		`, app.AppName, spec.Position, string(spec.Kind), spec.ActionName, spec.ActionPayload)
		if err != nil {
			return brokerrors.Wrap(brokerrors.KindInternal, err, "insert ring slot")
		}
	}

	if err := tx.Commit(); err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "commit save-app-with-slots")
	}
	return nil
}

// TouchApp updates last_seen_at for an already-resolved app without
// touching its slots (the warm-switch path).
func (s *Store) TouchApp(ctx context.Context, appName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE apps SET last_seen_at = ? WHERE app_name = ?`, time.Now().Unix(), appName)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "touch app")
	}
	return nil
}

// LoadSlots returns the persisted ring slots for appName in position
// order. An empty, nil-error result means the app has no ring yet.
func (s *Store) LoadSlots(ctx context.Context, appName string) ([]model.RingSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, kind, action_name, action_payload, enabled, usage_count, last_used_at
		FROM ring_slots WHERE app_name = ? ORDER BY position ASC
	`, appName)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "load ring slots")
	}
	defer rows.Close()

	var slots []model.RingSlot
	for rows.Next() {
		var slot model.RingSlot
		var kind string
		var enabled int
		var lastUsed sql.NullInt64
		if err := rows.Scan(&slot.ID, &slot.Position, &kind, &slot.ActionName, &slot.ActionPayload, &enabled, &slot.UsageCount, &lastUsed); err != nil {
			return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "scan ring slot")
		}
		slot.AppName = appName
		slot.Kind = model.ActionKind(kind)
		slot.Enabled = enabled != 0
		if lastUsed.Valid {
			t := time.Unix(lastUsed.Int64, 0)
			slot.LastUsedAt = &t
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// RecordUsage increments usage_count and stamps last_used_at for a slot,
// iff a successful Dispatcher execution occurred.
func (s *Store) RecordUsage(ctx context.Context, appName string, position int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ring_slots SET usage_count = usage_count + 1, last_used_at = ?
		WHERE app_name = ? AND position = ?
	`, now.Unix(), appName, position)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "record usage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return brokerrors.New(brokerrors.KindNotFound, "ring slot not found")
	}
	return nil
}

// ReorderSlots permutes positions according to newOrder, a mapping from
// new position -> old position, without touching kind/payload/usage.
func (s *Store) ReorderSlots(ctx context.Context, appName string, newOrder [8]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "begin reorder transaction")
	}
	defer tx.Rollback()

	// Stage through negative positions to dodge the UNIQUE(app_name, position)
	// constraint while permuting in place.
	for i, oldPos := range newOrder {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ring_slots SET position = ? WHERE app_name = ? AND position = ?
		`, -(i + 1), appName, oldPos); err != nil {
			return brokerrors.Wrap(brokerrors.KindInternal, err, "stage reorder")
		}
	}
	for i := range newOrder {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ring_slots SET position = ? WHERE app_name = ? AND position = ?
		`, i, appName, -(i + 1)); err != nil {
			return brokerrors.Wrap(brokerrors.KindInternal, err, "finalize reorder")
		}
	}

	return tx.Commit()
}

// UpdateSlotAction overwrites one slot's kind/action/payload in place,
// leaving its position, usage_count, and last_used_at untouched.
func (s *Store) UpdateSlotAction(ctx context.Context, appName string, position int, kind model.ActionKind, actionName string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ring_slots SET kind = ?, action_name = ?, action_payload = ?
		WHERE app_name = ? AND position = ?
	`, string(kind), actionName, payload, appName, position)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "update slot action")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return brokerrors.New(brokerrors.KindNotFound, "ring slot not found")
	}
	return nil
}

// --- registry cache & local index -------------------------------------

func (s *Store) GetCacheEntry(ctx context.Context, appName string) (*model.RegistryCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, server_name, server_json, cached_at FROM registry_cache WHERE app_name = ?
	`, appName)

	var entry model.RegistryCacheEntry
	var source, cachedAt any
	var serverJSON []byte
	entry.AppName = appName
	if err := row.Scan(&source, &entry.ServerName, &serverJSON, &cachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "get cache entry")
	}
	entry.Source = model.RegistrySource(fmt.Sprint(source))
	entry.ServerJSON = serverJSON
	entry.CachedAt = time.Unix(toInt64(cachedAt), 0)
	return &entry, nil
}

func (s *Store) SaveCacheEntry(ctx context.Context, entry model.RegistryCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_cache(app_name, source, server_name, server_json, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			source = excluded.source, server_name = excluded.server_name,
			server_json = excluded.server_json, cached_at = excluded.cached_at
	`, entry.AppName, string(entry.Source), entry.ServerName, entry.ServerJSON, entry.CachedAt.Unix())
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "save cache entry")
	}
	return nil
}

// SearchLocalIndex performs a case-insensitive substring match on
// package_name, returning up to limit rows ordered by (validated DESC,
// name ASC).
func (s *Store) SearchLocalIndex(ctx context.Context, query string, limit int) ([]model.ToolServerDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, category, validated, invocation_json, tools_json FROM local_tool_index
		WHERE package_name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY validated DESC, package_name ASC
		LIMIT ?
	`, strings.ToLower(query), limit)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "search local index")
	}
	defer rows.Close()

	var results []model.ToolServerDescriptor
	for rows.Next() {
		var desc model.ToolServerDescriptor
		var validated int
		var invocationJSON, toolsJSON []byte
		if err := rows.Scan(&desc.PackageName, &desc.Category, &validated, &invocationJSON, &toolsJSON); err != nil {
			return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "scan local index row")
		}
		desc.Validated = validated != 0
		desc.Source = model.SourceLocalIndex
		desc.ServerName = desc.PackageName
		desc.Transport = model.TransportStdio
		if len(invocationJSON) > 0 {
			_ = json.Unmarshal(invocationJSON, &desc.Invocation)
		}
		if len(toolsJSON) > 0 {
			_ = json.Unmarshal(toolsJSON, &desc.Tools)
		}
		results = append(results, desc)
	}
	return results, rows.Err()
}

// UpsertLocalIndexEntry writes or refreshes one row of the local tool
// index: a manifest- or discovery-sourced server the registry cascade
// can match before ever reaching a remote registry. invocation is the
// process word list (command followed by arguments) the tool-client
// pool needs to spawn the server once resolved.
func (s *Store) UpsertLocalIndexEntry(ctx context.Context, packageName, category string, validated bool, invocation []string, tools map[string]model.ToolDescriptor) error {
	invocationJSON, err := json.Marshal(invocation)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "marshal invocation")
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "marshal tools")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_tool_index(package_name, category, validated, invocation_json, tools_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			category = excluded.category, validated = excluded.validated,
			invocation_json = excluded.invocation_json, tools_json = excluded.tools_json,
			updated_at = excluded.updated_at
	`, packageName, category, boolToInt(validated), invocationJSON, toolsJSON, time.Now().Unix())
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "upsert local index entry")
	}
	return nil
}

// --- interactions ------------------------------------------------------

func (s *Store) InsertInteraction(ctx context.Context, ev model.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions(id, app_name, window_title, interaction_type, element_name, simplified_description, timestamp, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.AppName, ev.WindowTitle, ev.InteractionType, ev.ElementName, ev.SimplifiedDescription, ev.Timestamp.Unix(), ev.ExpiresAt.Unix())
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "insert interaction")
	}
	return nil
}

// SweepExpiredInteractions deletes interactions whose TTL has elapsed,
// returning the count removed.
func (s *Store) SweepExpiredInteractions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, brokerrors.Wrap(brokerrors.KindInternal, err, "sweep interactions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentInteractions returns interactions for appName at or after since,
// ordered chronologically.
func (s *Store) RecentInteractions(ctx context.Context, appName string, since time.Time) ([]model.InteractionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, window_title, interaction_type, element_name, simplified_description, timestamp, expires_at
		FROM interactions WHERE app_name = ? AND timestamp >= ? ORDER BY timestamp ASC
	`, appName, since.Unix())
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "recent interactions")
	}
	defer rows.Close()

	var events []model.InteractionEvent
	for rows.Next() {
		var ev model.InteractionEvent
		var ts, exp int64
		ev.AppName = appName
		if err := rows.Scan(&ev.ID, &ev.WindowTitle, &ev.InteractionType, &ev.ElementName, &ev.SimplifiedDescription, &ts, &exp); err != nil {
			return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "scan interaction")
		}
		ev.Timestamp = time.Unix(ts, 0)
		ev.ExpiresAt = time.Unix(exp, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DistinctActiveApps returns app names with at least one interaction at
// or after since, used by the workflow pipeline's per-app fan-out.
func (s *Store) DistinctActiveApps(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT app_name FROM interactions WHERE timestamp >= ?`, since.Unix())
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "distinct active apps")
	}
	defer rows.Close()
	var apps []string
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// --- workflows, embeddings, clusters -----------------------------------

// SaveWorkflowWithEmbedding persists a SemanticWorkflow and its embedding
// atomically, validating the embedding dimension first.
func (s *Store) SaveWorkflowWithEmbedding(ctx context.Context, wf model.SemanticWorkflow, emb model.WorkflowEmbedding) error {
	if len(emb.Embedding) != s.dim {
		return brokerrors.New(brokerrors.KindValidation, fmt.Sprintf("embedding dimension %d != %d", len(emb.Embedding), s.dim))
	}

	rawIDs, err := json.Marshal(wf.RawInteractionIDs)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "marshal interaction ids")
	}
	vecBytes, err := vec.SerializeFloat32(emb.Embedding)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "serialize embedding")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "begin workflow transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows(id, app_name, workflow_text, raw_interaction_ids, created_at, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.AppName, wf.WorkflowText, rawIDs, wf.CreatedAt.Unix(), wf.Confidence)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "insert workflow")
	}

	var clusterLabel any
	if emb.ClusterLabel != nil {
		clusterLabel = *emb.ClusterLabel
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_embeddings(id, workflow_id, app_name, embedding, cluster_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, emb.ID, emb.WorkflowID, emb.AppName, vecBytes, clusterLabel, emb.CreatedAt.Unix())
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "insert embedding")
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "get embedding rowid")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO workflow_vectors(rowid, embedding) VALUES (?, ?)`, rowID, vecBytes); err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "insert vector row")
	}

	return tx.Commit()
}

// ClusterCandidate is a scored nearest-neighbour cluster result.
type ClusterCandidate struct {
	Cluster  model.WorkflowCluster
	Distance float64
}

// NearestClusters returns the appName's clusters ordered by ascending
// cosine distance to embedding, computed in Go against the embedding of
// each cluster's most recent member; the workflow_vectors table is not
// queried here.
func (s *Store) NearestClusters(ctx context.Context, appName string, embedding []float32, limit int) ([]ClusterCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cluster_label, representative_text, workflow_count, created_at, updated_at
		FROM workflow_clusters WHERE app_name = ?
	`, appName)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "list clusters")
	}
	defer rows.Close()

	var clusters []model.WorkflowCluster
	for rows.Next() {
		var c model.WorkflowCluster
		var createdAt, updatedAt int64
		c.AppName = appName
		if err := rows.Scan(&c.ID, &c.ClusterLabel, &c.RepresentativeText, &c.WorkflowCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		c.UpdatedAt = time.Unix(updatedAt, 0)
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	candidates := make([]ClusterCandidate, 0, len(clusters))
	for _, c := range clusters {
		repEmb, err := s.representativeEmbedding(ctx, c)
		if err != nil || repEmb == nil {
			continue
		}
		candidates = append(candidates, ClusterCandidate{Cluster: c, Distance: cosineDistance(embedding, repEmb)})
	}
	sortByDistance(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) representativeEmbedding(ctx context.Context, c model.WorkflowCluster) ([]float32, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT embedding FROM workflow_embeddings WHERE app_name = ? AND cluster_label = ?
		ORDER BY created_at DESC LIMIT 1
	`, c.AppName, c.ClusterLabel)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return deserializeFloat32(raw)
}

// CreateCluster inserts a new cluster for appName with workflow_count=1,
// retrying with the next label on a UNIQUE collision.
func (s *Store) CreateCluster(ctx context.Context, appName string, label int, representative string) (model.WorkflowCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for attempt := 0; attempt < 5; attempt++ {
		id := fmt.Sprintf("%s-%d", appName, label)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO workflow_clusters(id, app_name, cluster_label, representative_text, workflow_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)
		`, id, appName, label, representative, now.Unix(), now.Unix())
		if err == nil {
			return model.WorkflowCluster{ID: id, AppName: appName, ClusterLabel: label, RepresentativeText: representative, WorkflowCount: 1, CreatedAt: now, UpdatedAt: now}, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE") {
			return model.WorkflowCluster{}, brokerrors.Wrap(brokerrors.KindInternal, err, "create cluster")
		}
		label++
	}
	return model.WorkflowCluster{}, brokerrors.New(brokerrors.KindInternal, "exhausted cluster label retries")
}

// IncrementClusterCount joins an existing cluster, bumping workflow_count.
func (s *Store) IncrementClusterCount(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_clusters SET workflow_count = workflow_count + 1, updated_at = ? WHERE id = ?
	`, time.Now().Unix(), clusterID)
	if err != nil {
		return brokerrors.Wrap(brokerrors.KindInternal, err, "increment cluster count")
	}
	return nil
}

// --- helpers -------------------------------------------------------------

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}
