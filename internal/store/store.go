// Package store persists graphs and computed layouts in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	val        INTEGER,
	type       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS graph_links (
	id     BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
	target TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
	weight DOUBLE PRECISION NOT NULL DEFAULT 1,
	UNIQUE (source, target)
);

CREATE TABLE IF NOT EXISTS graph_coords (
	node_id    TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
	layout     TEXT NOT NULL DEFAULT 'default',
	x          DOUBLE PRECISION,
	y          DOUBLE PRECISION,
	z          DOUBLE PRECISION,
	t          DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (node_id, layout)
);
CREATE INDEX IF NOT EXISTS ix_graph_coords_layout ON graph_coords(layout);

CREATE TABLE IF NOT EXISTS layout_runs (
	id          BIGSERIAL PRIMARY KEY,
	layout      TEXT NOT NULL,
	nodes       INTEGER NOT NULL,
	edges       INTEGER NOT NULL,
	ticks       INTEGER NOT NULL,
	converged   BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	params      JSONB,
	energy      JSONB,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_layout_runs_layout ON layout_runs(layout, started_at DESC);
`

// Store wraps a Postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and pings it, retrying while the database starts up.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := utils.Retry(ctx, 5, 500*time.Millisecond, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying pool for raw SQL.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// observe records duration and failure of a store operation. Call it deferred
// with a pointer to the named error result.
func observe(op string, start time.Time, err *error) {
	metrics.DBOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	defer observe("ensure_schema", time.Now(), &err)
	if _, err = s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// MassForValue maps a node's val column to a body mass. Missing or
// non-positive values give unit mass and larger values grow logarithmically.
func MassForValue(val sql.NullInt32) float64 {
	if !val.Valid || val.Int32 <= 0 {
		return 1
	}
	return 1 + math.Log1p(float64(val.Int32))
}

// LoadGraph returns the maxNodes highest-valued nodes together with the
// links among them; maxNodes <= 0 loads every node. Nodes that already have coordinates for layout start
// there; the rest start at the origin.
func (s *Store) LoadGraph(ctx context.Context, layout string, maxNodes int) (nodes []physics.Node, edges []physics.Edge, err error) {
	defer observe("load_graph", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.val, COALESCE(c.x, 0), COALESCE(c.y, 0), COALESCE(c.z, 0)
		FROM graph_nodes n
		LEFT JOIN graph_coords c ON c.node_id = n.id AND c.layout = $1
		ORDER BY n.val DESC NULLS LAST, n.id
		LIMIT $2`, layout, sql.NullInt64{Int64: int64(maxNodes), Valid: maxNodes > 0})
	if err != nil {
		return nil, nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var (
			n   physics.Node
			val sql.NullInt32
		)
		if err = rows.Scan(&n.ID, &val, &n.X, &n.Y, &n.Z); err != nil {
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		n.Mass = MassForValue(val)
		nodes = append(nodes, n)
		ids = append(ids, n.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nodes: %w", err)
	}
	if len(ids) == 0 {
		return nodes, nil, nil
	}

	linkRows, err := s.db.QueryContext(ctx, `
		SELECT source, target, weight
		FROM graph_links
		WHERE source = ANY($1) AND target = ANY($1)
		ORDER BY source, target`, pq.Array(ids))
	if err != nil {
		return nil, nil, fmt.Errorf("query links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var e physics.Edge
		if err = linkRows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, nil, fmt.Errorf("scan link: %w", err)
		}
		edges = append(edges, e)
	}
	if err = linkRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate links: %w", err)
	}
	return nodes, edges, nil
}

// UpsertNodes inserts or updates graph_nodes rows from a node set. Used to
// import graph files; val is left untouched for existing rows.
func (s *Store) UpsertNodes(ctx context.Context, nodes []physics.Node, batchSize int) (err error) {
	defer observe("upsert_nodes", time.Now(), &err)
	return s.batch(ctx, len(nodes), batchSize, func(tx *sql.Tx, start, end int) error {
		var sb strings.Builder
		sb.WriteString("INSERT INTO graph_nodes (id, name) VALUES ")
		args := make([]any, 0, (end-start)*2)
		for i, n := range nodes[start:end] {
			if i > 0 {
				sb.WriteByte(',')
			}
			idx := i*2 + 1
			fmt.Fprintf(&sb, "($%d,$%d)", idx, idx+1)
			args = append(args, n.ID, n.ID)
		}
		sb.WriteString(" ON CONFLICT (id) DO UPDATE SET updated_at = now()")
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

// UpsertLinks writes graph_links rows, updating the weight of existing pairs
// and skipping pairs whose endpoints are not in graph_nodes. Repeated pairs in
// edges keep the last weight.
func (s *Store) UpsertLinks(ctx context.Context, edges []physics.Edge, batchSize int) (err error) {
	defer observe("upsert_links", time.Now(), &err)

	uniq := make(map[[2]string]int, len(edges))
	dedup := make([]physics.Edge, 0, len(edges))
	for _, e := range edges {
		key := [2]string{e.Source, e.Target}
		if i, ok := uniq[key]; ok {
			dedup[i] = e
			continue
		}
		uniq[key] = len(dedup)
		dedup = append(dedup, e)
	}

	return s.batch(ctx, len(dedup), batchSize, func(tx *sql.Tx, start, end int) error {
		var sb strings.Builder
		sb.WriteString("WITH vals(source, target, weight) AS (VALUES ")
		args := make([]any, 0, (end-start)*3)
		for i, e := range dedup[start:end] {
			if i > 0 {
				sb.WriteByte(',')
			}
			idx := i*3 + 1
			fmt.Fprintf(&sb, "($%d,$%d,$%d::double precision)", idx, idx+1, idx+2)
			args = append(args, e.Source, e.Target, e.Weight)
		}
		sb.WriteString(") INSERT INTO graph_links (source, target, weight) ")
		sb.WriteString("SELECT v.source, v.target, v.weight FROM vals v ")
		sb.WriteString("JOIN graph_nodes s ON s.id = v.source JOIN graph_nodes t ON t.id = v.target ")
		sb.WriteString("ON CONFLICT (source, target) DO UPDATE SET weight = EXCLUDED.weight")
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

// SaveCoords upserts the positions of nodes under layout, batchSize rows per
// transaction. t is the simulated time the positions belong to.
func (s *Store) SaveCoords(ctx context.Context, layout string, nodes []physics.Node, t float64, batchSize int) (err error) {
	defer observe("save_coords", time.Now(), &err)
	err = s.batch(ctx, len(nodes), batchSize, func(tx *sql.Tx, start, end int) error {
		var sb strings.Builder
		sb.WriteString("INSERT INTO graph_coords (node_id, layout, x, y, z, t, updated_at) VALUES ")
		args := make([]any, 0, (end-start)*6)
		for i, n := range nodes[start:end] {
			if i > 0 {
				sb.WriteByte(',')
			}
			idx := i*6 + 1
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,now())", idx, idx+1, idx+2, idx+3, idx+4, idx+5)
			args = append(args, n.ID, layout, n.X, n.Y, n.Z, t)
		}
		sb.WriteString(" ON CONFLICT (node_id, layout) DO UPDATE SET ")
		sb.WriteString("x = EXCLUDED.x, y = EXCLUDED.y, z = EXCLUDED.z, t = EXCLUDED.t, updated_at = EXCLUDED.updated_at")
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
	if err == nil {
		metrics.LayoutCoordsSaved.Add(float64(len(nodes)))
	}
	return err
}

// batch runs fn over [0, n) in chunks of size, each chunk in its own transaction.
func (s *Store) batch(ctx context.Context, n, size int, fn func(tx *sql.Tx, start, end int) error) error {
	if n == 0 {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx, start, end); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Run is one row of layout_runs.
type Run struct {
	ID         int64
	Layout     string
	Nodes      int
	Edges      int
	Ticks      int
	Converged  bool
	Duration   time.Duration
	Params     physics.Params
	Energy     []float64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func jsonb(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// RecordRun inserts a layout_runs row and returns its id.
func (s *Store) RecordRun(ctx context.Context, r Run) (id int64, err error) {
	defer observe("record_run", time.Now(), &err)

	params, err := jsonb(r.Params)
	if err != nil {
		return 0, fmt.Errorf("marshal params: %w", err)
	}
	var energy pqtype.NullRawMessage
	if len(r.Energy) > 0 {
		if energy, err = jsonb(r.Energy); err != nil {
			return 0, fmt.Errorf("marshal energy: %w", err)
		}
	}
	errText := sql.NullString{String: r.Error, Valid: r.Error != ""}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO layout_runs (layout, nodes, edges, ticks, converged, duration_ms, params, energy, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		r.Layout, r.Nodes, r.Edges, r.Ticks, r.Converged, r.Duration.Milliseconds(),
		params, energy, errText, r.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert layout run: %w", err)
	}
	logger.WithComponent("store").Debug("layout run recorded", "id", id, "layout", r.Layout)
	return id, nil
}

// LatestRun returns the most recent run for layout, or sql.ErrNoRows.
func (s *Store) LatestRun(ctx context.Context, layout string) (r Run, err error) {
	defer observe("latest_run", time.Now(), &err)

	var (
		params, energy pqtype.NullRawMessage
		errText        sql.NullString
		durationMS     int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, layout, nodes, edges, ticks, converged, duration_ms, params, energy, error, started_at, finished_at
		FROM layout_runs WHERE layout = $1
		ORDER BY started_at DESC, id DESC LIMIT 1`, layout,
	).Scan(&r.ID, &r.Layout, &r.Nodes, &r.Edges, &r.Ticks, &r.Converged, &durationMS,
		&params, &energy, &errText, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return Run{}, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Error = errText.String
	if params.Valid {
		if err = json.Unmarshal(params.RawMessage, &r.Params); err != nil {
			return Run{}, fmt.Errorf("decode params: %w", err)
		}
	}
	if energy.Valid {
		if err = json.Unmarshal(energy.RawMessage, &r.Energy); err != nil {
			return Run{}, fmt.Errorf("decode energy: %w", err)
		}
	}
	return r, nil
}
