package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vantdge/evidence-cli/internal/db"
	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_session":        `INSERT INTO sessions (id, disease, drugs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_session_status": `UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_session":           `SELECT id, disease, drugs, status, created_at FROM sessions WHERE id = $1`,
	"insert_point":          `INSERT INTO data_points (id, session_id, drug_key, point, review_status, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_condition_mapping": `SELECT standard, confidence FROM condition_mappings WHERE normalized = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	disease    JSONB NOT NULL,
	drugs      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'initializing',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS data_points (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	drug_key      TEXT NOT NULL,
	point         JSONB NOT NULL,
	review_status TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_data_points_session ON data_points(session_id);
CREATE INDEX IF NOT EXISTS idx_data_points_review ON data_points(session_id, review_status);
CREATE INDEX IF NOT EXISTS idx_data_points_drug ON data_points(drug_key);

CREATE TABLE IF NOT EXISTS condition_mappings (
	normalized TEXT PRIMARY KEY,
	standard   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	match_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opportunities (
	drug_key   TEXT NOT NULL,
	disease    TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (drug_key, disease)
);

CREATE TABLE IF NOT EXISTS approved_drugs (
	key  TEXT PRIMARY KEY,
	data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id     TEXT NOT NULL,
	drug_key       TEXT NOT NULL,
	point          JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, disease model.DiseaseMatch, drugs []model.ApprovedDrug) (*model.BenchmarkSession, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	diseaseJSON, err := json.Marshal(disease)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal disease")
	}
	drugsJSON, err := json.Marshal(drugs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal drugs")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, disease, drugs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, diseaseJSON, drugsJSON, string(model.SessionInitializing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}

	return &model.BenchmarkSession{
		ID:        id,
		Disease:   disease,
		Drugs:     drugs,
		Status:    model.SessionInitializing,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session status %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.BenchmarkSession, error) {
	var sess model.BenchmarkSession
	var diseaseJSON, drugsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, disease, drugs, status, created_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &diseaseJSON, &drugsJSON, &sess.Status, &sess.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}

	if err := json.Unmarshal(diseaseJSON, &sess.Disease); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal disease")
	}
	if err := json.Unmarshal(drugsJSON, &sess.Drugs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal drugs")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.BenchmarkSession, error) {
	query := `SELECT id, disease, drugs, status, created_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.BenchmarkSession
	for rows.Next() {
		var sess model.BenchmarkSession
		var diseaseJSON, drugsJSON []byte
		if err := rows.Scan(&sess.ID, &diseaseJSON, &drugsJSON, &sess.Status, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if err := json.Unmarshal(diseaseJSON, &sess.Disease); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal disease")
		}
		if err := json.Unmarshal(drugsJSON, &sess.Drugs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal drugs")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) InsertDataPoint(ctx context.Context, sessionID, drugKey string, point model.EfficacyDataPoint) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	pointJSON, err := json.Marshal(point)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal point")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO data_points (id, session_id, drug_key, point, review_status, confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, sessionID, drugKey, pointJSON, string(point.ReviewStatus), point.ConfidenceScore, now,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert point for session %s", sessionID)
	}
	return id, nil
}

func (s *PostgresStore) ListSessionPoints(ctx context.Context, sessionID string) ([]StoredPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, drug_key, point FROM data_points WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list session points")
	}
	defer rows.Close()
	return scanStoredPoints(rows)
}

func (s *PostgresStore) ListPendingPoints(ctx context.Context, sessionID string) ([]StoredPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, drug_key, point FROM data_points
		 WHERE session_id = $1 AND review_status = $2 ORDER BY created_at ASC`,
		sessionID, string(model.ReviewPending),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending points")
	}
	defer rows.Close()
	return scanStoredPoints(rows)
}

func scanStoredPoints(rows pgx.Rows) ([]StoredPoint, error) {
	var points []StoredPoint
	for rows.Next() {
		var sp StoredPoint
		var pointJSON []byte
		if err := rows.Scan(&sp.ID, &sp.SessionID, &sp.DrugKey, &pointJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		if err := json.Unmarshal(pointJSON, &sp.Point); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal point")
		}
		points = append(points, sp)
	}
	return points, eris.Wrap(rows.Err(), "postgres: iterate points")
}

// ResolvePoint applies a reviewer decision to a pending point. Points in
// any other disposition are left untouched.
func (s *PostgresStore) ResolvePoint(ctx context.Context, pointID string, confirmed bool) error {
	var pointJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT point FROM data_points WHERE id = $1`,
		pointID,
	).Scan(&pointJSON)
	if err != nil {
		return eris.Wrapf(err, "postgres: get point %s", pointID)
	}

	var point model.EfficacyDataPoint
	if err := json.Unmarshal(pointJSON, &point); err != nil {
		return eris.Wrap(err, "postgres: unmarshal point")
	}
	point.Resolve(confirmed)

	updated, err := json.Marshal(point)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal point")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE data_points SET point = $1, review_status = $2 WHERE id = $3`,
		updated, string(point.ReviewStatus), pointID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve point %s", pointID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("point not found: %s", pointID)
	}
	return nil
}

// ListNonRejectedPoints returns every non-rejected point for a drug across
// all sessions standardized to the given disease.
func (s *PostgresStore) ListNonRejectedPoints(ctx context.Context, drugKey, disease string) ([]model.EfficacyDataPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dp.point FROM data_points dp
		 JOIN sessions se ON se.id = dp.session_id
		 WHERE dp.drug_key = $1 AND se.disease->>'standard_name' = $2 AND dp.review_status != $3
		 ORDER BY dp.created_at ASC`,
		drugKey, disease, string(model.ReviewUserRejected),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list non-rejected points")
	}
	defer rows.Close()

	var points []model.EfficacyDataPoint
	for rows.Next() {
		var pointJSON []byte
		if err := rows.Scan(&pointJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		var point model.EfficacyDataPoint
		if err := json.Unmarshal(pointJSON, &point); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal point")
		}
		points = append(points, point)
	}
	return points, eris.Wrap(rows.Err(), "postgres: iterate points")
}

func (s *PostgresStore) GetConditionMapping(ctx context.Context, normalized string) (string, float64, error) {
	var standard string
	var confidence float64
	err := s.pool.QueryRow(ctx,
		`SELECT standard, confidence FROM condition_mappings WHERE normalized = $1`,
		normalized,
	).Scan(&standard, &confidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, nil
		}
		return "", 0, eris.Wrap(err, "postgres: get condition mapping")
	}
	return standard, confidence, nil
}

func (s *PostgresStore) SaveConditionMapping(ctx context.Context, normalized, standard string, confidence float64, matchType string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO condition_mappings (normalized, standard, confidence, match_type, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (normalized) DO UPDATE SET standard = $2, confidence = $3, match_type = $4`,
		normalized, standard, confidence, matchType, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save condition mapping")
}

func (s *PostgresStore) ReplaceOpportunity(ctx context.Context, opp model.Opportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal opportunity")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO opportunities (drug_key, disease, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (drug_key, disease) DO UPDATE SET data = $3, updated_at = $4`,
		opp.DrugKey, opp.Disease, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: replace opportunity")
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, drugKey string) ([]model.Opportunity, error) {
	query := `SELECT data FROM opportunities`
	args := []any{}
	if drugKey != "" {
		query += ` WHERE drug_key = $1`
		args = append(args, drugKey)
	}
	query += ` ORDER BY drug_key, (data->>'rank')::int`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var opps []model.Opportunity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}
		var opp model.Opportunity
		if err := json.Unmarshal(data, &opp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal opportunity")
		}
		opps = append(opps, opp)
	}
	return opps, eris.Wrap(rows.Err(), "postgres: list opportunities iterate")
}

func (s *PostgresStore) UpsertDrug(ctx context.Context, drug model.ApprovedDrug) error {
	data, err := json.Marshal(drug)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal drug")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO approved_drugs (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = $2`,
		drug.Key, data,
	)
	return eris.Wrap(err, "postgres: upsert drug")
}

func (s *PostgresStore) ListDrugs(ctx context.Context) ([]model.ApprovedDrug, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM approved_drugs ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drugs")
	}
	defer rows.Close()

	var drugs []model.ApprovedDrug
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan drug")
		}
		var drug model.ApprovedDrug
		if err := json.Unmarshal(data, &drug); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal drug")
		}
		drugs = append(drugs, drug)
	}
	return drugs, eris.Wrap(rows.Err(), "postgres: list drugs iterate")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	pointJSON, err := json.Marshal(entry.Point)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq point")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, session_id, drug_key, point, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $5, error_type = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.SessionID, entry.DrugKey, pointJSON, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, session_id, drug_key, point, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var pointJSON []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.DrugKey, &pointJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(pointJSON, &e.Point); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq point")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
