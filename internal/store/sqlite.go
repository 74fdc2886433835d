package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local single-user runs; production deployments use PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	disease    TEXT NOT NULL,
	drugs      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'initializing',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS data_points (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	drug_key      TEXT NOT NULL,
	point         TEXT NOT NULL,
	review_status TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_data_points_session ON data_points(session_id);
CREATE INDEX IF NOT EXISTS idx_data_points_review ON data_points(session_id, review_status);
CREATE INDEX IF NOT EXISTS idx_data_points_drug ON data_points(drug_key);

CREATE TABLE IF NOT EXISTS condition_mappings (
	normalized TEXT PRIMARY KEY,
	standard   TEXT NOT NULL,
	confidence REAL NOT NULL,
	match_type TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS opportunities (
	drug_key   TEXT NOT NULL,
	disease    TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (drug_key, disease)
);

CREATE TABLE IF NOT EXISTS approved_drugs (
	key  TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	drug_key       TEXT NOT NULL,
	point          TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, disease model.DiseaseMatch, drugs []model.ApprovedDrug) (*model.BenchmarkSession, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	diseaseJSON, err := json.Marshal(disease)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal disease")
	}
	drugsJSON, err := json.Marshal(drugs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal drugs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, disease, drugs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(diseaseJSON), string(drugsJSON), string(model.SessionInitializing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}

	return &model.BenchmarkSession{
		ID:        id,
		Disease:   disease,
		Drugs:     drugs,
		Status:    model.SessionInitializing,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session status %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.BenchmarkSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, disease, drugs, status, created_at FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.BenchmarkSession, error) {
	query := `SELECT id, disease, drugs, status, created_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.BenchmarkSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) InsertDataPoint(ctx context.Context, sessionID, drugKey string, point model.EfficacyDataPoint) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	pointJSON, err := json.Marshal(point)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal point")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO data_points (id, session_id, drug_key, point, review_status, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, drugKey, string(pointJSON), string(point.ReviewStatus), point.ConfidenceScore, now,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert point for session %s", sessionID)
	}
	return id, nil
}

func (s *SQLiteStore) ListSessionPoints(ctx context.Context, sessionID string) ([]StoredPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, drug_key, point FROM data_points WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list session points")
	}
	defer rows.Close()
	return scanSQLitePoints(rows)
}

func (s *SQLiteStore) ListPendingPoints(ctx context.Context, sessionID string) ([]StoredPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, drug_key, point FROM data_points
		 WHERE session_id = ? AND review_status = ? ORDER BY created_at ASC, id ASC`,
		sessionID, string(model.ReviewPending),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending points")
	}
	defer rows.Close()
	return scanSQLitePoints(rows)
}

func (s *SQLiteStore) ResolvePoint(ctx context.Context, pointID string, confirmed bool) error {
	var pointJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT point FROM data_points WHERE id = ?`,
		pointID,
	).Scan(&pointJSON)
	if err == sql.ErrNoRows {
		return eris.Errorf("point not found: %s", pointID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get point %s", pointID)
	}

	var point model.EfficacyDataPoint
	if err := json.Unmarshal([]byte(pointJSON), &point); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal point")
	}
	point.Resolve(confirmed)

	updated, err := json.Marshal(point)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal point")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE data_points SET point = ?, review_status = ? WHERE id = ?`,
		string(updated), string(point.ReviewStatus), pointID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve point %s", pointID)
	}
	return checkRowsAffected(res, "point", pointID)
}

func (s *SQLiteStore) ListNonRejectedPoints(ctx context.Context, drugKey, disease string) ([]model.EfficacyDataPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dp.point FROM data_points dp
		 JOIN sessions se ON se.id = dp.session_id
		 WHERE dp.drug_key = ? AND json_extract(se.disease, '$.standard_name') = ? AND dp.review_status != ?
		 ORDER BY dp.created_at ASC, dp.id ASC`,
		drugKey, disease, string(model.ReviewUserRejected),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list non-rejected points")
	}
	defer rows.Close()

	var points []model.EfficacyDataPoint
	for rows.Next() {
		var pointJSON string
		if err := rows.Scan(&pointJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		var point model.EfficacyDataPoint
		if err := json.Unmarshal([]byte(pointJSON), &point); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal point")
		}
		points = append(points, point)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: iterate points")
}

func (s *SQLiteStore) GetConditionMapping(ctx context.Context, normalized string) (string, float64, error) {
	var standard string
	var confidence float64
	err := s.db.QueryRowContext(ctx,
		`SELECT standard, confidence FROM condition_mappings WHERE normalized = ?`,
		normalized,
	).Scan(&standard, &confidence)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, eris.Wrap(err, "sqlite: get condition mapping")
	}
	return standard, confidence, nil
}

func (s *SQLiteStore) SaveConditionMapping(ctx context.Context, normalized, standard string, confidence float64, matchType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO condition_mappings (normalized, standard, confidence, match_type, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (normalized) DO UPDATE SET standard = excluded.standard,
		   confidence = excluded.confidence, match_type = excluded.match_type`,
		normalized, standard, confidence, matchType, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save condition mapping")
}

func (s *SQLiteStore) ReplaceOpportunity(ctx context.Context, opp model.Opportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal opportunity")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO opportunities (drug_key, disease, data, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (drug_key, disease) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		opp.DrugKey, opp.Disease, string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: replace opportunity")
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, drugKey string) ([]model.Opportunity, error) {
	query := `SELECT data FROM opportunities`
	var args []any
	if drugKey != "" {
		query += ` WHERE drug_key = ?`
		args = append(args, drugKey)
	}
	query += ` ORDER BY drug_key, json_extract(data, '$.rank')`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var opps []model.Opportunity
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opportunity")
		}
		var opp model.Opportunity
		if err := json.Unmarshal([]byte(data), &opp); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal opportunity")
		}
		opps = append(opps, opp)
	}
	return opps, eris.Wrap(rows.Err(), "sqlite: list opportunities iterate")
}

func (s *SQLiteStore) UpsertDrug(ctx context.Context, drug model.ApprovedDrug) error {
	data, err := json.Marshal(drug)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal drug")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approved_drugs (key, data) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		drug.Key, string(data),
	)
	return eris.Wrap(err, "sqlite: upsert drug")
}

func (s *SQLiteStore) ListDrugs(ctx context.Context) ([]model.ApprovedDrug, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM approved_drugs ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drugs")
	}
	defer rows.Close()

	var drugs []model.ApprovedDrug
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan drug")
		}
		var drug model.ApprovedDrug
		if err := json.Unmarshal([]byte(data), &drug); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal drug")
		}
		drugs = append(drugs, drug)
	}
	return drugs, eris.Wrap(rows.Err(), "sqlite: list drugs iterate")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	pointJSON, err := json.Marshal(entry.Point)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq point")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, session_id, drug_key, point, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.SessionID, entry.DrugKey, string(pointJSON), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, session_id, drug_key, point, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= datetime('now') AND retry_count < max_retries`
	var args []any

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var pointJSON string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.DrugKey, &pointJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(pointJSON), &e.Point); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq point")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = datetime('now')
		 WHERE id = ?`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq_entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.BenchmarkSession, error) {
	var sess model.BenchmarkSession
	var diseaseJSON, drugsJSON string

	err := row.Scan(&sess.ID, &diseaseJSON, &drugsJSON, &sess.Status, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}

	if err := json.Unmarshal([]byte(diseaseJSON), &sess.Disease); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal disease")
	}
	if err := json.Unmarshal([]byte(drugsJSON), &sess.Drugs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal drugs")
	}
	return &sess, nil
}

func scanSQLitePoints(rows *sql.Rows) ([]StoredPoint, error) {
	var points []StoredPoint
	for rows.Next() {
		var sp StoredPoint
		var pointJSON string
		if err := rows.Scan(&sp.ID, &sp.SessionID, &sp.DrugKey, &pointJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		if err := json.Unmarshal([]byte(pointJSON), &sp.Point); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal point")
		}
		points = append(points, sp)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: iterate points")
}
