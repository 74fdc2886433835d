package store

import (
	"context"
	"time"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/resilience"
)

// SessionFilter specifies criteria for listing benchmark sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// StoredPoint is a persisted data point together with its row identity,
// used by the review API to address individual points.
type StoredPoint struct {
	ID        string                  `json:"id"`
	SessionID string                  `json:"session_id"`
	DrugKey   string                  `json:"drug_key"`
	Point     model.EfficacyDataPoint `json:"point"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, disease model.DiseaseMatch, drugs []model.ApprovedDrug) (*model.BenchmarkSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	GetSession(ctx context.Context, sessionID string) (*model.BenchmarkSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.BenchmarkSession, error)

	// Data points. Inserts are row-isolated: one bad point never aborts
	// the rest of a drug's results.
	InsertDataPoint(ctx context.Context, sessionID, drugKey string, point model.EfficacyDataPoint) (string, error)
	ListSessionPoints(ctx context.Context, sessionID string) ([]StoredPoint, error)
	ListPendingPoints(ctx context.Context, sessionID string) ([]StoredPoint, error)
	ResolvePoint(ctx context.Context, pointID string, confirmed bool) error
	// ListNonRejectedPoints returns every point for a drug+disease that a
	// reviewer has not rejected. Pending-review points are included;
	// aggregation only excludes explicit rejections.
	ListNonRejectedPoints(ctx context.Context, drugKey, disease string) ([]model.EfficacyDataPoint, error)

	// Condition mappings
	GetConditionMapping(ctx context.Context, normalized string) (standard string, confidence float64, err error)
	SaveConditionMapping(ctx context.Context, normalized, standard string, confidence float64, matchType string) error

	// Opportunities. Replace is a full overwrite keyed on drug+disease.
	ReplaceOpportunity(ctx context.Context, opp model.Opportunity) error
	ListOpportunities(ctx context.Context, drugKey string) ([]model.Opportunity, error)

	// Drug registry snapshot
	UpsertDrug(ctx context.Context, drug model.ApprovedDrug) error
	ListDrugs(ctx context.Context) ([]model.ApprovedDrug, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
