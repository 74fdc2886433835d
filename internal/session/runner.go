// Package session orchestrates one benchmark run: standardize the disease,
// then for each drug discover trials, extract evidence, score it, and
// persist the results. Drugs are processed sequentially with a fixed delay
// between them so the third-party APIs underneath are never hammered.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/resilience"
)

// Progress receives pipeline progress updates. The reported fraction is
// monotonically non-decreasing. Callbacks are advisory; errors in the
// observer never affect the run.
type Progress func(fraction float64, message string)

// Standardizer resolves a raw disease name.
type Standardizer interface {
	Standardize(ctx context.Context, rawName string) model.DiseaseMatch
}

// Discoverer resolves named trials for a drug+indication pair.
type Discoverer interface {
	DiscoverTrials(ctx context.Context, drug model.ApprovedDrug, indication string, useWebSearch bool) model.DrugTrialInfo
}

// PublicationExtractor pulls efficacy data points from the literature.
type PublicationExtractor interface {
	Extract(ctx context.Context, drug model.ApprovedDrug, disease model.DiseaseMatch, info model.DrugTrialInfo, expectedEndpoints []string) []model.EfficacyDataPoint
}

// RegistryExtractor pulls efficacy data points from posted registry results.
type RegistryExtractor interface {
	Extract(ctx context.Context, disease model.DiseaseMatch, info model.DrugTrialInfo) []model.EfficacyDataPoint
}

// Scorer assigns confidence and review dispositions in place.
type Scorer interface {
	ScoreAndFlag(points []model.EfficacyDataPoint)
}

// Store is the subset of the persistence interface the runner needs.
type Store interface {
	CreateSession(ctx context.Context, disease model.DiseaseMatch, drugs []model.ApprovedDrug) (*model.BenchmarkSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	InsertDataPoint(ctx context.Context, sessionID, drugKey string, point model.EfficacyDataPoint) (string, error)
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
}

// Config tunes orchestration behavior.
type Config struct {
	// InterDrugDelay is the fixed pause between drugs. It exists to respect
	// third-party API rate limits and must not be removed.
	InterDrugDelay time.Duration

	// MinPublicationPoints is the publication yield below which the
	// registry fallback runs.
	MinPublicationPoints int

	// UseWebSearch enables the web-search discovery fallback.
	UseWebSearch bool
}

const (
	defaultInterDrugDelay       = 3 * time.Second
	defaultMinPublicationPoints = 3

	// dlqRetryDelay spaces out replays of parked inserts.
	dlqRetryDelay = 5 * time.Minute
	dlqMaxRetries = 3
)

// Runner executes benchmark sessions.
type Runner struct {
	standardizer Standardizer
	discoverer   Discoverer
	publications PublicationExtractor
	registry     RegistryExtractor
	scorer       Scorer
	store        Store
	cfg          Config
}

// New creates a Runner. Zero config fields fall back to defaults.
func New(standardizer Standardizer, discoverer Discoverer, publications PublicationExtractor, registry RegistryExtractor, scorer Scorer, store Store, cfg Config) *Runner {
	if cfg.InterDrugDelay <= 0 {
		cfg.InterDrugDelay = defaultInterDrugDelay
	}
	if cfg.MinPublicationPoints <= 0 {
		cfg.MinPublicationPoints = defaultMinPublicationPoints
	}
	return &Runner{
		standardizer: standardizer,
		discoverer:   discoverer,
		publications: publications,
		registry:     registry,
		scorer:       scorer,
		store:        store,
		cfg:          cfg,
	}
}

// Run executes a full benchmark session for one disease across the given
// drugs. Per-drug failures degrade to failed results inside the session;
// only disease standardization failure, persistence failure at session
// creation, or cancellation abort the run.
func (r *Runner) Run(ctx context.Context, rawDisease string, drugs []model.ApprovedDrug, expectedEndpoints []string, progress Progress) (*model.BenchmarkSession, error) {
	report := monotonic(progress)
	report(0, "standardizing disease")

	disease := r.standardizer.Standardize(ctx, rawDisease)

	sess, err := r.store.CreateSession(ctx, disease, drugs)
	if err != nil {
		return nil, eris.Wrap(err, "session: create")
	}

	if !disease.Matched() {
		r.setStatus(ctx, sess, model.SessionFailed)
		return sess, eris.Errorf("session: could not standardize disease %q", rawDisease)
	}

	r.setStatus(ctx, sess, model.SessionExtracting)
	zap.L().Info("session: extracting",
		zap.String("session_id", sess.ID),
		zap.String("disease", disease.StandardName),
		zap.Int("drugs", len(drugs)),
	)

	for i, drug := range drugs {
		if err := ctx.Err(); err != nil {
			r.setStatus(ctx, sess, model.SessionFailed)
			return sess, eris.Wrap(err, "session: cancelled")
		}

		report(float64(i)/float64(len(drugs)), fmt.Sprintf("extracting %s", drug.DisplayName()))

		result := r.runDrug(ctx, disease, drug, expectedEndpoints)
		r.persistResult(ctx, sess.ID, &result)
		result.DeriveStatus()
		sess.Results = append(sess.Results, result)

		if i < len(drugs)-1 {
			if err := sleep(ctx, r.cfg.InterDrugDelay); err != nil {
				r.setStatus(ctx, sess, model.SessionFailed)
				return sess, eris.Wrap(err, "session: cancelled")
			}
		}
	}

	sess.Status = model.TerminalStatus(sess.Results)
	r.setStatus(ctx, sess, sess.Status)
	report(1, "complete")

	zap.L().Info("session: finished",
		zap.String("session_id", sess.ID),
		zap.String("status", string(sess.Status)),
		zap.Int("pending_review", model.PendingReviewCount(sess.Results)),
	)
	return sess, nil
}

// runDrug extracts one drug's evidence. Publications lead; the registry
// fallback only runs when the literature yield is thin.
func (r *Runner) runDrug(ctx context.Context, disease model.DiseaseMatch, drug model.ApprovedDrug, expectedEndpoints []string) model.DrugBenchmarkResult {
	result := model.DrugBenchmarkResult{Drug: drug}

	info := r.discoverer.DiscoverTrials(ctx, drug, disease.StandardName, r.cfg.UseWebSearch)

	points := r.publications.Extract(ctx, drug, disease, info, expectedEndpoints)
	if len(points) < r.cfg.MinPublicationPoints {
		zap.L().Info("session: thin publication yield, trying registry",
			zap.String("drug", drug.Key),
			zap.Int("points", len(points)),
		)
		points = append(points, r.registry.Extract(ctx, disease, info)...)
	}

	r.scorer.ScoreAndFlag(points)
	result.DataPoints = points
	return result
}

// persistResult inserts the drug's points one at a time. A failed insert
// parks the point in the dead letter queue and is recorded as an error
// string on the result; it never aborts the remaining points.
func (r *Runner) persistResult(ctx context.Context, sessionID string, result *model.DrugBenchmarkResult) {
	for _, point := range result.DataPoints {
		if _, err := r.store.InsertDataPoint(ctx, sessionID, result.Drug.Key, point); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to save %s data point", point.EndpointName))

			now := time.Now().UTC()
			entry := resilience.DLQEntry{
				SessionID:    sessionID,
				DrugKey:      result.Drug.Key,
				Point:        point,
				Error:        err.Error(),
				ErrorType:    resilience.ClassifyError(err),
				MaxRetries:   dlqMaxRetries,
				NextRetryAt:  now.Add(dlqRetryDelay),
				CreatedAt:    now,
				LastFailedAt: now,
			}
			if dlqErr := r.store.EnqueueDLQ(ctx, entry); dlqErr != nil {
				zap.L().Error("session: dlq enqueue failed",
					zap.String("session_id", sessionID),
					zap.String("drug", result.Drug.Key),
					zap.Error(dlqErr),
				)
			}
		}
	}
}

func (r *Runner) setStatus(ctx context.Context, sess *model.BenchmarkSession, status model.SessionStatus) {
	sess.Status = status
	if err := r.store.UpdateSessionStatus(ctx, sess.ID, status); err != nil {
		zap.L().Warn("session: status update failed",
			zap.String("session_id", sess.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// monotonic wraps a Progress callback so reported fractions never decrease.
// A nil callback yields a no-op.
func monotonic(p Progress) Progress {
	if p == nil {
		return func(float64, string) {}
	}
	high := 0.0
	return func(fraction float64, message string) {
		if fraction < high {
			fraction = high
		}
		high = fraction
		p(fraction, message)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
