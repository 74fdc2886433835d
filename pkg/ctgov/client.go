// Package ctgov is a client for the ClinicalTrials.gov v2 API. All requests
// pass through a shared rate limiter; the registry throttles aggressively and
// blocks offenders with 403 responses that must not be retried.
package ctgov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vantdge/evidence-cli/internal/resilience"
)

const (
	defaultBaseURL      = "https://clinicaltrials.gov/api/v2"
	defaultMinInterval  = 1200 * time.Millisecond
	defaultMaxResults   = 20
	defaultDetailFanout = 4
)

// Client defines the registry operations used by discovery and extraction.
type Client interface {
	Search(ctx context.Context, q SearchQuery) ([]Study, error)
	GetStudy(ctx context.Context, nctID string) (*Study, error)
	GetStudies(ctx context.Context, nctIDs []string) ([]Study, error)
}

// SearchQuery selects studies. Empty fields are omitted from the request.
type SearchQuery struct {
	Intervention string // query.intr
	Condition    string // query.cond
	Term         string // query.term

	// Phases and FunderType narrow results server-side via aggFilters,
	// e.g. "phase:2 3,funderType:industry". Phase values are bare digits.
	Phases     []string
	FunderType string

	// Status restricts overall status via filter.overallStatus.
	Status []string
}

// Study is the subset of a registry record the pipeline consumes.
type Study struct {
	NCTID          string
	BriefTitle     string
	OfficialTitle  string
	Acronym        string
	Phase          string
	OverallStatus  string
	WhyStopped     string
	Conditions     []string
	Interventions  []string
	Enrollment     *int
	StartDate      string
	CompletionDate string
	HasResults     bool

	// OutcomeMeasures is populated only on detail fetches of studies with
	// posted results.
	OutcomeMeasures []OutcomeMeasure
}

// OutcomeMeasure is one reported outcome from the results section.
type OutcomeMeasure struct {
	Type          string // "PRIMARY", "SECONDARY", "OTHER_PRE_SPECIFIED"
	Title         string
	Description   string
	TimeFrame     string
	UnitOfMeasure string
	Groups        []MeasureGroup
}

// MeasureGroup is one arm's measurement for an outcome.
type MeasureGroup struct {
	Title string
	N     *int
	Value *float64
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithMinInterval sets the minimum spacing between registry requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithMaxResults caps the page size for search requests.
func WithMaxResults(n int) Option {
	return func(c *httpClient) { c.maxResults = n }
}

// WithDetailFanout sets how many detail fetches run concurrently.
func WithDetailFanout(n int) Option {
	return func(c *httpClient) { c.detailFanout = n }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	baseURL      string
	maxResults   int
	detailFanout int
	limiter      *rate.Limiter
	retry        resilience.RetryConfig
	http         *http.Client
}

// NewClient creates a ClinicalTrials.gov client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:      defaultBaseURL,
		maxResults:   defaultMaxResults,
		detailFanout: defaultDetailFanout,
		limiter:      rate.NewLimiter(rate.Every(defaultMinInterval), 1),
		retry:        resilience.RegistryRetryConfig(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q SearchQuery) ([]Study, error) {
	params := url.Values{}
	if q.Intervention != "" {
		params.Set("query.intr", q.Intervention)
	}
	if q.Condition != "" {
		params.Set("query.cond", q.Condition)
	}
	if q.Term != "" {
		params.Set("query.term", q.Term)
	}
	var agg []string
	if len(q.Phases) > 0 {
		agg = append(agg, "phase:"+strings.Join(q.Phases, " "))
	}
	if q.FunderType != "" {
		agg = append(agg, "funderType:"+q.FunderType)
	}
	if len(agg) > 0 {
		params.Set("aggFilters", strings.Join(agg, ","))
	}
	if len(q.Status) > 0 {
		params.Set("filter.overallStatus", strings.Join(q.Status, ","))
	}
	params.Set("pageSize", strconv.Itoa(c.maxResults))

	body, err := c.get(ctx, "/studies?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var page struct {
		Studies []wireStudy `json:"studies"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "ctgov: unmarshal search response")
	}

	out := make([]Study, 0, len(page.Studies))
	for _, ws := range page.Studies {
		out = append(out, ws.toStudy())
	}
	return out, nil
}

func (c *httpClient) GetStudy(ctx context.Context, nctID string) (*Study, error) {
	body, err := c.get(ctx, "/studies/"+url.PathEscape(nctID))
	if err != nil {
		return nil, err
	}

	var ws wireStudy
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ctgov: unmarshal study %s", nctID))
	}

	study := ws.toStudy()
	return &study, nil
}

// GetStudies fetches study details concurrently. Studies that fail with a
// skip error are dropped with a warning; any other error aborts the batch.
func (c *httpClient) GetStudies(ctx context.Context, nctIDs []string) ([]Study, error) {
	results := make([]*Study, len(nctIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailFanout)
	for i, id := range nctIDs {
		g.Go(func() error {
			study, err := c.GetStudy(gctx, id)
			if err != nil {
				if resilience.IsSkip(err) {
					zap.L().Warn("ctgov: skipping blocked study fetch",
						zap.String("nct_id", id),
						zap.Error(err),
					)
					return nil
				}
				return err
			}
			results[i] = study
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Study, 0, len(nctIDs))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// get performs a rate-limited GET with retry. 403 responses come back as
// skip errors, 429 and 5xx as transient errors eligible for retry.
func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ctgov: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "ctgov: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "ctgov: send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "ctgov: read response")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusForbidden:
			return nil, resilience.NewSkipError(
				eris.Errorf("ctgov: blocked with status 403: %s", string(body)),
				resp.StatusCode,
			)
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("ctgov: transient status %d: %s", resp.StatusCode, string(body)),
				resp.StatusCode,
			)
		default:
			return nil, eris.Errorf("ctgov: unexpected status %d: %s", resp.StatusCode, string(body))
		}
	})
}
