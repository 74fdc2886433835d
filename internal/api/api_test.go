package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantdge/evidence-cli/internal/condition"
	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(NewRouter(st, condition.New(nil, st)))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedSession(t *testing.T, st store.Store) (sessionID, pointID string) {
	t.Helper()
	ctx := context.Background()

	sess, err := st.CreateSession(ctx,
		model.DiseaseMatch{RawName: "SLE", StandardName: "Systemic Lupus Erythematosus"},
		[]model.ApprovedDrug{{Key: "belimumab", GenericName: "belimumab"}},
	)
	require.NoError(t, err)

	pointID, err = st.InsertDataPoint(ctx, sess.ID, "belimumab", model.EfficacyDataPoint{
		EndpointName:    "SRI-4",
		ConfidenceScore: 0.55,
		ReviewStatus:    model.ReviewPending,
	})
	require.NoError(t, err)
	return sess.ID, pointID
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	status := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestStandardize(t *testing.T) {
	srv, _ := newTestServer(t)

	var match model.DiseaseMatch
	status := postJSON(t, srv.URL+"/api/standardize", `{"name":"SLE"}`, &match)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Systemic Lupus Erythematosus", match.StandardName)
	assert.Equal(t, model.MatchPredefined, match.MatchType)
}

func TestStandardize_MissingName(t *testing.T) {
	srv, _ := newTestServer(t)

	status := postJSON(t, srv.URL+"/api/standardize", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListSessions_FiltersByStatus(t *testing.T) {
	srv, st := newTestServer(t)
	sessionID, _ := seedSession(t, st)
	require.NoError(t, st.UpdateSessionStatus(context.Background(), sessionID, model.SessionComplete))

	var sessions []model.BenchmarkSession
	status := getJSON(t, srv.URL+"/api/sessions?status=complete", &sessions)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)

	status = getJSON(t, srv.URL+"/api/sessions?status=failed", &sessions)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, sessions, "an empty list, never null")
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	status := getJSON(t, srv.URL+"/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPendingAndResolve(t *testing.T) {
	srv, st := newTestServer(t)
	sessionID, pointID := seedSession(t, st)

	var pending []store.StoredPoint
	status := getJSON(t, srv.URL+"/api/sessions/"+sessionID+"/pending", &pending)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, pending, 1)
	assert.Equal(t, pointID, pending[0].ID)

	var resolved map[string]any
	status = postJSON(t, srv.URL+"/api/points/"+pointID+"/resolve", `{"confirmed":true}`, &resolved)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resolved["confirmed"])

	status = getJSON(t, srv.URL+"/api/sessions/"+sessionID+"/pending", &pending)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, pending, "confirmed points leave the review queue")
}

func TestResolve_RequiresConfirmedField(t *testing.T) {
	srv, st := newTestServer(t)
	_, pointID := seedSession(t, st)

	status := postJSON(t, srv.URL+"/api/points/"+pointID+"/resolve", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestResolve_UnknownPoint(t *testing.T) {
	srv, _ := newTestServer(t)

	status := postJSON(t, srv.URL+"/api/points/missing/resolve", `{"confirmed":false}`, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListOpportunities(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.ReplaceOpportunity(context.Background(), model.Opportunity{
		DrugKey: "belimumab", Disease: "Systemic Lupus Erythematosus",
		AggregateScore: 8.2, Rank: 1,
	}))

	var opps []model.Opportunity
	status := getJSON(t, srv.URL+"/api/opportunities?drug=belimumab", &opps)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, opps, 1)
	assert.Equal(t, "Systemic Lupus Erythematosus", opps[0].Disease)

	status = getJSON(t, srv.URL+"/api/opportunities?drug=unknown", &opps)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, opps)
}
