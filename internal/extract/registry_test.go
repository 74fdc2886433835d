package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/pkg/ctgov"
)

type fakeTrialDetails struct {
	searchResults []ctgov.Study
	details       []ctgov.Study
	searchErr     error
	detailsErr    error
	requestedIDs  []string
	lastQuery     ctgov.SearchQuery
}

func (f *fakeTrialDetails) Search(_ context.Context, q ctgov.SearchQuery) ([]ctgov.Study, error) {
	f.lastQuery = q
	return f.searchResults, f.searchErr
}

func (f *fakeTrialDetails) GetStudies(_ context.Context, nctIDs []string) ([]ctgov.Study, error) {
	f.requestedIDs = nctIDs
	return f.details, f.detailsErr
}

func intp(v int) *int { return &v }

func blissStudy() ctgov.Study {
	return ctgov.Study{
		NCTID:         "NCT00424476",
		Acronym:       "BLISS-52",
		BriefTitle:    "A Study of Belimumab in Subjects With SLE",
		Phase:         "Phase 3",
		OverallStatus: "COMPLETED",
		HasResults:    true,
		OutcomeMeasures: []ctgov.OutcomeMeasure{
			{
				Type:          "PRIMARY",
				Title:         "SRI Response Rate at Week 52",
				TimeFrame:     "Week 52",
				UnitOfMeasure: "percentage of participants",
				Groups: []ctgov.MeasureGroup{
					{Title: "Belimumab 10 mg/kg", N: intp(290), Value: f(57.6)},
					{Title: "Placebo", N: intp(287), Value: f(43.6)},
				},
			},
			{Type: "SECONDARY", Title: "SLEDAI Reduction", TimeFrame: "Week 52"},
			{Type: "SECONDARY", Title: "PGA Improvement", TimeFrame: "Week 24"},
			{Type: "SECONDARY", Title: "Prednisone Reduction", TimeFrame: "Week 52"},
		},
	}
}

func TestRegistryExtract_PointsFromOutcomes(t *testing.T) {
	reg := &fakeTrialDetails{details: []ctgov.Study{blissStudy()}}

	e := NewRegistryExtractor(reg, 2)
	points := e.Extract(context.Background(), sleMatch(), blissTrialInfo())

	assert.Equal(t, []string{"NCT00424476"}, reg.requestedIDs)
	require.Len(t, points, 3, "one primary plus two of three secondaries")

	primary := points[0]
	assert.Equal(t, model.SourceRegistry, primary.SourceKind)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT00424476", primary.SourceURL)
	assert.Equal(t, "BLISS-52", primary.TrialName)
	assert.Equal(t, model.EndpointPrimary, primary.EndpointType)
	assert.Equal(t, "SRI Response Rate at Week 52", primary.EndpointName)
	assert.Equal(t, model.ReviewPending, primary.ReviewStatus, "registry points always need review")
	assert.InDelta(t, registrySeedConfidence, primary.ConfidenceScore, 0.001)

	assert.Equal(t, "Belimumab 10 mg/kg", primary.DrugArm.Name)
	require.NotNil(t, primary.DrugArm.Result)
	assert.InDelta(t, 57.6, *primary.DrugArm.Result, 0.001)
	assert.Equal(t, "Placebo", primary.ComparatorArm.Name)
	require.NotNil(t, primary.ComparatorArm.N)
	assert.Equal(t, 287, *primary.ComparatorArm.N)
}

func TestRegistryExtract_SecondaryBounded(t *testing.T) {
	reg := &fakeTrialDetails{details: []ctgov.Study{blissStudy()}}

	e := NewRegistryExtractor(reg, 1)
	points := e.Extract(context.Background(), sleMatch(), blissTrialInfo())

	secondaries := 0
	for _, p := range points {
		if p.EndpointType == model.EndpointSecondary {
			secondaries++
		}
	}
	assert.Equal(t, 1, secondaries)
}

func TestRegistryExtract_IncompleteTrialsSkipped(t *testing.T) {
	recruiting := blissStudy()
	recruiting.OverallStatus = "RECRUITING"
	reg := &fakeTrialDetails{details: []ctgov.Study{recruiting}}

	e := NewRegistryExtractor(reg, 3)
	points := e.Extract(context.Background(), sleMatch(), blissTrialInfo())
	assert.Empty(t, points)
}

func TestRegistryExtract_SearchesWhenNoIDs(t *testing.T) {
	reg := &fakeTrialDetails{
		searchResults: []ctgov.Study{{NCTID: "NCT00424476"}},
		details:       []ctgov.Study{blissStudy()},
	}

	info := model.DrugTrialInfo{GenericName: "belimumab"}
	e := NewRegistryExtractor(reg, 3)
	points := e.Extract(context.Background(), sleMatch(), info)

	assert.Equal(t, "belimumab", reg.lastQuery.Intervention)
	assert.Equal(t, []string{"2", "3"}, reg.lastQuery.Phases)
	assert.Equal(t, "industry", reg.lastQuery.FunderType)
	assert.Equal(t, []string{"COMPLETED"}, reg.lastQuery.Status)
	assert.Equal(t, []string{"NCT00424476"}, reg.requestedIDs)
	assert.NotEmpty(t, points)
}

func TestRegistryExtract_ErrorsDegrade(t *testing.T) {
	e := NewRegistryExtractor(&fakeTrialDetails{detailsErr: errors.New("blocked")}, 3)
	assert.Empty(t, e.Extract(context.Background(), sleMatch(), blissTrialInfo()))

	e = NewRegistryExtractor(&fakeTrialDetails{searchErr: errors.New("down")}, 3)
	assert.Empty(t, e.Extract(context.Background(), sleMatch(), model.DrugTrialInfo{GenericName: "x"}))
}

func TestSplitArms(t *testing.T) {
	groups := []ctgov.MeasureGroup{
		{Title: "Placebo", N: intp(287)},
		{Title: "Belimumab 10 mg/kg", N: intp(290)},
	}
	drug, comp := splitArms(groups, "belimumab")
	require.NotNil(t, drug)
	require.NotNil(t, comp)
	assert.Equal(t, "Belimumab 10 mg/kg", drug.Title)
	assert.Equal(t, "Placebo", comp.Title)
}

func TestSplitArms_NoPlaceboFallsBackToOtherGroup(t *testing.T) {
	groups := []ctgov.MeasureGroup{
		{Title: "Belimumab 10 mg/kg"},
		{Title: "Standard of Care"},
	}
	drug, comp := splitArms(groups, "belimumab")
	require.NotNil(t, drug)
	require.NotNil(t, comp)
	assert.Equal(t, "Standard of Care", comp.Title)
}

func TestRegistryTrialName(t *testing.T) {
	assert.Equal(t, "BLISS-52", registryTrialName(ctgov.Study{Acronym: "BLISS-52", BriefTitle: "t", NCTID: "n"}))
	assert.Equal(t, "A title", registryTrialName(ctgov.Study{BriefTitle: "A title", NCTID: "n"}))
	assert.Equal(t, "NCT1", registryTrialName(ctgov.Study{NCTID: "NCT1"}))
}
