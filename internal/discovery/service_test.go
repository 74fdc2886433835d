package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/pkg/ctgov"
	"github.com/vantdge/evidence-cli/pkg/llm"
)

type fakeRegistry struct {
	studies   []ctgov.Study
	err       error
	lastQuery ctgov.SearchQuery
}

func (f *fakeRegistry) Search(_ context.Context, q ctgov.SearchQuery) ([]ctgov.Study, error) {
	f.lastQuery = q
	return f.studies, f.err
}

type fakeGenerator struct {
	text    string
	err     error
	calls   int
	lastReq llm.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResponse{Text: f.text, StopReason: "end_turn"}, nil
}

type fakeSearcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func belimumab() model.ApprovedDrug {
	return model.ApprovedDrug{Key: "belimumab", GenericName: "belimumab", BrandName: "Benlysta"}
}

func TestDiscoverTrials_RegistryAcronymWins(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT00424476", Acronym: "BLISS-52", BriefTitle: "A Study of Belimumab in Subjects With SLE", Phase: "Phase 3", OverallStatus: "COMPLETED"},
		{NCTID: "NCT00111111", Acronym: "EARLY-1", Phase: "Phase 1"},
	}}

	svc := New(reg, nil, nil, Config{})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "Systemic Lupus Erythematosus", false)

	assert.Equal(t, "belimumab", reg.lastQuery.Intervention)
	assert.Equal(t, "Systemic Lupus Erythematosus", reg.lastQuery.Condition)
	assert.Equal(t, []string{"2", "3"}, reg.lastQuery.Phases, "phase filter is applied server-side")
	assert.Equal(t, "industry", reg.lastQuery.FunderType)

	require.Len(t, info.Trials, 1, "phase 1 studies are filtered out")
	trial := info.Trials[0]
	assert.Equal(t, "BLISS-52", trial.Name)
	assert.Equal(t, "NCT00424476", trial.NCTID)
	assert.Equal(t, "A Study of Belimumab in Subjects With SLE", trial.BriefTitle)
	assert.Equal(t, model.TrialSourceRegistry, trial.Source)
}

func TestDiscoverTrials_NameMinedFromTitle(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT00410384", BriefTitle: "The BLISS-76 trial of belimumab in lupus", Phase: "Phase 3"},
	}}

	svc := New(reg, nil, nil, Config{})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "SLE", false)

	require.Len(t, info.Trials, 1)
	assert.Equal(t, "BLISS-76", info.Trials[0].Name)
}

func TestDiscoverTrials_RegistryErrorDegrades(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("registry down")}

	svc := New(reg, nil, nil, Config{})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "SLE", false)
	assert.Empty(t, info.Trials)
}

func TestLookupUnnamed_AssignsValidatedName(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT00410384", BriefTitle: "A Study of Belimumab in Subjects With Lupus", Phase: "Phase 3"},
	}}
	gen := &fakeGenerator{text: `Here you go: {"NCT00410384": "BLISS-76"}`}

	svc := New(reg, gen, nil, Config{LookupModel: "claude-haiku-4-5-20251001", MaxTokens: 1024})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "SLE", false)

	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.lastReq.Messages[0].Content, "NCT00410384")
	require.Len(t, info.Trials, 1)
	assert.Equal(t, "BLISS-76", info.Trials[0].Name)
	assert.Equal(t, model.TrialSourceLLMLookup, info.Trials[0].Source)
}

func TestLookupUnnamed_RejectsNameOwnedByOtherDrug(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT02446899", BriefTitle: "A Study of Anifrolumab in Adults With Lupus", Phase: "Phase 3"},
	}}
	// The model hallucinates a name from the wrong drug's program.
	gen := &fakeGenerator{text: `{"NCT02446899": "BLISS-52"}`}

	anifrolumab := model.ApprovedDrug{Key: "anifrolumab", GenericName: "anifrolumab"}
	svc := New(reg, gen, nil, Config{})
	info := svc.DiscoverTrials(context.Background(), anifrolumab, "SLE", false)

	require.Len(t, info.Trials, 1)
	assert.Empty(t, info.Trials[0].Name, "BLISS belongs to belimumab, not anifrolumab")
	assert.Equal(t, model.TrialSourceRegistry, info.Trials[0].Source)
}

func TestLookupUnnamed_SkippedWhenAllNamed(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT00424476", Acronym: "BLISS-52", Phase: "Phase 3"},
	}}
	gen := &fakeGenerator{text: `{}`}

	svc := New(reg, gen, nil, Config{})
	_ = svc.DiscoverTrials(context.Background(), belimumab(), "SLE", false)
	assert.Equal(t, 0, gen.calls)
}

func TestWebSearchFallback(t *testing.T) {
	reg := &fakeRegistry{}
	web := &fakeSearcher{text: "In the BLISS-52 trial belimumab met its endpoint. Results from BLISS-76 were similar."}

	svc := New(reg, nil, web, Config{})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "SLE", true)

	assert.Equal(t, 1, web.calls)
	names := make([]string, 0, len(info.Trials))
	for _, tr := range info.Trials {
		names = append(names, tr.Name)
		assert.Equal(t, model.TrialSourceWebSearch, tr.Source)
	}
	assert.ElementsMatch(t, []string{"BLISS-52", "BLISS-76"}, names)
}

func TestWebSearchSkippedWhenEnoughNamedTrials(t *testing.T) {
	reg := &fakeRegistry{studies: []ctgov.Study{
		{NCTID: "NCT00424476", Acronym: "BLISS-52", Phase: "Phase 3"},
		{NCTID: "NCT00410384", Acronym: "BLISS-76", Phase: "Phase 3"},
	}}
	web := &fakeSearcher{text: "ignored"}

	svc := New(reg, nil, web, Config{})
	_ = svc.DiscoverTrials(context.Background(), belimumab(), "SLE", true)
	assert.Equal(t, 0, web.calls)
}

func TestWebSearchSkippedWhenDisabled(t *testing.T) {
	reg := &fakeRegistry{}
	web := &fakeSearcher{text: "In the BLISS-52 trial"}

	svc := New(reg, nil, web, Config{})
	info := svc.DiscoverTrials(context.Background(), belimumab(), "SLE", false)
	assert.Equal(t, 0, web.calls)
	assert.Empty(t, info.Trials)
}

func TestDedupe_PrefersRegistryThenPhase(t *testing.T) {
	trials := []model.DiscoveredTrial{
		{Name: "BLISS-52", Phase: "Phase 2", Source: model.TrialSourceWebSearch},
		{Name: "bliss-52", Phase: "Phase 3", Source: model.TrialSourceRegistry, NCTID: "NCT00424476"},
		{Name: "TULIP-2", Phase: "Phase 2", Source: model.TrialSourceRegistry},
		{Name: "TULIP-2", Phase: "Phase 3", Source: model.TrialSourceRegistry},
	}

	out := dedupe(trials)
	require.Len(t, out, 2)

	assert.Equal(t, "NCT00424476", out[0].NCTID, "registry entry wins over web search")
	assert.Equal(t, model.TrialSourceRegistry, out[0].Source)
	assert.Equal(t, "Phase 3", out[1].Phase, "higher phase wins on source tie")
}

func TestDedupe_UnnamedKeyedByRegistryID(t *testing.T) {
	trials := []model.DiscoveredTrial{
		{NCTID: "NCT00000001", Source: model.TrialSourceRegistry},
		{NCTID: "NCT00000001", Source: model.TrialSourceRegistry},
	}
	assert.Len(t, dedupe(trials), 1)
}

func TestCleanGenericName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"adalimumab-atto", "adalimumab"},
		{"etanercept-szzs", "etanercept"},
		{"belimumab", "belimumab"},
		{"tofacitinib", "tofacitinib"},
		{" belimumab ", "belimumab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanGenericName(tt.in), tt.in)
	}
}

func TestNameOwnership(t *testing.T) {
	assert.Equal(t, "belimumab", nameOwner("BLISS-52"))
	assert.Equal(t, "belimumab", nameOwner("bliss-76"))
	assert.Equal(t, "anifrolumab", nameOwner("TULIP-1"))
	assert.Equal(t, "", nameOwner("KEYNOTE-189"))
	assert.Equal(t, "", nameOwner("ORALYT-2"), "prefix must match at a word boundary")

	assert.True(t, validateOwnership("BLISS-52", "belimumab"))
	assert.False(t, validateOwnership("BLISS-52", "anifrolumab"))
	assert.True(t, validateOwnership("KEYNOTE-189", "pembrolizumab"))
}

func TestParseNameLookup(t *testing.T) {
	out := parseNameLookup(`Sure, here is the mapping: {"NCT1": "BLISS-52", "NCT2": null} hope that helps`)
	assert.Equal(t, map[string]string{"NCT1": "BLISS-52"}, out)

	assert.Empty(t, parseNameLookup("no json here"))
	assert.Empty(t, parseNameLookup(`{"broken": `))
}

func TestPhaseRank(t *testing.T) {
	assert.Equal(t, 3, phaseRank("Phase 3"))
	assert.Equal(t, 3, phaseRank("Phase 2/Phase 3"))
	assert.Equal(t, 2, phaseRank("Phase 2"))
	assert.Equal(t, 0, phaseRank("N/A"))
	assert.Equal(t, 0, phaseRank(""))
}
