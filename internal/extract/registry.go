package extract

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/pkg/ctgov"
)

// registrySeedConfidence pre-seeds points built from registry metadata.
// Registry outcome definitions rarely carry verified numeric results, so
// these points always land in the review queue pending full scoring.
const registrySeedConfidence = 0.55

// TrialDetails is the registry surface the fallback extractor depends on.
type TrialDetails interface {
	Search(ctx context.Context, q ctgov.SearchQuery) ([]ctgov.Study, error)
	GetStudies(ctx context.Context, nctIDs []string) ([]ctgov.Study, error)
}

// RegistryExtractor emits data points from registry outcome measures. It is
// the fallback when publication extraction yields too little data.
type RegistryExtractor struct {
	registry             TrialDetails
	maxSecondaryOutcomes int
}

// NewRegistryExtractor creates a registry extractor. maxSecondary bounds how
// many secondary outcomes each trial contributes.
func NewRegistryExtractor(registry TrialDetails, maxSecondary int) *RegistryExtractor {
	if maxSecondary <= 0 {
		maxSecondary = 3
	}
	return &RegistryExtractor{registry: registry, maxSecondaryOutcomes: maxSecondary}
}

// Extract pulls completed trials' posted outcomes for the discovered trial
// set. When discovery produced no registry IDs it searches the registry
// directly.
func (e *RegistryExtractor) Extract(ctx context.Context, disease model.DiseaseMatch, info model.DrugTrialInfo) []model.EfficacyDataPoint {
	nctIDs := registryIDs(info)
	if len(nctIDs) == 0 {
		found, err := e.registry.Search(ctx, ctgov.SearchQuery{
			Intervention: info.GenericName,
			Condition:    disease.StandardName,
			Phases:       []string{"2", "3"},
			FunderType:   "industry",
			Status:       []string{"COMPLETED"},
		})
		if err != nil {
			zap.L().Warn("extract: registry search failed",
				zap.String("drug", info.GenericName),
				zap.Error(err),
			)
			return nil
		}
		for _, st := range found {
			nctIDs = append(nctIDs, st.NCTID)
		}
	}
	if len(nctIDs) == 0 {
		return nil
	}

	studies, err := e.registry.GetStudies(ctx, nctIDs)
	if err != nil {
		zap.L().Warn("extract: registry detail fetch failed",
			zap.String("drug", info.GenericName),
			zap.Error(err),
		)
		return nil
	}

	var points []model.EfficacyDataPoint
	for _, st := range studies {
		if !strings.EqualFold(st.OverallStatus, "COMPLETED") {
			continue
		}
		points = append(points, e.studyPoints(st, info)...)
	}
	return points
}

func (e *RegistryExtractor) studyPoints(st ctgov.Study, info model.DrugTrialInfo) []model.EfficacyDataPoint {
	var points []model.EfficacyDataPoint
	secondaryTaken := 0

	for _, om := range st.OutcomeMeasures {
		et := measureType(om.Type)
		if et == model.EndpointSecondary {
			if secondaryTaken >= e.maxSecondaryOutcomes {
				continue
			}
			secondaryTaken++
		}
		points = append(points, e.measurePoint(st, om, et, info))
	}
	return points
}

func (e *RegistryExtractor) measurePoint(st ctgov.Study, om ctgov.OutcomeMeasure, et model.EndpointType, info model.DrugTrialInfo) model.EfficacyDataPoint {
	p := model.EfficacyDataPoint{
		SourceKind:      model.SourceRegistry,
		SourceURL:       registryURL(st.NCTID),
		NCTID:           st.NCTID,
		TrialName:       registryTrialName(st),
		Phase:           st.Phase,
		EndpointName:    om.Title,
		EndpointType:    et,
		Timepoint:       om.TimeFrame,
		RawText:         om.Description,
		ConfidenceScore: registrySeedConfidence,
		ReviewStatus:    model.ReviewPending,
		CreatedAt:       time.Now().UTC(),
	}

	drugArm, compArm := splitArms(om.Groups, info.GenericName)
	if drugArm != nil {
		p.DrugArm = model.Arm{Name: drugArm.Title, N: drugArm.N, Result: drugArm.Value, Unit: om.UnitOfMeasure}
	}
	if compArm != nil {
		p.ComparatorArm = model.Arm{Name: compArm.Title, N: compArm.N, Result: compArm.Value}
	}
	return p
}

// splitArms picks the drug arm (group naming the generic) and comparator
// arm (placebo when present, else the first other group).
func splitArms(groups []ctgov.MeasureGroup, generic string) (*ctgov.MeasureGroup, *ctgov.MeasureGroup) {
	var drug, comp *ctgov.MeasureGroup
	lowerGeneric := strings.ToLower(generic)

	for i := range groups {
		g := &groups[i]
		title := strings.ToLower(g.Title)
		switch {
		case drug == nil && lowerGeneric != "" && strings.Contains(title, lowerGeneric):
			drug = g
		case comp == nil && strings.Contains(title, "placebo"):
			comp = g
		}
	}

	if comp == nil {
		for i := range groups {
			g := &groups[i]
			if g != drug {
				comp = g
				break
			}
		}
	}
	return drug, comp
}

// registryTrialName prefers the official acronym, then the brief title,
// then the registry ID.
func registryTrialName(st ctgov.Study) string {
	if st.Acronym != "" {
		return st.Acronym
	}
	if st.BriefTitle != "" {
		return st.BriefTitle
	}
	return st.NCTID
}

func measureType(apiType string) model.EndpointType {
	switch strings.ToUpper(apiType) {
	case "PRIMARY":
		return model.EndpointPrimary
	case "SECONDARY":
		return model.EndpointSecondary
	default:
		return model.EndpointExploratory
	}
}

func registryIDs(info model.DrugTrialInfo) []string {
	var out []string
	for _, t := range info.Trials {
		if t.NCTID != "" {
			out = append(out, t.NCTID)
		}
	}
	return out
}

func registryURL(nctID string) string {
	return "https://clinicaltrials.gov/study/" + nctID
}
