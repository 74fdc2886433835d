package ctgov

import "strconv"

// wireStudy mirrors the v2 API study JSON. Only the fields the pipeline
// reads are declared.
type wireStudy struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
			Acronym       string `json:"acronym"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			WhyStopped      string `json:"whyStopped"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDateStruct struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
		} `json:"statusModule"`
		DesignModule struct {
			Phases         []string `json:"phases"`
			EnrollmentInfo struct {
				Count *int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
	} `json:"protocolSection"`
	ResultsSection struct {
		OutcomeMeasuresModule struct {
			OutcomeMeasures []wireOutcomeMeasure `json:"outcomeMeasures"`
		} `json:"outcomeMeasuresModule"`
	} `json:"resultsSection"`
	HasResults bool `json:"hasResults"`
}

type wireOutcomeMeasure struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	TimeFrame     string `json:"timeFrame"`
	UnitOfMeasure string `json:"unitOfMeasure"`
	Groups        []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"groups"`
	Denoms []struct {
		Units  string `json:"units"`
		Counts []struct {
			GroupID string `json:"groupId"`
			Value   string `json:"value"`
		} `json:"counts"`
	} `json:"denoms"`
	Classes []struct {
		Categories []struct {
			Measurements []struct {
				GroupID string `json:"groupId"`
				Value   string `json:"value"`
			} `json:"measurements"`
		} `json:"categories"`
	} `json:"classes"`
}

func (ws wireStudy) toStudy() Study {
	ident := ws.ProtocolSection.IdentificationModule
	status := ws.ProtocolSection.StatusModule
	design := ws.ProtocolSection.DesignModule

	s := Study{
		NCTID:          ident.NCTID,
		BriefTitle:     ident.BriefTitle,
		OfficialTitle:  ident.OfficialTitle,
		Acronym:        ident.Acronym,
		Phase:          phaseLabel(design.Phases),
		OverallStatus:  status.OverallStatus,
		WhyStopped:     status.WhyStopped,
		Conditions:     ws.ProtocolSection.ConditionsModule.Conditions,
		Enrollment:     design.EnrollmentInfo.Count,
		StartDate:      status.StartDateStruct.Date,
		CompletionDate: status.CompletionDateStruct.Date,
		HasResults:     ws.HasResults,
	}

	for _, iv := range ws.ProtocolSection.ArmsInterventionsModule.Interventions {
		s.Interventions = append(s.Interventions, iv.Name)
	}

	for _, wm := range ws.ResultsSection.OutcomeMeasuresModule.OutcomeMeasures {
		s.OutcomeMeasures = append(s.OutcomeMeasures, wm.toOutcomeMeasure())
	}

	return s
}

func (wm wireOutcomeMeasure) toOutcomeMeasure() OutcomeMeasure {
	om := OutcomeMeasure{
		Type:          wm.Type,
		Title:         wm.Title,
		Description:   wm.Description,
		TimeFrame:     wm.TimeFrame,
		UnitOfMeasure: wm.UnitOfMeasure,
	}

	// Participant counts and first-class measurement values are reported per
	// group ID; join them through the group list to keep arm titles attached.
	counts := make(map[string]*int)
	for _, d := range wm.Denoms {
		if d.Units != "" && d.Units != "Participants" {
			continue
		}
		for _, c := range d.Counts {
			if n, err := strconv.Atoi(c.Value); err == nil {
				counts[c.GroupID] = &n
			}
		}
	}

	values := make(map[string]*float64)
	for _, cl := range wm.Classes {
		for _, cat := range cl.Categories {
			for _, m := range cat.Measurements {
				if _, seen := values[m.GroupID]; seen {
					continue
				}
				if v, err := strconv.ParseFloat(m.Value, 64); err == nil {
					values[m.GroupID] = &v
				}
			}
		}
	}

	for _, g := range wm.Groups {
		om.Groups = append(om.Groups, MeasureGroup{
			Title: g.Title,
			N:     counts[g.ID],
			Value: values[g.ID],
		})
	}

	return om
}

// phaseLabels maps API phase enums to display labels.
var phaseLabels = map[string]string{
	"EARLY_PHASE1": "Early Phase 1",
	"PHASE1":       "Phase 1",
	"PHASE2":       "Phase 2",
	"PHASE3":       "Phase 3",
	"PHASE4":       "Phase 4",
	"NA":           "N/A",
}

func phaseLabel(phases []string) string {
	if len(phases) == 0 {
		return ""
	}
	// Combined designations like PHASE1|PHASE2 report the highest phase.
	best := phases[0]
	for _, p := range phases[1:] {
		if p > best {
			best = p
		}
	}
	if label, ok := phaseLabels[best]; ok {
		return label
	}
	return best
}
