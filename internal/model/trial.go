package model

// TrialSource tags how a discovered trial was found.
type TrialSource string

const (
	TrialSourceRegistry  TrialSource = "registry"
	TrialSourceLLMLookup TrialSource = "llm_lookup"
	TrialSourceWebSearch TrialSource = "llm_web_search"
)

// DiscoveredTrial is one named trial resolved for a drug+indication.
// Name may be empty when only a registry ID is known.
type DiscoveredTrial struct {
	Name       string      `json:"name,omitempty"`
	NCTID      string      `json:"nct_id,omitempty"`
	BriefTitle string      `json:"brief_title,omitempty"`
	Phase      string      `json:"phase,omitempty"`
	Indication string      `json:"indication,omitempty"`
	Status     string      `json:"status,omitempty"`
	Source     TrialSource `json:"source"`
}

// Identifier returns the trial name, falling back to the registry ID.
func (t DiscoveredTrial) Identifier() string {
	if t.Name != "" {
		return t.Name
	}
	return t.NCTID
}

// DrugTrialInfo is the discovery result for one drug+indication pair.
type DrugTrialInfo struct {
	DrugName    string            `json:"drug_name"`
	GenericName string            `json:"generic_name"`
	Indication  string            `json:"indication"`
	Trials      []DiscoveredTrial `json:"trials"`
}

// NamedTrials returns only trials with a resolved name.
func (i DrugTrialInfo) NamedTrials() []DiscoveredTrial {
	var out []DiscoveredTrial
	for _, t := range i.Trials {
		if t.Name != "" {
			out = append(out, t)
		}
	}
	return out
}
