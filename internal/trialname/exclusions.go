package trialname

// Curated exclusion sets. Anything that pattern-matches like a trial acronym
// but is really generic trial vocabulary, a medical or statistical
// abbreviation, a regulator, a journal, or an adverse-event term is dropped
// before scoring.

var genericTrialVocab = set(
	"TRIAL", "STUDY", "PHASE", "COHORT", "PLACEBO", "BASELINE", "ENDPOINT",
	"PRIMARY", "SECONDARY", "RANDOM", "RANDOMIZED", "RANDOMISED",
	"CONTROLLED", "DOUBLE", "BLIND", "OPEN", "LABEL",
	"ARM", "ARMS", "GROUP", "WEEK", "WEEKS", "MONTH", "MONTHS", "YEAR",
	"SCREENING", "ENROLLMENT", "FOLLOW", "INTERIM", "FINAL", "EXTENSION",
	"PROTOCOL", "CONSENT", "VISIT", "DOSE", "DOSING", "TITRATION",
)

var medicalAbbrevs = set(
	"SLE", "RA", "MS", "IBD", "UC", "CD", "COPD", "CHF", "CKD", "ESRD",
	"NSCLC", "SCLC", "AML", "CLL", "CML", "ALL", "DLBCL", "HCC", "RCC",
	"TNBC", "HER2", "EGFR", "ALK", "BRCA", "PD-1", "PD-L1", "CTLA-4",
	"TNF", "IL-6", "IL-17", "IL-23", "JAK", "BTK", "MRI", "PET", "CT",
	"ECG", "EEG", "BMI", "BP", "HR", "HDL", "LDL", "HBA1C", "EGFR-2",
	"DNA", "RNA", "MRNA", "IGG", "IGM", "ANA", "ESR", "CRP",
	// Response indices read like trial acronyms but are endpoints.
	"SRI-4", "SRI-5", "SRI-6", "ACR20", "ACR50", "ACR70",
	"PASI-75", "PASI-90", "EASI-75", "DAS28", "SLEDAI", "BILAG",
)

var regulatoryAcronyms = set(
	"FDA", "EMA", "NIH", "NCI", "CDC", "WHO", "NICE", "CHMP", "PMDA",
	"IRB", "ICH", "GCP", "IND", "NDA", "BLA", "MAA", "REMS", "PDUFA",
	"CFR", "HIPAA", "GDPR",
)

var journalNames = set(
	"NEJM", "JAMA", "BMJ", "LANCET", "PLOS", "PNAS", "JCO", "JACC",
	"ANNALS", "NATURE", "SCIENCE", "CELL", "BLOOD", "CHEST", "GUT",
)

var statisticalAbbrevs = set(
	"ANOVA", "ANCOVA", "ITT", "MITT", "LOCF", "BOCF", "MMRM", "AUC",
	"CI", "CIS", "SD", "SE", "SEM", "IQR", "HR-CI", "OR", "RR", "NNT",
	"KM", "CMH", "GEE",
)

var adverseEventAbbrevs = set(
	"AE", "AES", "SAE", "SAES", "TEAE", "TEAES", "ADR", "ADRS",
	"MEDDRA", "CTCAE", "DAIDS", "URI", "UTI", "ULN",
)

var exclusionSets = []map[string]struct{}{
	genericTrialVocab,
	medicalAbbrevs,
	regulatoryAcronyms,
	journalNames,
	statisticalAbbrevs,
	adverseEventAbbrevs,
}

// Excluded reports whether the candidate appears in any curated exclusion set.
func Excluded(name string) bool {
	for _, s := range exclusionSets {
		if _, ok := s[name]; ok {
			return true
		}
	}
	return false
}

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
