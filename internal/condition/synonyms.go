package condition

// curatedSynonyms maps normalized free-text disease names to their canonical
// standard name. First-priority resolution: a hit here is confidence 1.0.
var curatedSynonyms = map[string]string{
	// Autoimmune / rheumatology
	"sle":                          "Systemic Lupus Erythematosus",
	"lupus":                        "Systemic Lupus Erythematosus",
	"systemic lupus":               "Systemic Lupus Erythematosus",
	"systemic lupus erythematosus": "Systemic Lupus Erythematosus",
	"lupus nephritis":              "Lupus Nephritis",
	"ln":                           "Lupus Nephritis",
	"ra":                           "Rheumatoid Arthritis",
	"rheumatoid arthritis":         "Rheumatoid Arthritis",
	"psa":                          "Psoriatic Arthritis",
	"psoriatic arthritis":          "Psoriatic Arthritis",
	"as":                           "Ankylosing Spondylitis",
	"ankylosing spondylitis":       "Ankylosing Spondylitis",
	"sjogren's syndrome":           "Sjogren Syndrome",
	"sjogren syndrome":             "Sjogren Syndrome",
	"systemic sclerosis":           "Systemic Sclerosis",
	"scleroderma":                  "Systemic Sclerosis",

	// Dermatology
	"psoriasis":         "Plaque Psoriasis",
	"plaque psoriasis":  "Plaque Psoriasis",
	"atopic dermatitis": "Atopic Dermatitis",
	"eczema":            "Atopic Dermatitis",
	"ad":                "Atopic Dermatitis",
	"vitiligo":          "Vitiligo",
	"alopecia areata":   "Alopecia Areata",

	// Gastroenterology
	"crohn's disease":    "Crohn Disease",
	"crohns disease":     "Crohn Disease",
	"crohn disease":      "Crohn Disease",
	"cd":                 "Crohn Disease",
	"ulcerative colitis": "Ulcerative Colitis",
	"uc":                 "Ulcerative Colitis",
	"ibd":                "Inflammatory Bowel Disease",

	// Neurology
	"ms":                  "Multiple Sclerosis",
	"multiple sclerosis":  "Multiple Sclerosis",
	"rrms":                "Relapsing-Remitting Multiple Sclerosis",
	"myasthenia gravis":   "Myasthenia Gravis",
	"alzheimer's disease": "Alzheimer Disease",
	"alzheimers disease":  "Alzheimer Disease",
	"parkinson's disease": "Parkinson Disease",
	"als":                 "Amyotrophic Lateral Sclerosis",

	// Oncology
	"nsclc":                      "Non-Small Cell Lung Cancer",
	"non-small cell lung cancer": "Non-Small Cell Lung Cancer",
	"sclc":                       "Small Cell Lung Cancer",
	"melanoma":                   "Melanoma",
	"rcc":                        "Renal Cell Carcinoma",
	"renal cell carcinoma":       "Renal Cell Carcinoma",
	"hcc":                        "Hepatocellular Carcinoma",
	"aml":                        "Acute Myeloid Leukemia",
	"cll":                        "Chronic Lymphocytic Leukemia",
	"dlbcl":                      "Diffuse Large B-Cell Lymphoma",
	"multiple myeloma":           "Multiple Myeloma",
	"tnbc":                       "Triple-Negative Breast Cancer",

	// Respiratory
	"asthma":                 "Asthma",
	"severe asthma":          "Severe Asthma",
	"copd":                   "Chronic Obstructive Pulmonary Disease",
	"ipf":                    "Idiopathic Pulmonary Fibrosis",
	"pulmonary fibrosis":     "Idiopathic Pulmonary Fibrosis",
	"cystic fibrosis":        "Cystic Fibrosis",
	"pulmonary hypertension": "Pulmonary Arterial Hypertension",
	"pah":                    "Pulmonary Arterial Hypertension",

	// Metabolic / renal / cardiovascular
	"t2d":                      "Type 2 Diabetes Mellitus",
	"type 2 diabetes":          "Type 2 Diabetes Mellitus",
	"type 2 diabetes mellitus": "Type 2 Diabetes Mellitus",
	"t1d":                      "Type 1 Diabetes Mellitus",
	"type 1 diabetes":          "Type 1 Diabetes Mellitus",
	"ckd":                      "Chronic Kidney Disease",
	"chronic kidney disease":   "Chronic Kidney Disease",
	"chf":                      "Heart Failure",
	"heart failure":            "Heart Failure",
	"nash":                     "Nonalcoholic Steatohepatitis",
	"obesity":                  "Obesity",
}

// synonymsFor collects every curated raw name that maps to the given
// standard name.
func synonymsFor(standard string) []string {
	var out []string
	for raw, std := range curatedSynonyms {
		if std == standard {
			out = append(out, raw)
		}
	}
	return out
}
