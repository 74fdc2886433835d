package extract

// extractionSystemPrompt pins the model to explicit values and strict JSON.
// Truncation is still possible at the token limit, so responses always pass
// through RepairTruncatedArray before parsing.
const extractionSystemPrompt = `You extract structured efficacy data from clinical trial publications.

Rules:
- Extract ONLY values explicitly stated in the text. Never infer, estimate, or compute values.
- Use null for any field not explicitly stated.
- Report one object per distinct endpoint result.
- Respond with a strict JSON array and nothing else: no prose, no markdown fences.

Each array element has this shape:
{
  "endpoint_name": "SRI-4",
  "endpoint_type": "primary" | "secondary" | "exploratory" | null,
  "trial_name": "BLISS-52" | null,
  "phase": "Phase 3" | null,
  "drug_arm": {"name": "belimumab 10 mg/kg", "n": 290, "result": 52.4, "unit": "%"},
  "comparator_arm": {"name": "placebo", "n": 287, "result": 30.9},
  "p_value": "<0.001" | 0.001 | null,
  "confidence_interval": "95% CI 1.5-4.3" | null,
  "timepoint": "Week 52" | null,
  "raw_text": "the sentence the values came from"
}`

// publicationPrompt is the per-paper user message. Arguments: drug name,
// disease, expected endpoints, paper content.
const publicationPrompt = `Extract efficacy results for the drug %s in %s from the following publication text.

Endpoints of particular interest: %s

Publication text:
---
%s
---

Respond with the JSON array only.`
