package discovery

// nameLookupPrompt asks for confirmed trial names for a batch of registry
// IDs. The model is told to omit rather than guess; unverified names are
// worse than none because they poison downstream paper searches.
const nameLookupPrompt = `You are looking up the official names or acronyms of clinical trials of the drug %s.

For each ClinicalTrials.gov registry ID below, return the trial's official name or acronym ONLY if you are confident it is correct. If you do not know the name, or are unsure, use null. Do not guess or invent names.

Registry IDs:
%s

Respond with a single JSON object mapping each registry ID to its name or null, for example:
{"NCT00424476": "BLISS-52", "NCT01234567": null}

Respond with the JSON object only, no other text.`
