package extract

import "strings"

// Vocabulary shared by the strategy scorers and the heuristic field
// extractor. Matching is case-insensitive substring.

var jobHeaderTokens = []string{
	"title", "position", "vacancy", "job", "role",
	"organization", "organisation", "employer", "company",
	"location", "duty station", "deadline", "closing",
}

var containerHintTokens = []string{
	"job", "position", "vacancy", "vacancies", "career", "opening", "posting",
}

var anchorKeywords = []string{
	"job", "vacancy", "position", "career", "apply", "recruit", "opening",
}

// fieldLabels maps human labels found in label/value pairs and table
// headers onto tracked fields.
var fieldLabels = map[string][]string{
	"title":     {"title", "position", "vacancy", "job title", "role"},
	"employer":  {"employer", "organization", "organisation", "company", "agency"},
	"location":  {"location", "duty station", "place", "city", "country", "region"},
	"deadline":  {"deadline", "closing date", "closes", "apply by", "application deadline"},
	"reference": {"reference", "ref", "vacancy no", "job id", "requisition"},
}

func containsAnyFold(s string, tokens []string) bool {
	lowered := strings.ToLower(s)
	for _, t := range tokens {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}

// labelField maps a raw label ("Closing date:") to the tracked field it
// describes, or "".
func labelField(label string) string {
	lowered := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":")))
	if lowered == "" {
		return ""
	}
	for field, names := range fieldLabels {
		for _, name := range names {
			if strings.Contains(lowered, name) {
				return field
			}
		}
	}
	return ""
}
