package match

import "strings"

// themePrefixes maps charity theme labels to the UKCAT code prefixes that
// represent them. A notice's inferred code matches a theme when it starts
// with one of the theme's prefixes. Themes absent from this table drop
// silently from the theme score.
var themePrefixes = map[string][]string{
	"health":             {"HE"},
	"mental health":      {"HE102"},
	"social care":        {"CA"},
	"housing":            {"HO101"},
	"homelessness":       {"HO"},
	"education":          {"ED"},
	"training":           {"ED102"},
	"employment":         {"ED102"},
	"children":           {"CH"},
	"young people":       {"YO"},
	"youth":              {"YO"},
	"older people":       {"OA"},
	"disability":         {"DI"},
	"poverty":            {"PO", "FB"},
	"food":               {"FB"},
	"environment":        {"EN"},
	"climate":            {"EN102"},
	"arts":               {"AR"},
	"culture":            {"AR"},
	"sport":              {"SP"},
	"criminal justice":   {"CR"},
	"offenders":          {"CR"},
	"refugees":           {"MI"},
	"migrants":           {"MI"},
	"veterans":           {"VE"},
	"animals":            {"AN"},
	"human rights":       {"HU"},
	"faith":              {"RE"},
	"addiction":          {"HE104"},
	"wellbeing":          {"BE"},
	"safeguarding":       {"SA"},
	"community":          {"BE", "PO"},
	"advice":             {"PO", "HU"},
	"end of life":        {"HE103"},
	"palliative care":    {"HE103"},
	"domestic abuse":     {"SA", "HU"},
	"learning disability": {"DI102"},
}

// profileThemePrefixes resolves a profile's theme list through the table,
// de-duplicated. Unmapped themes contribute nothing.
func profileThemePrefixes(themes []string) []string {
	var prefixes []string
	seen := map[string]bool{}
	for _, theme := range themes {
		for _, p := range themePrefixes[strings.ToLower(strings.TrimSpace(theme))] {
			if !seen[p] {
				seen[p] = true
				prefixes = append(prefixes, p)
			}
		}
	}
	return prefixes
}

// themeScore is the fraction of the profile's mapped theme prefixes that
// at least one notice activity code matches. Profiles with no mapped
// themes score the 0.5 neutral.
func themeScore(profileThemes, noticeCodes []string) float64 {
	prefixes := profileThemePrefixes(profileThemes)
	if len(prefixes) == 0 {
		return 0.5
	}
	matched := 0
	for _, prefix := range prefixes {
		for _, code := range noticeCodes {
			if strings.HasPrefix(code, prefix) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(prefixes))
}
