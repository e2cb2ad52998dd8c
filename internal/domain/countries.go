package domain

import "strings"

// countryNames maps NUTS country codes to English names. NUTS follows
// ISO-3166 alpha-2 except for Greece (EL) and the United Kingdom (UK); both
// spellings are accepted.
var countryNames = map[string]string{
	"AD": "Andorra",
	"AL": "Albania",
	"AT": "Austria",
	"BA": "Bosnia and Herzegovina",
	"BE": "Belgium",
	"BG": "Bulgaria",
	"BY": "Belarus",
	"CH": "Switzerland",
	"CY": "Cyprus",
	"CZ": "Czechia",
	"DE": "Germany",
	"DK": "Denmark",
	"EE": "Estonia",
	"EL": "Greece",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"GR": "Greece",
	"HR": "Croatia",
	"HU": "Hungary",
	"IE": "Ireland",
	"IS": "Iceland",
	"IT": "Italy",
	"LI": "Liechtenstein",
	"LT": "Lithuania",
	"LU": "Luxembourg",
	"LV": "Latvia",
	"MC": "Monaco",
	"MD": "Moldova",
	"ME": "Montenegro",
	"MK": "North Macedonia",
	"MT": "Malta",
	"NL": "Netherlands",
	"NO": "Norway",
	"PL": "Poland",
	"PT": "Portugal",
	"RO": "Romania",
	"RS": "Serbia",
	"RU": "Russia",
	"SE": "Sweden",
	"SI": "Slovenia",
	"SK": "Slovakia",
	"SM": "San Marino",
	"TR": "Türkiye",
	"UA": "Ukraine",
	"UK": "United Kingdom",
	"VA": "Vatican City",
	"XK": "Kosovo",
}

// nutsAliases maps the NUTS-only country codes to their ISO-3166 form.
var nutsAliases = map[string]string{
	"EL": "GR",
	"UK": "GB",
}

// CountryPrefix returns the canonical two-letter country of a region
// identifier, or "" when the identifier is shorter than two characters. NUTS
// spellings fold to ISO-3166, so "EL30" and "GR" share the prefix "GR".
func CountryPrefix(id string) string {
	id = strings.TrimSpace(id)
	if len(id) < 2 {
		return ""
	}
	code := strings.ToUpper(id[:2])
	if iso, ok := nutsAliases[code]; ok {
		return iso
	}
	return code
}

// CountryName returns the English name for a country code.
func CountryName(code string) (string, bool) {
	name, ok := countryNames[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// IsCountryLevel reports whether id is a bare, known country code (NUTS level 0).
func IsCountryLevel(id string) bool {
	id = strings.TrimSpace(id)
	if len(id) != 2 {
		return false
	}
	_, ok := CountryName(id)
	return ok
}

// CoveredCountries returns the country codes that have at least one
// identifier finer than country level in ids.
func CoveredCountries(ids []string) map[string]bool {
	covered := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if len(id) > 2 {
			covered[CountryPrefix(id)] = true
		}
	}
	return covered
}
