package regions

import (
	"strings"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// DerivedExclusions returns the country-level identifiers in ids that also
// have finer subdivisions in ids. Rendering both would count the country twice.
func DerivedExclusions(ids []string) map[string]bool {
	covered := domain.CoveredCountries(ids)
	out := make(map[string]bool)
	for _, id := range ids {
		if domain.IsCountryLevel(id) && covered[domain.CountryPrefix(id)] {
			out[strings.ToUpper(strings.TrimSpace(id))] = true
		}
	}
	return out
}

// exclusions merges the static list with the derived rule. Keys are upper-cased.
func (l *Loader) exclusions(ids []string) map[string]bool {
	out := make(map[string]bool, len(l.exclude))
	for id := range l.exclude {
		out[id] = true
	}
	if l.derive {
		for id := range DerivedExclusions(ids) {
			out[id] = true
		}
	}
	return out
}
