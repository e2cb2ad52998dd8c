package domain

// ProcessingStats summarizes one region load. Every data row lands in exactly
// one of Processed, Skipped or Errored, so Processed+Skipped+Errored == Total.
type ProcessingStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`

	// Excluded is the subset of Skipped removed by the exclusion policy.
	Excluded int `json:"excluded"`
	// Duplicates is the subset of Skipped whose identifier was already accepted.
	Duplicates int `json:"duplicates"`
	// Recovered counts accepted geometries that needed coordinate recovery.
	Recovered int `json:"recovered"`

	SkippedRegions []string `json:"skipped_regions"`
	ErroredRegions []string `json:"errored_regions,omitempty"`
	// Truncated is set when identifiers were dropped because of the cap.
	Truncated bool `json:"truncated,omitempty"`

	maxIDs int
}

// NewProcessingStats returns empty stats. maxIDs caps each identifier list;
// zero or negative reports every identifier.
func NewProcessingStats(maxIDs int) ProcessingStats {
	return ProcessingStats{SkippedRegions: []string{}, maxIDs: maxIDs}
}

// MarkProcessed records an accepted row.
func (s *ProcessingStats) MarkProcessed() {
	s.Total++
	s.Processed++
}

// MarkSkipped records a row rejected by format, validation or policy.
func (s *ProcessingStats) MarkSkipped(id string) {
	s.Total++
	s.Skipped++
	s.SkippedRegions = s.appendID(s.SkippedRegions, id)
}

// MarkExcluded records a row removed by the exclusion policy.
func (s *ProcessingStats) MarkExcluded(id string) {
	s.MarkSkipped(id)
	s.Excluded++
}

// MarkDuplicate records a row whose identifier repeats an accepted region.
func (s *ProcessingStats) MarkDuplicate(id string) {
	s.MarkSkipped(id)
	s.Duplicates++
}

// MarkErrored records a row whose geometry could not be parsed.
func (s *ProcessingStats) MarkErrored(id string) {
	s.Total++
	s.Errored++
	s.ErroredRegions = s.appendID(s.ErroredRegions, id)
}

// Balanced reports whether the conservation invariant holds.
func (s ProcessingStats) Balanced() bool {
	return s.Processed+s.Skipped+s.Errored == s.Total
}

func (s *ProcessingStats) appendID(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	if s.maxIDs > 0 && len(ids) >= s.maxIDs {
		s.Truncated = true
		return ids
	}
	return append(ids, id)
}
